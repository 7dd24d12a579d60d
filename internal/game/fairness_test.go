package game

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCrashPointFromUniform(t *testing.T) {
	max := decimal.NewFromInt(1000)

	tests := []struct {
		name string
		u    float64
		max  decimal.Decimal
		want string
	}{
		{"zero clamps to floor", 0, max, "19.23"},
		{"negative clamps to floor", -1, max, "19.23"},
		{"one is the minimum", 1, max, "1.01"},
		{"near one is the minimum", 0.999, max, "1.01"},
		{"half", 0.5, max, "1.68"},
		{"scripted", uniformFor(4.10), max, "4.10"},
		{"capped", 1e-9, decimal.NewFromInt(10), "10"},
		{"no cap", 1e-9, decimal.Zero, "19.23"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := crashPointFromUniform(tt.u, 0.01, tt.max)
			assert.True(t, got.Equal(dec(tt.want)), "got %s, want %s", got, tt.want)
		})
	}
}

func TestCrashPointCeiling(t *testing.T) {
	assert.True(t, CrashPointCeiling(0.01).Equal(dec("19.23")))
	assert.True(t, CrashPointCeiling(0).Equal(dec("19.42")))

	// the default cap of 1000 sits above the ceiling, a cap of 10 does not
	assert.True(t, crashPointFromUniform(0, 0.01, decimal.NewFromInt(1000)).Equal(CrashPointCeiling(0.01)))
	assert.True(t, crashPointFromUniform(0, 0.01, decimal.NewFromInt(10)).LessThan(CrashPointCeiling(0.01)))
}

func TestGenerateCrashPoint_Bounds(t *testing.T) {
	rng := CryptoRandom()
	max := decimal.NewFromInt(1000)
	for i := 0; i < 5000; i++ {
		p := GenerateCrashPoint(rng, 0.01, max)
		assert.True(t, p.GreaterThanOrEqual(MIN_CRASH_POINT), "point %s below minimum", p)
		assert.True(t, p.LessThanOrEqual(max), "point %s above cap", p)
		assert.Equal(t, p.String(), p.Truncate(2).String())
	}
}

func TestCryptoRandom_Ranges(t *testing.T) {
	rng := CryptoRandom()
	for i := 0; i < 1000; i++ {
		f := rng.Float64()
		assert.True(t, f >= 0 && f < 1)
		n := rng.Int63n(7)
		assert.True(t, n >= 0 && n < 7)
	}
}

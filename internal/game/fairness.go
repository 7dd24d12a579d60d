package game

import (
	"crypto/rand"
	"encoding/binary"
	"math"
	"math/big"

	"github.com/shopspring/decimal"
)

const (
	// uniform draws are clamped into [U_FLOOR, 1) before mapping
	U_FLOOR = 1e-8
)

var MIN_CRASH_POINT = decimal.RequireFromString("1.01")

// Random is the source of every draw the engines make.
type Random interface {
	// Float64 returns a uniform value in [0, 1).
	Float64() float64
	// Int63n returns a uniform value in [0, n). n must be > 0.
	Int63n(n int64) int64
}

type cryptoRandom struct{}

// CryptoRandom draws from crypto/rand.
func CryptoRandom() Random {
	return cryptoRandom{}
}

func (cryptoRandom) Float64() float64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return float64(binary.BigEndian.Uint64(b[:])>>11) / (1 << 53)
}

func (cryptoRandom) Int63n(n int64) int64 {
	v, err := rand.Int(rand.Reader, big.NewInt(n))
	if err != nil {
		panic(err)
	}
	return v.Int64()
}

// GenerateCrashPoint maps a uniform draw onto the crash distribution
// max(1.01, -ln(U)*(1-houseEdge)+1), truncated to two decimals and capped at max.
func GenerateCrashPoint(rng Random, houseEdge float64, max decimal.Decimal) decimal.Decimal {
	return crashPointFromUniform(rng.Float64(), houseEdge, max)
}

// CrashPointCeiling is the highest point the draw can produce. It comes from
// the U_FLOOR clamp: about 19.23 at a 1% edge.
func CrashPointCeiling(houseEdge float64) decimal.Decimal {
	return crashPointFromUniform(U_FLOOR, houseEdge, decimal.Zero)
}

func crashPointFromUniform(u, houseEdge float64, max decimal.Decimal) decimal.Decimal {
	if u < U_FLOOR || math.IsNaN(u) {
		u = U_FLOOR
	}
	if u >= 1 {
		return MIN_CRASH_POINT
	}

	raw := -math.Log(u)*(1-houseEdge) + 1
	point := decimal.NewFromFloat(raw).Truncate(2)

	if point.LessThan(MIN_CRASH_POINT) {
		return MIN_CRASH_POINT
	}
	if max.IsPositive() && point.GreaterThan(max) {
		return max
	}
	return point
}

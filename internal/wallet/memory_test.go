package wallet

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestMemory_SeedKeepsExistingBalance(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	bal, err := m.Seed(ctx, "u1", d("100"))
	require.NoError(t, err)
	assert.True(t, bal.Equal(d("100")))

	_, err = m.Debit(ctx, "u1", d("30"))
	require.NoError(t, err)

	bal, err = m.Seed(ctx, "u1", d("100"))
	require.NoError(t, err)
	assert.True(t, bal.Equal(d("70")), "reseeding must not reset the balance, got %s", bal)
}

func TestMemory_DebitCredit(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		start   string
		debit   string
		want    string
		wantErr error
	}{
		{"partial", "100", "10", "90", nil},
		{"exact", "10", "10", "0", nil},
		{"overdraft", "5", "5.01", "5", ErrInsufficientFunds},
		{"zero", "5", "0", "0", ErrInvalidAmount},
		{"negative", "5", "-1", "0", ErrInvalidAmount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMemory()
			_, _ = m.Seed(ctx, "u", d(tt.start))

			got, err := m.Debit(ctx, "u", d(tt.debit))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.True(t, got.Equal(d(tt.want)), "got %s want %s", got, tt.want)

			bal, _ := m.Balance(ctx, "u")
			if tt.wantErr != nil {
				assert.True(t, bal.Equal(d(tt.start)), "failed debit changed balance to %s", bal)
			}
		})
	}

	t.Run("credit unknown account", func(t *testing.T) {
		m := NewMemory()
		got, err := m.Credit(ctx, "new", d("2.50"))
		require.NoError(t, err)
		assert.True(t, got.Equal(d("2.5")))
	})

	t.Run("credit rejects zero", func(t *testing.T) {
		m := NewMemory()
		_, err := m.Credit(ctx, "new", decimal.Zero)
		assert.ErrorIs(t, err, ErrInvalidAmount)
	})
}

func TestMemory_ConcurrentDebitsNeverOverdraw(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	_, _ = m.Seed(ctx, "u", d("50"))

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Debit(ctx, "u", d("1")); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, succeeded)
	bal, _ := m.Balance(ctx, "u")
	assert.True(t, bal.IsZero())
	assert.True(t, m.Total().IsZero())
}

package wallet

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
)

// Memory keeps balances in process memory.
type Memory struct {
	mu       sync.Mutex
	balances map[string]decimal.Decimal
}

func NewMemory() *Memory {
	return &Memory{balances: make(map[string]decimal.Decimal)}
}

func (m *Memory) Seed(_ context.Context, userID string, balance decimal.Decimal) (decimal.Decimal, error) {
	if balance.IsNegative() {
		return decimal.Zero, ErrInvalidAmount
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if current, ok := m.balances[userID]; ok {
		return current, nil
	}
	m.balances[userID] = balance
	return balance, nil
}

func (m *Memory) Balance(_ context.Context, userID string) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[userID], nil
}

func (m *Memory) Debit(_ context.Context, userID string, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	current := m.balances[userID]
	if current.LessThan(amount) {
		return current, ErrInsufficientFunds
	}
	next := current.Sub(amount)
	m.balances[userID] = next
	return next, nil
}

func (m *Memory) Credit(_ context.Context, userID string, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.balances[userID].Add(amount)
	m.balances[userID] = next
	return next, nil
}

// Total sums every balance. Used by conservation checks.
func (m *Memory) Total() decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()

	total := decimal.Zero
	for _, b := range m.balances {
		total = total.Add(b)
	}
	return total
}

// Package wallet is the single authoritative balance store shared by every
// game engine. Each operation is atomic with respect to the account it touches,
// and a debit never takes a balance below zero.
package wallet

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrInsufficientFunds = errors.New("insufficient balance")
	ErrInvalidAmount     = errors.New("amount must be positive")
)

type Store interface {
	// Seed creates the account with balance unless it already exists, and
	// returns the account's balance afterwards.
	Seed(ctx context.Context, userID string, balance decimal.Decimal) (decimal.Decimal, error)
	// Balance returns zero for unknown accounts.
	Balance(ctx context.Context, userID string) (decimal.Decimal, error)
	// Debit subtracts amount, or fails with ErrInsufficientFunds leaving the balance untouched.
	Debit(ctx context.Context, userID string, amount decimal.Decimal) (decimal.Decimal, error)
	Credit(ctx context.Context, userID string, amount decimal.Decimal) (decimal.Decimal, error)
}

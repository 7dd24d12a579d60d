package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const (
	REDIS_KEY_USER_BALANCE = "wallet:balance:"

	maxTxRetries = 16
)

// Redis stores balances as decimal strings. Debits and credits run inside
// WATCH/MULTI transactions so concurrent writers to one account serialize
// without losing precision to INCRBYFLOAT.
type Redis struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func balanceKey(userID string) string {
	return REDIS_KEY_USER_BALANCE + userID
}

func (r *Redis) Seed(ctx context.Context, userID string, balance decimal.Decimal) (decimal.Decimal, error) {
	if balance.IsNegative() {
		return decimal.Zero, ErrInvalidAmount
	}
	key := balanceKey(userID)
	if err := r.client.SetNX(ctx, key, balance.String(), 0).Err(); err != nil {
		return decimal.Zero, fmt.Errorf("seed balance: %w", err)
	}
	return r.Balance(ctx, userID)
}

func (r *Redis) Balance(ctx context.Context, userID string) (decimal.Decimal, error) {
	return readBalance(ctx, r.client, balanceKey(userID))
}

func (r *Redis) Debit(ctx context.Context, userID string, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return r.update(ctx, userID, func(current decimal.Decimal) (decimal.Decimal, error) {
		if current.LessThan(amount) {
			return current, ErrInsufficientFunds
		}
		return current.Sub(amount), nil
	})
}

func (r *Redis) Credit(ctx context.Context, userID string, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return r.update(ctx, userID, func(current decimal.Decimal) (decimal.Decimal, error) {
		return current.Add(amount), nil
	})
}

func (r *Redis) update(ctx context.Context, userID string, apply func(decimal.Decimal) (decimal.Decimal, error)) (decimal.Decimal, error) {
	key := balanceKey(userID)
	var result decimal.Decimal

	txf := func(tx *redis.Tx) error {
		current, err := readBalance(ctx, tx, key)
		if err != nil {
			return err
		}
		next, err := apply(current)
		if err != nil {
			result = current
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, next.String(), 0)
			return nil
		})
		if err == nil {
			result = next
		}
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := r.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil && !errors.Is(err, ErrInsufficientFunds) {
			return decimal.Zero, fmt.Errorf("update balance: %w", err)
		}
		return result, err
	}
	return decimal.Zero, fmt.Errorf("update balance: too much contention on %s", key)
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func readBalance(ctx context.Context, c getter, key string) (decimal.Decimal, error) {
	raw, err := c.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("read balance: %w", err)
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("corrupt balance %q at %s: %w", raw, key, err)
	}
	return d, nil
}

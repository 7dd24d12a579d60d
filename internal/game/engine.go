package game

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"skinbet/internal/eventloop"
	"skinbet/internal/history"
	"skinbet/internal/metrics"
	"skinbet/internal/wallet"
)

// Engine is a self-scheduling game loop. All methods run on the event loop.
type Engine interface {
	Name() string
	Start()
	Stop()
	// Watchdog forces a stalled phase forward and reports whether it had to.
	Watchdog(now time.Time) bool
}

// stallGrace is how long a phase may overrun its schedule before the watchdog
// steps in.
const stallGrace = 5 * time.Second

// Deps are the collaborators every engine shares.
type Deps struct {
	Loop          eventloop.Loop
	Bus           *Bus
	Registry      *Registry
	Wallet        wallet.Store
	History       history.Recorder
	Random        Random
	WalletTimeout time.Duration
}

func (d *Deps) walletContext() (context.Context, context.CancelFunc) {
	timeout := d.WalletTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return context.WithTimeout(context.Background(), timeout)
}

// reject reports err to the originating connection as <game>:error.
func (d *Deps) reject(game, event, connID string, err error) error {
	metrics.Rejections.WithLabelValues(game, errorKind(err)).Inc()
	if errors.Is(err, ErrInternal) {
		log.WithError(err).WithFields(log.Fields{"game": game, "conn": connID}).Error("[GAME] Command failed")
	}
	d.Bus.BroadcastTo(connID, event, ErrorPayload{Message: publicMessage(err)})
	return err
}

// debit takes amount from the user behind conn after checking the session
// snapshot, and refreshes the snapshot with the wallet's answer.
func (d *Deps) debit(ctx context.Context, conn *Connection, amount decimal.Decimal) (decimal.Decimal, error) {
	if amount.GreaterThan(conn.User.Balance) {
		return decimal.Zero, ErrInsufficientBalance
	}
	balance, err := d.Wallet.Debit(ctx, conn.User.UserID, amount)
	if errors.Is(err, wallet.ErrInsufficientFunds) {
		d.Registry.SyncBalance(conn.User.UserID, balance)
		return decimal.Zero, ErrInsufficientBalance
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: debit: %w", ErrInternal, err)
	}
	d.Registry.SyncBalance(conn.User.UserID, balance)
	return balance, nil
}

// credit pays userID. The caller has already committed the round outcome, so
// a failure is reported back for the broadcast and history to carry as unpaid.
func (d *Deps) credit(ctx context.Context, game, userID string, amount decimal.Decimal) (decimal.Decimal, error) {
	balance, err := d.refund(ctx, game, userID, amount)
	if err != nil || !amount.IsPositive() {
		return balance, err
	}
	metrics.AmountPaid.WithLabelValues(game).Add(amount.InexactFloat64())
	return balance, nil
}

// refund returns money to userID without counting it as a payout.
func (d *Deps) refund(ctx context.Context, game, userID string, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, nil
	}
	balance, err := d.Wallet.Credit(ctx, userID, amount)
	if err != nil {
		metrics.PayoutFailures.WithLabelValues(game).Inc()
		log.WithError(err).WithFields(log.Fields{
			"game":   game,
			"user":   userID,
			"amount": amount.String(),
		}).Error("[WALLET] Credit failed")
		return decimal.Zero, fmt.Errorf("%w: credit: %w", ErrInternal, err)
	}
	d.Registry.SyncBalance(userID, balance)
	return balance, nil
}

func (d *Deps) record(r history.Record) {
	if d.History != nil {
		d.History.Record(r)
	}
}

// validateAmount checks a wager: positive, whole cents, within max when max
// is set.
func validateAmount(amount, max decimal.Decimal) error {
	if !amount.IsPositive() || !amount.Equal(amount.Truncate(2)) {
		return ErrInvalidAmount
	}
	if max.IsPositive() && amount.GreaterThan(max) {
		return ErrBetTooLarge
	}
	return nil
}

package game

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"skinbet/internal/metrics"
	"skinbet/internal/wallet"
)

// UserSnapshot is the identity a client presents when it authenticates.
type UserSnapshot struct {
	UserID   string          `json:"userId" validate:"required,max=64"`
	Username string          `json:"username" validate:"max=64"`
	Avatar   string          `json:"avatar" validate:"max=512"`
	Balance  decimal.Decimal `json:"balance"`
}

// Connection is an authenticated session.
type Connection struct {
	ID       string       `json:"id"`
	User     UserSnapshot `json:"user"`
	JoinedAt time.Time    `json:"joinedAt"`
}

// Registry tracks authenticated sessions by connection id. It is owned by the
// event loop and must only be used from loop tasks.
type Registry struct {
	bus      *Bus
	wallet   wallet.Store
	now      func() time.Time
	conns    map[string]*Connection
	onRemove []func(connID string)
}

func NewRegistry(bus *Bus, store wallet.Store, now func() time.Time) *Registry {
	return &Registry{
		bus:    bus,
		wallet: store,
		now:    now,
		conns:  make(map[string]*Connection),
	}
}

// OnRemove registers a hook run for every removed session.
func (r *Registry) OnRemove(fn func(connID string)) {
	r.onRemove = append(r.onRemove, fn)
}

// Authenticate stores or overwrites the session for connID. The wallet is
// seeded from the snapshot only when the user has no balance yet; the stored
// snapshot always carries the wallet's balance.
func (r *Registry) Authenticate(ctx context.Context, connID string, user UserSnapshot) (*Connection, error) {
	user.UserID = strings.TrimSpace(user.UserID)
	if user.UserID == "" {
		return nil, ErrInvalidUser
	}
	if user.Balance.IsNegative() {
		return nil, ErrInvalidAmount
	}

	balance, err := r.wallet.Seed(ctx, user.UserID, user.Balance)
	if err != nil {
		return nil, fmt.Errorf("%w: seed wallet: %v", ErrInternal, err)
	}
	user.Balance = balance

	conn := &Connection{ID: connID, User: user, JoinedAt: r.now()}
	if prev, ok := r.conns[connID]; ok {
		conn.JoinedAt = prev.JoinedAt
	}
	r.conns[connID] = conn

	log.WithFields(log.Fields{
		"conn":    connID,
		"user":    user.UserID,
		"balance": balance.StringFixed(2),
	}).Info("[AUTH] User authenticated")

	r.countChanged()
	return conn, nil
}

func (r *Registry) Get(connID string) (*Connection, bool) {
	conn, ok := r.conns[connID]
	return conn, ok
}

// Remove drops the session and runs the removal hooks.
func (r *Registry) Remove(connID string) {
	conn, ok := r.conns[connID]
	if !ok {
		return
	}
	delete(r.conns, connID)
	for _, fn := range r.onRemove {
		fn(connID)
	}

	log.WithFields(log.Fields{"conn": connID, "user": conn.User.UserID}).Info("[AUTH] User disconnected")
	r.countChanged()
}

func (r *Registry) Count() int {
	return len(r.conns)
}

// SyncBalance updates every session of userID and pushes the new balance to them.
func (r *Registry) SyncBalance(userID string, balance decimal.Decimal) {
	for id, conn := range r.conns {
		if conn.User.UserID != userID {
			continue
		}
		conn.User.Balance = balance
		r.bus.BroadcastTo(id, EventBalance, BalancePayload{Balance: balance})
	}
}

func (r *Registry) countChanged() {
	n := len(r.conns)
	metrics.UsersAuthenticated.Set(float64(n))
	r.bus.BroadcastAll(EventUsersCount, UsersCountPayload{Count: n})
}

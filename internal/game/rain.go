package game

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"skinbet/internal/config"
	"skinbet/internal/eventloop"
	"skinbet/internal/history"
	"skinbet/internal/metrics"
)

type rainParticipant struct {
	UserID   string
	Username string
}

// RainEvent is a timed giveaway. The host's amount is held from Start until
// the rain settles.
type RainEvent struct {
	ID              string
	HostID          string
	HostUsername    string
	TotalAmount     decimal.Decimal
	Participants    map[string]rainParticipant
	DurationSeconds int
	Active          bool
	EndsAt          time.Time
	order           []string
}

type RainState struct {
	RainID       string          `json:"rainId"`
	HostID       string          `json:"hostId"`
	HostUsername string          `json:"hostUsername"`
	TotalAmount  decimal.Decimal `json:"totalAmount"`
	Participants int             `json:"participants"`
	Duration     int             `json:"duration"`
	EndsAt       time.Time       `json:"endsAt"`
}

// RainEngine runs at most one rain at a time.
type RainEngine struct {
	*Deps
	cfg       config.Rain
	minAmount decimal.Decimal

	rain  *RainEvent
	timer eventloop.Timer
}

func NewRainEngine(deps *Deps, cfg config.Rain) *RainEngine {
	e := &RainEngine{
		Deps:      deps,
		cfg:       cfg,
		minAmount: decimal.NewFromFloat(cfg.MinAmount),
	}
	deps.Registry.OnRemove(e.removeConnection)
	return e
}

func (e *RainEngine) Name() string { return metrics.GameRain }

// Start is a no-op; rains are started by players.
func (e *RainEngine) Start() {}

// Stop settles an active rain early so the escrow is not stranded.
func (e *RainEngine) Stop() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.settle()
}

// StartRain escrows totalAmount from the host and opens the rain for joining.
func (e *RainEngine) StartRain(ctx context.Context, hostConnID string, totalAmount decimal.Decimal) error {
	host, ok := e.Registry.Get(hostConnID)
	if !ok {
		return e.reject(metrics.GameRain, EventRainError, hostConnID, ErrNotAuthenticated)
	}
	if err := validateAmount(totalAmount, decimal.Zero); err != nil {
		return e.reject(metrics.GameRain, EventRainError, hostConnID, err)
	}
	if totalAmount.LessThan(e.minAmount) {
		return e.reject(metrics.GameRain, EventRainError, hostConnID, ErrBetTooSmall)
	}
	if e.rain != nil {
		return e.reject(metrics.GameRain, EventRainError, hostConnID, ErrRainActive)
	}

	if _, err := e.debit(ctx, host, totalAmount); err != nil {
		return e.reject(metrics.GameRain, EventRainError, hostConnID, err)
	}

	now := e.Loop.Now()
	e.rain = &RainEvent{
		ID:              uuid.NewString(),
		HostID:          host.User.UserID,
		HostUsername:    host.User.Username,
		TotalAmount:     totalAmount,
		Participants:    make(map[string]rainParticipant),
		DurationSeconds: int(e.cfg.Duration / time.Second),
		Active:          true,
		EndsAt:          now.Add(e.cfg.Duration),
	}
	e.timer = e.Loop.AfterFunc(e.cfg.Duration, e.settle)

	metrics.BetsPlaced.WithLabelValues(metrics.GameRain).Inc()
	metrics.AmountWagered.WithLabelValues(metrics.GameRain).Add(totalAmount.InexactFloat64())
	log.WithFields(log.Fields{
		"rain":   e.rain.ID,
		"host":   e.rain.HostID,
		"amount": totalAmount.StringFixed(2),
	}).Info("[RAIN] Rain started")

	e.Bus.BroadcastAll(EventRainStarted, RainStartedPayload{
		RainID:       e.rain.ID,
		HostID:       e.rain.HostID,
		HostUsername: e.rain.HostUsername,
		TotalAmount:  totalAmount,
		Duration:     e.rain.DurationSeconds,
		EndsAt:       e.rain.EndsAt,
	})
	return nil
}

// Join adds connID to the active rain. Each user may join once and the host
// may not join at all.
func (e *RainEngine) Join(ctx context.Context, rainID, connID string) error {
	conn, ok := e.Registry.Get(connID)
	if !ok {
		return e.reject(metrics.GameRain, EventRainError, connID, ErrNotAuthenticated)
	}
	if e.rain == nil || !e.rain.Active || e.rain.ID != rainID {
		return e.reject(metrics.GameRain, EventRainError, connID, ErrRainNotFound)
	}
	if conn.User.UserID == e.rain.HostID {
		return e.reject(metrics.GameRain, EventRainError, connID, ErrRainHost)
	}
	for _, p := range e.rain.Participants {
		if p.UserID == conn.User.UserID {
			return e.reject(metrics.GameRain, EventRainError, connID, ErrAlreadyJoined)
		}
	}

	e.rain.Participants[connID] = rainParticipant{UserID: conn.User.UserID, Username: conn.User.Username}
	e.rain.order = append(e.rain.order, connID)

	e.Bus.BroadcastAll(EventRainJoined, RainJoinedPayload{
		RainID:       e.rain.ID,
		UserID:       conn.User.UserID,
		Username:     conn.User.Username,
		Participants: len(e.rain.Participants),
	})
	return nil
}

func (e *RainEngine) removeConnection(connID string) {
	if e.rain == nil {
		return
	}
	if _, ok := e.rain.Participants[connID]; !ok {
		return
	}
	delete(e.rain.Participants, connID)
	for i, id := range e.rain.order {
		if id == connID {
			e.rain.order = append(e.rain.order[:i], e.rain.order[i+1:]...)
			break
		}
	}
}

// settle splits the escrow evenly in whole cents. The remainder, or the whole
// amount when nobody joined, goes back to the host.
func (e *RainEngine) settle() {
	rain := e.rain
	if rain == nil || !rain.Active {
		return
	}
	rain.Active = false
	e.rain = nil
	e.timer = nil

	ctx, cancel := e.walletContext()
	defer cancel()

	recipients := make([]RainRecipient, 0, len(rain.order))
	share := decimal.Zero
	if n := len(rain.order); n > 0 {
		share = rain.TotalAmount.Div(decimal.NewFromInt(int64(n))).RoundDown(2)
	}
	if share.IsPositive() {
		for _, connID := range rain.order {
			p := rain.Participants[connID]
			recipients = append(recipients, RainRecipient{UserID: p.UserID, Username: p.Username})
		}
	}
	refund := rain.TotalAmount.Sub(share.Mul(decimal.NewFromInt(int64(len(recipients)))))

	unpaid := decimal.Zero
	for i := range recipients {
		if _, err := e.credit(ctx, metrics.GameRain, recipients[i].UserID, share); err != nil {
			unpaid = unpaid.Add(share)
			continue
		}
		recipients[i].Paid = true
	}
	if _, err := e.refund(ctx, metrics.GameRain, rain.HostID, refund); err != nil {
		log.WithFields(log.Fields{"rain": rain.ID, "host": rain.HostID}).Error("[RAIN] Refund failed")
		unpaid = unpaid.Add(refund)
	}

	metrics.RoundsCompleted.WithLabelValues(metrics.GameRain).Inc()
	log.WithFields(log.Fields{
		"rain":       rain.ID,
		"recipients": len(recipients),
		"share":      share.StringFixed(2),
		"refunded":   refund.StringFixed(2),
		"unpaid":     unpaid.StringFixed(2),
	}).Info("[RAIN] Rain completed")

	e.Bus.BroadcastAll(EventRainCompleted, RainCompletedPayload{
		RainID:      rain.ID,
		TotalAmount: rain.TotalAmount,
		Share:       share,
		Recipients:  recipients,
		Refunded:    refund,
		Unpaid:      unpaid,
	})
	e.record(history.RainEvent{
		ID:           rain.ID,
		HostID:       rain.HostID,
		TotalAmount:  rain.TotalAmount,
		Share:        share,
		Participants: len(recipients),
		Refunded:     refund,
		Unpaid:       unpaid,
		EndedAt:      e.Loop.Now(),
	})
}

// State returns the active rain, or nil.
func (e *RainEngine) State() *RainState {
	if e.rain == nil {
		return nil
	}
	return &RainState{
		RainID:       e.rain.ID,
		HostID:       e.rain.HostID,
		HostUsername: e.rain.HostUsername,
		TotalAmount:  e.rain.TotalAmount,
		Participants: len(e.rain.Participants),
		Duration:     e.rain.DurationSeconds,
		EndsAt:       e.rain.EndsAt,
	}
}

// Watchdog settles a rain whose timer never fired.
func (e *RainEngine) Watchdog(now time.Time) bool {
	if e.rain == nil || now.Sub(e.rain.EndsAt) <= stallGrace {
		return false
	}
	metrics.WatchdogRecoveries.WithLabelValues(metrics.GameRain).Inc()
	log.WithField("rain", e.rain.ID).Warn("[RAIN] Rain overdue, settling")
	e.Stop()
	return true
}

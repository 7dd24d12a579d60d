package game

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"skinbet/internal/config"
	"skinbet/internal/eventloop"
	"skinbet/internal/history"
	"skinbet/internal/metrics"
)

const jackpotTick = time.Second

type JackpotEntry struct {
	UserID    string          `json:"userId"`
	Username  string          `json:"username"`
	Avatar    string          `json:"avatar"`
	BetAmount decimal.Decimal `json:"betAmount"`
	Tickets   int64           `json:"tickets"`
	JoinedAt  time.Time       `json:"joinedAt"`
}

type JackpotRound struct {
	ID           string          `json:"id"`
	IsActive     bool            `json:"isActive"`
	TotalPot     decimal.Decimal `json:"totalPot"`
	Entries      []JackpotEntry  `json:"entries"`
	TimeLeft     int             `json:"timeLeft"`
	WinnerID     *string         `json:"winnerId"`
	TotalTickets int64           `json:"totalTickets"`
}

// JackpotEngine collects ticket-weighted entries for a fixed countdown and
// pays the pot, minus the house edge, to one drawn winner.
type JackpotEngine struct {
	*Deps
	cfg       config.Jackpot
	minBet    decimal.Decimal
	maxBet    decimal.Decimal
	perUnit   decimal.Decimal
	payoutPct decimal.Decimal

	round      *JackpotRound
	timer      eventloop.Timer
	progressAt time.Time
}

func NewJackpotEngine(deps *Deps, cfg config.Jackpot) *JackpotEngine {
	return &JackpotEngine{
		Deps:      deps,
		cfg:       cfg,
		minBet:    ONE.Div(decimal.NewFromInt(cfg.TicketsPerUnit)).RoundUp(2),
		maxBet:    decimal.NewFromFloat(cfg.MaxBet),
		perUnit:   decimal.NewFromInt(cfg.TicketsPerUnit),
		payoutPct: ONE.Sub(decimal.NewFromFloat(cfg.HouseEdge)),
		round:     &JackpotRound{TotalPot: decimal.Zero},
	}
}

func (e *JackpotEngine) Name() string { return metrics.GameJackpot }

func (e *JackpotEngine) Start() {
	e.StartRound()
}

func (e *JackpotEngine) Stop() {
	e.stopTimer()
}

func (e *JackpotEngine) stopTimer() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}

// Tickets is floor(amount * ticketsPerUnit). Amounts whose count does not fit
// an int64 must be turned away with fitsRound first.
func (e *JackpotEngine) Tickets(amount decimal.Decimal) int64 {
	return amount.Mul(e.perUnit).Floor().IntPart()
}

// fitsRound reports whether amount's tickets can join the current round
// without pushing the total past math.MaxInt64.
func (e *JackpotEngine) fitsRound(amount decimal.Decimal) bool {
	room := decimal.NewFromInt(math.MaxInt64 - e.round.TotalTickets)
	return !amount.Mul(e.perUnit).Floor().GreaterThan(room)
}

// StartRound opens a fresh round and starts its countdown.
func (e *JackpotEngine) StartRound() {
	e.stopTimer()

	e.round = &JackpotRound{
		ID:       uuid.NewString(),
		IsActive: true,
		TotalPot: decimal.Zero,
		Entries:  []JackpotEntry{},
		TimeLeft: int(e.cfg.RoundDuration / time.Second),
	}
	e.progressAt = e.Loop.Now()
	e.timer = e.Loop.AfterFunc(jackpotTick, e.countdown)

	log.WithFields(log.Fields{"round": e.round.ID, "time_left": e.round.TimeLeft}).Info("[JACKPOT] Round started")

	e.Bus.BroadcastAll(EventJackpotRoundStarted, JackpotStartedPayload{
		RoundID:  e.round.ID,
		TimeLeft: e.round.TimeLeft,
	})
}

func (e *JackpotEngine) countdown() {
	if !e.round.IsActive {
		return
	}
	e.round.TimeLeft--
	e.progressAt = e.Loop.Now()
	if e.round.TimeLeft > 0 {
		e.timer = e.Loop.AfterFunc(jackpotTick, e.countdown)
	}

	e.Bus.BroadcastAll(EventJackpotTimeUpdate, JackpotTimePayload{TimeLeft: e.round.TimeLeft})

	if e.round.TimeLeft <= 0 {
		e.EndRound()
	}
}

// Join adds an entry for connID while the round is collecting.
func (e *JackpotEngine) Join(ctx context.Context, connID string, amount decimal.Decimal) error {
	conn, ok := e.Registry.Get(connID)
	if !ok {
		return e.reject(metrics.GameJackpot, EventJackpotError, connID, ErrNotAuthenticated)
	}
	if err := validateAmount(amount, e.maxBet); err != nil {
		return e.reject(metrics.GameJackpot, EventJackpotError, connID, err)
	}
	if amount.LessThan(e.minBet) {
		return e.reject(metrics.GameJackpot, EventJackpotError, connID, ErrBetTooSmall)
	}
	if !e.round.IsActive {
		return e.reject(metrics.GameJackpot, EventJackpotError, connID, ErrRoundNotActive)
	}
	if !e.fitsRound(amount) {
		return e.reject(metrics.GameJackpot, EventJackpotError, connID, ErrBetTooLarge)
	}

	if _, err := e.debit(ctx, conn, amount); err != nil {
		return e.reject(metrics.GameJackpot, EventJackpotError, connID, err)
	}

	entry := JackpotEntry{
		UserID:    conn.User.UserID,
		Username:  conn.User.Username,
		Avatar:    conn.User.Avatar,
		BetAmount: amount,
		Tickets:   e.Tickets(amount),
		JoinedAt:  e.Loop.Now(),
	}
	e.round.Entries = append(e.round.Entries, entry)
	e.round.TotalPot = e.round.TotalPot.Add(amount)
	e.round.TotalTickets += entry.Tickets

	metrics.BetsPlaced.WithLabelValues(metrics.GameJackpot).Inc()
	metrics.AmountWagered.WithLabelValues(metrics.GameJackpot).Add(amount.InexactFloat64())
	log.WithFields(log.Fields{
		"round":   e.round.ID,
		"user":    entry.UserID,
		"amount":  amount.StringFixed(2),
		"tickets": entry.Tickets,
	}).Info("[JACKPOT] Entry added")

	e.Bus.BroadcastAll(EventJackpotEntry, JackpotEntryPayload{
		RoundID:      e.round.ID,
		Entry:        entry,
		TotalPot:     e.round.TotalPot,
		TotalTickets: e.round.TotalTickets,
	})
	return nil
}

// EndRound freezes the entries, draws the winner and schedules the next round.
// A round without entries just restarts.
func (e *JackpotEngine) EndRound() {
	if !e.round.IsActive {
		return
	}
	e.stopTimer()
	round := e.round
	round.IsActive = false
	now := e.Loop.Now()
	e.progressAt = now

	if len(round.Entries) == 0 {
		log.WithField("round", round.ID).Info("[JACKPOT] No entries, restarting")
		e.timer = e.Loop.AfterFunc(e.cfg.RestartDelay, e.StartRound)
		return
	}
	e.timer = e.Loop.AfterFunc(e.cfg.NextRoundDelay, e.StartRound)

	if round.TotalTickets <= 0 {
		e.refundRound(round)
		return
	}
	draw := e.Random.Int63n(round.TotalTickets)
	idx := SelectWinner(round.Entries, draw)
	if idx < 0 {
		e.refundRound(round)
		return
	}
	winner := round.Entries[idx]
	round.WinnerID = &winner.UserID
	payout := round.TotalPot.Mul(e.payoutPct).Truncate(2)

	metrics.RoundsCompleted.WithLabelValues(metrics.GameJackpot).Inc()
	log.WithFields(log.Fields{
		"round":   round.ID,
		"winner":  winner.UserID,
		"ticket":  draw,
		"tickets": round.TotalTickets,
		"pot":     round.TotalPot.StringFixed(2),
		"payout":  payout.StringFixed(2),
	}).Info("[JACKPOT] Winner drawn")

	ctx, cancel := e.walletContext()
	defer cancel()
	unpaid := decimal.Zero
	if _, err := e.credit(ctx, metrics.GameJackpot, winner.UserID, payout); err != nil {
		unpaid = payout
	}

	e.Bus.BroadcastAll(EventJackpotWinner, JackpotWinnerPayload{
		RoundID:       round.ID,
		Winner:        winner,
		WinningTicket: draw,
		TotalTickets:  round.TotalTickets,
		TotalPot:      round.TotalPot,
		Payout:        payout,
		Paid:          unpaid.IsZero(),
	})

	rec := history.JackpotRound{
		ID:            round.ID,
		TotalPot:      round.TotalPot,
		Payout:        payout,
		Unpaid:        unpaid,
		WinnerID:      winner.UserID,
		WinningTicket: draw,
		TotalTickets:  round.TotalTickets,
		EndedAt:       now,
		Entries:       make([]history.JackpotEntry, 0, len(round.Entries)),
	}
	for _, en := range round.Entries {
		rec.Entries = append(rec.Entries, history.JackpotEntry{
			UserID:    en.UserID,
			Username:  en.Username,
			BetAmount: en.BetAmount,
			Tickets:   en.Tickets,
			JoinedAt:  en.JoinedAt,
		})
	}
	e.record(rec)
}

// refundRound gives every entry its stake back when no ticket can be drawn.
func (e *JackpotEngine) refundRound(round *JackpotRound) {
	log.WithFields(log.Fields{
		"round":   round.ID,
		"entries": len(round.Entries),
		"tickets": round.TotalTickets,
	}).Error("[JACKPOT] No drawable tickets, refunding entries")

	ctx, cancel := e.walletContext()
	defer cancel()
	for _, en := range round.Entries {
		_, _ = e.refund(ctx, metrics.GameJackpot, en.UserID, en.BetAmount)
	}
}

// SelectWinner returns the index of the first entry whose cumulative ticket
// count exceeds draw, or -1 when draw is outside [0, total tickets).
func SelectWinner(entries []JackpotEntry, draw int64) int {
	if draw < 0 {
		return -1
	}
	var cumulative int64
	for i, entry := range entries {
		cumulative += entry.Tickets
		if cumulative > draw {
			return i
		}
	}
	return -1
}

// State returns a copy of the current round.
func (e *JackpotEngine) State() JackpotRound {
	r := *e.round
	r.Entries = append([]JackpotEntry{}, e.round.Entries...)
	return r
}

func (e *JackpotEngine) Watchdog(now time.Time) bool {
	expected := jackpotTick
	if !e.round.IsActive {
		expected = max(e.cfg.RestartDelay, e.cfg.NextRoundDelay)
	}
	if now.Sub(e.progressAt) <= expected+stallGrace {
		return false
	}

	metrics.WatchdogRecoveries.WithLabelValues(metrics.GameJackpot).Inc()
	log.WithFields(log.Fields{
		"round":     e.round.ID,
		"active":    e.round.IsActive,
		"time_left": e.round.TimeLeft,
	}).Warn("[JACKPOT] Round stalled, forcing it forward")

	switch {
	case !e.round.IsActive:
		e.StartRound()
	case e.round.TimeLeft <= 0:
		e.EndRound()
	default:
		e.stopTimer()
		e.progressAt = now
		e.timer = e.Loop.AfterFunc(jackpotTick, e.countdown)
	}
	return true
}

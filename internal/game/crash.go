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

type CrashPhase string

const (
	PhaseIdle    CrashPhase = "IDLE"
	PhaseBetting CrashPhase = "BETTING"
	PhaseRunning CrashPhase = "RUNNING"
	PhaseCrashed CrashPhase = "CRASHED"
)

var ONE = decimal.NewFromInt(1)

type CrashBet struct {
	UserID            string           `json:"userId"`
	Username          string           `json:"username"`
	Avatar            string           `json:"avatar"`
	BetAmount         decimal.Decimal  `json:"betAmount"`
	CashedOut         bool             `json:"cashedOut"`
	CashOutMultiplier *decimal.Decimal `json:"cashOutMultiplier"`
	WinAmount         decimal.Decimal  `json:"winAmount"`
}

type CrashRound struct {
	ID         string
	Phase      CrashPhase
	IsActive   bool
	Multiplier decimal.Decimal
	StartTime  *time.Time
	CrashPoint decimal.Decimal
	Bets       map[string]*CrashBet
	// connection ids in join order
	order []string
}

// CrashState is the public view of the current round. CrashPoint is only
// filled in once the round has crashed.
type CrashState struct {
	RoundID       string            `json:"roundId"`
	Phase         CrashPhase        `json:"phase"`
	IsActive      bool              `json:"isActive"`
	Multiplier    decimal.Decimal   `json:"multiplier"`
	StartTime     *time.Time        `json:"startTime"`
	BettingEndsAt *time.Time        `json:"bettingEndsAt,omitempty"`
	CrashPoint    *decimal.Decimal  `json:"crashPoint,omitempty"`
	Bets          []CrashBet        `json:"bets"`
	History       []decimal.Decimal `json:"history"`
}

// CrashEngine runs IDLE -> BETTING -> RUNNING -> CRASHED -> IDLE forever.
type CrashEngine struct {
	*Deps
	cfg      config.Crash
	step     decimal.Decimal
	maxPoint decimal.Decimal
	maxBet   decimal.Decimal

	round   *CrashRound
	history []decimal.Decimal
	timer   eventloop.Timer
	// last time the phase machine moved; read by the watchdog
	progressAt    time.Time
	bettingEndsAt time.Time
}

func NewCrashEngine(deps *Deps, cfg config.Crash) *CrashEngine {
	e := &CrashEngine{
		Deps:     deps,
		cfg:      cfg,
		step:     decimal.NewFromFloat(cfg.MultiplierStep),
		maxPoint: decimal.NewFromFloat(cfg.MaxCrashPoint),
		maxBet:   decimal.NewFromFloat(cfg.MaxBet),
		round: &CrashRound{
			Phase:      PhaseIdle,
			Multiplier: ONE,
			Bets:       make(map[string]*CrashBet),
		},
	}
	if ceiling := CrashPointCeiling(cfg.HouseEdge); e.maxPoint.GreaterThan(ceiling) {
		log.WithFields(log.Fields{
			"max_crash_point": e.maxPoint.String(),
			"ceiling":         ceiling.String(),
		}).Info("[CRASH] Crash point cap is above the reachable ceiling and never applies")
	}
	return e
}

func (e *CrashEngine) Name() string { return metrics.GameCrash }

func (e *CrashEngine) Start() {
	e.StartRound()
}

func (e *CrashEngine) Stop() {
	e.stopTimer()
}

func (e *CrashEngine) stopTimer() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}

// StartRound resets the round, draws the hidden crash point and opens betting.
func (e *CrashEngine) StartRound() {
	e.stopTimer()

	now := e.Loop.Now()
	e.round = &CrashRound{
		ID:         uuid.NewString(),
		Phase:      PhaseBetting,
		Multiplier: ONE,
		CrashPoint: GenerateCrashPoint(e.Random, e.cfg.HouseEdge, e.maxPoint),
		Bets:       make(map[string]*CrashBet),
	}
	e.progressAt = now
	e.bettingEndsAt = now.Add(e.cfg.BettingWindow)
	e.timer = e.Loop.AfterFunc(e.cfg.BettingWindow, e.beginRunning)

	metrics.CrashPoints.Observe(e.round.CrashPoint.InexactFloat64())
	log.WithFields(log.Fields{
		"round":       e.round.ID,
		"crash_point": e.round.CrashPoint.StringFixed(2),
	}).Debug("[CRASH] Round created (crash point hidden)")

	e.Bus.BroadcastAll(EventCrashGameStarted, CrashStartedPayload{
		RoundID:       e.round.ID,
		BettingTime:   e.cfg.BettingWindow.Milliseconds(),
		BettingEndsAt: e.bettingEndsAt,
	})
}

func (e *CrashEngine) beginRunning() {
	if e.round.Phase != PhaseBetting {
		return
	}
	now := e.Loop.Now()
	e.round.Phase = PhaseRunning
	e.round.IsActive = true
	e.round.StartTime = &now
	e.progressAt = now
	e.timer = e.Loop.AfterFunc(e.cfg.TickInterval, e.tick)

	log.WithFields(log.Fields{
		"round": e.round.ID,
		"bets":  len(e.round.order),
	}).Info("[CRASH] Round running")
}

// tick advances the multiplier one step. The next tick is armed before any
// other work so a failing tick cannot stall the round.
func (e *CrashEngine) tick() {
	if e.round.Phase != PhaseRunning {
		return
	}
	e.timer = e.Loop.AfterFunc(e.cfg.TickInterval, e.tick)
	e.progressAt = e.Loop.Now()

	next := e.round.Multiplier.Add(e.step)
	if next.GreaterThan(e.round.CrashPoint) {
		next = e.round.CrashPoint
	}
	e.round.Multiplier = next

	if e.round.Multiplier.GreaterThanOrEqual(e.round.CrashPoint) {
		e.crash()
		return
	}

	e.Bus.BroadcastAll(EventCrashUpdate, CrashUpdatePayload{
		Multiplier: e.round.Multiplier,
		Timestamp:  e.progressAt.UnixMilli(),
	})
}

// crash ends the round, settles every open bet as a loss and schedules the next round.
func (e *CrashEngine) crash() {
	e.stopTimer()

	now := e.Loop.Now()
	round := e.round
	round.Phase = PhaseCrashed
	round.IsActive = false
	e.progressAt = now

	for _, bet := range round.Bets {
		if !bet.CashedOut {
			bet.WinAmount = decimal.Zero
		}
	}

	e.history = append(e.history, round.CrashPoint)
	if n := e.cfg.HistorySize; n > 0 && len(e.history) > n {
		e.history = e.history[len(e.history)-n:]
	}

	e.timer = e.Loop.AfterFunc(e.cfg.Cooldown, func() {
		e.round.Phase = PhaseIdle
		e.StartRound()
	})

	metrics.RoundsCompleted.WithLabelValues(metrics.GameCrash).Inc()
	log.WithFields(log.Fields{
		"round":       round.ID,
		"crash_point": round.CrashPoint.StringFixed(2),
		"bets":        len(round.order),
	}).Info("[CRASH] Round crashed")

	bets := e.bets()
	e.Bus.BroadcastAll(EventCrashCrashed, CrashCrashedPayload{
		RoundID:    round.ID,
		CrashPoint: round.CrashPoint,
		Multiplier: round.Multiplier,
		Bets:       bets,
	})
	e.record(e.historyRecord(now, bets))
}

// Join places a bet for connID. Only valid during BETTING and once per
// connection per round.
func (e *CrashEngine) Join(ctx context.Context, connID string, amount decimal.Decimal) error {
	conn, ok := e.Registry.Get(connID)
	if !ok {
		return e.reject(metrics.GameCrash, EventCrashError, connID, ErrNotAuthenticated)
	}
	if err := validateAmount(amount, e.maxBet); err != nil {
		return e.reject(metrics.GameCrash, EventCrashError, connID, err)
	}
	if e.round.Phase != PhaseBetting {
		return e.reject(metrics.GameCrash, EventCrashError, connID, ErrBettingClosed)
	}
	if _, joined := e.round.Bets[connID]; joined {
		return e.reject(metrics.GameCrash, EventCrashError, connID, ErrAlreadyJoined)
	}

	balance, err := e.debit(ctx, conn, amount)
	if err != nil {
		return e.reject(metrics.GameCrash, EventCrashError, connID, err)
	}

	bet := &CrashBet{
		UserID:    conn.User.UserID,
		Username:  conn.User.Username,
		Avatar:    conn.User.Avatar,
		BetAmount: amount,
		WinAmount: decimal.Zero,
	}
	e.round.Bets[connID] = bet
	e.round.order = append(e.round.order, connID)

	metrics.BetsPlaced.WithLabelValues(metrics.GameCrash).Inc()
	metrics.AmountWagered.WithLabelValues(metrics.GameCrash).Add(amount.InexactFloat64())
	log.WithFields(log.Fields{
		"round":  e.round.ID,
		"user":   bet.UserID,
		"amount": amount.StringFixed(2),
	}).Info("[BET] Crash bet placed")

	e.Bus.BroadcastAll(EventCrashBet, CrashBetPayload{
		RoundID:   e.round.ID,
		UserID:    bet.UserID,
		Username:  bet.Username,
		Avatar:    bet.Avatar,
		BetAmount: amount,
	})
	e.Bus.BroadcastTo(connID, EventCrashBetConfirmed, CrashBetConfirmedPayload{
		RoundID:   e.round.ID,
		BetAmount: amount,
		Balance:   balance,
	})
	return nil
}

// Cashout locks in the current multiplier for connID's bet.
func (e *CrashEngine) Cashout(ctx context.Context, connID string) error {
	if _, ok := e.Registry.Get(connID); !ok {
		return e.reject(metrics.GameCrash, EventCrashError, connID, ErrNotAuthenticated)
	}
	if !e.round.IsActive {
		return e.reject(metrics.GameCrash, EventCrashError, connID, ErrRoundNotActive)
	}
	bet, ok := e.round.Bets[connID]
	if !ok {
		return e.reject(metrics.GameCrash, EventCrashError, connID, ErrNoActiveBet)
	}
	if bet.CashedOut {
		return e.reject(metrics.GameCrash, EventCrashError, connID, ErrAlreadyCashedOut)
	}

	multiplier := e.round.Multiplier
	win := bet.BetAmount.Mul(multiplier).Truncate(2)

	balance, err := e.credit(ctx, metrics.GameCrash, bet.UserID, win)
	if err != nil {
		return e.reject(metrics.GameCrash, EventCrashError, connID, err)
	}
	bet.CashedOut = true
	bet.CashOutMultiplier = &multiplier
	bet.WinAmount = win

	log.WithFields(log.Fields{
		"round":      e.round.ID,
		"user":       bet.UserID,
		"multiplier": multiplier.StringFixed(2),
		"payout":     win.StringFixed(2),
	}).Info("[CASHOUT] Crash cashout")

	e.Bus.BroadcastAll(EventCrashCashout, CrashCashoutPayload{
		RoundID:    e.round.ID,
		UserID:     bet.UserID,
		Username:   bet.Username,
		Multiplier: multiplier,
		WinAmount:  win,
	})
	e.Bus.BroadcastTo(connID, EventCrashCashoutOK, CrashCashoutSuccessPayload{
		Multiplier: multiplier,
		WinAmount:  win,
		Balance:    balance,
	})
	return nil
}

// State returns a copy of the current round for clients and diagnostics.
func (e *CrashEngine) State() CrashState {
	r := e.round
	state := CrashState{
		RoundID:    r.ID,
		Phase:      r.Phase,
		IsActive:   r.IsActive,
		Multiplier: r.Multiplier,
		StartTime:  r.StartTime,
		Bets:       e.bets(),
		History:    append([]decimal.Decimal(nil), e.history...),
	}
	if r.Phase == PhaseBetting {
		ends := e.bettingEndsAt
		state.BettingEndsAt = &ends
	}
	if r.Phase == PhaseCrashed {
		point := r.CrashPoint
		state.CrashPoint = &point
	}
	return state
}

// Round exposes the live round to tests.
func (e *CrashEngine) Round() *CrashRound {
	return e.round
}

// Watchdog forces a phase forward when its timer has not fired in time.
func (e *CrashEngine) Watchdog(now time.Time) bool {
	var expected time.Duration
	switch e.round.Phase {
	case PhaseBetting:
		expected = e.cfg.BettingWindow
	case PhaseRunning:
		expected = e.cfg.TickInterval
	case PhaseCrashed:
		expected = e.cfg.Cooldown
	default:
		expected = 0
	}
	if now.Sub(e.progressAt) <= expected+stallGrace {
		return false
	}

	metrics.WatchdogRecoveries.WithLabelValues(metrics.GameCrash).Inc()
	log.WithFields(log.Fields{
		"round": e.round.ID,
		"phase": e.round.Phase,
		"since": e.progressAt,
	}).Warn("[CRASH] Phase stalled, forcing it forward")

	switch e.round.Phase {
	case PhaseBetting:
		e.stopTimer()
		e.beginRunning()
	case PhaseRunning:
		e.crash()
	default:
		e.StartRound()
	}
	return true
}

func (e *CrashEngine) bets() []CrashBet {
	out := make([]CrashBet, 0, len(e.round.order))
	for _, connID := range e.round.order {
		out = append(out, *e.round.Bets[connID])
	}
	return out
}

func (e *CrashEngine) historyRecord(crashedAt time.Time, bets []CrashBet) history.CrashRound {
	rec := history.CrashRound{
		ID:         e.round.ID,
		CrashPoint: e.round.CrashPoint,
		CrashedAt:  crashedAt,
		Bets:       make([]history.CrashBet, 0, len(bets)),
	}
	if e.round.StartTime != nil {
		rec.StartedAt = *e.round.StartTime
	}
	for _, b := range bets {
		hb := history.CrashBet{
			UserID:    b.UserID,
			Username:  b.Username,
			BetAmount: b.BetAmount,
			CashedOut: b.CashedOut,
			WinAmount: b.WinAmount,
		}
		if b.CashOutMultiplier != nil {
			hb.CashOutMultiplier = decimal.NewNullDecimal(*b.CashOutMultiplier)
		}
		rec.Bets = append(rec.Bets, hb)
	}
	return rec
}

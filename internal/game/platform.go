package game

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"skinbet/internal/config"
	"skinbet/internal/eventloop"
	"skinbet/internal/history"
	"skinbet/internal/metrics"
	"skinbet/internal/wallet"
)

type Options struct {
	Config  *config.Config
	Loop    eventloop.Loop
	Wallet  wallet.Store
	History history.Recorder
	// defaults to CryptoRandom
	Random Random
}

// Platform owns the connection boundary. Connection goroutines call Connect,
// Handle and Disconnect; every state change they cause runs on the loop.
type Platform struct {
	deps    *Deps
	crash   *CrashEngine
	jackpot *JackpotEngine
	rain    *RainEngine
	chat    *ChatRelay
	engines []Engine
}

type Stats struct {
	ConnectedUsers int          `json:"connectedUsers"`
	Connections    int          `json:"connections"`
	Crash          CrashState   `json:"crash"`
	Jackpot        JackpotRound `json:"jackpot"`
	Rain           *RainState   `json:"rain"`
}

type Health struct {
	ConnectedUsers int  `json:"connectedUsers"`
	CrashActive    bool `json:"crashActive"`
	JackpotActive  bool `json:"jackpotActive"`
	RainActive     bool `json:"rainActive"`
}

func NewPlatform(opts Options) *Platform {
	rng := opts.Random
	if rng == nil {
		rng = CryptoRandom()
	}
	recorder := opts.History
	if recorder == nil {
		recorder = history.Nop{}
	}

	bus := NewBus()
	deps := &Deps{
		Loop:          opts.Loop,
		Bus:           bus,
		Registry:      NewRegistry(bus, opts.Wallet, opts.Loop.Now),
		Wallet:        opts.Wallet,
		History:       recorder,
		Random:        rng,
		WalletTimeout: opts.Config.WalletTimeout,
	}

	p := &Platform{
		deps:    deps,
		crash:   NewCrashEngine(deps, opts.Config.Crash),
		jackpot: NewJackpotEngine(deps, opts.Config.Jackpot),
		rain:    NewRainEngine(deps, opts.Config.Rain),
		chat:    NewChatRelay(deps, opts.Config.Chat),
	}
	p.engines = []Engine{p.crash, p.jackpot, p.rain}
	return p
}

func (p *Platform) Bus() *Bus               { return p.deps.Bus }
func (p *Platform) Registry() *Registry     { return p.deps.Registry }
func (p *Platform) Crash() *CrashEngine     { return p.crash }
func (p *Platform) Jackpot() *JackpotEngine { return p.jackpot }
func (p *Platform) RainEngine() *RainEngine { return p.rain }
func (p *Platform) ChatRelay() *ChatRelay   { return p.chat }
func (p *Platform) Loop() eventloop.Loop    { return p.deps.Loop }

// Start kicks off every engine's self-scheduling loop.
func (p *Platform) Start() {
	p.deps.Loop.Do(func() {
		for _, e := range p.engines {
			e.Start()
			log.Printf("[PLATFORM] Started %s engine", e.Name())
		}
	})
}

func (p *Platform) Stop() {
	p.deps.Loop.Do(func() {
		for _, e := range p.engines {
			e.Stop()
			log.Printf("[PLATFORM] Stopped %s engine", e.Name())
		}
	})
}

// Connect registers s on the bus and sends it the current game states.
func (p *Platform) Connect(s Sender) string {
	connID := uuid.NewString()
	p.deps.Bus.Register(connID, s)

	p.deps.Loop.Do(func() {
		bus := p.deps.Bus
		bus.BroadcastTo(connID, EventCrashState, p.crash.State())
		bus.BroadcastTo(connID, EventJackpotState, p.jackpot.State())
		bus.BroadcastTo(connID, EventUsersCount, UsersCountPayload{Count: p.deps.Registry.Count()})
		bus.BroadcastTo(connID, EventChatHistory, p.chat.History())
		if rain := p.rain.State(); rain != nil {
			bus.BroadcastTo(connID, EventRainStarted, RainStartedPayload{
				RainID:       rain.RainID,
				HostID:       rain.HostID,
				HostUsername: rain.HostUsername,
				TotalAmount:  rain.TotalAmount,
				Duration:     rain.Duration,
				EndsAt:       rain.EndsAt,
			})
		}
	})
	return connID
}

// Disconnect drops the session. A placed crash bet stays in its round.
func (p *Platform) Disconnect(connID string) {
	p.deps.Bus.Unregister(connID)
	p.deps.Loop.Do(func() {
		p.deps.Registry.Remove(connID)
	})
}

// Handle decodes one client frame and runs it on the loop. The returned error
// is the rejection already reported to the client, if any.
func (p *Platform) Handle(ctx context.Context, connID string, raw []byte) error {
	cmd, err := DecodeInbound(raw)
	if err != nil {
		p.rejectFrame(connID, err)
		return err
	}

	p.deps.Loop.Do(func() {
		err = p.dispatch(ctx, connID, cmd)
	})
	return err
}

// frameErrors maps a command to the game label and event its decode failures
// are reported on. Anything else gets the generic error event.
var frameErrors = map[string]struct{ game, event string }{
	InCrashJoin:    {metrics.GameCrash, EventCrashError},
	InCrashCashout: {metrics.GameCrash, EventCrashError},
	InJackpotJoin:  {metrics.GameJackpot, EventJackpotError},
	InRainStart:    {metrics.GameRain, EventRainError},
	InRainJoin:     {metrics.GameRain, EventRainError},
	InChatMessage:  {metrics.GameChat, EventChatError},
}

func (p *Platform) rejectFrame(connID string, err error) {
	var de *DecodeError
	event := ""
	if errors.As(err, &de) {
		event = de.Event
		if de.Cause() != nil {
			log.WithError(de.Cause()).WithFields(log.Fields{"conn": connID, "event": event}).Debug("[WS] Frame rejected")
		}
	}

	if event == InAuthenticate {
		metrics.Rejections.WithLabelValues("auth", errorKind(err)).Inc()
		p.deps.Bus.BroadcastTo(connID, EventAuthenticated, AuthenticatedPayload{Message: publicMessage(err)})
		return
	}
	if route, ok := frameErrors[event]; ok {
		p.deps.reject(route.game, route.event, connID, err)
		return
	}
	metrics.Rejections.WithLabelValues("protocol", errorKind(err)).Inc()
	p.deps.Bus.BroadcastTo(connID, EventError, ErrorPayload{Message: publicMessage(err)})
}

func (p *Platform) dispatch(parent context.Context, connID string, cmd Inbound) error {
	timeout := p.deps.WalletTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	switch c := cmd.(type) {
	case AuthenticateCmd:
		conn, err := p.deps.Registry.Authenticate(ctx, connID, c.User)
		if err != nil {
			metrics.Rejections.WithLabelValues("auth", errorKind(err)).Inc()
			p.deps.Bus.BroadcastTo(connID, EventAuthenticated, AuthenticatedPayload{Message: publicMessage(err)})
			return err
		}
		user := conn.User
		p.deps.Bus.BroadcastTo(connID, EventAuthenticated, AuthenticatedPayload{Success: true, User: &user})
		return nil
	case CrashJoinCmd:
		return p.crash.Join(ctx, connID, c.BetAmount)
	case CrashCashoutCmd:
		return p.crash.Cashout(ctx, connID)
	case JackpotJoinCmd:
		return p.jackpot.Join(ctx, connID, c.BetAmount)
	case ChatMessageCmd:
		return p.chat.Send(connID, c.Content)
	case RainStartCmd:
		return p.rain.StartRain(ctx, connID, c.TotalAmount)
	case RainJoinCmd:
		return p.rain.Join(ctx, c.RainID, connID)
	case PingCmd:
		p.deps.Bus.BroadcastTo(connID, EventPong, PongPayload{Timestamp: p.deps.Loop.Now().UnixMilli()})
		return nil
	default:
		return ErrMalformedMessage
	}
}

// Stats is the full dump served on /api/stats.
func (p *Platform) Stats() Stats {
	var s Stats
	p.deps.Loop.Do(func() {
		s = Stats{
			ConnectedUsers: p.deps.Registry.Count(),
			Connections:    p.deps.Bus.GetClientCount(),
			Crash:          p.crash.State(),
			Jackpot:        p.jackpot.State(),
			Rain:           p.rain.State(),
		}
	})
	return s
}

func (p *Platform) Health() Health {
	var h Health
	p.deps.Loop.Do(func() {
		h = Health{
			ConnectedUsers: p.deps.Registry.Count(),
			CrashActive:    p.crash.State().IsActive,
			JackpotActive:  p.jackpot.State().IsActive,
			RainActive:     p.rain.State() != nil,
		}
	})
	return h
}

// Watchdog runs every engine's stall check and returns how many were rescued.
func (p *Platform) Watchdog() int {
	rescued := 0
	p.deps.Loop.Do(func() {
		now := p.deps.Loop.Now()
		for _, e := range p.engines {
			if e.Watchdog(now) {
				rescued++
			}
		}
	})
	return rescued
}

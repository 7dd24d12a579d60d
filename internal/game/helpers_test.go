package game

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"skinbet/internal/config"
	"skinbet/internal/eventloop"
	"skinbet/internal/history"
	"skinbet/internal/wallet"
)

var epoch = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// uniformFor returns the draw that maps to point under a 1% house edge.
func uniformFor(point float64) float64 {
	return math.Exp(-(point - 1 + 0.0005) / 0.99)
}

// fixedRandom replays scripted draws, repeating the last one when exhausted.
type fixedRandom struct {
	floats []float64
	ints   []int64
}

func (f *fixedRandom) Float64() float64 {
	v := f.floats[0]
	if len(f.floats) > 1 {
		f.floats = f.floats[1:]
	}
	return v
}

func (f *fixedRandom) Int63n(n int64) int64 {
	v := f.ints[0]
	if len(f.ints) > 1 {
		f.ints = f.ints[1:]
	}
	if v >= n {
		panic("scripted draw out of range")
	}
	return v
}

type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// captureSender records every frame it is offered.
type captureSender struct {
	mu     sync.Mutex
	frames []frame
}

func (c *captureSender) Send(msg []byte) bool {
	var f frame
	if err := json.Unmarshal(msg, &f); err != nil {
		panic(err)
	}
	c.mu.Lock()
	c.frames = append(c.frames, f)
	c.mu.Unlock()
	return true
}

func (c *captureSender) all(event string) []json.RawMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []json.RawMessage
	for _, f := range c.frames {
		if f.Type == event {
			out = append(out, f.Data)
		}
	}
	return out
}

func (c *captureSender) count(event string) int {
	return len(c.all(event))
}

// last decodes the newest frame of event into v and fails the test if there is none.
func (c *captureSender) last(t *testing.T, event string, v any) {
	t.Helper()
	frames := c.all(event)
	require.NotEmpty(t, frames, "no %s frame received", event)
	require.NoError(t, json.Unmarshal(frames[len(frames)-1], v))
}

func (c *captureSender) reset() {
	c.mu.Lock()
	c.frames = nil
	c.mu.Unlock()
}

func testConfig() *config.Config {
	return &config.Config{
		WalletTimeout: time.Second,
		Crash: config.Crash{
			BettingWindow:  5 * time.Second,
			TickInterval:   100 * time.Millisecond,
			Cooldown:       10 * time.Second,
			MultiplierStep: 0.01,
			HouseEdge:      0.01,
			MaxCrashPoint:  1000,
			HistorySize:    20,
		},
		Jackpot: config.Jackpot{
			RoundDuration:  60 * time.Second,
			TicketsPerUnit: 10,
			HouseEdge:      0.05,
			RestartDelay:   3 * time.Second,
			NextRoundDelay: 5 * time.Second,
		},
		Rain: config.Rain{
			Duration:  30 * time.Second,
			MinAmount: 1,
		},
		Chat: config.Chat{
			MaxLength:   500,
			HistorySize: 50,
		},
	}
}

// flakyWallet refuses credits while failCredits is set.
type flakyWallet struct {
	*wallet.Memory
	failCredits bool
}

func (f *flakyWallet) Credit(ctx context.Context, userID string, amount decimal.Decimal) (decimal.Decimal, error) {
	if f.failCredits {
		return decimal.Zero, errors.New("wallet unavailable")
	}
	return f.Memory.Credit(ctx, userID, amount)
}

type harness struct {
	t        *testing.T
	loop     *eventloop.Manual
	wallet   *wallet.Memory
	flaky    *flakyWallet
	history  *history.Memory
	rng      *fixedRandom
	platform *Platform
	ctx      context.Context
}

type player struct {
	connID string
	out    *captureSender
}

func newHarness(t *testing.T, cfg *config.Config, rng *fixedRandom) *harness {
	t.Helper()
	if cfg == nil {
		cfg = testConfig()
	}
	if rng == nil {
		rng = &fixedRandom{floats: []float64{uniformFor(2.00)}, ints: []int64{0}}
	}
	h := &harness{
		t:       t,
		loop:    eventloop.NewManual(epoch),
		wallet:  wallet.NewMemory(),
		history: &history.Memory{},
		rng:     rng,
		ctx:     context.Background(),
	}
	h.flaky = &flakyWallet{Memory: h.wallet}
	h.platform = NewPlatform(Options{
		Config:  cfg,
		Loop:    h.loop,
		Wallet:  h.flaky,
		History: h.history,
		Random:  rng,
	})
	return h
}

// join connects and authenticates a user with the given starting balance.
func (h *harness) join(userID, balance string) *player {
	h.t.Helper()
	out := &captureSender{}
	connID := h.platform.Connect(out)
	_, err := h.platform.Registry().Authenticate(h.ctx, connID, UserSnapshot{
		UserID:   userID,
		Username: userID + "-name",
		Balance:  dec(balance),
	})
	require.NoError(h.t, err)
	return &player{connID: connID, out: out}
}

func (h *harness) balance(userID string) decimal.Decimal {
	h.t.Helper()
	b, err := h.wallet.Balance(h.ctx, userID)
	require.NoError(h.t, err)
	return b
}

func (h *harness) assertBalance(userID, want string) {
	h.t.Helper()
	got := h.balance(userID)
	require.True(h.t, got.Equal(dec(want)), "balance of %s = %s, want %s", userID, got, want)
}

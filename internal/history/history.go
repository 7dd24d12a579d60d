// Package history is the write-only ledger of settled rounds. Engines hand it
// records as rounds finish; nothing is ever read back into game state.
package history

import (
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// Record is a settled round ready to be written.
type Record interface {
	queue(b *pgx.Batch)
}

// Recorder accepts records without blocking the caller.
type Recorder interface {
	Record(r Record)
}

type CrashRound struct {
	ID         string
	CrashPoint decimal.Decimal
	StartedAt  time.Time
	CrashedAt  time.Time
	Bets       []CrashBet
}

type CrashBet struct {
	UserID            string
	Username          string
	BetAmount         decimal.Decimal
	CashedOut         bool
	CashOutMultiplier decimal.NullDecimal
	WinAmount         decimal.Decimal
}

type JackpotRound struct {
	ID            string
	TotalPot      decimal.Decimal
	Payout        decimal.Decimal
	// Unpaid is the part of Payout the wallet did not accept.
	Unpaid        decimal.Decimal
	WinnerID      string
	WinningTicket int64
	TotalTickets  int64
	EndedAt       time.Time
	Entries       []JackpotEntry
}

type JackpotEntry struct {
	UserID    string
	Username  string
	BetAmount decimal.Decimal
	Tickets   int64
	JoinedAt  time.Time
}

type RainEvent struct {
	ID           string
	HostID       string
	TotalAmount  decimal.Decimal
	Share        decimal.Decimal
	Participants int
	Refunded     decimal.Decimal
	Unpaid       decimal.Decimal
	EndedAt      time.Time
}

// Nop drops every record.
type Nop struct{}

func (Nop) Record(Record) {}

// Memory keeps records in a slice.
type Memory struct {
	mu      sync.Mutex
	records []Record
}

func (m *Memory) Record(r Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, r)
}

func (m *Memory) Records() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, len(m.records))
	copy(out, m.records)
	return out
}

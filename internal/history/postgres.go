package history

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"

	"skinbet/internal/metrics"
)

const (
	DefaultQueueSize = 256
	writeTimeout     = 5 * time.Second
)

// Writer persists records to PostgreSQL on its own goroutine. Record never
// blocks: when the queue is full the record is dropped and counted.
type Writer struct {
	db    *pgxpool.Pool
	queue chan Record

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewWriter(db *pgxpool.Pool, queueSize int) *Writer {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Writer{
		db:    db,
		queue: make(chan Record, queueSize),
	}
}

func (w *Writer) Start(ctx context.Context) {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.consumeLoop()
	log.WithField("queue", cap(w.queue)).Info("[HISTORY] Writer started")
}

// Stop ends the consumer and writes whatever is still queued.
func (w *Writer) Stop(ctx context.Context) {
	if w.cancel != nil {
		w.cancel()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		log.Warn("[HISTORY] Writer stop timed out")
		return
	}

	for {
		select {
		case r := <-w.queue:
			w.write(ctx, r)
		default:
			log.Info("[HISTORY] Writer stopped")
			return
		}
	}
}

func (w *Writer) Record(r Record) {
	select {
	case w.queue <- r:
	default:
		metrics.HistoryDropped.Inc()
		log.Warn("[HISTORY] Queue full, dropping record")
	}
}

func (w *Writer) consumeLoop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case r := <-w.queue:
			w.write(w.ctx, r)
		}
	}
}

func (w *Writer) write(parent context.Context, r Record) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), writeTimeout)
	defer cancel()

	batch := &pgx.Batch{}
	r.queue(batch)

	err := pgx.BeginFunc(ctx, w.db, func(tx pgx.Tx) error {
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		metrics.HistoryWriteErrors.Inc()
		log.WithError(err).WithField("statements", batch.Len()).Error("[HISTORY] Write failed")
	}
}

func (r CrashRound) queue(b *pgx.Batch) {
	b.Queue(`
		INSERT INTO crash_rounds (id, crash_point, started_at, crashed_at)
		VALUES ($1, $2::numeric, $3, $4)
		ON CONFLICT (id) DO NOTHING
	`, r.ID, r.CrashPoint.String(), r.StartedAt, r.CrashedAt)

	for _, bet := range r.Bets {
		var cashOut *string
		if bet.CashOutMultiplier.Valid {
			s := bet.CashOutMultiplier.Decimal.String()
			cashOut = &s
		}
		b.Queue(`
			INSERT INTO crash_bets (round_id, user_id, username, bet_amount, cashed_out, cash_out_multiplier, win_amount)
			VALUES ($1, $2, $3, $4::numeric, $5, $6::numeric, $7::numeric)
		`, r.ID, bet.UserID, bet.Username, bet.BetAmount.String(), bet.CashedOut, cashOut, bet.WinAmount.String())
	}
}

func (r JackpotRound) queue(b *pgx.Batch) {
	b.Queue(`
		INSERT INTO jackpot_rounds (id, total_pot, payout, unpaid, winner_id, winning_ticket, total_tickets, ended_at)
		VALUES ($1, $2::numeric, $3::numeric, $4::numeric, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`, r.ID, r.TotalPot.String(), r.Payout.String(), r.Unpaid.String(), r.WinnerID, r.WinningTicket, r.TotalTickets, r.EndedAt)

	for _, e := range r.Entries {
		b.Queue(`
			INSERT INTO jackpot_entries (round_id, user_id, username, bet_amount, tickets, joined_at)
			VALUES ($1, $2, $3, $4::numeric, $5, $6)
		`, r.ID, e.UserID, e.Username, e.BetAmount.String(), e.Tickets, e.JoinedAt)
	}
}

func (r RainEvent) queue(b *pgx.Batch) {
	b.Queue(`
		INSERT INTO rain_events (id, host_id, total_amount, share, participants, refunded, unpaid, ended_at)
		VALUES ($1, $2, $3::numeric, $4::numeric, $5, $6::numeric, $7::numeric, $8)
		ON CONFLICT (id) DO NOTHING
	`, r.ID, r.HostID, r.TotalAmount.String(), r.Share.String(), r.Participants, r.Refunded.String(), r.Unpaid.String(), r.EndedAt)
}

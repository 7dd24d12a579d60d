// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Connection metrics
var (
	ConnectionsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "connections_open",
		Help:      "Websocket connections registered on the broadcast bus.",
	})

	UsersAuthenticated = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "users_authenticated",
		Help:      "Authenticated sessions in the connection registry.",
	})

	BroadcastDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "broadcast_dropped_total",
		Help:      "Outbound messages dropped because a connection buffer was full.",
	})

	Disconnects = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "disconnects_total",
		Help:      "Closed websocket connections by reason.",
	}, []string{LabelReason})
)

// Game metrics
var (
	BetsPlaced = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bets_placed_total",
		Help:      "Accepted bets and rain starts.",
	}, []string{LabelGame})

	AmountWagered = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "amount_wagered_total",
		Help:      "Sum of accepted bet amounts.",
	}, []string{LabelGame})

	AmountPaid = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "amount_paid_total",
		Help:      "Sum of credited payouts.",
	}, []string{LabelGame})

	PayoutFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payout_failures_total",
		Help:      "Payouts and refunds the wallet refused. They are recorded as unpaid in history.",
	}, []string{LabelGame})

	Rejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rejections_total",
		Help:      "Rejected commands by game and error kind.",
	}, []string{LabelGame, LabelKind})

	RoundsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rounds_completed_total",
		Help:      "Completed rounds by game.",
	}, []string{LabelGame})

	CrashPoints = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "crash_point",
		Help:      "Distribution of generated crash points.",
		Buckets:   []float64{1.01, 1.5, 2, 3, 5, 10, 20, 50, 100},
	})

	WatchdogRecoveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "watchdog_recoveries_total",
		Help:      "Stalled phases forced forward by the watchdog.",
	}, []string{LabelGame})
)

// Runtime metrics
var (
	LoopPanics = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "loop_panics_total",
		Help:      "Event loop tasks that panicked and were recovered.",
	})

	HistoryDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "history_dropped_total",
		Help:      "History records dropped because the writer queue was full.",
	})

	HistoryWriteErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "history_write_errors_total",
		Help:      "Failed history inserts.",
	})
)

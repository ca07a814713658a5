// Package metrics holds the Prometheus collectors for the points engine and
// the HTTP server that exposes them.
package metrics

import (
	"wagerboard/internal/apperr"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "wagerboard"

// Registry is the registry every collector in this package is registered on.
var Registry = prometheus.NewRegistry()

var (
	BalanceAdjustments = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "balance_adjustments_total",
		Help:      "Manual balance adjustments applied.",
	})
	ChallengeCompletions = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "challenge_completions_total",
		Help:      "Challenge completions recorded.",
	})
	ChallengeRewardPoints = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "challenge_reward_points_total",
		Help:      "Points credited by challenge completions.",
	})
	EventsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_created_total",
		Help:      "Betting events created.",
	})
	EventsSettled = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_settled_total",
		Help:      "Betting events settled.",
	})
	BetsPlaced = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bets_placed_total",
		Help:      "Bets accepted.",
	})
	BetStakePoints = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bet_stake_points_total",
		Help:      "Points debited as bet stakes.",
	})
	BetPayoutPoints = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bet_payout_points_total",
		Help:      "Points credited to winning bets, stake included.",
	})
	SettlementDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "settlement_duration_seconds",
		Help:      "Wall time of SettleEvent calls that reached the payout phase.",
		Buckets:   prometheus.DefBuckets,
	})
	GambleRounds = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "gamble_rounds_total",
		Help:      "50/50 gamble rounds by result.",
	}, []string{"result"})
	OperationErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "operation_errors_total",
		Help:      "Failed engine operations by operation and error kind.",
	}, []string{"op", "kind"})
	NotifyDeliveries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notify_deliveries_total",
		Help:      "Notification delivery attempts by result (sent, failed, retried, dropped).",
	}, []string{"result"})
	NotifyQueueLen = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "notify_queue_len",
		Help:      "Notifications waiting in the dispatch queue.",
	})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		BalanceAdjustments,
		ChallengeCompletions,
		ChallengeRewardPoints,
		EventsCreated,
		EventsSettled,
		BetsPlaced,
		BetStakePoints,
		BetPayoutPoints,
		SettlementDuration,
		GambleRounds,
		OperationErrors,
		NotifyDeliveries,
		NotifyQueueLen,
	)
}

// RecordError counts a failed operation under its error kind. nil is ignored.
func RecordError(op string, err error) {
	if err == nil {
		return
	}
	OperationErrors.WithLabelValues(op, apperr.KindOf(err).String()).Inc()
}

package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ClaimAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tickets_claim_attempts_total",
			Help: "Seat claim attempts by outcome",
		},
		[]string{"outcome"},
	)

	CancelAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tickets_cancel_attempts_total",
			Help: "Reservation cancel attempts by outcome",
		},
		[]string{"outcome"},
	)

	AbuseFlagsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tickets_abuse_flags_total",
			Help: "Abuse flags inserted on blocked cancellations",
		},
	)

	AbuseCandidatesGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tickets_abuse_candidates",
			Help: "Users at or above the cancel reporting threshold, per sweep",
		},
	)

	DBTxDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tickets_db_tx_seconds",
			Help:    "Duration of DB transactions",
			Buckets: prometheus.DefBuckets,
		},
	)

	OutboxLag = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tickets_outbox_lag_seconds",
			Help: "Age of the oldest unpublished outbox record",
		},
	)

	RateLimitExceeded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tickets_rate_limit_exceeded_total",
			Help: "Requests rejected by the rate limiter",
		},
	)
)

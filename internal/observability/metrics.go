package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for BreachLedger.
type Metrics struct {
	// --- Detection ---
	TicksAccepted     *prometheus.CounterVec
	TicksRejected     *prometheus.CounterVec
	TickDuration      *prometheus.HistogramVec
	BreachesEmitted   *prometheus.CounterVec
	BreachesSuppressed *prometheus.CounterVec
	SequenceGaps      *prometheus.CounterVec
	PartitionDepth    *prometheus.GaugeVec
	PartitionPaused   *prometheus.GaugeVec
	ActiveRuleVersion prometheus.Gauge

	// --- Fan-out ---
	FanoutEvents       *prometheus.CounterVec
	FanoutDuration     prometheus.Histogram
	ShardDuration      prometheus.Histogram
	ShardRetries       prometheus.Counter
	SubscribersListed  prometheus.Counter
	LedgerInserts      prometheus.Counter
	LedgerConflicts    prometheus.Counter
	LedgerErrors       *prometheus.CounterVec
	IntentsEmitted     prometheus.Counter
	IntentEnqueueFails prometheus.Counter
	LedgerPurged       prometheus.Counter

	// --- Event log ---
	BreachCommits     prometheus.Counter
	BreachRepublished prometheus.Counter
	StateStoreErrors  prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	tickBuckets := []float64{
		0.000005, 0.00001, 0.000025, 0.00005, 0.0001,
		0.00025, 0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	fanoutBuckets := []float64{
		0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0,
	}

	return &Metrics{
		TicksAccepted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "breach_ticks_accepted_total",
			Help: "Ticks evaluated by the breach detector",
		}, []string{"partition"}),

		TicksRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "breach_ticks_rejected_total",
			Help: "Ticks dropped (invalid_reference_price, duplicate, parse)",
		}, []string{"reason"}),

		TickDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "breach_tick_duration_seconds",
			Help:    "Time to process a single tick",
			Buckets: tickBuckets,
		}, []string{"partition"}),

		BreachesEmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "breach_events_emitted_total",
			Help: "First-breach events committed and emitted",
		}, []string{"direction"}),

		BreachesSuppressed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "breach_events_suppressed_total",
			Help: "Ticks over threshold on an already-breached day",
		}, []string{"instrument"}),

		SequenceGaps: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "breach_tick_sequence_gaps_total",
			Help: "Source sequence gaps observed (tolerated)",
		}, []string{"instrument"}),

		PartitionDepth: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "breach_partition_queue_depth",
			Help: "Ticks queued per detector partition",
		}, []string{"partition"}),

		PartitionPaused: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "breach_partition_paused",
			Help: "1 while a partition is paused on state-store failure",
		}, []string{"partition"}),

		ActiveRuleVersion: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "breach_active_rule_version",
			Help: "Currently active rule version",
		}),

		FanoutEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "fanout_events_processed_total",
			Help: "Breach events processed by the fan-out engine",
		}, []string{"outcome"}),

		FanoutDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "fanout_event_duration_seconds",
			Help:    "Full fan-out time per breach event",
			Buckets: fanoutBuckets,
		}),

		ShardDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "fanout_shard_duration_seconds",
			Help:    "Per-shard enumeration and insert time",
			Buckets: fanoutBuckets,
		}),

		ShardRetries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "fanout_shard_retries_total",
			Help: "Shard attempts retried after failure or timeout",
		}),

		SubscribersListed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "fanout_subscribers_listed_total",
			Help: "Subscribers enumerated across all shards",
		}),

		LedgerInserts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "fanout_ledger_inserts_total",
			Help: "Successful conditional ledger inserts",
		}),

		LedgerConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "fanout_ledger_conflicts_total",
			Help: "Conditional inserts skipped because the user was already notified",
		}),

		LedgerErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "fanout_ledger_errors_total",
			Help: "Ledger store failures",
		}, []string{"op"}),

		IntentsEmitted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "fanout_delivery_intents_total",
			Help: "Delivery intents enqueued to the outbox",
		}),

		IntentEnqueueFails: promauto.NewCounter(prometheus.CounterOpts{
			Name: "fanout_intent_enqueue_failures_total",
			Help: "Intent enqueue failures after ledger commit (tolerated)",
		}),

		LedgerPurged: promauto.NewCounter(prometheus.CounterOpts{
			Name: "fanout_ledger_purged_total",
			Help: "Expired ledger entries removed by the TTL sweep",
		}),

		BreachCommits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "breach_log_commits_total",
			Help: "Breach state transitions committed to the event log",
		}),

		BreachRepublished: promauto.NewCounter(prometheus.CounterOpts{
			Name: "breach_log_republished_total",
			Help: "Committed breach events re-published on startup",
		}),

		StateStoreErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "breach_state_store_errors_total",
			Help: "State store failures (partition fail-closed)",
		}),
	}
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the gateway's Prometheus instruments. A fresh registry
// is created per instance so tests never collide on registration.
type Metrics struct {
	Registry *prometheus.Registry

	CacheHits       *prometheus.CounterVec
	CacheMisses     *prometheus.CounterVec
	NetworkFailures prometheus.Counter
	OfflineServed   prometheus.Counter
	QueueDepth      prometheus.Gauge
	EnqueuedTotal   prometheus.Counter
	ReplayTotal     *prometheus.CounterVec
	SweepRemoved    prometheus.Counter
}

// New creates a metrics set backed by its own registry
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		Registry: registry,
		CacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "offgate",
			Name:      "cache_hits_total",
			Help:      "Cache hits served, by strategy.",
		}, []string{"strategy"}),
		CacheMisses: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "offgate",
			Name:      "cache_misses_total",
			Help:      "Cache misses, by strategy.",
		}, []string{"strategy"}),
		NetworkFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "offgate",
			Name:      "network_failures_total",
			Help:      "Upstream fetches that failed at the network level.",
		}),
		OfflineServed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "offgate",
			Name:      "offline_responses_total",
			Help:      "Synthetic offline sentinel or fallback page responses served.",
		}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "offgate",
			Name:      "mutation_queue_depth",
			Help:      "Pending mutations awaiting replay.",
		}),
		EnqueuedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "offgate",
			Name:      "mutations_enqueued_total",
			Help:      "Mutations captured while the upstream was unreachable.",
		}),
		ReplayTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "offgate",
			Name:      "replay_attempts_total",
			Help:      "Replay outcomes, by result (replayed, failed, dropped).",
		}, []string{"result"}),
		SweepRemoved: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "offgate",
			Name:      "records_swept_total",
			Help:      "Expired data-cache records removed by the sweeper.",
		}),
	}
}

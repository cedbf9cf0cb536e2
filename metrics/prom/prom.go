package prom

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/IvanBrykalov/querycache/query"
)

// Adapter implements query.Metrics and exports Prometheus counters/gauges.
// Safe for concurrent use; all Prometheus metric types are goroutine-safe.
// One Adapter may serve every registry of a query.Client: the size gauges
// carry a "registry" label.
type Adapter struct {
	started  *prometheus.CounterVec
	settled  *prometheus.CounterVec
	duration *prometheus.HistogramVec
	dedups   prometheus.Counter
	evicts   *prometheus.CounterVec
	entries  *prometheus.GaugeVec
	idle     *prometheus.GaugeVec
}

// New constructs a Prometheus metrics adapter.
//   - reg:          registry to register metrics with (nil => prometheus.DefaultRegisterer)
//   - ns, sub:      Prometheus namespace and subsystem
//   - constLabels:  static labels applied to all metrics (may be nil)
func New(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *Adapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	a := &Adapter{
		started: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   sub,
				Name:        "runs_started_total",
				Help:        "Capability runs started, by trigger",
				ConstLabels: constLabels,
			},
			[]string{"kind"},
		),
		settled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   sub,
				Name:        "runs_settled_total",
				Help:        "Capability runs settled, by trigger and outcome",
				ConstLabels: constLabels,
			},
			[]string{"kind", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   ns,
				Subsystem:   sub,
				Name:        "run_duration_seconds",
				Help:        "Capability run latency",
				Buckets:     prometheus.DefBuckets,
				ConstLabels: constLabels,
			},
			[]string{"kind"},
		),
		dedups: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "dedup_total",
			Help:        "Run requests that joined an in-flight run",
			ConstLabels: constLabels,
		}),
		evicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   sub,
				Name:        "evictions_total",
				Help:        "Entry removals by reason",
				ConstLabels: constLabels,
			},
			[]string{"reason"},
		),
		entries: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace:   ns,
				Subsystem:   sub,
				Name:        "entries",
				Help:        "Number of resident entries, by registry",
				ConstLabels: constLabels,
			},
			[]string{"registry"},
		),
		idle: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace:   ns,
				Subsystem:   sub,
				Name:        "idle_entries",
				Help:        "Number of entries without subscribers, by registry",
				ConstLabels: constLabels,
			},
			[]string{"registry"},
		),
	}
	reg.MustRegister(a.started, a.settled, a.duration, a.dedups, a.evicts, a.entries, a.idle)
	return a
}

// RunStarted increments the started counter for kind.
func (a *Adapter) RunStarted(kind query.RunKind) {
	a.started.WithLabelValues(kind.String()).Inc()
}

// RunSettled counts the outcome and observes the run latency.
func (a *Adapter) RunSettled(kind query.RunKind, d time.Duration, err error) {
	a.settled.WithLabelValues(kind.String(), outcome(err)).Inc()
	a.duration.WithLabelValues(kind.String()).Observe(d.Seconds())
}

// Deduplicated increments the dedup counter.
func (a *Adapter) Deduplicated() { a.dedups.Inc() }

// Evict increments the eviction counter with a reason label.
func (a *Adapter) Evict(r query.EvictReason) {
	a.evicts.WithLabelValues(r.String()).Inc()
}

// Size updates the entry gauges of one registry.
func (a *Adapter) Size(registry string, entries, idle int) {
	a.entries.WithLabelValues(registry).Set(float64(entries))
	a.idle.WithLabelValues(registry).Set(float64(idle))
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Compile-time check: ensure Adapter implements query.Metrics.
var _ query.Metrics = (*Adapter)(nil)

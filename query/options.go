package query

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/IvanBrykalov/querycache/policy"
	"github.com/IvanBrykalov/querycache/policy/lru"
)

// Default registration settings.
const (
	DefaultStaleTime         = time.Duration(0)
	DefaultCleanTime         = 5 * time.Minute
	DefaultMutationCleanTime = time.Duration(0)
)

// EvictReason explains why an entry was removed from its registry.
type EvictReason int

const (
	// EvictCleanup: the clean time elapsed with no subscriber.
	EvictCleanup EvictReason = iota
	// EvictInvalidated: the entry was invalidated while nobody subscribed.
	EvictInvalidated
	// EvictIdleLimit: the idle policy purged it to honor Config.MaxIdle.
	EvictIdleLimit
	// EvictClosed: the registry was closed.
	EvictClosed
)

func (r EvictReason) String() string {
	switch r {
	case EvictCleanup:
		return "cleanup"
	case EvictInvalidated:
		return "invalidated"
	case EvictIdleLimit:
		return "idle_limit"
	case EvictClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// RunKind tells what triggered a capability run.
type RunKind int

const (
	// RunMount: a stale entry got a new subscriber or a one-shot Get.
	RunMount RunKind = iota
	// RunInvalidate: explicit invalidation.
	RunInvalidate
	// RunInterval: background revalidation timer.
	RunInterval
	// RunMutation: an explicit mutate call.
	RunMutation
)

func (k RunKind) String() string {
	switch k {
	case RunMount:
		return "mount"
	case RunInvalidate:
		return "invalidate"
	case RunInterval:
		return "interval"
	case RunMutation:
		return "mutation"
	default:
		return "unknown"
	}
}

// Metrics exposes registry-level observability hooks.
// NoopMetrics is used by default; metrics/prom provides a Prometheus adapter.
type Metrics interface {
	// RunStarted is called when a capability run begins.
	RunStarted(kind RunKind)
	// RunSettled is called when a run finishes; err is the domain error.
	RunSettled(kind RunKind, d time.Duration, err error)
	// Deduplicated is called when a run request joins an in-flight run.
	Deduplicated()
	// Evict is called for every entry removed from a registry.
	Evict(reason EvictReason)
	// Size reports the entry and idle entry counts of the named registry
	// after a change.
	Size(registry string, entries, idle int)
}

// Config carries the settings shared by every registry of a Client.
// Zero values are safe; defaults are applied by New, NewMutations and NewClient:
//   - nil Notifier => notifications are dropped
//   - nil Metrics  => NoopMetrics
//   - nil Logger   => discard
//   - nil Tracer   => noop tracer
//   - nil Clock    => real clock
//   - Shards <= 0  => auto (rounded up to power of two)
type Config struct {
	// Notifier wakes consumers when an entry they read changes.
	Notifier Notifier

	// Shards defines the number of registry shards. 0 = auto.
	Shards int

	// MaxIdle caps the number of idle entries (no subscriber, waiting for their
	// clean time) per registry; 0 disables the cap. The registry's IdlePolicy
	// picks the victims.
	MaxIdle int

	// BatchConcurrency bounds how many runs of one invalidation batch execute
	// at the same time; 0 = unbounded.
	BatchConcurrency int

	// Limiter, if set, throttles every capability run (Wait before Run).
	// A *rate.Limiter from golang.org/x/time/rate fits.
	Limiter Limiter

	// OnPanic is informed of panics recovered from Run and OnSettled.
	// The panicking entry settles with a *PanicError either way.
	OnPanic func(ctx context.Context, err *PanicError)

	// Observability
	Metrics Metrics
	Logger  *slog.Logger
	Tracer  trace.Tracer

	// Clock drives staleness, clean and interval timers. Tests use a fake.
	Clock clockwork.Clock
}

// Limiter admits capability runs. A run whose Wait fails settles with the
// wrapped error without calling Run.
type Limiter interface {
	Wait(ctx context.Context) error
}

// Options configures one registry.
type Options[K comparable, T any] struct {
	Config

	// Name labels the registry in logs and size metrics; empty => "query"
	// or "mutation". Client names registries after their capability type.
	Name string

	// IdlePolicy orders idle entries for MaxIdle; nil => LRU.
	IdlePolicy policy.Policy[CacheKey[K]]

	// OnEvict is called for every entry removed from the registry, outside
	// registry locks.
	OnEvict func(key CacheKey[K], state State[T], reason EvictReason)
}

func (c Config) withDefaults() Config {
	if c.Notifier == nil {
		c.Notifier = noopNotifier{}
	}
	if c.Metrics == nil {
		c.Metrics = NoopMetrics{}
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	if c.Tracer == nil {
		c.Tracer = noop.NewTracerProvider().Tracer("")
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.MaxIdle < 0 {
		c.MaxIdle = 0
	}
	return c
}

func (o Options[K, T]) withDefaults() Options[K, T] {
	o.Config = o.Config.withDefaults()
	if o.IdlePolicy == nil {
		o.IdlePolicy = lru.New[CacheKey[K]]()
	}
	return o
}

// settings are the per-registration knobs.
type settings struct {
	staleTime time.Duration
	cleanTime time.Duration
	interval  time.Duration // 0 = never
	disabled  bool
	dedupe    bool
}

func (s settings) fingerprint() fingerprint {
	return fingerprint{stale: s.staleTime, clean: s.cleanTime, disabled: s.disabled}
}

func querySettings(opts []Option) settings {
	s := settings{staleTime: DefaultStaleTime, cleanTime: DefaultCleanTime}
	for _, o := range opts {
		o(&s)
	}
	return s
}

func mutationSettings(opts []Option) settings {
	s := settings{cleanTime: DefaultMutationCleanTime}
	for _, o := range opts {
		o(&s)
	}
	return s
}

// Option tunes one registration (Subscribe, Get, Peek).
type Option func(*settings)

// WithStaleTime sets how long a settled value is fresh enough to skip a run
// when a subscriber mounts. Default 0: always stale.
func WithStaleTime(d time.Duration) Option {
	return func(s *settings) {
		if d < 0 {
			d = 0
		}
		s.staleTime = d
	}
}

// WithCleanTime sets how long an entry survives without subscribers.
// Default 5 minutes for queries, 0 for mutations.
func WithCleanTime(d time.Duration) Option {
	return func(s *settings) {
		if d < 0 {
			d = 0
		}
		s.cleanTime = d
	}
}

// WithInterval requests background revalidation every d. When several
// subscribers of one entry request intervals, the shortest one wins.
// d <= 0 means never (the default).
func WithInterval(d time.Duration) Option {
	return func(s *settings) {
		if d < 0 {
			d = 0
		}
		s.interval = d
	}
}

// Disabled registers interest without running the capability on mount.
// Explicit invalidation still runs it.
func Disabled() Option {
	return func(s *settings) { s.disabled = true }
}

// Dedupe makes concurrent identical mutate calls (same entry and key) share
// one run. Mutations run independently by default.
func Dedupe() Option {
	return func(s *settings) { s.dedupe = true }
}

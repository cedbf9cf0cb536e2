package query

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// entry is the shared state machine of one cache key.
//
// Locking: mu guards the state and everything below it. Fields marked
// "shard+mu" are written with both the owning shard's lock and mu held, so
// holding either one is enough to read them.
type entry[K comparable, T any] struct {
	key CacheKey[K]
	cap Capability[K, T] // payload of the first registration
	set settings

	mu     sync.Mutex
	state  State[T]
	flight *flight // in-flight query run, nil when idle
	waiter *Waiter

	subs      map[SubscriberID]*subscriber
	intervals map[uint64]time.Duration // handle -> requested interval
	interval  time.Duration            // armed interval, 0 = none
	ticker    clockwork.Timer
	tickGen   uint64

	cleanup clockwork.Timer

	// shard+mu
	handles  int
	cleanGen uint64
	removed  bool

	// Idle list links; guarded by the shard lock.
	idle       bool
	prev, next *entry[K, T]
}

type subscriber struct {
	handles   int
	listening bool
}

// flight marks one run in progress; done is closed once the run settled.
type flight struct {
	done chan struct{}
}

func newEntry[K comparable, T any](key CacheKey[K], c Capability[K, T], s settings) *entry[K, T] {
	return &entry[K, T]{
		key:   key,
		cap:   c,
		set:   s,
		state: pendingState[T](),
		subs:  make(map[SubscriberID]*subscriber),
	}
}

// Key implements policy.Node.
func (e *entry[K, T]) Key() CacheKey[K] { return e.key }

// reserveLocked opens a new flight without touching the state.
func (e *entry[K, T]) reserveLocked() *flight {
	f := &flight{done: make(chan struct{})}
	e.flight = f
	return f
}

// beginLocked moves the entry to Loading and opens a new flight.
func (e *entry[K, T]) beginLocked() *flight {
	e.state = e.state.toLoading()
	return e.reserveLocked()
}

// listenersLocked snapshots the subscribers to notify.
func (e *entry[K, T]) listenersLocked() []SubscriberID {
	if len(e.subs) == 0 {
		return nil
	}
	ids := make([]SubscriberID, 0, len(e.subs))
	for id, s := range e.subs {
		if s.listening {
			ids = append(ids, id)
		}
	}
	return ids
}

func (e *entry[K, T]) addHandleLocked(id SubscriberID, hid uint64, interval time.Duration) {
	e.handles++
	s := e.subs[id]
	if s == nil {
		s = &subscriber{}
		e.subs[id] = s
	}
	s.handles++
	if interval > 0 {
		if e.intervals == nil {
			e.intervals = make(map[uint64]time.Duration)
		}
		e.intervals[hid] = interval
	}
}

func (e *entry[K, T]) dropHandleLocked(id SubscriberID, hid uint64) {
	e.handles--
	if s := e.subs[id]; s != nil {
		s.handles--
		if s.handles <= 0 {
			delete(e.subs, id)
		}
	}
	delete(e.intervals, hid)
}

// shortestInterval returns the governing revalidation interval.
func (e *entry[K, T]) shortestInterval() time.Duration {
	var min time.Duration
	for _, d := range e.intervals {
		if min == 0 || d < min {
			min = d
		}
	}
	return min
}

func (e *entry[K, T]) stopTickerLocked() {
	if e.ticker != nil {
		e.ticker.Stop()
		e.ticker = nil
	}
	e.interval = 0
	e.tickGen++
}

func (e *entry[K, T]) stopCleanupLocked() {
	if e.cleanup != nil {
		e.cleanup.Stop()
		e.cleanup = nil
	}
	e.cleanGen++
}

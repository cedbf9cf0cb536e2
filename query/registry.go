package query

import (
	"context"
	"hash/maphash"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/IvanBrykalov/querycache/internal/util"
)

// Registry owns every entry of one capability family (one K, T pair) and is
// the sole mutator of their lifecycle. All methods are safe for concurrent
// use by multiple goroutines.
type Registry[K comparable, T any] struct {
	shards []*shard[K, T]
	seed   maphash.Seed
	opt    Options[K, T]
	log    *slog.Logger

	mutation bool
	handles  atomic.Uint64

	// Invalidation batches run one at a time.
	batches *semaphore.Weighted

	// Background work (runs, timers, batches) is tracked so Close can wait.
	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// Stats is a point-in-time summary of a registry.
type Stats struct {
	Entries   int
	Idle      int
	Runs      uint64
	Dedups    uint64
	Evictions uint64
}

// New constructs a query registry.
// Defaults are documented on Config; a nil IdlePolicy means LRU.
func New[K comparable, T any](opt Options[K, T]) *Registry[K, T] {
	return newRegistry(opt, false)
}

func newRegistry[K comparable, T any](opt Options[K, T], mutation bool) *Registry[K, T] {
	opt = opt.withDefaults()

	n := util.ShardCount(opt.Shards)
	perShardIdle := 0
	if opt.MaxIdle > 0 {
		perShardIdle = (opt.MaxIdle + n - 1) / n // ceil
	}
	shards := make([]*shard[K, T], n)
	for i := range shards {
		shards[i] = newShard[K, T](perShardIdle, opt.IdlePolicy)
	}

	component := "query"
	if mutation {
		component = "mutation"
	}
	if opt.Name == "" {
		opt.Name = component
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry[K, T]{
		shards:   shards,
		seed:     maphash.MakeSeed(),
		opt:      opt,
		log:      opt.Logger.With(slog.String("component", component), slog.String("registry", opt.Name)),
		mutation: mutation,
		batches:  semaphore.NewWeighted(1),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Subscribe attaches consumer id to the entry of (c, key), creating it if
// needed, and runs the capability when the entry is stale (unless Disabled).
// The run is reserved before Subscribe returns, so concurrent mounts join
// it; the entry keeps its state (Pending on first mount) until the run
// starts and turns it Loading.
//
// The returned handle must be closed exactly once the consumer goes away.
// Subscribing to a closed registry panics.
func (r *Registry[K, T]) Subscribe(id SubscriberID, c Capability[K, T], key K, opts ...Option) *Subscription[K, T] {
	if r.isClosed() {
		panic("query: Subscribe on closed registry")
	}
	set := querySettings(opts)
	h := r.newHandle(id, set.interval)
	e, ok := r.attach(newCacheKey(c, key, set), c, set, h)
	if ok && !set.disabled {
		r.maybeRun(e, h, RunMount)
	}
	return &Subscription[K, T]{binding: binding[K, T]{r: r, e: e, h: h}}
}

// Get is a one-shot read: it creates the entry if needed, runs the capability
// when stale (joining an in-flight run otherwise) and waits for the result.
// Afterwards the entry is treated as unsubscribed and follows its clean time.
// Get applies the same defaults as Subscribe, so both share entries.
//
// The returned error is ErrClosed or ctx.Err(); domain errors are in the state.
func (r *Registry[K, T]) Get(ctx context.Context, c Capability[K, T], key K, opts ...Option) (State[T], error) {
	if r.isClosed() {
		return State[T]{}, ErrClosed
	}
	set := querySettings(opts)
	set.interval = 0
	h := r.newAnonHandle()
	e, ok := r.attach(newCacheKey(c, key, set), c, set, h)
	if !ok {
		return State[T]{}, ErrClosed
	}
	defer r.detach(e, h)

	if !set.disabled {
		if f := r.maybeRun(e, h, RunMount); f != nil {
			select {
			case <-f.done:
			case <-ctx.Done():
				return e.snapshot(), ctx.Err()
			}
		}
	}
	return e.snapshot(), nil
}

// Peek returns the state of (c, key) without creating, subscribing or running.
func (r *Registry[K, T]) Peek(c Capability[K, T], key K, opts ...Option) (State[T], bool) {
	ck := newCacheKey(c, key, querySettings(opts))
	s := r.shardFor(ck)
	s.mu.Lock()
	e, ok := s.m[ck]
	if ok {
		s.touchLocked(e)
	}
	s.mu.Unlock()
	if !ok {
		return State[T]{}, false
	}
	return e.snapshot(), true
}

// InvalidateMatching re-runs every entry whose capability matches key.
// Capabilities implementing Matcher decide; all others always match, so
// without a Matcher every entry of the registry re-runs. Use InvalidateKeys
// to select entries by key parts. It waits until the batch has settled or
// ctx is done.
func (r *Registry[K, T]) InvalidateMatching(ctx context.Context, key K) error {
	return r.invalidateWait(ctx, func(e *entry[K, T]) bool {
		if m, ok := e.cap.(Matcher[K]); ok {
			return m.Matches(key)
		}
		return true
	})
}

// InvalidateKeys re-runs every entry whose key contains all of parts
// (see Composite). It waits until the batch has settled or ctx is done.
func (r *Registry[K, T]) InvalidateKeys(ctx context.Context, parts ...any) error {
	return r.invalidateWait(ctx, func(e *entry[K, T]) bool {
		return containsAll(e.key.key, parts)
	})
}

// InvalidateAll re-runs every entry of the registry.
func (r *Registry[K, T]) InvalidateAll(ctx context.Context) error {
	return r.invalidateWait(ctx, func(*entry[K, T]) bool { return true })
}

// InvalidateFunc re-runs every entry for which pred returns true.
// pred is called under registry locks and must not call back into r.
func (r *Registry[K, T]) InvalidateFunc(ctx context.Context, pred func(c Capability[K, T], key K) bool) error {
	return r.invalidateWait(ctx, func(e *entry[K, T]) bool { return pred(e.cap, e.key.key) })
}

// Len returns the number of entries across all shards.
func (r *Registry[K, T]) Len() int {
	total := 0
	for _, s := range r.shards {
		n, _ := s.len()
		total += n
	}
	return total
}

// Stats returns a snapshot of registry counters.
func (r *Registry[K, T]) Stats() Stats {
	var st Stats
	for _, s := range r.shards {
		n, idle := s.len()
		st.Entries += n
		st.Idle += idle
		st.Runs += s.runs.Load()
		st.Dedups += s.dedups.Load()
		st.Evictions += s.evicts.Load()
	}
	return st
}

// Close cancels in-flight runs, stops every timer, waits for background work
// and removes all entries. Pending waiters are resolved with ErrClosed.
// Close is idempotent.
func (r *Registry[K, T]) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	r.cancel()
	r.wg.Wait()

	for _, s := range r.shards {
		s.mu.Lock()
		var out []eviction[K, T]
		for _, e := range s.m {
			out = s.evictLocked(e, EvictClosed, out)
		}
		s.mu.Unlock()
		r.report(out)
	}
	r.reportSize()
	return nil
}

// -------------------- lifecycle --------------------

// handle is one attachment to an entry. Anonymous handles (one-shot Get)
// hold the entry alive without a subscriber identity.
type handle struct {
	id       SubscriberID
	hid      uint64
	interval time.Duration
	anon     bool
}

func (r *Registry[K, T]) newHandle(id SubscriberID, interval time.Duration) handle {
	return handle{id: id, hid: r.handles.Add(1), interval: interval}
}

func (r *Registry[K, T]) newAnonHandle() handle {
	return handle{hid: r.handles.Add(1), anon: true}
}

// attach gets or creates the entry and registers h on it. Once the registry
// is closed it returns a detached, removed entry and false instead, so that
// nothing is inserted behind Close's sweep.
func (r *Registry[K, T]) attach(ck CacheKey[K], c Capability[K, T], set settings, h handle) (*entry[K, T], bool) {
	ck.mutation = r.mutation
	s := r.shardFor(ck)

	s.mu.Lock()
	if r.isClosed() {
		s.mu.Unlock()
		e := newEntry(ck, c, set)
		e.removed = true
		return e, false
	}
	e := s.getOrCreateLocked(ck, c, set)
	s.leaveIdleLocked(e)
	e.mu.Lock()
	e.stopCleanupLocked()
	if h.anon {
		e.handles++
	} else {
		e.addHandleLocked(h.id, h.hid, h.interval)
		r.rearmTickerLocked(e)
	}
	e.mu.Unlock()
	s.mu.Unlock()

	r.reportSize()
	return e, true
}

// detach unregisters h. When the last handle leaves, the entry becomes idle:
// a clean time of zero removes it at once, otherwise a cleanup timer is armed.
// Detaching from a removed entry is a no-op.
func (r *Registry[K, T]) detach(e *entry[K, T], h handle) {
	s := r.shardFor(e.key)
	var out []eviction[K, T]

	s.mu.Lock()
	e.mu.Lock()
	if e.removed {
		e.mu.Unlock()
		s.mu.Unlock()
		return
	}
	if h.anon {
		e.handles--
	} else {
		e.dropHandleLocked(h.id, h.hid)
		r.rearmTickerLocked(e)
	}
	if e.handles > 0 {
		e.mu.Unlock()
		s.mu.Unlock()
		return
	}

	e.stopTickerLocked()
	if e.set.cleanTime <= 0 {
		e.mu.Unlock()
		out = s.evictLocked(e, EvictCleanup, out)
	} else {
		gen := e.cleanGen
		e.cleanup = r.opt.Clock.AfterFunc(e.set.cleanTime, func() { r.clean(e, gen) })
		e.mu.Unlock()
		out = s.enterIdleLocked(e, out)
	}
	s.mu.Unlock()

	r.report(out)
	r.reportSize()
}

// clean fires when an idle entry's clean time elapsed. It is a no-op if a
// subscriber came back in the meantime.
func (r *Registry[K, T]) clean(e *entry[K, T], gen uint64) {
	if !r.track() {
		return
	}
	defer r.wg.Done()

	s := r.shardFor(e.key)
	var out []eviction[K, T]
	s.mu.Lock()
	if !e.removed && e.handles == 0 && e.cleanGen == gen {
		out = s.evictLocked(e, EvictCleanup, out)
	}
	s.mu.Unlock()

	r.report(out)
	r.reportSize()
}

// rearmTickerLocked keeps the interval timer on the shortest requested
// interval. e.mu must be held.
func (r *Registry[K, T]) rearmTickerLocked(e *entry[K, T]) {
	d := e.shortestInterval()
	if d == e.interval && (d == 0 || e.ticker != nil) {
		return
	}
	e.stopTickerLocked()
	if d <= 0 {
		return
	}
	e.interval = d
	gen := e.tickGen
	e.ticker = r.opt.Clock.AfterFunc(d, func() { r.tick(e, gen) })
}

// tick revalidates e on its interval and re-arms the timer afterwards.
func (r *Registry[K, T]) tick(e *entry[K, T], gen uint64) {
	if !r.track() {
		return
	}
	defer r.wg.Done()

	e.mu.Lock()
	if e.removed || e.tickGen != gen {
		e.mu.Unlock()
		return
	}
	e.ticker = nil
	e.mu.Unlock()

	r.runBatch([]*entry[K, T]{e}, RunInterval)

	e.mu.Lock()
	if !e.removed && e.tickGen == gen && e.ticker == nil && e.interval > 0 {
		e.ticker = r.opt.Clock.AfterFunc(e.interval, func() { r.tick(e, gen) })
	}
	e.mu.Unlock()
}

// -------------------- invalidation --------------------

func (r *Registry[K, T]) invalidateWait(ctx context.Context, match func(*entry[K, T]) bool) error {
	if r.isClosed() {
		return ErrClosed
	}
	done := r.invalidate(match)
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// invalidate removes matching idle entries and re-runs matching subscribed
// ones as one batch. The returned channel is closed when the batch settled.
func (r *Registry[K, T]) invalidate(match func(*entry[K, T]) bool) <-chan struct{} {
	var batch []*entry[K, T]
	for _, s := range r.shards {
		var out []eviction[K, T]
		s.mu.Lock()
		for _, e := range s.m {
			if e.key.mutation || !match(e) {
				continue
			}
			if e.handles == 0 {
				out = s.evictLocked(e, EvictInvalidated, out)
				continue
			}
			batch = append(batch, e)
		}
		s.mu.Unlock()
		r.report(out)
	}
	r.reportSize()
	return r.startBatch(batch, RunInvalidate)
}

func (r *Registry[K, T]) startBatch(batch []*entry[K, T], kind RunKind) <-chan struct{} {
	done := make(chan struct{})
	if len(batch) == 0 {
		close(done)
		return done
	}
	if !r.spawn(func() {
		defer close(done)
		r.runBatch(batch, kind)
	}) {
		close(done)
	}
	return done
}

// -------------------- helpers --------------------

func (r *Registry[K, T]) shardFor(ck CacheKey[K]) *shard[K, T] {
	return r.shards[util.ShardIndex(ck.hash(r.seed), len(r.shards))]
}

func (r *Registry[K, T]) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// track registers one unit of background work; false once closed.
func (r *Registry[K, T]) track() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	r.wg.Add(1)
	return true
}

// spawn runs fn in a tracked goroutine; false once closed.
func (r *Registry[K, T]) spawn(fn func()) bool {
	if !r.track() {
		return false
	}
	go func() {
		defer r.wg.Done()
		fn()
	}()
	return true
}

func (r *Registry[K, T]) notify(ids []SubscriberID) {
	for _, id := range ids {
		r.opt.Notifier.Notify(id)
	}
}

// report delivers evictions outside registry locks.
func (r *Registry[K, T]) report(out []eviction[K, T]) {
	for _, ev := range out {
		r.opt.Metrics.Evict(ev.reason)
		r.log.Debug("entry evicted", slog.String("key", ev.key.String()), slog.String("reason", ev.reason.String()))
		if cb := r.opt.OnEvict; cb != nil {
			cb(ev.key, ev.state, ev.reason)
		}
	}
}

func (r *Registry[K, T]) reportSize() {
	var entries, idle int
	for _, s := range r.shards {
		n, i := s.len()
		entries += n
		idle += i
	}
	r.opt.Metrics.Size(r.opt.Name, entries, idle)
}

func (e *entry[K, T]) snapshot() State[T] {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

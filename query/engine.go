package query

import (
	"context"
	"log/slog"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.trai.ch/zerr"
	"golang.org/x/sync/errgroup"
)

// maybeRun is the fresh check performed on mount:
//   - a run is in flight: join it (dedup);
//   - stale: reserve a flight and run in the background, where the entry
//     goes Loading and listeners are notified before Run is called;
//   - fresh: notify the mounting subscriber once.
//
// The entry keeps its current state until the run starts, so a first Read
// right after mounting observes Pending. It returns the flight to wait on,
// or nil when no run is involved.
func (r *Registry[K, T]) maybeRun(e *entry[K, T], h handle, kind RunKind) *flight {
	now := r.opt.Clock.Now()

	e.mu.Lock()
	if f := e.flight; f != nil {
		e.mu.Unlock()
		r.dedup(e.key)
		return f
	}
	if !e.state.stale(now, e.set.staleTime) {
		e.mu.Unlock()
		if !h.anon {
			r.opt.Notifier.Notify(h.id)
		}
		return nil
	}
	f := e.reserveLocked()
	e.mu.Unlock()

	r.launch(e, f, kind, e.key.key, nil)
	return f
}

// runBatch re-runs entries as one batch: every entry goes Loading and its
// listeners are notified before any run starts, then all runs execute
// concurrently. Entries already loading join their in-flight run.
// Batches of one registry never overlap.
func (r *Registry[K, T]) runBatch(entries []*entry[K, T], kind RunKind) {
	if err := r.batches.Acquire(r.ctx, 1); err != nil {
		return
	}
	defer r.batches.Release(1)

	type job struct {
		e   *entry[K, T]
		f   *flight
		own bool
	}
	jobs := make([]job, 0, len(entries))
	var ls []SubscriberID
	for _, e := range entries {
		e.mu.Lock()
		if e.removed {
			e.mu.Unlock()
			continue
		}
		if f := e.flight; f != nil {
			e.mu.Unlock()
			r.dedup(e.key)
			jobs = append(jobs, job{e: e, f: f})
			continue
		}
		f := e.beginLocked()
		ls = append(ls, e.listenersLocked()...)
		e.mu.Unlock()
		jobs = append(jobs, job{e: e, f: f, own: true})
	}
	r.notify(ls)

	var g errgroup.Group
	if n := r.opt.BatchConcurrency; n > 0 {
		g.SetLimit(n)
	}
	for _, j := range jobs {
		g.Go(func() error {
			if j.own {
				r.execute(j.e, j.f, kind, j.e.key.key, false)
			} else {
				<-j.f.done
			}
			return nil
		})
	}
	_ = g.Wait()
}

// launch executes a run of e for a reserved flight in a tracked goroutine.
// If the registry is already closed, the flight settles with ErrClosed
// instead. res, when non-nil, receives the result of this very run.
func (r *Registry[K, T]) launch(e *entry[K, T], f *flight, kind RunKind, key K, res chan<- Result[T]) {
	ok := r.spawn(func() {
		out := r.execute(e, f, kind, key, true)
		if res != nil {
			res <- out
		}
	})
	if ok {
		return
	}
	out := Result[T]{Err: ErrClosed}
	r.settle(r.ctx, e, f, kind, key, out, r.opt.Clock.Now())
	if res != nil {
		res <- out
	}
}

// execute runs the capability for key and settles e with the outcome.
// With begin set, e goes Loading once the limiter admitted the run.
func (r *Registry[K, T]) execute(e *entry[K, T], f *flight, kind RunKind, key K, begin bool) Result[T] {
	start := r.opt.Clock.Now()
	r.shardFor(e.key).runs.Add(1)
	r.opt.Metrics.RunStarted(kind)
	r.log.Debug("run started", slog.String("key", e.key.String()), slog.String("kind", kind.String()))

	ctx, span := r.opt.Tracer.Start(r.ctx, "query.run",
		trace.WithAttributes(
			attribute.String("query.key", e.key.String()),
			attribute.String("query.kind", kind.String()),
		))
	defer span.End()

	var res Result[T]
	if err := r.admit(ctx); err != nil {
		res = Result[T]{Err: err}
	} else {
		if begin {
			r.begin(e, f)
		}
		res = r.call(ctx, e, key)
	}
	if res.Err != nil {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, res.Err.Error())
	}
	r.settle(ctx, e, f, kind, key, res, start)
	return res
}

// admit waits for the limiter, if any.
func (r *Registry[K, T]) admit(ctx context.Context) error {
	l := r.opt.Limiter
	if l == nil {
		return nil
	}
	if err := l.Wait(ctx); err != nil {
		return zerr.Wrap(err, "query: rate limiter")
	}
	return nil
}

// begin moves e to Loading for flight f and notifies listeners. It is a
// no-op when a newer run took over the entry or the entry went away.
func (r *Registry[K, T]) begin(e *entry[K, T], f *flight) {
	e.mu.Lock()
	if e.removed || e.flight != f {
		e.mu.Unlock()
		return
	}
	e.state = e.state.toLoading()
	ls := e.listenersLocked()
	e.mu.Unlock()

	r.notify(ls)
}

// call invokes Run with panic isolation: a panic settles this entry only.
func (r *Registry[K, T]) call(ctx context.Context, e *entry[K, T], key K) (res Result[T]) {
	defer func() {
		if v := recover(); v != nil {
			res = Result[T]{Err: r.recovered(ctx, e, v)}
		}
	}()
	v, err := e.cap.Run(ctx, key)
	return Result[T]{Value: v, Err: err}
}

// settle moves e to Settled. For mutations the Settler hook runs next, then
// listeners are notified, and only then are the flight and the suspense
// waiter released.
func (r *Registry[K, T]) settle(ctx context.Context, e *entry[K, T], f *flight, kind RunKind, key K, res Result[T], start time.Time) {
	now := r.opt.Clock.Now()

	e.mu.Lock()
	e.state = settledState(res, now)
	if e.flight == f {
		e.flight = nil
	}
	w := e.waiter
	e.waiter = nil
	ls := e.listenersLocked()
	e.mu.Unlock()

	if kind == RunMutation {
		r.onSettled(ctx, e, key, res)
	}
	r.notify(ls)
	close(f.done)
	if w != nil {
		w.resolve(nil)
	}

	d := now.Sub(start)
	r.opt.Metrics.RunSettled(kind, d, res.Err)
	r.log.Debug("run settled",
		slog.String("key", e.key.String()),
		slog.String("kind", kind.String()),
		slog.Duration("took", d),
		slog.Bool("ok", res.Err == nil),
	)
}

func (r *Registry[K, T]) onSettled(ctx context.Context, e *entry[K, T], key K, res Result[T]) {
	s, ok := e.cap.(Settler[K, T])
	if !ok {
		return
	}
	defer func() {
		if v := recover(); v != nil {
			_ = r.recovered(ctx, e, v)
		}
	}()
	s.OnSettled(ctx, key, res)
}

// recovered turns a panic value into the entry's domain error and reports it.
func (r *Registry[K, T]) recovered(ctx context.Context, e *entry[K, T], v any) error {
	pe := &PanicError{
		Capability: capabilityName(e.cap),
		Value:      v,
		Stack:      debug.Stack(),
	}
	r.log.Warn("recovered panic",
		slog.String("key", e.key.String()),
		slog.Any("panic", v),
	)
	if fn := r.opt.OnPanic; fn != nil {
		fn(ctx, pe)
	}
	return zerr.With(pe, "key", e.key.String())
}

func (r *Registry[K, T]) dedup(ck CacheKey[K]) {
	r.shardFor(ck).dedups.Add(1)
	r.opt.Metrics.Deduplicated()
}

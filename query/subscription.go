package query

import (
	"context"
	"sync"
	"sync/atomic"
)

// binding is the part shared by query and mutation handles: one attachment
// of a consumer to an entry, released exactly once.
type binding[K comparable, T any] struct {
	r *Registry[K, T]
	e *entry[K, T]
	h handle

	once   sync.Once
	closed atomic.Bool
}

func (b *binding[K, T]) mustOpen(op string) {
	if b.closed.Load() {
		panic("query: " + op + " on closed subscription")
	}
}

// Read returns the current state and subscribes the consumer to future
// changes of the entry (Notifier.Notify is called with its SubscriberID).
func (b *binding[K, T]) Read() State[T] {
	b.mustOpen("Read")
	e := b.e
	e.mu.Lock()
	defer e.mu.Unlock()
	if s := e.subs[b.h.id]; s != nil {
		s.listening = true
	}
	return e.state
}

// Peek returns the current state without subscribing to changes.
func (b *binding[K, T]) Peek() State[T] {
	b.mustOpen("Peek")
	return b.e.snapshot()
}

// Suspend returns the result if the entry holds one (Settled, or Loading with
// a previous result). Otherwise it returns a Waiter that resolves when a
// result is available; concurrent suspenders share the same Waiter.
func (b *binding[K, T]) Suspend() (Result[T], *Waiter) {
	b.mustOpen("Suspend")
	return b.r.suspend(b.e)
}

// Await blocks until the entry holds a result.
// The error is ErrClosed or ctx.Err(); domain errors are in the Result.
func (b *binding[K, T]) Await(ctx context.Context) (Result[T], error) {
	for {
		res, w := b.Suspend()
		if w == nil {
			return res, nil
		}
		if err := w.Wait(ctx); err != nil {
			return Result[T]{}, err
		}
	}
}

// Close releases the handle. It is idempotent and safe to call after the
// registry or the entry went away.
func (b *binding[K, T]) Close() error {
	b.once.Do(func() {
		b.closed.Store(true)
		b.r.detach(b.e, b.h)
	})
	return nil
}

// Subscription is a consumer's handle on one query entry.
type Subscription[K comparable, T any] struct {
	binding[K, T]
}

// Key returns the argument key of the entry.
func (s *Subscription[K, T]) Key() K { return s.e.key.key }

// CacheKey returns the full identity of the entry.
func (s *Subscription[K, T]) CacheKey() CacheKey[K] { return s.e.key }

// Invalidate re-runs the entry in the background.
func (s *Subscription[K, T]) Invalidate() {
	s.mustOpen("Invalidate")
	s.r.startBatch([]*entry[K, T]{s.e}, RunInvalidate)
}

// InvalidateWait re-runs the entry and waits for it to settle.
func (s *Subscription[K, T]) InvalidateWait(ctx context.Context) (State[T], error) {
	s.mustOpen("InvalidateWait")
	if s.r.isClosed() {
		return s.e.snapshot(), ErrClosed
	}
	select {
	case <-s.r.startBatch([]*entry[K, T]{s.e}, RunInvalidate):
		return s.e.snapshot(), nil
	case <-ctx.Done():
		return s.e.snapshot(), ctx.Err()
	}
}

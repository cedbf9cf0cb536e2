package query

import "context"

// Waiter is a one-shot token that resolves once an entry holds a result.
// All consumers suspended on the same entry share one Waiter.
type Waiter struct {
	done chan struct{}
	err  error
}

func newWaiter() *Waiter { return &Waiter{done: make(chan struct{})} }

func resolvedWaiter(err error) *Waiter {
	w := newWaiter()
	w.resolve(err)
	return w
}

// resolve must be called exactly once; err is published before done closes.
func (w *Waiter) resolve(err error) {
	w.err = err
	close(w.done)
}

// Done is closed when the waiter resolves, for use in select statements.
func (w *Waiter) Done() <-chan struct{} { return w.done }

// Err returns nil after a settle, ErrClosed if the entry went away.
// It must only be called after Done is closed.
func (w *Waiter) Err() error { return w.err }

// Wait blocks until the waiter resolves or ctx is done.
func (w *Waiter) Wait(ctx context.Context) error {
	select {
	case <-w.done:
		return w.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// suspend returns the current result, or the shared waiter if none exists yet.
func (r *Registry[K, T]) suspend(e *entry[K, T]) (Result[T], *Waiter) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if res, ok := e.state.Result(); ok {
		return res, nil
	}
	if e.removed || r.isClosed() {
		return Result[T]{}, resolvedWaiter(ErrClosed)
	}
	if e.waiter == nil {
		e.waiter = newWaiter()
	}
	return Result[T]{}, e.waiter
}

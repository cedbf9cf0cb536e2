package query

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSuspend_SharedWaiter(t *testing.T) {
	t.Parallel()

	r, _ := newTestRegistry(t, Options[int, string]{})
	gate := make(chan struct{})
	q := getUser{calls: &atomic.Int32{}, gate: gate}

	a := r.Subscribe(1, q, 0)
	b := r.Subscribe(2, q, 0)
	t.Cleanup(func() { _ = a.Close(); _ = b.Close() })

	_, wa := a.Suspend()
	_, wb := b.Suspend()
	require.NotNil(t, wa)
	require.Same(t, wa, wb, "one waiter per entry")

	select {
	case <-wa.Done():
		t.Fatal("resolved before the run settled")
	default:
	}

	close(gate)
	require.NoError(t, wa.Wait(testContext(t)))
	assert.NoError(t, wa.Err())

	res, w := a.Suspend()
	require.Nil(t, w)
	assert.Equal(t, "Marc", res.Value)
}

func TestSuspend_LoadingWithPreviousResult(t *testing.T) {
	t.Parallel()

	r, _ := newTestRegistry(t, Options[int, string]{})
	ctx := testContext(t)
	gate := make(chan struct{})
	var open atomic.Bool
	q := gatedAfterFirst{open: &open, gate: gate}

	s := r.Subscribe(1, q, 0)
	t.Cleanup(func() { _ = s.Close() })
	_, err := s.Await(ctx)
	require.NoError(t, err)

	s.Invalidate()
	require.Eventually(t, func() bool { return s.Peek().IsLoading() }, waitFor, tick)

	res, w := s.Suspend()
	assert.Nil(t, w, "a previous result never suspends")
	assert.Equal(t, "first", res.Value)
	close(gate)
}

// gatedAfterFirst answers "first" once, then blocks on gate.
type gatedAfterFirst struct {
	open *atomic.Bool
	gate <-chan struct{}
}

func (q gatedAfterFirst) Run(ctx context.Context, _ int) (string, error) {
	if q.open.CompareAndSwap(false, true) {
		return "first", nil
	}
	select {
	case <-q.gate:
		return "second", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func TestSuspend_ErrorResolves(t *testing.T) {
	t.Parallel()

	r, _ := newTestRegistry(t, Options[int, string]{})
	s := r.Subscribe(1, getUser{}, 42)
	t.Cleanup(func() { _ = s.Close() })

	res, err := s.Await(testContext(t))
	require.NoError(t, err, "domain errors are results")
	assert.ErrorIs(t, res.Err, errNotFound)
}

func TestSuspend_CloseResolvesWithErrClosed(t *testing.T) {
	t.Parallel()

	r := New(Options[int, string]{})
	s := r.Subscribe(1, getUser{}, 0, Disabled())

	_, w := s.Suspend()
	require.NotNil(t, w)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := s.Await(context.Background())
		assert.ErrorIs(t, err, ErrClosed)
	}()

	require.NoError(t, r.Close())
	<-w.Done()
	assert.ErrorIs(t, w.Err(), ErrClosed)
	wg.Wait()

	require.NoError(t, s.Close(), "closing after the registry is a no-op")
}

func TestSuspend_CloseCancelsRun(t *testing.T) {
	t.Parallel()

	r := New(Options[int, string]{})
	gate := make(chan struct{})
	defer close(gate)
	s := r.Subscribe(1, getUser{gate: gate}, 0)

	done := make(chan Result[string], 1)
	go func() {
		res, err := s.Await(context.Background())
		assert.NoError(t, err)
		done <- res
	}()

	require.NoError(t, r.Close())
	res := <-done
	assert.ErrorIs(t, res.Err, context.Canceled, "the run observed the cancellation")
}

func TestSuspend_ContextCancel(t *testing.T) {
	t.Parallel()

	r, _ := newTestRegistry(t, Options[int, string]{})
	gate := make(chan struct{})
	t.Cleanup(func() { close(gate) })
	s := r.Subscribe(1, getUser{gate: gate}, 0)
	t.Cleanup(func() { _ = s.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Await(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

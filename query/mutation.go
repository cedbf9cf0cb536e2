package query

import (
	"context"

	"github.com/IvanBrykalov/querycache/internal/singleflight"
)

// Mutations owns the entries of one mutation capability family. A mutation
// runs only when explicitly invoked, never on mount or on an interval; its
// entry records the outcome of the latest call. Entries are keyed by
// capability identity and clean time; the argument key is supplied per call.
type Mutations[K comparable, T any] struct {
	r  *Registry[K, T]
	sf singleflight.Group[mutationCall[K], Result[T]]
}

// mutationCall identifies deduplicated mutate calls: one entry, one key.
type mutationCall[K comparable] struct {
	entry CacheKey[K]
	key   K
}

// NewMutations constructs a mutation registry. The default clean time of
// mutation entries is zero: they go away with their last handle.
func NewMutations[K comparable, T any](opt Options[K, T]) *Mutations[K, T] {
	m := &Mutations[K, T]{r: newRegistry(opt, true)}
	m.sf.OnJoin = func(c mutationCall[K]) { m.r.dedup(c.entry) }
	return m
}

// Subscribe attaches consumer id to the mutation entry of c.
// Supported options: WithCleanTime, Dedupe. Subscribing to a closed registry
// panics.
func (m *Mutations[K, T]) Subscribe(id SubscriberID, c Capability[K, T], opts ...Option) *MutationSubscription[K, T] {
	if m.r.isClosed() {
		panic("query: Subscribe on closed registry")
	}
	set := mutationSettings(opts)
	set.staleTime, set.interval, set.disabled = 0, 0, false

	var zero K
	h := m.r.newHandle(id, 0)
	e, _ := m.r.attach(newCacheKey(c, zero, set), c, set, h)
	return &MutationSubscription[K, T]{
		binding: binding[K, T]{r: m.r, e: e, h: h},
		m:       m,
		dedupe:  set.dedupe,
	}
}

// Len returns the number of mutation entries.
func (m *Mutations[K, T]) Len() int { return m.r.Len() }

// Stats returns a snapshot of registry counters.
func (m *Mutations[K, T]) Stats() Stats { return m.r.Stats() }

// Close cancels running mutations and removes every entry.
func (m *Mutations[K, T]) Close() error { return m.r.Close() }

// MutationSubscription is a consumer's handle on one mutation entry.
type MutationSubscription[K comparable, T any] struct {
	binding[K, T]
	m      *Mutations[K, T]
	dedupe bool
}

// Mutate runs the mutation for key in the background.
func (s *MutationSubscription[K, T]) Mutate(key K) {
	s.mustOpen("Mutate")
	s.r.spawn(func() { _, _ = s.mutate(s.r.ctx, key) })
}

// MutateWait runs the mutation for key and waits for its result. By the time
// it returns, the Settler hook has run. The error is ErrClosed or ctx.Err();
// domain errors are in the Result.
func (s *MutationSubscription[K, T]) MutateWait(ctx context.Context, key K) (Result[T], error) {
	s.mustOpen("MutateWait")
	if s.r.isClosed() {
		return Result[T]{}, ErrClosed
	}
	return s.mutate(ctx, key)
}

func (s *MutationSubscription[K, T]) mutate(ctx context.Context, key K) (Result[T], error) {
	if !s.dedupe {
		return s.wait(ctx, s.start(key))
	}
	// The leader waits for the run itself; followers may give up on ctx.
	res, _, err := s.m.sf.Do(ctx, mutationCall[K]{entry: s.e.key, key: key}, func() Result[T] {
		return <-s.start(key)
	})
	return res, err
}

// start launches one run; the entry goes Loading and listeners are notified
// when it starts. Concurrent calls each run; the entry keeps the outcome
// settled last.
func (s *MutationSubscription[K, T]) start(key K) <-chan Result[T] {
	e := s.e
	res := make(chan Result[T], 1)

	e.mu.Lock()
	f := e.reserveLocked()
	e.mu.Unlock()

	s.r.launch(e, f, RunMutation, key, res)
	return res
}

func (s *MutationSubscription[K, T]) wait(ctx context.Context, res <-chan Result[T]) (Result[T], error) {
	select {
	case out := <-res:
		return out, nil
	case <-ctx.Done():
		return Result[T]{}, ctx.Err()
	}
}

// Package singleflight coalesces concurrent calls that share a key.
package singleflight

import (
	"context"
	"sync"
)

// Group coalesces concurrent function calls for the same key K so that
// the supplied fn is executed at most once. Other concurrent callers
// wait for the shared result.
//
// Concurrency notes:
//   - The first caller for a given key becomes the leader and runs fn.
//   - Followers wait on c.done. Publishing val happens-before close(c.done),
//     so reads after <-done observe the final value.
//   - Cancelling ctx in a follower unblocks only that follower; it does
//     NOT cancel the leader's fn.
type Group[K comparable, V any] struct {
	// OnJoin, if set, is called in a follower's goroutine right after it
	// joined the in-flight call for key.
	OnJoin func(key K)

	mu sync.Mutex
	m  map[K]*call[V]
}

type call[V any] struct {
	done chan struct{} // closed when val is published
	val  V
	dups int
}

// Do runs fn once for the given key. Concurrent calls with the same key
// wait for the shared result; shared reports whether the value was produced
// by another caller's fn. A follower whose ctx is cancelled returns ctx.Err()
// while the leader continues to run fn.
func (g *Group[K, V]) Do(ctx context.Context, key K, fn func() V) (v V, shared bool, err error) {
	g.mu.Lock()
	if g.m == nil {
		g.m = make(map[K]*call[V])
	}
	if c, ok := g.m[key]; ok {
		c.dups++
		g.mu.Unlock()
		if g.OnJoin != nil {
			g.OnJoin(key)
		}

		select {
		case <-c.done:
			return c.val, true, nil
		case <-ctx.Done():
			var zero V
			return zero, true, ctx.Err()
		}
	}

	c := &call[V]{done: make(chan struct{})}
	g.m[key] = c
	g.mu.Unlock()

	// The marker must be removed even if fn panics, or every later caller
	// for key would block forever.
	defer func() {
		g.mu.Lock()
		delete(g.m, key)
		g.mu.Unlock()
		close(c.done)
	}()

	c.val = fn()
	return c.val, false, nil
}

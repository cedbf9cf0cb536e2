// Package lru purges the least recently touched idle entry first.
package lru

import "github.com/IvanBrykalov/querycache/policy"

// lru is a classic "move-to-front" policy over the shard's idle list.
type lru[K comparable] struct {
	h policy.Hooks[K]
}

type lruPolicy[K comparable] struct{}

// New returns a Policy factory that constructs per-shard LRU instances.
func New[K comparable]() policy.Policy[K] { return lruPolicy[K]{} }

// New implements policy.Policy.
func (lruPolicy[K]) New(h policy.Hooks[K]) policy.ShardPolicy[K] {
	return &lru[K]{h: h}
}

// OnAdd places a newly idle entry at the front. LRU never proposes victims
// itself; the shard trims from Back() when MaxIdle is exceeded.
func (p *lru[K]) OnAdd(n policy.Node[K]) (evict policy.Node[K]) {
	p.h.PushFront(n)
	return nil
}

// OnGet promotes the entry.
func (p *lru[K]) OnGet(n policy.Node[K]) { p.h.MoveToFront(n) }

// OnRemove is a no-op for pure LRU.
func (p *lru[K]) OnRemove(_ policy.Node[K]) {}

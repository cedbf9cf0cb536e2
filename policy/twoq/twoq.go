// Package twoq implements a 2Q ordering of idle entries.
//
// Entries that go idle for the first time land in a small probation queue
// (A1in) and are purged first when the idle budget is exceeded. Entries whose
// key was recently purged from probation (ghost queue A1out) are treated as
// "likely to come back" and skip probation. This keeps a burst of short-lived
// one-off keys from pushing out entries that consumers keep re-mounting.
package twoq

import (
	"container/list"

	"github.com/IvanBrykalov/querycache/policy"
)

// twoQ keeps A1in as its own list + index; everything else on the shard's
// idle list is the mature queue Am, ordered by shard hooks.
// All methods are called under the shard lock.
type twoQ[K comparable] struct {
	h policy.Hooks[K]

	capIn    int // A1in capacity (per shard)
	capGhost int // A1out capacity (per shard)

	// A1in: Front() is newest, Back() the next victim
	inList *list.List
	inIdx  map[policy.Node[K]]*list.Element

	// A1out: keys only
	ghostList *list.List
	ghostIdx  map[K]*list.Element
}

// New constructs a 2Q policy factory. Sizes are per shard.
func New[K comparable](capIn, capGhost int) policy.Policy[K] {
	if capIn < 1 {
		capIn = 1
	}
	if capGhost < 1 {
		capGhost = 1
	}
	return twoQPolicy[K]{capIn: capIn, capGhost: capGhost}
}

type twoQPolicy[K comparable] struct {
	capIn    int
	capGhost int
}

func (p twoQPolicy[K]) New(h policy.Hooks[K]) policy.ShardPolicy[K] {
	return &twoQ[K]{
		h:         h,
		capIn:     p.capIn,
		capGhost:  p.capGhost,
		inList:    list.New(),
		inIdx:     make(map[policy.Node[K]]*list.Element),
		ghostList: list.New(),
		ghostIdx:  make(map[K]*list.Element),
	}
}

// OnAdd admission rules:
//   - a ghost key bypasses A1in and joins Am directly;
//   - otherwise the node enters A1in, and if A1in overflows its oldest node
//     is proposed for eviction.
func (q *twoQ[K]) OnAdd(n policy.Node[K]) (evict policy.Node[K]) {
	k := n.Key()
	if ge, ok := q.ghostIdx[k]; ok {
		q.ghostList.Remove(ge)
		delete(q.ghostIdx, k)
		q.h.PushFront(n)
		return nil
	}

	q.h.PushFront(n)
	q.inIdx[n] = q.inList.PushFront(n)

	if q.inList.Len() > q.capIn {
		if lruEl := q.inList.Back(); lruEl != nil {
			return lruEl.Value.(policy.Node[K])
		}
	}
	return nil
}

// OnGet promotes an A1in node to Am.
func (q *twoQ[K]) OnGet(n policy.Node[K]) {
	if el, ok := q.inIdx[n]; ok {
		q.inList.Remove(el)
		delete(q.inIdx, n)
	}
	q.h.MoveToFront(n)
}

// OnRemove records the key of a node leaving A1in as a ghost.
// Removals from Am do not populate ghosts.
func (q *twoQ[K]) OnRemove(n policy.Node[K]) {
	el, ok := q.inIdx[n]
	if !ok {
		return
	}
	q.inList.Remove(el)
	delete(q.inIdx, n)

	k := n.Key()
	if old := q.ghostIdx[k]; old != nil {
		q.ghostList.Remove(old)
	}
	q.ghostIdx[k] = q.ghostList.PushFront(k)

	for q.ghostList.Len() > q.capGhost {
		tail := q.ghostList.Back()
		if tail == nil {
			break
		}
		delete(q.ghostIdx, tail.Value.(K))
		q.ghostList.Remove(tail)
	}
}

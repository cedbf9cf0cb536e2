package query

import (
	"sync"

	"github.com/IvanBrykalov/querycache/internal/util"
	"github.com/IvanBrykalov/querycache/policy"
)

// shard is an independent partition of a registry with its own lock, entry
// map and an intrusive doubly linked list of idle entries
// (head = most recently touched, tail = next victim).
type shard[K comparable, T any] struct {
	// ---- guarded by mu ----
	mu      sync.RWMutex
	m       map[CacheKey[K]]*entry[K, T]
	head    *entry[K, T]
	tail    *entry[K, T]
	idleLen int
	maxIdle int // per-shard idle cap (0 = disabled)

	pol policy.ShardPolicy[CacheKey[K]]

	// ---- hot counters (separate cache lines to avoid false sharing) ----
	_      util.CacheLinePad
	runs   util.PaddedAtomicUint64
	dedups util.PaddedAtomicUint64
	evicts util.PaddedAtomicUint64
}

// eviction is an entry removed under the shard lock, reported after unlock.
type eviction[K comparable, T any] struct {
	key    CacheKey[K]
	state  State[T]
	reason EvictReason
}

func newShard[K comparable, T any](maxIdle int, pol policy.Policy[CacheKey[K]]) *shard[K, T] {
	s := &shard[K, T]{
		m:       make(map[CacheKey[K]]*entry[K, T]),
		maxIdle: maxIdle,
	}
	s.pol = pol.New(shardHooks[K, T]{s: s})
	return s
}

// getOrCreateLocked returns the entry for key, creating a Pending one.
func (s *shard[K, T]) getOrCreateLocked(key CacheKey[K], c Capability[K, T], set settings) *entry[K, T] {
	if e, ok := s.m[key]; ok {
		return e
	}
	e := newEntry(key, c, set)
	s.m[key] = e
	return e
}

// touchLocked records a non-subscribing read of an idle entry.
func (s *shard[K, T]) touchLocked(e *entry[K, T]) {
	if e.idle {
		s.pol.OnGet(e)
	}
}

// leaveIdleLocked takes e off the idle list (a subscriber came back).
func (s *shard[K, T]) leaveIdleLocked(e *entry[K, T]) {
	if !e.idle {
		return
	}
	s.pol.OnRemove(e)
	if e.idle {
		s.unlink(e)
	}
}

// enterIdleLocked puts e on the idle list and trims the list to maxIdle.
func (s *shard[K, T]) enterIdleLocked(e *entry[K, T], out []eviction[K, T]) []eviction[K, T] {
	if ev := s.pol.OnAdd(e); ev != nil {
		out = s.evictLocked(ev.(*entry[K, T]), EvictIdleLimit, out)
	}
	if s.maxIdle > 0 {
		for s.idleLen > s.maxIdle {
			victim := s.tail
			if victim == nil {
				break
			}
			out = s.evictLocked(victim, EvictIdleLimit, out)
		}
	}
	return out
}

// evictLocked removes e from the map and the idle list and stops its timers.
// The caller must not hold e.mu.
func (s *shard[K, T]) evictLocked(e *entry[K, T], reason EvictReason, out []eviction[K, T]) []eviction[K, T] {
	if e.idle {
		s.pol.OnRemove(e)
		if e.idle {
			s.unlink(e)
		}
	}
	if cur, ok := s.m[e.key]; ok && cur == e {
		delete(s.m, e.key)
	}

	e.mu.Lock()
	if e.removed {
		e.mu.Unlock()
		return out
	}
	e.removed = true
	e.stopCleanupLocked()
	e.stopTickerLocked()
	st := e.state
	w := e.waiter
	e.waiter = nil
	e.mu.Unlock()

	if w != nil {
		w.resolve(ErrClosed)
	}

	s.evicts.Add(1)
	return append(out, eviction[K, T]{key: e.key, state: st, reason: reason})
}

func (s *shard[K, T]) len() (entries, idle int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m), s.idleLen
}

// -------------------- idle list (mu held) --------------------

func (s *shard[K, T]) pushFront(e *entry[K, T]) {
	if e.idle {
		s.moveToFront(e)
		return
	}
	e.prev = nil
	e.next = s.head
	if s.head != nil {
		s.head.prev = e
	}
	s.head = e
	if s.tail == nil {
		s.tail = e
	}
	e.idle = true
	s.idleLen++
}

func (s *shard[K, T]) moveToFront(e *entry[K, T]) {
	if !e.idle || e == s.head {
		return
	}
	if e.prev != nil {
		e.prev.next = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	}
	if s.tail == e {
		s.tail = e.prev
	}
	e.prev = nil
	e.next = s.head
	if s.head != nil {
		s.head.prev = e
	}
	s.head = e
	if s.tail == nil {
		s.tail = e
	}
}

func (s *shard[K, T]) unlink(e *entry[K, T]) {
	if !e.idle {
		return
	}
	if e.prev != nil {
		e.prev.next = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	}
	if s.head == e {
		s.head = e.next
	}
	if s.tail == e {
		s.tail = e.prev
	}
	e.prev, e.next = nil, nil
	e.idle = false
	s.idleLen--
}

// -------------------- policy hooks --------------------

// shardHooks adapts the shard's idle list to policy.Hooks.
type shardHooks[K comparable, T any] struct{ s *shard[K, T] }

func (h shardHooks[K, T]) MoveToFront(x policy.Node[CacheKey[K]]) {
	h.s.moveToFront(x.(*entry[K, T]))
}

func (h shardHooks[K, T]) PushFront(x policy.Node[CacheKey[K]]) {
	h.s.pushFront(x.(*entry[K, T]))
}

func (h shardHooks[K, T]) Remove(x policy.Node[CacheKey[K]]) { h.s.unlink(x.(*entry[K, T])) }

func (h shardHooks[K, T]) Back() policy.Node[CacheKey[K]] {
	if h.s.tail == nil {
		return nil
	}
	return h.s.tail
}

func (h shardHooks[K, T]) Len() int { return h.s.idleLen }

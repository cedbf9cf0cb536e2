package twoq

import (
	"testing"

	"github.com/IvanBrykalov/querycache/policy"
)

// --- test doubles (same shape as in LRU tests) ---

type testNode[K comparable] struct{ k K }

func (n *testNode[K]) Key() K { return n.k }

type mockHooks[K comparable] struct {
	pushFrontCnt   int
	moveToFrontCnt int
}

func (h *mockHooks[K]) MoveToFront(policy.Node[K]) { h.moveToFrontCnt++ }
func (h *mockHooks[K]) PushFront(policy.Node[K])   { h.pushFrontCnt++ }
func (h *mockHooks[K]) Remove(policy.Node[K])      {}
func (h *mockHooks[K]) Back() policy.Node[K]       { return nil }
func (h *mockHooks[K]) Len() int                   { return 0 }

// --- tests ---

func TestTwoQ_AddGoesToA1in(t *testing.T) {
	t.Parallel()

	h := &mockHooks[string]{}
	p := New[string](2, 4).New(h).(*twoQ[string])

	n1 := &testNode[string]{k: "a"}
	if ev := p.OnAdd(n1); ev != nil {
		t.Fatalf("OnAdd should not evict yet")
	}
	if p.inList.Len() != 1 {
		t.Fatalf("A1in must have 1 element, got %d", p.inList.Len())
	}
	if _, ok := p.inIdx[n1]; !ok {
		t.Fatalf("n1 must be present in A1in index")
	}
	if h.pushFrontCnt != 1 {
		t.Fatalf("node must be linked into the idle list")
	}
}

// When A1in overflows, OnAdd should return its oldest node.
func TestTwoQ_OverflowReturnsOldestOfA1in(t *testing.T) {
	t.Parallel()

	p := New[string](2, 4).New(&mockHooks[string]{}).(*twoQ[string])

	n1 := &testNode[string]{k: "a"}
	n2 := &testNode[string]{k: "b"}
	n3 := &testNode[string]{k: "c"}

	p.OnAdd(n1)
	p.OnAdd(n2)
	if ev := p.OnAdd(n3); ev != n1 {
		t.Fatalf("expected evict candidate n1, got %v", ev)
	}
}

func TestTwoQ_OnRemoveFromA1inGoesToGhost(t *testing.T) {
	t.Parallel()

	p := New[string](2, 2).New(&mockHooks[string]{}).(*twoQ[string])

	n1 := &testNode[string]{k: "a"}
	p.OnAdd(n1)
	p.OnRemove(n1)
	if _, ok := p.inIdx[n1]; ok {
		t.Fatal("n1 must be removed from A1in")
	}
	if _, ok := p.ghostIdx["a"]; !ok {
		t.Fatal("key 'a' must be in ghost (A1out)")
	}
}

// An entry that goes idle again after a purge skips probation.
func TestTwoQ_AddFromGhostGoesToAm(t *testing.T) {
	t.Parallel()

	p := New[string](1, 2).New(&mockHooks[string]{}).(*twoQ[string])

	n1 := &testNode[string]{k: "a"}
	p.OnAdd(n1)
	p.OnRemove(n1)

	n2 := &testNode[string]{k: "a"}
	if ev := p.OnAdd(n2); ev != nil {
		t.Fatalf("OnAdd from ghost must not evict (got %v)", ev)
	}
	if _, ok := p.inIdx[n2]; ok {
		t.Fatalf("n2 must NOT be in A1in (should go to Am)")
	}
	if _, ok := p.ghostIdx["a"]; ok {
		t.Fatalf("ghost must be consumed on re-admission")
	}
}

func TestTwoQ_GhostCapacity(t *testing.T) {
	t.Parallel()

	p := New[string](4, 2).New(&mockHooks[string]{}).(*twoQ[string])
	for _, k := range []string{"a", "b", "c"} {
		n := &testNode[string]{k: k}
		p.OnAdd(n)
		p.OnRemove(n)
	}
	if p.ghostList.Len() != 2 {
		t.Fatalf("ghost list must be capped at 2, got %d", p.ghostList.Len())
	}
	if _, ok := p.ghostIdx["a"]; ok {
		t.Fatalf("oldest ghost must be dropped")
	}
}

func TestTwoQ_GetPromotesFromA1inToAm(t *testing.T) {
	t.Parallel()

	h := &mockHooks[string]{}
	p := New[string](2, 2).New(h).(*twoQ[string])

	n1 := &testNode[string]{k: "a"}
	p.OnAdd(n1)
	p.OnGet(n1)
	if _, ok := p.inIdx[n1]; ok {
		t.Fatal("n1 must be promoted out of A1in after Get")
	}
	if h.moveToFrontCnt != 1 {
		t.Fatalf("OnGet must call MoveToFront once")
	}
}

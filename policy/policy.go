// Package policy defines how a registry orders its idle entries.
//
// An entry is idle when no subscription references it: it only survives until
// its clean time elapses. When a registry caps the number of idle entries
// (query.Config.MaxIdle), the policy decides which idle entry is purged first.
package policy

// Node is the minimal contract an idle entry must satisfy for a policy.
type Node[K comparable] interface {
	Key() K
}

// Hooks expose O(1) list operations that a policy can use to manipulate
// the shard's intrusive idle list (Front = most recently touched,
// Back = next victim). Implementations are provided by the registry shard.
//
// Concurrency: all hook calls happen under the shard lock.
// Hooks manage only the list; the shard owns the key->entry map.
type Hooks[K comparable] interface {
	// MoveToFront promotes the node.
	MoveToFront(Node[K])
	// PushFront links a node that just became idle.
	PushFront(Node[K])
	// Remove detaches the node from the list.
	Remove(Node[K])
	// Back returns the next eviction candidate (or nil if empty).
	Back() Node[K]
	// Len returns the number of idle nodes in the shard.
	Len() int
}

// ShardPolicy is a per-shard policy instance bound to shard hooks.
// All methods are invoked under the shard lock.
//
// Semantics:
//   - OnAdd is called when an entry becomes idle. It may return an eviction
//     candidate; the shard purges it and then calls OnRemove for it.
//   - OnGet is called when an idle entry is read without subscribing
//     (one-shot Get, Peek).
//   - OnRemove is called when a node leaves the idle list for any reason
//     (resubscribed, cleaned up, invalidated, evicted).
type ShardPolicy[K comparable] interface {
	OnAdd(Node[K]) (evict Node[K])
	OnGet(Node[K])
	OnRemove(Node[K])
}

// Policy is a factory that creates shard-local policy instances.
type Policy[K comparable] interface {
	New(Hooks[K]) ShardPolicy[K]
}

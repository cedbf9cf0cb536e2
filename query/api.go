package query

//go:generate mockgen -destination=mocks/mock_query.go -package=mocks github.com/IvanBrykalov/querycache/query Notifier,Metrics

import (
	"context"
	"reflect"
)

// Capability is a unit of async work identified by an argument key.
// Two capabilities with the same identity (see Identifier) running against
// equal keys share one cache entry.
//
// Run returning an error is a normal outcome: the error is cached in the
// entry's Result like any value.
type Capability[K comparable, T any] interface {
	Run(ctx context.Context, key K) (T, error)
}

// Matcher is optionally implemented by a Capability to decide whether it is
// affected by Registry.InvalidateMatching(key). Capabilities that don't
// implement it match every key.
type Matcher[K comparable] interface {
	Matches(key K) bool
}

// Identifier is optionally implemented by a Capability to declare its cache
// identity. Identity must return a comparable value.
//
// Without it, the identity is the dynamic type of the capability: every
// field of the capability (clients, handles, loggers) is payload that never
// fragments the cache.
type Identifier interface {
	Identity() any
}

// Settler is optionally implemented by a mutation capability. OnSettled runs
// right after Run and before subscribers are notified of the settled state;
// it typically invalidates query entries affected by the mutation.
type Settler[K comparable, T any] interface {
	OnSettled(ctx context.Context, key K, res Result[T])
}

// SubscriberID identifies a consumer owned by the host (a UI component, a
// watcher goroutine, ...). The cache only compares and forwards it.
type SubscriberID uint64

// Notifier wakes a consumer so that the host re-evaluates it. The cache never
// re-renders anything itself. Notify may be called from any goroutine and must
// not block for long.
type Notifier interface {
	Notify(id SubscriberID)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(id SubscriberID)

// Notify calls f(id).
func (f NotifierFunc) Notify(id SubscriberID) { f(id) }

type noopNotifier struct{}

func (noopNotifier) Notify(SubscriberID) {}

// capabilityName is used for logs, spans and panic context.
func capabilityName(c any) string {
	if c == nil {
		return "<nil>"
	}
	return reflect.TypeOf(c).String()
}

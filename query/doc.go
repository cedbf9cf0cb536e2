// Package query provides a reactive, async, work-deduplicating cache.
//
// A capability is a unit of async work identified by an argument key
// (Capability[K, T]). The cache guarantees at most one in-flight run per
// cache key, shares the result with every consumer of that key, tracks
// staleness, re-runs on demand or on a timer, and drops entries once nobody
// is interested anymore.
//
// Design
//
//   - Identity: a cache key is (capability identity, argument key, policy
//     fingerprint). The identity is the capability's dynamic type, or
//     Identity() when it implements Identifier. Fields of the capability
//     (clients, loggers) are payload and never fragment the cache. The
//     revalidation interval is not part of the key.
//
//   - State machine: Pending -> Loading -> Settled -> Loading -> Settled...
//     Loading keeps the previous result, if any. A domain error returned by
//     Run is a normal outcome and is cached in the Result.
//
//   - Storage: a Registry is split into shards, each protected by an
//     RWMutex, holding a map of entries and an intrusive list of idle entries
//     (no subscriber). Config.MaxIdle caps idle entries; the policy package
//     (LRU by default, 2Q available) picks which one goes first.
//
//   - Lifecycle: Subscribe attaches a consumer; Close on the handle detaches
//     it. When the last handle goes away a cleanup timer of the clean time is
//     armed, and cancelled if someone subscribes again in that window.
//
//   - Notifications: the cache never re-renders anything. It calls
//     Config.Notifier with the SubscriberID of every consumer that has Read
//     the entry. Loading is always notified before the run starts and
//     Settled after it completes.
//
//   - Invalidation: InvalidateMatching, InvalidateKeys (all parts contained),
//     InvalidateAll and InvalidateFunc re-run matching entries as one batch.
//     Batches of a registry never overlap. Idle matching entries are dropped.
//
//   - Intervals: each handle may request WithInterval; the shortest interval
//     among live handles governs the entry's single revalidation timer.
//
//   - Suspense: Suspend returns the result or a Waiter shared by every
//     consumer suspended on the entry.
//
//   - Mutations: Mutations run only on Mutate/MutateWait. A Settler hook runs
//     after the run and before subscribers are notified.
//
//   - Failures: a panic in Run is recovered and settles only that entry with
//     a *PanicError (errors.Is(err, ErrPanicked)); Config.OnPanic is told.
//
// Basic usage
//
//	type GetUser struct{ DB *sql.DB }
//
//	func (q GetUser) Run(ctx context.Context, id int) (string, error) { ... }
//
//	client := query.NewClient(query.Config{Notifier: host})
//	defer client.Close()
//
//	users := query.QueriesFor[int, string](client, GetUser{})
//	sub := users.Subscribe(client.NewSubscriberID(), GetUser{DB: db}, 0)
//	defer sub.Close()
//
//	res, err := sub.Await(ctx) // Ok("Marc")
//	_ = users.InvalidateMatching(ctx, 0)
//
// All methods are safe for concurrent use.
package query

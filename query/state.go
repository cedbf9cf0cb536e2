package query

import (
	"fmt"
	"time"
)

// Status is the phase of an entry's state machine.
type Status uint8

const (
	// StatusPending: never run.
	StatusPending Status = iota
	// StatusLoading: a run is in flight; a previous result may be attached.
	StatusLoading
	// StatusSettled: the last run finished with a result.
	StatusSettled
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "Pending"
	case StatusLoading:
		return "Loading"
	case StatusSettled:
		return "Settled"
	default:
		return fmt.Sprintf("Status(%d)", uint8(s))
	}
}

// Result is the outcome of one run. A non-nil Err is a domain error returned
// by the capability and is cached like any value.
type Result[T any] struct {
	Value T
	Err   error
}

// OK reports whether the run succeeded.
func (r Result[T]) OK() bool { return r.Err == nil }

// Unwrap returns the value and the domain error.
func (r Result[T]) Unwrap() (T, error) { return r.Value, r.Err }

// State is an immutable snapshot of an entry.
//
// Invariants: a Pending state never carries a result; a Loading state carries
// one iff the entry had settled before; a Settled state always carries one.
type State[T any] struct {
	status    Status
	res       Result[T]
	hasRes    bool
	settledAt time.Time
}

func pendingState[T any]() State[T] { return State[T]{status: StatusPending} }

func settledState[T any](res Result[T], at time.Time) State[T] {
	return State[T]{status: StatusSettled, res: res, hasRes: true, settledAt: at}
}

// toLoading keeps the last known result, if any.
func (s State[T]) toLoading() State[T] {
	return State[T]{status: StatusLoading, res: s.res, hasRes: s.hasRes}
}

// Status returns the phase of the state machine.
func (s State[T]) Status() Status { return s.status }

func (s State[T]) IsPending() bool { return s.status == StatusPending }
func (s State[T]) IsLoading() bool { return s.status == StatusLoading }
func (s State[T]) IsSettled() bool { return s.status == StatusSettled }

// IsOK reports whether the state is settled with a successful result.
func (s State[T]) IsOK() bool { return s.status == StatusSettled && s.res.Err == nil }

// IsErr reports whether the state is settled with a domain error.
func (s State[T]) IsErr() bool { return s.status == StatusSettled && s.res.Err != nil }

// Result returns the settled result, or the previous result while loading.
func (s State[T]) Result() (Result[T], bool) { return s.res, s.hasRes }

// Value returns the successful value of Result, if any.
func (s State[T]) Value() (T, bool) {
	if !s.hasRes || s.res.Err != nil {
		var zero T
		return zero, false
	}
	return s.res.Value, true
}

// MustResult is Result for callers that know a result exists.
// It panics on Pending and on Loading without a previous result.
func (s State[T]) MustResult() Result[T] {
	if !s.hasRes {
		panic("query: state " + s.status.String() + " has no result")
	}
	return s.res
}

// SettledAt returns when the state settled; zero unless Settled.
func (s State[T]) SettledAt() time.Time { return s.settledAt }

// stale reports whether a run is due. Pending is always stale; Loading is
// never re-run (a run is already in flight).
func (s State[T]) stale(now time.Time, staleTime time.Duration) bool {
	switch s.status {
	case StatusPending:
		return true
	case StatusSettled:
		return now.Sub(s.settledAt) >= staleTime
	default:
		return false
	}
}

func (s State[T]) String() string {
	switch s.status {
	case StatusLoading:
		if !s.hasRes {
			return "Loading{}"
		}
		return fmt.Sprintf("Loading{%s}", s.res)
	case StatusSettled:
		return fmt.Sprintf("Settled{%s}", s.res)
	default:
		return s.status.String()
	}
}

func (r Result[T]) String() string {
	if r.Err != nil {
		return fmt.Sprintf("Err(%v)", r.Err)
	}
	return fmt.Sprintf("Ok(%v)", r.Value)
}

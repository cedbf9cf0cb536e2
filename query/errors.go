package query

import (
	"fmt"

	"go.trai.ch/zerr"
)

var (
	// ErrClosed is returned by blocking operations on a closed registry.
	ErrClosed = zerr.New("query: registry closed")

	// ErrPanicked matches every *PanicError via errors.Is.
	ErrPanicked = zerr.New("query: capability panicked")
)

// PanicError is the domain error an entry settles with when its capability
// panics. Other entries of the same invalidation batch are unaffected.
type PanicError struct {
	Capability string
	Value      any
	Stack      []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("query: %s panicked: %v", e.Capability, e.Value)
}

func (e *PanicError) Unwrap() error { return ErrPanicked }

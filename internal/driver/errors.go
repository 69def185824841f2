package driver

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by registry routing when no registered driver
// matches an envelope. Routing misses are deterministic client errors
// and are never retried.
var ErrNotFound = errors.New("driver: no driver registered for intent and device class")

// Error is a deterministic execution failure inside a driver. It is
// surfaced to the client as a failed result, never retried by the
// engine.
type Error struct {
	Driver string
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("driver %s: %s: %v", e.Driver, e.Reason, e.Err)
	}
	return fmt.Sprintf("driver %s: %s", e.Driver, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// newError constructs a driver execution failure.
func newError(driverName, reason string, cause error) *Error {
	return &Error{Driver: driverName, Reason: reason, Err: cause}
}

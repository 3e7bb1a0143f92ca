package scroll

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingCursor is returned when a cursor source is asked for a
	// continuation batch but no cursor has been received yet.
	ErrMissingCursor = errors.New("no continuation cursor available")

	// ErrNoSource is returned by New when the configuration has no source.
	ErrNoSource = errors.New("source is required")

	// ErrBusy is returned by Restore while a fetch is in flight.
	ErrBusy = errors.New("operation in flight")

	// ErrInvalidSnapshot is returned by Restore for snapshots that break
	// the state invariants.
	ErrInvalidSnapshot = errors.New("invalid snapshot")

	// ErrInvariant reports a broken State invariant.
	ErrInvariant = errors.New("state invariant violated")
)

// FetchError wraps a failure returned (or panicked) by a caller-supplied fetch function.
type FetchError struct {
	Op   Operation
	Mode Mode
	Err  error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	return fmt.Sprintf("scroll %s fetch failed (%s mode): %v", e.Op, e.Mode, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// Message is the text surfaced on State.Error: the underlying message, verbatim.
func (e *FetchError) Message() string {
	if e.Err == nil {
		return "unknown fetch error"
	}
	return e.Err.Error()
}

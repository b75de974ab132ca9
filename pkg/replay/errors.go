package replay

import (
	"errors"
	"fmt"

	"github.com/getmockd/tracemock/pkg/trace"
)

// Replay errors.
var (
	// ErrIdle is returned by Handle when no trace is loaded.
	ErrIdle = errors.New("no trace loaded")
	// ErrMismatch matches any *MismatchError raised while entries remain.
	ErrMismatch = errors.New("request does not match trace")
	// ErrExhausted matches a *MismatchError raised after the last entry.
	ErrExhausted = errors.New("trace exhausted")
	// ErrUnknownComparator is returned by ComparatorByName.
	ErrUnknownComparator = errors.New("unknown comparator")
)

// MismatchError describes a request that the loaded trace did not expect.
type MismatchError struct {
	TraceName string
	// Offset is the 1-based ordinal of the trace entry involved. For an
	// exhausted trace it is the number of entries.
	Offset int
	// Expected is nil when the trace is exhausted.
	Expected *trace.Request
	Actual   trace.Request
}

// Error returns the text sent as the diagnostic response body.
func (e *MismatchError) Error() string {
	if e.Expected == nil {
		return fmt.Sprintf("Expected no request, but got %s '%s'.", e.Actual.Method, e.Actual.Target)
	}
	return fmt.Sprintf("Expected %s URI '%s', but got %s '%s'.",
		e.Expected.Method, e.Expected.Target, e.Actual.Method, e.Actual.Target)
}

// Is lets errors.Is distinguish mismatches from exhaustion.
func (e *MismatchError) Is(target error) bool {
	if target == ErrExhausted {
		return e.Expected == nil
	}
	return target == ErrMismatch && e.Expected != nil
}

// Exhausted reports whether the error was raised after the last entry.
func (e *MismatchError) Exhausted() bool {
	return e.Expected == nil
}

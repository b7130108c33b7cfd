package taskcache

import (
	"fmt"
	"time"
)

// Refresh outcome errors. Every error returned by a query wraps exactly one
// of them, so callers can branch with errors.Is.
var (
	// ErrProbeFailure is returned when the refresh function reported an error
	ErrProbeFailure = fmt.Errorf("taskcache: probe failed")
	// ErrProbeTimeout is returned when the refresh exceeded its operation timeout
	ErrProbeTimeout = fmt.Errorf("taskcache: probe timed out")
	// ErrProbeCancelled is returned when the caller stopped waiting, or every
	// waiter of a refresh left before it finished
	ErrProbeCancelled = fmt.Errorf("taskcache: probe cancelled")
	// ErrNilRefresh is returned when a query needs a refresh but got none
	ErrNilRefresh = fmt.Errorf("taskcache: refresh function is nil")
)

func probeError(kind, cause error) error {
	if cause == nil {
		return kind
	}
	return fmt.Errorf("%w: %w", kind, cause)
}

// ErrInvalidName returns an error for an invalid cache name
func ErrInvalidName(name string) error {
	return fmt.Errorf("taskcache: invalid name: %q (must be non-empty)", name)
}

// ErrInvalidExpiry returns an error for a negative expiry
func ErrInvalidExpiry(d time.Duration) error {
	return fmt.Errorf("taskcache: invalid expiry: %v (must be >= 0)", d)
}

// ErrInvalidOperationTimeout returns an error for a non-positive operation timeout
func ErrInvalidOperationTimeout(d time.Duration) error {
	return fmt.Errorf("taskcache: invalid operation timeout: %v (must be > 0)", d)
}

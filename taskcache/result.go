package taskcache

import "errors"

// LookupPolicy controls whether a keyed miss on a current snapshot triggers
// a refresh.
type LookupPolicy int

const (
	// UseCurrentSnapshot serves a current snapshot as is, including misses
	UseCurrentSnapshot LookupPolicy = iota
	// RefreshOnMiss forces exactly one refresh when the key is absent from a
	// current snapshot, then accepts the answer
	RefreshOnMiss
)

func (p LookupPolicy) String() string {
	switch p {
	case UseCurrentSnapshot:
		return "use_current_snapshot"
	case RefreshOnMiss:
		return "refresh_on_miss"
	default:
		return "unknown"
	}
}

// QueryResult carries a value together with where it came from.
type QueryResult[T any] struct {
	// Value is the zero value when Found is false
	Value T
	Found bool
	// FromCache is true iff the call was answered without waiting for a
	// refresh. A refreshed answer has FromCache false even when the value
	// did not change.
	FromCache bool
	// State is the cache state observed when the call returned
	State StateFlag
	// Version of the snapshot the answer was taken from, 0 if none
	Version uint64
}

// Fallback downgrades a failed refresh to a stale answer when the result
// still carries one. Cancellations are passed through untouched.
// Adapters that prefer stale data over errors wrap their queries with it.
func Fallback[T any](res QueryResult[T], err error) (QueryResult[T], error) {
	if err == nil || !res.Found || errors.Is(err, ErrProbeCancelled) {
		return res, err
	}
	return res, nil
}

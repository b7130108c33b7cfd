package taskcache

import (
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
)

// StateFlag is the externally visible state of a cache
type StateFlag int

const (
	// NotInitialized means no refresh has ever succeeded
	NotInitialized StateFlag = iota
	// Refreshing means a refresh is in flight
	Refreshing
	// Current means the last successful refresh is within the expiry window
	Current
	// Expired means the expiry window of the last successful refresh elapsed
	Expired
)

func (s StateFlag) String() string {
	switch s {
	case NotInitialized:
		return "not_initialized"
	case Refreshing:
		return "refreshing"
	case Current:
		return "current"
	case Expired:
		return "expired"
	default:
		return "unknown"
	}
}

// ExpiryPolicy decides when a snapshot becomes stale.
// The zero value never expires.
type ExpiryPolicy struct {
	d time.Duration
}

// NeverExpire returns a policy under which snapshots stay current forever
func NeverExpire() ExpiryPolicy {
	return ExpiryPolicy{}
}

// ExpireAfter returns a policy under which a snapshot is stale once more than
// d elapsed since it was taken. A non-positive d never expires.
func ExpireAfter(d time.Duration) ExpiryPolicy {
	if d < 0 {
		d = 0
	}
	return ExpiryPolicy{d: d}
}

// Duration returns the expiry window and whether the policy has one
func (p ExpiryPolicy) Duration() (time.Duration, bool) {
	return p.d, p.d > 0
}

// Expired reports whether a snapshot taken at refreshedAt is stale at now.
func (p ExpiryPolicy) Expired(refreshedAt, now time.Time) bool {
	return p.d > 0 && now.Sub(refreshedAt) > p.d
}

func (p ExpiryPolicy) String() string {
	if p.d <= 0 {
		return "never"
	}
	return p.d.String()
}

// snapshot is an immutable result of one successful refresh.
type snapshot[K comparable, V any] struct {
	entries     map[K]V
	version     uint64
	refreshedAt time.Time
}

func (s *snapshot[K, V]) get(key K) (V, bool) {
	v, ok := s.entries[key]
	return v, ok
}

// cacheState tracks the current snapshot and whether a refresh is in flight.
// Writers are serialized by the coordinator; readers never lock.
type cacheState[K comparable, V any] struct {
	policy     ExpiryPolicy
	clock      clock.Clock
	current    atomic.Pointer[snapshot[K, V]]
	refreshing atomic.Bool
}

func newCacheState[K comparable, V any](policy ExpiryPolicy, clk clock.Clock) *cacheState[K, V] {
	return &cacheState[K, V]{policy: policy, clock: clk}
}

func (s *cacheState[K, V]) load() *snapshot[K, V] {
	return s.current.Load()
}

// flag derives the state for snap at the current time.
func (s *cacheState[K, V]) flag(snap *snapshot[K, V]) StateFlag {
	switch {
	case s.refreshing.Load():
		return Refreshing
	case snap == nil:
		return NotInitialized
	case s.policy.Expired(snap.refreshedAt, s.clock.Now()):
		return Expired
	default:
		return Current
	}
}

// commit installs entries as the next version. Must be called with the
// coordinator lock held.
func (s *cacheState[K, V]) commit(entries map[K]V) *snapshot[K, V] {
	if entries == nil {
		entries = make(map[K]V)
	}
	var version uint64
	if prev := s.current.Load(); prev != nil {
		version = prev.version
	}
	next := &snapshot[K, V]{
		entries:     entries,
		version:     version + 1,
		refreshedAt: s.clock.Now(),
	}
	s.current.Store(next)
	return next
}

// Package taskcache implements a versioned, single-flight cache in front of
// an expensive asynchronous probe.
//
// A TaskCache holds one immutable snapshot (map[K]V) produced by the last
// successful refresh. Queries are answered from the snapshot while it is
// current; otherwise the caller waits for a refresh. Overlapping callers
// share one refresh and observe the same outcome. A failed refresh leaves the
// previous snapshot and version in place.
//
// Usage:
//
//	c, err := taskcache.New[netip.Addr, arp.DeviceInfo](log, &taskcache.Config{
//		Name:   "arp",
//		Expiry: time.Minute,
//	})
//	res, err := c.QueryKey(ctx, ip, taskcache.RefreshOnMiss, table.Refresh, 0)
//	if res.Found { ... }
//
// Snapshots are shared between callers and must be treated as read-only.
package taskcache

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/dailyyoga/netdisco/logger"
	"go.uber.org/zap"
)

// RefreshFunc produces a complete new snapshot. It must return promptly once
// ctx is done. A function that ignores ctx keeps running after its refresh
// timed out or was abandoned, and the next caller may then start a second
// refresh that overlaps it.
type RefreshFunc[K comparable, V any] func(ctx context.Context) (map[K]V, error)

// TaskCache is a generic single-flight refreshable cache. Use New to create one.
type TaskCache[K comparable, V any] struct {
	name     string
	log      logger.Logger
	timeout  time.Duration
	state    *cacheState[K, V]
	coord    *coordinator[K, V]
	observer Observer
}

// New creates a TaskCache. A nil cfg is rejected because Name is required.
func New[K comparable, V any](log logger.Logger, cfg *Config, opts ...Option) (*TaskCache[K, V], error) {
	if cfg == nil {
		cfg = DefaultConfig()
	} else {
		cfg.MergeDefaults()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := getOpts(opts)
	if log == nil {
		log = logger.NewNop()
	}

	state := newCacheState[K, V](cfg.ExpiryPolicy(), o.clock)
	return &TaskCache[K, V]{
		name:     cfg.Name,
		log:      log,
		timeout:  cfg.OperationTimeout,
		state:    state,
		coord:    newCoordinator(cfg.Name, log, state, o.observer),
		observer: o.observer,
	}, nil
}

// Name returns the configured cache name
func (c *TaskCache[K, V]) Name() string {
	return c.name
}

// State returns the current state flag without refreshing
func (c *TaskCache[K, V]) State() StateFlag {
	return c.state.flag(c.state.load())
}

// Version returns the number of successful refreshes so far
func (c *TaskCache[K, V]) Version() uint64 {
	if snap := c.state.load(); snap != nil {
		return snap.version
	}
	return 0
}

// Peek returns the last successful snapshot regardless of its state, never
// refreshing. Found is false before the first successful refresh.
func (c *TaskCache[K, V]) Peek() QueryResult[map[K]V] {
	snap := c.state.load()
	return c.allResult(snap, true)
}

// QueryAll returns the whole snapshot. A current snapshot is served directly;
// in every other state the call waits for a refresh.
//
// On failure the returned result still carries the retained snapshot (Found
// reports whether one exists) together with the error. timeout <= 0 uses
// the configured operation timeout.
//
// policy only matters for keyed lookups and is accepted for symmetry.
func (c *TaskCache[K, V]) QueryAll(
	ctx context.Context,
	policy LookupPolicy,
	refresh RefreshFunc[K, V],
	timeout time.Duration,
) (QueryResult[map[K]V], error) {
	seen := c.coord.observe()
	snap := seen.snap
	if c.state.flag(snap) == Current {
		c.observer.ObserveQuery(c.name, "all", true, true)
		return c.allResult(snap, true), nil
	}

	fresh, err := c.coord.ensureFresh(ctx, seen, refresh, c.operationTimeout(timeout))
	if err != nil {
		c.observer.ObserveQuery(c.name, "all", false, false)
		return c.allResult(c.state.load(), false), err
	}
	c.observer.ObserveQuery(c.name, "all", false, true)
	return c.allResult(fresh, false), nil
}

// QueryKey returns the value stored under key.
//
// With UseCurrentSnapshot a miss on a current snapshot is a final answer.
// With RefreshOnMiss such a miss forces exactly one refresh and the refreshed
// snapshot is authoritative, even if the key is still absent.
// A snapshot that is not current is always refreshed first.
//
// Error handling matches QueryAll: on failure the result is projected from
// the retained snapshot.
func (c *TaskCache[K, V]) QueryKey(
	ctx context.Context,
	key K,
	policy LookupPolicy,
	refresh RefreshFunc[K, V],
	timeout time.Duration,
) (QueryResult[V], error) {
	seen := c.coord.observe()
	snap := seen.snap
	if c.state.flag(snap) == Current {
		v, ok := snap.get(key)
		if ok || policy == UseCurrentSnapshot {
			c.observer.ObserveQuery(c.name, "key", true, ok)
			return c.keyResult(snap, v, ok, true), nil
		}
		c.log.Debug("key missing from current snapshot, refreshing",
			zap.String("cache", c.name),
			zap.Any("key", key),
			zap.Uint64("version", snap.version),
		)
	}

	fresh, err := c.coord.ensureFresh(ctx, seen, refresh, c.operationTimeout(timeout))
	if err != nil {
		retained := c.state.load()
		var v V
		var ok bool
		if retained != nil {
			v, ok = retained.get(key)
		}
		c.observer.ObserveQuery(c.name, "key", false, ok)
		return c.keyResult(retained, v, ok, false), err
	}
	v, ok := fresh.get(key)
	c.observer.ObserveQuery(c.name, "key", false, ok)
	return c.keyResult(fresh, v, ok, false), nil
}

func (c *TaskCache[K, V]) operationTimeout(timeout time.Duration) time.Duration {
	if timeout <= 0 {
		return c.timeout
	}
	return timeout
}

func (c *TaskCache[K, V]) allResult(snap *snapshot[K, V], fromCache bool) QueryResult[map[K]V] {
	res := QueryResult[map[K]V]{
		FromCache: fromCache,
		State:     c.state.flag(c.state.load()),
	}
	if snap != nil {
		res.Value = snap.entries
		res.Found = true
		res.Version = snap.version
	}
	return res
}

func (c *TaskCache[K, V]) keyResult(snap *snapshot[K, V], v V, found, fromCache bool) QueryResult[V] {
	res := QueryResult[V]{
		Value:     v,
		Found:     found,
		FromCache: fromCache,
		State:     c.state.flag(c.state.load()),
	}
	if snap != nil {
		res.Version = snap.version
	}
	return res
}

// Option configures a TaskCache
type Option func(*options)

type options struct {
	clock    clock.Clock
	observer Observer
}

func getOpts(opts []Option) options {
	cfg := options{
		clock:    clock.New(),
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// WithClock sets the clock used for timestamps and expiry. Defaults to the
// wall clock.
func WithClock(clk clock.Clock) Option {
	return func(c *options) {
		if clk != nil {
			c.clock = clk
		}
	}
}

// WithObserver registers an Observer for refresh and query events
func WithObserver(obs Observer) Option {
	return func(c *options) {
		if obs != nil {
			c.observer = obs
		}
	}
}

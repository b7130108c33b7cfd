package taskcache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dailyyoga/netdisco/logger"
	"github.com/dailyyoga/netdisco/routine"
	"go.uber.org/zap"
)

// flight is one in-flight refresh shared by every caller attached to it.
type flight[K comparable, V any] struct {
	done    chan struct{}
	cancel  context.CancelFunc
	waiters int

	// set before done is closed
	snap *snapshot[K, V]
	err  error
}

// coordinator guarantees that at most one refresh runs at a time and that
// all overlapping callers observe the same outcome.
type coordinator[K comparable, V any] struct {
	name     string
	log      logger.Logger
	state    *cacheState[K, V]
	observer Observer

	mu       sync.Mutex
	inflight *flight[K, V]
	// last completed flight, abandoned flights excluded
	last     *flight[K, V]
	finished atomic.Uint64
}

// observation is what a caller saw before deciding to refresh
type observation[K comparable, V any] struct {
	snap *snapshot[K, V]
	gen  uint64
}

// observe loads the flight generation before the snapshot so that a flight
// completing in between is never missed.
func (c *coordinator[K, V]) observe() observation[K, V] {
	gen := c.finished.Load()
	return observation[K, V]{snap: c.state.load(), gen: gen}
}

func newCoordinator[K comparable, V any](name string, log logger.Logger, state *cacheState[K, V], obs Observer) *coordinator[K, V] {
	return &coordinator[K, V]{
		name:     name,
		log:      log,
		state:    state,
		observer: obs,
	}
}

// ensureFresh waits for a refresh that completed after the caller observed
// seen. It attaches to the in-flight refresh if there is one, returns the
// outcome of a refresh that completed after seen, success or failure, and
// otherwise starts a new refresh.
//
// Cancelling ctx only detaches this caller. The refresh itself is cancelled
// once its last waiter is gone.
func (c *coordinator[K, V]) ensureFresh(
	ctx context.Context,
	seen observation[K, V],
	refresh RefreshFunc[K, V],
	timeout time.Duration,
) (*snapshot[K, V], error) {
	c.mu.Lock()
	f := c.inflight
	if f == nil {
		if last := c.last; last != nil && c.finished.Load() > seen.gen {
			c.mu.Unlock()
			return last.snap, last.err
		}
		if refresh == nil {
			c.mu.Unlock()
			return nil, ErrNilRefresh
		}
		f = c.start(refresh, timeout)
	}
	f.waiters++
	c.mu.Unlock()

	select {
	case <-f.done:
		return f.snap, f.err
	case <-ctx.Done():
		c.leave(f)
		return nil, probeError(ErrProbeCancelled, ctx.Err())
	}
}

// start publishes a new flight. Must be called with mu held.
func (c *coordinator[K, V]) start(refresh RefreshFunc[K, V], timeout time.Duration) *flight[K, V] {
	// the probe outlives any single caller, so it is not derived from one
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	f := &flight[K, V]{
		done:   make(chan struct{}),
		cancel: cancel,
	}
	c.inflight = f
	c.state.refreshing.Store(true)

	go c.run(ctx, f, refresh)
	return f
}

func (c *coordinator[K, V]) leave(f *flight[K, V]) {
	c.mu.Lock()
	defer c.mu.Unlock()

	f.waiters--
	if f.waiters > 0 || c.inflight != f {
		return
	}
	// nobody is interested anymore: abandon the probe and let the next
	// caller start over
	c.inflight = nil
	c.state.refreshing.Store(false)
	f.cancel()
	c.log.Debug("refresh abandoned by all waiters", zap.String("cache", c.name))
}

type outcome[K comparable, V any] struct {
	entries map[K]V
	err     error
}

func (c *coordinator[K, V]) run(ctx context.Context, f *flight[K, V], refresh RefreshFunc[K, V]) {
	defer f.cancel()
	start := time.Now()

	// refresh functions that ignore ctx must not hold waiters past the timeout
	results := make(chan outcome[K, V], 1)
	routine.Go(c.log, c.name+"-refresh", func() {
		var entries map[K]V
		err := routine.Call(c.log, c.name+"-refresh", func() error {
			var err error
			entries, err = refresh(ctx)
			return err
		})
		results <- outcome[K, V]{entries: entries, err: err}
	})

	var res outcome[K, V]
	select {
	case res = <-results:
	case <-ctx.Done():
		res.err = ctx.Err()
	}
	err := classify(ctx, res.err)

	c.mu.Lock()
	if c.inflight != f {
		// abandoned, a newer flight may already own the state
		c.mu.Unlock()
		f.err = probeError(ErrProbeCancelled, context.Canceled)
		close(f.done)
		return
	}
	if err == nil {
		f.snap = c.state.commit(res.entries)
	} else {
		f.err = err
	}
	c.inflight = nil
	c.last = f
	c.finished.Add(1)
	c.state.refreshing.Store(false)
	c.mu.Unlock()

	elapsed := time.Since(start)
	if err != nil {
		c.log.Warn("refresh failed",
			zap.String("cache", c.name),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		c.observer.ObserveRefresh(c.name, 0, elapsed, err)
	} else {
		c.log.Debug("refresh completed",
			zap.String("cache", c.name),
			zap.Uint64("version", f.snap.version),
			zap.Int("entries", len(f.snap.entries)),
			zap.Duration("elapsed", elapsed),
		)
		c.observer.ObserveRefresh(c.name, f.snap.version, elapsed, nil)
	}
	close(f.done)
}

// classify maps a refresh error onto the error taxonomy.
func classify(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		return probeError(ErrProbeTimeout, err)
	case errors.Is(ctx.Err(), context.Canceled):
		return probeError(ErrProbeCancelled, err)
	default:
		return probeError(ErrProbeFailure, err)
	}
}

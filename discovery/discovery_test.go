package discovery

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dailyyoga/netdisco/logger"
	"github.com/dailyyoga/netdisco/taskcache"
	"github.com/stretchr/testify/require"
)

// fakeSource serves a mutable map through a real TaskCache
type fakeSource struct {
	name  string
	cache *taskcache.TaskCache[string, string]
	calls atomic.Int32

	mu      sync.Mutex
	entries map[string]string
	err     error
}

func newFakeSource(t *testing.T, name string, expiry time.Duration) *fakeSource {
	t.Helper()
	c, err := taskcache.New[string, string](logger.NewNop(), &taskcache.Config{Name: name, Expiry: expiry})
	require.NoError(t, err)
	return &fakeSource{name: name, cache: c, entries: map[string]string{}}
}

func (s *fakeSource) set(entries map[string]string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = entries
	s.err = err
}

func (s *fakeSource) refresh(context.Context) (map[string]string, error) {
	s.calls.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return maps.Clone(s.entries), nil
}

func (s *fakeSource) Name() string { return s.name }

func (s *fakeSource) All(ctx context.Context) (taskcache.QueryResult[map[string]string], error) {
	return s.cache.QueryAll(ctx, taskcache.UseCurrentSnapshot, s.refresh, 0)
}

func (s *fakeSource) Probe(ctx context.Context, key string) (taskcache.QueryResult[string], error) {
	return s.cache.QueryKey(ctx, key, taskcache.RefreshOnMiss, s.refresh, 0)
}

func (s *fakeSource) ParseKey(key string) (string, error) {
	if key == "" {
		return "", errors.New("empty key")
	}
	return key, nil
}

type recordingObserver struct {
	mu       sync.Mutex
	sweeps   int
	failures int
	events   map[string]int
	sinks    []string
}

func (o *recordingObserver) ObserveSweep(_ string, _ int, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sweeps++
	if err != nil {
		o.failures++
	}
}

func (o *recordingObserver) ObserveEvent(_, kind string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.events == nil {
		o.events = map[string]int{}
	}
	o.events[kind]++
}

func (o *recordingObserver) ObserveSinkFailure(sink string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sinks = append(o.sinks, sink)
}

func fastConfig() *Config {
	return &Config{Interval: time.Hour, MaxRetries: 2, RetryBackoff: time.Millisecond}
}

func kinds(events []Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = fmt.Sprintf("%s:%s", e.Kind, e.Key)
	}
	return out
}

func TestService_SweepDiff(t *testing.T) {
	// a 1ns expiry makes every sweep after a short sleep refresh
	src := newFakeSource(t, "fake", time.Nanosecond)
	obs := &recordingObserver{}
	svc, err := NewService[string, string](logger.NewNop(), fastConfig(), src, WithObserver(obs))
	require.NoError(t, err)

	src.set(map[string]string{"a": "1", "b": "2"}, nil)
	events, err := svc.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"added:a", "added:b"}, kinds(events))
	for _, e := range events {
		require.NotEmpty(t, e.ID)
		require.Equal(t, "fake", e.Source)
		require.Equal(t, uint64(1), e.Version)
	}

	time.Sleep(time.Millisecond)
	src.set(map[string]string{"a": "1", "b": "3", "c": "4"}, nil)
	events, err = svc.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"updated:b", "added:c"}, kinds(events))

	time.Sleep(time.Millisecond)
	src.set(map[string]string{"c": "4"}, nil)
	events, err = svc.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"removed:a", "removed:b"}, kinds(events))
	require.Equal(t, "3", events[1].Entity, "removed events carry the last known value")

	require.Equal(t, 3, obs.sweeps)
	require.Equal(t, 3, obs.events[string(KindAdded)])
	require.Equal(t, 1, obs.events[string(KindUpdated)])
	require.Equal(t, 2, obs.events[string(KindRemoved)])
}

func TestService_SweepUnchangedVersion(t *testing.T) {
	src := newFakeSource(t, "fake", 0)
	svc, err := NewService[string, string](logger.NewNop(), fastConfig(), src)
	require.NoError(t, err)

	src.set(map[string]string{"a": "1"}, nil)
	events, err := svc.Sweep(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 1)

	// served from the current snapshot, nothing to publish
	events, err = svc.Sweep(context.Background())
	require.NoError(t, err)
	require.Empty(t, events)
	require.Equal(t, int32(1), src.calls.Load())
}

func TestService_SweepRetries(t *testing.T) {
	src := newFakeSource(t, "fake", 0)
	obs := &recordingObserver{}
	svc, err := NewService[string, string](logger.NewNop(), fastConfig(), src, WithObserver(obs))
	require.NoError(t, err)

	src.set(nil, errors.New("dial: connection refused"))
	_, err = svc.Sweep(context.Background())
	require.Error(t, err)
	require.ErrorIs(t, err, taskcache.ErrProbeFailure)
	require.Equal(t, int32(2), src.calls.Load(), "retryable errors are retried")
	require.Equal(t, 1, obs.failures)

	src.calls.Store(0)
	src.set(nil, errors.New("permission denied"))
	_, err = svc.Sweep(context.Background())
	require.Error(t, err)
	require.Equal(t, int32(1), src.calls.Load(), "other errors are not retried")
}

func TestService_PublishesToSubscribers(t *testing.T) {
	src := newFakeSource(t, "fake", 0)
	svc, err := NewService[string, string](logger.NewNop(), fastConfig(), src)
	require.NoError(t, err)

	sub := svc.Subscribe()
	src.set(map[string]string{"a": "1"}, nil)
	require.NoError(t, svc.Start(context.Background()))
	require.True(t, svc.IsRunning())
	require.ErrorIs(t, svc.Start(context.Background()), ErrAlreadyRunning)

	select {
	case e := <-sub.Events():
		require.Equal(t, KindAdded, e.Kind)
		require.Equal(t, "a", e.Key)
	case <-time.After(time.Second):
		t.Fatal("no event published by the initial sweep")
	}

	svc.Stop()
	require.False(t, svc.IsRunning())
	_, ok := <-sub.Events()
	require.False(t, ok, "stopping a service that owns its hub closes subscriptions")
}

// blockingSource holds All until released or its ctx is done
type blockingSource struct {
	*fakeSource
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *blockingSource) All(ctx context.Context) (taskcache.QueryResult[map[string]string], error) {
	s.once.Do(func() { close(s.entered) })
	select {
	case <-s.release:
	case <-ctx.Done():
		return taskcache.QueryResult[map[string]string]{}, ctx.Err()
	}
	return s.fakeSource.All(ctx)
}

func scheduled[K comparable, V any](s *Service[K, V]) bool {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	return s.sched != nil
}

func TestService_StopDuringInitialSweep(t *testing.T) {
	src := &blockingSource{
		fakeSource: newFakeSource(t, "fake", 0),
		entered:    make(chan struct{}),
		release:    make(chan struct{}),
	}
	svc, err := NewService[string, string](logger.NewNop(), fastConfig(), src, WithHub(NewHub(0)))
	require.NoError(t, err)

	started := make(chan error, 1)
	go func() { started <- svc.Start(context.Background()) }()
	<-src.entered

	svc.Stop()
	select {
	case err := <-started:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Stop did not cancel the initial sweep")
	}
	require.False(t, svc.IsRunning())
	require.False(t, scheduled(svc), "no sweeps may be scheduled after Stop")

	// the service can be started again and stopped for good
	close(src.release)
	require.NoError(t, svc.Start(context.Background()))
	require.True(t, svc.IsRunning())
	require.True(t, scheduled(svc))
	svc.Stop()
	require.False(t, svc.IsRunning())
	require.False(t, scheduled(svc))
}

func TestService_ProbeKeyPublishesNewEntity(t *testing.T) {
	src := newFakeSource(t, "fake", 0)
	svc, err := NewService[string, string](logger.NewNop(), fastConfig(), src)
	require.NoError(t, err)

	src.set(map[string]string{"a": "1"}, nil)
	_, err = svc.Sweep(context.Background())
	require.NoError(t, err)

	sub := svc.Subscribe()
	defer sub.Close()

	src.set(map[string]string{"a": "1", "b": "2"}, nil)
	res, err := svc.ProbeKey(context.Background(), "b")
	require.NoError(t, err)
	require.True(t, res.Found)
	require.False(t, res.FromCache)
	require.Equal(t, "2", res.Entity)
	require.Equal(t, uint64(2), res.Version)

	select {
	case e := <-sub.Events():
		require.Equal(t, "added", string(e.Kind))
		require.Equal(t, "b", e.Key)
	case <-time.After(time.Second):
		t.Fatal("probe did not publish the new entity")
	}

	_, err = svc.ProbeKey(context.Background(), "")
	require.Error(t, err)
}

func TestService_InvalidConfig(t *testing.T) {
	src := newFakeSource(t, "fake", 0)
	_, err := NewService[string, string](logger.NewNop(), &Config{MaxRetries: -1}, src)
	require.ErrorIs(t, err, ErrInvalidConfig)
}

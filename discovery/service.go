package discovery

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dailyyoga/netdisco/cron"
	"github.com/dailyyoga/netdisco/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Service periodically sweeps a Source and publishes changes.
type Service[K comparable, V any] struct {
	name     string
	cfg      *Config
	log      logger.Logger
	source   Source[K, V]
	hub      *Hub
	ownsHub  bool
	observer Observer

	// lifecycle guards sched, stopSweep and epoch
	lifecycle sync.Mutex
	running   atomic.Bool
	sched     cron.Cron
	stopSweep context.CancelFunc
	// bumped by Stop so that a Start still in its initial sweep backs out
	epoch     uint64

	// serializes diffs so events are published in version order
	mu      sync.Mutex
	version uint64
	known   map[K]V
}

// ServiceOption configures a Service
type ServiceOption func(*serviceOptions)

type serviceOptions struct {
	hub      *Hub
	observer Observer
}

// WithHub publishes into a shared hub, usually Manager.Hub()
func WithHub(h *Hub) ServiceOption {
	return func(o *serviceOptions) { o.hub = h }
}

// WithObserver reports sweeps and events to obs
func WithObserver(obs Observer) ServiceOption {
	return func(o *serviceOptions) {
		if obs != nil {
			o.observer = obs
		}
	}
}

// NewService creates a stopped service for src
func NewService[K comparable, V any](log logger.Logger, cfg *Config, src Source[K, V], opts ...ServiceOption) (*Service[K, V], error) {
	if cfg == nil {
		cfg = DefaultConfig()
	} else {
		cfg.MergeDefaults()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := serviceOptions{observer: nopObserver{}}
	for _, opt := range opts {
		opt(&o)
	}
	svc := &Service[K, V]{
		name:     src.Name(),
		cfg:      cfg,
		log:      log.Named("discovery").With(zap.String("source", src.Name())),
		source:   src,
		hub:      o.hub,
		observer: o.observer,
	}
	if svc.hub == nil {
		svc.hub = NewHub(0)
		svc.ownsHub = true
	}
	return svc, nil
}

// Name returns the source name
func (s *Service[K, V]) Name() string {
	return s.name
}

// Subscribe returns a subscription on the service hub
func (s *Service[K, V]) Subscribe() *Subscription {
	return s.hub.Subscribe()
}

// IsRunning reports whether scheduled sweeps are active
func (s *Service[K, V]) IsRunning() bool {
	return s.running.Load()
}

// Start runs an initial sweep and schedules the following ones. A failing
// initial sweep is logged, not returned: the network may come up later.
// Stop during the initial sweep cancels it and nothing gets scheduled.
func (s *Service[K, V]) Start(ctx context.Context) error {
	s.lifecycle.Lock()
	if s.running.Load() {
		s.lifecycle.Unlock()
		return ErrAlreadyRunning
	}
	s.running.Store(true)
	epoch := s.epoch
	sweepCtx, cancel := context.WithCancel(ctx)
	s.stopSweep = cancel
	s.lifecycle.Unlock()

	_, err := s.Sweep(sweepCtx)
	cancel()

	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	if s.epoch != epoch {
		s.log.Info("discovery service stopped during initial sweep")
		return nil
	}
	s.stopSweep = nil
	if err != nil {
		s.log.Warn("initial sweep failed", zap.Error(err))
	}

	spec := s.cfg.Schedule
	if spec == "" {
		spec = cron.Every(s.cfg.Interval)
	}
	sched := cron.New(s.log, s.cfg.SweepTimeout)
	err = sched.AddTasks(s.name, spec, cron.TaskFunc{
		TaskName: "sweep",
		Fn: func(ctx context.Context) error {
			_, err := s.Sweep(ctx)
			return err
		},
	})
	if err != nil {
		s.running.Store(false)
		return err
	}
	s.sched = sched
	sched.Start()

	s.log.Info("discovery service started", zap.String("spec", spec))
	return nil
}

// Stop cancels scheduled sweeps, or the initial sweep of a Start still in
// progress. A service that owns its hub also closes every subscription.
func (s *Service[K, V]) Stop() {
	s.lifecycle.Lock()
	if !s.running.CompareAndSwap(true, false) {
		s.lifecycle.Unlock()
		return
	}
	s.epoch++
	if s.stopSweep != nil {
		s.stopSweep()
		s.stopSweep = nil
	}
	sched := s.sched
	s.sched = nil
	s.lifecycle.Unlock()

	// Close waits for a running sweep, which never takes lifecycle
	if sched != nil {
		sched.Close()
	}
	if s.ownsHub {
		s.hub.Close()
	}
	s.log.Info("discovery service stopped")
}

// Sweep queries the source with retries and publishes the changes since the
// previous sweep. It returns the published events.
func (s *Service[K, V]) Sweep(ctx context.Context) ([]Event, error) {
	var entities map[K]V
	var version uint64
	err := withRetry(ctx, s.log, s.name, s.cfg.MaxRetries, s.cfg.RetryBackoff, func(ctx context.Context) error {
		res, err := s.source.All(ctx)
		if err != nil {
			return err
		}
		entities, version = res.Value, res.Version
		return nil
	})
	if err != nil {
		s.observer.ObserveSweep(s.name, 0, err)
		return nil, ErrSweep(s.name, err)
	}
	s.observer.ObserveSweep(s.name, len(entities), nil)
	return s.apply(entities, version), nil
}

// ProbeKey implements Handle. A probe that refreshed the cache publishes the
// resulting changes right away.
func (s *Service[K, V]) ProbeKey(ctx context.Context, key string) (ProbeResult, error) {
	k, err := s.source.ParseKey(key)
	if err != nil {
		return ProbeResult{}, ErrParseKey(s.name, key, err)
	}
	res, err := s.source.Probe(ctx, k)
	out := ProbeResult{
		Source:    s.name,
		Key:       keyString(k),
		Found:     res.Found,
		FromCache: res.FromCache,
		State:     res.State.String(),
		Version:   res.Version,
	}
	if res.Found {
		out.Entity = res.Value
	}
	if err != nil {
		return out, err
	}

	if !res.FromCache {
		// the snapshot is current now, so this does not hit the network
		if all, err := s.source.All(ctx); err == nil {
			s.apply(all.Value, all.Version)
		}
	}
	return out, nil
}

// Snapshot implements Handle
func (s *Service[K, V]) Snapshot(ctx context.Context) (SnapshotResult, error) {
	res, err := s.source.All(ctx)
	out := SnapshotResult{
		Source:    s.name,
		Entities:  make(map[string]any, len(res.Value)),
		FromCache: res.FromCache,
		State:     res.State.String(),
		Version:   res.Version,
	}
	for k, v := range res.Value {
		out.Entities[keyString(k)] = v
	}
	return out, err
}

// apply diffs entities against the last applied version
func (s *Service[K, V]) apply(entities map[K]V, version uint64) []Event {
	s.mu.Lock()
	if s.known != nil && version <= s.version {
		s.mu.Unlock()
		return nil
	}
	events := diff(s.name, s.known, entities, version, time.Now())
	s.known = entities
	s.version = version
	s.mu.Unlock()

	if len(events) == 0 {
		return nil
	}
	s.hub.Publish(events...)
	for _, e := range events {
		s.observer.ObserveEvent(s.name, string(e.Kind))
	}
	s.log.Debug("published changes", zap.Uint64("version", version), zap.Int("events", len(events)))
	return events
}

// diff returns added, updated and removed events ordered by key
func diff[K comparable, V any](source string, prev, next map[K]V, version uint64, now time.Time) []Event {
	var events []Event
	emit := func(kind Kind, k K, v V) {
		events = append(events, Event{
			ID:         uuid.NewString(),
			Kind:       kind,
			Source:     source,
			Key:        keyString(k),
			Entity:     v,
			Version:    version,
			ObservedAt: now,
		})
	}
	for k, v := range next {
		old, ok := prev[k]
		switch {
		case !ok:
			emit(KindAdded, k, v)
		case !reflect.DeepEqual(old, v):
			emit(KindUpdated, k, v)
		}
	}
	for k, v := range prev {
		if _, ok := next[k]; !ok {
			emit(KindRemoved, k, v)
		}
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Key < events[j].Key })
	return events
}

func keyString[K comparable](k K) string {
	if s, ok := any(k).(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprint(k)
}

package discovery

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/dailyyoga/netdisco/logger"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Manager owns the discovery services of one process and their shared hub
type Manager struct {
	log      logger.Logger
	hub      *Hub
	observer Observer

	mu       sync.RWMutex
	services map[string]Handle
	running  atomic.Bool
}

// NewManager creates an empty manager. Services publishing into Hub() are
// registered with Register.
func NewManager(log logger.Logger, obs Observer) *Manager {
	if obs == nil {
		obs = nopObserver{}
	}
	return &Manager{
		log:      log.Named("discovery"),
		hub:      NewHub(0),
		observer: obs,
		services: make(map[string]Handle),
	}
}

// Hub returns the hub shared by the registered services
func (m *Manager) Hub() *Hub {
	return m.hub
}

// Observer returns the observer services should report to
func (m *Manager) Observer() Observer {
	return m.observer
}

// Register adds a service. Names must be unique.
func (m *Manager) Register(h Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.services[h.Name()]; ok {
		return errDuplicateSource(h.Name())
	}
	m.services[h.Name()] = h
	m.log.Debug("registered source", zap.String("source", h.Name()))
	return nil
}

// Sources returns the registered source names in order
func (m *Manager) Sources() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.services))
	for name := range m.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *Manager) lookup(name string) (Handle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.services[name]
	if !ok {
		return nil, errUnknownSource(name)
	}
	return h, nil
}

// Start starts every service concurrently. If one fails the others are
// stopped again.
func (m *Manager) Start(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	m.mu.RLock()
	handles := make([]Handle, 0, len(m.services))
	for _, h := range m.services {
		handles = append(handles, h)
	}
	m.mu.RUnlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, h := range handles {
		g.Go(func() error {
			return h.Start(gctx)
		})
	}
	if err := g.Wait(); err != nil {
		for _, h := range handles {
			h.Stop()
		}
		m.running.Store(false)
		return err
	}

	m.log.Info("discovery manager started", zap.Int("sources", len(handles)))
	return nil
}

// Stop stops every service and closes the hub
func (m *Manager) Stop() {
	if !m.running.CompareAndSwap(true, false) {
		return
	}
	m.mu.RLock()
	for _, h := range m.services {
		h.Stop()
	}
	m.mu.RUnlock()
	m.hub.Close()
	m.log.Info("discovery manager stopped")
}

// IsRunning reports whether Start succeeded and Stop was not called yet
func (m *Manager) IsRunning() bool {
	return m.running.Load()
}

// Subscribe subscribes to the events of every registered service
func (m *Manager) Subscribe() *Subscription {
	return m.hub.Subscribe()
}

// Probe looks key up on the named source
func (m *Manager) Probe(ctx context.Context, source, key string) (ProbeResult, error) {
	h, err := m.lookup(source)
	if err != nil {
		return ProbeResult{}, err
	}
	return h.ProbeKey(ctx, key)
}

// Snapshot returns all entities of the named source
func (m *Manager) Snapshot(ctx context.Context, source string) (SnapshotResult, error) {
	h, err := m.lookup(source)
	if err != nil {
		return SnapshotResult{}, err
	}
	return h.Snapshot(ctx)
}

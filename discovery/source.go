package discovery

import (
	"context"

	"github.com/dailyyoga/netdisco/taskcache"
)

// Source is a cache backed discovery adapter, such as arp.Cache
type Source[K comparable, V any] interface {
	Name() string
	// All returns the whole snapshot, refreshing when it is not current
	All(ctx context.Context) (taskcache.QueryResult[map[K]V], error)
	// Probe looks one key up, searching the network on a miss
	Probe(ctx context.Context, key K) (taskcache.QueryResult[V], error)
	// ParseKey converts an external key representation
	ParseKey(s string) (K, error)
}

// ProbeResult is the type-erased answer of Manager.Probe
type ProbeResult struct {
	Source    string `json:"source"`
	Key       string `json:"key"`
	Found     bool   `json:"found"`
	Entity    any    `json:"entity,omitempty"`
	FromCache bool   `json:"from_cache"`
	State     string `json:"state"`
	Version   uint64 `json:"version"`
}

// SnapshotResult is the type-erased answer of Manager.Snapshot
type SnapshotResult struct {
	Source    string         `json:"source"`
	Entities  map[string]any `json:"entities"`
	FromCache bool           `json:"from_cache"`
	State     string         `json:"state"`
	Version   uint64         `json:"version"`
}

// Handle is what a Manager needs from a service, independent of its key
// and value types. *Service[K, V] implements it.
type Handle interface {
	Name() string
	Start(ctx context.Context) error
	Stop()
	IsRunning() bool
	ProbeKey(ctx context.Context, key string) (ProbeResult, error)
	Snapshot(ctx context.Context) (SnapshotResult, error)
}

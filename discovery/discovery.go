// Package discovery turns the adapter caches into background discovery
// services.
//
// A Service sweeps one Source on a schedule and, whenever the cache version
// moved, publishes the difference to the previous sweep as Events on a Hub.
// A Manager owns several services, dispatches on-demand probes by source
// name, and a Forwarder drains a Hub subscription into Sinks.
package discovery

import (
	"time"
)

// Kind is the type of change an Event reports
type Kind string

const (
	KindAdded   Kind = "added"
	KindUpdated Kind = "updated"
	KindRemoved Kind = "removed"
)

// Event is one observed change of a discovered entity
type Event struct {
	ID     string `json:"id"`
	Kind   Kind   `json:"kind"`
	Source string `json:"source"`
	Key    string `json:"key"`
	// Entity is the current value, or the last known value for KindRemoved
	Entity     any       `json:"entity"`
	Version    uint64    `json:"version"`
	ObservedAt time.Time `json:"observed_at"`
}

// Observer receives discovery activity, typically to export metrics
type Observer interface {
	ObserveSweep(source string, entities int, err error)
	ObserveEvent(source, kind string)
	ObserveSinkFailure(sink string)
}

type nopObserver struct{}

func (nopObserver) ObserveSweep(string, int, error) {}
func (nopObserver) ObserveEvent(string, string)     {}
func (nopObserver) ObserveSinkFailure(string)       {}

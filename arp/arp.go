// Package arp resolves IPv4 addresses to link-layer addresses using the
// operating system neighbour table.
//
// The table is read through a Table implementation (netlink on Linux, or the
// /proc/net/arp text file) and fronted by a taskcache.TaskCache keyed by IP.
// Resolve sends a datagram to the target first so that the kernel starts an
// ARP exchange for addresses it has not seen yet.
package arp

import (
	"context"
	"net/netip"
	"strings"
)

// NeighborState mirrors the kernel neighbour cache states
type NeighborState int

const (
	StateUnknown NeighborState = iota
	StateIncomplete
	StateReachable
	StateStale
	StateDelay
	StateProbe
	StateFailed
	StateNoARP
	StatePermanent
)

var stateNames = map[NeighborState]string{
	StateUnknown:    "unknown",
	StateIncomplete: "incomplete",
	StateReachable:  "reachable",
	StateStale:      "stale",
	StateDelay:      "delay",
	StateProbe:      "probe",
	StateFailed:     "failed",
	StateNoARP:      "noarp",
	StatePermanent:  "permanent",
}

func (s NeighborState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return stateNames[StateUnknown]
}

// MarshalText implements encoding.TextMarshaler
func (s NeighborState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (s *NeighborState) UnmarshalText(b []byte) error {
	name := strings.ToLower(string(b))
	for state, n := range stateNames {
		if n == name {
			*s = state
			return nil
		}
	}
	*s = StateUnknown
	return nil
}

// Resolved reports whether the entry carries a usable hardware address
func (s NeighborState) Resolved() bool {
	switch s {
	case StateIncomplete, StateFailed, StateUnknown:
		return false
	default:
		return true
	}
}

// DeviceInfo is one neighbour table entry
type DeviceInfo struct {
	IP        netip.Addr    `json:"ip"`
	MAC       string        `json:"mac"`
	Interface string        `json:"interface"`
	State     NeighborState `json:"state"`
}

// Table enumerates the neighbour table
type Table interface {
	Entries(ctx context.Context) ([]DeviceInfo, error)
}

// Prober provokes address resolution for ip
type Prober interface {
	Probe(ctx context.Context, ip netip.Addr) error
}

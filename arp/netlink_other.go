//go:build !linux

package arp

import "context"

// NetlinkTable is unavailable outside Linux; use ProcTable or a custom Table.
type NetlinkTable struct{}

// Entries implements Table
func (NetlinkTable) Entries(context.Context) ([]DeviceInfo, error) {
	return nil, ErrUnsupported
}

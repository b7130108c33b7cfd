//go:build linux

package arp

import (
	"context"
	"net/netip"

	"github.com/vishvananda/netlink"
)

// NetlinkTable reads IPv4 neighbours over rtnetlink.
type NetlinkTable struct{}

// Entries implements Table
func (NetlinkTable) Entries(ctx context.Context) ([]DeviceInfo, error) {
	neighs, err := netlink.NeighList(0, netlink.FAMILY_V4)
	if err != nil {
		return nil, ErrReadTable(err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	names := make(map[int]string)
	entries := make([]DeviceInfo, 0, len(neighs))
	for _, n := range neighs {
		info, ok := fromNeigh(n)
		if !ok {
			continue
		}
		name, seen := names[n.LinkIndex]
		if !seen {
			if link, err := netlink.LinkByIndex(n.LinkIndex); err == nil {
				name = link.Attrs().Name
			}
			names[n.LinkIndex] = name
		}
		info.Interface = name
		entries = append(entries, info)
	}
	return entries, nil
}

// kernel NUD_* bits in precedence order
var nudStates = []struct {
	bit   int
	state NeighborState
}{
	{netlink.NUD_PERMANENT, StatePermanent},
	{netlink.NUD_NOARP, StateNoARP},
	{netlink.NUD_REACHABLE, StateReachable},
	{netlink.NUD_STALE, StateStale},
	{netlink.NUD_DELAY, StateDelay},
	{netlink.NUD_PROBE, StateProbe},
	{netlink.NUD_FAILED, StateFailed},
	{netlink.NUD_INCOMPLETE, StateIncomplete},
}

func neighState(nud int) NeighborState {
	for _, s := range nudStates {
		if nud&s.bit != 0 {
			return s.state
		}
	}
	return StateUnknown
}

// fromNeigh converts a netlink neighbour, skipping non-IPv4 entries.
func fromNeigh(n netlink.Neigh) (DeviceInfo, bool) {
	ip, ok := netip.AddrFromSlice(n.IP)
	if !ok {
		return DeviceInfo{}, false
	}
	ip = ip.Unmap()
	if !ip.Is4() {
		return DeviceInfo{}, false
	}
	info := DeviceInfo{
		IP:    ip,
		State: neighState(n.State),
	}
	if len(n.HardwareAddr) > 0 && !isZeroMAC(n.HardwareAddr) {
		info.MAC = n.HardwareAddr.String()
	}
	return info, true
}

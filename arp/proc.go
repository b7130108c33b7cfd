package arp

import (
	"bufio"
	"context"
	"io"
	"net"
	"net/netip"
	"os"
	"strconv"
	"strings"
)

// ATF flags in /proc/net/arp
const (
	atfCom  = 0x02
	atfPerm = 0x04
)

// ProcTable reads the IPv4 ARP table from a /proc/net/arp formatted file.
type ProcTable struct {
	Path string
}

// Entries implements Table
func (t *ProcTable) Entries(ctx context.Context) ([]DeviceInfo, error) {
	f, err := os.Open(t.Path)
	if err != nil {
		return nil, ErrReadTable(err)
	}
	defer f.Close()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return ParseProcARP(f)
}

// ParseProcARP parses the contents of /proc/net/arp. The header line is
// skipped; entries with an all-zero hardware address are reported as
// incomplete.
func ParseProcARP(r io.Reader) ([]DeviceInfo, error) {
	var entries []DeviceInfo
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if lineNo == 1 || line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 6 {
			return nil, ErrParseLine(lineNo, "expected 6 fields")
		}

		ip, err := netip.ParseAddr(fields[0])
		if err != nil {
			return nil, ErrParseLine(lineNo, err.Error())
		}
		flags, err := strconv.ParseUint(strings.TrimPrefix(fields[2], "0x"), 16, 32)
		if err != nil {
			return nil, ErrParseLine(lineNo, "bad flags "+fields[2])
		}

		info := DeviceInfo{
			IP:        ip.Unmap(),
			Interface: fields[5],
			State:     procState(flags),
		}
		if hw, err := net.ParseMAC(fields[3]); err == nil && !isZeroMAC(hw) {
			info.MAC = hw.String()
		} else if info.State.Resolved() {
			info.State = StateIncomplete
		}
		entries = append(entries, info)
	}
	if err := scanner.Err(); err != nil {
		return nil, ErrReadTable(err)
	}
	return entries, nil
}

func procState(flags uint64) NeighborState {
	switch {
	case flags&atfPerm != 0:
		return StatePermanent
	case flags&atfCom != 0:
		return StateReachable
	default:
		return StateIncomplete
	}
}

func isZeroMAC(hw net.HardwareAddr) bool {
	for _, b := range hw {
		if b != 0 {
			return false
		}
	}
	return true
}

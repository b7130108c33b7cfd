package arp

import (
	"context"
	"net"
	"net/netip"
	"strconv"
)

// UDPProber sends a single datagram to the target so the kernel has to
// resolve its link-layer address before transmitting.
type UDPProber struct {
	// Port defaults to 9 (discard)
	Port int
}

// Probe implements Prober
func (p *UDPProber) Probe(ctx context.Context, ip netip.Addr) error {
	port := p.Port
	if port == 0 {
		port = 9
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp4", net.JoinHostPort(ip.String(), strconv.Itoa(port)))
	if err != nil {
		return err
	}
	defer conn.Close()
	_, err = conn.Write([]byte{0})
	return err
}

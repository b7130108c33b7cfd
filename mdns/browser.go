package mdns

import (
	"context"
	"errors"
	"net"
	"os"
	"time"

	"github.com/dailyyoga/netdisco/logger"
	"github.com/miekg/dns"
	"go.uber.org/zap"
	"golang.org/x/net/ipv4"
)

var groupAddr = &net.UDPAddr{IP: net.IPv4(224, 0, 0, 251), Port: 5353}

// MulticastBrowser sends one-shot legacy unicast queries (RFC 6762 section
// 6.7) from an ephemeral port, so responders answer straight back to it and
// no membership of the 5353 group is needed.
type MulticastBrowser struct {
	// Interface names the outgoing interface, empty uses the routing table
	Interface string
	Log       logger.Logger
}

// Browse implements Browser
func (b *MulticastBrowser) Browse(ctx context.Context, service string, window time.Duration) ([]*dns.Msg, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero})
	if err != nil {
		return nil, ErrSocket(err)
	}
	defer conn.Close()

	pc := ipv4.NewPacketConn(conn)
	if err := pc.SetMulticastTTL(255); err != nil {
		return nil, ErrSocket(err)
	}
	if b.Interface != "" {
		ifi, err := net.InterfaceByName(b.Interface)
		if err != nil {
			return nil, ErrSocket(err)
		}
		if err := pc.SetMulticastInterface(ifi); err != nil {
			return nil, ErrSocket(err)
		}
	}

	query := new(dns.Msg)
	query.SetQuestion(dns.Fqdn(service), dns.TypePTR)
	query.RecursionDesired = false
	wire, err := query.Pack()
	if err != nil {
		return nil, err
	}
	if _, err := pc.WriteTo(wire, nil, groupAddr); err != nil {
		return nil, ErrSocket(err)
	}

	deadline := time.Now().Add(window)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, ErrSocket(err)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})
	defer stop()

	var msgs []*dns.Msg
	buf := make([]byte, 9000)
	for {
		n, _, src, err := pc.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				break
			}
			return msgs, ErrSocket(err)
		}
		m := new(dns.Msg)
		if err := m.Unpack(buf[:n]); err != nil {
			if b.Log != nil {
				b.Log.Debug("dropping malformed packet", zap.Stringer("from", src), zap.Error(err))
			}
			continue
		}
		if !m.Response {
			continue
		}
		msgs = append(msgs, m)
	}
	if err := ctx.Err(); err != nil {
		return msgs, err
	}
	return msgs, nil
}

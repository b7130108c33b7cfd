// Package mdns discovers DNS-SD services announced over multicast DNS.
package mdns

import (
	"context"
	"net/netip"
	"strings"
	"time"

	"github.com/miekg/dns"
)

// ServiceInfo describes one DNS-SD service instance
type ServiceInfo struct {
	// Instance is the canonical instance name, e.g. "printer._ipp._tcp.local."
	Instance string       `json:"instance"`
	Name     string       `json:"name"`
	Service  string       `json:"service"`
	Domain   string       `json:"domain"`
	Host     string       `json:"host"`
	Port     uint16       `json:"port"`
	Addrs    []netip.Addr `json:"addrs"`
	Text     []string     `json:"text"`
	TTL      uint32       `json:"ttl"`
}

// Browser sends a PTR query for service and collects responses for window
type Browser interface {
	Browse(ctx context.Context, service string, window time.Duration) ([]*dns.Msg, error)
}

// ServiceName joins a service type and domain into a canonical query name
func ServiceName(service, domain string) string {
	return dns.CanonicalName(strings.TrimSuffix(service, ".") + "." + strings.Trim(domain, "."))
}

// splitInstance splits "name._svc._proto.domain." given the canonical
// service name "_svc._proto.domain.".
func splitInstance(instance, service string) string {
	name := strings.TrimSuffix(instance, "."+service)
	if name == instance {
		return ""
	}
	return name
}

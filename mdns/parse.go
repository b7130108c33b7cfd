package mdns

import (
	"net/netip"
	"slices"
	"strings"

	"github.com/miekg/dns"
)

// ParseResponses folds the records of msgs into service instances of the
// canonical service name svc. Instances announced with a zero TTL (goodbye
// packets) are dropped, as are instances without SRV data.
func ParseResponses(msgs []*dns.Msg, svc, domain string) map[string]ServiceInfo {
	var (
		instances = make(map[string]uint32)
		goodbye   = make(map[string]struct{})
		srvs      = make(map[string]*dns.SRV)
		txts      = make(map[string][]string)
		addrs     = make(map[string][]netip.Addr)
	)

	for _, m := range msgs {
		if m == nil {
			continue
		}
		for _, rr := range allRecords(m) {
			name := dns.CanonicalName(rr.Header().Name)
			switch r := rr.(type) {
			case *dns.PTR:
				if name != svc {
					continue
				}
				inst := dns.CanonicalName(r.Ptr)
				if r.Hdr.Ttl == 0 {
					goodbye[inst] = struct{}{}
					continue
				}
				instances[inst] = r.Hdr.Ttl
			case *dns.SRV:
				srvs[name] = r
			case *dns.TXT:
				txts[name] = r.Txt
			case *dns.A:
				if ip, ok := netip.AddrFromSlice(r.A); ok {
					addrs[name] = appendAddr(addrs[name], ip.Unmap())
				}
			case *dns.AAAA:
				if ip, ok := netip.AddrFromSlice(r.AAAA); ok {
					addrs[name] = appendAddr(addrs[name], ip)
				}
			}
		}
	}

	service := strings.TrimSuffix(strings.TrimSuffix(svc, "."), "."+strings.Trim(domain, "."))
	out := make(map[string]ServiceInfo, len(instances))
	for inst, ttl := range instances {
		if _, gone := goodbye[inst]; gone {
			continue
		}
		srv, ok := srvs[inst]
		if !ok {
			continue
		}
		host := dns.CanonicalName(srv.Target)
		info := ServiceInfo{
			Instance: inst,
			Name:     splitInstance(inst, svc),
			Service:  service,
			Domain:   strings.Trim(domain, "."),
			Host:     host,
			Port:     srv.Port,
			Addrs:    addrs[host],
			Text:     txts[inst],
			TTL:      ttl,
		}
		slices.SortFunc(info.Addrs, func(a, b netip.Addr) int { return a.Compare(b) })
		out[inst] = info
	}
	return out
}

func allRecords(m *dns.Msg) []dns.RR {
	rrs := make([]dns.RR, 0, len(m.Answer)+len(m.Ns)+len(m.Extra))
	rrs = append(rrs, m.Answer...)
	rrs = append(rrs, m.Ns...)
	return append(rrs, m.Extra...)
}

func appendAddr(list []netip.Addr, ip netip.Addr) []netip.Addr {
	if slices.Contains(list, ip) {
		return list
	}
	return append(list, ip)
}

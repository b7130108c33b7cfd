package arp

import (
	"context"
	"net/netip"
	"time"

	"github.com/dailyyoga/netdisco/logger"
	"github.com/dailyyoga/netdisco/taskcache"
	"go.uber.org/zap"
)

// Name is the cache and discovery source name of the ARP adapter
const Name = "arp"

// Cache answers IP to link-layer address queries from a cached neighbour table
type Cache struct {
	cfg    *Config
	log    logger.Logger
	table  Table
	prober Prober
	cache  *taskcache.TaskCache[netip.Addr, DeviceInfo]
}

// NewTable returns the Table selected by cfg.Source
func NewTable(cfg *Config) Table {
	if cfg.Source == SourceProc {
		return &ProcTable{Path: cfg.ProcPath}
	}
	return NetlinkTable{}
}

// NewCache creates an ARP cache. A nil prober disables probing in Resolve.
func NewCache(log logger.Logger, cfg *Config, table Table, prober Prober, opts ...taskcache.Option) (*Cache, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	} else {
		cfg.MergeDefaults()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log = log.Named(Name)

	tc, err := taskcache.New[netip.Addr, DeviceInfo](log, &taskcache.Config{
		Name:             Name,
		Expiry:           cfg.Expiry,
		OperationTimeout: cfg.OperationTimeout,
	}, opts...)
	if err != nil {
		return nil, err
	}
	return &Cache{
		cfg:    cfg,
		log:    log,
		table:  table,
		prober: prober,
		cache:  tc,
	}, nil
}

// Name implements discovery.Source
func (c *Cache) Name() string {
	return Name
}

// TaskCache exposes the underlying cache for state inspection
func (c *Cache) TaskCache() *taskcache.TaskCache[netip.Addr, DeviceInfo] {
	return c.cache
}

// All returns every known neighbour
func (c *Cache) All(ctx context.Context) (taskcache.QueryResult[map[netip.Addr]DeviceInfo], error) {
	return c.stale(c.cache.QueryAll(ctx, taskcache.UseCurrentSnapshot, c.refresh, 0))
}

// Lookup returns the entry for ip under policy
func (c *Cache) Lookup(ctx context.Context, ip netip.Addr, policy taskcache.LookupPolicy) (taskcache.QueryResult[DeviceInfo], error) {
	res, err := c.cache.QueryKey(ctx, ip.Unmap(), policy, c.refresh, 0)
	if c.cfg.ServeStale {
		return taskcache.Fallback(res, err)
	}
	return res, err
}

// Resolve looks ip up and, if it is not in a current snapshot, probes it and
// re-reads the table once.
func (c *Cache) Resolve(ctx context.Context, ip netip.Addr) (taskcache.QueryResult[DeviceInfo], error) {
	ip = ip.Unmap()
	res, err := c.Lookup(ctx, ip, taskcache.UseCurrentSnapshot)
	if err != nil || res.Found {
		return res, err
	}

	if c.prober != nil {
		if err := c.prober.Probe(ctx, ip); err != nil {
			c.log.Warn("probe failed", zap.Stringer("ip", ip), zap.Error(err))
		} else if err := sleep(ctx, c.cfg.ProbeSettle); err != nil {
			return res, err
		}
	}
	return c.Lookup(ctx, ip, taskcache.RefreshOnMiss)
}

// Probe implements discovery.Source
func (c *Cache) Probe(ctx context.Context, ip netip.Addr) (taskcache.QueryResult[DeviceInfo], error) {
	return c.Resolve(ctx, ip)
}

// ParseKey implements discovery.Source
func (c *Cache) ParseKey(s string) (netip.Addr, error) {
	ip, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, ErrInvalidKey
	}
	return ip.Unmap(), nil
}

func (c *Cache) refresh(ctx context.Context) (map[netip.Addr]DeviceInfo, error) {
	entries, err := c.table.Entries(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[netip.Addr]DeviceInfo, len(entries))
	for _, e := range entries {
		if !c.cfg.keepInterface(e.Interface) {
			continue
		}
		if !e.State.Resolved() && !c.cfg.IncludeUnresolved {
			continue
		}
		// a resolved entry wins over an unresolved one on another interface
		if prev, ok := out[e.IP]; ok && prev.State.Resolved() && !e.State.Resolved() {
			continue
		}
		out[e.IP] = e
	}
	return out, nil
}

func (c *Cache) stale(res taskcache.QueryResult[map[netip.Addr]DeviceInfo], err error) (taskcache.QueryResult[map[netip.Addr]DeviceInfo], error) {
	if err != nil && c.cfg.ServeStale {
		c.log.Warn("serving stale neighbour table", zap.Uint64("version", res.Version), zap.Error(err))
		return taskcache.Fallback(res, err)
	}
	return res, err
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

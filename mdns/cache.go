package mdns

import (
	"context"
	"maps"
	"sync"

	"github.com/dailyyoga/netdisco/logger"
	"github.com/dailyyoga/netdisco/taskcache"
	"github.com/hashicorp/go-multierror"
	"github.com/miekg/dns"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Name is the cache and discovery source name of the mDNS adapter
const Name = "mdns"

// Cache holds the service instances seen across all configured service types
type Cache struct {
	cfg     *Config
	log     logger.Logger
	browser Browser
	cache   *taskcache.TaskCache[string, ServiceInfo]
}

// NewCache creates an mDNS cache. A nil browser uses a MulticastBrowser on
// cfg.Interface.
func NewCache(log logger.Logger, cfg *Config, browser Browser, opts ...taskcache.Option) (*Cache, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	} else {
		cfg.MergeDefaults()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log = log.Named(Name)
	if browser == nil {
		browser = &MulticastBrowser{Interface: cfg.Interface, Log: log}
	}

	tc, err := taskcache.New[string, ServiceInfo](log, &taskcache.Config{
		Name:             Name,
		Expiry:           cfg.Expiry,
		OperationTimeout: cfg.OperationTimeout,
	}, opts...)
	if err != nil {
		return nil, err
	}
	return &Cache{cfg: cfg, log: log, browser: browser, cache: tc}, nil
}

// Name implements discovery.Source
func (c *Cache) Name() string {
	return Name
}

// All returns every known service instance keyed by canonical instance name
func (c *Cache) All(ctx context.Context) (taskcache.QueryResult[map[string]ServiceInfo], error) {
	res, err := c.cache.QueryAll(ctx, taskcache.UseCurrentSnapshot, c.refresh, 0)
	if c.cfg.ServeStale {
		return taskcache.Fallback(res, err)
	}
	return res, err
}

// Lookup returns a single instance. The name is canonicalized first.
func (c *Cache) Lookup(ctx context.Context, instance string, policy taskcache.LookupPolicy) (taskcache.QueryResult[ServiceInfo], error) {
	res, err := c.cache.QueryKey(ctx, dns.CanonicalName(instance), policy, c.refresh, 0)
	if c.cfg.ServeStale {
		return taskcache.Fallback(res, err)
	}
	return res, err
}

// Probe implements discovery.Source
func (c *Cache) Probe(ctx context.Context, instance string) (taskcache.QueryResult[ServiceInfo], error) {
	return c.Lookup(ctx, instance, taskcache.RefreshOnMiss)
}

// ParseKey implements discovery.Source
func (c *Cache) ParseKey(s string) (string, error) {
	if _, ok := dns.IsDomainName(s); !ok || s == "" {
		return "", ErrInvalidKey
	}
	return dns.CanonicalName(s), nil
}

// refresh browses every configured service type. It fails only when every
// browse failed; partial failures are logged.
func (c *Cache) refresh(ctx context.Context) (map[string]ServiceInfo, error) {
	var (
		mu     sync.Mutex
		merged = make(map[string]ServiceInfo)
		errs   *multierror.Error
	)

	g := new(errgroup.Group)
	g.SetLimit(c.cfg.Concurrency)
	for _, svc := range c.cfg.Services {
		name := ServiceName(svc, c.cfg.Domain)
		g.Go(func() error {
			msgs, err := c.browser.Browse(ctx, name, c.cfg.Window)
			found := ParseResponses(msgs, name, c.cfg.Domain)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = multierror.Append(errs, ErrBrowse(name, err))
			}
			maps.Copy(merged, found)
			return nil
		})
	}
	_ = g.Wait()

	if err := errs.ErrorOrNil(); err != nil {
		if len(errs.Errors) == len(c.cfg.Services) {
			return nil, err
		}
		c.log.Warn("some services failed to browse",
			zap.Int("failed", len(errs.Errors)),
			zap.Int("services", len(c.cfg.Services)),
			zap.Error(err),
		)
	}
	return merged, nil
}

package upnp

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/dailyyoga/netdisco/logger"
	"github.com/dailyyoga/netdisco/taskcache"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Name is the cache and discovery source name of the UPnP adapter
const Name = "upnp"

type describedEntry struct {
	desc      *Description
	fetchedAt time.Time
}

// Cache holds SSDP search results keyed by USN
type Cache struct {
	cfg       *Config
	log       logger.Logger
	searcher  Searcher
	describer Describer
	cache     *taskcache.TaskCache[string, DeviceInfo]

	flights      singleflight.Group
	mu           sync.Mutex
	descriptions map[string]describedEntry
}

// NewCache creates a UPnP cache. Nil searcher or describer fall back to the
// go-ssdp and goupnp implementations.
func NewCache(log logger.Logger, cfg *Config, searcher Searcher, describer Describer, opts ...taskcache.Option) (*Cache, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	} else {
		cfg.MergeDefaults()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if searcher == nil {
		searcher = &SSDPSearcher{LocalAddr: cfg.LocalAddr}
	}
	if describer == nil {
		describer = GoupnpDescriber{}
	}
	log = log.Named(Name)

	tc, err := taskcache.New[string, DeviceInfo](log, &taskcache.Config{
		Name:             Name,
		Expiry:           cfg.Expiry,
		OperationTimeout: cfg.OperationTimeout,
	}, opts...)
	if err != nil {
		return nil, err
	}
	return &Cache{
		cfg:          cfg,
		log:          log,
		searcher:     searcher,
		describer:    describer,
		cache:        tc,
		descriptions: make(map[string]describedEntry),
	}, nil
}

// Name implements discovery.Source
func (c *Cache) Name() string {
	return Name
}

// All returns every device seen by the last search
func (c *Cache) All(ctx context.Context) (taskcache.QueryResult[map[string]DeviceInfo], error) {
	res, err := c.cache.QueryAll(ctx, taskcache.UseCurrentSnapshot, c.refresh, 0)
	if c.cfg.ServeStale {
		return taskcache.Fallback(res, err)
	}
	return res, err
}

// Lookup returns the device announced under usn
func (c *Cache) Lookup(ctx context.Context, usn string, policy taskcache.LookupPolicy) (taskcache.QueryResult[DeviceInfo], error) {
	res, err := c.cache.QueryKey(ctx, usn, policy, c.refresh, 0)
	if c.cfg.ServeStale {
		return taskcache.Fallback(res, err)
	}
	return res, err
}

// Probe implements discovery.Source
func (c *Cache) Probe(ctx context.Context, usn string) (taskcache.QueryResult[DeviceInfo], error) {
	return c.Lookup(ctx, usn, taskcache.RefreshOnMiss)
}

// ParseKey implements discovery.Source
func (c *Cache) ParseKey(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ErrInvalidKey
	}
	return s, nil
}

// Describe resolves usn (searching again on a miss) and returns its device
// description. Descriptions are shared per location for DescriptionTTL and
// concurrent fetches of one location are coalesced.
func (c *Cache) Describe(ctx context.Context, usn string) (DeviceInfo, *Description, error) {
	res, err := c.Lookup(ctx, usn, taskcache.RefreshOnMiss)
	if err != nil {
		return DeviceInfo{}, nil, err
	}
	if !res.Found {
		return DeviceInfo{}, nil, nil
	}
	dev := res.Value
	if dev.Location == "" {
		return dev, nil, ErrNoLocation
	}

	if desc, ok := c.cachedDescription(dev.Location); ok {
		return dev, desc, nil
	}
	v, err, shared := c.flights.Do(dev.Location, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.OperationTimeout)
		defer cancel()
		desc, err := c.describer.Describe(fetchCtx, dev.Location)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.descriptions[dev.Location] = describedEntry{desc: desc, fetchedAt: time.Now()}
		c.mu.Unlock()
		return desc, nil
	})
	if err != nil {
		return dev, nil, err
	}
	c.log.Debug("device described",
		zap.String("usn", usn),
		zap.String("location", dev.Location),
		zap.Bool("shared", shared),
	)
	return dev, v.(*Description), nil
}

func (c *Cache) cachedDescription(location string) (*Description, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.descriptions[location]
	if !ok {
		return nil, false
	}
	if c.cfg.DescriptionTTL > 0 && time.Since(e.fetchedAt) > c.cfg.DescriptionTTL {
		delete(c.descriptions, location)
		return nil, false
	}
	return e.desc, true
}

// refresh runs one search per target and merges the responses by USN. It
// fails only if every search failed.
func (c *Cache) refresh(ctx context.Context) (map[string]DeviceInfo, error) {
	out := make(map[string]DeviceInfo)
	var errs *multierror.Error
	for _, target := range c.cfg.SearchTargets {
		devices, err := c.searcher.Search(ctx, target, c.cfg.Wait)
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		for _, d := range devices {
			if d.USN == "" {
				continue
			}
			out[d.USN] = d
		}
	}
	if errs != nil && len(errs.Errors) == len(c.cfg.SearchTargets) {
		return nil, errs.ErrorOrNil()
	}
	if errs != nil {
		c.log.Warn("some searches failed", zap.Error(errs))
	}
	c.pruneDescriptions(out)
	return out, nil
}

// pruneDescriptions drops descriptions of locations no longer announced
func (c *Cache) pruneDescriptions(devices map[string]DeviceInfo) {
	live := make(map[string]struct{}, len(devices))
	for _, d := range devices {
		live[d.Location] = struct{}{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for loc := range c.descriptions {
		if _, ok := live[loc]; !ok {
			delete(c.descriptions, loc)
		}
	}
}

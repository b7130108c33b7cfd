package main

import (
	"encoding/json"
	"io"
	"net/netip"

	"github.com/dailyyoga/netdisco/arp"
	"github.com/dailyyoga/netdisco/config"
	"github.com/dailyyoga/netdisco/discovery"
	"github.com/dailyyoga/netdisco/logger"
	"github.com/dailyyoga/netdisco/mdns"
	"github.com/dailyyoga/netdisco/metrics"
	"github.com/dailyyoga/netdisco/taskcache"
	"github.com/dailyyoga/netdisco/upnp"
)

// app holds what every subcommand needs
type app struct {
	cfg     *config.Config
	log     logger.Logger
	metrics *metrics.Metrics
}

// newApp loads the configuration and builds the logger. One-shot commands
// log to stderr so that stdout stays parseable.
func newApp(f *rootFlags, oneShot bool) (*app, error) {
	cfg, err := config.Load(f.config)
	if err != nil {
		return nil, err
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}
	if oneShot {
		cfg.Log.OutputPaths = []string{"stderr"}
	}
	log, err := logger.New(&cfg.Log)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, log: log, metrics: metrics.New("netdisco")}, nil
}

func (a *app) arpCache() (*arp.Cache, error) {
	return arp.NewCache(a.log, &a.cfg.ARP, arp.NewTable(&a.cfg.ARP), &arp.UDPProber{},
		taskcache.WithObserver(a.metrics))
}

func (a *app) mdnsCache() (*mdns.Cache, error) {
	browser := &mdns.MulticastBrowser{Interface: a.cfg.MDNS.Interface, Log: a.log}
	return mdns.NewCache(a.log, &a.cfg.MDNS, browser, taskcache.WithObserver(a.metrics))
}

func (a *app) upnpCache() (*upnp.Cache, error) {
	searcher := &upnp.SSDPSearcher{LocalAddr: a.cfg.UPnP.LocalAddr}
	return upnp.NewCache(a.log, &a.cfg.UPnP, searcher, upnp.GoupnpDescriber{}, taskcache.WithObserver(a.metrics))
}

// register wraps src in a discovery service publishing into m
func register[K comparable, V any](a *app, m *discovery.Manager, src discovery.Source[K, V]) error {
	cfg := a.cfg.Discovery
	svc, err := discovery.NewService[K, V](a.log, &cfg, src,
		discovery.WithHub(m.Hub()),
		discovery.WithObserver(m.Observer()),
	)
	if err != nil {
		return err
	}
	return m.Register(svc)
}

// registerSources registers every enabled adapter
func (a *app) registerSources(m *discovery.Manager) error {
	if a.cfg.SourceEnabled(arp.Name) {
		c, err := a.arpCache()
		if err != nil {
			return err
		}
		if err := register(a, m, discovery.Source[netip.Addr, arp.DeviceInfo](c)); err != nil {
			return err
		}
	}
	if a.cfg.SourceEnabled(mdns.Name) {
		c, err := a.mdnsCache()
		if err != nil {
			return err
		}
		if err := register(a, m, discovery.Source[string, mdns.ServiceInfo](c)); err != nil {
			return err
		}
	}
	if a.cfg.SourceEnabled(upnp.Name) {
		c, err := a.upnpCache()
		if err != nil {
			return err
		}
		if err := register(a, m, discovery.Source[string, upnp.DeviceInfo](c)); err != nil {
			return err
		}
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

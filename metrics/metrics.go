// Package metrics exports cache and discovery activity to Prometheus.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/dailyyoga/netdisco/taskcache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var defaultBuckets = []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30}

// Metrics owns a private registry and the collectors registered on it.
// It satisfies taskcache.Observer and discovery.Observer.
type Metrics struct {
	registry *prometheus.Registry

	refreshTotal    *prometheus.CounterVec
	refreshDuration *prometheus.HistogramVec
	cacheVersion    *prometheus.GaugeVec
	queryTotal      *prometheus.CounterVec

	eventsTotal   *prometheus.CounterVec
	sweepsTotal   *prometheus.CounterVec
	sinkFailures  *prometheus.CounterVec
	trackedEntity *prometheus.GaugeVec
}

// New creates Metrics with collectors under namespace
func New(namespace string) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: registry,
		refreshTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "refresh_total",
			Help:      "Finished cache refreshes by result",
		}, []string{"cache", "result"}),
		refreshDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "refresh_duration_seconds",
			Help:      "Time spent in cache refreshes",
			Buckets:   defaultBuckets,
		}, []string{"cache"}),
		cacheVersion: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "version",
			Help:      "Version of the current snapshot",
		}, []string{"cache"}),
		queryTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "query_total",
			Help:      "Cache queries by operation and whether they were served from cache",
		}, []string{"cache", "op", "served"}),
		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "events_total",
			Help:      "Published discovery events by kind",
		}, []string{"source", "kind"}),
		sweepsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "sweeps_total",
			Help:      "Discovery sweeps by result",
		}, []string{"source", "result"}),
		sinkFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "sink_failures_total",
			Help:      "Failed event batch deliveries by sink",
		}, []string{"sink"}),
		trackedEntity: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "tracked_entities",
			Help:      "Entities in the last successful sweep",
		}, []string{"source"}),
	}

	registry.MustRegister(
		m.refreshTotal,
		m.refreshDuration,
		m.cacheVersion,
		m.queryTotal,
		m.eventsTotal,
		m.sweepsTotal,
		m.sinkFailures,
		m.trackedEntity,
	)
	return m
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRefresh implements taskcache.Observer
func (m *Metrics) ObserveRefresh(cache string, version uint64, elapsed time.Duration, err error) {
	m.refreshTotal.WithLabelValues(cache, refreshResult(err)).Inc()
	m.refreshDuration.WithLabelValues(cache).Observe(elapsed.Seconds())
	if err == nil {
		m.cacheVersion.WithLabelValues(cache).Set(float64(version))
	}
}

// ObserveQuery implements taskcache.Observer
func (m *Metrics) ObserveQuery(cache string, op string, fromCache bool, _ bool) {
	served := "refresh"
	if fromCache {
		served = "cache"
	}
	m.queryTotal.WithLabelValues(cache, op, served).Inc()
}

// ObserveEvent counts one published discovery event
func (m *Metrics) ObserveEvent(source, kind string) {
	m.eventsTotal.WithLabelValues(source, kind).Inc()
}

// ObserveSweep records the outcome of one discovery sweep
func (m *Metrics) ObserveSweep(source string, entities int, err error) {
	if err != nil {
		m.sweepsTotal.WithLabelValues(source, "failure").Inc()
		return
	}
	m.sweepsTotal.WithLabelValues(source, "ok").Inc()
	m.trackedEntity.WithLabelValues(source).Set(float64(entities))
}

// ObserveSinkFailure counts one failed delivery to sink
func (m *Metrics) ObserveSinkFailure(sink string) {
	m.sinkFailures.WithLabelValues(sink).Inc()
}

func refreshResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, taskcache.ErrProbeTimeout):
		return "timeout"
	case errors.Is(err, taskcache.ErrProbeCancelled):
		return "cancelled"
	default:
		return "failure"
	}
}

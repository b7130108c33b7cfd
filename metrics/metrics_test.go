package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dailyyoga/netdisco/taskcache"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

var _ taskcache.Observer = (*Metrics)(nil)

func TestObserveRefresh(t *testing.T) {
	m := New("netdisco")

	m.ObserveRefresh("arp", 1, 10*time.Millisecond, nil)
	m.ObserveRefresh("arp", 0, time.Second, errors.Join(taskcache.ErrProbeTimeout, errors.New("slow")))
	m.ObserveRefresh("arp", 0, time.Second, taskcache.ErrProbeFailure)

	require.Equal(t, 1.0, testutil.ToFloat64(m.refreshTotal.WithLabelValues("arp", "ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.refreshTotal.WithLabelValues("arp", "timeout")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.refreshTotal.WithLabelValues("arp", "failure")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.cacheVersion.WithLabelValues("arp")))
}

func TestObserveQuery(t *testing.T) {
	m := New("netdisco")
	m.ObserveQuery("mdns", "key", true, false)
	m.ObserveQuery("mdns", "key", true, true)
	m.ObserveQuery("mdns", "all", false, true)

	require.Equal(t, 2.0, testutil.ToFloat64(m.queryTotal.WithLabelValues("mdns", "key", "cache")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.queryTotal.WithLabelValues("mdns", "all", "refresh")))
}

func TestObserveSweep(t *testing.T) {
	m := New("netdisco")
	m.ObserveSweep("upnp", 4, nil)
	m.ObserveSweep("upnp", 0, errors.New("no route"))
	m.ObserveEvent("upnp", "added")

	require.Equal(t, 4.0, testutil.ToFloat64(m.trackedEntity.WithLabelValues("upnp")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.sweepsTotal.WithLabelValues("upnp", "failure")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.eventsTotal.WithLabelValues("upnp", "added")))
}

func TestHandler(t *testing.T) {
	m := New("netdisco")
	m.ObserveSinkFailure("kafka")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), `netdisco_discovery_sink_failures_total{sink="kafka"} 1`))
}

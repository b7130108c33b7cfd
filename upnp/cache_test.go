package upnp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dailyyoga/netdisco/logger"
	"github.com/dailyyoga/netdisco/taskcache"
	"github.com/stretchr/testify/require"
)

type fakeSearcher struct {
	mu      sync.Mutex
	calls   atomic.Int32
	devices map[string][]DeviceInfo
	errs    map[string]error
}

func (s *fakeSearcher) Search(_ context.Context, target string, _ time.Duration) ([]DeviceInfo, error) {
	s.calls.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.errs[target]; err != nil {
		return nil, err
	}
	return s.devices[target], nil
}

type countingDescriber struct {
	calls atomic.Int32
	gate  chan struct{}
}

func (d *countingDescriber) Describe(ctx context.Context, location string) (*Description, error) {
	d.calls.Add(1)
	if d.gate != nil {
		<-d.gate
	}
	return &Description{FriendlyName: "Device at " + location}, nil
}

const (
	tvUSN    = "uuid:tv-1::urn:schemas-upnp-org:device:MediaRenderer:1"
	routerSN = "uuid:router-1::upnp:rootdevice"
)

func testDevices() map[string][]DeviceInfo {
	return map[string][]DeviceInfo{
		TargetAll: {
			{USN: tvUSN, UDN: "uuid:tv-1", Location: "http://192.168.1.30:8080/desc.xml"},
			{USN: routerSN, UDN: "uuid:router-1", Location: "http://192.168.1.1:5000/root.xml"},
		},
	}
}

func newTestCache(t *testing.T, cfg *Config, s Searcher, d Describer) *Cache {
	t.Helper()
	c, err := NewCache(logger.NewNop(), cfg, s, d)
	require.NoError(t, err)
	return c
}

func TestUDNFromUSN(t *testing.T) {
	require.Equal(t, "uuid:tv-1", udnFromUSN(tvUSN))
	require.Equal(t, "uuid:bare", udnFromUSN("uuid:bare"))
}

func TestCache_All(t *testing.T) {
	s := &fakeSearcher{devices: testDevices()}
	c := newTestCache(t, nil, s, &countingDescriber{})

	res, err := c.All(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Value, 2)
	require.Equal(t, "uuid:tv-1", res.Value[tvUSN].UDN)

	res, err = c.All(context.Background())
	require.NoError(t, err)
	require.True(t, res.FromCache)
	require.Equal(t, int32(1), s.calls.Load())
}

func TestCache_PartialSearchFailure(t *testing.T) {
	s := &fakeSearcher{
		devices: testDevices(),
		errs:    map[string]error{TargetRootDevice: errors.New("timeout")},
	}
	c := newTestCache(t, &Config{SearchTargets: []string{TargetAll, TargetRootDevice}}, s, &countingDescriber{})

	res, err := c.All(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Value, 2)

	s.errs[TargetAll] = errors.New("no route")
	_, err = c.Lookup(context.Background(), "uuid:unknown", taskcache.RefreshOnMiss)
	require.ErrorIs(t, err, taskcache.ErrProbeFailure)
}

func TestCache_DescribeCoalescesAndCaches(t *testing.T) {
	d := &countingDescriber{gate: make(chan struct{})}
	c := newTestCache(t, nil, &fakeSearcher{devices: testDevices()}, d)
	_, err := c.All(context.Background())
	require.NoError(t, err)

	var wg sync.WaitGroup
	descs := make([]*Description, 4)
	for i := range descs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, desc, err := c.Describe(context.Background(), tvUSN)
			require.NoError(t, err)
			descs[i] = desc
		}(i)
	}
	require.Eventually(t, func() bool { return d.calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(d.gate)
	wg.Wait()

	for _, desc := range descs {
		require.Equal(t, "Device at http://192.168.1.30:8080/desc.xml", desc.FriendlyName)
	}

	_, _, err = c.Describe(context.Background(), tvUSN)
	require.NoError(t, err)
	require.Equal(t, int32(1), d.calls.Load())
}

func TestCache_DescribeUnknown(t *testing.T) {
	s := &fakeSearcher{devices: testDevices()}
	c := newTestCache(t, nil, s, &countingDescriber{})
	_, err := c.All(context.Background())
	require.NoError(t, err)

	dev, desc, err := c.Describe(context.Background(), "uuid:ghost")
	require.NoError(t, err)
	require.Nil(t, desc)
	require.Empty(t, dev.USN)
	// initial search plus the forced search on miss
	require.Equal(t, int32(2), s.calls.Load())
}

const descriptionXML = `<?xml version="1.0"?>
<root xmlns="urn:schemas-upnp-org:device-1-0">
  <specVersion><major>1</major><minor>0</minor></specVersion>
  <device>
    <deviceType>urn:schemas-upnp-org:device:MediaRenderer:1</deviceType>
    <friendlyName>Living Room TV</friendlyName>
    <manufacturer>Acme</manufacturer>
    <modelName>TV-1</modelName>
    <modelNumber>1.0</modelNumber>
    <UDN>uuid:tv-1</UDN>
    <serviceList>
      <service>
        <serviceType>urn:schemas-upnp-org:service:RenderingControl:1</serviceType>
        <serviceId>urn:upnp-org:serviceId:RenderingControl</serviceId>
        <SCPDURL>/rc.xml</SCPDURL>
        <controlURL>/rc/control</controlURL>
        <eventSubURL>/rc/event</eventSubURL>
      </service>
    </serviceList>
  </device>
</root>`

func TestGoupnpDescriber(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/xml")
		fmt.Fprint(w, descriptionXML)
	}))
	defer srv.Close()

	desc, err := GoupnpDescriber{}.Describe(context.Background(), srv.URL+"/desc.xml")
	require.NoError(t, err)
	require.Equal(t, "Living Room TV", desc.FriendlyName)
	require.Equal(t, "Acme", desc.Manufacturer)
	require.Equal(t, "uuid:tv-1", desc.UDN)
	require.Len(t, desc.Services, 1)
	require.Equal(t, "urn:upnp-org:serviceId:RenderingControl", desc.Services[0].ID)
	require.Equal(t, 0, desc.EmbeddedDevices)
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
	require.ErrorIs(t, (&Config{SearchTargets: []string{""}, Wait: time.Second, OperationTimeout: time.Second}).Validate(), ErrInvalidConfig)
}

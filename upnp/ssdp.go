package upnp

import (
	"context"
	"time"

	"github.com/koron/go-ssdp"
)

const (
	// TargetAll searches every device and service
	TargetAll = ssdp.All
	// TargetRootDevice searches root devices only
	TargetRootDevice = ssdp.RootDevice
)

// SSDPSearcher searches with koron/go-ssdp. The search itself is not
// interruptible; a cancelled ctx abandons the wait and the search finishes
// in the background.
type SSDPSearcher struct {
	// LocalAddr binds the search socket, empty picks any address
	LocalAddr string
}

type searchResult struct {
	services []ssdp.Service
	err      error
}

// Search implements Searcher
func (s *SSDPSearcher) Search(ctx context.Context, target string, wait time.Duration) ([]DeviceInfo, error) {
	waitSec := int(wait / time.Second)
	if waitSec < 1 {
		waitSec = 1
	}

	done := make(chan searchResult, 1)
	go func() {
		services, err := ssdp.Search(target, waitSec, s.LocalAddr)
		done <- searchResult{services: services, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-done:
		if res.err != nil {
			return nil, ErrSearch(target, res.err)
		}
		out := make([]DeviceInfo, 0, len(res.services))
		for i := range res.services {
			out = append(out, fromService(&res.services[i]))
		}
		return out, nil
	}
}

func fromService(svc *ssdp.Service) DeviceInfo {
	info := DeviceInfo{
		USN:          svc.USN,
		UDN:          udnFromUSN(svc.USN),
		SearchTarget: svc.Type,
		Location:     svc.Location,
		Server:       svc.Server,
	}
	if age := svc.MaxAge(); age > 0 {
		info.MaxAge = time.Duration(age) * time.Second
	}
	return info
}

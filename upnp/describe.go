package upnp

import (
	"context"
	"net/url"

	"github.com/huin/goupnp"
)

// GoupnpDescriber fetches and decodes device descriptions with huin/goupnp
type GoupnpDescriber struct{}

// Describe implements Describer
func (GoupnpDescriber) Describe(ctx context.Context, location string) (*Description, error) {
	loc, err := url.Parse(location)
	if err != nil {
		return nil, ErrDescribe(location, err)
	}
	root, err := goupnp.DeviceByURLCtx(ctx, loc)
	if err != nil {
		return nil, ErrDescribe(location, err)
	}
	return fromDevice(&root.Device), nil
}

func fromDevice(dev *goupnp.Device) *Description {
	desc := &Description{
		DeviceType:      dev.DeviceType,
		FriendlyName:    dev.FriendlyName,
		Manufacturer:    dev.Manufacturer,
		ModelName:       dev.ModelName,
		ModelNumber:     dev.ModelNumber,
		SerialNumber:    dev.SerialNumber,
		UDN:             dev.UDN,
		PresentationURL: dev.PresentationURL.Str,
	}
	dev.VisitServices(func(s *goupnp.Service) {
		desc.Services = append(desc.Services, ServiceRef{
			Type:       s.ServiceType,
			ID:         s.ServiceId,
			ControlURL: s.ControlURL.Str,
		})
	})
	dev.VisitDevices(func(d *goupnp.Device) {
		if d != dev {
			desc.EmbeddedDevices++
		}
	})
	return desc
}

// Package upnp discovers UPnP devices with SSDP M-SEARCH and fetches their
// device descriptions on demand.
package upnp

import (
	"context"
	"strings"
	"time"
)

// DeviceInfo is one SSDP search response
type DeviceInfo struct {
	USN          string        `json:"usn"`
	UDN          string        `json:"udn"`
	SearchTarget string        `json:"search_target"`
	Location     string        `json:"location"`
	Server       string        `json:"server"`
	MaxAge       time.Duration `json:"max_age"`
}

// Description is the subset of a UPnP device description netdisco keeps
type Description struct {
	DeviceType      string       `json:"device_type"`
	FriendlyName    string       `json:"friendly_name"`
	Manufacturer    string       `json:"manufacturer"`
	ModelName       string       `json:"model_name"`
	ModelNumber     string       `json:"model_number"`
	SerialNumber    string       `json:"serial_number"`
	UDN             string       `json:"udn"`
	PresentationURL string       `json:"presentation_url"`
	Services        []ServiceRef `json:"services"`
	EmbeddedDevices int          `json:"embedded_devices"`
}

// ServiceRef identifies one service of a device or its embedded devices
type ServiceRef struct {
	Type       string `json:"type"`
	ID         string `json:"id"`
	ControlURL string `json:"control_url"`
}

// Searcher performs an SSDP search for target and waits up to wait for replies
type Searcher interface {
	Search(ctx context.Context, target string, wait time.Duration) ([]DeviceInfo, error)
}

// Describer fetches the device description at location
type Describer interface {
	Describe(ctx context.Context, location string) (*Description, error)
}

// udnFromUSN extracts "uuid:..." from "uuid:...::urn:..."
func udnFromUSN(usn string) string {
	udn, _, _ := strings.Cut(usn, "::")
	return udn
}

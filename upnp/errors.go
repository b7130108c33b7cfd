package upnp

import "fmt"

var (
	// ErrInvalidConfig is returned when the configuration is invalid
	ErrInvalidConfig = fmt.Errorf("upnp: invalid config")
	// ErrInvalidKey is returned for an empty USN
	ErrInvalidKey = fmt.Errorf("upnp: invalid usn")
	// ErrNoLocation is returned when a device has no description URL
	ErrNoLocation = fmt.Errorf("upnp: device has no location")
)

// ErrSearch wraps an SSDP search failure
func ErrSearch(target string, err error) error {
	return fmt.Errorf("upnp: search %s failed: %w", target, err)
}

// ErrDescribe wraps a device description fetch failure
func ErrDescribe(location string, err error) error {
	return fmt.Errorf("upnp: describe %s failed: %w", location, err)
}

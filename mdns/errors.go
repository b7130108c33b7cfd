package mdns

import "fmt"

var (
	// ErrInvalidConfig is returned when the configuration is invalid
	ErrInvalidConfig = fmt.Errorf("mdns: invalid config")
	// ErrInvalidKey is returned for keys that are not domain names
	ErrInvalidKey = fmt.Errorf("mdns: invalid instance name")
)

// ErrSocket wraps a multicast socket failure
func ErrSocket(err error) error {
	return fmt.Errorf("mdns: socket error: %w", err)
}

// ErrBrowse wraps a failure to browse service
func ErrBrowse(service string, err error) error {
	return fmt.Errorf("mdns: browse %s failed: %w", service, err)
}

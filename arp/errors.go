package arp

import "fmt"

var (
	// ErrInvalidConfig is returned when durations are out of range
	ErrInvalidConfig = fmt.Errorf("arp: invalid config")
	// ErrUnsupported is returned when the netlink table is used off Linux
	ErrUnsupported = fmt.Errorf("arp: netlink neighbour table is only available on linux")
	// ErrInvalidKey is returned when a key does not parse as an IP address
	ErrInvalidKey = fmt.Errorf("arp: invalid key")
)

// ErrInvalidSource returns an error for an unknown table source
func ErrInvalidSource(source string) error {
	return fmt.Errorf("arp: invalid source %q, must be 'netlink' or 'proc'", source)
}

// ErrReadTable wraps a neighbour table read failure
func ErrReadTable(err error) error {
	return fmt.Errorf("arp: failed to read neighbour table: %w", err)
}

// ErrParseLine returns an error for a malformed /proc/net/arp line
func ErrParseLine(line int, reason string) error {
	return fmt.Errorf("arp: line %d: %s", line, reason)
}

package db

import "fmt"

var (
	// ErrConnectionNotEstablished database connection not established
	ErrConnectionNotEstablished = fmt.Errorf("db: database connection not established")
	// ErrDeviceNotFound is returned by Inventory.Get for unknown devices
	ErrDeviceNotFound = fmt.Errorf("db: device not found")
)

// ErrInvalidConfig invalid config
func ErrInvalidConfig(msg string) error {
	return fmt.Errorf("db: invalid config: %s", msg)
}

// ErrConnection database connection error
func ErrConnection(err error) error {
	return fmt.Errorf("db: connection failed: %w", err)
}

// ErrApply wraps a failed inventory update
func ErrApply(err error) error {
	return fmt.Errorf("db: apply events failed: %w", err)
}

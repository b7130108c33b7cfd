package config

import "fmt"

// ErrRead wraps a config file that could not be read or parsed
func ErrRead(path string, err error) error {
	return fmt.Errorf("config: read %s: %w", path, err)
}

// ErrDecode wraps a config that does not fit the Config struct
func ErrDecode(err error) error {
	return fmt.Errorf("config: decode: %w", err)
}

// ErrUnknownSource is returned for a source name without adapter
func ErrUnknownSource(name string) error {
	return fmt.Errorf("config: unknown source %q", name)
}

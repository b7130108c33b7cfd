package discovery

import "fmt"

var (
	// ErrAlreadyRunning is returned by Start on a running service or manager
	ErrAlreadyRunning = fmt.Errorf("discovery: already running")
	// ErrInvalidConfig is returned when the configuration is invalid
	ErrInvalidConfig = fmt.Errorf("discovery: invalid config")
	// ErrUnknownSource is matched by errors for unregistered source names
	ErrUnknownSource = fmt.Errorf("discovery: unknown source")
	// ErrDuplicateSource is matched by errors for a source registered twice
	ErrDuplicateSource = fmt.Errorf("discovery: duplicate source")
	// ErrInvalidKey is matched by errors for keys a source cannot parse
	ErrInvalidKey = fmt.Errorf("discovery: invalid key")
)

// ErrSweep wraps a sweep failure after all retries
func ErrSweep(source string, err error) error {
	return fmt.Errorf("discovery: sweep %s failed: %w", source, err)
}

// ErrParseKey wraps a key that the source could not parse
func ErrParseKey(source, key string, err error) error {
	return fmt.Errorf("%w %q for %s: %w", ErrInvalidKey, key, source, err)
}

func errUnknownSource(name string) error {
	return fmt.Errorf("%w: %s", ErrUnknownSource, name)
}

func errDuplicateSource(name string) error {
	return fmt.Errorf("%w: %s", ErrDuplicateSource, name)
}

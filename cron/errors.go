package cron

import "fmt"

var (
	// ErrNoTasks is returned when attempting to add a chain job with no tasks
	ErrNoTasks = fmt.Errorf("cron: no tasks provided")
	// ErrInvalidSpec is matched by errors for unparsable specs
	ErrInvalidSpec = fmt.Errorf("cron: invalid cron spec")
)

// ErrSpec returns an error for a chain whose spec could not be parsed
func ErrSpec(chain, spec string, err error) error {
	return fmt.Errorf("%w: chain %s spec %q: %w", ErrInvalidSpec, chain, spec, err)
}

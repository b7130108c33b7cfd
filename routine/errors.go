package routine

import "fmt"

// ErrPanicRecovered is matched by errors returned from Call when fn panicked
var ErrPanicRecovered = fmt.Errorf("routine: panic recovered")

// ErrPanic returns an error wrapping the recovered panic value
func ErrPanic(recovered any) error {
	return fmt.Errorf("%w: %v", ErrPanicRecovered, recovered)
}

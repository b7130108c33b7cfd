package taskcache

import "time"

// Observer receives cache events, typically to export metrics.
// Implementations must be safe for concurrent use.
type Observer interface {
	// ObserveRefresh is called once per finished refresh. version is the
	// committed version, or 0 when err is non-nil.
	ObserveRefresh(cache string, version uint64, elapsed time.Duration, err error)
	// ObserveQuery is called once per QueryAll or QueryKey call.
	ObserveQuery(cache string, op string, fromCache bool, found bool)
}

type nopObserver struct{}

func (nopObserver) ObserveRefresh(string, uint64, time.Duration, error) {}
func (nopObserver) ObserveQuery(string, string, bool, bool)              {}

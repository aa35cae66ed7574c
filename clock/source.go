package clock

// Source is a platform timer facility. Period is queried once, when a Clock
// first initializes; Ticks is read on every call.
type Source interface {
	// Name identifies the timer facility, e.g. "CLOCK_MONOTONIC".
	Name() string
	// Period returns the seconds-per-tick scale of Ticks.
	Period() (Period, error)
	// Ticks returns the current raw counter value. Readings are only
	// meaningful as differences against another reading of the same Source.
	Ticks() (uint64, error)
}

type runtimeSource struct{}

// Runtime returns the Go runtime's monotonic nanosecond counter. It is
// available on every platform and never fails, which makes it the fallback
// for every other Source.
func Runtime() Source {
	return runtimeSource{}
}

func (runtimeSource) Name() string { return "runtime" }

func (runtimeSource) Period() (Period, error) { return Nanosecond, nil }

func (runtimeSource) Ticks() (uint64, error) { return uint64(nanotime()), nil }

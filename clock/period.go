package clock

import (
	"fmt"
	"time"
)

// Period is the seconds-per-tick scale of a Source, kept as the exact ratio
// Num/Den so that tick differences convert to seconds without assuming a fixed
// tick rate.
type Period struct {
	Num uint64 `json:"num" yaml:"num"`
	Den uint64 `json:"den" yaml:"den"`
}

var (
	Nanosecond  = Period{Num: 1, Den: 1e9}
	Microsecond = Period{Num: 1, Den: 1e6}
	Millisecond = Period{Num: 1, Den: 1e3}
)

// PeriodFromFrequency returns the period of a counter ticking hz times per
// second, e.g. the value reported by QueryPerformanceFrequency.
func PeriodFromFrequency(hz uint64) Period {
	return Period{Num: 1, Den: hz}
}

// PeriodFromTimebase returns the period of a counter whose ticks convert to
// nanoseconds by numer/denom, the shape of mach_timebase_info.
func PeriodFromTimebase(numer, denom uint32) Period {
	return Period{Num: uint64(numer), Den: uint64(denom) * 1e9}
}

// Valid reports whether p can convert ticks. A zero numerator or denominator
// is what a failed frequency query leaves behind.
func (p Period) Valid() bool {
	return p.Num != 0 && p.Den != 0
}

// Seconds returns the period as a float scale factor.
func (p Period) Seconds() float64 {
	if !p.Valid() {
		return 0
	}
	return float64(p.Num) / float64(p.Den)
}

// Resolution returns the duration of a single tick, rounded to the nearest
// nanosecond and never below one.
func (p Period) Resolution() time.Duration {
	if !p.Valid() {
		return 0
	}
	d := time.Duration(p.ToSeconds(1)*float64(time.Second) + 0.5)
	if d < 1 {
		d = 1
	}
	return d
}

// ToSeconds converts a tick count to seconds. Whole seconds and the sub-second
// remainder are scaled separately so large counts neither overflow 64-bit
// integer math nor lose the fractional part to float rounding.
func (p Period) ToSeconds(ticks uint64) float64 {
	if !p.Valid() {
		return 0
	}
	q, r := ticks/p.Den, ticks%p.Den
	return float64(q)*float64(p.Num) + float64(r)*float64(p.Num)/float64(p.Den)
}

func (p Period) String() string {
	if !p.Valid() {
		return "invalid"
	}
	return fmt.Sprintf("%d/%d s", p.Num, p.Den)
}

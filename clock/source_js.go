//go:build js && wasm
// +build js,wasm

package clock

import (
	"errors"
	"syscall/js"
)

type performanceSource struct {
	perf js.Value
}

// PerformanceNow returns the host environment's performance.now() timer.
// It reports fractional milliseconds; the fraction is kept by counting in
// microseconds.
func PerformanceNow() Source {
	return &performanceSource{perf: js.Global().Get("performance")}
}

// Platform returns performance.now().
func Platform() Source {
	return PerformanceNow()
}

func (s *performanceSource) Name() string { return "performance.now" }

func (s *performanceSource) Period() (Period, error) {
	if s.perf.IsUndefined() || s.perf.IsNull() {
		return Period{}, errors.New("performance is not available in this environment")
	}
	return Microsecond, nil
}

func (s *performanceSource) Ticks() (uint64, error) {
	if s.perf.IsUndefined() || s.perf.IsNull() {
		return 0, errors.New("performance is not available in this environment")
	}
	ms := s.perf.Call("now").Float()
	if ms < 0 {
		return 0, errors.New("performance.now returned a negative value")
	}
	return uint64(ms * 1e3), nil
}

//go:build windows
// +build windows

package clock

import (
	"errors"
	"fmt"

	"golang.org/x/sys/windows"
)

type qpcSource struct{}

// QueryPerformanceCounter returns the Windows high-resolution performance
// counter. Its period comes from QueryPerformanceFrequency, which is fixed at
// boot.
func QueryPerformanceCounter() Source {
	return qpcSource{}
}

// Platform returns the performance counter.
func Platform() Source {
	return QueryPerformanceCounter()
}

func (qpcSource) Name() string { return "QueryPerformanceCounter" }

func (qpcSource) Period() (Period, error) {
	var freq int64
	if err := windows.QueryPerformanceFrequency(&freq); err != nil {
		return Period{}, fmt.Errorf("QueryPerformanceFrequency: %w", err)
	}
	if freq <= 0 {
		return Period{}, errors.New("QueryPerformanceFrequency: non-positive frequency")
	}
	return PeriodFromFrequency(uint64(freq)), nil
}

func (qpcSource) Ticks() (uint64, error) {
	var counter int64
	if err := windows.QueryPerformanceCounter(&counter); err != nil {
		return 0, fmt.Errorf("QueryPerformanceCounter: %w", err)
	}
	return uint64(counter), nil
}

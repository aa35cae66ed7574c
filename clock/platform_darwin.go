//go:build darwin
// +build darwin

package clock

import "golang.org/x/sys/unix"

// Platform returns CLOCK_UPTIME_RAW, which is mach_absolute_time() already
// scaled by the timebase ratio. Like mach_absolute_time it does not advance
// while the system sleeps.
func Platform() Source {
	return ClockGettime(unix.CLOCK_UPTIME_RAW, "CLOCK_UPTIME_RAW")
}

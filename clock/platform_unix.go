//go:build linux || freebsd || netbsd || openbsd || dragonfly
// +build linux freebsd netbsd openbsd dragonfly

package clock

import "golang.org/x/sys/unix"

// Platform returns the native monotonic Source: CLOCK_MONOTONIC, the same
// clock bpf_ktime_get_ns() reads on Linux.
func Platform() Source {
	return ClockGettime(unix.CLOCK_MONOTONIC, "CLOCK_MONOTONIC")
}

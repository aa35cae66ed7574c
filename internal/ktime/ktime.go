// Package ktime reads the kernel's monotonic clock from inside an eBPF
// program, the same bpf_ktime_get_ns() that kernel-side probes stamp their
// events with. It gives the harness a reference to cross-check
// CLOCK_MONOTONIC readings taken from user space.
package ktime

import "errors"

// ErrNotSupported is returned by NewSource on platforms without eBPF.
var ErrNotSupported = errors.New("ktime: eBPF clock source is not supported on this platform")

// Name is the Source name reported for kernel readings.
const Name = "bpf_ktime_get_ns"

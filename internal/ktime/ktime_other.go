//go:build !linux
// +build !linux

package ktime

import "go.sazak.io/monoclock/clock"

// Source is unavailable outside Linux.
type Source struct{}

var _ clock.Source = (*Source)(nil)

// NewSource always fails with ErrNotSupported.
func NewSource() (*Source, error) {
	return nil, ErrNotSupported
}

func (*Source) Name() string { return Name }

func (*Source) Period() (clock.Period, error) { return clock.Period{}, ErrNotSupported }

func (*Source) Ticks() (uint64, error) { return 0, ErrNotSupported }

func (*Source) Close() error { return nil }

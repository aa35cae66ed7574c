// Package backend names the clocks the monoclock tool can measure and opens
// them on demand.
package backend

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"go.sazak.io/monoclock/clock"
	"go.sazak.io/monoclock/internal/ktime"
	"go.sazak.io/monoclock/internal/log"
	"go.sazak.io/monoclock/internal/metrics"
	"go.sazak.io/monoclock/internal/probe"
)

const (
	// Default is the package-level clock.Elapsed.
	Default = "default"
	// Runtime is a Clock over the Go runtime counter.
	Runtime = "runtime"
	// Platform is a Clock over the native timer facility.
	Platform = "platform"
	// Ktime is a Clock over bpf_ktime_get_ns(); Linux only, privileged.
	Ktime = "ktime"
)

// Names lists every backend in display order.
var Names = []string{Default, Runtime, Platform, Ktime}

// ErrUnknown is returned for a backend name that is not in Names.
var ErrUnknown = errors.New("unknown backend")

// Valid reports whether name is a known backend.
func Valid(name string) bool {
	for _, n := range Names {
		if n == name {
			return true
		}
	}
	return false
}

// Backend is an opened clock.
type Backend struct {
	Name   string
	source clock.Source
	clk    *clock.Clock
	closer io.Closer
}

// Info describes a backend for listings.
type Info struct {
	Name         string        `json:"name" yaml:"name"`
	Source       string        `json:"source" yaml:"source"`
	Period       string        `json:"period" yaml:"period"`
	Resolution   time.Duration `json:"resolution_ns" yaml:"resolution_ns"`
	Initialized  bool          `json:"initialized" yaml:"initialized"`
	Degraded     bool          `json:"degraded" yaml:"degraded"`
	ReadFailures uint64        `json:"read_failures" yaml:"read_failures"`
}

// Open opens the named backend. The ktime backend loads an eBPF program and
// must be closed.
func Open(name string) (*Backend, error) {
	b := &Backend{Name: name}
	switch name {
	case Default:
		clock.Init()
		return b, nil
	case Runtime:
		b.source = clock.Runtime()
	case Platform:
		b.source = clock.Platform()
	case Ktime:
		src, err := ktime.NewSource()
		if err != nil {
			return nil, fmt.Errorf("opening %s backend: %w", name, err)
		}
		b.source = src
		b.closer = src
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknown, name)
	}
	b.clk = b.newClock()
	b.clk.Init()
	return b, nil
}

func (b *Backend) newClock() *clock.Clock {
	return clock.New(b.source, clock.WithLogger(log.Logger().Named("clock").Logger))
}

// Elapsed reads the backend.
func (b *Backend) Elapsed() float64 {
	if b.clk == nil {
		return clock.Elapsed()
	}
	return b.clk.Elapsed()
}

// Clock returns the backend's Clock, or nil for the package-level clock.
func (b *Backend) Clock() *clock.Clock {
	return b.clk
}

// Stats reports the backend's health. The package-level clock cannot
// degrade, so it always reports the runtime's nanosecond counter.
func (b *Backend) Stats() clock.Stats {
	if b.clk == nil {
		return clock.Stats{Source: "time.Since", Period: clock.Nanosecond, Initialized: true}
	}
	return b.clk.Stats()
}

func (b *Backend) Info() Info {
	st := b.Stats()
	return Info{
		Name:         b.Name,
		Source:       st.Source,
		Period:       st.Period.String(),
		Resolution:   st.Period.Resolution(),
		Initialized:  st.Initialized,
		Degraded:     st.Degraded,
		ReadFailures: st.ReadFailures,
	}
}

// Target adapts the backend for the probe. Fresh clocks share the backend's
// Source but establish their own epoch.
func (b *Backend) Target() probe.Target {
	t := probe.Target{Name: b.Name, Elapsed: b.Elapsed}
	if b.source != nil {
		t.Fresh = func() func() float64 { return b.newClock().Elapsed }
	}
	return t
}

func (b *Backend) Close() error {
	if b.closer == nil {
		return nil
	}
	return b.closer.Close()
}

// Set is a group of opened backends.
type Set struct {
	mu       sync.RWMutex
	order    []string
	backends map[string]*Backend
}

// OpenSet opens every named backend it can. Backends that fail to open are
// logged and left out; the returned error joins their failures and is nil
// only when all of them opened.
func OpenSet(names []string) (*Set, error) {
	logger := log.Logger().Named("backend")
	s := &Set{backends: make(map[string]*Backend, len(names))}

	var errs []error
	for _, name := range names {
		if _, ok := s.backends[name]; ok {
			continue
		}
		b, err := Open(name)
		if err != nil {
			logger.Warn("Backend unavailable", zap.String("backend", name), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		if c := b.Clock(); c != nil {
			if err := metrics.RegisterClock(name, c); err != nil {
				logger.Warn("Failed to register clock metrics", zap.String("backend", name), zap.Error(err))
			}
		}
		s.order = append(s.order, name)
		s.backends[name] = b
		logger.Debug("Backend opened", zap.String("backend", name), zap.String("source", b.Stats().Source))
	}
	return s, errors.Join(errs...)
}

func (s *Set) Get(name string) (*Backend, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.backends[name]
	return b, ok
}

// List returns the opened backends in the order they were requested.
func (s *Set) List() []*Backend {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Backend, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.backends[name])
	}
	return out
}

func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

func (s *Set) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for _, name := range s.order {
		b := s.backends[name]
		if c := b.Clock(); c != nil {
			metrics.UnregisterClock(name, c)
		}
		if err := b.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s: %w", name, err))
		}
	}
	s.order = nil
	s.backends = map[string]*Backend{}
	return errors.Join(errs...)
}

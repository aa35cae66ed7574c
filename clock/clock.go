// Package clock provides a monotonic elapsed-time primitive for embedding
// hosts: the number of seconds elapsed since an arbitrary, process-local
// reference point.
//
// Elapsed is the primitive most hosts want. It measures time.Since an epoch
// captured on first use, relying on the monotonic reading Go attaches to every
// time.Time. Clock is the same contract over an explicit Source, for hosts
// that need to pin a particular platform timer facility.
//
// Neither form ever returns an error. A Source that fails is replaced by the
// runtime counter and the failure is reported through Stats and the package
// logger instead.
package clock

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// processEpoch runs time.Now exactly once. Concurrent first callers block
// until it returns and all observe the same epoch.
var processEpoch = sync.OnceValue(time.Now)

// Elapsed returns the seconds elapsed since the first call to Elapsed or Init
// in this process. The result is never negative, never decreases between
// calls ordered in real time, and is unaffected by wall-clock adjustments.
func Elapsed() float64 {
	return elapsedSince(processEpoch)
}

func elapsedSince(epoch func() time.Time) float64 {
	return time.Since(epoch()).Seconds()
}

// Init captures the process epoch if no call has done so yet. Hosts may call
// it during startup, before spawning workers; it is otherwise optional.
func Init() {
	processEpoch()
}

// Stats is a health snapshot of a Clock.
type Stats struct {
	Source       string `json:"source" yaml:"source"`
	Period       Period `json:"period" yaml:"period"`
	Initialized  bool   `json:"initialized" yaml:"initialized"`
	Degraded     bool   `json:"degraded" yaml:"degraded"`
	ReadFailures uint64 `json:"read_failures" yaml:"read_failures"`
}

// Clock measures elapsed seconds over a Source. The epoch and period are
// established exactly once, on the first call to Elapsed or Init, and are
// read-only afterwards. A Clock is safe for concurrent use.
type Clock struct {
	src      Source
	fallback Source
	log      *zap.Logger

	once        sync.Once
	initialized atomic.Bool
	active      Source
	period      Period
	epoch       uint64
	anchor      time.Time
	degraded    bool

	failed   atomic.Bool
	failures atomic.Uint64
}

// Option configures a Clock.
type Option func(*Clock)

// WithLogger sets the logger used to report degraded sources. It defaults to
// the package logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Clock) {
		if l != nil {
			c.log = l
		}
	}
}

// WithFallback sets the Source used when src cannot report its period. It
// defaults to Runtime.
func WithFallback(src Source) Option {
	return func(c *Clock) {
		if src != nil {
			c.fallback = src
		}
	}
}

// New returns a Clock over src. Nothing is read from src until the first call
// to Elapsed or Init.
func New(src Source, opts ...Option) *Clock {
	if src == nil {
		src = Runtime()
	}
	c := &Clock{
		src:      src,
		fallback: Runtime(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logger()
	}
	c.log = c.log.With(zap.String("source", src.Name()))
	return c
}

var defaultClock = sync.OnceValue(func() *Clock { return New(Platform()) })

// Default returns the process-wide Clock over Platform.
func Default() *Clock {
	return defaultClock()
}

// Init establishes the epoch if it has not been established yet.
func (c *Clock) Init() {
	c.once.Do(c.init)
}

func (c *Clock) init() {
	src := c.src
	period, err := src.Period()
	if err == nil && !period.Valid() {
		err = errInvalidPeriod
	}
	if err != nil {
		c.log.Warn("Timer facility unavailable, falling back",
			zap.String("fallback", c.fallback.Name()), zap.Error(err))
		src = c.fallback
		c.degraded = true
		if period, err = src.Period(); err != nil || !period.Valid() {
			src = Runtime()
			period = Nanosecond
		}
	}

	// The anchor is taken before the epoch read so that the runtime clock
	// never reports less than the counter did.
	anchor := time.Now()
	epoch, err := src.Ticks()
	if err != nil {
		c.log.Warn("Initial counter read failed, falling back",
			zap.String("fallback", Runtime().Name()), zap.Error(err))
		src = Runtime()
		period = Nanosecond
		c.degraded = true
		anchor = time.Now()
		epoch, _ = src.Ticks()
	}

	c.active = src
	c.period = period
	c.epoch = epoch
	c.anchor = anchor
	c.initialized.Store(true)
}

// Elapsed returns the seconds elapsed since the Clock's epoch. After the
// first failed counter read the Clock serves the runtime clock for good, so
// values keep increasing across the switch.
func (c *Clock) Elapsed() float64 {
	c.once.Do(c.init)

	if c.failed.Load() {
		return time.Since(c.anchor).Seconds()
	}
	ticks, err := c.active.Ticks()
	if err != nil {
		c.failures.Add(1)
		if c.failed.CompareAndSwap(false, true) {
			c.log.Warn("Counter read failed, serving runtime clock", zap.Error(err))
		}
		return time.Since(c.anchor).Seconds()
	}
	if ticks < c.epoch {
		return 0
	}
	return c.period.ToSeconds(ticks - c.epoch)
}

// Initialized reports whether the epoch has been established.
func (c *Clock) Initialized() bool {
	return c.initialized.Load()
}

// Source returns the Source the Clock was created with.
func (c *Clock) Source() Source {
	return c.src
}

// Stats returns a snapshot of the Clock's state. Before initialization it
// describes the configured Source without querying it.
func (c *Clock) Stats() Stats {
	if !c.initialized.Load() {
		return Stats{Source: c.src.Name()}
	}
	return Stats{
		Source:       c.active.Name(),
		Period:       c.period,
		Initialized:  true,
		Degraded:     c.degraded || c.failed.Load(),
		ReadFailures: c.failures.Load(),
	}
}

// Package probe checks the elapsed-time contract against a live clock:
// non-negativity, monotonicity, linearity against a sleep, resolution, a
// busy-loop sanity bound and concurrent first use.
package probe

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"go.sazak.io/monoclock/internal/log"
	"go.sazak.io/monoclock/internal/metrics"
)

const (
	CheckNonNegative    = "non_negative"
	CheckMonotonic      = "monotonic"
	CheckLinearity      = "linearity"
	CheckResolution     = "resolution"
	CheckBusyLoop       = "busy_loop"
	CheckConcurrentInit = "concurrent_init"
)

// ErrNoTarget is returned when a Target has no Elapsed function.
var ErrNoTarget = errors.New("probe: target has no elapsed function")

// Target is a clock under test.
type Target struct {
	Name    string
	Elapsed func() float64
	// Fresh returns a new, uninitialized instance of the same clock. Targets
	// without one skip the concurrent first-use check.
	Fresh func() func() float64
}

type Options struct {
	Samples   int           `json:"samples" yaml:"samples"`
	Sleep     time.Duration `json:"sleep" yaml:"sleep"`
	Tolerance time.Duration `json:"tolerance" yaml:"tolerance"`
	Workers   int           `json:"workers" yaml:"workers"`
	BusyLoop  time.Duration `json:"busy_loop" yaml:"busy_loop"`
}

func DefaultOptions() Options {
	return Options{
		Samples:   10_000,
		Sleep:     50 * time.Millisecond,
		Tolerance: 50 * time.Millisecond,
		Workers:   32,
		BusyLoop:  time.Millisecond,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Samples <= 0 {
		o.Samples = d.Samples
	}
	if o.Sleep <= 0 {
		o.Sleep = d.Sleep
	}
	if o.Tolerance <= 0 {
		o.Tolerance = d.Tolerance
	}
	if o.Workers <= 0 {
		o.Workers = d.Workers
	}
	if o.BusyLoop <= 0 {
		o.BusyLoop = d.BusyLoop
	}
	return o
}

type Result struct {
	Check    string        `json:"check" yaml:"check"`
	Passed   bool          `json:"passed" yaml:"passed"`
	Detail   string        `json:"detail" yaml:"detail"`
	Duration time.Duration `json:"duration_ns" yaml:"duration_ns"`
}

type Report struct {
	ID        string    `json:"id" yaml:"id"`
	Target    string    `json:"target" yaml:"target"`
	StartedAt time.Time `json:"started_at" yaml:"started_at"`
	Host      Host      `json:"host" yaml:"host"`
	Options   Options   `json:"options" yaml:"options"`
	Results   []Result  `json:"results" yaml:"results"`
}

// Passed reports whether every check passed.
func (r *Report) Passed() bool {
	for _, res := range r.Results {
		if !res.Passed {
			return false
		}
	}
	return true
}

type check struct {
	name string
	run  func(ctx context.Context, t Target, o Options) (bool, string, error)
}

var checks = []check{
	{CheckNonNegative, nonNegative},
	{CheckMonotonic, monotonic},
	{CheckLinearity, linearity},
	{CheckResolution, resolution},
	{CheckBusyLoop, busyLoop},
	{CheckConcurrentInit, concurrentInit},
}

// Run runs every check against target in order. It stops early only when ctx
// is cancelled.
func Run(ctx context.Context, target Target, opts Options) (*Report, error) {
	if target.Elapsed == nil {
		return nil, ErrNoTarget
	}
	opts = opts.withDefaults()
	logger := log.Logger().Named("probe").With(zap.String("target", target.Name))

	report := &Report{
		ID:        uuid.New().String(),
		Target:    target.Name,
		StartedAt: time.Now(),
		Host:      HostInfo(ctx),
		Options:   opts,
	}

	for _, c := range checks {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		start := time.Now()
		passed, detail, err := c.run(ctx, target, opts)
		if err != nil {
			return report, fmt.Errorf("%s: %w", c.name, err)
		}
		res := Result{
			Check:    c.name,
			Passed:   passed,
			Detail:   detail,
			Duration: time.Since(start),
		}
		report.Results = append(report.Results, res)
		metrics.ObserveCheck(target.Name, c.name, passed)

		if passed {
			logger.Debug("Check passed", zap.String("check", c.name), zap.String("detail", detail))
		} else {
			logger.Warn("Check failed", zap.String("check", c.name), zap.String("detail", detail))
		}
	}
	return report, nil
}

func nonNegative(_ context.Context, t Target, o Options) (bool, string, error) {
	for i := 0; i < o.Samples; i++ {
		if v := t.Elapsed(); v < 0 || math.IsNaN(v) {
			return false, fmt.Sprintf("sample %d returned %v", i, v), nil
		}
	}
	return true, fmt.Sprintf("%d samples >= 0", o.Samples), nil
}

func monotonic(_ context.Context, t Target, o Options) (bool, string, error) {
	prev := t.Elapsed()
	for i := 1; i < o.Samples; i++ {
		cur := t.Elapsed()
		if cur < prev {
			return false, fmt.Sprintf("sample %d went backwards by %v", i, secondsToDuration(prev-cur)), nil
		}
		prev = cur
	}
	return true, fmt.Sprintf("%d samples non-decreasing", o.Samples), nil
}

func linearity(ctx context.Context, t Target, o Options) (bool, string, error) {
	t1 := t.Elapsed()
	timer := time.NewTimer(o.Sleep)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false, "", ctx.Err()
	case <-timer.C:
	}
	t2 := t.Elapsed()

	delta := t2 - t1
	lo, hi := o.Sleep.Seconds(), (o.Sleep + o.Tolerance).Seconds()
	detail := fmt.Sprintf("slept %v, measured %v", o.Sleep, secondsToDuration(delta))
	return delta >= lo && delta <= hi, detail, nil
}

func resolution(_ context.Context, t Target, o Options) (bool, string, error) {
	floor := math.Inf(1)
	var widest float64
	prev := t.Elapsed()
	for i := 1; i < o.Samples; i++ {
		cur := t.Elapsed()
		d := cur - prev
		if d > 0 && d < floor {
			floor = d
		}
		if d > widest {
			widest = d
		}
		prev = cur
	}
	if math.IsInf(floor, 1) {
		return false, fmt.Sprintf("counter did not advance over %d reads", o.Samples), nil
	}
	detail := fmt.Sprintf("floor %v, widest gap %v", secondsToDuration(floor), secondsToDuration(widest))
	return widest < 1.0, detail, nil
}

func busyLoop(_ context.Context, t Target, o Options) (bool, string, error) {
	a := t.Elapsed()
	for start := time.Now(); time.Since(start) < o.BusyLoop; {
	}
	b := t.Elapsed()

	detail := fmt.Sprintf("busy-looped %v, measured %v", o.BusyLoop, secondsToDuration(b-a))
	return b > a && b-a < 1.0, detail, nil
}

type bracket struct {
	before, after time.Time
	value         float64
}

func concurrentInit(_ context.Context, t Target, o Options) (bool, string, error) {
	if t.Fresh == nil {
		return true, "skipped: target is process-wide", nil
	}
	elapsed := t.Fresh()

	start := make(chan struct{})
	samples := make([]bracket, o.Workers)
	var wg sync.WaitGroup
	for i := 0; i < o.Workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			before := time.Now()
			v := elapsed()
			samples[i] = bracket{before: before, value: v, after: time.Now()}
		}(i)
	}
	close(start)
	wg.Wait()

	sort.Slice(samples, func(i, j int) bool { return samples[i].after.Before(samples[j].after) })
	for i := range samples {
		if samples[i].value < 0 {
			return false, fmt.Sprintf("worker observed %v", samples[i].value), nil
		}
		for j := range samples {
			if samples[i].after.Before(samples[j].before) && samples[i].value > samples[j].value {
				return false, fmt.Sprintf("call finishing first reported %v, later call %v",
					samples[i].value, samples[j].value), nil
			}
		}
	}
	return true, fmt.Sprintf("%d workers agree on one epoch", o.Workers), nil
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

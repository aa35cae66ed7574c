package probe

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"go.sazak.io/monoclock/internal/log"
	"go.sazak.io/monoclock/internal/metrics"
)

// cancelStride is how many reads a worker makes between context checks.
const cancelStride = 1024

type BenchOptions struct {
	Calls   uint64 `json:"calls" yaml:"calls"`
	Workers int    `json:"workers" yaml:"workers"`
	// SampleEvery times every n-th read of a worker individually and feeds it
	// to the call duration histogram. Zero disables sampling.
	SampleEvery uint64 `json:"sample_every" yaml:"sample_every"`
}

type BenchResult struct {
	Target      string        `json:"target" yaml:"target"`
	Calls       uint64        `json:"calls" yaml:"calls"`
	Workers     int           `json:"workers" yaml:"workers"`
	Wall        time.Duration `json:"wall_ns" yaml:"wall"`
	NsPerCall   float64       `json:"ns_per_call" yaml:"ns_per_call"`
	SlowestCall time.Duration `json:"slowest_sampled_ns" yaml:"slowest_sampled"`
	// Regressions counts reads that returned less than the previous read on
	// the same worker.
	Regressions uint64 `json:"regressions" yaml:"regressions"`
	Cancelled   bool   `json:"cancelled,omitempty" yaml:"cancelled,omitempty"`
}

// Bench hammers target from opts.Workers goroutines until opts.Calls reads
// have been made or ctx is cancelled.
func Bench(ctx context.Context, target Target, opts BenchOptions) (BenchResult, error) {
	if target.Elapsed == nil {
		return BenchResult{}, ErrNoTarget
	}
	shares := splitCalls(opts.Calls, opts.Workers)
	logger := log.Logger().Named("bench").With(zap.String("target", target.Name))

	var done, regressions atomic.Uint64
	var busyNs atomic.Int64
	var slowestMu sync.Mutex
	var slowest time.Duration

	var wg sync.WaitGroup
	start := time.Now()
	for id, share := range shares {
		if share == 0 {
			continue
		}
		wg.Add(1)
		go func(id int, n uint64) {
			defer wg.Done()
			logger.Debug("Worker started", zap.Int("worker", id), zap.Uint64("calls", n))

			workerStart := time.Now()
			var prev float64
			var local, k uint64
			var localSlowest time.Duration
			for k = 0; k < n; k++ {
				if k%cancelStride == 0 && ctx.Err() != nil {
					break
				}
				var cur float64
				if opts.SampleEvery > 0 && k%opts.SampleEvery == 0 {
					t0 := time.Now()
					cur = target.Elapsed()
					d := time.Since(t0)
					metrics.ObserveCall(target.Name, d)
					if d > localSlowest {
						localSlowest = d
					}
				} else {
					cur = target.Elapsed()
				}
				if cur < prev {
					local++
				}
				prev = cur
			}

			busyNs.Add(time.Since(workerStart).Nanoseconds())
			done.Add(k)
			regressions.Add(local)
			slowestMu.Lock()
			if localSlowest > slowest {
				slowest = localSlowest
			}
			slowestMu.Unlock()
			logger.Debug("Worker done", zap.Int("worker", id), zap.Uint64("calls", k))
		}(id, share)
	}
	wg.Wait()

	res := BenchResult{
		Target:      target.Name,
		Calls:       done.Load(),
		Workers:     len(shares),
		Wall:        time.Since(start),
		SlowestCall: slowest,
		Regressions: regressions.Load(),
		Cancelled:   ctx.Err() != nil,
	}
	if res.Calls > 0 {
		res.NsPerCall = float64(busyNs.Load()) / float64(res.Calls)
	}

	if res.Regressions > 0 {
		logger.Warn("Clock went backwards during bench", zap.Uint64("regressions", res.Regressions))
	}
	logger.Info("Bench finished",
		zap.Uint64("calls", res.Calls),
		zap.Duration("wall", res.Wall),
		zap.Float64("ns_per_call", res.NsPerCall))
	return res, ctx.Err()
}

// splitCalls divides calls over workers; the first calls%workers workers get
// one extra.
func splitCalls(calls uint64, workers int) []uint64 {
	if workers < 1 {
		workers = 1
	}
	out := make([]uint64, workers)
	per, extra := calls/uint64(workers), calls%uint64(workers)
	for i := range out {
		out[i] = per
		if uint64(i) < extra {
			out[i]++
		}
	}
	return out
}

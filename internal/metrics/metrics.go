package metrics

import (
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"go.sazak.io/monoclock/clock"
	"go.sazak.io/monoclock/internal/log"
)

const (
	namespace    = "monoclock"
	backendLabel = "backend"
	checkLabel   = "check"
	resultLabel  = "result"
)

var (
	// Registry holds every monoclock metric plus the Go runtime and process
	// collectors.
	Registry = prometheus.NewRegistry()

	ElapsedGauge       *prometheus.GaugeVec
	ReadsCounter       *prometheus.CounterVec
	CallDurationHist   *prometheus.HistogramVec
	ProbeChecksCounter *prometheus.CounterVec

	mu            sync.Mutex
	isInitialized atomic.Bool
	metricsLogger *log.ZapLogger

	// clocks tracks the health collectors exported per backend name.
	clocks = map[string]clockCollectors{}
)

type clockCollectors struct {
	clock *clock.Clock
	cols  []prometheus.Collector
}

// InitializeMetrics creates and registers the common metrics. Calling it
// again is harmless.
func InitializeMetrics() {
	mu.Lock()
	defer mu.Unlock()

	metricsLogger = log.Logger().Named("metrics")
	if isInitialized.Load() {
		metricsLogger.Debug("Metrics already initialized")
		return
	}

	ElapsedGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "elapsed_seconds",
		Help:      "Last elapsed-seconds value served by a backend",
	}, []string{backendLabel})
	ReadsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reads_total",
		Help:      "Elapsed-time reads served by a backend",
	}, []string{backendLabel})
	CallDurationHist = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "call_duration_seconds",
		Help:      "Cost of a single elapsed-time read, sampled by bench runs",
		Buckets:   prometheus.ExponentialBuckets(1e-9, 2, 24),
	}, []string{backendLabel})
	ProbeChecksCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "probe_checks_total",
		Help:      "Probe checks run against a backend, by outcome",
	}, []string{backendLabel, checkLabel, resultLabel})

	Registry.MustRegister(
		ElapsedGauge,
		ReadsCounter,
		CallDurationHist,
		ProbeChecksCounter,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	isInitialized.Store(true)
	metricsLogger.Debug("Metrics initialized")
}

// RegisterClock exports the health of c under the given backend name.
// Registering a different Clock under the same name replaces the previous
// one; registering the same Clock again is a no-op.
func RegisterClock(backend string, c *clock.Clock) error {
	mu.Lock()
	defer mu.Unlock()

	if old, ok := clocks[backend]; ok {
		if old.clock == c {
			return nil
		}
		unregisterClockLocked(backend)
	}

	labels := prometheus.Labels{backendLabel: backend}
	degraded := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "degraded",
		Help:        "1 when the backend runs on its fallback timer facility",
		ConstLabels: labels,
	}, func() float64 {
		if c.Stats().Degraded {
			return 1
		}
		return 0
	})
	failures := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "read_failures",
		Help:        "Counter reads that failed and were served by the runtime clock",
		ConstLabels: labels,
	}, func() float64 {
		return float64(c.Stats().ReadFailures)
	})

	cols := []prometheus.Collector{degraded, failures}
	for i, col := range cols {
		err := Registry.Register(col)
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			Registry.Unregister(are.ExistingCollector)
			err = Registry.Register(col)
		}
		if err != nil {
			for _, done := range cols[:i] {
				Registry.Unregister(done)
			}
			return err
		}
	}
	clocks[backend] = clockCollectors{clock: c, cols: cols}
	if metricsLogger != nil {
		metricsLogger.Debug("Registered clock", zap.String("backend", backend))
	}
	return nil
}

// UnregisterClock removes the health metrics of backend if they were
// registered for c. A later registration under the same name is kept.
func UnregisterClock(backend string, c *clock.Clock) {
	mu.Lock()
	defer mu.Unlock()

	if cur, ok := clocks[backend]; ok && cur.clock == c {
		unregisterClockLocked(backend)
	}
}

func unregisterClockLocked(backend string) {
	for _, col := range clocks[backend].cols {
		Registry.Unregister(col)
	}
	delete(clocks, backend)
	if metricsLogger != nil {
		metricsLogger.Debug("Unregistered clock", zap.String("backend", backend))
	}
}

// ObserveRead records one value served by a backend.
func ObserveRead(backend string, seconds float64) {
	if !isInitialized.Load() {
		return
	}
	ElapsedGauge.WithLabelValues(backend).Set(seconds)
	ReadsCounter.WithLabelValues(backend).Inc()
}

// ObserveCall records the cost of one read measured by a bench run.
func ObserveCall(backend string, d time.Duration) {
	if !isInitialized.Load() {
		return
	}
	CallDurationHist.WithLabelValues(backend).Observe(d.Seconds())
}

// ObserveCheck records the outcome of one probe check.
func ObserveCheck(backend, check string, passed bool) {
	if !isInitialized.Load() {
		return
	}
	result := "pass"
	if !passed {
		result = "fail"
	}
	ProbeChecksCounter.WithLabelValues(backend, check, result).Inc()
}

// Handler serves Registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}

package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.sazak.io/monoclock/clock"
	"go.sazak.io/monoclock/internal/log"
)

type brokenSource struct{}

func (brokenSource) Name() string                  { return "broken" }
func (brokenSource) Period() (clock.Period, error) { return clock.Period{}, errors.New("no counter") }
func (brokenSource) Ticks() (uint64, error)        { return 0, errors.New("no counter") }

func TestInitialization_MultipleInit(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("Did not expect InitializeMetrics to panic on reinitialization")
		}
	}()
	require.NoError(t, log.SetupZapLogger(log.GetDefaultLogOpts()))

	InitializeMetrics()
	InitializeMetrics()

	for _, obj := range []interface{}{ElapsedGauge, ReadsCounter, CallDurationHist, ProbeChecksCounter} {
		assert.NotNil(t, obj)
	}
}

func TestObserveRead(t *testing.T) {
	InitializeMetrics()

	ObserveRead("observe-read", 1.25)
	ObserveRead("observe-read", 2.5)

	assert.Equal(t, 2.0, testutil.ToFloat64(ReadsCounter.WithLabelValues("observe-read")))
	assert.Equal(t, 2.5, testutil.ToFloat64(ElapsedGauge.WithLabelValues("observe-read")))
}

func TestObserveCheckAndCall(t *testing.T) {
	InitializeMetrics()

	ObserveCheck("observe-check", "monotonic", true)
	ObserveCheck("observe-check", "monotonic", false)
	ObserveCheck("observe-check", "monotonic", false)
	ObserveCall("observe-check", 40*time.Nanosecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(ProbeChecksCounter.WithLabelValues("observe-check", "monotonic", "pass")))
	assert.Equal(t, 2.0, testutil.ToFloat64(ProbeChecksCounter.WithLabelValues("observe-check", "monotonic", "fail")))
	assert.Equal(t, 1, testutil.CollectAndCount(CallDurationHist, "monoclock_call_duration_seconds"))
}

func TestRegisterClock(t *testing.T) {
	InitializeMetrics()

	c := clock.New(brokenSource{})
	c.Init()
	require.NoError(t, RegisterClock("register-broken", c))
	require.NoError(t, RegisterClock("register-broken", c), "registering twice is not an error")

	n, err := testutil.GatherAndCount(Registry, "monoclock_degraded", "monoclock_read_failures")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, 2)
}

func scrape(t *testing.T) string {
	t.Helper()
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestRegisterClockReplacesPreviousClock(t *testing.T) {
	InitializeMetrics()

	stale := clock.New(brokenSource{})
	stale.Init()
	require.NoError(t, RegisterClock("register-swap", stale))
	assert.Contains(t, scrape(t), `monoclock_degraded{backend="register-swap"} 1`)

	fresh := clock.New(clock.Runtime())
	fresh.Init()
	require.NoError(t, RegisterClock("register-swap", fresh))
	body := scrape(t)
	assert.Contains(t, body, `monoclock_degraded{backend="register-swap"} 0`)
	assert.NotContains(t, body, `monoclock_degraded{backend="register-swap"} 1`)

	// Dropping the old clock must not take the new one's metrics with it.
	UnregisterClock("register-swap", stale)
	assert.Contains(t, scrape(t), `monoclock_degraded{backend="register-swap"} 0`)

	UnregisterClock("register-swap", fresh)
	assert.NotContains(t, scrape(t), `backend="register-swap"`)

	require.NoError(t, RegisterClock("register-swap", stale), "name is free again")
	assert.Contains(t, scrape(t), `monoclock_degraded{backend="register-swap"} 1`)
	UnregisterClock("register-swap", stale)
}

func TestHandler(t *testing.T) {
	InitializeMetrics()
	ObserveRead("handler", 0.5)

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `monoclock_reads_total{backend="handler"} 1`)
}

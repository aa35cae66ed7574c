package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.sazak.io/monoclock/cmd/monoclock/backend"
	"go.sazak.io/monoclock/internal/metrics"
	"go.sazak.io/monoclock/internal/probe"
)

func newTestServer(t *testing.T, interval time.Duration) (*Server, *httptest.Server) {
	t.Helper()

	set, err := backend.OpenSet([]string{backend.Default, backend.Runtime, backend.Platform})
	require.NoError(t, err)

	opts := probe.Options{Samples: 500, Sleep: 10 * time.Millisecond, Tolerance: 250 * time.Millisecond, Workers: 4}
	s := NewServer(set, 0, interval, opts)
	s.startLoops()
	ts := httptest.NewServer(s.Handler())

	t.Cleanup(func() {
		ts.Close()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		s.Stop(ctx)
		set.Close()
	})
	return s, ts
}

func getJSON(t *testing.T, method, url string, v any) int {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK && v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func TestElapsed(t *testing.T) {
	_, ts := newTestServer(t, 0)

	var first, second Reading
	require.Equal(t, http.StatusOK, getJSON(t, http.MethodGet, ts.URL+"/api/elapsed", &first))
	assert.Equal(t, backend.Default, first.Backend)
	assert.GreaterOrEqual(t, first.Seconds, 0.0)

	require.Equal(t, http.StatusOK, getJSON(t, http.MethodGet, ts.URL+"/api/elapsed?backend=default", &second))
	assert.GreaterOrEqual(t, second.Seconds, first.Seconds)

	var rt Reading
	require.Equal(t, http.StatusOK, getJSON(t, http.MethodGet, ts.URL+"/api/elapsed?backend=runtime", &rt))
	assert.Equal(t, backend.Runtime, rt.Backend)
}

func TestElapsedUnknownBackend(t *testing.T) {
	_, ts := newTestServer(t, 0)

	assert.Equal(t, http.StatusNotFound, getJSON(t, http.MethodGet, ts.URL+"/api/elapsed?backend=sundial", nil))
	assert.Equal(t, http.StatusNotFound, getJSON(t, http.MethodGet, ts.URL+"/api/elapsed?backend=ktime", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, getJSON(t, http.MethodDelete, ts.URL+"/api/elapsed", nil))
}

func TestBackends(t *testing.T) {
	_, ts := newTestServer(t, 0)

	var infos []backend.Info
	require.Equal(t, http.StatusOK, getJSON(t, http.MethodGet, ts.URL+"/api/backends", &infos))
	require.Len(t, infos, 3)
	assert.Equal(t, backend.Default, infos[0].Name)
	assert.Equal(t, backend.Platform, infos[2].Name)

	var info backend.Info
	require.Equal(t, http.StatusOK, getJSON(t, http.MethodGet, ts.URL+"/api/backends/runtime", &info))
	assert.Equal(t, "runtime", info.Source)
	assert.False(t, info.Degraded)

	assert.Equal(t, http.StatusNotFound, getJSON(t, http.MethodGet, ts.URL+"/api/backends/sundial", nil))
}

func TestReportIsCachedUntilPosted(t *testing.T) {
	_, ts := newTestServer(t, 0)
	url := ts.URL + "/api/report?backend=runtime"

	var first, cached, fresh probe.Report
	require.Equal(t, http.StatusOK, getJSON(t, http.MethodGet, url, &first))
	assert.Equal(t, backend.Runtime, first.Target)
	assert.NotEmpty(t, first.Results)
	for _, res := range first.Results {
		assert.True(t, res.Passed, "%s: %s", res.Check, res.Detail)
	}

	require.Equal(t, http.StatusOK, getJSON(t, http.MethodGet, url, &cached))
	assert.Equal(t, first.ID, cached.ID)

	require.Equal(t, http.StatusOK, getJSON(t, http.MethodPost, url, &fresh))
	assert.NotEqual(t, first.ID, fresh.ID)
}

func TestBench(t *testing.T) {
	_, ts := newTestServer(t, 0)

	var res probe.BenchResult
	require.Equal(t, http.StatusOK, getJSON(t, http.MethodPost, ts.URL+"/api/bench?backend=platform&calls=5000&workers=2", &res))
	assert.Equal(t, backend.Platform, res.Target)
	assert.Equal(t, uint64(5000), res.Calls)
	assert.Equal(t, 2, res.Workers)
	assert.Zero(t, res.Regressions)

	assert.Equal(t, http.StatusBadRequest, getJSON(t, http.MethodPost, ts.URL+"/api/bench?calls=0", nil))
	assert.Equal(t, http.StatusBadRequest, getJSON(t, http.MethodPost, ts.URL+"/api/bench?workers=-1", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, getJSON(t, http.MethodGet, ts.URL+"/api/bench", nil))
}

func TestMetricsEndpoint(t *testing.T) {
	metrics.InitializeMetrics()
	_, ts := newTestServer(t, 0)

	require.Equal(t, http.StatusOK, getJSON(t, http.MethodGet, ts.URL+"/api/elapsed?backend=runtime", &Reading{}))

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `monoclock_reads_total{backend="runtime"}`)
	assert.Contains(t, string(body), "monoclock_degraded")
}

func TestCORSPreflight(t *testing.T) {
	_, ts := newTestServer(t, 0)

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/elapsed", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestWebsocketTicks(t *testing.T) {
	_, ts := newTestServer(t, 10*time.Millisecond)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	var last map[string]float64
	for i := 0; i < 3; i++ {
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)

		var msg struct {
			Type  string `json:"type"`
			Ticks []Tick `json:"ticks"`
		}
		require.NoError(t, json.Unmarshal(data, &msg))
		assert.Equal(t, "ticks", msg.Type)
		require.Len(t, msg.Ticks, 3)

		cur := make(map[string]float64, len(msg.Ticks))
		for _, tick := range msg.Ticks {
			cur[tick.Backend] = tick.Seconds
			if last != nil {
				assert.GreaterOrEqual(t, tick.Seconds, last[tick.Backend], "%s went backwards", tick.Backend)
			}
		}
		last = cur
	}
}

func TestHubStopDisconnectsClients(t *testing.T) {
	s, ts := newTestServer(t, 10*time.Millisecond)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err = conn.ReadMessage()
	require.NoError(t, err)

	s.hub.Stop()
	for err == nil {
		_, _, err = conn.ReadMessage()
	}
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNoStatusReceived), "got %v", err)
}

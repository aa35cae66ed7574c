package backend

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.sazak.io/monoclock/clock"
	"go.sazak.io/monoclock/internal/metrics"
)

func TestOpen(t *testing.T) {
	for _, name := range []string{Default, Runtime, Platform} {
		t.Run(name, func(t *testing.T) {
			b, err := Open(name)
			require.NoError(t, err)
			defer b.Close()

			assert.Equal(t, name, b.Name)
			a := b.Elapsed()
			assert.GreaterOrEqual(t, a, 0.0)
			assert.GreaterOrEqual(t, b.Elapsed(), a)

			info := b.Info()
			assert.True(t, info.Initialized)
			assert.False(t, info.Degraded)
			assert.Equal(t, clock.Nanosecond.String(), info.Period)
		})
	}
}

func TestOpenUnknown(t *testing.T) {
	_, err := Open("sundial")
	assert.True(t, errors.Is(err, ErrUnknown))
	assert.False(t, Valid("sundial"))
	assert.True(t, Valid(Ktime))
}

func TestTargetFreshOnlyForSources(t *testing.T) {
	def, err := Open(Default)
	require.NoError(t, err)
	assert.Nil(t, def.Target().Fresh)
	assert.Nil(t, def.Clock())

	rt, err := Open(Runtime)
	require.NoError(t, err)
	target := rt.Target()
	require.NotNil(t, target.Fresh)

	fresh := target.Fresh()
	assert.Less(t, fresh(), rt.Elapsed(), "fresh clocks start their own epoch")
}

func TestOpenSet(t *testing.T) {
	s, err := OpenSet([]string{Platform, "sundial", Runtime, Platform})
	assert.True(t, errors.Is(err, ErrUnknown))
	defer s.Close()

	require.Equal(t, 2, s.Len())
	names := []string{}
	for _, b := range s.List() {
		names = append(names, b.Name)
	}
	assert.Equal(t, []string{Platform, Runtime}, names)

	_, ok := s.Get(Runtime)
	assert.True(t, ok)
	_, ok = s.Get(Default)
	assert.False(t, ok)

	require.NoError(t, s.Close())
	assert.Zero(t, s.Len())
}

func scrapeMetrics(t *testing.T) string {
	t.Helper()
	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	return rec.Body.String()
}

func TestSetCloseUnregistersClockMetrics(t *testing.T) {
	s, err := OpenSet([]string{Runtime})
	require.NoError(t, err)
	assert.Contains(t, scrapeMetrics(t), `monoclock_degraded{backend="runtime"}`)
	require.NoError(t, s.Close())
	assert.NotContains(t, scrapeMetrics(t), `backend="runtime"`)

	// A reopened set exports its own clock.
	s, err = OpenSet([]string{Runtime})
	require.NoError(t, err)
	defer s.Close()
	b, ok := s.Get(Runtime)
	require.True(t, ok)
	b.Clock().Init()
	assert.Contains(t, scrapeMetrics(t), `monoclock_degraded{backend="runtime"} 0`)
}

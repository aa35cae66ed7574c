package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBudget(t *testing.T) {
	b := NewBudget(0.05)
	assert.False(t, b.Exceeded())
	assert.InDelta(t, 0.05, b.Remaining(), 0.01)

	time.Sleep(60 * time.Millisecond)
	assert.True(t, b.Exceeded())
	assert.Zero(t, b.Remaining())
	assert.GreaterOrEqual(t, b.Spent(), 0.05)
}

func TestCountPrimesWithinLimit(t *testing.T) {
	res := countPrimes(NewBudget(10), 100, 100)
	assert.Equal(t, uint64(100), res.Iterations)
	// Candidates 2..101 hold 26 primes.
	assert.Equal(t, uint64(26), res.Primes)
	assert.False(t, res.StoppedByBudget)
}

func TestCountPrimesStopsOnBudget(t *testing.T) {
	start := time.Now()
	res := countPrimes(NewBudget(0.02), 64, maxIterations)

	assert.True(t, res.StoppedByBudget)
	assert.Less(t, res.Iterations, uint64(maxIterations))
	assert.GreaterOrEqual(t, res.ElapsedSeconds, 0.02)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestIsPrime(t *testing.T) {
	for n, want := range map[uint64]bool{0: false, 1: false, 2: true, 3: true, 4: false, 9: false, 97: true, 7919: true, 7921: false} {
		assert.Equal(t, want, isPrime(n), "isPrime(%d)", n)
	}
}

func TestRunHandler(t *testing.T) {
	srv := httptest.NewServer(newRouter())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/run/20/128")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	var res workResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	assert.Positive(t, res.Iterations)
	assert.Positive(t, res.ElapsedSeconds)
}

func TestRunHandlerRejectsBadInput(t *testing.T) {
	srv := httptest.NewServer(newRouter())
	defer srv.Close()

	for path, want := range map[string]int{
		"/run/0/10":        http.StatusBadRequest,
		"/run/10/0":        http.StatusBadRequest,
		"/run/999999999/1": http.StatusBadRequest,
		"/run/ten/1":       http.StatusNotFound,
	} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, want, resp.StatusCode, path)
	}
}

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"go.sazak.io/monoclock/clock"
	"go.sazak.io/monoclock/internal/log"
)

var (
	port     = flag.Int("port", 8081, "Port to listen on")
	logLevel = flag.String("log-level", "info", "Log level")
)

const (
	maxBudgetMs   = 60_000
	maxSlice      = 1_000_000
	maxIterations = 50_000_000
)

func main() {
	flag.Parse()

	opts := log.GetDefaultLogOpts()
	opts.Level = *logLevel
	if err := log.SetupZapLogger(opts); err != nil {
		panic(err)
	}
	logger := log.Logger().Named("testhost")
	defer logger.Close()

	// Pin the epoch before serving so the first request does not pay for it.
	clock.Init()

	addr := fmt.Sprintf(":%d", *port)
	logger.Info("Test host listening", zap.String("addr", addr))
	srv := &http.Server{
		Addr:              addr,
		Handler:           newRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		logger.Fatal("Test host stopped", zap.Error(err))
	}
}

func newRouter() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/run/{budget_ms:[0-9]+}/{slice:[0-9]+}", Run).Methods(http.MethodGet)
	return r
}

// Run counts primes for at most budget_ms milliseconds, checking the clock
// every slice candidates.
func Run(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	budgetMs, err := strconv.ParseUint(vars["budget_ms"], 10, 64)
	if err != nil || budgetMs == 0 || budgetMs > maxBudgetMs {
		http.Error(w, fmt.Sprintf("budget_ms must be between 1 and %d", maxBudgetMs), http.StatusBadRequest)
		return
	}
	slice, err := strconv.ParseUint(vars["slice"], 10, 64)
	if err != nil || slice == 0 || slice > maxSlice {
		http.Error(w, fmt.Sprintf("slice must be between 1 and %d", maxSlice), http.StatusBadRequest)
		return
	}

	budget := NewBudget(float64(budgetMs) / 1000)
	res := countPrimes(budget, slice, maxIterations)

	log.Logger().Named("testhost").Debug("Run finished",
		zap.Uint64("budget_ms", budgetMs),
		zap.Uint64("slice", slice),
		zap.Uint64("iterations", res.Iterations),
		zap.Bool("stopped_by_budget", res.StoppedByBudget))

	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(res)
}

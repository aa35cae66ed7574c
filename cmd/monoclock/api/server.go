package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"go.sazak.io/monoclock/cmd/monoclock/backend"
	"go.sazak.io/monoclock/internal/log"
	"go.sazak.io/monoclock/internal/metrics"
	"go.sazak.io/monoclock/internal/probe"
)

// maxBenchCalls bounds a single bench request.
const maxBenchCalls = 100_000_000

// Tick is one backend reading pushed to websocket clients.
type Tick struct {
	Backend string  `json:"backend"`
	Seconds float64 `json:"seconds"`
}

// Reading is the response of /api/elapsed.
type Reading struct {
	Backend string  `json:"backend"`
	Seconds float64 `json:"seconds"`
}

// Server is the HTTP API server
type Server struct {
	backends   *backend.Set
	probeOpts  probe.Options
	interval   time.Duration
	hub        *Hub
	httpServer *http.Server
	logger     *log.ZapLogger

	reportsMu sync.RWMutex
	reports   map[string]*probe.Report

	stop     chan struct{}
	stopOnce sync.Once
	loopWg   sync.WaitGroup
}

// NewServer creates a new API server serving backends on port. Every
// interval the server pushes a reading of each backend to websocket clients.
func NewServer(backends *backend.Set, port int, interval time.Duration, opts probe.Options) *Server {
	server := &Server{
		backends:  backends,
		probeOpts: opts,
		interval:  interval,
		hub:       NewHub(),
		logger:    log.Logger().Named("api"),
		reports:   make(map[string]*probe.Report),
		stop:      make(chan struct{}),
	}

	r := mux.NewRouter()

	// API endpoints
	apiRouter := r.PathPrefix("/api").Subrouter()
	apiRouter.HandleFunc("/elapsed", server.handleElapsed).Methods(http.MethodGet)
	apiRouter.HandleFunc("/backends", server.handleBackends).Methods(http.MethodGet)
	apiRouter.HandleFunc("/backends/{name}", server.handleBackend).Methods(http.MethodGet)
	apiRouter.HandleFunc("/report", server.handleReport).Methods(http.MethodGet, http.MethodPost)
	apiRouter.HandleFunc("/bench", server.handleBench).Methods(http.MethodPost)

	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	// WebSocket endpoint
	r.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ServeWs(server.hub, w, r)
	})

	// CORS middleware
	handler := corsMiddleware(r)

	server.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return server
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start starts the API server
func (s *Server) Start() error {
	s.startLoops()

	s.logger.Info("API server listening", zap.String("addr", s.httpServer.Addr), zap.Int("backends", s.backends.Len()))
	return s.httpServer.ListenAndServe()
}

func (s *Server) startLoops() {
	// Start the WebSocket hub
	go s.hub.Run()

	s.loopWg.Add(1)
	go s.tickLoop()
}

// Stop stops the API server
func (s *Server) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stop) })
	s.loopWg.Wait()
	s.hub.Stop()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) tickLoop() {
	defer s.loopWg.Done()
	if s.interval <= 0 {
		return
	}

	t := time.NewTicker(s.interval)
	defer t.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-t.C:
			s.BroadcastTicks()
		}
	}
}

// BroadcastTicks reads every backend once and pushes the readings to all
// connected WebSocket clients as a single batch.
func (s *Server) BroadcastTicks() {
	backends := s.backends.List()
	ticks := make([]Tick, 0, len(backends))
	for _, b := range backends {
		secs := b.Elapsed()
		metrics.ObserveRead(b.Name, secs)
		ticks = append(ticks, Tick{Backend: b.Name, Seconds: secs})
	}

	data, err := json.Marshal(map[string]interface{}{
		"type":  "ticks",
		"ticks": ticks,
	})
	if err != nil {
		s.logger.Error("Failed to marshal ticks", zap.Error(err))
		return
	}

	s.hub.Broadcast(data)
}

func (s *Server) lookup(w http.ResponseWriter, name string) (*backend.Backend, bool) {
	if name == "" {
		name = backend.Default
	}
	b, ok := s.backends.Get(name)
	if !ok {
		if backend.Valid(name) {
			http.Error(w, fmt.Sprintf("backend %q is not enabled", name), http.StatusNotFound)
		} else {
			http.Error(w, fmt.Sprintf("%v: %q", backend.ErrUnknown, name), http.StatusNotFound)
		}
	}
	return b, ok
}

func (s *Server) handleElapsed(w http.ResponseWriter, r *http.Request) {
	b, ok := s.lookup(w, r.URL.Query().Get("backend"))
	if !ok {
		return
	}

	secs := b.Elapsed()
	metrics.ObserveRead(b.Name, secs)
	writeJSON(w, http.StatusOK, Reading{Backend: b.Name, Seconds: secs})
}

func (s *Server) handleBackends(w http.ResponseWriter, r *http.Request) {
	backends := s.backends.List()
	infos := make([]backend.Info, 0, len(backends))
	for _, b := range backends {
		infos = append(infos, b.Info())
	}
	writeJSON(w, http.StatusOK, infos)
}

func (s *Server) handleBackend(w http.ResponseWriter, r *http.Request) {
	b, ok := s.lookup(w, mux.Vars(r)["name"])
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, b.Info())
}

// handleReport runs the probe on POST. GET returns the last report for the
// backend, running one first if there is none.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	b, ok := s.lookup(w, r.URL.Query().Get("backend"))
	if !ok {
		return
	}

	if r.Method == http.MethodGet {
		s.reportsMu.RLock()
		report, cached := s.reports[b.Name]
		s.reportsMu.RUnlock()
		if cached {
			writeJSON(w, http.StatusOK, report)
			return
		}
	}

	report, err := probe.Run(r.Context(), b.Target(), s.probeOpts)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	s.reportsMu.Lock()
	s.reports[b.Name] = report
	s.reportsMu.Unlock()

	s.logger.Info("Probe finished", zap.String("backend", b.Name), zap.String("report", report.ID), zap.Bool("passed", report.Passed()))
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleBench(w http.ResponseWriter, r *http.Request) {
	b, ok := s.lookup(w, r.URL.Query().Get("backend"))
	if !ok {
		return
	}

	opts := probe.BenchOptions{Calls: 1_000_000, Workers: 1, SampleEvery: 1024}
	if callsStr := r.URL.Query().Get("calls"); callsStr != "" {
		calls, err := strconv.ParseUint(callsStr, 10, 64)
		if err != nil || calls == 0 || calls > maxBenchCalls {
			http.Error(w, fmt.Sprintf("calls must be between 1 and %d", maxBenchCalls), http.StatusBadRequest)
			return
		}
		opts.Calls = calls
	}
	if workersStr := r.URL.Query().Get("workers"); workersStr != "" {
		workers, err := strconv.Atoi(workersStr)
		if err != nil || workers < 1 || workers > 1024 {
			http.Error(w, "workers must be between 1 and 1024", http.StatusBadRequest)
			return
		}
		opts.Workers = workers
	}

	res, err := probe.Bench(r.Context(), b.Target(), opts)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

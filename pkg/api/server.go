// Package api exposes the harness over HTTP: failure scenario endpoints,
// the performance benchmark endpoint, run history, a store passthrough and
// the usual health/metrics surface.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Sadoklaoo/distributed-database-tradeoff/pkg/driver"
	"github.com/Sadoklaoo/distributed-database-tradeoff/pkg/infra"
	"github.com/Sadoklaoo/distributed-database-tradeoff/pkg/metrics"
)

// DefaultKnownNodes is the fixed node set addressed by /failure/stop and the
// uptime endpoint when no names are given.
var DefaultKnownNodes = []string{
	"mongo1", "mongo2", "mongo3",
	"cassandra1", "cassandra2", "cassandra3",
}

// Config wires a Server.
type Config struct {
	Addr       string
	Scenarios  ScenarioRunner
	Benchmarks BenchmarkRunner
	Infra      infra.Controller
	Drivers    map[string]driver.Driver
	Runs       RunStore
	Sink       ReportSink
	Meters     *metrics.Collector
	Logger     *zap.Logger
	KnownNodes []string
}

// Server encapsulates the HTTP API server.
type Server struct {
	server     *http.Server
	scenarios  ScenarioRunner
	benchmarks BenchmarkRunner
	infra      infra.Controller
	drivers    map[string]driver.Driver
	runs       RunStore
	sink       ReportSink
	meters     *metrics.Collector
	logger     *zap.Logger
	knownNodes []string
}

// NewServer creates the API server and registers all routes.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	nodes := cfg.KnownNodes
	if len(nodes) == 0 {
		nodes = DefaultKnownNodes
	}
	s := &Server{
		scenarios:  cfg.Scenarios,
		benchmarks: cfg.Benchmarks,
		infra:      cfg.Infra,
		drivers:    cfg.Drivers,
		runs:       cfg.Runs,
		sink:       cfg.Sink,
		meters:     cfg.Meters,
		logger:     logger,
		knownNodes: nodes,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/failure/simulate", s.handleSimulate)
	mux.HandleFunc("/failure/container-uptimes", s.handleContainerUptimes)
	mux.HandleFunc("/failure/stop", s.handleStop)
	mux.HandleFunc("/failure/cap-analysis", s.handleCapAnalysis)
	mux.HandleFunc("/performance/run", s.handlePerformanceRun)
	mux.HandleFunc("/runs", s.handleRuns)
	mux.HandleFunc("/store/", s.handleStore)
	if cfg.Meters != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(cfg.Meters.Registry(), promhttp.HandlerOpts{}))
	}

	handler := s.withLogging(withRecovery(mux, logger))

	addr := cfg.Addr
	if addr == "" {
		addr = ":8080"
	}
	s.server = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // scenarios run for minutes
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler exposes the full middleware-wrapped handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.server.Handler }

// Start runs the HTTP server, blocking until shutdown.
func (s *Server) Start() error {
	s.logger.Info("api server starting", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("api server stopping")
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	mode := ""
	if s.infra != nil {
		mode = string(s.infra.Mode())
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"mode":   mode,
	})
}

// statusWriter captures the response code for logging and metrics.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		elapsed := time.Since(start)

		s.logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Duration("duration", elapsed))
		if s.meters != nil {
			s.meters.RequestsTotal.WithLabelValues(
				r.URL.Path, r.Method, strconv.Itoa(ww.status)).Inc()
			s.meters.RequestDuration.WithLabelValues(r.URL.Path).Observe(elapsed.Seconds())
		}
	})
}

func withRecovery(next http.Handler, logger *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error("panic recovered",
					zap.Any("panic", err), zap.String("path", r.URL.Path))
				http.Error(w, `{"error":"internal_server_error"}`, http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Package server implements the docrag HTTP API: question answering,
// ingestion, collection listing, health probes, and Prometheus metrics.
// The server is started by the `docrag serve` CLI command.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/54b3r/docrag/internal/logging"
	"github.com/54b3r/docrag/internal/query"
	"github.com/54b3r/docrag/internal/rag"
)

const defaultMaxBodyBytes = 1 << 20

// New constructs a Server from cfg. cfg.Query and cfg.Store are required.
func New(cfg *Config) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("server: %w: config must not be nil", rag.ErrConfiguration)
	}
	if cfg.Query == nil {
		return nil, fmt.Errorf("server: %w: query service must not be nil", rag.ErrConfiguration)
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("server: %w: store must not be nil", rag.ErrConfiguration)
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.IngestRateLimit == 0 {
		cfg.IngestRateLimit = defaultIngestRateLimit
	}
	if cfg.IngestRateBurst == 0 {
		cfg.IngestRateBurst = defaultIngestRateBurst
	}
	if cfg.MaxBodyBytes == 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.New()
	}
	reg := cfg.MetricsRegistry
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	s := &Server{
		cfg:      cfg,
		log:      cfg.Logger,
		pingers:  cfg.Pingers,
		metrics:  newServerMetrics(reg),
		registry: reg,
	}
	s.askLimiter = newRouteLimiter("ask", cfg.RateLimit, cfg.RateBurst,
		s.metrics.rateLimitedTotal.WithLabelValues("ask"))
	s.ingestLimiter = newRouteLimiter("ingest", cfg.IngestRateLimit, cfg.IngestRateBurst,
		s.metrics.rateLimitedTotal.WithLabelValues("ingest"))
	stop := make(chan struct{})
	go evictIdle(time.Minute, stop, s.askLimiter, s.ingestLimiter)
	var once sync.Once
	s.stopLimiters = func() { once.Do(func() { close(stop) }) }

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.routes(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s, nil
}

// routes builds the handler tree. Rate limiting applies only to the routes
// that reach a model backend, each with its own budget.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("POST /api/ask", s.instrument("ask", s.askLimiter.middleware(http.HandlerFunc(s.handleAsk))))
	mux.Handle("POST /api/ingest", s.instrument("ingest", s.ingestLimiter.middleware(http.HandlerFunc(s.handleIngest))))
	mux.Handle("GET /api/collections", s.instrument("collections", http.HandlerFunc(s.handleCollections)))
	mux.Handle("GET /api/health", s.instrument("health", http.HandlerFunc(s.handleHealth)))
	mux.Handle("GET /api/ready", s.instrument("ready", http.HandlerFunc(s.handleReady)))
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	return requestLogger(s.log, recoverer(mux))
}

// Handler returns the server's root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	defer s.stopLimiters()
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("server: listening", slog.String("addr", "http://"+s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		s.log.Info("server: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// writeJSON encodes v with the given status.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(r.Context()).Error("server: encode response", slog.Any("error", err))
	}
}

// writeError logs err and answers with {error, kind}. The message is the
// user-facing FailureMessage; the raw error stays in the log.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := rag.Kind(err)
	status := statusForError(err)
	log := logging.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error("server: request failed", slog.String("kind", kind), slog.Any("error", err))
	} else {
		log.Warn("server: request rejected", slog.String("kind", kind), slog.Any("error", err))
	}

	resp := errorResponse{Error: query.FailureMessage(err), Kind: kind}
	var upErr *rag.UpsertError
	if errors.As(err, &upErr) {
		n := upErr.NotStored()
		resp.NotStored = &n
	}
	writeJSON(w, r, status, resp)
}

// writeBadRequest answers a malformed request body.
func writeBadRequest(w http.ResponseWriter, r *http.Request, msg string) {
	writeJSON(w, r, http.StatusBadRequest, errorResponse{Error: msg, Kind: "bad_request"})
}

// statusForError derives the HTTP status from the error kind.
func statusForError(err error) int {
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	switch rag.Kind(err) {
	case "dimension_mismatch":
		return http.StatusConflict
	case "configuration":
		return http.StatusBadRequest
	case "no_data", "collection_not_found":
		return http.StatusNotFound
	case "embedding_provider", "completion_provider":
		return http.StatusBadGateway
	case "connection":
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/docrag/internal/ingestion"
	"github.com/54b3r/docrag/internal/query"
	"github.com/54b3r/docrag/internal/rag"
	"github.com/54b3r/docrag/internal/source"
)

// Config holds the HTTP server configuration and its dependencies.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response. It must
	// cover a full ingest run.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on /api/ask
	// (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP on /api/ask.
	// Defaults to 20 if zero.
	RateBurst int
	// IngestRateLimit is the per-IP rate on /api/ingest. Defaults to 0.2
	// (one run every five seconds) if zero.
	IngestRateLimit float64
	// IngestRateBurst is the per-IP burst on /api/ingest. Defaults to 2 if zero.
	IngestRateBurst int
	// MaxBodyBytes caps JSON request bodies. Defaults to 1 MiB.
	MaxBodyBytes int64
	// MetricsRegistry receives the server's collectors. Defaults to a fresh
	// registry so each server is isolated.
	MetricsRegistry *prometheus.Registry

	// Query answers POST /api/ask. Required.
	Query asker
	// Ingest serves POST /api/ingest. Optional; the route returns 503 when nil.
	Ingest ingester
	// Refs limits what POST /api/ingest may load. The zero value accepts
	// public URLs only.
	Refs source.RefPolicy
	// Store backs GET /api/collections. Required.
	Store catalog
}

// asker is what handleAsk needs. *query.Service satisfies it; tests inject a fake.
type asker interface {
	Ask(ctx context.Context, req *query.Request) (*query.Result, error)
}

// ingester is what handleIngest needs. *ingestion.Service satisfies it.
type ingester interface {
	IngestRefs(ctx context.Context, collection string, refs []string, progress func(string)) (*ingestion.Report, error)
}

// catalog is the read-only slice of rag.VectorStore used by handleCollections.
type catalog interface {
	ListCollections(ctx context.Context) ([]string, error)
	Collection(ctx context.Context, name string) (rag.CollectionInfo, error)
}

// Server is the docrag HTTP API.
type Server struct {
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the server's Prometheus collectors.
	metrics *serverMetrics
	// registry is the registry metrics were registered against.
	registry *prometheus.Registry
	// askLimiter and ingestLimiter hold independent per-client buckets.
	askLimiter    *routeLimiter
	ingestLimiter *routeLimiter
	// stopLimiters stops the idle-bucket eviction goroutine.
	stopLimiters func()
}

// askRequest is the JSON body for POST /api/ask.
type askRequest struct {
	// Query is the user's question.
	Query string `json:"query"`
	// Collection overrides the default collection.
	Collection string `json:"collection,omitempty"`
	// K is the number of chunks to retrieve.
	K int `json:"k,omitempty"`
	// SessionID enables transcript replay across requests.
	SessionID string `json:"session_id,omitempty"`
}

// sourceHit is one retrieved chunk in an ask response.
type sourceHit struct {
	ID         uint64  `json:"id"`
	Score      float32 `json:"score"`
	Source     string  `json:"source"`
	ChunkIndex int     `json:"chunk_index"`
	Ref        string  `json:"ref,omitempty"`
	Text       string  `json:"text"`
}

// askResponse is the JSON response for POST /api/ask.
type askResponse struct {
	Answer       string      `json:"answer"`
	Collection   string      `json:"collection"`
	FallbackFrom string      `json:"fallback_from,omitempty"`
	Sources      []sourceHit `json:"sources"`
}

// ingestRequest is the JSON body for POST /api/ingest.
type ingestRequest struct {
	// Refs are file paths or http(s) URLs, loaded in order.
	Refs []string `json:"refs"`
	// Collection overrides the default collection.
	Collection string `json:"collection,omitempty"`
}

// ingestResponse is the JSON response for POST /api/ingest.
type ingestResponse struct {
	Collection       string `json:"collection"`
	Documents        int    `json:"documents"`
	Chunks           int    `json:"chunks"`
	Stored           int    `json:"stored"`
	NotStored        int    `json:"not_stored"`
	SkippedDocuments int    `json:"skipped_documents"`
	FirstID          uint64 `json:"first_id"`
}

// collectionsResponse is the JSON response for GET /api/collections.
type collectionsResponse struct {
	Collections []collectionInfo `json:"collections"`
}

type collectionInfo struct {
	Name       string `json:"name"`
	Dimensions int    `json:"dimensions"`
	Metric     string `json:"metric"`
	Points     uint64 `json:"points"`
}

// errorResponse is the JSON body of every non-2xx API response.
type errorResponse struct {
	// Error is a human-readable message.
	Error string `json:"error"`
	// Kind is the machine-readable error class from rag.Kind.
	Kind string `json:"kind"`
	// NotStored is set for partial ingestion failures.
	NotStored *int `json:"not_stored,omitempty"`
}

// Package vectorstore provides rag.VectorStore implementations: Qdrant over
// gRPC (the default), PostgreSQL with the pgvector extension, and an exact
// in-memory store for tests and local runs.
//
// A store is constructed once per process with [Open] and shared by every
// component that needs it.
//
// Environment variables read by [ConfigFromEnv]:
//
//	VECTOR_STORE    = qdrant | pgvector | memory  (default: qdrant)
//	QDRANT_HOST     = Qdrant hostname             (default: localhost)
//	QDRANT_PORT     = Qdrant gRPC port            (default: 6334)
//	QDRANT_API_KEY  = optional API key
//	QDRANT_TLS      = true to enable TLS
//	PGVECTOR_DSN    = postgres connection string (required for pgvector)
package vectorstore

import (
	"context"
	"fmt"
	"math"
	"os"
	"slices"
	"strconv"

	"github.com/54b3r/docrag/internal/rag"
)

// Backend names a vector store implementation.
type Backend string

const (
	// BackendQdrant stores vectors in a Qdrant instance.
	BackendQdrant Backend = "qdrant"
	// BackendPgVector stores vectors in PostgreSQL with pgvector.
	BackendPgVector Backend = "pgvector"
	// BackendMemory keeps vectors in process memory.
	BackendMemory Backend = "memory"
)

// Config selects and configures a backend.
type Config struct {
	Backend  Backend
	Qdrant   QdrantConfig
	PgVector PgVectorConfig
}

// Pinger is implemented by stores that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ConfigFromEnv builds a Config from environment variables.
func ConfigFromEnv() Config {
	port, _ := strconv.Atoi(os.Getenv("QDRANT_PORT"))
	backend := Backend(os.Getenv("VECTOR_STORE"))
	if backend == "" {
		backend = BackendQdrant
	}
	return Config{
		Backend: backend,
		Qdrant: QdrantConfig{
			Host:   os.Getenv("QDRANT_HOST"),
			Port:   port,
			APIKey: os.Getenv("QDRANT_API_KEY"),
			UseTLS: os.Getenv("QDRANT_TLS") == "true",
		},
		PgVector: PgVectorConfig{
			DSN: os.Getenv("PGVECTOR_DSN"),
		},
	}
}

// Open constructs the configured backend.
func Open(ctx context.Context, cfg Config) (rag.VectorStore, error) {
	switch cfg.Backend {
	case BackendQdrant, "":
		return NewQdrant(cfg.Qdrant)
	case BackendPgVector:
		return NewPgVector(ctx, cfg.PgVector)
	case BackendMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("vectorstore: %w: unknown backend %q (valid: qdrant, pgvector, memory)", rag.ErrConfiguration, cfg.Backend)
	}
}

func checkLimit(limit int) error {
	if limit <= 0 {
		return fmt.Errorf("vectorstore: %w: search limit must be >= 1, got %d", rag.ErrConfiguration, limit)
	}
	return nil
}

func checkShape(name string, dims int, metric rag.Metric) error {
	if name == "" {
		return fmt.Errorf("vectorstore: %w: collection name is required", rag.ErrConfiguration)
	}
	if dims <= 0 {
		return fmt.Errorf("vectorstore: %w: dimensionality must be > 0, got %d", rag.ErrConfiguration, dims)
	}
	if _, err := rag.ParseMetric(string(metric)); err != nil {
		return fmt.Errorf("vectorstore: %w", err)
	}
	return nil
}

// mismatch reports an existing collection whose shape differs from the request.
func mismatch(name string, have rag.CollectionInfo, dims int, metric rag.Metric) error {
	if have.Dimensions == dims && have.Metric == metric {
		return nil
	}
	return fmt.Errorf("vectorstore: %w: collection %q exists with %d dimensions (%s), requested %d (%s)",
		rag.ErrDimensionMismatch, name, have.Dimensions, have.Metric, dims, metric)
}

func notFound(name string) error {
	return fmt.Errorf("vectorstore: %w: %q", rag.ErrCollectionNotFound, name)
}

// searchOverfetch is how many points past limit a remote backend is asked
// for, so that equal scores at the cut-off are settled by ID and not by the
// server's internal order.
const searchOverfetch = 16

// fetchLimit is the number of points to request for a search of limit.
func fetchLimit(limit int) int {
	return limit + searchOverfetch
}

// topHits sorts hits with sortHits and keeps the best limit.
func topHits(hits rag.SearchResult, metric rag.Metric, limit int) rag.SearchResult {
	sortHits(hits, metric)
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

// sortHits orders hits best-first for metric, breaking ties by ascending ID.
func sortHits(hits rag.SearchResult, metric rag.Metric) {
	higher := metric.HigherIsCloser()
	slices.SortStableFunc(hits, func(a, b rag.Hit) int {
		if a.Score != b.Score {
			if (a.Score > b.Score) == higher {
				return -1
			}
			return 1
		}
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
}

// score computes the metric value between a query and a stored vector.
// Cosine of a zero vector is 0.
func score(metric rag.Metric, a, b []float32) float32 {
	switch metric {
	case rag.Euclidean:
		var sum float64
		for i := range a {
			d := float64(a[i]) - float64(b[i])
			sum += d * d
		}
		return float32(math.Sqrt(sum))
	case rag.Dot:
		var dot float64
		for i := range a {
			dot += float64(a[i]) * float64(b[i])
		}
		return float32(dot)
	default:
		var dot, na, nb float64
		for i := range a {
			dot += float64(a[i]) * float64(b[i])
			na += float64(a[i]) * float64(a[i])
			nb += float64(b[i]) * float64(b[i])
		}
		if na == 0 || nb == 0 {
			return 0
		}
		return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
	}
}

package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/54b3r/docrag/internal/rag"
)

// PgVectorConfig holds connection parameters for a PostgreSQL database with
// the pgvector extension available.
type PgVectorConfig struct {
	// DSN is a libpq-style connection string or postgres:// URL.
	DSN string
}

// PgVector implements rag.VectorStore on PostgreSQL. All collections share
// one points table keyed by (collection, id); the catalog table records each
// collection's dimensionality and metric.
type PgVector struct {
	pool *pgxpool.Pool
}

// migrations creates the schema. Every statement is idempotent.
var migrations = []string{
	`CREATE EXTENSION IF NOT EXISTS vector`,
	`CREATE TABLE IF NOT EXISTS docrag_collections (
		name       TEXT PRIMARY KEY,
		dims       INTEGER NOT NULL,
		metric     TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS docrag_points (
		collection TEXT NOT NULL REFERENCES docrag_collections(name),
		id         BIGINT NOT NULL,
		embedding  vector NOT NULL,
		payload    JSONB NOT NULL,
		PRIMARY KEY (collection, id)
	)`,
}

// NewPgVector connects, verifies the connection, and applies migrations.
func NewPgVector(ctx context.Context, cfg PgVectorConfig) (*PgVector, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("pgvector: %w: PGVECTOR_DSN is required", rag.ErrConfiguration)
	}
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("pgvector: %w: parse config: %w", rag.ErrConfiguration, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgvector: %w: ping: %w", rag.ErrConnection, err)
	}
	for _, m := range migrations {
		if _, err := pool.Exec(ctx, m); err != nil {
			pool.Close()
			return nil, fmt.Errorf("pgvector: migrate: %w", err)
		}
	}
	return &PgVector{pool: pool}, nil
}

// EnsureCollection registers name in the catalog if absent.
func (s *PgVector) EnsureCollection(ctx context.Context, name string, dims int, metric rag.Metric) error {
	if err := checkShape(name, dims, metric); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO docrag_collections (name, dims, metric) VALUES ($1, $2, $3)
		 ON CONFLICT (name) DO NOTHING`,
		name, dims, string(metric))
	if err != nil {
		return classifyPg("create collection", err)
	}
	info, err := s.describe(ctx, name)
	if err != nil {
		return err
	}
	return mismatch(name, info, dims, metric)
}

// Upsert writes the batch in one transaction, so it is all-or-nothing.
func (s *PgVector) Upsert(ctx context.Context, collection string, records []rag.VectorRecord) error {
	fail := func(err error) error {
		return &rag.UpsertError{Collection: collection, Attempted: len(records), Err: err}
	}

	info, err := s.describe(ctx, collection)
	if err != nil {
		return fail(err)
	}
	if err := rag.ValidateRecords(records, info.Dimensions); err != nil {
		return fail(fmt.Errorf("pgvector: %w", err))
	}
	if len(records) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, r := range records {
		if r.ID > math.MaxInt64 {
			return fail(fmt.Errorf("pgvector: %w: id %d exceeds BIGINT range", rag.ErrConfiguration, r.ID))
		}
		payload, err := json.Marshal(r.Payload)
		if err != nil {
			return fail(fmt.Errorf("pgvector: marshal payload for id %d: %w", r.ID, err))
		}
		batch.Queue(
			`INSERT INTO docrag_points (collection, id, embedding, payload)
			 VALUES ($1, $2, $3::vector, $4)
			 ON CONFLICT (collection, id) DO UPDATE SET
				embedding = EXCLUDED.embedding,
				payload   = EXCLUDED.payload`,
			collection, int64(r.ID), formatVector(r.Vector), payload)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fail(classifyPg("begin", err))
	}
	defer func() { _ = tx.Rollback(ctx) }()

	br := tx.SendBatch(ctx, batch)
	for range records {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fail(classifyPg("upsert", err))
		}
	}
	if err := br.Close(); err != nil {
		return fail(classifyPg("upsert", err))
	}
	if err := tx.Commit(ctx); err != nil {
		return fail(classifyPg("commit", err))
	}
	return nil
}

// Search orders by the collection's pgvector distance operator. Scores
// follow the Qdrant convention: cosine similarity, raw L2 distance, and
// inner product.
func (s *PgVector) Search(ctx context.Context, collection string, vector []float32, limit int) (rag.SearchResult, error) {
	if err := checkLimit(limit); err != nil {
		return nil, err
	}
	info, err := s.describe(ctx, collection)
	if err != nil {
		return nil, err
	}
	if len(vector) != info.Dimensions {
		return nil, fmt.Errorf("pgvector: %w: query has %d dimensions, collection %q has %d",
			rag.ErrDimensionMismatch, len(vector), collection, info.Dimensions)
	}

	op, scoreExpr := distanceSQL(info.Metric)
	q := fmt.Sprintf(
		`SELECT id, %s AS score, payload FROM docrag_points
		 WHERE collection = $1
		 ORDER BY embedding %s $2::vector, id
		 LIMIT $3`, scoreExpr, op)

	rows, err := s.pool.Query(ctx, q, collection, formatVector(vector), fetchLimit(limit))
	if err != nil {
		return nil, classifyPg("search", err)
	}
	defer rows.Close()

	var hits rag.SearchResult
	for rows.Next() {
		var (
			id      int64
			score   float64
			payload []byte
		)
		if err := rows.Scan(&id, &score, &payload); err != nil {
			return nil, fmt.Errorf("pgvector: scan row: %w", err)
		}
		h := rag.Hit{ID: uint64(id), Score: float32(score)}
		if err := json.Unmarshal(payload, &h.Payload); err != nil {
			return nil, fmt.Errorf("pgvector: decode payload for id %d: %w", id, err)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyPg("search", err)
	}
	return topHits(hits, info.Metric, limit), nil
}

// ListCollections returns catalog entries in lexicographic order.
func (s *PgVector) ListCollections(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT name FROM docrag_collections ORDER BY name`)
	if err != nil {
		return nil, classifyPg("list collections", err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, classifyPg("list collections", err)
	}
	return names, nil
}

// Collection returns the catalog entry for name and its point count.
func (s *PgVector) Collection(ctx context.Context, name string) (rag.CollectionInfo, error) {
	info, err := s.describe(ctx, name)
	if err != nil {
		return rag.CollectionInfo{}, err
	}
	var n int64
	if err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM docrag_points WHERE collection = $1`, name).Scan(&n); err != nil {
		return rag.CollectionInfo{}, classifyPg("count points", err)
	}
	info.Points = uint64(n)
	return info, nil
}

// Ping checks database reachability.
func (s *PgVector) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("pgvector: %w: %w", rag.ErrConnection, err)
	}
	return nil
}

// Close releases all pooled connections.
func (s *PgVector) Close() error {
	s.pool.Close()
	return nil
}

func (s *PgVector) describe(ctx context.Context, name string) (rag.CollectionInfo, error) {
	var (
		dims   int
		metric string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT dims, metric FROM docrag_collections WHERE name = $1`, name).Scan(&dims, &metric)
	if errors.Is(err, pgx.ErrNoRows) {
		return rag.CollectionInfo{}, notFound(name)
	}
	if err != nil {
		return rag.CollectionInfo{}, classifyPg("get collection", err)
	}
	m, err := rag.ParseMetric(metric)
	if err != nil {
		return rag.CollectionInfo{}, fmt.Errorf("pgvector: collection %q: %w", name, err)
	}
	return rag.CollectionInfo{Name: name, Dimensions: dims, Metric: m}, nil
}

// distanceSQL returns the ordering operator and score expression for m.
// pgvector's <#> yields the negated inner product.
func distanceSQL(m rag.Metric) (op, scoreExpr string) {
	switch m {
	case rag.Euclidean:
		return "<->", "embedding <-> $2::vector"
	case rag.Dot:
		return "<#>", "(embedding <#> $2::vector) * -1"
	default:
		return "<=>", "1 - (embedding <=> $2::vector)"
	}
}

// formatVector renders v in pgvector text form: "[0.1,0.2,0.3]".
func formatVector(v []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'g', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

// classifyPg marks connection-level failures; SQL errors pass through.
func classifyPg(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fmt.Errorf("pgvector: %s: %w", op, err)
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) || pgconn.Timeout(err) ||
		errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("pgvector: %s: %w: %w", op, rag.ErrConnection, err)
	}
	return fmt.Errorf("pgvector: %s: %w", op, err)
}

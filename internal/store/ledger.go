package store

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// IngestRun is one row of the ingestion ledger.
type IngestRun struct {
	Collection string
	// Refs are the document paths or URLs the run loaded.
	Refs      []string
	Documents int
	Chunks    int
	Stored    int
	NotStored int
	// Error is the failure message, empty on success.
	Error     string
	StartedAt time.Time
	Duration  time.Duration
}

// OK reports whether the run completed without error.
func (r IngestRun) OK() bool {
	return r.Error == ""
}

// RecordIngest appends run to the ledger.
func (s *SQLiteStore) RecordIngest(ctx context.Context, run IngestRun) error {
	const q = `
INSERT INTO ingest_runs (collection, refs, documents, chunks, stored, not_stored, error, started_at, duration_ms)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q,
		run.Collection, strings.Join(run.Refs, "\n"),
		run.Documents, run.Chunks, run.Stored, run.NotStored,
		run.Error, run.StartedAt.Unix(), run.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("store: record ingest: %w", err)
	}
	return nil
}

// IngestRuns returns up to limit runs, newest first. An empty collection
// returns runs for every collection.
func (s *SQLiteStore) IngestRuns(ctx context.Context, collection string, limit int) ([]IngestRun, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `
SELECT collection, refs, documents, chunks, stored, not_stored, error, started_at, duration_ms
FROM   ingest_runs
WHERE  ? = '' OR collection = ?
ORDER  BY started_at DESC, id DESC
LIMIT  ?`

	rows, err := s.db.QueryContext(ctx, q, collection, collection, limit)
	if err != nil {
		return nil, fmt.Errorf("store: ingest runs: %w", err)
	}
	defer rows.Close()

	var runs []IngestRun
	for rows.Next() {
		var (
			r          IngestRun
			refs       string
			started    int64
			durationMS int64
		)
		if err := rows.Scan(&r.Collection, &refs, &r.Documents, &r.Chunks, &r.Stored, &r.NotStored, &r.Error, &started, &durationMS); err != nil {
			return nil, fmt.Errorf("store: ingest runs scan: %w", err)
		}
		if refs != "" {
			r.Refs = strings.Split(refs, "\n")
		}
		r.StartedAt = time.Unix(started, 0)
		r.Duration = time.Duration(durationMS) * time.Millisecond
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: ingest runs rows: %w", err)
	}
	return runs, nil
}

// Package ingestion implements the document ingestion pipeline: chunk each
// loaded document, embed every chunk, and upsert the vectors into a
// collection. Nothing is written until every chunk has been embedded.
// This pipeline backs `docrag ingest` and POST /api/ingest.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/54b3r/docrag/internal/chunker"
	"github.com/54b3r/docrag/internal/logging"
	"github.com/54b3r/docrag/internal/rag"
	"github.com/54b3r/docrag/internal/store"
)

// DefaultBatchSize is the number of chunks per embed and upsert call.
const DefaultBatchSize = 64

// IDMode selects how point IDs are assigned.
type IDMode string

const (
	// IDAppend continues from the collection's current point count, so
	// successive runs add points instead of overwriting them.
	IDAppend IDMode = "append"
	// IDReplace numbers chunks from 0, overwriting earlier points with the
	// same IDs.
	IDReplace IDMode = "replace"
)

// ParseIDMode converts a flag or config value. Empty selects IDAppend.
func ParseIDMode(s string) (IDMode, error) {
	switch IDMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", IDAppend:
		return IDAppend, nil
	case IDReplace:
		return IDReplace, nil
	default:
		return "", fmt.Errorf("ingestion: %w: unknown id mode %q (valid: append, replace)", rag.ErrConfiguration, s)
	}
}

// Ledger records ingestion runs. *store.SQLiteStore implements it.
type Ledger interface {
	RecordIngest(ctx context.Context, run store.IngestRun) error
}

// Config holds the configuration for the ingestion pipeline.
type Config struct {
	// Collection is the target collection. Required.
	Collection string
	// Metric is used when the collection is created. Defaults to cosine.
	Metric rag.Metric
	// BatchSize defaults to DefaultBatchSize.
	BatchSize int
	// IDMode defaults to IDAppend.
	IDMode IDMode
	// Ledger is optional.
	Ledger Ledger
}

// Report summarises one Ingest call.
type Report struct {
	Collection string
	Documents  int
	Chunks     int
	Stored     int
	NotStored  int
	// SkippedDocuments counts documents that produced no chunks.
	SkippedDocuments int
	// FirstID is the ID assigned to the first stored chunk.
	FirstID uint64
}

// Pipeline orchestrates chunk → embed → upsert for a set of documents.
type Pipeline struct {
	embedder rag.Embedder
	store    rag.VectorStore
	splitter *chunker.Splitter
	cfg      Config
}

// NewPipeline constructs a Pipeline from the provided dependencies and config.
func NewPipeline(embedder rag.Embedder, store rag.VectorStore, splitter *chunker.Splitter, cfg *Config) (*Pipeline, error) {
	switch {
	case embedder == nil:
		return nil, fmt.Errorf("ingestion: %w: embedder must not be nil", rag.ErrConfiguration)
	case store == nil:
		return nil, fmt.Errorf("ingestion: %w: store must not be nil", rag.ErrConfiguration)
	case splitter == nil:
		return nil, fmt.Errorf("ingestion: %w: splitter must not be nil", rag.ErrConfiguration)
	case cfg == nil || cfg.Collection == "":
		return nil, fmt.Errorf("ingestion: %w: collection is required", rag.ErrConfiguration)
	}

	c := *cfg
	if c.Metric == "" {
		c.Metric = rag.Cosine
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.IDMode == "" {
		c.IDMode = IDAppend
	}
	if _, err := ParseIDMode(string(c.IDMode)); err != nil {
		return nil, err
	}

	return &Pipeline{embedder: embedder, store: store, splitter: splitter, cfg: c}, nil
}

// pending is one chunk awaiting storage.
type pending struct {
	chunk rag.Chunk
	ref   string
}

// Ingest chunks, embeds, and stores docs. progress may be nil. On an upsert
// failure the returned error is a *rag.UpsertError and the report carries the
// same counts.
func (p *Pipeline) Ingest(ctx context.Context, docs []rag.Document, progress func(msg string)) (*Report, error) {
	if progress == nil {
		progress = func(string) {}
	}
	started := time.Now()
	report := &Report{Collection: p.cfg.Collection, Documents: len(docs)}

	err := p.ingest(ctx, docs, report, progress)
	report.NotStored = report.Chunks - report.Stored
	p.record(ctx, docs, report, started, err)

	log := logging.FromContext(ctx)
	if err != nil {
		log.Error("ingestion: run failed",
			slog.String("collection", report.Collection),
			slog.Int("stored", report.Stored),
			slog.Int("not_stored", report.NotStored),
			slog.String("kind", rag.Kind(err)),
			slog.Any("error", err),
		)
		return report, err
	}
	log.Info("ingestion: run complete",
		slog.String("collection", report.Collection),
		slog.Int("documents", report.Documents),
		slog.Int("chunks", report.Chunks),
		slog.Int("stored", report.Stored),
		slog.Duration("duration", time.Since(started)),
	)
	return report, nil
}

func (p *Pipeline) ingest(ctx context.Context, docs []rag.Document, report *Report, progress func(string)) error {
	var work []pending
	for _, doc := range docs {
		chunks := p.splitter.Split(doc)
		if len(chunks) == 0 {
			report.SkippedDocuments++
			progress(fmt.Sprintf("skipped %s: no text", describe(doc)))
			continue
		}
		progress(fmt.Sprintf("chunked %s into %d chunks", describe(doc), len(chunks)))
		for _, c := range chunks {
			work = append(work, pending{chunk: c, ref: doc.Ref})
		}
	}
	report.Chunks = len(work)
	if len(work) == 0 {
		return nil
	}

	vectors, err := p.embedAll(ctx, work, progress)
	if err != nil {
		return err
	}

	if err := p.store.EnsureCollection(ctx, p.cfg.Collection, len(vectors[0]), p.cfg.Metric); err != nil {
		return fmt.Errorf("ingestion: ensure collection %q: %w", p.cfg.Collection, err)
	}

	firstID, err := p.firstID(ctx)
	if err != nil {
		return err
	}
	report.FirstID = firstID

	records := make([]rag.VectorRecord, len(work))
	for i, w := range work {
		records[i] = rag.VectorRecord{
			ID:      firstID + uint64(i),
			Vector:  vectors[i],
			Payload: rag.PayloadFromChunk(w.chunk, w.ref),
		}
	}
	return p.upsertAll(ctx, records, report, progress)
}

// embedAll embeds every chunk in BatchSize batches before anything is stored.
func (p *Pipeline) embedAll(ctx context.Context, work []pending, progress func(string)) ([][]float32, error) {
	vectors := make([][]float32, 0, len(work))
	for start := 0; start < len(work); start += p.cfg.BatchSize {
		end := min(start+p.cfg.BatchSize, len(work))
		texts := make([]string, 0, end-start)
		for _, w := range work[start:end] {
			texts = append(texts, w.chunk.Text)
		}
		batch, err := p.embedder.Embed(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("ingestion: embed chunks %d-%d: %w", start, end-1, err)
		}
		if len(batch) != len(texts) {
			return nil, fmt.Errorf("ingestion: %w: embedded %d of %d chunks", rag.ErrEmbeddingProvider, len(batch), len(texts))
		}
		if len(vectors) > 0 && len(batch) > 0 && len(batch[0]) != len(vectors[0]) {
			return nil, fmt.Errorf("ingestion: %w: embedding batches disagree on dimensions (%d vs %d)",
				rag.ErrEmbeddingProvider, len(batch[0]), len(vectors[0]))
		}
		vectors = append(vectors, batch...)
		progress(fmt.Sprintf("embedded %d/%d chunks", len(vectors), len(work)))
	}
	return vectors, nil
}

func (p *Pipeline) firstID(ctx context.Context) (uint64, error) {
	if p.cfg.IDMode == IDReplace {
		return 0, nil
	}
	info, err := p.store.Collection(ctx, p.cfg.Collection)
	if err != nil {
		return 0, fmt.Errorf("ingestion: describe collection %q: %w", p.cfg.Collection, err)
	}
	return info.Points, nil
}

// upsertAll writes records in batches. The context is checked before each
// batch so a cancelled run never sends another one.
func (p *Pipeline) upsertAll(ctx context.Context, records []rag.VectorRecord, report *Report, progress func(string)) error {
	fail := func(err error) error {
		var upErr *rag.UpsertError
		if errors.As(err, &upErr) {
			report.Stored += upErr.Stored
			err = upErr.Err
		}
		return &rag.UpsertError{
			Collection: p.cfg.Collection,
			Attempted:  len(records),
			Stored:     report.Stored,
			Err:        err,
		}
	}

	for start := 0; start < len(records); start += p.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}
		end := min(start+p.cfg.BatchSize, len(records))
		if err := p.store.Upsert(ctx, p.cfg.Collection, records[start:end]); err != nil {
			return fail(err)
		}
		report.Stored += end - start
		progress(fmt.Sprintf("stored %d/%d chunks in %s", report.Stored, len(records), p.cfg.Collection))
	}
	return nil
}

func (p *Pipeline) record(ctx context.Context, docs []rag.Document, report *Report, started time.Time, runErr error) {
	if p.cfg.Ledger == nil {
		return
	}
	refs := make([]string, 0, len(docs))
	for _, d := range docs {
		refs = append(refs, describe(d))
	}
	run := store.IngestRun{
		Collection: report.Collection,
		Refs:       refs,
		Documents:  report.Documents,
		Chunks:     report.Chunks,
		Stored:     report.Stored,
		NotStored:  report.NotStored,
		StartedAt:  started,
		Duration:   time.Since(started),
	}
	if runErr != nil {
		run.Error = runErr.Error()
	}
	// The run context may already be cancelled; the ledger write still happens.
	if err := p.cfg.Ledger.RecordIngest(context.WithoutCancel(ctx), run); err != nil {
		logging.FromContext(ctx).Warn("ingestion: failed to record run in ledger", slog.Any("error", err))
	}
}

func describe(d rag.Document) string {
	if d.Ref != "" {
		return d.Ref
	}
	return "<" + string(d.Origin) + ">"
}

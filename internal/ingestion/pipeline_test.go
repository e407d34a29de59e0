package ingestion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/docrag/internal/chunker"
	"github.com/54b3r/docrag/internal/rag"
	"github.com/54b3r/docrag/internal/store"
	"github.com/54b3r/docrag/internal/vectorstore"
)

// lenEmbedder embeds text as {len, 1, 0} and can fail on a given call.
type lenEmbedder struct {
	calls  atomic.Int32
	failOn int32
}

func (e *lenEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	n := e.calls.Add(1)
	if e.failOn > 0 && n == e.failOn {
		return nil, fmt.Errorf("fake: %w: %w", rag.ErrEmbeddingProvider, rag.ErrConnection)
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1, 0}
	}
	return out, nil
}

// flakyStore fails the n-th Upsert call and can cancel a context after the
// first successful one.
type flakyStore struct {
	*vectorstore.Memory
	upserts     atomic.Int32
	failOn      int32
	cancelAfter context.CancelFunc
}

func (s *flakyStore) Upsert(ctx context.Context, collection string, records []rag.VectorRecord) error {
	n := s.upserts.Add(1)
	if s.failOn > 0 && n == s.failOn {
		return &rag.UpsertError{Collection: collection, Attempted: len(records), Err: rag.ErrConnection}
	}
	if err := s.Memory.Upsert(ctx, collection, records); err != nil {
		return err
	}
	if s.cancelAfter != nil {
		s.cancelAfter()
	}
	return nil
}

func newSplitter(t *testing.T) *chunker.Splitter {
	t.Helper()
	s, err := chunker.New(chunker.Config{Size: 20, Overlap: 0, Separator: " "})
	require.NoError(t, err)
	return s
}

func docs() []rag.Document {
	return []rag.Document{
		{Text: "alpha beta gamma delta epsilon zeta eta theta", Origin: rag.OriginText, Ref: "greek.txt"},
		{Text: "", Origin: rag.OriginWeb, Ref: "https://empty.example"},
		{Text: "one two three four five six", Origin: rag.OriginPDF, Ref: "numbers.pdf"},
	}
}

func TestIngest_StoresEveryChunk(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mem := vectorstore.NewMemory()
	p, err := NewPipeline(&lenEmbedder{}, mem, newSplitter(t), &Config{Collection: "handbook", BatchSize: 2})
	require.NoError(t, err)

	var progress []string
	report, err := p.Ingest(ctx, docs(), func(m string) { progress = append(progress, m) })
	require.NoError(t, err)

	assert.Equal(t, 3, report.Documents)
	assert.Equal(t, 1, report.SkippedDocuments)
	assert.Positive(t, report.Chunks)
	assert.Equal(t, report.Chunks, report.Stored)
	assert.Zero(t, report.NotStored)

	info, err := mem.Collection(ctx, "handbook")
	require.NoError(t, err)
	assert.EqualValues(t, report.Chunks, info.Points)
	assert.Equal(t, 3, info.Dimensions)
	assert.Equal(t, rag.Cosine, info.Metric)

	hits, err := mem.Search(ctx, "handbook", []float32{5, 1, 0}, report.Chunks)
	require.NoError(t, err)
	sources := map[string]bool{}
	for _, h := range hits {
		require.NoError(t, h.Payload.Validate())
		sources[h.Payload.Meta.Source] = true
		assert.Equal(t, len([]rune(h.Payload.Text)), h.Payload.Meta.Length)
	}
	assert.Equal(t, map[string]bool{"text": true, "pdf": true}, sources)
	assert.True(t, strings.Contains(strings.Join(progress, "\n"), "skipped https://empty.example"))
}

func TestIngest_IDModes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	doc := []rag.Document{{Text: "alpha beta gamma delta epsilon", Origin: rag.OriginText}}

	mem := vectorstore.NewMemory()
	appendP, err := NewPipeline(&lenEmbedder{}, mem, newSplitter(t), &Config{Collection: "c"})
	require.NoError(t, err)

	first, err := appendP.Ingest(ctx, doc, nil)
	require.NoError(t, err)
	second, err := appendP.Ingest(ctx, doc, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 0, first.FirstID)
	assert.EqualValues(t, first.Chunks, second.FirstID)

	info, _ := mem.Collection(ctx, "c")
	assert.EqualValues(t, first.Chunks*2, info.Points, "append mode adds points")

	replaceP, err := NewPipeline(&lenEmbedder{}, mem, newSplitter(t), &Config{Collection: "c", IDMode: IDReplace})
	require.NoError(t, err)
	third, err := replaceP.Ingest(ctx, doc, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 0, third.FirstID)

	info, _ = mem.Collection(ctx, "c")
	assert.EqualValues(t, first.Chunks*2, info.Points, "replace mode overwrites by id")
}

func TestIngest_EmbeddingFailureWritesNothing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := &flakyStore{Memory: vectorstore.NewMemory()}
	p, err := NewPipeline(&lenEmbedder{failOn: 2}, st, newSplitter(t), &Config{Collection: "c", BatchSize: 1})
	require.NoError(t, err)

	report, err := p.Ingest(ctx, docs(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, rag.ErrEmbeddingProvider)
	assert.Zero(t, st.upserts.Load())
	assert.Zero(t, report.Stored)
	assert.Equal(t, report.Chunks, report.NotStored)

	names, _ := st.ListCollections(ctx)
	assert.Empty(t, names, "collection must not be created before embedding succeeds")
}

func TestIngest_UpsertFailureReportsCounts(t *testing.T) {
	t.Parallel()
	st := &flakyStore{Memory: vectorstore.NewMemory(), failOn: 2}
	p, err := NewPipeline(&lenEmbedder{}, st, newSplitter(t), &Config{Collection: "c", BatchSize: 2})
	require.NoError(t, err)

	report, err := p.Ingest(context.Background(), docs(), nil)
	require.Error(t, err)

	var upErr *rag.UpsertError
	require.True(t, errors.As(err, &upErr))
	assert.ErrorIs(t, err, rag.ErrConnection)
	assert.Equal(t, 2, upErr.Stored, "first batch of two was stored")
	assert.Equal(t, report.Chunks, upErr.Attempted)
	assert.Equal(t, report.Chunks-2, upErr.NotStored())
	assert.Equal(t, upErr.NotStored(), report.NotStored)
}

func TestIngest_CancelledContextStopsBatches(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	st := &flakyStore{Memory: vectorstore.NewMemory(), cancelAfter: cancel}
	p, err := NewPipeline(&lenEmbedder{}, st, newSplitter(t), &Config{Collection: "c", BatchSize: 1})
	require.NoError(t, err)

	report, err := p.Ingest(ctx, docs(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.EqualValues(t, 1, st.upserts.Load(), "no batch is sent after cancellation")
	assert.Equal(t, 1, report.Stored)
}

func TestIngest_RecordsLedger(t *testing.T) {
	t.Parallel()
	ledger, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ledger.Close() })

	st := &flakyStore{Memory: vectorstore.NewMemory(), failOn: 1}
	p, err := NewPipeline(&lenEmbedder{}, st, newSplitter(t), &Config{Collection: "c", Ledger: ledger})
	require.NoError(t, err)
	_, err = p.Ingest(context.Background(), docs(), nil)
	require.Error(t, err)

	runs, err := ledger.IngestRuns(context.Background(), "c", 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.False(t, runs[0].OK())
	assert.Equal(t, []string{"greek.txt", "https://empty.example", "numbers.pdf"}, runs[0].Refs)
	assert.Equal(t, runs[0].Chunks, runs[0].NotStored)
}

func TestIngest_DimensionMismatchWithExistingCollection(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mem := vectorstore.NewMemory()
	require.NoError(t, mem.EnsureCollection(ctx, "c", 768, rag.Cosine))

	p, err := NewPipeline(&lenEmbedder{}, mem, newSplitter(t), &Config{Collection: "c"})
	require.NoError(t, err)
	_, err = p.Ingest(ctx, docs(), nil)
	assert.ErrorIs(t, err, rag.ErrDimensionMismatch)
}

func TestNewPipeline_Validation(t *testing.T) {
	t.Parallel()
	mem := vectorstore.NewMemory()
	sp := newSplitter(t)

	_, err := NewPipeline(nil, mem, sp, &Config{Collection: "c"})
	assert.ErrorIs(t, err, rag.ErrConfiguration)
	_, err = NewPipeline(&lenEmbedder{}, mem, sp, &Config{})
	assert.ErrorIs(t, err, rag.ErrConfiguration)
	_, err = NewPipeline(&lenEmbedder{}, mem, sp, &Config{Collection: "c", IDMode: "dedupe"})
	assert.ErrorIs(t, err, rag.ErrConfiguration)
}

func TestParseIDMode(t *testing.T) {
	t.Parallel()
	for in, want := range map[string]IDMode{"": IDAppend, "append": IDAppend, " Replace ": IDReplace} {
		got, err := ParseIDMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseIDMode("upsert")
	assert.ErrorIs(t, err, rag.ErrConfiguration)
}

// Package rag defines the core domain types and interfaces for the
// retrieval-augmented generation pipeline. Concrete implementations live in
// sibling packages (embedder, vectorstore, provider) so that the query and
// ingestion paths depend only on these contracts.
package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"
)

// Origin tags where a Document's text came from.
type Origin string

const (
	// OriginPDF marks text extracted from a PDF file.
	OriginPDF Origin = "pdf"
	// OriginWeb marks text extracted from an HTML page.
	OriginWeb Origin = "web"
	// OriginText marks text read verbatim from a plain file or request body.
	OriginText Origin = "text"
)

// Document is raw text plus its origin. It is produced by a source loader and
// consumed once by the chunker.
type Document struct {
	// Text is the full extracted text.
	Text string
	// Origin is the origin tag (pdf, web, text).
	Origin Origin
	// Ref is the path or URL the text was loaded from.
	Ref string
}

// Chunk is a contiguous substring of a Document's text.
type Chunk struct {
	// Text is the chunk content.
	Text string
	// Index is the ordinal position within the source document, starting at 0.
	Index int
	// Source is the origin tag of the parent document.
	Source Origin
	// Length is the character (rune) count of Text.
	Length int
	// Start and End are byte offsets of Text within the document.
	Start, End int
}

// Metric is the distance function a collection is configured with.
type Metric string

const (
	// Cosine ranks by cosine similarity, higher is closer.
	Cosine Metric = "cosine"
	// Euclidean ranks by L2 distance, lower is closer.
	Euclidean Metric = "euclidean"
	// Dot ranks by inner product, higher is closer.
	Dot Metric = "dot"
)

// ParseMetric converts a config string to a Metric. An empty string selects Cosine.
func ParseMetric(s string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "cosine":
		return Cosine, nil
	case "euclidean", "euclid", "l2":
		return Euclidean, nil
	case "dot", "ip":
		return Dot, nil
	default:
		return "", fmt.Errorf("%w: unknown metric %q (valid: cosine, euclidean, dot)", ErrConfiguration, s)
	}
}

// HigherIsCloser reports whether larger scores mean nearer vectors.
func (m Metric) HigherIsCloser() bool {
	return m != Euclidean
}

// VectorRecord is one (id, vector, payload) triple stored in a collection.
type VectorRecord struct {
	// ID is unique within a collection; re-upserting replaces the prior record.
	ID uint64
	// Vector is the embedding of Payload.Text.
	Vector []float32
	// Payload holds the retrievable text and its metadata.
	Payload Payload
}

// Hit is a single ranked search match.
type Hit struct {
	ID      uint64
	Score   float32
	Payload Payload
}

// SearchResult is ranked best-first and never longer than the requested limit.
type SearchResult []Hit

// Context joins the payload text of every hit with newlines, in ranked order.
func (r SearchResult) Context() string {
	texts := make([]string, len(r))
	for i, h := range r {
		texts[i] = h.Payload.Text
	}
	return strings.Join(texts, "\n")
}

// CollectionInfo describes an existing collection.
type CollectionInfo struct {
	Name       string
	Dimensions int
	Metric     Metric
	Points     uint64
}

// Embedder converts text into dense vector embeddings.
type Embedder interface {
	// Embed converts a batch of texts into embeddings. The returned slice is
	// parallel to texts and every vector shares one dimensionality.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbedOne embeds a single text through e.
func EmbedOne(ctx context.Context, e Embedder, text string) ([]float32, error) {
	vecs, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("%w: expected 1 embedding, got %d", ErrEmbeddingProvider, len(vecs))
	}
	return vecs[0], nil
}

// VectorStore persists vector records in named collections and answers
// k-nearest-neighbour queries against them.
type VectorStore interface {
	// EnsureCollection creates the collection if it is absent. An existing
	// collection with the same shape is left untouched; one with a different
	// dimensionality or metric yields ErrDimensionMismatch.
	EnsureCollection(ctx context.Context, name string, dims int, metric Metric) error

	// Upsert inserts or replaces records by ID. Failures are reported as
	// *UpsertError carrying the number of records confirmed stored.
	Upsert(ctx context.Context, collection string, records []VectorRecord) error

	// Search returns at most limit nearest records, best first, ties broken by
	// ascending ID. limit must be at least 1.
	Search(ctx context.Context, collection string, vector []float32, limit int) (SearchResult, error)

	// ListCollections returns the names of all collections.
	ListCollections(ctx context.Context) ([]string, error)

	// Collection returns the shape and size of a collection.
	Collection(ctx context.Context, name string) (CollectionInfo, error)

	// Close releases connections held by the store.
	Close() error
}

// Completer is an opaque text-generation service: messages in, text out.
type Completer interface {
	Complete(ctx context.Context, messages []*schema.Message) (string, error)
}

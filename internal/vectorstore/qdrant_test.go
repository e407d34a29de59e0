package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/54b3r/docrag/internal/rag"
)

func TestQdrantPayloadRoundTrip(t *testing.T) {
	t.Parallel()
	want := rag.Payload{
		Text: "A cat sat on a mat",
		Meta: rag.Meta{Source: "pdf", ChunkIndex: 3, Length: 18, Ref: "docs/cats.pdf"},
	}
	got := fromPayloadMap(qdrant.NewValueMap(toPayloadMap(want)))
	assert.Equal(t, want, got)
}

func TestQdrantPayloadDoubleIndex(t *testing.T) {
	t.Parallel()
	m := qdrant.NewValueMap(map[string]any{
		"text": "x",
		"meta": map[string]any{"source": "web", "chunk_index": 2.0, "length": 1.0},
	})
	got := fromPayloadMap(m)
	assert.Equal(t, 2, got.Meta.ChunkIndex)
	assert.Equal(t, 1, got.Meta.Length)
}

func TestQdrantDistanceMapping(t *testing.T) {
	t.Parallel()
	for _, m := range []rag.Metric{rag.Cosine, rag.Euclidean, rag.Dot} {
		assert.Equal(t, m, fromDistance(toDistance(m)), "metric %s", m)
	}
}

func TestQdrantClassify(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		err  error
		want error
	}{
		{"not found", status.Error(codes.NotFound, "Collection `x` doesn't exist!"), rag.ErrCollectionNotFound},
		{"unavailable", status.Error(codes.Unavailable, "connection refused"), rag.ErrConnection},
		{"deadline", fmt.Errorf("wrapped: %w", context.DeadlineExceeded), rag.ErrConnection},
		{"invalid argument", status.Error(codes.InvalidArgument, "bad vector"), rag.ErrConfiguration},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.ErrorIs(t, classify("op", "x", tc.err), tc.want)
		})
	}

	other := classify("op", "x", errors.New("boom"))
	assert.NotErrorIs(t, other, rag.ErrConnection)
	assert.NotErrorIs(t, other, rag.ErrCollectionNotFound)
}

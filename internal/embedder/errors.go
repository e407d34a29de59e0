package embedder

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/54b3r/docrag/internal/rag"
)

// providerError wraps err as an embedding provider failure. Transport-level
// failures (timeouts, refused connections, cancellation) also carry
// rag.ErrConnection so callers can decide to retry.
func providerError(backend, op string, err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s embedder: %s: %w: %w: %w", backend, op, rag.ErrEmbeddingProvider, rag.ErrConnection, err)
	}
	return fmt.Errorf("%s embedder: %s: %w: %w", backend, op, rag.ErrEmbeddingProvider, err)
}

// checkVectors enforces one non-empty vector per input, all of one length.
func checkVectors(backend string, want int, vecs [][]float32) error {
	if len(vecs) != want {
		return fmt.Errorf("%s embedder: %w: expected %d embeddings, got %d", backend, rag.ErrEmbeddingProvider, want, len(vecs))
	}
	for i, v := range vecs {
		if len(v) == 0 {
			return fmt.Errorf("%s embedder: %w: embedding %d is empty", backend, rag.ErrEmbeddingProvider, i)
		}
		if len(v) != len(vecs[0]) {
			return fmt.Errorf("%s embedder: %w: embedding %d has %d dimensions, embedding 0 has %d",
				backend, rag.ErrEmbeddingProvider, i, len(v), len(vecs[0]))
		}
	}
	return nil
}

package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/54b3r/docrag/internal/logging"
	"github.com/54b3r/docrag/internal/rag"
)

// SelectFallback picks the collection to search when requested is missing:
// the lexicographically smallest other name. ok is false when there is none.
func SelectFallback(requested string, available []string) (string, bool) {
	var candidates []string
	for _, name := range available {
		if name != requested && name != "" {
			candidates = append(candidates, name)
		}
	}
	if len(candidates) == 0 {
		return "", false
	}
	return slices.Min(candidates), true
}

// searchWithFallback searches collection, and on ErrCollectionNotFound retries
// once against SelectFallback's choice. It returns the collection actually
// searched.
func (s *Service) searchWithFallback(ctx context.Context, collection string, vector []float32, k int) (string, rag.SearchResult, error) {
	hits, err := s.store.Search(ctx, collection, vector, k)
	if err == nil {
		return collection, hits, nil
	}
	if !errors.Is(err, rag.ErrCollectionNotFound) {
		return "", nil, fmt.Errorf("query: search %q: %w", collection, err)
	}

	names, lerr := s.store.ListCollections(ctx)
	if lerr != nil {
		return "", nil, fmt.Errorf("query: list collections: %w", lerr)
	}
	fallback, ok := SelectFallback(collection, names)
	if !ok {
		return "", nil, fmt.Errorf("query: collection %q: %w", collection, rag.ErrNoDataAvailable)
	}

	logging.FromContext(ctx).Warn("query: collection not found, using fallback",
		slog.String("requested", collection),
		slog.String("fallback", fallback),
	)

	hits, err = s.store.Search(ctx, fallback, vector, k)
	if err != nil {
		return "", nil, fmt.Errorf("query: search fallback %q: %w", fallback, err)
	}
	return fallback, hits, nil
}

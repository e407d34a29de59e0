package vectorstore

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/54b3r/docrag/internal/rag"
)

// Memory is an exact, in-process rag.VectorStore. It is safe for concurrent use.
type Memory struct {
	mu          sync.RWMutex
	collections map[string]*memCollection
}

type memCollection struct {
	dims   int
	metric rag.Metric
	points map[uint64]rag.VectorRecord
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{collections: make(map[string]*memCollection)}
}

// EnsureCollection creates name if absent.
func (m *Memory) EnsureCollection(_ context.Context, name string, dims int, metric rag.Metric) error {
	if err := checkShape(name, dims, metric); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.collections[name]; ok {
		return mismatch(name, rag.CollectionInfo{Dimensions: c.dims, Metric: c.metric}, dims, metric)
	}
	m.collections[name] = &memCollection{
		dims:   dims,
		metric: metric,
		points: make(map[uint64]rag.VectorRecord),
	}
	return nil
}

// Upsert validates the whole batch before writing any record.
func (m *Memory) Upsert(_ context.Context, collection string, records []rag.VectorRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.collections[collection]
	if !ok {
		return &rag.UpsertError{Collection: collection, Attempted: len(records), Err: notFound(collection)}
	}
	if err := rag.ValidateRecords(records, c.dims); err != nil {
		return &rag.UpsertError{Collection: collection, Attempted: len(records), Err: fmt.Errorf("vectorstore: %w", err)}
	}
	for _, r := range records {
		r.Vector = slices.Clone(r.Vector)
		c.points[r.ID] = r
	}
	return nil
}

// Search scores every point in the collection.
func (m *Memory) Search(_ context.Context, collection string, vector []float32, limit int) (rag.SearchResult, error) {
	if err := checkLimit(limit); err != nil {
		return nil, err
	}
	m.mu.RLock()
	c, ok := m.collections[collection]
	if !ok {
		m.mu.RUnlock()
		return nil, notFound(collection)
	}
	if len(vector) != c.dims {
		m.mu.RUnlock()
		return nil, fmt.Errorf("vectorstore: %w: query has %d dimensions, collection %q has %d",
			rag.ErrDimensionMismatch, len(vector), collection, c.dims)
	}
	hits := make(rag.SearchResult, 0, len(c.points))
	for id, r := range c.points {
		hits = append(hits, rag.Hit{ID: id, Score: score(c.metric, vector, r.Vector), Payload: r.Payload})
	}
	metric := c.metric
	m.mu.RUnlock()

	sortHits(hits, metric)
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// ListCollections returns collection names in lexicographic order.
func (m *Memory) ListCollections(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.collections))
	for name := range m.collections {
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

// Collection returns the shape and point count of name.
func (m *Memory) Collection(_ context.Context, name string) (rag.CollectionInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.collections[name]
	if !ok {
		return rag.CollectionInfo{}, notFound(name)
	}
	return rag.CollectionInfo{
		Name:       name,
		Dimensions: c.dims,
		Metric:     c.metric,
		Points:     uint64(len(c.points)),
	}, nil
}

// Ping always succeeds.
func (m *Memory) Ping(context.Context) error { return nil }

// Close is a no-op.
func (m *Memory) Close() error { return nil }

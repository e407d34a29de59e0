package ingestion

import (
	"context"
	"fmt"

	"github.com/54b3r/docrag/internal/chunker"
	"github.com/54b3r/docrag/internal/rag"
)

// Loader turns references (paths, URLs) into documents.
// *source.Loader implements it.
type Loader interface {
	LoadAll(ctx context.Context, refs []string) ([]rag.Document, error)
}

// Service loads references and runs them through a Pipeline for any
// collection. It backs POST /api/ingest, where the collection arrives per
// request.
type Service struct {
	loader   Loader
	embedder rag.Embedder
	store    rag.VectorStore
	splitter *chunker.Splitter
	base     Config
}

// NewService validates its dependencies. cfg.Collection is the default
// collection for requests that name none.
func NewService(loader Loader, embedder rag.Embedder, store rag.VectorStore, splitter *chunker.Splitter, cfg *Config) (*Service, error) {
	if loader == nil {
		return nil, fmt.Errorf("ingestion: %w: loader must not be nil", rag.ErrConfiguration)
	}
	if _, err := NewPipeline(embedder, store, splitter, cfg); err != nil {
		return nil, err
	}
	return &Service{loader: loader, embedder: embedder, store: store, splitter: splitter, base: *cfg}, nil
}

// IngestRefs loads refs in order and ingests them into collection (or the
// default). A load failure aborts before anything is embedded.
func (s *Service) IngestRefs(ctx context.Context, collection string, refs []string, progress func(string)) (*Report, error) {
	if len(refs) == 0 {
		return nil, fmt.Errorf("ingestion: %w: at least one reference is required", rag.ErrConfiguration)
	}
	cfg := s.base
	if collection != "" {
		cfg.Collection = collection
	}
	p, err := NewPipeline(s.embedder, s.store, s.splitter, &cfg)
	if err != nil {
		return nil, err
	}

	docs, err := s.loader.LoadAll(ctx, refs)
	if err != nil {
		return nil, fmt.Errorf("ingestion: load documents: %w", err)
	}
	return p.Ingest(ctx, docs, progress)
}

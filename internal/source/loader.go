// Package source loads raw document text for ingestion from PDF files, web
// pages, and plain-text files. Every loader returns a rag.Document tagged with
// its origin; an empty reference yields an empty document rather than an error.
package source

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/54b3r/docrag/internal/logging"
	"github.com/54b3r/docrag/internal/rag"
)

const (
	defaultHTTPTimeout = 30 * time.Second
	defaultUserAgent   = "docrag/1.0 (document ingestion)"
	// defaultMaxBytes caps a single fetched page or text file.
	defaultMaxBytes = 32 << 20
)

// Config tunes a Loader. Zero values select defaults.
type Config struct {
	// HTTPTimeout bounds each web fetch. Defaults to 30s.
	HTTPTimeout time.Duration
	// UserAgent is sent with web fetches.
	UserAgent string
	// MaxBytes caps the size of a fetched page or text file. Defaults to 32 MiB.
	MaxBytes int64
	// HTTPClient overrides the client built from HTTPTimeout.
	HTTPClient *http.Client
}

// Loader reads documents from paths and URLs. It is safe for concurrent use.
type Loader struct {
	cfg        Config
	httpClient *http.Client
}

// NewLoader returns a Loader for cfg. cfg may be nil.
func NewLoader(cfg *Config) *Loader {
	c := Config{}
	if cfg != nil {
		c = *cfg
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = defaultHTTPTimeout
	}
	if c.UserAgent == "" {
		c.UserAgent = defaultUserAgent
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = defaultMaxBytes
	}
	client := c.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: c.HTTPTimeout}
	}
	return &Loader{cfg: c, httpClient: client}
}

// Load dispatches on InferOrigin(ref).
func (l *Loader) Load(ctx context.Context, ref string) (rag.Document, error) {
	switch InferOrigin(ref) {
	case rag.OriginWeb:
		return l.LoadWeb(ctx, ref)
	case rag.OriginPDF:
		return l.LoadPDF(ctx, ref)
	default:
		return l.LoadText(ctx, ref)
	}
}

// LoadAll loads refs in order and stops at the first failure.
func (l *Loader) LoadAll(ctx context.Context, refs []string) ([]rag.Document, error) {
	docs := make([]rag.Document, 0, len(refs))
	for _, ref := range refs {
		doc, err := l.Load(ctx, ref)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// LoadText reads path verbatim.
func (l *Loader) LoadText(ctx context.Context, path string) (rag.Document, error) {
	doc := rag.Document{Origin: rag.OriginText, Ref: path}
	if path == "" {
		logging.FromContext(ctx).Warn("source: no text path provided")
		return doc, nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return doc, fileError(path, err)
	}
	if info.Size() > l.cfg.MaxBytes {
		return doc, fmt.Errorf("source: %w: %s is %d bytes, limit is %d", rag.ErrConfiguration, path, info.Size(), l.cfg.MaxBytes)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return doc, fileError(path, err)
	}
	doc.Text = string(b)
	logging.FromContext(ctx).Debug("source: loaded text", slog.String("path", path), slog.Int("bytes", len(b)))
	return doc, nil
}

// fileError marks missing or unreadable files as configuration errors.
func fileError(path string, err error) error {
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
		return fmt.Errorf("source: %w: %s: %w", rag.ErrConfiguration, path, err)
	}
	return fmt.Errorf("source: read %s: %w", path, err)
}

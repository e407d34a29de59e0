package source

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/54b3r/docrag/internal/logging"
	"github.com/54b3r/docrag/internal/rag"
)

// LoadPDF extracts the plain text of every page of path, joined by newlines.
// Pages without a content stream are skipped.
func (l *Loader) LoadPDF(ctx context.Context, path string) (rag.Document, error) {
	doc := rag.Document{Origin: rag.OriginPDF, Ref: path}
	if path == "" {
		logging.FromContext(ctx).Warn("source: no PDF path provided")
		return doc, nil
	}
	if _, err := os.Stat(path); err != nil {
		return doc, fileError(path, err)
	}

	f, r, err := pdf.Open(path)
	if err != nil {
		if f != nil {
			_ = f.Close()
		}
		return doc, fmt.Errorf("source: %w: open pdf %s: %w", rag.ErrConfiguration, path, err)
	}
	defer f.Close()

	n := r.NumPage()
	pages := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return doc, err
		}
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return doc, fmt.Errorf("source: pdf %s page %d: %w", path, i, err)
		}
		pages = append(pages, text)
	}
	doc.Text = strings.Join(pages, "\n")

	logging.FromContext(ctx).Debug("source: loaded pdf",
		slog.String("path", path),
		slog.Int("pages", n),
		slog.Int("chars", len(doc.Text)),
	)
	return doc, nil
}

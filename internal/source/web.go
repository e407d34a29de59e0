package source

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/net/html"

	"github.com/54b3r/docrag/internal/logging"
	"github.com/54b3r/docrag/internal/rag"
)

// LoadWeb fetches rawURL and reduces the page to its visible text. Non-HTML
// responses are returned verbatim.
func (l *Loader) LoadWeb(ctx context.Context, rawURL string) (rag.Document, error) {
	doc := rag.Document{Origin: rag.OriginWeb, Ref: rawURL}
	if rawURL == "" {
		logging.FromContext(ctx).Warn("source: no web URL provided")
		return doc, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return doc, fmt.Errorf("source: %w: invalid URL %q: %w", rag.ErrConfiguration, rawURL, err)
	}
	req.Header.Set("User-Agent", l.cfg.UserAgent)
	req.Header.Set("Accept", "text/html, text/plain")

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return doc, fmt.Errorf("source: fetch %s: %w: %w", rawURL, rag.ErrConnection, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return doc, fmt.Errorf("source: fetch %s: %w: status %d", rawURL, rag.ErrConnection, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return doc, fmt.Errorf("source: fetch %s: %w: status %d", rawURL, rag.ErrConfiguration, resp.StatusCode)
	}

	body, err := readCapped(resp.Body, l.cfg.MaxBytes)
	if err != nil {
		return doc, fmt.Errorf("source: read %s: %w", rawURL, err)
	}
	if !strings.Contains(strings.ToLower(resp.Header.Get("Content-Type")), "html") {
		doc.Text = string(body)
		return doc, nil
	}

	text, err := htmlText(bytes.NewReader(body))
	if err != nil {
		return doc, fmt.Errorf("source: parse %s: %w", rawURL, err)
	}
	doc.Text = text
	logging.FromContext(ctx).Debug("source: loaded web page",
		slog.String("url", rawURL),
		slog.Int("chars", len(text)),
	)
	return doc, nil
}

// readCapped reads at most limit bytes from r. A longer body is rejected
// rather than truncated.
func readCapped(r io.Reader, limit int64) ([]byte, error) {
	b, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", rag.ErrConnection, err)
	}
	if int64(len(b)) > limit {
		return nil, fmt.Errorf("%w: body exceeds the %d byte limit", rag.ErrConfiguration, limit)
	}
	return b, nil
}

// skipElements never contribute visible text.
var skipElements = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
	"head":     true,
}

// blockElements end a line of text.
var blockElements = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"section": true, "article": true, "header": true, "footer": true,
	"pre": true, "blockquote": true, "table": true, "ul": true, "ol": true,
}

// htmlText extracts visible text from an HTML document. Text within a block
// is joined by single spaces; blocks are separated by newlines; blank lines
// are dropped.
func htmlText(r io.Reader) (string, error) {
	root, err := html.Parse(r)
	if err != nil {
		return "", err
	}

	var lines []string
	var cur []string
	flush := func() {
		if len(cur) > 0 {
			lines = append(lines, strings.Join(cur, " "))
			cur = cur[:0]
		}
	}

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.ElementNode:
			if skipElements[n.Data] {
				return
			}
		case html.TextNode:
			if words := strings.Fields(n.Data); len(words) > 0 {
				cur = append(cur, strings.Join(words, " "))
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blockElements[n.Data] {
			flush()
		}
	}
	walk(root)
	flush()
	return strings.Join(lines, "\n"), nil
}

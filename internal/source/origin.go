package source

import (
	"net/url"
	"path"
	"strings"

	"github.com/54b3r/docrag/internal/rag"
)

// InferOrigin classifies ref by its shape: http(s) URLs are web pages, refs
// whose path ends in .pdf are PDFs, everything else is plain text. A URL
// pointing at a .pdf is still fetched as web.
func InferOrigin(ref string) rag.Origin {
	if u, err := url.Parse(ref); err == nil {
		switch strings.ToLower(u.Scheme) {
		case "http", "https":
			return rag.OriginWeb
		}
	}
	if strings.EqualFold(path.Ext(ref), ".pdf") {
		return rag.OriginPDF
	}
	return rag.OriginText
}

package source

import (
	"fmt"
	"net"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/54b3r/docrag/internal/rag"
)

// RefPolicy restricts the refs an untrusted caller may ask the server to
// load. The zero value allows public http(s) URLs only.
type RefPolicy struct {
	// Root is the directory local refs must resolve inside. Relative refs are
	// joined to it. Empty rejects every local ref.
	Root string
	// AllowPrivateHosts permits URLs whose host is localhost or a loopback,
	// private, link-local or unspecified IP literal.
	AllowPrivateHosts bool
}

// Check validates ref and returns the form to load: URLs unchanged, local
// paths resolved to an absolute path inside Root. Violations wrap
// rag.ErrConfiguration.
//
// Host names are not resolved, so a public name pointing at a private
// address is not caught here.
func (p RefPolicy) Check(ref string) (string, error) {
	if InferOrigin(ref) == rag.OriginWeb {
		if err := p.checkURL(ref); err != nil {
			return "", err
		}
		return ref, nil
	}
	return p.checkPath(ref)
}

func (p RefPolicy) checkURL(ref string) error {
	if p.AllowPrivateHosts {
		return nil
	}
	u, err := url.Parse(ref)
	if err != nil {
		return fmt.Errorf("source: %w: invalid URL %q: %w", rag.ErrConfiguration, ref, err)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return fmt.Errorf("source: %w: URL %q has no host", rag.ErrConfiguration, ref)
	}
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return fmt.Errorf("source: %w: URL host %q is not allowed", rag.ErrConfiguration, host)
	}
	if ip := net.ParseIP(host); ip != nil {
		if ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
			ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
			return fmt.Errorf("source: %w: URL host %s is a non-public address", rag.ErrConfiguration, host)
		}
	}
	return nil
}

func (p RefPolicy) checkPath(ref string) (string, error) {
	if p.Root == "" {
		return "", fmt.Errorf("source: %w: local ref %q: no ingest root is configured", rag.ErrConfiguration, ref)
	}
	root, err := filepath.Abs(p.Root)
	if err != nil {
		return "", fmt.Errorf("source: %w: ingest root %q: %w", rag.ErrConfiguration, p.Root, err)
	}
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		root = resolved
	}

	target := ref
	if !filepath.IsAbs(target) {
		target = filepath.Join(root, target)
	}
	target = filepath.Clean(target)
	if resolved, err := filepath.EvalSymlinks(target); err == nil {
		target = resolved
	}

	rel, err := filepath.Rel(root, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("source: %w: local ref %q is outside the ingest root", rag.ErrConfiguration, ref)
	}
	return target, nil
}

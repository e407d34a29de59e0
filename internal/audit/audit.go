// Package audit logs CLI command invocations with the resolved configuration
// so operators can trace what ran. Secrets are recorded as presence only.
package audit

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"strings"
)

type entry struct {
	key string
	// kind selects the sanitiser applied to the value.
	kind kind
}

type kind int

const (
	plain kind = iota
	secret
	dsn
)

// auditKeys is the ordered list of env vars included in every audit entry.
var auditKeys = []entry{
	{"MODEL_PROVIDER", plain},
	{"OLLAMA_HOST", plain},
	{"OLLAMA_MODEL", plain},
	{"OPENAI_API_KEY", secret},
	{"OPENAI_MODEL", plain},
	{"AZURE_OPENAI_API_KEY", secret},
	{"AZURE_OPENAI_ENDPOINT", plain},
	{"AZURE_OPENAI_DEPLOYMENT", plain},
	{"ARK_API_KEY", secret},
	{"ARK_MODEL", plain},
	{"GOOGLE_API_KEY", secret},
	{"GEMINI_MODEL", plain},
	{"EMBEDDING_PROVIDER", plain},
	{"EMBEDDING_MODEL", plain},
	{"EMBEDDING_API_KEY", secret},
	{"VECTOR_STORE", plain},
	{"QDRANT_HOST", plain},
	{"QDRANT_PORT", plain},
	{"QDRANT_API_KEY", secret},
	{"PGVECTOR_DSN", dsn},
	{"DOCRAG_COLLECTION", plain},
	{"DOCRAG_HISTORY_DB", plain},
	{"LOG_LEVEL", plain},
	{"LOG_FORMAT", plain},
	{"LANGFUSE_PUBLIC_KEY", secret},
	{"LANGFUSE_SECRET_KEY", secret},
}

var kinds = func() map[string]kind {
	m := make(map[string]kind, len(auditKeys))
	for _, e := range auditKeys {
		m[e.key] = e.kind
	}
	return m
}()

// LogCommandStart emits one structured entry when a CLI command begins.
func LogCommandStart(ctx context.Context, log *slog.Logger, command string, configPath string) {
	attrs := []slog.Attr{
		slog.String("command", command),
		slog.String("config_file", sanitiseConfigPath(configPath)),
	}
	for _, e := range auditKeys {
		attrs = append(attrs, slog.String(e.key, SanitiseKey(e.key, os.Getenv(e.key))))
	}
	log.LogAttrs(ctx, slog.LevelInfo, "audit: command start", attrs...)
}

// SanitiseKey returns a log-safe rendering of value for the env var key:
// "set"/"unset" for secrets, a password-free URL for DSNs, else the value.
func SanitiseKey(key, value string) string {
	switch kinds[key] {
	case secret:
		return presence(value)
	case dsn:
		return redactDSN(value)
	default:
		return valOrUnset(value)
	}
}

func presence(v string) string {
	if v != "" {
		return "set"
	}
	return "unset"
}

func valOrUnset(v string) string {
	if v != "" {
		return v
	}
	return "unset"
}

// redactDSN strips the password from a URL-form connection string. Strings
// that do not parse as URLs (key=value DSNs) are reduced to presence.
func redactDSN(v string) string {
	if v == "" {
		return "unset"
	}
	u, err := url.Parse(v)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "set"
	}
	return u.Redacted()
}

func sanitiseConfigPath(p string) string {
	if p == "" {
		return "none"
	}
	home, err := os.UserHomeDir()
	if err == nil && strings.HasPrefix(p, home) {
		return "~" + p[len(home):]
	}
	return p
}

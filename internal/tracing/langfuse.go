// Package tracing wires optional Langfuse tracing into eino's global callback
// chain. Every chat model call made through provider.ChatCompleter is then
// reported as a Langfuse generation.
package tracing

import (
	"log/slog"
	"os"

	"github.com/cloudwego/eino-ext/callbacks/langfuse"
	"github.com/cloudwego/eino/callbacks"
)

// defaultHost is used when LANGFUSE_HOST is unset.
const defaultHost = "http://localhost:3000"

// Config holds the Langfuse credentials.
type Config struct {
	Host      string
	PublicKey string
	SecretKey string
}

// Enabled reports whether both keys are present.
func (c Config) Enabled() bool {
	return c.PublicKey != "" && c.SecretKey != ""
}

// ConfigFromEnv reads LANGFUSE_HOST, LANGFUSE_PUBLIC_KEY and LANGFUSE_SECRET_KEY.
func ConfigFromEnv() Config {
	c := Config{
		Host:      os.Getenv("LANGFUSE_HOST"),
		PublicKey: os.Getenv("LANGFUSE_PUBLIC_KEY"),
		SecretKey: os.Getenv("LANGFUSE_SECRET_KEY"),
	}
	if c.Host == "" {
		c.Host = defaultHost
	}
	return c
}

// NewHandler builds the Langfuse callback handler and its flush function.
// ok is false when cfg is not enabled.
func NewHandler(cfg Config) (handler callbacks.Handler, flush func(), ok bool) {
	if !cfg.Enabled() {
		return nil, nil, false
	}
	handler, flush = langfuse.NewLangfuseHandler(&langfuse.Config{
		Host:      cfg.Host,
		PublicKey: cfg.PublicKey,
		SecretKey: cfg.SecretKey,
	})
	return handler, flush, true
}

// Setup registers the Langfuse handler globally when LANGFUSE_PUBLIC_KEY and
// LANGFUSE_SECRET_KEY are set. The returned function flushes pending traces
// and must be called before process exit. It is a no-op when tracing is off.
func Setup(log *slog.Logger) func() {
	cfg := ConfigFromEnv()
	handler, flush, ok := NewHandler(cfg)
	if !ok {
		log.Debug("tracing: langfuse disabled")
		return func() {}
	}
	callbacks.AppendGlobalHandlers(handler)
	log.Info("tracing: langfuse enabled", slog.String("host", cfg.Host))
	return flush
}

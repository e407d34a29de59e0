package tracing

import (
	"testing"
)

func TestConfigFromEnv_DefaultHost(t *testing.T) {
	t.Setenv("LANGFUSE_HOST", "")
	t.Setenv("LANGFUSE_PUBLIC_KEY", "pk")
	t.Setenv("LANGFUSE_SECRET_KEY", "")

	cfg := ConfigFromEnv()
	if cfg.Host != defaultHost {
		t.Errorf("Host: got %q, want %q", cfg.Host, defaultHost)
	}
	if cfg.Enabled() {
		t.Error("expected disabled without a secret key")
	}
}

func TestNewHandler_Disabled(t *testing.T) {
	t.Parallel()

	h, flush, ok := NewHandler(Config{PublicKey: "pk"})
	if ok || h != nil || flush != nil {
		t.Errorf("expected no handler, got ok=%v", ok)
	}
}

func TestNewHandler_Enabled(t *testing.T) {
	t.Parallel()

	h, flush, ok := NewHandler(Config{Host: "http://127.0.0.1:1", PublicKey: "pk", SecretKey: "sk"})
	if !ok || h == nil || flush == nil {
		t.Fatalf("expected handler, got ok=%v", ok)
	}
}

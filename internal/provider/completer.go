package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/docrag/internal/rag"
)

// CompleterConfig tunes a ChatCompleter.
type CompleterConfig struct {
	// Name identifies the backend/model in traces and errors.
	Name string
	// MaxTokens is passed as a per-call option when > 0.
	MaxTokens int
}

// ChatCompleter adapts an eino chat model to rag.Completer. Every call runs
// with eino callbacks initialised so global handlers (e.g. Langfuse) see it.
type ChatCompleter struct {
	model model.BaseChatModel
	cfg   CompleterConfig
}

var _ rag.Completer = (*ChatCompleter)(nil)

// NewCompleter wraps m. cfg may be nil.
func NewCompleter(m model.BaseChatModel, cfg *CompleterConfig) (*ChatCompleter, error) {
	if m == nil {
		return nil, fmt.Errorf("provider: %w: chat model must not be nil", rag.ErrConfiguration)
	}
	if cfg == nil {
		cfg = &CompleterConfig{}
	}
	if cfg.Name == "" {
		cfg.Name = "chat"
	}
	return &ChatCompleter{model: m, cfg: *cfg}, nil
}

// Name returns the configured backend/model label.
func (c *ChatCompleter) Name() string {
	return c.cfg.Name
}

// Complete sends messages and returns the reply text verbatim. An empty
// reply is a provider error.
func (c *ChatCompleter) Complete(ctx context.Context, messages []*schema.Message) (string, error) {
	ctx = callbacks.InitCallbacks(ctx, &callbacks.RunInfo{
		Name:      c.cfg.Name,
		Type:      "ChatCompleter",
		Component: components.ComponentOfChatModel,
	})

	var opts []model.Option
	if c.cfg.MaxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(c.cfg.MaxTokens))
	}

	resp, err := c.model.Generate(ctx, messages, opts...)
	if err != nil {
		return "", completionError(c.cfg.Name, err)
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return "", fmt.Errorf("provider: %s: %w: empty response", c.cfg.Name, rag.ErrCompletionProvider)
	}
	return resp.Content, nil
}

// completionError wraps err as a completion provider failure, adding
// rag.ErrConnection for transport-level failures.
func completionError(name string, err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("provider: %s: %w: %w: %w", name, rag.ErrCompletionProvider, rag.ErrConnection, err)
	}
	return fmt.Errorf("provider: %s: %w: %w", name, rag.ErrCompletionProvider, err)
}

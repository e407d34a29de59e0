package query

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/54b3r/docrag/internal/rag"
)

// DefaultFanOutLimit bounds concurrent completions when callers pass 0.
const DefaultFanOutLimit = 4

// FanOut applies every instruction to base concurrently, at most limit at a
// time, and returns the answers in instruction order. The first failure
// cancels the remaining calls and is returned.
func FanOut(ctx context.Context, c rag.Completer, base string, instructions []string, limit int) ([]string, error) {
	return fanOut(ctx, c, "context", base, instructions, limit)
}

func fanOut(ctx context.Context, c rag.Completer, label, base string, instructions []string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = DefaultFanOutLimit
	}
	answers := make([]string, len(instructions))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, instruction := range instructions {
		msgs := followUpMessages(label, base, instruction)
		g.Go(func() error {
			answer, err := c.Complete(gctx, msgs)
			if err != nil {
				return fmt.Errorf("query: follow-up %d: %w", i, err)
			}
			answers[i] = answer
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return answers, nil
}

// FollowUpRequest runs several instructions over the context retrieved for
// one question.
type FollowUpRequest struct {
	Request
	// Instructions are applied independently to the retrieved context.
	Instructions []string
	// Summarize first condenses the context and fans out over the summary.
	Summarize bool
	// Concurrency bounds parallel completions. 0 uses DefaultFanOutLimit.
	Concurrency int
}

// FollowUpResult holds the answers in instruction order.
type FollowUpResult struct {
	Answers      []string
	Summary      string
	Collection   string
	FallbackFrom string
	Hits         rag.SearchResult
}

// FollowUps retrieves context for req.Query and applies every instruction to
// it (or to its summary) concurrently.
func (s *Service) FollowUps(ctx context.Context, req *FollowUpRequest) (*FollowUpResult, error) {
	if len(req.Instructions) == 0 {
		return nil, fmt.Errorf("query: %w: at least one instruction is required", rag.ErrConfiguration)
	}
	ret, err := s.retrieve(ctx, &req.Request)
	if err != nil {
		return nil, err
	}

	res := &FollowUpResult{
		Collection:   ret.collection,
		FallbackFrom: ret.fallbackFrom,
		Hits:         ret.hits,
	}

	label, base := "context", ret.hits.Context()
	if req.Summarize {
		summary, err := s.completer.Complete(ctx, summaryMessages(base))
		if err != nil {
			return nil, fmt.Errorf("query: summarize: %w", err)
		}
		res.Summary = summary
		label, base = "summary", summary
	}

	answers, err := fanOut(ctx, s.completer, label, base, req.Instructions, req.Concurrency)
	if err != nil {
		return nil, err
	}
	res.Answers = answers
	return res, nil
}

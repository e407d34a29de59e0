// Package query answers questions against a vector store collection:
// embed the question, retrieve the nearest chunks, assemble a grounded
// prompt, and return the completion verbatim. A missing collection falls
// back to another one, logged, instead of failing outright.
package query

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/docrag/internal/budget"
	"github.com/54b3r/docrag/internal/logging"
	"github.com/54b3r/docrag/internal/rag"
	"github.com/54b3r/docrag/internal/store"
)

const (
	// DefaultTopK is the number of chunks retrieved when a request omits k.
	DefaultTopK = 5
	// DefaultHistoryTurns is the number of prior question/answer pairs replayed.
	DefaultHistoryTurns = 5
)

// Config holds the dependencies of a Service.
type Config struct {
	Embedder  rag.Embedder
	Store     rag.VectorStore
	Completer rag.Completer

	// Collection is searched when a request names none.
	Collection string
	// TopK defaults to DefaultTopK when zero.
	TopK int

	// Transcript is optional. When set, requests carrying a session ID replay
	// prior turns and persist the new one.
	Transcript store.Transcript
	// HistoryTurns defaults to DefaultHistoryTurns when zero.
	HistoryTurns int
	// MaxContextTokens bounds replayed history. Defaults to
	// budget.DefaultMaxContextTokens when zero.
	MaxContextTokens int
}

// Service is the retrieval query service. It is safe for concurrent use.
type Service struct {
	embedder   rag.Embedder
	store      rag.VectorStore
	completer  rag.Completer
	collection string
	topK       int

	transcript   store.Transcript
	historyTurns int
	maxTokens    int
}

// New validates cfg and returns a Service.
func New(cfg *Config) (*Service, error) {
	switch {
	case cfg.Embedder == nil:
		return nil, fmt.Errorf("query: %w: Embedder must not be nil", rag.ErrConfiguration)
	case cfg.Store == nil:
		return nil, fmt.Errorf("query: %w: Store must not be nil", rag.ErrConfiguration)
	case cfg.Completer == nil:
		return nil, fmt.Errorf("query: %w: Completer must not be nil", rag.ErrConfiguration)
	}

	s := &Service{
		embedder:     cfg.Embedder,
		store:        cfg.Store,
		completer:    cfg.Completer,
		collection:   cfg.Collection,
		topK:         cfg.TopK,
		transcript:   cfg.Transcript,
		historyTurns: cfg.HistoryTurns,
		maxTokens:    cfg.MaxContextTokens,
	}
	if s.topK <= 0 {
		s.topK = DefaultTopK
	}
	if s.historyTurns <= 0 {
		s.historyTurns = DefaultHistoryTurns
	}
	if s.maxTokens <= 0 {
		s.maxTokens = budget.DefaultMaxContextTokens
	}
	return s, nil
}

// Request is one question.
type Request struct {
	Query string
	// Collection overrides the service default.
	Collection string
	// K overrides the service TopK when > 0.
	K int
	// SessionID enables transcript replay and persistence.
	SessionID string
}

// Result is the answer plus what produced it.
type Result struct {
	// Answer is the completion text, unmodified.
	Answer string
	// Collection is the collection actually searched.
	Collection string
	// FallbackFrom is the requested collection when a fallback was used.
	FallbackFrom string
	Hits         rag.SearchResult
	// Messages is the exact prompt sent to the completer.
	Messages []*schema.Message
}

// Answer is the plain form of Ask: it returns only the completion text.
func (s *Service) Answer(ctx context.Context, question, collection string, k int) (string, error) {
	res, err := s.Ask(ctx, &Request{Query: question, Collection: collection, K: k})
	if err != nil {
		return "", err
	}
	return res.Answer, nil
}

// Ask embeds the question, retrieves context, and completes the grounded
// prompt. Embedding failures return before the store is touched.
func (s *Service) Ask(ctx context.Context, req *Request) (*Result, error) {
	ret, err := s.retrieve(ctx, req)
	if err != nil {
		return nil, err
	}

	history := s.loadHistory(ctx, req.SessionID)
	fixed := BuildMessages(req.Query, ret.hits.Context(), nil)
	if trimmed := budget.TrimHistory(fixed, history, s.maxTokens); len(trimmed) < len(history) {
		logging.FromContext(ctx).Warn("query: dropped history messages to fit context window",
			slog.Int("dropped", len(history)-len(trimmed)),
			slog.Int("retained", len(trimmed)),
			slog.Int("max_tokens", s.maxTokens),
		)
		history = trimmed
	}
	if budget.Exceeds(fixed, s.maxTokens) {
		logging.FromContext(ctx).Warn("query: prompt exceeds context budget",
			slog.Int("estimated_tokens", budget.EstimateMessages(fixed)),
			slog.Int("max_tokens", s.maxTokens),
		)
	}
	msgs := BuildMessages(req.Query, ret.hits.Context(), history)

	answer, err := s.completer.Complete(ctx, msgs)
	if err != nil {
		return nil, fmt.Errorf("query: complete: %w", err)
	}

	s.saveTurn(ctx, req.SessionID, req.Query, answer)

	return &Result{
		Answer:       answer,
		Collection:   ret.collection,
		FallbackFrom: ret.fallbackFrom,
		Hits:         ret.hits,
		Messages:     msgs,
	}, nil
}

type retrieval struct {
	collection   string
	fallbackFrom string
	hits         rag.SearchResult
}

// retrieve runs the embed and search steps shared by Ask and FollowUps.
func (s *Service) retrieve(ctx context.Context, req *Request) (*retrieval, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, fmt.Errorf("query: %w: query must not be empty", rag.ErrConfiguration)
	}
	collection := req.Collection
	if collection == "" {
		collection = s.collection
	}
	if collection == "" {
		return nil, fmt.Errorf("query: %w: no collection given and no default configured", rag.ErrConfiguration)
	}
	k := req.K
	if k <= 0 {
		k = s.topK
	}

	vector, err := rag.EmbedOne(ctx, s.embedder, req.Query)
	if err != nil {
		return nil, fmt.Errorf("query: embed question: %w", err)
	}

	searched, hits, err := s.searchWithFallback(ctx, collection, vector, k)
	if err != nil {
		return nil, err
	}

	ret := &retrieval{collection: searched, hits: hits}
	if searched != collection {
		ret.fallbackFrom = collection
	}
	logging.FromContext(ctx).Debug("query: retrieved context",
		slog.String("collection", searched),
		slog.Int("hits", len(hits)),
		slog.Int("k", k),
	)
	return ret, nil
}

// loadHistory returns prior turns for session as chat messages. Transcript
// failures are logged and treated as an empty history.
func (s *Service) loadHistory(ctx context.Context, session string) []*schema.Message {
	if s.transcript == nil || session == "" {
		return nil
	}
	prior, err := s.transcript.Recent(ctx, session, s.historyTurns*2)
	if err != nil {
		logging.FromContext(ctx).Warn("history: failed to load prior messages", slog.Any("error", err))
		return nil
	}
	msgs := make([]*schema.Message, 0, len(prior))
	for _, m := range prior {
		switch m.Role {
		case store.RoleUser:
			msgs = append(msgs, schema.UserMessage(m.Content))
		case store.RoleAssistant:
			msgs = append(msgs, schema.AssistantMessage(m.Content, nil))
		}
	}
	return msgs
}

func (s *Service) saveTurn(ctx context.Context, session, question, answer string) {
	if s.transcript == nil || session == "" {
		return
	}
	if err := s.transcript.Append(ctx, session, store.RoleUser, question); err != nil {
		logging.FromContext(ctx).Warn("history: failed to persist user message", slog.Any("error", err))
		return
	}
	if err := s.transcript.Append(ctx, session, store.RoleAssistant, answer); err != nil {
		logging.FromContext(ctx).Warn("history: failed to persist assistant message", slog.Any("error", err))
	}
}

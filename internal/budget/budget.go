// Package budget estimates prompt token counts and trims replayed session
// history so a question plus its retrieved context fits the model's window.
// Backends use different tokenizers, so estimation is a character heuristic
// of roughly 4 characters per token.
package budget

import (
	"unicode/utf8"

	"github.com/cloudwego/eino/schema"
)

const (
	charsPerToken = 4

	// perMessageOverhead approximates the role and framing tokens most chat
	// APIs add to every message.
	perMessageOverhead = 4

	// DefaultMaxContextTokens is the default prompt budget. It fits 8k-context
	// models with room left for a 1000-token answer.
	DefaultMaxContextTokens = 6000
)

// Estimate returns a rough token count for s. Any non-empty string costs at
// least one token.
func Estimate(s string) int {
	n := utf8.RuneCountInString(s) / charsPerToken
	if n == 0 && s != "" {
		return 1
	}
	return n
}

// EstimateMessages returns the estimated token count of msgs including the
// per-message overhead.
func EstimateMessages(msgs []*schema.Message) int {
	total := 0
	for _, m := range msgs {
		total += perMessageOverhead + Estimate(string(m.Role)) + Estimate(m.Content)
	}
	return total
}

// TrimHistory drops the oldest history messages until fixed plus history fits
// within maxTokens. fixed (system prompt and the current question with its
// context) is never trimmed. A leading assistant message left without its
// question is dropped too, so replayed history always opens with a user turn.
// maxTokens <= 0 disables trimming.
func TrimHistory(fixed, history []*schema.Message, maxTokens int) []*schema.Message {
	if len(history) == 0 || maxTokens <= 0 {
		return history
	}

	remaining := maxTokens - EstimateMessages(fixed)
	used := EstimateMessages(history)
	for len(history) > 0 && (used > remaining || history[0].Role != schema.User) {
		used -= EstimateMessages(history[:1])
		history = history[1:]
	}
	return history
}

// Exceeds reports whether msgs alone are over maxTokens. Callers log a
// warning; the provider may still accept the request.
func Exceeds(msgs []*schema.Message, maxTokens int) bool {
	return maxTokens > 0 && EstimateMessages(msgs) > maxTokens
}

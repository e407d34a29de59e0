package budget

import (
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
)

func Test_Estimate(t *testing.T) {
	t.Parallel()
	cases := []struct {
		input string
		want  int
	}{
		{"", 0},
		{"a", 1},
		{"abcd", 1},
		{"abcdefgh", 2},
		{"ééééééèè", 2}, // runes, not bytes
		{strings.Repeat("x", 400), 100},
	}
	for _, tc := range cases {
		if got := Estimate(tc.input); got != tc.want {
			t.Errorf("Estimate(%q) = %d, want %d", tc.input, got, tc.want)
		}
	}
}

func Test_EstimateMessages(t *testing.T) {
	t.Parallel()
	// Each: 4 overhead + Estimate("user")=1 + Estimate("hello world")=2.
	msgs := []*schema.Message{
		schema.UserMessage("hello world"),
		schema.UserMessage("hello world"),
	}
	if got := EstimateMessages(msgs); got != 14 {
		t.Errorf("EstimateMessages = %d, want 14", got)
	}
}

func Test_TrimHistory(t *testing.T) {
	t.Parallel()

	// Every short message below costs 6 tokens (4 + role 1 + content 1) except
	// assistant, whose role costs 2, making 7.
	turns := func() []*schema.Message {
		return []*schema.Message{
			schema.UserMessage("q1"),
			schema.AssistantMessage("a1", nil),
			schema.UserMessage("q2"),
			schema.AssistantMessage("a2", nil),
		}
	}

	tests := []struct {
		name      string
		fixed     []*schema.Message
		history   []*schema.Message
		max       int
		wantFirst string
		wantLen   int
	}{
		{"fits", []*schema.Message{schema.SystemMessage("sys")}, turns(), DefaultMaxContextTokens, "q1", 4},
		{"disabled", nil, turns(), 0, "q1", 4},
		{"drops oldest pair", nil, turns(), 13, "q2", 2},
		{"never opens with assistant", nil, turns(), 20, "q2", 2},
		{"fixed exceeds budget", []*schema.Message{schema.SystemMessage(strings.Repeat("x", 4*7000))}, turns(), 6000, "", 0},
		{"empty", nil, nil, 10, "", 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := TrimHistory(tc.fixed, tc.history, tc.max)
			if len(got) != tc.wantLen {
				t.Fatalf("len = %d, want %d", len(got), tc.wantLen)
			}
			if tc.wantLen > 0 && got[0].Content != tc.wantFirst {
				t.Errorf("first = %q, want %q", got[0].Content, tc.wantFirst)
			}
		})
	}
}

func Test_Exceeds(t *testing.T) {
	t.Parallel()
	msgs := []*schema.Message{schema.UserMessage(strings.Repeat("x", 400))}
	if !Exceeds(msgs, 50) {
		t.Error("want Exceeds true for 105 tokens over 50")
	}
	if Exceeds(msgs, 0) {
		t.Error("maxTokens 0 disables the check")
	}
}

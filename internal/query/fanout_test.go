package query

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/docrag/internal/rag"
	"github.com/54b3r/docrag/internal/vectorstore"
)

// instructionOf extracts the instruction line from a follow-up prompt.
func instructionOf(msgs []*schema.Message) string {
	user := msgs[len(msgs)-1].Content
	_, rest, _ := strings.Cut(user, "Instruction: ")
	instr, _, _ := strings.Cut(rest, "\n")
	return instr
}

func TestFanOut_PreservesOrder(t *testing.T) {
	t.Parallel()
	instructions := []string{"slow", "medium", "fast"}
	delays := map[string]time.Duration{"slow": 30 * time.Millisecond, "medium": 15 * time.Millisecond, "fast": 0}
	c := &fakeCompleter{reply: func(msgs []*schema.Message) (string, error) {
		instr := instructionOf(msgs)
		time.Sleep(delays[instr])
		return "done:" + instr, nil
	}}

	got, err := FanOut(context.Background(), c, "base text", instructions, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"done:slow", "done:medium", "done:fast"}, got)
	assert.Contains(t, c.got[0][1].Content, "Given the following context:\n\nbase text")
}

func TestFanOut_RespectsLimit(t *testing.T) {
	t.Parallel()
	var inFlight, peak atomic.Int32
	c := &fakeCompleter{reply: func([]*schema.Message) (string, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return "ok", nil
	}}

	_, err := FanOut(context.Background(), c, "b", []string{"1", "2", "3", "4", "5", "6"}, 2)
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestFanOut_FirstErrorCancelsSiblings(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	c := &fakeCompleter{reply: func(msgs []*schema.Message) (string, error) {
		if instructionOf(msgs) == "fail" {
			return "", boom
		}
		return "ok", nil
	}}

	got, err := FanOut(context.Background(), c, "b", []string{"ok", "fail", "ok"}, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, got)
}

func TestFollowUps_Summarize(t *testing.T) {
	t.Parallel()
	st := &countingStore{Memory: vectorstore.NewMemory()}
	seedStore(t, st, "Employee_data", "Employees get twenty vacation days.")
	c := &fakeCompleter{reply: func(msgs []*schema.Message) (string, error) {
		user := msgs[len(msgs)-1].Content
		if strings.HasPrefix(user, "Summarize the following text") {
			return "SUMMARY", nil
		}
		if !strings.Contains(user, "Given the following summary:\n\nSUMMARY") {
			return "", errors.New("follow-up did not receive the summary")
		}
		return "re:" + instructionOf(msgs), nil
	}}
	svc := newTestService(t, &fakeEmbedder{}, st, c, nil)

	res, err := svc.FollowUps(context.Background(), &FollowUpRequest{
		Request:      Request{Query: "vacation policy"},
		Instructions: []string{"Write a tweet.", "Translate into French."},
		Summarize:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, "SUMMARY", res.Summary)
	assert.Equal(t, []string{"re:Write a tweet.", "re:Translate into French."}, res.Answers)
	assert.Equal(t, "Employee_data", res.Collection)
}

func TestFollowUps_RequiresInstructions(t *testing.T) {
	t.Parallel()
	svc := newTestService(t, &fakeEmbedder{}, &countingStore{Memory: vectorstore.NewMemory()}, &fakeCompleter{}, nil)
	_, err := svc.FollowUps(context.Background(), &FollowUpRequest{Request: Request{Query: "q"}})
	assert.ErrorIs(t, err, rag.ErrConfiguration)
}

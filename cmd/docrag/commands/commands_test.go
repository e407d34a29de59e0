package commands

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/54b3r/docrag/internal/rag"
	"github.com/54b3r/docrag/internal/version"
)

// isolate points every file-based setting at an empty temp dir and selects
// the in-memory vector store.
func isolate(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)
	t.Setenv("DOCRAG_CONFIG", "")
	t.Setenv("VECTOR_STORE", "memory")
	t.Setenv("DOCRAG_HISTORY_DB", "disabled")
	t.Setenv("LOG_LEVEL", "error")
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestVersionCmd(t *testing.T) {
	isolate(t)
	out, err := run(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if strings.TrimSpace(out) != version.String() {
		t.Errorf("got %q, want %q", out, version.String())
	}
}

func TestIngestCmd_RequiresSource(t *testing.T) {
	isolate(t)
	_, err := run(t, "ingest", "--collection", "c")
	if !errors.Is(err, rag.ErrConfiguration) {
		t.Errorf("expected ErrConfiguration, got %v", err)
	}
}

func TestFollowUpCmd_RequiresQuery(t *testing.T) {
	isolate(t)
	_, err := run(t, "followup", "-i", "summarize")
	if !errors.Is(err, rag.ErrConfiguration) {
		t.Errorf("expected ErrConfiguration, got %v", err)
	}
}

func TestCollectionsCmd_Memory(t *testing.T) {
	isolate(t)
	out, err := run(t, "collections")
	if err != nil {
		t.Fatalf("collections: %v", err)
	}
	if !strings.Contains(out, "NAME") {
		t.Errorf("expected header, got %q", out)
	}
}

func TestCollectionsCmd_RunsNeedHistory(t *testing.T) {
	isolate(t)
	_, err := run(t, "collections", "--runs", "5")
	if !errors.Is(err, rag.ErrConfiguration) {
		t.Errorf("expected ErrConfiguration, got %v", err)
	}
}

func TestCollectionsCmd_RunsFromLedger(t *testing.T) {
	isolate(t)
	t.Setenv("DOCRAG_HISTORY_DB", t.TempDir()+"/history.db")
	out, err := run(t, "collections", "--runs", "3")
	if err != nil {
		t.Fatalf("collections --runs: %v", err)
	}
	if !strings.Contains(out, "STARTED") {
		t.Errorf("expected runs header, got %q", out)
	}
}

func TestUnescape(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		`\n\n`: "\n\n",
		`a\tb`: "a\tb",
		`\\n`:  `\n`,
		`\x`:   `\x`,
		". ":   ". ",
		`end\`: `end\`,
	}
	for in, want := range cases {
		if got := unescape(in); got != want {
			t.Errorf("unescape(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFirstNonNegative(t *testing.T) {
	t.Parallel()
	if got := firstNonNegative(0, 50, 100); got != 0 {
		t.Errorf("explicit zero flag: got %d", got)
	}
	if got := firstNonNegative(-1, 50, 100); got != 50 {
		t.Errorf("app value: got %d", got)
	}
	if got := firstNonNegative(-1, 0, 100); got != 100 {
		t.Errorf("default: got %d", got)
	}
}

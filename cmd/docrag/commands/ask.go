package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/54b3r/docrag/internal/query"
	"github.com/54b3r/docrag/internal/rag"
)

// NewAskCmd constructs the `docrag ask` command, which answers one question
// from the most relevant chunks of a collection.
func NewAskCmd() *cobra.Command {
	var (
		k           int
		collection  string
		session     string
		newSession  bool
		showSources bool
	)

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question about the ingested documents",
		Long: `Embed the question, retrieve the k nearest chunks, and ask the language
model to answer using them as context. The answer is printed verbatim.

If the collection does not exist, another existing collection is searched
instead and a warning is logged.

With --session, prior turns of that session are replayed as conversation
history and the new turn is saved (requires the history store).

Examples:
  docrag ask "what is the refund policy?"
  docrag ask -k 3 --collection handbook "how many vacation days do I get?"
  docrag ask --new-session --show-sources "who approves expenses?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if newSession {
				session = uuid.NewString()
				fmt.Fprintf(cmd.ErrOrStderr(), "session: %s\n", session)
			}

			rt, err := openRuntime(ctx, session != "")
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer rt.Close()

			svc, err := rt.newQueryService(ctx)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			res, err := svc.Ask(ctx, &query.Request{
				Query:      strings.Join(args, " "),
				Collection: collection,
				K:          k,
				SessionID:  session,
			})
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, res.Answer)
			if res.FallbackFrom != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "note: collection %q not found, answered from %q\n", res.FallbackFrom, res.Collection)
			}
			if showSources {
				printSources(out, res.Hits)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&k, "k", "k", 0, "Number of chunks to retrieve (default: DOCRAG_TOP_K or 5)")
	cmd.Flags().StringVarP(&collection, "collection", "c", "", "Collection to search (default: DOCRAG_COLLECTION)")
	cmd.Flags().StringVar(&session, "session", "", "Conversation session ID for history replay")
	cmd.Flags().BoolVar(&newSession, "new-session", false, "Start a new session with a generated ID")
	cmd.Flags().BoolVar(&showSources, "show-sources", false, "Print the retrieved chunks after the answer")
	cmd.MarkFlagsMutuallyExclusive("session", "new-session")

	return cmd
}

// printSources lists hits best-first with a one-line preview.
func printSources(w io.Writer, hits rag.SearchResult) {
	fmt.Fprintln(w, "\nSources:")
	for i, h := range hits {
		ref := h.Payload.Meta.Ref
		if ref == "" {
			ref = h.Payload.Meta.Source
		}
		fmt.Fprintf(w, "  [%d] %s #%d (score %.4f): %s\n", i+1, ref, h.Payload.Meta.ChunkIndex, h.Score, preview(h.Payload.Text, 80))
	}
}

func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}

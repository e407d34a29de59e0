package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/54b3r/docrag/internal/query"
	"github.com/54b3r/docrag/internal/rag"
)

// NewFollowUpCmd constructs the `docrag followup` command, which retrieves
// context once and applies several instructions to it concurrently.
func NewFollowUpCmd() *cobra.Command {
	var (
		q            string
		instructions []string
		summarize    bool
		collection   string
		k            int
		concurrency  int
	)

	cmd := &cobra.Command{
		Use:   "followup",
		Short: "Apply several instructions to the context retrieved for one query",
		Long: `Retrieve the chunks relevant to --query once, then run every --instruction
against that context in parallel. Answers are printed in the order the
instructions were given.

With --summarize the context is first condensed into a short summary and the
instructions are applied to the summary instead.

Examples:
  docrag followup --query "travel policy" -i "list the per-diem rates" -i "who approves trips?"
  docrag followup --query "security training" --summarize -i "turn this into a checklist"`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if q == "" {
				return fmt.Errorf("followup: %w: --query is required", rag.ErrConfiguration)
			}

			rt, err := openRuntime(ctx, false)
			if err != nil {
				return fmt.Errorf("followup: %w", err)
			}
			defer rt.Close()

			svc, err := rt.newQueryService(ctx)
			if err != nil {
				return fmt.Errorf("followup: %w", err)
			}

			res, err := svc.FollowUps(ctx, &query.FollowUpRequest{
				Request:      query.Request{Query: q, Collection: collection, K: k},
				Instructions: instructions,
				Summarize:    summarize,
				Concurrency:  concurrency,
			})
			if err != nil {
				return fmt.Errorf("followup: %w", err)
			}

			out := cmd.OutOrStdout()
			if res.Summary != "" {
				fmt.Fprintf(out, "Summary:\n%s\n\n", res.Summary)
			}
			for i, answer := range res.Answers {
				fmt.Fprintf(out, "[%d] %s\n%s\n\n", i+1, instructions[i], answer)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&q, "query", "q", "", "Query used to retrieve context (required)")
	cmd.Flags().StringArrayVarP(&instructions, "instruction", "i", nil, "Instruction to apply to the context (repeatable)")
	cmd.Flags().BoolVar(&summarize, "summarize", false, "Summarize the context first and apply instructions to the summary")
	cmd.Flags().StringVarP(&collection, "collection", "c", "", "Collection to search (default: DOCRAG_COLLECTION)")
	cmd.Flags().IntVarP(&k, "k", "k", 0, "Number of chunks to retrieve")
	cmd.Flags().IntVar(&concurrency, "concurrency", query.DefaultFanOutLimit, "Maximum concurrent completions")

	return cmd
}

package commands

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/54b3r/docrag/internal/rag"
)

// NewCollectionsCmd constructs the `docrag collections` command.
func NewCollectionsCmd() *cobra.Command {
	var runs int
	var collection string

	cmd := &cobra.Command{
		Use:   "collections",
		Short: "List vector store collections or recent ingestion runs",
		Long: `List every collection in the vector store with its vector size, metric,
and point count.

With --runs N, print the last N ingestion runs from the ledger instead
(optionally filtered by --collection).`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			rt, err := openRuntime(ctx, runs > 0)
			if err != nil {
				return fmt.Errorf("collections: %w", err)
			}
			defer rt.Close()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			defer tw.Flush()

			if runs > 0 {
				if rt.history == nil {
					return fmt.Errorf("collections: %w: the history store is disabled", rag.ErrConfiguration)
				}
				list, err := rt.history.IngestRuns(ctx, collection, runs)
				if err != nil {
					return fmt.Errorf("collections: %w", err)
				}
				fmt.Fprintln(tw, "STARTED\tCOLLECTION\tDOCS\tCHUNKS\tSTORED\tNOT STORED\tDURATION\tSTATUS")
				for _, r := range list {
					status := "ok"
					if !r.OK() {
						status = r.Error
					}
					fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%s\t%s\n",
						r.StartedAt.Local().Format(time.DateTime), r.Collection, r.Documents, r.Chunks,
						r.Stored, r.NotStored, r.Duration.Round(time.Millisecond), status)
				}
				return nil
			}

			names, err := rt.store.ListCollections(ctx)
			if err != nil {
				return fmt.Errorf("collections: %w", err)
			}
			fmt.Fprintln(tw, "NAME\tDIMENSIONS\tMETRIC\tPOINTS")
			for _, name := range names {
				info, err := rt.store.Collection(ctx, name)
				if err != nil {
					return fmt.Errorf("collections: %w", err)
				}
				fmt.Fprintf(tw, "%s\t%d\t%s\t%d\n", info.Name, info.Dimensions, info.Metric, info.Points)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&runs, "runs", 0, "Show the last N ingestion runs instead of collections")
	cmd.Flags().StringVarP(&collection, "collection", "c", "", "Filter --runs by collection")

	return cmd
}

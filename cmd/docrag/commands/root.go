// Package commands defines all Cobra CLI commands for the docrag binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/54b3r/docrag/internal/audit"
	"github.com/54b3r/docrag/internal/config"
	"github.com/54b3r/docrag/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// envPath holds the --env-file flag value.
var envPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "docrag",
		Short: "Ask questions about your documents",
		Long: `docrag is a retrieval-augmented question answering tool.

It splits PDFs, web pages, and text files into chunks, embeds them into a
vector store (Qdrant, pgvector, or in-memory), and answers questions using
the most relevant chunks as context for a language model.

Providers are selected via MODEL_PROVIDER, EMBEDDING_PROVIDER and
VECTOR_STORE, from the environment, a .env file, or a YAML config file
(~/.docrag/config.yaml). Exported environment variables always win.
See 'docrag --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			bootLog := logging.New()

			// .env first, then YAML; both fill only unset variables.
			if _, err := config.LoadDotEnv(bootLog, dotEnvPaths()...); err != nil {
				return err
			}
			path, err := config.Load(configPath, bootLog)
			if err != nil {
				return err
			}

			// LOG_LEVEL and LOG_FORMAT may have come from a file.
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)
			cmd.SetContext(ctx)

			audit.LogCommandStart(ctx, log, cmd.Name(), path)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.docrag/config.yaml)")
	root.PersistentFlags().StringVar(&envPath, "env-file", "", "Path to a .env file (default: ./.env)")

	root.AddCommand(
		NewIngestCmd(),
		NewAskCmd(),
		NewFollowUpCmd(),
		NewCollectionsCmd(),
		NewServeCmd(),
		NewVersionCmd(),
	)

	return root
}

func dotEnvPaths() []string {
	if envPath != "" {
		return []string{envPath}
	}
	return nil
}

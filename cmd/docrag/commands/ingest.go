package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/54b3r/docrag/internal/ingestion"
	"github.com/54b3r/docrag/internal/rag"
	"github.com/54b3r/docrag/internal/source"
)

// NewIngestCmd constructs the `docrag ingest` command, which loads documents,
// splits them into chunks, embeds them, and stores the vectors.
func NewIngestCmd() *cobra.Command {
	var (
		pdfs, urls, files []string
		collection        string
		idMode            string
		metric            string
		batchSize         int
		chunks            chunkFlags
	)

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest PDFs, web pages, and text files into a collection",
		Long: `Load documents, split them into chunks, embed every chunk, and upsert the
vectors into a vector store collection. Nothing is written until every chunk
has been embedded.

Point IDs continue from the collection's current size by default
(--id-mode append). --id-mode replace numbers chunks from 0 and overwrites
earlier points with the same IDs.

Relevant environment variables:
  VECTOR_STORE         qdrant, pgvector, or memory (default: qdrant)
  EMBEDDING_PROVIDER   ollama, openai, azure (default: MODEL_PROVIDER)
  DOCRAG_COLLECTION    Default collection (default: documents)
  CHUNK_SIZE / CHUNK_OVERLAP / CHUNK_SEPARATOR / CHUNK_STRATEGY

Examples:
  docrag ingest --pdf handbook.pdf --collection handbook
  docrag ingest --url https://example.com/faq --file notes.txt
  docrag ingest --pdf a.pdf --chunk-size 500 --chunk-overlap 50 --strategy recursive`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if len(pdfs)+len(urls)+len(files) == 0 {
				return fmt.Errorf("ingest: %w: at least one --pdf, --url, or --file is required", rag.ErrConfiguration)
			}
			chunks.sepSet = cmd.Flags().Changed("separator")

			rt, err := openRuntime(ctx, true)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer rt.Close()

			splitter, err := rt.newSplitter(chunks)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			cfg, err := rt.ingestConfig(collection, idMode, metric, batchSize)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			emb, err := rt.newEmbedder()
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			pipeline, err := ingestion.NewPipeline(emb, rt.store, splitter, cfg)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			loader := source.NewLoader(nil)
			var docs []rag.Document
			for _, p := range pdfs {
				doc, err := loader.LoadPDF(ctx, p)
				if err != nil {
					return fmt.Errorf("ingest: %w", err)
				}
				docs = append(docs, doc)
			}
			for _, u := range urls {
				doc, err := loader.LoadWeb(ctx, u)
				if err != nil {
					return fmt.Errorf("ingest: %w", err)
				}
				docs = append(docs, doc)
			}
			for _, f := range files {
				doc, err := loader.LoadText(ctx, f)
				if err != nil {
					return fmt.Errorf("ingest: %w", err)
				}
				docs = append(docs, doc)
			}

			rt.log.Info("ingest: starting",
				slog.Int("documents", len(docs)),
				slog.String("collection", cfg.Collection),
				slog.String("id_mode", string(cfg.IDMode)),
			)
			report, err := pipeline.Ingest(ctx, docs, func(msg string) {
				rt.log.Info("ingest: " + msg)
			})
			if report != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "collection %s: %d documents, %d chunks, %d stored, %d not stored\n",
					report.Collection, report.Documents, report.Chunks, report.Stored, report.NotStored)
			}
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&pdfs, "pdf", nil, "PDF file to ingest (repeatable)")
	cmd.Flags().StringArrayVarP(&urls, "url", "u", nil, "Web page to ingest (repeatable)")
	cmd.Flags().StringArrayVarP(&files, "file", "f", nil, "Plain-text file to ingest (repeatable)")
	cmd.Flags().StringVarP(&collection, "collection", "c", "", "Target collection (default: DOCRAG_COLLECTION)")
	cmd.Flags().StringVar(&idMode, "id-mode", "", "Point ID assignment: append or replace (default: append)")
	cmd.Flags().StringVar(&metric, "metric", "", "Distance metric for a new collection: cosine, euclidean, dot")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "Chunks per embed/upsert call (default: 64)")
	cmd.Flags().IntVar(&chunks.size, "chunk-size", 0, "Maximum chunk length in characters (default: 1000)")
	cmd.Flags().IntVar(&chunks.overlap, "chunk-overlap", -1, "Characters shared between consecutive chunks (default: 100)")
	cmd.Flags().StringVar(&chunks.separator, "separator", "", `Split separator; escapes like "\n\n" are honoured (default: "\n")`)
	cmd.Flags().StringVar(&chunks.strategy, "strategy", "", "Splitting strategy: separator or recursive")

	return cmd
}

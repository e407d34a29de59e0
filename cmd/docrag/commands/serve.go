package commands

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/54b3r/docrag/internal/embedder"
	"github.com/54b3r/docrag/internal/ingestion"
	"github.com/54b3r/docrag/internal/provider"
	"github.com/54b3r/docrag/internal/server"
	"github.com/54b3r/docrag/internal/source"
	"github.com/54b3r/docrag/internal/tracing"
	"github.com/54b3r/docrag/internal/vectorstore"
	"github.com/54b3r/docrag/internal/version"
)

// NewServeCmd constructs the `docrag serve` command, which starts the HTTP API.
func NewServeCmd() *cobra.Command {
	var host string
	var port int
	var noIngest bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the docrag HTTP API",
		Long: `Start the docrag HTTP API.

Routes:
  POST /api/ask          answer a question
  POST /api/ingest       ingest file paths or URLs into a collection
  GET  /api/collections  list collections
  GET  /api/health       liveness
  GET  /api/ready        readiness (probes the vector store and model backend)
  GET  /metrics          Prometheus metrics

Examples:
  docrag serve
  docrag serve --port 9090
  VECTOR_STORE=pgvector PGVECTOR_DSN=postgres://... docrag serve`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt, err := openRuntime(ctx, true)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer rt.Close()
			rt.log.Info("serve starting", slog.String("version", version.String()))

			// Langfuse tracing is opt-in and a no-op without keys.
			flush := tracing.Setup(rt.log)
			defer flush()

			svc, err := rt.newQueryService(ctx)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			cfg := &server.Config{
				Host:      firstNonEmpty(host, rt.app.Host),
				Port:      firstPositive(port, rt.app.Port),
				Logger:    rt.log,
				Pingers:   buildPingers(rt),
				RateLimit: rt.app.RateLimit,
				RateBurst: rt.app.RateBurst,
				Query:     svc,
				Store:     rt.store,

				IngestRateLimit: rt.app.IngestRateLimit,
				IngestRateBurst: rt.app.IngestRateBurst,
				Refs: source.RefPolicy{
					Root:              rt.app.IngestRoot,
					AllowPrivateHosts: rt.app.IngestAllowPrivateURLs,
				},
			}
			if !noIngest {
				ing, err := buildIngestService(rt)
				if err != nil {
					return fmt.Errorf("serve: %w", err)
				}
				cfg.Ingest = ing
			}

			srv, err := server.New(cfg)
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}
			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Host address to bind to (default: DOCRAG_HOST or 127.0.0.1)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "TCP port to listen on (default: DOCRAG_PORT or 8080)")
	cmd.Flags().BoolVar(&noIngest, "no-ingest", false, "Disable POST /api/ingest")

	return cmd
}

// buildIngestService wires the ingestion service used by POST /api/ingest.
// Chunking follows CHUNK_* settings.
func buildIngestService(rt *runtime) (*ingestion.Service, error) {
	splitter, err := rt.newSplitter(chunkFlags{overlap: -1})
	if err != nil {
		return nil, err
	}
	cfg, err := rt.ingestConfig("", "", "", 0)
	if err != nil {
		return nil, err
	}
	emb, err := rt.newEmbedder()
	if err != nil {
		return nil, err
	}
	return ingestion.NewService(source.NewLoader(nil), emb, rt.store, splitter, cfg)
}

// buildPingers returns the readiness probes: the vector store, plus the
// Ollama endpoints for chat and embeddings when those backends are local.
// Cloud providers are not probed since every probe would cost a request.
func buildPingers(rt *runtime) []server.Pinger {
	var pingers []server.Pinger
	if p, ok := rt.store.(vectorstore.Pinger); ok {
		pingers = append(pingers, server.NewStorePinger(string(rt.storeCfg.Backend), p))
	}

	client := &http.Client{Timeout: 5 * time.Second}
	seen := map[string]bool{}
	addOllama := func(name, host string) {
		url := strings.TrimRight(host, "/") + "/api/tags"
		if seen[url] {
			return
		}
		seen[url] = true
		pingers = append(pingers, server.NewHTTPPinger(name, url, client))
	}
	if pc := provider.ConfigFromEnv(); pc.Backend == provider.BackendOllama {
		addOllama("ollama", pc.Ollama.Host)
	}
	if embedder.Backend() == "ollama" {
		host := os.Getenv("EMBEDDING_ENDPOINT")
		if host == "" {
			host = provider.ConfigFromEnv().Ollama.Host
		}
		addOllama("ollama-embeddings", host)
	}
	return pingers
}


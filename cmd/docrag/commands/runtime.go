package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/54b3r/docrag/internal/chunker"
	"github.com/54b3r/docrag/internal/config"
	"github.com/54b3r/docrag/internal/embedder"
	"github.com/54b3r/docrag/internal/ingestion"
	"github.com/54b3r/docrag/internal/logging"
	"github.com/54b3r/docrag/internal/provider"
	"github.com/54b3r/docrag/internal/query"
	"github.com/54b3r/docrag/internal/rag"
	"github.com/54b3r/docrag/internal/store"
	"github.com/54b3r/docrag/internal/vectorstore"
)

// runtime holds the process-wide dependencies. The vector store is opened
// once here and injected into every component.
type runtime struct {
	app      *config.App
	log      *slog.Logger
	store    rag.VectorStore
	storeCfg vectorstore.Config
	history  *store.SQLiteStore
	closers  []func()
}

// openRuntime resolves app settings and opens the vector store. withHistory
// also opens the SQLite transcript and ledger store unless disabled.
func openRuntime(ctx context.Context, withHistory bool) (*runtime, error) {
	log := logging.FromContext(ctx)
	app, err := config.AppFromEnv()
	if err != nil {
		return nil, err
	}

	rt := &runtime{app: app, log: log, storeCfg: vectorstore.ConfigFromEnv()}
	vs, err := vectorstore.Open(ctx, rt.storeCfg)
	if err != nil {
		return nil, err
	}
	rt.store = vs
	rt.closers = append(rt.closers, func() { _ = vs.Close() })
	log.Info("vectorstore: opened", slog.String("backend", string(rt.storeCfg.Backend)))

	if withHistory {
		rt.history = openHistory(app, log)
		if rt.history != nil {
			h := rt.history
			rt.closers = append(rt.closers, func() { _ = h.Close() })
		}
	}
	return rt, nil
}

// Close releases everything openRuntime acquired, newest first.
func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
}

// openHistory opens the SQLite store. DOCRAG_HISTORY_DB overrides the default
// path (~/.docrag/history.db); "disabled" turns it off. Failures disable
// history with a warning instead of aborting the command.
func openHistory(app *config.App, log *slog.Logger) *store.SQLiteStore {
	if app.HistoryDisabled() {
		log.Info("history: disabled via DOCRAG_HISTORY_DB=disabled")
		return nil
	}
	dbPath := app.HistoryDB
	if dbPath == "" {
		p, err := store.DefaultDBPath()
		if err != nil {
			log.Warn("history: could not resolve default DB path, disabling", slog.Any("error", err))
			return nil
		}
		dbPath = p
	}
	hs, err := store.Open(dbPath)
	if err != nil {
		log.Warn("history: failed to open store, disabling", slog.Any("error", err))
		return nil
	}
	log.Info("history: store opened", slog.String("path", dbPath))
	return hs
}

// newEmbedder runs the embedding preflight and builds the embedder.
func (rt *runtime) newEmbedder() (rag.Embedder, error) {
	if err := embedder.ValidateConfig(rt.log); err != nil {
		return nil, err
	}
	emb, err := embedder.NewFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}
	rt.log.Info("embedder initialised", slog.String("provider", embedder.Backend()))
	return emb, nil
}

// newQueryService builds the query service with a completer from the
// environment.
func (rt *runtime) newQueryService(ctx context.Context) (*query.Service, error) {
	emb, err := rt.newEmbedder()
	if err != nil {
		return nil, err
	}
	completer, err := provider.NewCompleterFromEnv(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise model provider: %w", err)
	}
	rt.log.Info("provider initialised", slog.String("model", completer.Name()))

	cfg := &query.Config{
		Embedder:         emb,
		Store:            rt.store,
		Completer:        completer,
		Collection:       rt.app.Collection,
		TopK:             rt.app.TopK,
		HistoryTurns:     rt.app.HistoryTurns,
		MaxContextTokens: rt.app.MaxContextTokens,
	}
	if rt.history != nil {
		cfg.Transcript = rt.history
	}
	return query.New(cfg)
}

// chunkFlags are the splitter overrides shared by ingest and serve.
type chunkFlags struct {
	size      int
	overlap   int
	separator string
	strategy  string
	sepSet    bool
}

// newSplitter merges flag overrides over app settings over chunker defaults.
func (rt *runtime) newSplitter(f chunkFlags) (*chunker.Splitter, error) {
	cfg := chunker.Config{
		Size:      firstPositive(f.size, rt.app.ChunkSize, chunker.DefaultChunkSize),
		Overlap:   firstNonNegative(f.overlap, rt.app.ChunkOverlap, chunker.DefaultChunkOverlap),
		Separator: chunker.DefaultSeparator,
		Strategy:  chunker.Strategy(firstNonEmpty(f.strategy, rt.app.ChunkStrategy)),
	}
	switch {
	case f.sepSet:
		cfg.Separator = unescape(f.separator)
	case rt.app.ChunkSeparator != "":
		cfg.Separator = unescape(rt.app.ChunkSeparator)
	}
	return chunker.New(cfg)
}

// ingestConfig builds the pipeline config from app settings and flag overrides.
func (rt *runtime) ingestConfig(collection, idMode, metric string, batchSize int) (*ingestion.Config, error) {
	mode, err := ingestion.ParseIDMode(firstNonEmpty(idMode, rt.app.IDMode))
	if err != nil {
		return nil, err
	}
	m, err := rag.ParseMetric(firstNonEmpty(metric, rt.app.Metric))
	if err != nil {
		return nil, err
	}
	cfg := &ingestion.Config{
		Collection: firstNonEmpty(collection, rt.app.Collection),
		Metric:     m,
		BatchSize:  firstPositive(batchSize, rt.app.BatchSize, ingestion.DefaultBatchSize),
		IDMode:     mode,
	}
	if rt.history != nil {
		cfg.Ledger = rt.history
	}
	return cfg, nil
}

func firstPositive(vals ...int) int {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}

// firstNonNegative treats -1 as "unset" for flags whose zero value is valid.
func firstNonNegative(flag, app, def int) int {
	if flag >= 0 {
		return flag
	}
	if app > 0 {
		return app
	}
	return def
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// unescape lets separators like "\n\n" be passed literally on the command
// line or in env vars.
func unescape(s string) string {
	r := []rune(s)
	out := make([]rune, 0, len(r))
	for i := 0; i < len(r); i++ {
		if r[i] == '\\' && i+1 < len(r) {
			switch r[i+1] {
			case 'n':
				out = append(out, '\n')
				i++
				continue
			case 't':
				out = append(out, '\t')
				i++
				continue
			case '\\':
				out = append(out, '\\')
				i++
				continue
			}
		}
		out = append(out, r[i])
	}
	return string(out)
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/54b3r/docrag/internal/rag"
)

// Defaults for the docrag-level settings.
const (
	DefaultCollection = "documents"
	DefaultHost       = "127.0.0.1"
	DefaultPort       = 8080
	DefaultRateLimit  = 5.0
	DefaultRateBurst  = 10
	// Ingest embeds whole documents per request, so its budget is smaller.
	DefaultIngestRateLimit = 0.2
	DefaultIngestRateBurst = 2
)

// App holds the docrag-level settings resolved from the environment after
// Load and LoadDotEnv have run. Provider, embedder, and vector store settings
// are read by their own packages.
type App struct {
	Collection       string
	Metric           string
	BatchSize        int
	IDMode           string
	ChunkSize        int
	ChunkOverlap     int
	ChunkSeparator   string
	ChunkStrategy    string
	TopK             int
	HistoryTurns     int
	MaxContextTokens int
	Host             string
	Port             int
	RateLimit        float64
	RateBurst        int
	IngestRateLimit  float64
	IngestRateBurst  int
	// IngestRoot confines local refs sent to POST /api/ingest. Empty allows
	// URLs only.
	IngestRoot string
	// IngestAllowPrivateURLs lets POST /api/ingest fetch loopback and
	// private-network hosts.
	IngestAllowPrivateURLs bool
	// HistoryDB is the SQLite path. "" selects the default location and
	// "disabled" turns persistence off.
	HistoryDB string
}

// HistoryDisabled reports whether transcript and ledger persistence is off.
func (a *App) HistoryDisabled() bool {
	return strings.EqualFold(a.HistoryDB, "disabled")
}

// Addr returns host:port for the HTTP server.
func (a *App) Addr() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

// AppFromEnv reads the DOCRAG_* and CHUNK_* variables. Malformed numbers are
// reported as rag.ErrConfiguration naming the variable. Zero values mean
// "use the consuming package's default".
func AppFromEnv() (*App, error) {
	a := &App{
		Collection:     getEnvOrDefault("DOCRAG_COLLECTION", DefaultCollection),
		Metric:         os.Getenv("DOCRAG_METRIC"),
		IDMode:         os.Getenv("DOCRAG_ID_MODE"),
		ChunkSeparator: os.Getenv("CHUNK_SEPARATOR"),
		ChunkStrategy:  os.Getenv("CHUNK_STRATEGY"),
		Host:           getEnvOrDefault("DOCRAG_HOST", DefaultHost),
		HistoryDB:      os.Getenv("DOCRAG_HISTORY_DB"),
		IngestRoot:     os.Getenv("DOCRAG_INGEST_ROOT"),
	}

	ints := []struct {
		key string
		dst *int
		def int
	}{
		{"DOCRAG_BATCH_SIZE", &a.BatchSize, 0},
		{"CHUNK_SIZE", &a.ChunkSize, 0},
		{"CHUNK_OVERLAP", &a.ChunkOverlap, 0},
		{"DOCRAG_TOP_K", &a.TopK, 0},
		{"DOCRAG_HISTORY_TURNS", &a.HistoryTurns, 0},
		{"DOCRAG_MAX_CONTEXT_TOKENS", &a.MaxContextTokens, 0},
		{"DOCRAG_PORT", &a.Port, DefaultPort},
		{"DOCRAG_RATE_BURST", &a.RateBurst, DefaultRateBurst},
		{"DOCRAG_INGEST_RATE_BURST", &a.IngestRateBurst, DefaultIngestRateBurst},
	}
	for _, f := range ints {
		v, err := envInt(f.key, f.def)
		if err != nil {
			return nil, err
		}
		*f.dst = v
	}

	floats := []struct {
		key string
		dst *float64
		def float64
	}{
		{"DOCRAG_RATE_LIMIT", &a.RateLimit, DefaultRateLimit},
		{"DOCRAG_INGEST_RATE_LIMIT", &a.IngestRateLimit, DefaultIngestRateLimit},
	}
	for _, f := range floats {
		v, err := envFloat(f.key, f.def)
		if err != nil {
			return nil, err
		}
		*f.dst = v
	}

	allow, err := envBool("DOCRAG_INGEST_ALLOW_PRIVATE_URLS")
	if err != nil {
		return nil, err
	}
	a.IngestAllowPrivateURLs = allow

	if a.Metric != "" {
		if _, err := rag.ParseMetric(a.Metric); err != nil {
			return nil, fmt.Errorf("config: DOCRAG_METRIC: %w", err)
		}
	}
	return a, nil
}

func getEnvOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("config: %w: %s=%q is not an integer", rag.ErrConfiguration, key, raw)
	}
	return v, nil
}

func envFloat(key string, fallback float64) (float64, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("config: %w: %s=%q is not a number", rag.ErrConfiguration, key, raw)
	}
	return v, nil
}

func envBool(key string) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("config: %w: %s=%q is not a boolean", rag.ErrConfiguration, key, raw)
	}
	return v, nil
}

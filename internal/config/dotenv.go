package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
)

// LoadDotEnv applies KEY=VALUE pairs from the first of paths that exists
// (default ".env"). Variables already set in the process environment are left
// alone. A missing file is not an error.
func LoadDotEnv(log *slog.Logger, paths ...string) (string, error) {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return "", fmt.Errorf("config: stat %s: %w", p, err)
		}
		if err := godotenv.Load(p); err != nil {
			return "", fmt.Errorf("config: load %s: %w", p, err)
		}
		log.Debug("config: loaded .env file", slog.String("path", p))
		return p, nil
	}
	return "", nil
}

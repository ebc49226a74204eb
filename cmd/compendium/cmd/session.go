package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/characterforge/compendium/internal/config"
	"github.com/characterforge/compendium/internal/etl"
	"github.com/characterforge/compendium/internal/metrics"
	"github.com/characterforge/compendium/internal/storage"
	"github.com/characterforge/compendium/internal/storage/memory"
	"github.com/characterforge/compendium/internal/storage/postgres"
	"github.com/characterforge/compendium/internal/storage/sqlite"
	"github.com/rs/zerolog"
)

// session is the environment-derived state shared by the store commands.
type session struct {
	cfg    config.Config
	logger zerolog.Logger
}

func newSession() (session, error) {
	envFile := configPath
	if envFile == "" {
		envFile = ".env"
	}
	if err := config.LoadEnvFile(envFile); err != nil {
		return session{}, err
	}

	cfg, err := config.Load()
	if err != nil {
		return session{}, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}

	metrics.Init(Version, GitCommit, BuildDate)
	return session{cfg: cfg, logger: config.NewLogger(cfg.Logging)}, nil
}

type storeKind int

const (
	memoryStore storeKind = iota + 1
	sqliteStore
	postgresStore
)

func parseStoreURL(databaseURL string) (storeKind, string, error) {
	switch {
	case strings.HasPrefix(databaseURL, "memory://"):
		return memoryStore, "", nil
	case strings.HasPrefix(databaseURL, "sqlite://"):
		path := strings.TrimPrefix(databaseURL, "sqlite://")
		if path == "" {
			return 0, "", &etl.ConfigurationError{Message: "DATABASE_URL: sqlite:// needs a file path"}
		}
		return sqliteStore, path, nil
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return postgresStore, databaseURL, nil
	default:
		scheme, _, _ := strings.Cut(databaseURL, "://")
		return 0, "", &etl.ConfigurationError{
			Message: fmt.Sprintf("DATABASE_URL: unsupported scheme %q (use postgres://, sqlite:// or memory://)", scheme),
		}
	}
}

// openStore connects the store named by DATABASE_URL. SQLite files are
// migrated on open; postgres schemas are managed with the migrate command.
func (s session) openStore(ctx context.Context) (storage.Repository, error) {
	kind, target, err := parseStoreURL(s.cfg.Database.URL)
	if err != nil {
		return nil, err
	}

	switch kind {
	case memoryStore:
		s.logger.Warn().Msg("using the in-memory store; nothing outlives this process")
		return memory.New(), nil
	case sqliteStore:
		store, err := sqlite.Open(target)
		if err != nil {
			return nil, err
		}
		if err := store.Migrate(); err != nil {
			store.Close()
			return nil, err
		}
		return store, nil
	default:
		return postgres.Open(ctx, target, s.cfg.Database.MaxConnections)
	}
}

type poolObserver interface {
	ObservePool()
}

// finish records pool gauges and writes the metrics textfile when one is
// configured. A failed export is logged, not returned.
func (s session) finish(store storage.Repository) {
	if obs, ok := store.(poolObserver); ok {
		obs.ObservePool()
	}
	if path := s.cfg.Metrics.TextfilePath; path != "" {
		if err := metrics.WriteTextfile(path); err != nil {
			s.logger.Error().Err(err).Str("path", path).Msg("metrics export failed")
		}
	}
}

func pipelinePath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return os.Getenv("PIPELINE_FILE")
}

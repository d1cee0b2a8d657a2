// Package app assembles the components shared by the server and worker binaries.
package app

import (
	"context"
	"fmt"

	"github.com/andresuchdata/fetchvault/internal/config"
	"github.com/andresuchdata/fetchvault/internal/fetch"
	"github.com/andresuchdata/fetchvault/internal/pipeline"
	"github.com/andresuchdata/fetchvault/internal/repository"
	"github.com/andresuchdata/fetchvault/internal/repository/memory"
	"github.com/andresuchdata/fetchvault/internal/repository/postgres"
	"github.com/andresuchdata/fetchvault/internal/storage"
	"github.com/rs/zerolog/log"
)

// OpenRepository returns the configured job store and a close func.
func OpenRepository(ctx context.Context, cfg *config.DatabaseConfig) (repository.DownloadRepository, func() error, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		log.Warn().Msg("using in-memory download store; jobs are lost on restart")
		return memory.NewDownloadRepository(), func() error { return nil }, nil
	case "", config.BackendPostgres:
		db, err := postgres.NewDB(cfg)
		if err != nil {
			return nil, nil, err
		}
		if cfg.AutoMigrate {
			if err := db.Migrate(ctx); err != nil {
				db.Close()
				return nil, nil, fmt.Errorf("migrate: %w", err)
			}
			log.Info().Msg("database schema applied")
		}
		return postgres.NewDownloadRepository(db), db.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// NewPipeline wires the fetcher and object store into a pipeline over repo.
func NewPipeline(cfg *config.Config, repo repository.DownloadRepository, store storage.ObjectStorage) *pipeline.Pipeline {
	fetcher := fetch.NewHTTPFetcher(cfg.Pipeline.UserAgent, cfg.Pipeline.FetchTimeout)
	return pipeline.New(repo, fetcher, store, pipeline.Config{MaxBytes: cfg.Pipeline.MaxBytes})
}

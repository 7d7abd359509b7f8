package database

import (
	"context"
	"log/slog"

	"github.com/vedran77/rentals/internal/config"
	"github.com/vedran77/rentals/internal/domain"
	"github.com/vedran77/rentals/internal/repository"
	"github.com/vedran77/rentals/internal/repository/memory"
	postgresrepo "github.com/vedran77/rentals/internal/repository/postgres"
)

// OpenStore returns the document store selected by cfg.StoreDriver and a
// function that releases it. The postgres store is migrated before use.
func OpenStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (repository.DocumentStore, func(), error) {
	if cfg.StoreDriver == "memory" {
		store := memory.NewStore()
		active := make([]any, len(domain.ActiveApplicationStatuses))
		for i, s := range domain.ActiveApplicationStatuses {
			active[i] = s
		}
		store.AddUniqueIndex(cfg.Collections.Applications, []string{"tenant_id", "listing_id"}, repository.In("status", active...))
		store.AddUniqueIndex(cfg.Collections.Users, []string{"email"})
		logger.Warn("Using in-memory document store, data is lost on restart")
		return store, func() {}, nil
	}

	pool, err := Connect(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	if err := Migrate(ctx, pool, cfg.Collections); err != nil {
		pool.Close()
		return nil, nil, err
	}
	logger.Info("Connected to database", "host", cfg.DBHost, "name", cfg.DBName)
	return postgresrepo.NewDocumentStore(pool), pool.Close, nil
}

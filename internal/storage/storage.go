// Package storage selects the reservation store backend from configuration.
package storage

import (
	"context"
	"fmt"

	"olympspa/internal/config"
	"olympspa/internal/database"
	"olympspa/internal/domain"
	"olympspa/internal/storage/postgres"

	"github.com/rs/zerolog"
)

// Store is everything the process needs from a backend.
type Store interface {
	domain.ReservationStore
	domain.SyncTaskStore
	Close() error
}

// Open connects the configured driver. SQLite is the default.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger *zerolog.Logger) (Store, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		store, err := postgres.NewStore(ctx, cfg.Postgres, logger)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return store, nil
	case config.DriverSQLite, "":
		db, err := database.NewDB(cfg.Path, logger)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

var (
	_ Store = (*database.DB)(nil)
	_ Store = (*postgres.Store)(nil)
)

package postgres

import (
	"context"
	"fmt"

	"olympspa/internal/config"
	"olympspa/internal/storage/postgres/migrations"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Store is the Postgres-backed reservation ledger. Overlap exclusion is
// enforced by the reservations_no_overlap constraint, so any number of API
// processes may share one database.
type Store struct {
	pool   *pgxpool.Pool
	logger *zerolog.Logger
}

// NewStore connects to Postgres and applies pending migrations.
func NewStore(ctx context.Context, cfg config.PostgresConfig, logger *zerolog.Logger) (*Store, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConnections > 0 {
		poolCfg.MaxConns = cfg.MaxConnections
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := NewStoreFromPool(pool, logger)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewStoreFromPool wraps an existing pool without running migrations.
func NewStoreFromPool(pool *pgxpool.Pool, logger *zerolog.Logger) *Store {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Store{pool: pool, logger: logger}
}

// Migrate applies pending embedded migrations.
func (s *Store) Migrate(ctx context.Context) error {
	applied, err := migrations.Apply(ctx, s.pool)
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	for _, name := range applied {
		s.logger.Info().Str("migration", name).Msg("Applied migration")
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

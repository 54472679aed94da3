package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"prompt-chaining/backend/internal/config"
)

// Open connects the store selected by cfg.Store.Driver and creates its
// schema.
func Open(ctx context.Context, cfg *config.Config) (Repository, error) {
	switch cfg.Store.Driver {
	case config.DriverPostgres:
		pool, err := openPostgres(ctx, cfg.PostgresDSN())
		if err != nil {
			return nil, err
		}
		store := NewPostgresStore(pool)
		if err := store.Migrate(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		return store, nil

	case config.DriverMongo:
		client, err := ConnectMongo(ctx, cfg.Mongo.URI)
		if err != nil {
			return nil, err
		}
		store := NewMongoStore(client, cfg.Mongo.Database)
		if err := store.Migrate(ctx); err != nil {
			_ = client.Disconnect(ctx)
			return nil, err
		}
		return store, nil

	case config.DriverMemory, "":
		return NewMemoryStore(), nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func openPostgres(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

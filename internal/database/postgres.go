package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens the connection pool backing the fact store.
func Connect(storeURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(storeURL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse store config: %v", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to store: %v", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping store: %v", err)
	}

	return pool, nil
}

package dbpool

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/lilgiftcorner/server/internal/config"
)

const pingTimeout = 5 * time.Second

// SharedPool is the single PostgreSQL pool used when coupons are served from Postgres.
// The coupon repository and the health check share it.
type SharedPool struct {
	db *sql.DB
}

// Open connects to PostgreSQL, verifies the connection and applies pool settings.
func Open(ctx context.Context, connectionString string, poolConfig config.PostgresPoolConfig) (*SharedPool, error) {
	if connectionString == "" {
		return nil, errors.New("postgres connection string is empty")
	}
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}

	pool := &SharedPool{db: db}
	if err := pool.Ping(ctx); err != nil {
		db.Close()
		return nil, err
	}

	config.ApplyPostgresPoolSettings(db, poolConfig)
	return pool, nil
}

// DB returns the underlying *sql.DB for use by repositories.
func (p *SharedPool) DB() *sql.DB {
	return p.db
}

// Ping checks the pool, bounded by a short timeout unless ctx already has one.
func (p *SharedPool) Ping(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, pingTimeout)
		defer cancel()
	}
	if err := p.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Close closes the pool. sql.DB.Close is safe to call more than once.
func (p *SharedPool) Close() error {
	return p.db.Close()
}

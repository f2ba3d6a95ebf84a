// Package rdb is the Relational Gateway collaborator. It opens *sql.DB handles for the
// databases a Storage[T] can use; timeseries and derivation never own a connection
// themselves, only borrow one passed as a call argument. Connections are never
// stashed alongside credentials for later reuse.
package rdb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"

	"github.com/rs/zerolog"

	"github.com/TheWorldAvatar/BaseLib/internal/logger"
)

// PoolConfig bounds a connection pool. Zero values fall back to conservative defaults.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

func (c PoolConfig) withDefaults() PoolConfig {
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 10
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = c.MaxOpenConns / 2
	}
	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = 30 * time.Minute
	}
	if c.ConnMaxIdleTime == 0 {
		c.ConnMaxIdleTime = 5 * time.Minute
	}
	return c
}

func open(ctx context.Context, driver, dsn string, pool PoolConfig, log zerolog.Logger) (*sql.DB, error) {
	pool = pool.withDefaults()

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("rdb: failed to open %s: %w", driver, err)
	}

	db.SetMaxOpenConns(pool.MaxOpenConns)
	db.SetMaxIdleConns(pool.MaxIdleConns)
	db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	db.SetConnMaxIdleTime(pool.ConnMaxIdleTime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("rdb: failed to ping %s: %w", driver, err)
	}

	log.Info().
		Str("driver", driver).
		Int("max_open_conns", pool.MaxOpenConns).
		Int("max_idle_conns", pool.MaxIdleConns).
		Msg("relational connection pool opened")

	return db, nil
}

// OpenPostgres opens a connection pool against a PostgreSQL database at dsn, using
// jackc/pgx's database/sql driver.
func OpenPostgres(ctx context.Context, dsn string, pool PoolConfig) (*sql.DB, error) {
	return open(ctx, "pgx", dsn, pool, logger.Get("rdb.postgres"))
}

// OpenSQLite opens a connection pool against a SQLite database file (or ":memory:").
// SQLite serialises writers internally, so pools are capped at a single open connection
// regardless of the caller's request, avoiding "database is locked" errors under
// concurrent writers.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	db, err := open(ctx, "sqlite3", path, PoolConfig{MaxOpenConns: 1, MaxIdleConns: 1}, logger.Get("rdb.sqlite"))
	if err != nil {
		return nil, err
	}
	return db, nil
}

// OpenDuckDB opens a connection pool against a DuckDB database file (or "" for
// in-memory), applying the memory_limit and threads settings to the fresh connection.
func OpenDuckDB(ctx context.Context, path string, memoryLimit string, threads int) (*sql.DB, error) {
	db, err := open(ctx, "duckdb", path, PoolConfig{}, logger.Get("rdb.duckdb"))
	if err != nil {
		return nil, err
	}

	if memoryLimit != "" {
		if _, err := db.ExecContext(ctx, fmt.Sprintf("SET memory_limit='%s'", memoryLimit)); err != nil {
			db.Close()
			return nil, fmt.Errorf("rdb: failed to set duckdb memory_limit: %w", err)
		}
	}
	if threads > 0 {
		if _, err := db.ExecContext(ctx, fmt.Sprintf("SET threads=%d", threads)); err != nil {
			db.Close()
			return nil, fmt.Errorf("rdb: failed to set duckdb threads: %w", err)
		}
	}
	return db, nil
}

// Package db stores users, sessions, the track catalog and saved cluster
// playlists in PostgreSQL.
package db

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

//go:embed schema.sql
var schema string

// migrationLockID serializes schema setup across processes sharing a database.
const migrationLockID int64 = 0x6d6f6f64

const connectTimeout = 10 * time.Second

// DB is a pgx pool with typed repositories on top.
type DB struct {
	pool *pgxpool.Pool

	users     *UserRepository
	sessions  *SessionRepository
	catalog   *CatalogStore
	playlists *PlaylistRepository
}

// New connects to databaseURL and checks the server is reachable.
func New(ctx context.Context, databaseURL string) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database URL: %w", err)
	}
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("opening pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to %s: %w", cfg.ConnConfig.Host, err)
	}

	return &DB{
		pool:      pool,
		users:     &UserRepository{pool: pool},
		sessions:  &SessionRepository{pool: pool},
		catalog:   &CatalogStore{pool: pool},
		playlists: &PlaylistRepository{pool: pool},
	}, nil
}

// Migrate applies the embedded schema. Every statement is idempotent, and an
// advisory lock keeps concurrent starts from racing.
func (db *DB) Migrate(ctx context.Context) error {
	err := pgx.BeginFunc(ctx, db.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", migrationLockID); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, schema)
		return err
	})
	if err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	return nil
}

func (db *DB) Close() { db.pool.Close() }

func (db *DB) Users() *UserRepository         { return db.users }
func (db *DB) Sessions() *SessionRepository   { return db.sessions }
func (db *DB) Catalog() *CatalogStore         { return db.catalog }
func (db *DB) Playlists() *PlaylistRepository { return db.playlists }

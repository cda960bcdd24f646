package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UserRepository stores signed-in users.
type UserRepository struct {
	pool *pgxpool.Pool
}

// Get returns the user with the given Spotify ID.
func (r *UserRepository) Get(ctx context.Context, id string) (*User, error) {
	rows, _ := r.pool.Query(ctx, `
		SELECT id, display_name, created_at, updated_at, last_analyzed_at
		FROM users
		WHERE id = $1
	`, id)
	user, err := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[User])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user %s: %w", id, err)
	}
	return user, nil
}

// Upsert inserts the user or refreshes their display name, filling in the
// stored timestamps.
func (r *UserRepository) Upsert(ctx context.Context, user *User) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO users (id, display_name)
		VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			updated_at = NOW()
		RETURNING created_at, updated_at, last_analyzed_at
	`, user.ID, user.DisplayName).Scan(&user.CreatedAt, &user.UpdatedAt, &user.LastAnalyzedAt)
	if err != nil {
		return fmt.Errorf("upserting user %s: %w", user.ID, err)
	}
	return nil
}

// MarkAnalyzed records when the user's library was last clustered.
func (r *UserRepository) MarkAnalyzed(ctx context.Context, id string, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users SET last_analyzed_at = $2, updated_at = NOW() WHERE id = $1
	`, id, at)
	if err != nil {
		return fmt.Errorf("marking user %s analyzed: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PlaylistRepository records the playlists generated from clusters.
type PlaylistRepository struct {
	pool *pgxpool.Pool
}

// Create inserts a cluster playlist and its tracks in one transaction.
// A new ID is assigned to p.
func (r *PlaylistRepository) Create(ctx context.Context, p *ClusterPlaylist, trackIDs []string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	p.TrackCount = len(trackIDs)

	query := `
		INSERT INTO cluster_playlists (id, user_id, playlist_id, name, cluster_id, mood, track_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = tx.Exec(ctx, query,
		p.ID,
		p.UserID,
		p.PlaylistID,
		p.Name,
		p.ClusterID,
		p.Mood,
		p.TrackCount,
		p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting cluster playlist: %w", err)
	}

	if len(trackIDs) > 0 {
		positions := make([]int32, len(trackIDs))
		for i := range positions {
			positions[i] = int32(i)
		}
		query = `
			INSERT INTO cluster_playlist_tracks (cluster_playlist_id, track_id, position)
			SELECT $1, * FROM unnest($2::text[], $3::int[])
			ON CONFLICT DO NOTHING
		`
		if _, err := tx.Exec(ctx, query, p.ID, trackIDs, positions); err != nil {
			return fmt.Errorf("inserting cluster playlist tracks: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// ListForUser returns a user's cluster playlists, newest first.
func (r *PlaylistRepository) ListForUser(ctx context.Context, userID string) ([]ClusterPlaylist, error) {
	rows, _ := r.pool.Query(ctx, `
		SELECT id, user_id, playlist_id, name, cluster_id, mood, track_count, created_at
		FROM cluster_playlists
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	playlists, err := pgx.CollectRows(rows, pgx.RowToStructByName[ClusterPlaylist])
	if err != nil {
		return nil, fmt.Errorf("listing cluster playlists for %s: %w", userID, err)
	}
	return playlists, nil
}

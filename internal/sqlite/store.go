// Package sqlite provides a file-backed catalog.Store for single-user installs.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/justestif/go-spotify-mood-map/internal/catalog"
	"github.com/justestif/go-spotify-mood-map/internal/clustering"
)

const schema = `
CREATE TABLE IF NOT EXISTS audio_features (
	track_id         TEXT PRIMARY KEY,
	danceability     REAL,
	energy           REAL,
	valence          REAL,
	tempo            REAL,
	acousticness     REAL,
	instrumentalness REAL,
	liveness         REAL,
	speechiness      REAL,
	loudness         REAL,
	fetched_at       TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS artist_genres (
	artist_id  TEXT PRIMARY KEY,
	genres     TEXT NOT NULL DEFAULT '[]',
	source     TEXT NOT NULL,
	fetched_at TIMESTAMP NOT NULL
);
`

// Store is a catalog.Store backed by a SQLite file.
type Store struct {
	db *sql.DB
}

var _ catalog.Store = (*Store)(nil)

// Open opens (creating if needed) the database at path and migrates it.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal=WAL&_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// placeholders returns "?, ?, ..." with n markers and the ids as arguments.
func placeholders(ids []string) (string, []any) {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", "), args
}

func (s *Store) AudioFeatures(ctx context.Context, trackIDs []string) (map[string]catalog.FeatureEntry, error) {
	out := make(map[string]catalog.FeatureEntry)
	if len(trackIDs) == 0 {
		return out, nil
	}

	in, args := placeholders(trackIDs)
	rows, err := s.db.QueryContext(ctx, `
		SELECT track_id, danceability, energy, valence, tempo, acousticness,
		       instrumentalness, liveness, speechiness, loudness, fetched_at
		FROM audio_features
		WHERE track_id IN (`+in+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audio features: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id string
			e  catalog.FeatureEntry
			f  = &e.Features
		)
		if err := rows.Scan(
			&id,
			&f.Danceability,
			&f.Energy,
			&f.Valence,
			&f.Tempo,
			&f.Acousticness,
			&f.Instrumentalness,
			&f.Liveness,
			&f.Speechiness,
			&f.Loudness,
			&e.FetchedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning audio features: %w", err)
		}
		out[id] = e
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audio features: %w", err)
	}
	return out, nil
}

func (s *Store) SaveAudioFeatures(ctx context.Context, entries map[string]catalog.FeatureEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO audio_features (
			track_id, danceability, energy, valence, tempo, acousticness,
			instrumentalness, liveness, speechiness, loudness, fetched_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing audio features insert: %w", err)
	}
	defer stmt.Close()

	for id, e := range entries {
		args := []any{id}
		for _, col := range clustering.FeatureColumns() {
			args = append(args, e.Features.Get(col))
		}
		args = append(args, e.FetchedAt.UTC())
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("inserting audio features for %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing audio features: %w", err)
	}
	return nil
}

func (s *Store) ArtistGenres(ctx context.Context, artistIDs []string) (map[string]catalog.GenreEntry, error) {
	out := make(map[string]catalog.GenreEntry)
	if len(artistIDs) == 0 {
		return out, nil
	}

	in, args := placeholders(artistIDs)
	rows, err := s.db.QueryContext(ctx, `
		SELECT artist_id, genres, source, fetched_at
		FROM artist_genres
		WHERE artist_id IN (`+in+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying artist genres: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id, raw, source string
			e               catalog.GenreEntry
		)
		if err := rows.Scan(&id, &raw, &source, &e.FetchedAt); err != nil {
			return nil, fmt.Errorf("scanning artist genres: %w", err)
		}
		if err := json.Unmarshal([]byte(raw), &e.Genres); err != nil {
			return nil, fmt.Errorf("decoding genres for %s: %w", id, err)
		}
		if e.Genres == nil {
			e.Genres = []string{}
		}
		e.Source = catalog.GenreSource(source)
		out[id] = e
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating artist genres: %w", err)
	}
	return out, nil
}

func (s *Store) SaveArtistGenres(ctx context.Context, entries map[string]catalog.GenreEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO artist_genres (artist_id, genres, source, fetched_at)
		VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing artist genres insert: %w", err)
	}
	defer stmt.Close()

	for id, e := range entries {
		genres := e.Genres
		if genres == nil {
			genres = []string{}
		}
		raw, err := json.Marshal(genres)
		if err != nil {
			return fmt.Errorf("encoding genres for %s: %w", id, err)
		}
		if _, err := stmt.ExecContext(ctx, id, string(raw), string(e.Source), e.FetchedAt.UTC()); err != nil {
			return fmt.Errorf("inserting artist genres for %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing artist genres: %w", err)
	}
	return nil
}

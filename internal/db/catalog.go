package db

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/justestif/go-spotify-mood-map/internal/catalog"
	"github.com/justestif/go-spotify-mood-map/internal/clustering"
)

// CatalogStore persists cached audio features and artist genres.
// It implements catalog.Store.
type CatalogStore struct {
	pool *pgxpool.Pool
}

var _ catalog.Store = (*CatalogStore)(nil)

// AudioFeatures returns cached features for the given track IDs.
func (s *CatalogStore) AudioFeatures(ctx context.Context, trackIDs []string) (map[string]catalog.FeatureEntry, error) {
	out := make(map[string]catalog.FeatureEntry)
	if len(trackIDs) == 0 {
		return out, nil
	}

	query := `
		SELECT track_id, danceability, energy, valence, tempo, acousticness,
		       instrumentalness, liveness, speechiness, loudness, fetched_at
		FROM audio_features
		WHERE track_id = ANY($1)
	`
	rows, err := s.pool.Query(ctx, query, trackIDs)
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

// featureArrays holds one array per audio_features column for unnest.
type featureArrays struct {
	ids       []string
	columns   [][]*float64 // indexed like clustering.FeatureColumns
	fetchedAt []time.Time
}

// toFeatureArrays pivots entries into column arrays in track ID order.
func toFeatureArrays(entries map[string]catalog.FeatureEntry) featureArrays {
	ids := make([]string, 0, len(entries))
	for id := range entries {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	names := clustering.FeatureColumns()
	a := featureArrays{
		ids:       ids,
		columns:   make([][]*float64, len(names)),
		fetchedAt: make([]time.Time, len(ids)),
	}
	for c := range names {
		a.columns[c] = make([]*float64, len(ids))
	}
	for i, id := range ids {
		e := entries[id]
		for c, name := range names {
			a.columns[c][i] = e.Features.Get(name)
		}
		a.fetchedAt[i] = e.FetchedAt
	}
	return a
}

// SaveAudioFeatures upserts features using a single unnest insert.
func (s *CatalogStore) SaveAudioFeatures(ctx context.Context, entries map[string]catalog.FeatureEntry) error {
	if len(entries) == 0 {
		return nil
	}

	a := toFeatureArrays(entries)
	query := `
		INSERT INTO audio_features (
			track_id, danceability, energy, valence, tempo, acousticness,
			instrumentalness, liveness, speechiness, loudness, fetched_at
		)
		SELECT * FROM unnest(
			$1::text[], $2::float8[], $3::float8[], $4::float8[], $5::float8[], $6::float8[],
			$7::float8[], $8::float8[], $9::float8[], $10::float8[], $11::timestamptz[]
		)
		ON CONFLICT (track_id) DO UPDATE SET
			danceability = EXCLUDED.danceability,
			energy = EXCLUDED.energy,
			valence = EXCLUDED.valence,
			tempo = EXCLUDED.tempo,
			acousticness = EXCLUDED.acousticness,
			instrumentalness = EXCLUDED.instrumentalness,
			liveness = EXCLUDED.liveness,
			speechiness = EXCLUDED.speechiness,
			loudness = EXCLUDED.loudness,
			fetched_at = EXCLUDED.fetched_at
	`
	args := []any{a.ids}
	for _, col := range a.columns {
		args = append(args, col)
	}
	args = append(args, a.fetchedAt)

	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("upserting audio features: %w", err)
	}
	return nil
}

// ArtistGenres returns cached genres for the given artist IDs.
func (s *CatalogStore) ArtistGenres(ctx context.Context, artistIDs []string) (map[string]catalog.GenreEntry, error) {
	out := make(map[string]catalog.GenreEntry)
	if len(artistIDs) == 0 {
		return out, nil
	}

	query := `
		SELECT artist_id, genres, source, fetched_at
		FROM artist_genres
		WHERE artist_id = ANY($1)
	`
	rows, err := s.pool.Query(ctx, query, artistIDs)
	if err != nil {
		return nil, fmt.Errorf("querying artist genres: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id     string
			source string
			e      catalog.GenreEntry
		)
		if err := rows.Scan(&id, &e.Genres, &source, &e.FetchedAt); err != nil {
			return nil, fmt.Errorf("scanning artist genres: %w", err)
		}
		e.Source = catalog.GenreSource(source)
		if e.Genres == nil {
			e.Genres = []string{}
		}
		out[id] = e
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating artist genres: %w", err)
	}
	return out, nil
}

// SaveArtistGenres upserts genre lists. Genre lists vary in length, so each
// row is queued separately and sent in one batch.
func (s *CatalogStore) SaveArtistGenres(ctx context.Context, entries map[string]catalog.GenreEntry) error {
	if len(entries) == 0 {
		return nil
	}

	query := `
		INSERT INTO artist_genres (artist_id, genres, source, fetched_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (artist_id) DO UPDATE SET
			genres = EXCLUDED.genres,
			source = EXCLUDED.source,
			fetched_at = EXCLUDED.fetched_at
	`
	batch := &pgx.Batch{}
	for id, e := range entries {
		genres := e.Genres
		if genres == nil {
			genres = []string{}
		}
		batch.Queue(query, id, genres, string(e.Source), e.FetchedAt)
	}

	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upserting artist genres: %w", err)
	}
	return nil
}

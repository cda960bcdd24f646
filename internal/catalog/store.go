// Package catalog caches per-track audio features and per-artist genres, and
// enriches feature tables from the cache, Spotify and Last.fm.
package catalog

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/justestif/go-spotify-mood-map/internal/clustering"
)

// CacheTTL is the duration after which cached entries are considered stale.
const CacheTTL = 30 * 24 * time.Hour // 30 days

// GenreSource indicates where an artist's genres came from.
type GenreSource string

const (
	// SourceSpotify means genres came from the Spotify artist object.
	SourceSpotify GenreSource = "spotify"
	// SourceLastFM means genres came from Last.fm artist top tags (fallback).
	SourceLastFM GenreSource = "lastfm"
	// SourceNone means no genres were found.
	SourceNone GenreSource = "none"
)

// FeatureEntry is a cached set of audio features for one track.
type FeatureEntry struct {
	Features  clustering.AudioFeatures
	FetchedAt time.Time
}

// GenreEntry is a cached genre list for one artist.
type GenreEntry struct {
	Genres    []string
	Source    GenreSource
	FetchedAt time.Time
}

// Store persists catalogue data. Lookups return only the IDs they know about.
type Store interface {
	AudioFeatures(ctx context.Context, trackIDs []string) (map[string]FeatureEntry, error)
	SaveAudioFeatures(ctx context.Context, entries map[string]FeatureEntry) error
	ArtistGenres(ctx context.Context, artistIDs []string) (map[string]GenreEntry, error)
	SaveArtistGenres(ctx context.Context, entries map[string]GenreEntry) error
}

// Fresh reports whether an entry fetched at fetchedAt is still valid at now.
func Fresh(fetchedAt, now time.Time) bool {
	return !fetchedAt.Before(now.Add(-CacheTTL))
}

// MemoryStore is an in-process Store. It is the default when no database is
// configured and is safe for concurrent use.
type MemoryStore struct {
	mu       sync.RWMutex
	features map[string]FeatureEntry
	genres   map[string]GenreEntry
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		features: make(map[string]FeatureEntry),
		genres:   make(map[string]GenreEntry),
	}
}

func (m *MemoryStore) AudioFeatures(_ context.Context, trackIDs []string) (map[string]FeatureEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]FeatureEntry)
	for _, id := range trackIDs {
		if e, ok := m.features[id]; ok {
			out[id] = e
		}
	}
	return out, nil
}

func (m *MemoryStore) SaveAudioFeatures(_ context.Context, entries map[string]FeatureEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	maps.Copy(m.features, entries)
	return nil
}

func (m *MemoryStore) ArtistGenres(_ context.Context, artistIDs []string) (map[string]GenreEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]GenreEntry)
	for _, id := range artistIDs {
		if e, ok := m.genres[id]; ok {
			e.Genres = slices.Clone(e.Genres)
			out[id] = e
		}
	}
	return out, nil
}

func (m *MemoryStore) SaveArtistGenres(_ context.Context, entries map[string]GenreEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, e := range entries {
		e.Genres = slices.Clone(e.Genres)
		m.genres[id] = e
	}
	return nil
}

package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/justestif/go-spotify-mood-map/internal/clustering"
)

// Spotify is the subset of the Spotify client the catalogue reads from.
type Spotify interface {
	AudioFeatures(ctx context.Context, trackIDs []string) (map[string]clustering.AudioFeatures, error)
	ArtistGenres(ctx context.Context, artistIDs []string) (map[string][]string, error)
}

// Service fills tracks with audio features and genres. It checks the store
// first, falls back to Spotify for misses and stale entries, and persists what
// it fetched.
type Service struct {
	store         Store
	resolver      *GenreResolver
	fetchFeatures bool
	now           func() time.Time
	logger        *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithFallback enables Last.fm genre lookups for artists Spotify has no genres for.
func WithFallback(r *GenreResolver) Option {
	return func(s *Service) { s.resolver = r }
}

// WithFeatureFetching enables fetching audio features from Spotify on cache misses.
func WithFeatureFetching(enabled bool) Option {
	return func(s *Service) { s.fetchFeatures = enabled }
}

// WithClock overrides the time source used for cache freshness.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService creates a catalogue service over store.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enrich applies audio features and genres to tracks in place.
func (s *Service) Enrich(ctx context.Context, api Spotify, tracks []clustering.Track) error {
	if err := s.ApplyAudioFeatures(ctx, api, tracks); err != nil {
		return err
	}
	return s.ApplyGenres(ctx, api, tracks)
}

// ApplyAudioFeatures sets the features of every track the catalogue knows.
// Tracks with no known features are left untouched, which later surfaces as
// missing feature columns. A failed Spotify fetch is logged, not returned.
func (s *Service) ApplyAudioFeatures(ctx context.Context, api Spotify, tracks []clustering.Track) error {
	ids := uniqueIDs(tracks, func(t clustering.Track) string { return t.ID })
	if len(ids) == 0 {
		return nil
	}

	cached, err := s.store.AudioFeatures(ctx, ids)
	if err != nil {
		return fmt.Errorf("getting cached audio features: %w", err)
	}

	now := s.now()
	known := make(map[string]clustering.AudioFeatures, len(ids))
	var misses []string
	for _, id := range ids {
		if e, ok := cached[id]; ok && Fresh(e.FetchedAt, now) {
			known[id] = e.Features
			continue
		}
		misses = append(misses, id)
	}

	if len(misses) > 0 && s.fetchFeatures && api != nil {
		fetched, err := api.AudioFeatures(ctx, misses)
		if err != nil {
			s.logger.Warn("audio features unavailable", "tracks", len(misses), "error", err)
		} else {
			entries := make(map[string]FeatureEntry, len(fetched))
			for id, f := range fetched {
				known[id] = f
				entries[id] = FeatureEntry{Features: f, FetchedAt: now}
			}
			if err := s.store.SaveAudioFeatures(ctx, entries); err != nil {
				return fmt.Errorf("persisting audio features: %w", err)
			}
		}
	}

	for i := range tracks {
		if f, ok := known[tracks[i].ID]; ok {
			tracks[i].Features = f
		}
	}

	s.logger.Debug("applied audio features", "tracks", len(ids), "known", len(known), "cached", len(ids)-len(misses))
	return nil
}

// ApplyGenres sets each track's genres from its primary artist.
func (s *Service) ApplyGenres(ctx context.Context, api Spotify, tracks []clustering.Track) error {
	ids := uniqueIDs(tracks, func(t clustering.Track) string { return t.ArtistID })
	if len(ids) == 0 {
		return nil
	}

	cached, err := s.store.ArtistGenres(ctx, ids)
	if err != nil {
		return fmt.Errorf("getting cached genres: %w", err)
	}

	now := s.now()
	genres := make(map[string][]string, len(ids))
	var misses []string
	for _, id := range ids {
		if e, ok := cached[id]; ok && Fresh(e.FetchedAt, now) {
			genres[id] = e.Genres
			continue
		}
		misses = append(misses, id)
	}

	if len(misses) > 0 && api != nil {
		entries, err := s.fetchGenres(ctx, api, misses, artistNames(tracks), now)
		if err != nil {
			return err
		}
		for id, e := range entries {
			genres[id] = e.Genres
		}
	}

	for i := range tracks {
		if g, ok := genres[tracks[i].ArtistID]; ok {
			tracks[i].Genres = slices.Clone(g)
		}
	}
	return nil
}

// fetchGenres asks Spotify for the missing artists, falls back to Last.fm for
// artists without genres and persists the outcome, including empty results.
func (s *Service) fetchGenres(ctx context.Context, api Spotify, ids []string, names map[string]string, now time.Time) (map[string]GenreEntry, error) {
	fetched, err := api.ArtistGenres(ctx, ids)
	if err != nil {
		s.logger.Warn("artist genres unavailable", "artists", len(ids), "error", err)
		return nil, nil
	}

	entries := make(map[string]GenreEntry, len(ids))
	var bare []Artist
	for _, id := range ids {
		if g := fetched[id]; len(g) > 0 {
			entries[id] = GenreEntry{Genres: g, Source: SourceSpotify, FetchedAt: now}
			continue
		}
		entries[id] = GenreEntry{Genres: []string{}, Source: SourceNone, FetchedAt: now}
		if names[id] != "" {
			bare = append(bare, Artist{ID: id, Name: names[id]})
		}
	}

	if len(bare) > 0 && s.resolver != nil {
		resolved, err := s.resolver.Resolve(ctx, bare)
		if err != nil {
			return nil, fmt.Errorf("resolving fallback genres: %w", err)
		}
		for id, g := range resolved {
			if len(g) > 0 {
				entries[id] = GenreEntry{Genres: g, Source: SourceLastFM, FetchedAt: now}
			}
		}
	}

	if err := s.store.SaveArtistGenres(ctx, entries); err != nil {
		return nil, fmt.Errorf("persisting genres: %w", err)
	}
	return entries, nil
}

// artistNames maps each primary artist ID to its display name.
func artistNames(tracks []clustering.Track) map[string]string {
	names := make(map[string]string, len(tracks))
	for _, t := range tracks {
		if t.ArtistID == "" {
			continue
		}
		if _, ok := names[t.ArtistID]; !ok {
			name, _, _ := strings.Cut(t.Artist, ", ")
			names[t.ArtistID] = name
		}
	}
	return names
}

func uniqueIDs(tracks []clustering.Track, key func(clustering.Track) string) []string {
	seen := make(map[string]bool, len(tracks))
	var ids []string
	for _, t := range tracks {
		id := key(t)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}

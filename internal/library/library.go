// Package library builds the feature table for a user from their Spotify
// listening history or from one of their playlists.
package library

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/justestif/go-spotify-mood-map/internal/catalog"
	"github.com/justestif/go-spotify-mood-map/internal/clustering"
	"github.com/justestif/go-spotify-mood-map/internal/spotify"
)

// Defaults for the listening history request.
const (
	DefaultHistoryLimit = 50
	DefaultTopRange     = spotify.MediumTerm
)

// Source is the part of the Spotify client the library reads from.
type Source interface {
	catalog.Spotify
	RecentlyPlayed(ctx context.Context, limit int) ([]clustering.Track, error)
	TopTracks(ctx context.Context, limit int, timeRange spotify.TimeRange) ([]clustering.Track, error)
	PlaylistTracks(ctx context.Context, playlistID string) ([]clustering.Track, error)
}

// Service assembles feature tables.
type Service struct {
	catalog  *catalog.Service
	limit    int
	topRange spotify.TimeRange
	location *time.Location
	logger   *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithHistoryLimit sets how many recent and top tracks are requested.
func WithHistoryLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.limit = n
		}
	}
}

// WithTopRange sets the time range used for top tracks.
func WithTopRange(r spotify.TimeRange) Option {
	return func(s *Service) { s.topRange = r }
}

// WithLocation sets the time zone used for the listening hour histogram.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.location = loc
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a library service that enriches tracks through cat.
func New(cat *catalog.Service, opts ...Option) *Service {
	s := &Service{
		catalog:  cat,
		limit:    DefaultHistoryLimit,
		topRange: DefaultTopRange,
		location: time.UTC,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// UserData builds a table from the user's recently played and top tracks and
// describes it.
func (s *Service) UserData(ctx context.Context, src Source) (*clustering.Table, Metadata, error) {
	var recent, top []clustering.Track

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		recent, err = src.RecentlyPlayed(gctx, s.limit)
		if err != nil {
			return fmt.Errorf("fetching recently played: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		top, err = src.TopTracks(gctx, s.limit, s.topRange)
		if err != nil {
			return fmt.Errorf("fetching top tracks: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, Metadata{}, err
	}
	s.logger.Info("retrieved listening history", "recent", len(recent), "top", len(top))

	tracks := combine(recent, top)
	s.logger.Info("combined tracks", "unique", len(tracks))

	if err := s.catalog.Enrich(ctx, src, tracks); err != nil {
		return nil, Metadata{}, fmt.Errorf("enriching tracks: %w", err)
	}

	table := clustering.NewTable(tracks)
	return table, Describe(table, s.location), nil
}

// PlaylistTable builds a table from every track of a playlist.
func (s *Service) PlaylistTable(ctx context.Context, src Source, playlistID string) (*clustering.Table, error) {
	tracks, err := src.PlaylistTracks(ctx, playlistID)
	if err != nil {
		return nil, fmt.Errorf("fetching playlist tracks: %w", err)
	}
	s.logger.Info("retrieved playlist tracks", "playlist", playlistID, "tracks", len(tracks))

	tracks = combine(tracks, nil)
	if err := s.catalog.Enrich(ctx, src, tracks); err != nil {
		return nil, fmt.Errorf("enriching tracks: %w", err)
	}
	return clustering.NewTable(tracks), nil
}

// combine concatenates recent and top, keeping the first occurrence of each
// track ID. A later duplicate fills popularity and album when the kept row
// lacks them.
func combine(recent, top []clustering.Track) []clustering.Track {
	index := make(map[string]int, len(recent)+len(top))
	out := make([]clustering.Track, 0, len(recent)+len(top))

	for _, list := range [][]clustering.Track{recent, top} {
		for _, t := range list {
			if t.ID == "" {
				continue
			}
			i, ok := index[t.ID]
			if !ok {
				index[t.ID] = len(out)
				out = append(out, t)
				continue
			}
			kept := &out[i]
			if kept.Popularity == nil {
				kept.Popularity = t.Popularity
			}
			if kept.Album == "" {
				kept.Album = t.Album
			}
		}
	}
	return out
}

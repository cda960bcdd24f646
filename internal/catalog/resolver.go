package catalog

import (
	"context"
	"log/slog"
	"sync"
)

// Default concurrency for fallback genre lookups.
const DefaultConcurrency = 5

// Artist identifies an artist for a genre lookup.
type Artist struct {
	ID   string
	Name string
}

// TagFetcher abstracts the Last.fm client for testing.
type TagFetcher interface {
	ArtistGenres(ctx context.Context, artist string) ([]string, error)
}

// GenreResolver looks up fallback genres for artists Spotify has none for.
type GenreResolver struct {
	fetcher     TagFetcher
	concurrency int
	logger      *slog.Logger
}

// ResolverOption configures a GenreResolver.
type ResolverOption func(*GenreResolver)

// WithConcurrency sets the number of concurrent lookups.
func WithConcurrency(n int) ResolverOption {
	return func(r *GenreResolver) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithResolverLogger sets the logger for skipped lookups.
func WithResolverLogger(l *slog.Logger) ResolverOption {
	return func(r *GenreResolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewGenreResolver creates a resolver backed by fetcher.
func NewGenreResolver(fetcher TagFetcher, opts ...ResolverOption) *GenreResolver {
	r := &GenreResolver{
		fetcher:     fetcher,
		concurrency: DefaultConcurrency,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve fetches genres for artists concurrently, keyed by artist ID.
// Individual lookup errors are logged and the artist is left out of the result
// rather than failing the batch.
func (r *GenreResolver) Resolve(ctx context.Context, artists []Artist) (map[string][]string, error) {
	out := make(map[string][]string, len(artists))
	if len(artists) == 0 {
		return out, nil
	}

	results := make([][]string, len(artists))
	found := make([]bool, len(artists))

	type workItem struct {
		index  int
		artist Artist
	}
	workCh := make(chan workItem, len(artists))
	for i, a := range artists {
		workCh <- workItem{index: i, artist: a}
	}
	close(workCh)

	var wg sync.WaitGroup
	for range min(r.concurrency, len(artists)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for work := range workCh {
				if ctx.Err() != nil {
					continue
				}

				genres, err := r.fetcher.ArtistGenres(ctx, work.artist.Name)
				if err != nil {
					r.logger.Debug("skipping fallback genres", "artist", work.artist.Name, "error", err)
					continue
				}
				results[work.index] = genres
				found[work.index] = true
			}
		}()
	}

	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for i, a := range artists {
		if found[i] {
			out[a.ID] = results[i]
		}
	}
	return out, nil
}

// Package app wires storage, the catalogue, and the clustering services from
// configuration. Both binaries build on it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/justestif/go-spotify-mood-map/internal/analysis"
	"github.com/justestif/go-spotify-mood-map/internal/catalog"
	"github.com/justestif/go-spotify-mood-map/internal/config"
	"github.com/justestif/go-spotify-mood-map/internal/db"
	"github.com/justestif/go-spotify-mood-map/internal/lastfm"
	"github.com/justestif/go-spotify-mood-map/internal/library"
	"github.com/justestif/go-spotify-mood-map/internal/sqlite"
)

// App holds the wired services.
type App struct {
	Catalog  *catalog.Service
	Library  *library.Service
	Analysis *analysis.Service

	// DB is set only for the postgres driver.
	DB *db.DB

	closers []func()
}

// New opens the configured store and builds the services on top of it.
// libOpts are applied after the logger.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, libOpts ...library.Option) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{}

	var store catalog.Store
	switch cfg.Storage.Driver {
	case config.DriverMemory, "":
		store = catalog.NewMemoryStore()
	case config.DriverSQLite:
		s, err := sqlite.Open(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite store: %w", err)
		}
		a.closers = append(a.closers, func() { _ = s.Close() })
		store = s
	case config.DriverPostgres:
		database, err := db.New(ctx, cfg.Storage.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connecting to database: %w", err)
		}
		a.closers = append(a.closers, database.Close)
		if err := database.Migrate(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("migrating database: %w", err)
		}
		a.DB = database
		store = database.Catalog()
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
	logger.Info("catalog store ready", "driver", cfg.Storage.Driver)

	catalogOpts := []catalog.Option{
		catalog.WithFeatureFetching(cfg.Spotify.FetchAudioFeatures),
		catalog.WithLogger(logger),
	}
	if resolver, err := genreResolver(cfg.LastFM, logger); err == nil {
		catalogOpts = append(catalogOpts, catalog.WithFallback(resolver))
	} else if !errors.Is(err, lastfm.ErrMissingAPIKey) {
		a.Close()
		return nil, err
	}
	a.Catalog = catalog.NewService(store, catalogOpts...)
	a.Library = library.New(a.Catalog, append([]library.Option{library.WithLogger(logger)}, libOpts...)...)

	analysisOpts := []analysis.Option{analysis.WithLogger(logger)}
	if a.DB != nil {
		analysisOpts = append(analysisOpts, analysis.WithRecorder(a.DB.Playlists()))
	}
	svc, err := analysis.New(cfg.Engine(), analysisOpts...)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("configuring clustering: %w", err)
	}
	a.Analysis = svc

	return a, nil
}

// genreResolver builds the Last.fm genre fallback. It returns
// lastfm.ErrMissingAPIKey when no key is configured.
func genreResolver(cfg config.LastFMConfig, logger *slog.Logger) (*catalog.GenreResolver, error) {
	lc := lastfm.Config{APIKey: cfg.APIKey, MaxTags: cfg.MaxTags, MinTag: cfg.MinTagCount}
	if err := lc.Validate(); err != nil {
		return nil, err
	}
	opts := []catalog.ResolverOption{catalog.WithResolverLogger(logger)}
	if cfg.Concurrency > 0 {
		opts = append(opts, catalog.WithConcurrency(cfg.Concurrency))
	}
	return catalog.NewGenreResolver(lastfm.NewClient(lc), opts...), nil
}

// Close releases the store, most recently opened first.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

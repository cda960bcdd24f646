package web

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/justestif/go-spotify-mood-map/internal/analysis"
	"github.com/justestif/go-spotify-mood-map/internal/auth"
	"github.com/justestif/go-spotify-mood-map/internal/config"
	"github.com/justestif/go-spotify-mood-map/internal/library"
	"github.com/justestif/go-spotify-mood-map/internal/spotify"
)

const shutdownTimeout = 10 * time.Second

// ServerConfig holds server configuration.
type ServerConfig struct {
	Addr        string
	Spotify     config.SpotifyConfig
	TemplatesFS fs.FS
	StaticFS    fs.FS

	// Sessions defaults to an in-memory store.
	Sessions SessionManager
	Library  *library.Service
	Analysis *analysis.Service

	// OAuth overrides the authenticator built from Spotify.
	OAuth OAuth
	// NewClient defaults to a retrying Spotify Web API client.
	NewClient ClientFactory
	Logger    *slog.Logger
}

// Server is the HTTP server for the web application.
type Server struct {
	router   chi.Router
	server   *http.Server
	handlers *Handlers
	logger   *slog.Logger
}

// NewServer creates a new web server.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Library == nil || cfg.Analysis == nil {
		return nil, errors.New("library and analysis services are required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	oauth := cfg.OAuth
	if oauth == nil {
		a, err := auth.NewSpotifyAuth(cfg.Spotify)
		switch {
		case errors.Is(err, auth.ErrMissingCredentials):
			logger.Warn("spotify credentials not configured, sign-in disabled")
		case err != nil:
			return nil, fmt.Errorf("creating authenticator: %w", err)
		default:
			oauth = a
		}
	}

	templates, err := NewTemplates(cfg.TemplatesFS)
	if err != nil {
		return nil, fmt.Errorf("loading templates: %w", err)
	}

	sessions := cfg.Sessions
	if sessions == nil {
		sessions = NewSessionStore()
	}

	newClient := cfg.NewClient
	if newClient == nil {
		newClient = func(hc *http.Client) SpotifyAPI {
			return spotify.NewFromHTTPClient(hc, spotify.WithLogger(logger))
		}
	}

	redirect := cfg.Spotify.RedirectURI
	if redirect == "" {
		redirect = config.DefaultRedirectURI
	}

	addr := cfg.Addr
	if addr == "" {
		addr = config.DefaultAddr
	}

	s := &Server{
		router: chi.NewRouter(),
		handlers: &Handlers{
			oauth: oauth,
			spotifyCfg: spotifyStatus{
				ClientIDSet:     cfg.Spotify.ClientID != "",
				ClientSecretSet: cfg.Spotify.ClientSecret != "",
				RedirectURI:     redirect,
			},
			sessions:  sessions,
			templates: templates,
			library:   cfg.Library,
			analysis:  cfg.Analysis,
			newClient: newClient,
			logger:    logger,
		},
		logger: logger,
	}

	s.setupMiddleware()
	s.setupRoutes(cfg.StaticFS)

	// Clustering a large playlist can take a while.
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger:  slog.NewLogLogger(s.logger.Handler(), slog.LevelDebug),
		NoColor: true,
	}))
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
}

func (s *Server) setupRoutes(staticFS fs.FS) {
	if staticFS != nil {
		fileServer := http.FileServer(http.FS(staticFS))
		s.router.Handle("/static/*", http.StripPrefix("/static/", fileServer))
	}

	// Pages
	s.router.Get("/", s.handlers.Home)

	// Auth routes
	s.router.Get("/auth/login", s.handlers.Login)
	s.router.Get("/callback", s.handlers.Callback)
	s.router.Post("/auth/logout", s.handlers.Logout)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handlers.Health)
		r.Get("/user-data", s.handlers.UserData)
		r.Post("/playlist/create", s.handlers.CreatePlaylist)

		r.Route("/spotify", func(r chi.Router) {
			r.Get("/auth-url", s.handlers.AuthURL)
			r.Post("/token", s.handlers.ExchangeToken)
			r.Get("/user-playlists", s.handlers.UserPlaylists)
			r.Get("/playlist-tracks/{playlistID}", s.handlers.PlaylistTracks)
			r.Post("/playlist-cluster/{playlistID}", s.handlers.ClusterPlaylist)
		})
	})
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "url", "http://"+s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serving: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}

// Command spotify-mood-map runs the mood map web application.
package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/justestif/go-spotify-mood-map/internal/app"
	"github.com/justestif/go-spotify-mood-map/internal/config"
	"github.com/justestif/go-spotify-mood-map/internal/web"
	webfs "github.com/justestif/go-spotify-mood-map/web"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "Path to a TOML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := cfg.Logger(os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	services, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer services.Close()

	var sessions web.SessionManager = web.NewSessionStore()
	if services.DB != nil {
		sessions = web.NewDBSessionStore(services.DB, logger)
	}

	templates, err := fs.Sub(webfs.TemplatesFS, "templates")
	if err != nil {
		return fmt.Errorf("creating templates filesystem: %w", err)
	}

	static, err := fs.Sub(webfs.StaticFS, "static")
	if err != nil {
		return fmt.Errorf("creating static filesystem: %w", err)
	}

	server, err := web.NewServer(web.ServerConfig{
		Addr:        cfg.Server.Addr,
		Spotify:     cfg.Spotify,
		TemplatesFS: templates,
		StaticFS:    static,
		Sessions:    sessions,
		Library:     services.Library,
		Analysis:    services.Analysis,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	return server.Run(ctx)
}

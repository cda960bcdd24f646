// Command mood-clusters clusters your Spotify listening history, or one of
// your playlists, from the terminal.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"golang.org/x/oauth2"

	"github.com/justestif/go-spotify-mood-map/internal/analysis"
	"github.com/justestif/go-spotify-mood-map/internal/app"
	"github.com/justestif/go-spotify-mood-map/internal/auth"
	"github.com/justestif/go-spotify-mood-map/internal/clustering"
	"github.com/justestif/go-spotify-mood-map/internal/config"
	"github.com/justestif/go-spotify-mood-map/internal/library"
	"github.com/justestif/go-spotify-mood-map/internal/spotify"
)

type options struct {
	configPath string
	playlist   string
	clusters   int
	limit      int
	timeRange  string
	save       int
	jsonOut    bool
	history    bool
	token      string
	logout     bool
}

var timeRanges = map[string]spotify.TimeRange{
	"short":  spotify.ShortTerm,
	"medium": spotify.MediumTerm,
	"long":   spotify.LongTerm,
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "Path to a TOML config file")
	flag.StringVar(&opts.playlist, "playlist", "", "Cluster this playlist instead of your listening history")
	flag.IntVar(&opts.clusters, "clusters", 0, "Number of clusters (overrides config)")
	flag.IntVar(&opts.limit, "limit", library.DefaultHistoryLimit, "Recent and top tracks to request")
	flag.StringVar(&opts.timeRange, "range", "medium", "Top tracks time range: short, medium or long")
	flag.IntVar(&opts.save, "save", -1, "Save this cluster as a Spotify playlist")
	flag.BoolVar(&opts.jsonOut, "json", false, "Print the report as JSON")
	flag.BoolVar(&opts.history, "history", false, "List playlists saved from earlier runs (postgres storage only)")
	flag.StringVar(&opts.token, "token", "", "Use this access token instead of signing in")
	flag.BoolVar(&opts.logout, "logout", false, "Delete the cached Spotify token and exit")
	flag.Parse()

	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(opts options) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.clusters > 0 {
		cfg.Clustering.Clusters = opts.clusters
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	topRange, ok := timeRanges[opts.timeRange]
	if !ok {
		return fmt.Errorf("unknown time range %q", opts.timeRange)
	}
	logger := cfg.Logger(os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := connect(ctx, cfg, opts, logger)
	if err != nil || client == nil {
		return err
	}

	services, err := app.New(ctx, cfg, logger,
		library.WithHistoryLimit(opts.limit),
		library.WithTopRange(topRange),
		library.WithLocation(time.Local),
	)
	if err != nil {
		return err
	}
	defer services.Close()

	if opts.history {
		return printHistory(ctx, services, client)
	}

	var table *clustering.Table
	if opts.playlist != "" {
		table, err = services.Library.PlaylistTable(ctx, client, opts.playlist)
	} else {
		table, _, err = services.Library.UserData(ctx, client)
	}
	if err != nil {
		return err
	}

	report, err := services.Analysis.Analyze(ctx, table)
	if err != nil {
		return err
	}

	if opts.jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return fmt.Errorf("encoding report: %w", err)
		}
	} else {
		if report.Message != "" {
			fmt.Fprintln(os.Stderr, report.Message)
		}
		fmt.Print(report.Text())
	}

	if opts.save < 0 {
		return nil
	}

	userID, err := client.UserID(ctx)
	if err != nil {
		return err
	}
	playlistID, err := services.Analysis.CreateClusterPlaylist(ctx, client, userID, report, analysis.PlaylistRequest{ClusterID: opts.save})
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Created playlist https://open.spotify.com/playlist/%s\n", playlistID)
	return nil
}

// connect returns a Spotify client, or nil after a logout.
func connect(ctx context.Context, cfg *config.Config, opts options, logger *slog.Logger) (*spotify.Client, error) {
	if opts.token != "" && !opts.logout {
		tok := &oauth2.Token{AccessToken: opts.token, TokenType: "Bearer"}
		return spotify.NewFromToken(ctx, tok, spotify.WithLogger(logger)), nil
	}

	if err := cfg.RequireSpotify(); err != nil {
		return nil, err
	}
	authenticator, err := auth.New(cfg.Spotify, auth.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	if opts.logout {
		if err := authenticator.Logout(); err != nil {
			return nil, err
		}
		fmt.Println("Logged out.")
		return nil, nil
	}

	api, err := authenticator.Authenticate(ctx)
	if err != nil {
		return nil, fmt.Errorf("authenticating: %w", err)
	}
	return spotify.New(api, spotify.WithLogger(logger)), nil
}

func printHistory(ctx context.Context, services *app.App, client *spotify.Client) error {
	if services.DB == nil {
		return errors.New("playlist history needs the postgres storage driver")
	}
	userID, err := client.UserID(ctx)
	if err != nil {
		return err
	}
	playlists, err := services.DB.Playlists().ListForUser(ctx, userID)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CREATED\tNAME\tMOOD\tTRACKS\tPLAYLIST")
	for _, p := range playlists {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", p.CreatedAt.Format(time.DateOnly), p.Name, p.Mood, p.TrackCount, p.PlaylistID)
	}
	return w.Flush()
}

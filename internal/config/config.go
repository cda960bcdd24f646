// Package config loads application settings from an optional TOML file, a
// .env file and the process environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"github.com/justestif/go-spotify-mood-map/internal/clustering"
)

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Defaults.
const (
	DefaultAddr        = "127.0.0.1:8000"
	DefaultRedirectURI = "http://127.0.0.1:8000/callback"
	DefaultSQLitePath  = "data/catalog.db"
)

var (
	// ErrMissingCredentials is returned when the Spotify client ID or secret is unset.
	ErrMissingCredentials = errors.New("missing SPOTIFY_CLIENT_ID or SPOTIFY_CLIENT_SECRET")
)

type ServerConfig struct {
	Addr string `toml:"addr"`
}

type SpotifyConfig struct {
	ClientID           string `toml:"client_id"`
	ClientSecret       string `toml:"client_secret"`
	RedirectURI        string `toml:"redirect_uri"`
	FetchAudioFeatures bool   `toml:"fetch_audio_features"`
}

type LastFMConfig struct {
	APIKey      string `toml:"api_key"`
	MaxTags     int    `toml:"max_tags"`
	MinTagCount int    `toml:"min_tag_count"`
	Concurrency int    `toml:"concurrency"`
}

type StorageConfig struct {
	Driver      string `toml:"driver"`
	DatabaseURL string `toml:"database_url"`
	SQLitePath  string `toml:"sqlite_path"`
}

type ClusteringConfig struct {
	Clusters          int      `toml:"clusters"`
	Seed              uint64   `toml:"seed"`
	Features          []string `toml:"features"`
	VarianceThreshold float64  `toml:"variance_threshold"`
	Restarts          int      `toml:"restarts"`
	MaxIterations     int      `toml:"max_iterations"`
	Neighbors         int      `toml:"neighbors"`
	MinDist           float64  `toml:"min_dist"`
	Epochs            int      `toml:"epochs"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // text or json
}

// Config is the full application configuration.
type Config struct {
	Server     ServerConfig     `toml:"server"`
	Spotify    SpotifyConfig    `toml:"spotify"`
	LastFM     LastFMConfig     `toml:"lastfm"`
	Storage    StorageConfig    `toml:"storage"`
	Clustering ClusteringConfig `toml:"clustering"`
	Log        LogConfig        `toml:"log"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	cc := clustering.DefaultConfig()
	return &Config{
		Server:  ServerConfig{Addr: DefaultAddr},
		Spotify: SpotifyConfig{RedirectURI: DefaultRedirectURI},
		Storage: StorageConfig{Driver: DriverMemory, SQLitePath: DefaultSQLitePath},
		Clustering: ClusteringConfig{
			Clusters:          cc.NumClusters,
			Seed:              *cc.Seed,
			Features:          cc.Features,
			VarianceThreshold: cc.VarianceThreshold,
			Restarts:          cc.Restarts,
			MaxIterations:     cc.MaxIterations,
			Neighbors:         cc.Embedding.Neighbors,
			MinDist:           cc.Embedding.MinDist,
			Epochs:            cc.Embedding.Epochs,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads .env from the working directory (if present), then the TOML
// file at path (skipped when path is empty), then environment overrides.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
	return load(path, os.Getenv)
}

func load(path string, getenv func(string) string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %q: %w", path, err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %q: %w", path, err)
		}
	}

	if err := cfg.applyEnv(getenv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides fields from environment variables that are set.
func (c *Config) applyEnv(getenv func(string) string) error {
	strs := map[string]*string{
		"ADDR":                  &c.Server.Addr,
		"SPOTIFY_CLIENT_ID":     &c.Spotify.ClientID,
		"SPOTIFY_CLIENT_SECRET": &c.Spotify.ClientSecret,
		"SPOTIFY_REDIRECT_URI":  &c.Spotify.RedirectURI,
		"LASTFM_API_KEY":        &c.LastFM.APIKey,
		"STORAGE_DRIVER":        &c.Storage.Driver,
		"DATABASE_URL":          &c.Storage.DatabaseURL,
		"SQLITE_PATH":           &c.Storage.SQLitePath,
		"LOG_LEVEL":             &c.Log.Level,
		"LOG_FORMAT":            &c.Log.Format,
	}
	for key, dst := range strs {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}

	if v := getenv("CLUSTER_COUNT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing CLUSTER_COUNT: %w", err)
		}
		c.Clustering.Clusters = n
	}
	if v := getenv("CLUSTER_SEED"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("parsing CLUSTER_SEED: %w", err)
		}
		c.Clustering.Seed = n
	}
	if v := getenv("SPOTIFY_FETCH_AUDIO_FEATURES"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parsing SPOTIFY_FETCH_AUDIO_FEATURES: %w", err)
		}
		c.Spotify.FetchAudioFeatures = b
	}
	return nil
}

// Validate reports the first invalid field. Spotify credentials are checked
// separately with RequireSpotify, since not every command needs them.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.Storage.SQLitePath == "" {
			return errors.New("storage: sqlite driver requires sqlite_path")
		}
	case DriverPostgres:
		if c.Storage.DatabaseURL == "" {
			return errors.New("storage: postgres driver requires DATABASE_URL")
		}
	default:
		return fmt.Errorf("storage: unknown driver %q", c.Storage.Driver)
	}

	if _, err := c.LogLevel(); err != nil {
		return err
	}
	if f := strings.ToLower(c.Log.Format); f != "text" && f != "json" {
		return fmt.Errorf("log: unknown format %q", c.Log.Format)
	}

	if err := c.Engine().Validate(); err != nil {
		return fmt.Errorf("clustering: %w", err)
	}
	return nil
}

// RequireSpotify returns ErrMissingCredentials unless both the client ID and
// secret are set.
func (c *Config) RequireSpotify() error {
	if c.Spotify.ClientID == "" || c.Spotify.ClientSecret == "" {
		return ErrMissingCredentials
	}
	return nil
}

// Engine converts the clustering section into an engine config.
func (c *Config) Engine() clustering.Config {
	cc := c.Clustering
	return clustering.Config{
		NumClusters:       cc.Clusters,
		Seed:              clustering.SeedOf(cc.Seed),
		Features:          cc.Features,
		VarianceThreshold: cc.VarianceThreshold,
		Restarts:          cc.Restarts,
		MaxIterations:     cc.MaxIterations,
		Embedding: clustering.EmbeddingConfig{
			Neighbors: cc.Neighbors,
			MinDist:   cc.MinDist,
			Epochs:    cc.Epochs,
		},
	}
}

// LogLevel parses the configured level name.
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("log: %w", err)
	}
	return level, nil
}

// Logger builds the application logger writing to w.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	level, err := c.LogLevel()
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Log.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

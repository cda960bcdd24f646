package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justestif/go-spotify-mood-map/internal/clustering"
)

func env(vars map[string]string) func(string) string {
	return func(key string) string { return vars[key] }
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaults(t *testing.T) {
	cfg, err := load("", env(nil))
	require.NoError(t, err)

	assert.Equal(t, DefaultAddr, cfg.Server.Addr)
	assert.Equal(t, DefaultRedirectURI, cfg.Spotify.RedirectURI)
	assert.Equal(t, DriverMemory, cfg.Storage.Driver)
	assert.False(t, cfg.Spotify.FetchAudioFeatures)
	assert.Equal(t, clustering.DefaultConfig(), cfg.Engine())
	assert.NoError(t, cfg.Validate())
	assert.ErrorIs(t, cfg.RequireSpotify(), ErrMissingCredentials)
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, `
[server]
addr = "0.0.0.0:9000"

[spotify]
client_id = "file-id"
client_secret = "file-secret"
fetch_audio_features = true

[storage]
driver = "sqlite"
sqlite_path = "/tmp/x.db"

[clustering]
clusters = 3
seed = 7

[log]
level = "debug"
format = "json"
`)

	cfg, err := load(path, env(nil))
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9000", cfg.Server.Addr)
	assert.Equal(t, "file-id", cfg.Spotify.ClientID)
	assert.True(t, cfg.Spotify.FetchAudioFeatures)
	assert.Equal(t, DriverSQLite, cfg.Storage.Driver)
	assert.Equal(t, 3, cfg.Engine().NumClusters)
	assert.Equal(t, uint64(7), *cfg.Engine().Seed)
	assert.Equal(t, 0.95, cfg.Engine().VarianceThreshold, "unset keys keep defaults")
	assert.NoError(t, cfg.Validate())
	assert.NoError(t, cfg.RequireSpotify())

	level, err := cfg.LogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestEnvOverrides(t *testing.T) {
	path := writeFile(t, `
[spotify]
client_id = "file-id"
`)

	cfg, err := load(path, env(map[string]string{
		"SPOTIFY_CLIENT_ID":            "env-id",
		"SPOTIFY_CLIENT_SECRET":        "env-secret",
		"LASTFM_API_KEY":               "lfm",
		"STORAGE_DRIVER":               "postgres",
		"DATABASE_URL":                 "postgres://localhost/moods",
		"CLUSTER_COUNT":                "4",
		"CLUSTER_SEED":                 "99",
		"SPOTIFY_FETCH_AUDIO_FEATURES": "true",
	}))
	require.NoError(t, err)

	assert.Equal(t, "env-id", cfg.Spotify.ClientID)
	assert.Equal(t, "env-secret", cfg.Spotify.ClientSecret)
	assert.Equal(t, "lfm", cfg.LastFM.APIKey)
	assert.Equal(t, DriverPostgres, cfg.Storage.Driver)
	assert.Equal(t, 4, cfg.Clustering.Clusters)
	assert.Equal(t, uint64(99), cfg.Clustering.Seed)
	assert.True(t, cfg.Spotify.FetchAudioFeatures)
	assert.NoError(t, cfg.Validate())
}

func TestZeroSeed(t *testing.T) {
	fromFile, err := load(writeFile(t, "[clustering]\nseed = 0\n"), env(nil))
	require.NoError(t, err)
	assert.Equal(t, uint64(0), *fromFile.Engine().Seed)

	fromEnv, err := load("", env(map[string]string{"CLUSTER_SEED": "0"}))
	require.NoError(t, err)
	assert.Equal(t, uint64(0), *fromEnv.Engine().Seed)

	engine, err := clustering.New(fromEnv.Engine())
	require.NoError(t, err)
	assert.Equal(t, uint64(0), *engine.Config().Seed)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		path string
		env  map[string]string
	}{
		{"missing file", filepath.Join(t.TempDir(), "nope.toml"), nil},
		{"bad toml", writeFile(t, "[server\naddr = 1"), nil},
		{"bad cluster count", "", map[string]string{"CLUSTER_COUNT": "five"}},
		{"bad seed", "", map[string]string{"CLUSTER_SEED": "-1"}},
		{"bad bool", "", map[string]string{"SPOTIFY_FETCH_AUDIO_FEATURES": "maybe"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := load(tt.path, env(tt.env))
			assert.Error(t, err)
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		errMsg string
	}{
		{"unknown driver", func(c *Config) { c.Storage.Driver = "mongo" }, "unknown driver"},
		{"postgres without url", func(c *Config) { c.Storage.Driver = DriverPostgres }, "DATABASE_URL"},
		{"sqlite without path", func(c *Config) { c.Storage.Driver = DriverSQLite; c.Storage.SQLitePath = "" }, "sqlite_path"},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "log"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "format"},
		{"bad cluster count", func(c *Config) { c.Clustering.Clusters = 0 }, "cluster count"},
		{"unknown feature", func(c *Config) {
			c.Clustering.Features = []string{"a", "b", "c", "d", "e", "f", "g", "h", "i"}
		}, "unknown audio feature"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := Default()
	cfg.Log.Format = "json"
	cfg.Log.Level = "warn"

	logger := cfg.Logger(&buf)
	logger.Info("hidden")
	logger.Warn("shown", "k", 1)

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
}

package db

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justestif/go-spotify-mood-map/internal/catalog"
	"github.com/justestif/go-spotify-mood-map/internal/clustering"
)

func TestToFeatureArrays(t *testing.T) {
	energy, tempo := 0.7, 120.0
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	entries := map[string]catalog.FeatureEntry{
		"b": {Features: clustering.AudioFeatures{Energy: &energy}, FetchedAt: now},
		"a": {Features: clustering.AudioFeatures{Tempo: &tempo}, FetchedAt: now.Add(time.Hour)},
	}

	a := toFeatureArrays(entries)

	assert.Equal(t, []string{"a", "b"}, a.ids)
	assert.Equal(t, []time.Time{now.Add(time.Hour), now}, a.fetchedAt)
	require.Len(t, a.columns, len(clustering.FeatureColumns()))

	energyCol := a.columns[1]
	assert.Nil(t, energyCol[0])
	require.NotNil(t, energyCol[1])
	assert.Equal(t, 0.7, *energyCol[1])

	tempoCol := a.columns[3]
	require.NotNil(t, tempoCol[0])
	assert.Equal(t, 120.0, *tempoCol[0])
	assert.Nil(t, tempoCol[1])
}

func TestSchemaDefinesTables(t *testing.T) {
	for _, table := range []string{
		"users", "sessions", "audio_features", "artist_genres",
		"cluster_playlists", "cluster_playlist_tracks",
	} {
		assert.True(t, strings.Contains(schema, "CREATE TABLE IF NOT EXISTS "+table+" "), table)
	}
}

func TestSessionToken(t *testing.T) {
	expiry := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s := &Session{AccessToken: "access", RefreshToken: "refresh", TokenExpiry: expiry}

	tok := s.Token()

	assert.Equal(t, "access", tok.AccessToken)
	assert.Equal(t, "refresh", tok.RefreshToken)
	assert.Equal(t, expiry, tok.Expiry)
	assert.Equal(t, "Bearer", tok.TokenType)
}

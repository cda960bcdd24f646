package spotify

import (
	"context"
	"fmt"
	"slices"

	"github.com/zmb3/spotify/v2"

	"github.com/justestif/go-spotify-mood-map/internal/clustering"
)

// AudioFeatures retrieves audio features for the given track IDs, keyed by ID.
// Batches requests to max 100 tracks per request per Spotify API limits.
// Tracks without available audio features are absent from the map.
func (c *Client) AudioFeatures(ctx context.Context, trackIDs []string) (map[string]clustering.AudioFeatures, error) {
	out := make(map[string]clustering.AudioFeatures, len(trackIDs))
	if len(trackIDs) == 0 {
		return out, nil
	}

	ids := toIDs(trackIDs)
	done := 0
	for batch := range slices.Chunk(ids, maxTracksPerRequest) {
		features, err := c.api.GetAudioFeatures(ctx, batch...)
		if err != nil {
			return nil, fmt.Errorf("fetching audio features (batch %d-%d): %w", done+1, done+len(batch), err)
		}
		done += len(batch)

		for _, f := range features {
			if f == nil {
				continue // Track has no audio features
			}
			out[f.ID.String()] = convertAudioFeatures(f)
		}

		c.logger.Debug("fetched audio features", "done", done, "total", len(ids))
	}

	return out, nil
}

// convertAudioFeatures copies Spotify's audio feature values.
func convertAudioFeatures(f *spotify.AudioFeatures) clustering.AudioFeatures {
	v := func(x float32) *float64 {
		f := float64(x)
		return &f
	}
	return clustering.AudioFeatures{
		Danceability:     v(f.Danceability),
		Energy:           v(f.Energy),
		Valence:          v(f.Valence),
		Tempo:            v(f.Tempo),
		Acousticness:     v(f.Acousticness),
		Instrumentalness: v(f.Instrumentalness),
		Liveness:         v(f.Liveness),
		Speechiness:      v(f.Speechiness),
		Loudness:         v(f.Loudness),
	}
}

package analysis

import (
	"context"
	"fmt"

	"github.com/justestif/go-spotify-mood-map/internal/db"
)

// PlaylistRequest asks for a playlist built from one cluster. Empty name and
// description take the defaults.
type PlaylistRequest struct {
	ClusterID   int    `json:"cluster_id"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
}

// PlaylistName is the default name for cluster id's playlist.
func PlaylistName(id int) string {
	return fmt.Sprintf("Cluster %d Playlist", id+1)
}

// PlaylistDescription is the default description for cluster id's playlist.
func PlaylistDescription(id int) string {
	return fmt.Sprintf("Automatically generated playlist from cluster %d", id+1)
}

// CreateClusterPlaylist creates a public playlist holding the tracks of one
// cluster and returns its Spotify ID. userID is only used for the record.
func (s *Service) CreateClusterPlaylist(ctx context.Context, api PlaylistCreator, userID string, report *Report, req PlaylistRequest) (string, error) {
	trackIDs, err := s.ClusterTrackIDs(report, req.ClusterID)
	if err != nil {
		return "", err
	}

	name := req.Name
	if name == "" {
		name = PlaylistName(req.ClusterID)
	}
	description := req.Description
	if description == "" {
		description = PlaylistDescription(req.ClusterID)
	}

	playlistID, err := api.CreatePlaylist(ctx, name, description, true)
	if err != nil {
		return "", fmt.Errorf("creating playlist: %w", err)
	}
	if err := api.AddTracksToPlaylist(ctx, playlistID, trackIDs); err != nil {
		return "", fmt.Errorf("adding tracks to playlist %s: %w", playlistID, err)
	}

	s.logger.Info("created cluster playlist", "playlist", playlistID, "cluster", req.ClusterID, "tracks", len(trackIDs))

	if s.recorder != nil {
		rec := &db.ClusterPlaylist{
			UserID:     userID,
			PlaylistID: playlistID,
			Name:       name,
			ClusterID:  req.ClusterID,
			Mood:       report.Summaries[req.ClusterID].Mood,
		}
		if err := s.recorder.Create(ctx, rec, trackIDs); err != nil {
			s.logger.Warn("recording cluster playlist failed", "playlist", playlistID, "error", err)
		}
	}

	return playlistID, nil
}

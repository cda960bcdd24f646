package db

import (
	"time"

	"github.com/google/uuid"
)

// User is a Spotify account that has signed in to the web app.
type User struct {
	ID             string     `db:"id"`
	DisplayName    string     `db:"display_name"`
	CreatedAt      time.Time  `db:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"`
	LastAnalyzedAt *time.Time `db:"last_analyzed_at"`
}

// Session is a persisted web session with the user's Spotify token.
type Session struct {
	ID           string    `db:"id"`
	UserID       string    `db:"user_id"`
	AccessToken  string    `db:"access_token"`
	RefreshToken string    `db:"refresh_token"`
	TokenExpiry  time.Time `db:"token_expiry"`
	CreatedAt    time.Time `db:"created_at"`
	ExpiresAt    time.Time `db:"expires_at"`
}

// ClusterPlaylist records a Spotify playlist generated from one cluster.
type ClusterPlaylist struct {
	ID         uuid.UUID `db:"id"`
	UserID     string    `db:"user_id"`
	PlaylistID string    `db:"playlist_id"` // Spotify playlist ID
	Name       string    `db:"name"`
	ClusterID  int       `db:"cluster_id"`
	Mood       string    `db:"mood"`
	TrackCount int       `db:"track_count"`
	CreatedAt  time.Time `db:"created_at"`
}

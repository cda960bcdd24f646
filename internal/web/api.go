package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/oauth2"

	"github.com/justestif/go-spotify-mood-map/internal/analysis"
	"github.com/justestif/go-spotify-mood-map/internal/auth"
	"github.com/justestif/go-spotify-mood-map/internal/clustering"
	"github.com/justestif/go-spotify-mood-map/internal/library"
)

// userPlaylistsLimit caps the playlists listed for selection.
const userPlaylistsLimit = 50

const unauthorizedDetail = "Missing or invalid authorization header"

type errorResponse struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorResponse{Detail: detail})
}

// requestClient resolves the caller's Spotify client from a bearer token or,
// failing that, the session cookie. An expired session token is refreshed
// and stored back on the session. It writes a 401 and returns false when the
// request carries neither.
func (h *Handlers) requestClient(w http.ResponseWriter, r *http.Request) (SpotifyAPI, *Session, bool) {
	ctx := r.Context()

	if header := r.Header.Get("Authorization"); header != "" {
		token, ok := strings.CutPrefix(header, "Bearer ")
		token = strings.TrimSpace(token)
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, unauthorizedDetail)
			return nil, nil, false
		}
		tok := &oauth2.Token{AccessToken: token, TokenType: "Bearer"}
		return h.newClient(oauth2.NewClient(ctx, oauth2.StaticTokenSource(tok))), nil, true
	}

	session := h.sessions.GetFromRequest(r)
	if session == nil || session.Token == nil {
		writeError(w, http.StatusUnauthorized, unauthorizedDetail)
		return nil, nil, false
	}

	tok := session.Token
	if !tok.Valid() && h.oauth != nil && tok.RefreshToken != "" {
		fresh, err := h.oauth.RefreshToken(ctx, tok)
		if err != nil {
			h.logger.Warn("refreshing session token", "user", session.UserID, "error", err)
		} else {
			h.sessions.UpdateToken(ctx, session.ID, fresh)
			tok = fresh
		}
	}
	return h.newClient(oauth2.NewClient(ctx, oauth2.StaticTokenSource(tok))), session, true
}

// Health reports configuration status (GET /api/health).
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "healthy",
		"spotify_config": h.spotifyCfg,
	})
}

// AuthURL returns the Spotify consent URL (GET /api/spotify/auth-url).
func (h *Handlers) AuthURL(w http.ResponseWriter, r *http.Request) {
	if h.oauth == nil {
		writeError(w, http.StatusInternalServerError, "Spotify client ID not configured")
		return
	}
	state, err := randomHex(16)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to generate state")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"auth_url": auth.AuthURL(h.oauth, state)})
}

type tokenRequest struct {
	Code string `json:"code"`
}

type tokenResponse struct {
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresIn    int       `json:"expires_in"`
	Expiry       time.Time `json:"expiry"`
}

// ExchangeToken trades an authorization code for a token (POST /api/spotify/token).
func (h *Handlers) ExchangeToken(w http.ResponseWriter, r *http.Request) {
	if h.oauth == nil {
		writeError(w, http.StatusInternalServerError, "Spotify credentials not configured")
		return
	}

	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
		writeError(w, http.StatusBadRequest, "Request body must contain a code")
		return
	}

	tok, err := h.oauth.Exchange(r.Context(), req.Code)
	if err != nil {
		h.logger.Error("exchanging token", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to exchange authorization code")
		return
	}
	h.logger.Info("exchanged code for token")

	resp := tokenResponse{
		AccessToken:  tok.AccessToken,
		TokenType:    tok.TokenType,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	}
	if !tok.Expiry.IsZero() {
		resp.ExpiresIn = int(time.Until(tok.Expiry).Seconds())
	}
	writeJSON(w, http.StatusOK, resp)
}

type userDataResponse struct {
	Tree             *clustering.Tree     `json:"tree"`
	Metadata         library.Metadata     `json:"metadata"`
	ClusterSummaries []clustering.Summary `json:"cluster_summaries"`
	ClusterMetadata  *clustering.Metadata `json:"cluster_metadata,omitempty"`
	Message          string               `json:"message,omitempty"`
	Reason           string               `json:"reason,omitempty"`
}

// UserData clusters the caller's listening history (GET /api/user-data).
func (h *Handlers) UserData(w http.ResponseWriter, r *http.Request) {
	api, session, ok := h.requestClient(w, r)
	if !ok {
		return
	}

	table, md, err := h.library.UserData(r.Context(), api)
	if err != nil {
		h.logger.Error("getting user data", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	report, err := h.analysis.Analyze(r.Context(), table)
	if err != nil {
		h.logger.Error("analyzing user data", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if session != nil {
		h.sessions.MarkAnalyzed(r.Context(), session.UserID)
	}

	writeJSON(w, http.StatusOK, userDataResponse{
		Tree:             report.Tree,
		Metadata:         md,
		ClusterSummaries: report.Summaries,
		ClusterMetadata:  report.Clustering,
		Message:          report.Message,
		Reason:           report.Reason,
	})
}

type playlistRequest struct {
	ClusterID   *int   `json:"cluster_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// CreatePlaylist saves one cluster of the caller's listening history as a
// playlist (POST /api/playlist/create).
func (h *Handlers) CreatePlaylist(w http.ResponseWriter, r *http.Request) {
	api, session, ok := h.requestClient(w, r)
	if !ok {
		return
	}

	var req playlistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ClusterID == nil {
		writeError(w, http.StatusBadRequest, "Request body must contain an integer cluster_id")
		return
	}

	table, _, err := h.library.UserData(r.Context(), api)
	if err != nil {
		h.logger.Error("getting user data", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	report, err := h.analysis.Analyze(r.Context(), table)
	if err != nil {
		h.logger.Error("analyzing user data", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var userID string
	if session != nil {
		userID = session.UserID
	} else if user, err := api.CurrentUser(r.Context()); err == nil {
		userID = user.ID
	} else {
		h.logger.Warn("getting current user", "error", err)
	}

	playlistID, err := h.analysis.CreateClusterPlaylist(r.Context(), api, userID, report, analysis.PlaylistRequest{
		ClusterID:   *req.ClusterID,
		Name:        req.Name,
		Description: req.Description,
	})
	switch {
	case errors.Is(err, analysis.ErrNotClustered):
		writeError(w, http.StatusUnprocessableEntity, report.Message)
		return
	case errors.Is(err, analysis.ErrUnknownCluster):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		h.logger.Error("creating playlist", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"playlist_id": playlistID})
}

// UserPlaylists lists the caller's playlists (GET /api/spotify/user-playlists).
func (h *Handlers) UserPlaylists(w http.ResponseWriter, r *http.Request) {
	api, _, ok := h.requestClient(w, r)
	if !ok {
		return
	}

	playlists, err := api.UserPlaylists(r.Context(), userPlaylistsLimit)
	if err != nil {
		h.logger.Error("getting user playlists", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": playlists})
}

type playlistTrack struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Artist   string `json:"artist"`
	ArtistID string `json:"artist_id"`
	Album    string `json:"album"`
}

// PlaylistTracks lists every track of a playlist
// (GET /api/spotify/playlist-tracks/{playlistID}).
func (h *Handlers) PlaylistTracks(w http.ResponseWriter, r *http.Request) {
	api, _, ok := h.requestClient(w, r)
	if !ok {
		return
	}

	tracks, err := api.PlaylistTracks(r.Context(), chi.URLParam(r, "playlistID"))
	if err != nil {
		h.logger.Error("getting playlist tracks", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	items := make([]playlistTrack, len(tracks))
	for i, t := range tracks {
		items[i] = playlistTrack{ID: t.ID, Name: t.Name, Artist: t.Artist, ArtistID: t.ArtistID, Album: t.Album}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

type playlistClusterResponse struct {
	ClusterLabels    []int                `json:"cluster_labels"`
	ClusterSummaries []clustering.Summary `json:"cluster_summaries"`
	TrackDF          []analysis.TrackRow  `json:"track_df"`
	Message          string               `json:"message,omitempty"`
	Reason           string               `json:"reason,omitempty"`
}

// ClusterPlaylist clusters the tracks of one playlist
// (POST /api/spotify/playlist-cluster/{playlistID}).
func (h *Handlers) ClusterPlaylist(w http.ResponseWriter, r *http.Request) {
	api, _, ok := h.requestClient(w, r)
	if !ok {
		return
	}

	table, err := h.library.PlaylistTable(r.Context(), api, chi.URLParam(r, "playlistID"))
	if err != nil {
		h.logger.Error("building playlist table", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	report, err := h.analysis.Analyze(r.Context(), table)
	if err != nil {
		h.logger.Error("analyzing playlist", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, playlistClusterResponse{
		ClusterLabels:    report.Labels,
		ClusterSummaries: report.Summaries,
		TrackDF:          report.Rows(),
		Message:          report.Message,
		Reason:           report.Reason,
	})
}

package web

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/justestif/go-spotify-mood-map/internal/analysis"
	"github.com/justestif/go-spotify-mood-map/internal/auth"
	"github.com/justestif/go-spotify-mood-map/internal/library"
	"github.com/justestif/go-spotify-mood-map/internal/spotify"
)

const (
	oauthStateCookie = "oauth_state"
	stateTTL         = 5 * time.Minute
)

// OAuth is the Spotify authorization code flow. *spotifyauth.Authenticator
// implements it.
type OAuth interface {
	AuthURL(state string, opts ...oauth2.AuthCodeOption) string
	Token(ctx context.Context, state string, r *http.Request, opts ...oauth2.AuthCodeOption) (*oauth2.Token, error)
	Exchange(ctx context.Context, code string, opts ...oauth2.AuthCodeOption) (*oauth2.Token, error)
	RefreshToken(ctx context.Context, token *oauth2.Token) (*oauth2.Token, error)
	Client(ctx context.Context, token *oauth2.Token) *http.Client
}

// SpotifyAPI is what the handlers use from a per-request Spotify client.
type SpotifyAPI interface {
	library.Source
	analysis.PlaylistCreator
	CurrentUser(ctx context.Context) (spotify.User, error)
	UserPlaylists(ctx context.Context, limit int) ([]spotify.PlaylistInfo, error)
}

// ClientFactory wraps an authorized HTTP client in a Spotify API client.
type ClientFactory func(httpClient *http.Client) SpotifyAPI

// Handlers contains HTTP handlers for the web application.
type Handlers struct {
	oauth      OAuth // nil when credentials are not configured
	spotifyCfg spotifyStatus
	sessions   SessionManager
	templates  *Templates
	library    *library.Service
	analysis   *analysis.Service
	newClient  ClientFactory
	logger     *slog.Logger
}

// spotifyStatus is reported by the health endpoint.
type spotifyStatus struct {
	ClientIDSet     bool   `json:"client_id_set"`
	ClientSecretSet bool   `json:"client_secret_set"`
	RedirectURI     string `json:"redirect_uri"`
}

// Home renders the landing page (GET /).
func (h *Handlers) Home(w http.ResponseWriter, r *http.Request) {
	data := HomePageData{
		PageData:   PageData{Title: "Spotify Mood Map"},
		Configured: h.oauth != nil,
	}
	if session := h.sessions.GetFromRequest(r); session != nil {
		data.Authenticated = true
		data.User = &UserData{ID: session.UserID, Name: session.UserName}
		data.LastAnalyzedAt = session.LastAnalyzedAt
	}
	h.render(w, "home", data)
}

// Login starts a server-side sign-in (GET /auth/login). The state cookie
// tells Callback to finish with a session.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	if h.oauth == nil {
		http.Error(w, "Spotify client ID not configured", http.StatusInternalServerError)
		return
	}

	state, err := randomHex(16)
	if err != nil {
		http.Error(w, "Failed to generate state", http.StatusInternalServerError)
		return
	}
	setStateCookie(w, state, int(stateTTL.Seconds()))

	http.Redirect(w, r, auth.AuthURL(h.oauth, state), http.StatusTemporaryRedirect)
}

// Callback receives the Spotify redirect (GET /callback). Without a state
// cookie the sign-in was started by the page script, so the callback page
// hands it the code to exchange.
func (h *Handlers) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	cookie, err := r.Cookie(oauthStateCookie)
	if err != nil {
		h.render(w, "callback", CallbackPageData{
			PageData: PageData{Title: "Signing in"},
			Code:     q.Get("code"),
			Error:    q.Get("error"),
		})
		return
	}
	setStateCookie(w, "", -1)

	state := q.Get("state")
	if subtle.ConstantTimeCompare([]byte(state), []byte(cookie.Value)) != 1 {
		http.Error(w, "State mismatch", http.StatusBadRequest)
		return
	}
	if reason := q.Get("error"); reason != "" {
		http.Error(w, "Spotify auth error: "+reason, http.StatusBadRequest)
		return
	}
	if h.oauth == nil {
		http.Error(w, "Spotify credentials not configured", http.StatusInternalServerError)
		return
	}

	ctx := r.Context()
	token, err := h.oauth.Token(ctx, state, r)
	if err != nil {
		h.logger.Error("exchanging code for token", "error", err)
		http.Error(w, "Failed to get token", http.StatusInternalServerError)
		return
	}

	user, err := h.newClient(h.oauth.Client(ctx, token)).CurrentUser(ctx)
	if err != nil {
		h.logger.Error("getting user info", "error", err)
		http.Error(w, "Failed to get user info", http.StatusInternalServerError)
		return
	}

	session, err := h.sessions.Create(ctx, token, user.ID, user.DisplayName)
	if err != nil {
		h.logger.Error("creating session", "user", user.ID, "error", err)
		http.Error(w, "Failed to create session", http.StatusInternalServerError)
		return
	}
	h.sessions.SetCookie(w, session)
	h.logger.Info("user signed in", "user", user.ID)

	http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
}

// Logout ends the session (POST /auth/logout).
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if session := h.sessions.GetFromRequest(r); session != nil {
		h.sessions.Delete(r.Context(), session.ID)
	}
	h.sessions.ClearCookie(w)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handlers) render(w http.ResponseWriter, page string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.templates.Render(w, page, data); err != nil {
		h.logger.Error("rendering page", "page", page, "error", err)
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
	}
}

// setStateCookie sets the login state cookie, or clears it when maxAge is
// negative.
func setStateCookie(w http.ResponseWriter, state string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	})
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

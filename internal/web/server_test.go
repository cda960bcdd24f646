package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/justestif/go-spotify-mood-map/internal/analysis"
	"github.com/justestif/go-spotify-mood-map/internal/catalog"
	"github.com/justestif/go-spotify-mood-map/internal/clustering"
	"github.com/justestif/go-spotify-mood-map/internal/config"
	"github.com/justestif/go-spotify-mood-map/internal/library"
	"github.com/justestif/go-spotify-mood-map/internal/spotify"
	webfs "github.com/justestif/go-spotify-mood-map/web"
)

type fakeOAuth struct {
	mu        sync.Mutex
	refreshed int
}

func (f *fakeOAuth) AuthURL(state string, _ ...oauth2.AuthCodeOption) string {
	return "https://accounts.spotify.com/authorize?state=" + state
}

func (f *fakeOAuth) Token(context.Context, string, *http.Request, ...oauth2.AuthCodeOption) (*oauth2.Token, error) {
	return &oauth2.Token{AccessToken: "session-token", Expiry: time.Now().Add(time.Hour)}, nil
}

func (f *fakeOAuth) Exchange(_ context.Context, code string, _ ...oauth2.AuthCodeOption) (*oauth2.Token, error) {
	if code == "bad" {
		return nil, errors.New("invalid_grant")
	}
	return &oauth2.Token{
		AccessToken:  "access-" + code,
		TokenType:    "Bearer",
		RefreshToken: "refresh-" + code,
		Expiry:       time.Now().Add(time.Hour),
	}, nil
}

func (f *fakeOAuth) RefreshToken(context.Context, *oauth2.Token) (*oauth2.Token, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshed++
	return &oauth2.Token{AccessToken: "refreshed-token", RefreshToken: "r", Expiry: time.Now().Add(time.Hour)}, nil
}

func (f *fakeOAuth) Client(context.Context, *oauth2.Token) *http.Client {
	return http.DefaultClient
}

// fakeAPI serves a fixed library and records the access tokens it was
// built with.
type fakeAPI struct {
	mu       sync.Mutex
	tracks   []clustering.Track
	features map[string]clustering.AudioFeatures
	tokens   []string
	added    []string
}

func (f *fakeAPI) factory(hc *http.Client) SpotifyAPI {
	if tr, ok := hc.Transport.(*oauth2.Transport); ok {
		if tok, err := tr.Source.Token(); err == nil {
			f.mu.Lock()
			f.tokens = append(f.tokens, tok.AccessToken)
			f.mu.Unlock()
		}
	}
	return f
}

func (f *fakeAPI) lastToken() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.tokens) == 0 {
		return ""
	}
	return f.tokens[len(f.tokens)-1]
}

func (f *fakeAPI) RecentlyPlayed(context.Context, int) ([]clustering.Track, error) {
	return f.tracks, nil
}

func (f *fakeAPI) TopTracks(context.Context, int, spotify.TimeRange) ([]clustering.Track, error) {
	return nil, nil
}

func (f *fakeAPI) PlaylistTracks(_ context.Context, id string) ([]clustering.Track, error) {
	if id != "pl-source" {
		return nil, fmt.Errorf("playlist %s not found", id)
	}
	return f.tracks, nil
}

func (f *fakeAPI) AudioFeatures(_ context.Context, ids []string) (map[string]clustering.AudioFeatures, error) {
	out := make(map[string]clustering.AudioFeatures)
	for _, id := range ids {
		if v, ok := f.features[id]; ok {
			out[id] = v
		}
	}
	return out, nil
}

func (f *fakeAPI) ArtistGenres(_ context.Context, ids []string) (map[string][]string, error) {
	out := make(map[string][]string)
	for _, id := range ids {
		out[id] = []string{"indie"}
	}
	return out, nil
}

func (f *fakeAPI) CreatePlaylist(context.Context, string, string, bool) (string, error) {
	return "pl-new", nil
}

func (f *fakeAPI) AddTracksToPlaylist(_ context.Context, _ string, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added = append(f.added, ids...)
	return nil
}

func (f *fakeAPI) CurrentUser(context.Context) (spotify.User, error) {
	return spotify.User{ID: "user1", DisplayName: "Test User"}, nil
}

func (f *fakeAPI) UserPlaylists(context.Context, int) ([]spotify.PlaylistInfo, error) {
	return []spotify.PlaylistInfo{{ID: "pl-source", Name: "Road Trip"}}, nil
}

func f64(v float64) *float64 { return &v }

// newFakeAPI returns five quiet tracks and five loud ones. With features
// false the catalogue knows nothing about them.
func newFakeAPI(features bool) *fakeAPI {
	api := &fakeAPI{features: make(map[string]clustering.AudioFeatures)}
	add := func(id string, energy, valence float64, played time.Time) {
		api.tracks = append(api.tracks, clustering.Track{
			ID: id, Name: "Song " + id, Artist: "Artist", ArtistID: "a1", PlayedAt: &played,
		})
		if !features {
			return
		}
		api.features[id] = clustering.AudioFeatures{
			Danceability:     f64((energy + valence) / 2),
			Energy:           f64(energy),
			Valence:          f64(valence),
			Tempo:            f64(80 + 100*energy),
			Acousticness:     f64(1 - energy),
			Instrumentalness: f64(0.1 * valence),
			Liveness:         f64(0.1 + 0.05*energy),
			Speechiness:      f64(0.05 + 0.02*valence),
			Loudness:         f64(-20 + 15*energy),
		}
	}
	start := time.Date(2024, 3, 1, 20, 0, 0, 0, time.UTC)
	for i := range 5 {
		add(fmt.Sprintf("q%d", i), 0.1+0.01*float64(i), 0.2+0.01*float64(i), start.Add(time.Duration(i)*time.Hour))
	}
	for i := range 5 {
		add(fmt.Sprintf("l%d", i), 0.9-0.01*float64(i), 0.8-0.01*float64(i), start.Add(time.Duration(i+5)*time.Hour))
	}
	return api
}

type testServer struct {
	handler  http.Handler
	sessions *SessionStore
	oauth    *fakeOAuth
	api      *fakeAPI
}

func newTestServer(t *testing.T, api *fakeAPI, configured bool) *testServer {
	t.Helper()

	templates, err := fs.Sub(webfs.TemplatesFS, "templates")
	require.NoError(t, err)

	an, err := analysis.New(clustering.Config{NumClusters: 2})
	require.NoError(t, err)

	ts := &testServer{sessions: NewSessionStore(), api: api}
	cfg := ServerConfig{
		TemplatesFS: templates,
		StaticFS:    fstest.MapFS{"style.css": {Data: []byte("body{}")}},
		Sessions:    ts.sessions,
		Library:     library.New(catalog.NewService(catalog.NewMemoryStore(), catalog.WithFeatureFetching(true))),
		Analysis:    an,
		NewClient:   api.factory,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	if configured {
		ts.oauth = &fakeOAuth{}
		cfg.OAuth = ts.oauth
		cfg.Spotify = config.SpotifyConfig{ClientID: "id", ClientSecret: "secret"}
	}

	srv, err := NewServer(cfg)
	require.NoError(t, err)
	ts.handler = srv.Handler()
	return ts
}

func (ts *testServer) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) login(t *testing.T, tok *oauth2.Token) *http.Cookie {
	t.Helper()
	s, err := ts.sessions.Create(context.Background(), tok, "user1", "Test User")
	require.NoError(t, err)
	return &http.Cookie{Name: sessionCookieName, Value: s.ID}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func bearer(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer abc")
	return req
}

func TestNewServerRequiresServices(t *testing.T) {
	_, err := NewServer(ServerConfig{})
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, newFakeAPI(true), true)

	rec := ts.do(t, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{
		"status": "healthy",
		"spotify_config": {
			"client_id_set": true,
			"client_secret_set": true,
			"redirect_uri": "http://127.0.0.1:8000/callback"
		}
	}`, rec.Body.String())
}

func TestAuthURLEndpoint(t *testing.T) {
	t.Run("configured", func(t *testing.T) {
		ts := newTestServer(t, newFakeAPI(true), true)
		rec := ts.do(t, httptest.NewRequest(http.MethodGet, "/api/spotify/auth-url", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, decode(t, rec)["auth_url"], "https://accounts.spotify.com/authorize?state=")
	})

	t.Run("not configured", func(t *testing.T) {
		ts := newTestServer(t, newFakeAPI(true), false)
		rec := ts.do(t, httptest.NewRequest(http.MethodGet, "/api/spotify/auth-url", nil))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "Spotify client ID not configured", decode(t, rec)["detail"])
	})
}

func TestExchangeToken(t *testing.T) {
	ts := newTestServer(t, newFakeAPI(true), true)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantDetail string
	}{
		{"missing code", `{}`, http.StatusBadRequest, "Request body must contain a code"},
		{"malformed body", `{`, http.StatusBadRequest, "Request body must contain a code"},
		{"rejected code", `{"code":"bad"}`, http.StatusInternalServerError, "Failed to exchange authorization code"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, httptest.NewRequest(http.MethodPost, "/api/spotify/token", strings.NewReader(tt.body)))
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantDetail, decode(t, rec)["detail"])
		})
	}

	t.Run("valid code", func(t *testing.T) {
		rec := ts.do(t, httptest.NewRequest(http.MethodPost, "/api/spotify/token", strings.NewReader(`{"code":"xyz"}`)))
		require.Equal(t, http.StatusOK, rec.Code)
		body := decode(t, rec)
		assert.Equal(t, "access-xyz", body["access_token"])
		assert.Equal(t, "refresh-xyz", body["refresh_token"])
		assert.InDelta(t, 3600, body["expires_in"], 5)
	})

	t.Run("not configured", func(t *testing.T) {
		unconfigured := newTestServer(t, newFakeAPI(true), false)
		rec := unconfigured.do(t, httptest.NewRequest(http.MethodPost, "/api/spotify/token", strings.NewReader(`{"code":"xyz"}`)))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "Spotify credentials not configured", decode(t, rec)["detail"])
	})
}

func TestAPIRequiresAuthorization(t *testing.T) {
	ts := newTestServer(t, newFakeAPI(true), true)

	endpoints := []struct{ method, path string }{
		{http.MethodGet, "/api/user-data"},
		{http.MethodPost, "/api/playlist/create"},
		{http.MethodGet, "/api/spotify/user-playlists"},
		{http.MethodGet, "/api/spotify/playlist-tracks/pl-source"},
		{http.MethodPost, "/api/spotify/playlist-cluster/pl-source"},
	}
	for _, ep := range endpoints {
		t.Run(ep.method+" "+ep.path, func(t *testing.T) {
			rec := ts.do(t, httptest.NewRequest(ep.method, ep.path, nil))
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, "Missing or invalid authorization header", decode(t, rec)["detail"])

			req := httptest.NewRequest(ep.method, ep.path, nil)
			req.Header.Set("Authorization", "Basic abc")
			assert.Equal(t, http.StatusUnauthorized, ts.do(t, req).Code)
		})
	}
}

func TestUserData(t *testing.T) {
	t.Run("bearer token", func(t *testing.T) {
		ts := newTestServer(t, newFakeAPI(true), true)

		rec := ts.do(t, bearer(http.MethodGet, "/api/user-data", ""))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "abc", ts.api.lastToken())

		body := decode(t, rec)
		assert.NotNil(t, body["tree"])
		assert.NotContains(t, body, "message")
		assert.Len(t, body["cluster_summaries"], 2)

		md := body["metadata"].(map[string]any)
		assert.EqualValues(t, 10, md["total_tracks"])
		assert.Equal(t, []any{map[string]any{"genre": "indie", "count": float64(10)}}, md["genres"])
	})

	t.Run("expired session token is refreshed", func(t *testing.T) {
		ts := newTestServer(t, newFakeAPI(true), true)
		cookie := ts.login(t, &oauth2.Token{AccessToken: "old", RefreshToken: "r", Expiry: time.Now().Add(-time.Hour)})

		req := httptest.NewRequest(http.MethodGet, "/api/user-data", nil)
		req.AddCookie(cookie)
		rec := ts.do(t, req)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, 1, ts.oauth.refreshed)
		assert.Equal(t, "refreshed-token", ts.api.lastToken())
		assert.Equal(t, "refreshed-token", ts.sessions.Get(context.Background(), cookie.Value).Token.AccessToken)
	})

	t.Run("missing audio features", func(t *testing.T) {
		ts := newTestServer(t, newFakeAPI(false), true)

		rec := ts.do(t, bearer(http.MethodGet, "/api/user-data", ""))
		require.Equal(t, http.StatusOK, rec.Code)

		body := decode(t, rec)
		assert.Nil(t, body["tree"])
		assert.Equal(t, analysis.DegradedMessage, body["message"])
		summaries := body["cluster_summaries"].([]any)
		require.Len(t, summaries, 1)
		assert.Nil(t, summaries[0].(map[string]any)["cluster_id"])
	})

	t.Run("too few tracks", func(t *testing.T) {
		api := newFakeAPI(true)
		api.tracks = api.tracks[:1]
		ts := newTestServer(t, api, true)

		rec := ts.do(t, bearer(http.MethodGet, "/api/user-data", ""))
		require.Equal(t, http.StatusOK, rec.Code)

		body := decode(t, rec)
		assert.Nil(t, body["tree"])
		assert.Equal(t, analysis.TooFewTracksMessage, body["message"])
		assert.Contains(t, body["reason"], "not enough tracks to cluster")
	})
}

func TestCreatePlaylist(t *testing.T) {
	tests := []struct {
		name       string
		features   bool
		body       string
		wantStatus int
	}{
		{"missing body", true, ``, http.StatusBadRequest},
		{"missing cluster", true, `{"name":"x"}`, http.StatusBadRequest},
		{"unknown cluster", true, `{"cluster_id":7}`, http.StatusBadRequest},
		{"not clustered", false, `{"cluster_id":0}`, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, newFakeAPI(tt.features), true)
			rec := ts.do(t, bearer(http.MethodPost, "/api/playlist/create", tt.body))
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.NotEmpty(t, decode(t, rec)["detail"])
			assert.Empty(t, ts.api.added)
		})
	}

	t.Run("created", func(t *testing.T) {
		ts := newTestServer(t, newFakeAPI(true), true)
		rec := ts.do(t, bearer(http.MethodPost, "/api/playlist/create", `{"cluster_id":1}`))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "pl-new", decode(t, rec)["playlist_id"])
		assert.Equal(t, []string{"l0", "l1", "l2", "l3", "l4"}, ts.api.added)
	})

	t.Run("too few tracks", func(t *testing.T) {
		api := newFakeAPI(true)
		api.tracks = api.tracks[:1]
		ts := newTestServer(t, api, true)

		rec := ts.do(t, bearer(http.MethodPost, "/api/playlist/create", `{"cluster_id":0}`))
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
		assert.Equal(t, analysis.TooFewTracksMessage, decode(t, rec)["detail"])
		assert.Empty(t, ts.api.added)
	})
}

func TestPlaylistEndpoints(t *testing.T) {
	ts := newTestServer(t, newFakeAPI(true), true)

	rec := ts.do(t, bearer(http.MethodGet, "/api/spotify/user-playlists", ""))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"items":[{"id":"pl-source","name":"Road Trip","tracks":0}]}`, rec.Body.String())

	rec = ts.do(t, bearer(http.MethodGet, "/api/spotify/playlist-tracks/pl-source", ""))
	require.Equal(t, http.StatusOK, rec.Code)
	items := decode(t, rec)["items"].([]any)
	require.Len(t, items, 10)
	assert.Equal(t, "q0", items[0].(map[string]any)["id"])

	rec = ts.do(t, bearer(http.MethodGet, "/api/spotify/playlist-tracks/missing", ""))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestClusterPlaylist(t *testing.T) {
	ts := newTestServer(t, newFakeAPI(true), true)

	rec := ts.do(t, bearer(http.MethodPost, "/api/spotify/playlist-cluster/pl-source", ""))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode(t, rec)
	assert.Equal(t, []any{0.0, 0.0, 0.0, 0.0, 0.0, 1.0, 1.0, 1.0, 1.0, 1.0}, body["cluster_labels"])
	assert.Len(t, body["cluster_summaries"], 2)
	rows := body["track_df"].([]any)
	require.Len(t, rows, 10)
	assert.EqualValues(t, 1, rows[9].(map[string]any)["cluster"])
}

func TestHomePage(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		ts := newTestServer(t, newFakeAPI(true), false)
		rec := ts.do(t, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "credentials are not configured")
	})

	t.Run("signed out", func(t *testing.T) {
		ts := newTestServer(t, newFakeAPI(true), true)
		rec := ts.do(t, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `href="/auth/login"`)
	})

	t.Run("signed in", func(t *testing.T) {
		ts := newTestServer(t, newFakeAPI(true), true)
		cookie := ts.login(t, &oauth2.Token{AccessToken: "tok", Expiry: time.Now().Add(time.Hour)})
		home := func() string {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.AddCookie(cookie)
			rec := ts.do(t, req)
			require.Equal(t, http.StatusOK, rec.Code)
			return rec.Body.String()
		}

		body := home()
		assert.Contains(t, body, "Test User")
		assert.Contains(t, body, `id="mood-map"`)
		assert.NotContains(t, body, "Last analyzed")
		assert.NotContains(t, body, "ZgotmplZ")

		req := httptest.NewRequest(http.MethodGet, "/api/user-data", nil)
		req.AddCookie(cookie)
		require.Equal(t, http.StatusOK, ts.do(t, req).Code)

		assert.Contains(t, home(), "Last analyzed")
	})
}

func TestLoginAndCallback(t *testing.T) {
	ts := newTestServer(t, newFakeAPI(true), true)

	rec := ts.do(t, httptest.NewRequest(http.MethodGet, "/auth/login", nil))
	require.Equal(t, http.StatusTemporaryRedirect, rec.Code)

	var state *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == oauthStateCookie {
			state = c
		}
	}
	require.NotNil(t, state)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, state.Value, loc.Query().Get("state"))

	t.Run("state mismatch", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/callback?state=other&code=c", nil)
		req.AddCookie(state)
		assert.Equal(t, http.StatusBadRequest, ts.do(t, req).Code)
	})

	t.Run("session created", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/callback?state="+state.Value+"&code=c", nil)
		req.AddCookie(state)
		rec := ts.do(t, req)
		require.Equal(t, http.StatusTemporaryRedirect, rec.Code)

		var session *http.Cookie
		for _, c := range rec.Result().Cookies() {
			if c.Name == sessionCookieName {
				session = c
			}
		}
		require.NotNil(t, session)
		s := ts.sessions.Get(context.Background(), session.Value)
		require.NotNil(t, s)
		assert.Equal(t, "user1", s.UserID)
		assert.Equal(t, "session-token", s.Token.AccessToken)
	})

	t.Run("browser exchange", func(t *testing.T) {
		rec := ts.do(t, httptest.NewRequest(http.MethodGet, "/callback?code=abc123", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `data-code="abc123"`)
	})
}

func TestLogout(t *testing.T) {
	ts := newTestServer(t, newFakeAPI(true), true)
	cookie := ts.login(t, &oauth2.Token{AccessToken: "tok"})

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(cookie)
	rec := ts.do(t, req)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Nil(t, ts.sessions.Get(context.Background(), cookie.Value))
}

func TestStaticFiles(t *testing.T) {
	ts := newTestServer(t, newFakeAPI(true), true)
	rec := ts.do(t, httptest.NewRequest(http.MethodGet, "/static/style.css", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "body{}", rec.Body.String())
}

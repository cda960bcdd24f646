package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"

	"github.com/justestif/go-spotify-mood-map/internal/config"
)

const callbackTimeout = 2 * time.Minute

// Scopes are the Spotify permissions the application asks for.
var Scopes = []string{
	spotifyauth.ScopeUserLibraryRead,
	spotifyauth.ScopeUserTopRead,
	spotifyauth.ScopePlaylistModifyPublic,
	spotifyauth.ScopeUserReadRecentlyPlayed,
}

var (
	// ErrMissingCredentials is returned when the client ID or secret is not set.
	ErrMissingCredentials = config.ErrMissingCredentials

	// ErrAuthTimeout is returned when the OAuth callback is not received in time.
	ErrAuthTimeout = errors.New("authentication timed out waiting for callback")

	// ErrStateMismatch is returned when the OAuth state parameter doesn't match.
	ErrStateMismatch = errors.New("OAuth state mismatch")
)

// NewSpotifyAuth builds the Spotify authenticator for cfg.
func NewSpotifyAuth(cfg config.SpotifyConfig) (*spotifyauth.Authenticator, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, ErrMissingCredentials
	}
	redirect := cfg.RedirectURI
	if redirect == "" {
		redirect = config.DefaultRedirectURI
	}
	return spotifyauth.New(
		spotifyauth.WithClientID(cfg.ClientID),
		spotifyauth.WithClientSecret(cfg.ClientSecret),
		spotifyauth.WithRedirectURL(redirect),
		spotifyauth.WithScopes(Scopes...),
	), nil
}

// URLBuilder builds consent page URLs. *spotifyauth.Authenticator implements it.
type URLBuilder interface {
	AuthURL(state string, opts ...oauth2.AuthCodeOption) string
}

// AuthURL returns the consent page URL. The dialog is always shown so the
// user can switch accounts.
func AuthURL(a URLBuilder, state string) string {
	return a.AuthURL(state, oauth2.SetAuthURLParam("show_dialog", "true"))
}

// Authenticator runs the loopback OAuth flow for the command line and caches
// the resulting token.
type Authenticator struct {
	auth        *spotifyauth.Authenticator
	cache       *TokenCache
	redirectURI string
	out         io.Writer
	logger      *slog.Logger
}

// Option configures an Authenticator.
type Option func(*Authenticator)

// WithTokenCache overrides the default token cache location.
func WithTokenCache(c *TokenCache) Option {
	return func(a *Authenticator) { a.cache = c }
}

// WithOutput sets where the sign-in instructions are printed.
func WithOutput(w io.Writer) Option {
	return func(a *Authenticator) { a.out = w }
}

// WithLogger sets the authenticator logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Authenticator) {
		if l != nil {
			a.logger = l
		}
	}
}

// New creates an Authenticator from the Spotify settings.
// Returns ErrMissingCredentials if the client ID or secret is not set.
func New(cfg config.SpotifyConfig, opts ...Option) (*Authenticator, error) {
	sa, err := NewSpotifyAuth(cfg)
	if err != nil {
		return nil, err
	}

	a := &Authenticator{
		auth:        sa,
		redirectURI: cfg.RedirectURI,
		out:         os.Stderr,
		logger:      slog.Default(),
	}
	if a.redirectURI == "" {
		a.redirectURI = config.DefaultRedirectURI
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.cache == nil {
		cache, err := DefaultTokenCache()
		if err != nil {
			return nil, fmt.Errorf("creating token cache: %w", err)
		}
		a.cache = cache
	}
	return a, nil
}

// Authenticate returns a Spotify client for the signed-in user. A cached
// token is reused when Spotify still accepts it, refreshing it on the way if
// needed; otherwise the browser sign-in runs.
func (a *Authenticator) Authenticate(ctx context.Context) (*spotify.Client, error) {
	cached, err := a.cache.Load()
	if err != nil {
		return nil, fmt.Errorf("loading cached token: %w", err)
	}

	if cached != nil {
		client := spotify.New(a.auth.Client(ctx, cached), spotify.WithRetry(true))
		if _, err := client.CurrentUser(ctx); err == nil {
			a.saveIfRefreshed(client, cached)
			return client, nil
		}
		a.logger.Info("cached token rejected, signing in again")
	}

	token, err := a.signIn(ctx)
	if err != nil {
		return nil, err
	}
	if err := a.cache.Save(token); err != nil {
		a.logger.Warn("caching token failed", "path", a.cache.Path(), "error", err)
	}
	return spotify.New(a.auth.Client(ctx, token), spotify.WithRetry(true)), nil
}

func (a *Authenticator) saveIfRefreshed(client *spotify.Client, old *oauth2.Token) {
	current, err := client.Token()
	if err != nil || current.AccessToken == old.AccessToken {
		return
	}
	if err := a.cache.Save(current); err != nil {
		a.logger.Warn("caching refreshed token failed", "error", err)
	}
}

// Logout removes the cached token.
func (a *Authenticator) Logout() error {
	return a.cache.Delete()
}

// callbackTarget splits the redirect URI into the listen address and path.
func callbackTarget(redirectURI string) (addr, path string, err error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return "", "", fmt.Errorf("parsing redirect URI: %w", err)
	}
	if u.Host == "" {
		return "", "", fmt.Errorf("redirect URI %q has no host", redirectURI)
	}
	if u.Path == "" {
		return u.Host, "/", nil
	}
	return u.Host, u.Path, nil
}

type callbackResult struct {
	token *oauth2.Token
	err   error
}

// signIn serves the redirect URI on loopback, prints the consent URL and
// waits for Spotify to redirect back.
func (a *Authenticator) signIn(ctx context.Context) (*oauth2.Token, error) {
	addr, path, err := callbackTarget(a.redirectURI)
	if err != nil {
		return nil, err
	}
	state, err := randomState()
	if err != nil {
		return nil, fmt.Errorf("generating state: %w", err)
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listening for callback on %s: %w", addr, err)
	}

	results := make(chan callbackResult, 1)
	mux := http.NewServeMux()
	mux.Handle(path, a.callbackHandler(state, results))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			deliver(results, callbackResult{err: fmt.Errorf("callback server: %w", err)})
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	fmt.Fprintf(a.out, "\nTo authenticate, open this URL in your browser:\n%s\n\nWaiting for authentication...\n",
		AuthURL(a.auth, state))

	waitCtx, cancel := context.WithTimeoutCause(ctx, callbackTimeout, ErrAuthTimeout)
	defer cancel()

	select {
	case res := <-results:
		return res.token, res.err
	case <-waitCtx.Done():
		return nil, context.Cause(waitCtx)
	}
}

// callbackHandler finishes the code exchange for state. Only the first
// outcome is delivered; later hits still get a response.
func (a *Authenticator) callbackHandler(state string, results chan<- callbackResult) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		if q.Get("state") != state {
			http.Error(w, "State mismatch", http.StatusBadRequest)
			deliver(results, callbackResult{err: ErrStateMismatch})
			return
		}
		if reason := q.Get("error"); reason != "" {
			http.Error(w, "Authentication failed: "+reason, http.StatusBadRequest)
			deliver(results, callbackResult{err: fmt.Errorf("spotify auth error: %s", reason)})
			return
		}

		token, err := a.auth.Token(r.Context(), state, r)
		if err != nil {
			http.Error(w, "Failed to get token", http.StatusInternalServerError)
			deliver(results, callbackResult{err: fmt.Errorf("exchanging code for token: %w", err)})
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		io.WriteString(w, signedInPage)
		deliver(results, callbackResult{token: token})
	}
}

func deliver(results chan<- callbackResult, res callbackResult) {
	select {
	case results <- res:
	default:
	}
}

const signedInPage = `<!DOCTYPE html>
<html>
<head><title>Signed in</title></head>
<body>
<h1>Signed in to Spotify Mood Map</h1>
<p>You can close this window and return to the terminal.</p>
</body>
</html>`

func randomState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

package web

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/justestif/go-spotify-mood-map/internal/db"
)

const (
	sessionCookieName = "session_id"
	sessionTTL        = 24 * time.Hour
)

// Session is a signed-in browser.
type Session struct {
	ID             string
	Token          *oauth2.Token
	UserID         string
	UserName       string
	ExpiresAt      time.Time
	LastAnalyzedAt *time.Time
}

func (s *Session) expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// SessionManager stores sessions and maps them to cookies.
type SessionManager interface {
	Create(ctx context.Context, token *oauth2.Token, userID, userName string) (*Session, error)
	Get(ctx context.Context, id string) *Session
	Delete(ctx context.Context, id string)
	UpdateToken(ctx context.Context, id string, token *oauth2.Token)
	MarkAnalyzed(ctx context.Context, userID string)
	GetFromRequest(r *http.Request) *Session
	SetCookie(w http.ResponseWriter, session *Session)
	ClearCookie(w http.ResponseWriter)
}

// sessionCookie implements the cookie half of SessionManager.
type sessionCookie struct{}

func (sessionCookie) SetCookie(w http.ResponseWriter, session *Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    session.ID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  session.ExpiresAt,
	})
}

func (sessionCookie) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}

func sessionID(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return cookie.Value, true
}

// SessionStore keeps sessions in memory. Used with the memory and sqlite
// storage drivers.
type SessionStore struct {
	sessionCookie

	mu       sync.RWMutex
	sessions map[string]*Session
	now      func() time.Time
}

// NewSessionStore creates an empty in-memory session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// Create stores a new session and drops any that have expired.
func (s *SessionStore) Create(_ context.Context, token *oauth2.Token, userID, userName string) (*Session, error) {
	id, err := randomHex(32)
	if err != nil {
		return nil, err
	}

	now := s.now()
	session := &Session{
		ID:        id,
		Token:     token,
		UserID:    userID,
		UserName:  userName,
		ExpiresAt: now.Add(sessionTTL),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	maps.DeleteFunc(s.sessions, func(_ string, v *Session) bool { return v.expired(now) })
	s.sessions[id] = session

	return session, nil
}

// Get returns a copy of the session, or nil when it is unknown or expired.
func (s *SessionStore) Get(_ context.Context, id string) *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok || session.expired(s.now()) {
		return nil
	}
	cp := *session
	return &cp
}

func (s *SessionStore) Delete(_ context.Context, id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

func (s *SessionStore) UpdateToken(_ context.Context, id string, token *oauth2.Token) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if session, ok := s.sessions[id]; ok {
		session.Token = token
	}
}

// MarkAnalyzed stamps every session of the user.
func (s *SessionStore) MarkAnalyzed(_ context.Context, userID string) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, session := range s.sessions {
		if session.UserID == userID {
			session.LastAnalyzedAt = &now
		}
	}
}

func (s *SessionStore) GetFromRequest(r *http.Request) *Session {
	id, ok := sessionID(r)
	if !ok {
		return nil
	}
	return s.Get(r.Context(), id)
}

// DBSessionStore keeps sessions in PostgreSQL so they survive restarts.
type DBSessionStore struct {
	sessionCookie

	database *db.DB
	logger   *slog.Logger
}

// NewDBSessionStore creates a database-backed session store. Storage errors
// are logged and treated as a missing session.
func NewDBSessionStore(database *db.DB, logger *slog.Logger) *DBSessionStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &DBSessionStore{database: database, logger: logger}
}

// Create upserts the user and stores a new session for them.
func (s *DBSessionStore) Create(ctx context.Context, token *oauth2.Token, userID, userName string) (*Session, error) {
	id, err := randomHex(32)
	if err != nil {
		return nil, err
	}

	if err := s.database.Users().Upsert(ctx, &db.User{ID: userID, DisplayName: userName}); err != nil {
		return nil, err
	}

	row := &db.Session{
		ID:           id,
		UserID:       userID,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenExpiry:  token.Expiry,
	}
	if err := s.database.Sessions().Create(ctx, row, sessionTTL); err != nil {
		return nil, err
	}

	return &Session{
		ID:        id,
		Token:     token,
		UserID:    userID,
		UserName:  userName,
		ExpiresAt: row.ExpiresAt,
	}, nil
}

// Get loads an unexpired session and its user.
func (s *DBSessionStore) Get(ctx context.Context, id string) *Session {
	row, err := s.database.Sessions().Get(ctx, id)
	if err != nil {
		if !errors.Is(err, db.ErrNotFound) {
			s.logger.Error("loading session", "error", err)
		}
		return nil
	}

	user, err := s.database.Users().Get(ctx, row.UserID)
	if err != nil {
		s.logger.Error("loading session user", "user", row.UserID, "error", err)
		return nil
	}

	return &Session{
		ID:             row.ID,
		Token:          row.Token(),
		UserID:         row.UserID,
		UserName:       user.DisplayName,
		ExpiresAt:      row.ExpiresAt,
		LastAnalyzedAt: user.LastAnalyzedAt,
	}
}

func (s *DBSessionStore) Delete(ctx context.Context, id string) {
	if err := s.database.Sessions().Delete(ctx, id); err != nil {
		s.logger.Error("deleting session", "error", err)
	}
}

func (s *DBSessionStore) UpdateToken(ctx context.Context, id string, token *oauth2.Token) {
	if err := s.database.Sessions().UpdateToken(ctx, id, token); err != nil {
		s.logger.Error("saving refreshed token", "error", err)
	}
}

func (s *DBSessionStore) MarkAnalyzed(ctx context.Context, userID string) {
	if err := s.database.Users().MarkAnalyzed(ctx, userID, time.Now()); err != nil {
		s.logger.Warn("recording analysis time", "user", userID, "error", err)
	}
}

func (s *DBSessionStore) GetFromRequest(r *http.Request) *Session {
	id, ok := sessionID(r)
	if !ok {
		return nil
	}
	return s.Get(r.Context(), id)
}

var (
	_ SessionManager = (*SessionStore)(nil)
	_ SessionManager = (*DBSessionStore)(nil)
)

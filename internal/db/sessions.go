package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/oauth2"
)

// SessionRepository stores web sessions.
type SessionRepository struct {
	pool *pgxpool.Pool
}

// Create inserts session and removes the user's expired sessions in the same
// transaction. Zero timestamps default to now and now+ttl.
func (r *SessionRepository) Create(ctx context.Context, session *Session, ttl time.Duration) error {
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}
	if session.ExpiresAt.IsZero() {
		session.ExpiresAt = session.CreatedAt.Add(ttl)
	}

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			DELETE FROM sessions WHERE user_id = $1 AND expires_at <= NOW()
		`, session.UserID); err != nil {
			return fmt.Errorf("pruning sessions: %w", err)
		}

		_, err := tx.Exec(ctx, `
			INSERT INTO sessions (id, user_id, access_token, refresh_token, token_expiry, created_at, expires_at)
			VALUES (@id, @user_id, @access_token, @refresh_token, @token_expiry, @created_at, @expires_at)
		`, pgx.NamedArgs{
			"id":            session.ID,
			"user_id":       session.UserID,
			"access_token":  session.AccessToken,
			"refresh_token": session.RefreshToken,
			"token_expiry":  session.TokenExpiry,
			"created_at":    session.CreatedAt,
			"expires_at":    session.ExpiresAt,
		})
		if err != nil {
			return fmt.Errorf("inserting session: %w", err)
		}
		return nil
	})
}

// Get returns an unexpired session.
func (r *SessionRepository) Get(ctx context.Context, id string) (*Session, error) {
	rows, _ := r.pool.Query(ctx, `
		SELECT id, user_id, access_token, refresh_token, token_expiry, created_at, expires_at
		FROM sessions
		WHERE id = $1 AND expires_at > NOW()
	`, id)
	session, err := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[Session])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying session: %w", err)
	}
	return session, nil
}

// Delete removes a session. Deleting an unknown session is not an error.
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// UpdateToken stores a refreshed OAuth token. Spotify may omit the refresh
// token on refresh, in which case the stored one is kept.
func (r *SessionRepository) UpdateToken(ctx context.Context, id string, token *oauth2.Token) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE sessions
		SET access_token = $2,
			refresh_token = COALESCE(NULLIF($3, ''), refresh_token),
			token_expiry = $4
		WHERE id = $1
	`, id, token.AccessToken, token.RefreshToken, token.Expiry)
	if err != nil {
		return fmt.Errorf("updating session token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Token returns the session's OAuth token.
func (s *Session) Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		Expiry:       s.TokenExpiry,
		TokenType:    "Bearer",
	}
}

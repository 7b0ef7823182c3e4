package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
)

// AuthSession is the server half of an operator login: the hash of the
// refresh token handed to the client and its rotation chain.
type AuthSession struct {
	ID         string
	UserID     string
	TokenHash  string
	ExpiresAt  time.Time
	Revoked    bool
	ReplacedBy *string
	CreatedAt  time.Time
}

// Live reports whether the session can still be refreshed at now.
func (a *AuthSession) Live(now time.Time) bool {
	return !a.Revoked && now.Before(a.ExpiresAt)
}

func (s *Store) CreateSession(ctx context.Context, id, userID, tokenHash string, expiresAt time.Time) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO auth_sessions (id, user_id, token_hash, expires_at) VALUES ($1,$2,$3,$4)`,
		id, userID, tokenHash, expiresAt,
	)
	return err
}

func (s *Store) SessionByTokenHash(ctx context.Context, tokenHash string) (*AuthSession, error) {
	as := &AuthSession{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, token_hash, expires_at, revoked, replaced_by, created_at
		 FROM auth_sessions WHERE token_hash = $1`, tokenHash,
	).Scan(&as.ID, &as.UserID, &as.TokenHash, &as.ExpiresAt, &as.Revoked, &as.ReplacedBy, &as.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return as, nil
}

// RotateSession revokes oldID and inserts its replacement in one transaction.
func (s *Store) RotateSession(ctx context.Context, oldID, newID, userID, newHash string, newExpiry time.Time) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE auth_sessions SET revoked = true, replaced_by = $1 WHERE id = $2 AND revoked = false`,
		newID, oldID,
	)
	if err != nil {
		return err
	}
	// lost a race with another refresh or a sign-out
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO auth_sessions (id, user_id, token_hash, expires_at) VALUES ($1,$2,$3,$4)`,
		newID, userID, newHash, newExpiry,
	)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// RevokeUserSessions signs userID out everywhere.
func (s *Store) RevokeUserSessions(ctx context.Context, userID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE auth_sessions SET revoked = true WHERE user_id = $1 AND revoked = false`,
		userID,
	)
	return err
}

package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
)

var ErrNotFound = errors.New("session not found")

// Session is a persisted refresh session. Only the token hash is stored.
type Session struct {
	ID        int64     `db:"id"`
	TokenHash string    `db:"token_hash"`
	UserID    string    `db:"user_id"`
	ExpiresAt time.Time `db:"expires_at"`
}

type SessionRepo struct {
	db *sqlx.DB
}

func NewSessionRepo(db *sqlx.DB) *SessionRepo {
	return &SessionRepo{db: db}
}

func (r *SessionRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS refresh_sessions (
  token_hash TEXT PRIMARY KEY,
  id BIGSERIAL,
  user_id VARCHAR(32) NOT NULL REFERENCES identities(id) ON DELETE CASCADE,
  expires_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_refresh_sessions_user_id ON refresh_sessions(user_id);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

func (r *SessionRepo) Save(ctx context.Context, tokenHash, userID string, expiresAt time.Time) (int64, error) {
	const q = `INSERT INTO refresh_sessions (token_hash, user_id, expires_at) VALUES ($1, $2, $3) RETURNING id`
	var id int64
	if err := r.db.QueryRowxContext(ctx, q, tokenHash, userID, expiresAt).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// Take deletes a session and returns it in one statement, so a token can
// only be taken once even under concurrent refreshes.
func (r *SessionRepo) Take(ctx context.Context, tokenHash string) (*Session, error) {
	const q = `DELETE FROM refresh_sessions WHERE token_hash = $1 RETURNING id, token_hash, user_id, expires_at`
	var s Session
	if err := r.db.GetContext(ctx, &s, q, tokenHash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (r *SessionRepo) Delete(ctx context.Context, tokenHash string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM refresh_sessions WHERE token_hash = $1`, tokenHash)
	return err
}

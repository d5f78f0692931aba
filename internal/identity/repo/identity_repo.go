package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/ovaphlow/pitchfork/service-gym/internal/identity/entity"
	"github.com/ovaphlow/pitchfork/service-gym/pkg/database"
)

var (
	ErrNotFound   = errors.New("identity not found")
	ErrEmailTaken = errors.New("email already registered")
)

// IdentityRepo provides data access for the identities table using sqlx.
type IdentityRepo struct {
	db *sqlx.DB
}

func NewIdentityRepo(db *sqlx.DB) *IdentityRepo { return &IdentityRepo{db: db} }

// EnsureTable creates the identities table if not exists (idempotent).
func (r *IdentityRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE EXTENSION IF NOT EXISTS citext;
CREATE TABLE IF NOT EXISTS identities (
  id VARCHAR(32) PRIMARY KEY,
  email CITEXT NOT NULL UNIQUE,
  password_hash TEXT,
  password_algo TEXT,
  confirmed BOOLEAN NOT NULL DEFAULT false,
  confirmed_at TIMESTAMPTZ,
  invitation_token TEXT UNIQUE,
  invited_at TIMESTAMPTZ,
  invitation_expires_at TIMESTAMPTZ,
  metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

// Create inserts a new identity row. ID must be set by the caller.
func (r *IdentityRepo) Create(ctx context.Context, i *entity.Identity) error {
	const q = `INSERT INTO identities (id,email,password_hash,password_algo,confirmed,confirmed_at,invitation_token,invited_at,invitation_expires_at,metadata)
		  VALUES (:id,:email,:password_hash,:password_algo,:confirmed,:confirmed_at,:invitation_token,:invited_at,:invitation_expires_at,:metadata)
		  RETURNING created_at, updated_at`
	rows, err := r.db.NamedQueryContext(ctx, q, i)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return ErrEmailTaken
		}
		return fmt.Errorf("insert identity: %w", err)
	}
	defer rows.Close()
	if rows.Next() {
		return rows.Scan(&i.CreatedAt, &i.UpdatedAt)
	}
	return errors.New("insert identity: no row returned")
}

const selectIdentity = `SELECT id, email, password_hash, password_algo, confirmed, confirmed_at,
	invitation_token, invited_at, invitation_expires_at, metadata, created_at, updated_at
  FROM identities`

func (r *IdentityRepo) get(ctx context.Context, where string, arg any) (*entity.Identity, error) {
	var row entity.Identity
	if err := r.db.GetContext(ctx, &row, selectIdentity+" WHERE "+where, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &row, nil
}

// GetByEmail matches case-insensitively due to citext.
func (r *IdentityRepo) GetByEmail(ctx context.Context, email string) (*entity.Identity, error) {
	return r.get(ctx, "email=$1", email)
}

func (r *IdentityRepo) GetByID(ctx context.Context, id string) (*entity.Identity, error) {
	return r.get(ctx, "id=$1", id)
}

func (r *IdentityRepo) GetByInvitationToken(ctx context.Context, token string) (*entity.Identity, error) {
	return r.get(ctx, "invitation_token=$1", token)
}

// CompleteInvitation sets the password, confirms the identity and burns the token.
func (r *IdentityRepo) CompleteInvitation(ctx context.Context, id, hash, algo string) error {
	const q = `UPDATE identities SET password_hash=$2, password_algo=$3, confirmed=true, confirmed_at=NOW(),
		invitation_token=NULL, invitation_expires_at=NULL, updated_at=NOW()
		WHERE id=$1 AND confirmed=false`
	res, err := r.db.ExecContext(ctx, q, id, hash, algo)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes the identity row. Deleting a missing row is not an error.
func (r *IdentityRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM identities WHERE id=$1`, id)
	return err
}

package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-gym/internal/staff/entity"
)

// PermissionRepo stores one JSONB flag set per identity in staff_permissions.
type PermissionRepo struct {
	db *sqlx.DB
}

func NewPermissionRepo(db *sqlx.DB) *PermissionRepo {
	return &PermissionRepo{db: db}
}

func (r *PermissionRepo) EnsureTable(ctx context.Context) error {
	const tbl = `
	CREATE TABLE IF NOT EXISTS staff_permissions (
		user_id varchar(32) PRIMARY KEY REFERENCES identities(id) ON DELETE CASCADE,
		flags jsonb NOT NULL DEFAULT '{}'::jsonb,
		updated_at timestamptz NOT NULL DEFAULT NOW()
	);
	`
	_, err := r.db.ExecContext(ctx, tbl)
	return err
}

func (r *PermissionRepo) Upsert(ctx context.Context, ps *entity.PermissionSet) error {
	const q = `INSERT INTO staff_permissions (user_id, flags) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET flags=EXCLUDED.flags, updated_at=NOW()
		RETURNING updated_at`
	return r.db.QueryRowxContext(ctx, q, ps.UserID, ps.Flags).Scan(&ps.UpdatedAt)
}

func (r *PermissionRepo) Get(ctx context.Context, userID string) (*entity.PermissionSet, error) {
	var ps entity.PermissionSet
	err := r.db.GetContext(ctx, &ps, `SELECT user_id, flags, updated_at FROM staff_permissions WHERE user_id=$1`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &ps, nil
}

func (r *PermissionRepo) Delete(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM staff_permissions WHERE user_id=$1`, userID)
	return err
}

package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-gym/internal/staff/entity"
)

var ErrNotFound = errors.New("not found")

type ProfileRepo struct {
	db *sqlx.DB
}

func NewProfileRepo(db *sqlx.DB) *ProfileRepo {
	return &ProfileRepo{db: db}
}

// EnsureTable creates the profiles table if it does not already exist.
func (r *ProfileRepo) EnsureTable(ctx context.Context) error {
	const tbl = `
	CREATE TABLE IF NOT EXISTS profiles (
		user_id varchar(32) PRIMARY KEY REFERENCES identities(id) ON DELETE CASCADE,
		first_name text NOT NULL,
		last_name text NOT NULL,
		phone text,
		date_of_birth date,
		address text,
		start_date date,
		notes text,
		role varchar(16) NOT NULL,
		login_access boolean NOT NULL DEFAULT true,
		created_at timestamptz NOT NULL DEFAULT NOW(),
		updated_at timestamptz NOT NULL DEFAULT NOW()
	);
	`
	if _, err := r.db.ExecContext(ctx, tbl); err != nil {
		return err
	}
	const idx = `CREATE INDEX IF NOT EXISTS idx_profiles_role ON profiles (role);`
	_, err := r.db.ExecContext(ctx, idx)
	return err
}

// Upsert inserts or replaces the profile keyed by user_id.
func (r *ProfileRepo) Upsert(ctx context.Context, p *entity.Profile) error {
	const q = `INSERT INTO profiles (user_id, first_name, last_name, phone, date_of_birth, address, start_date, notes, role, login_access)
		VALUES (:user_id, :first_name, :last_name, :phone, :date_of_birth, :address, :start_date, :notes, :role, :login_access)
		ON CONFLICT (user_id) DO UPDATE SET
			first_name=EXCLUDED.first_name, last_name=EXCLUDED.last_name, phone=EXCLUDED.phone,
			date_of_birth=EXCLUDED.date_of_birth, address=EXCLUDED.address, start_date=EXCLUDED.start_date,
			notes=EXCLUDED.notes, role=EXCLUDED.role, login_access=EXCLUDED.login_access, updated_at=NOW()
		RETURNING created_at, updated_at`
	rows, err := r.db.NamedQueryContext(ctx, q, p)
	if err != nil {
		return err
	}
	defer rows.Close()
	if rows.Next() {
		return rows.Scan(&p.CreatedAt, &p.UpdatedAt)
	}
	return rows.Err()
}

func (r *ProfileRepo) Get(ctx context.Context, userID string) (*entity.Profile, error) {
	const q = `SELECT user_id, first_name, last_name, phone, date_of_birth, address, start_date, notes, role, login_access, created_at, updated_at
		FROM profiles WHERE user_id=$1`
	var p entity.Profile
	if err := r.db.GetContext(ctx, &p, q, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *ProfileRepo) Delete(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM profiles WHERE user_id=$1`, userID)
	return err
}

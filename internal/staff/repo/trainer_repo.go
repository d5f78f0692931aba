package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-gym/internal/staff/entity"
)

type TrainerRepo struct {
	db *sqlx.DB
}

func NewTrainerRepo(db *sqlx.DB) *TrainerRepo {
	return &TrainerRepo{db: db}
}

func (r *TrainerRepo) EnsureTable(ctx context.Context) error {
	const tbl = `
	CREATE TABLE IF NOT EXISTS trainers (
		user_id varchar(32) PRIMARY KEY REFERENCES identities(id) ON DELETE CASCADE,
		payroll_type varchar(16) NOT NULL CHECK (payroll_type IN ('per_session', 'percentage')),
		session_rate numeric(10,2) NOT NULL DEFAULT 0,
		package_percentage numeric(5,2) NOT NULL DEFAULT 0,
		created_by varchar(32) NOT NULL,
		created_at timestamptz NOT NULL DEFAULT NOW()
	);
	`
	_, err := r.db.ExecContext(ctx, tbl)
	return err
}

func (r *TrainerRepo) Upsert(ctx context.Context, t *entity.Trainer) error {
	const q = `INSERT INTO trainers (user_id, payroll_type, session_rate, package_percentage, created_by)
		VALUES (:user_id, :payroll_type, :session_rate, :package_percentage, :created_by)
		ON CONFLICT (user_id) DO UPDATE SET payroll_type=EXCLUDED.payroll_type,
			session_rate=EXCLUDED.session_rate, package_percentage=EXCLUDED.package_percentage
		RETURNING created_at`
	rows, err := r.db.NamedQueryContext(ctx, q, t)
	if err != nil {
		return err
	}
	defer rows.Close()
	if rows.Next() {
		return rows.Scan(&t.CreatedAt)
	}
	return rows.Err()
}

func (r *TrainerRepo) Get(ctx context.Context, userID string) (*entity.Trainer, error) {
	const q = `SELECT user_id, payroll_type, session_rate::float8 AS session_rate,
		package_percentage::float8 AS package_percentage, created_by, created_at
		FROM trainers WHERE user_id=$1`
	var t entity.Trainer
	if err := r.db.GetContext(ctx, &t, q, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (r *TrainerRepo) Delete(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM trainers WHERE user_id=$1`, userID)
	return err
}

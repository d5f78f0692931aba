package entity

import "time"

const (
	RoleAdmin   = "admin"
	RoleTrainer = "trainer"
	RoleStaff   = "staff"
	RoleClient  = "client"
)

// Profile is the one-to-one personal record of an identity (`profiles` table).
type Profile struct {
	UserID      string     `db:"user_id" json:"user_id"`
	FirstName   string     `db:"first_name" json:"first_name"`
	LastName    string     `db:"last_name" json:"last_name"`
	Phone       *string    `db:"phone" json:"phone,omitempty"`
	DateOfBirth *time.Time `db:"date_of_birth" json:"date_of_birth,omitempty"`
	Address     *string    `db:"address" json:"address,omitempty"`
	StartDate   *time.Time `db:"start_date" json:"start_date,omitempty"`
	Notes       *string    `db:"notes" json:"notes,omitempty"`
	Role        string     `db:"role" json:"role"`
	LoginAccess bool       `db:"login_access" json:"login_access"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

type PayrollType string

const (
	PayrollPerSession PayrollType = "per_session"
	PayrollPercentage PayrollType = "percentage"
)

func (p PayrollType) Valid() bool {
	return p == PayrollPerSession || p == PayrollPercentage
}

// Trainer is the role record created for identities provisioned as trainers.
type Trainer struct {
	UserID            string      `db:"user_id" json:"user_id"`
	PayrollType       PayrollType `db:"payroll_type" json:"payroll_type"`
	SessionRate       float64     `db:"session_rate" json:"session_rate"`
	PackagePercentage float64     `db:"package_percentage" json:"package_percentage"`
	CreatedBy         string      `db:"created_by" json:"created_by"`
	CreatedAt         time.Time   `db:"created_at" json:"created_at"`
}

// NewTrainer applies payroll exclusivity: only the rate matching the payroll
// type is kept, the other one is zeroed.
func NewTrainer(userID string, payroll PayrollType, sessionRate, packagePercentage float64, createdBy string) Trainer {
	t := Trainer{UserID: userID, PayrollType: payroll, CreatedBy: createdBy}
	switch payroll {
	case PayrollPerSession:
		t.SessionRate = sessionRate
	case PayrollPercentage:
		t.PackagePercentage = packagePercentage
	}
	return t
}

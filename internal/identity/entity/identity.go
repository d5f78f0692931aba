package entity

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// Identity is a login account row in the `identities` table. Every other
// staff row references Identity.ID as user_id.
type Identity struct {
	ID                  string     `db:"id" json:"id"`
	Email               string     `db:"email" json:"email"`
	PasswordHash        *string    `db:"password_hash" json:"-"`
	PasswordAlgo        *string    `db:"password_algo" json:"-"`
	Confirmed           bool       `db:"confirmed" json:"confirmed"`
	ConfirmedAt         *time.Time `db:"confirmed_at" json:"confirmed_at,omitempty"`
	InvitationToken     *string    `db:"invitation_token" json:"-"`
	InvitedAt           *time.Time `db:"invited_at" json:"invited_at,omitempty"`
	InvitationExpiresAt *time.Time `db:"invitation_expires_at" json:"-"`
	Metadata            Metadata   `db:"metadata" json:"metadata"`
	CreatedAt           time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at" json:"updated_at"`
}

// Invited reports whether the identity is still waiting for its owner to set a password.
func (i *Identity) Invited() bool {
	return !i.Confirmed && i.InvitationToken != nil
}

// Metadata is stored as JSONB alongside the identity.
type Metadata struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      string `json:"role"`
}

func (m Metadata) Value() (driver.Value, error) {
	return json.Marshal(m)
}

func (m *Metadata) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*m = Metadata{}
		return nil
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return errors.New("metadata: unsupported scan type")
	}
}

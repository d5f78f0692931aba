package notify

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrBadPayload marks messages that can never be handled; they are dropped, not requeued.
var ErrBadPayload = errors.New("bad payload")

// Routing keys published on the gym topic exchange.
const (
	RKIdentityInvited  = "identity.invited"
	RKStaffProvisioned = "staff.provisioned"
)

// IdentityInvited carries what the invitation email needs.
type IdentityInvited struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	AcceptURL string    `json:"accept_url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// StaffProvisioned is published once provisioning commits. LoginAccess is
// false for staff given no way to sign in.
type StaffProvisioned struct {
	UserID      string `json:"user_id"`
	Email       string `json:"email"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Role        string `json:"role"`
	Invited     bool   `json:"invited"`
	LoginAccess bool   `json:"login_access"`
	CreatedBy   string `json:"created_by"`
}

func Decode[T any](b []byte) (T, error) {
	var t T
	if err := json.Unmarshal(b, &t); err != nil {
		var zero T
		return zero, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return t, nil
}

package entity

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"
)

// Flags maps a permission name to whether it is granted. Stored as JSONB.
type Flags map[string]bool

func (f Flags) Value() (driver.Value, error) {
	if f == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]bool(f))
}

func (f *Flags) Scan(src any) error {
	var b []byte
	switch v := src.(type) {
	case nil:
		*f = Flags{}
		return nil
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return errors.New("flags: unsupported scan type")
	}
	m := map[string]bool{}
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	*f = m
	return nil
}

// PermissionSet is the one-to-one permission row of an identity.
type PermissionSet struct {
	UserID    string    `db:"user_id" json:"user_id"`
	Flags     Flags     `db:"flags" json:"flags"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

var defaultFlags = Flags{
	"bookings_view_own":                true,
	"bookings_create_edit_own":         false,
	"bookings_reconcile_own":           false,
	"bookings_view_all":                false,
	"bookings_create_edit_all":         false,
	"bookings_reconcile_all":           false,
	"hide_booking_prices":              false,
	"prevent_edit_past_reconciled":     true,
	"clients_view":                     true,
	"clients_show_financial_info":      false,
	"clients_hide_payment_integration": false,
	"clients_hide_services":            false,
	"clients_assign_services":          false,
	"clients_only_show_assigned":       true,
	"prevent_changing_client_status":   true,
	"make_payment_access":              false,
	"only_data_for_assigned_clients":   true,
	"show_messages_sent_to_others":     false,
}

// DefaultFlags returns a fresh copy of the staff permission defaults.
func DefaultFlags() Flags {
	out := make(Flags, len(defaultFlags))
	for k, v := range defaultFlags {
		out[k] = v
	}
	return out
}

// UnknownFlagError names override keys that are not permission flags.
type UnknownFlagError struct {
	Names []string
}

func (e *UnknownFlagError) Error() string {
	return fmt.Sprintf("unknown permission flags: %v", e.Names)
}

// MergeFlags lays overrides over the defaults. Override keys must be known flags.
func MergeFlags(overrides map[string]bool) (Flags, error) {
	out := DefaultFlags()
	var unknown []string
	for k, v := range overrides {
		if _, ok := out[k]; !ok {
			unknown = append(unknown, k)
			continue
		}
		out[k] = v
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, &UnknownFlagError{Names: unknown}
	}
	return out, nil
}

// AllFlags grants every flag; used for administrators.
func AllFlags() Flags {
	out := DefaultFlags()
	for k := range out {
		out[k] = true
	}
	// these flags restrict rather than grant
	for _, k := range []string{"hide_booking_prices", "clients_hide_payment_integration", "clients_hide_services",
		"clients_only_show_assigned", "prevent_changing_client_status", "only_data_for_assigned_clients", "prevent_edit_past_reconciled"} {
		out[k] = false
	}
	return out
}

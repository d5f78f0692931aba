package provision

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ovaphlow/pitchfork/service-gym/internal/staff/entity"
)

// Request is the body accepted by the staff provisioning endpoint.
type Request struct {
	Email               string          `json:"email" validate:"required,email"`
	SendActivationEmail *bool           `json:"sendActivationEmail,omitempty"`
	CustomPassword      string          `json:"customPassword,omitempty" validate:"omitempty,min=8"`
	FirstName           string          `json:"firstName" validate:"required,max=100"`
	LastName            string          `json:"lastName" validate:"required,max=100"`
	Phone               string          `json:"phone,omitempty" validate:"omitempty,max=32"`
	DateOfBirth         string          `json:"dateOfBirth,omitempty" validate:"omitempty,datetime=2006-01-02"`
	StartDate           string          `json:"startDate,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Notes               string          `json:"notes,omitempty"`
	Address             string          `json:"address,omitempty"`
	LoginAccess         *bool           `json:"loginAccess,omitempty"`
	IsTrainer           bool            `json:"isTrainer"`
	PayrollType         string          `json:"payrollType,omitempty" validate:"omitempty,oneof=per_session percentage"`
	SessionRate         float64         `json:"sessionRate" validate:"gte=0"`
	PackagePercentage   float64         `json:"packagePercentage" validate:"gte=0,lte=100"`
	Permissions         map[string]bool `json:"permissions,omitempty"`
}

func (r *Request) sendActivationEmail() bool {
	return r.SendActivationEmail == nil || *r.SendActivationEmail
}

func (r *Request) loginAccess() bool {
	return r.LoginAccess == nil || *r.LoginAccess
}

// invite reports whether the identity is created in invited state.
func (r *Request) invite() bool {
	return r.loginAccess() && r.sendActivationEmail() && r.CustomPassword == ""
}

func (r *Request) role() string {
	if r.IsTrainer {
		return entity.RoleTrainer
	}
	return entity.RoleStaff
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

var ErrPayrollTypeRequired = errors.New("payrollType is required when isTrainer is true")

// Validate checks field constraints and returns a readable message for the first violation.
func (r *Request) Validate() error {
	if err := validate.Struct(r); err != nil {
		var ves validator.ValidationErrors
		if errors.As(err, &ves) && len(ves) > 0 {
			return fieldError(ves[0])
		}
		return err
	}
	if r.IsTrainer && r.PayrollType == "" {
		return ErrPayrollTypeRequired
	}
	return nil
}

func fieldError(fe validator.FieldError) error {
	switch fe.Tag() {
	case "required":
		return fmt.Errorf("%s is required", fe.Field())
	case "email":
		return fmt.Errorf("%s must be a valid email address", fe.Field())
	case "datetime":
		return fmt.Errorf("%s must be an ISO date (YYYY-MM-DD)", fe.Field())
	case "oneof":
		return fmt.Errorf("%s must be one of: %s", fe.Field(), fe.Param())
	default:
		return fmt.Errorf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param())
	}
}

func optString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// optDate parses an already validated ISO date.
func optDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return nil
	}
	return &t
}

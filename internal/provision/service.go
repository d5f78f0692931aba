package provision

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	identityentity "github.com/ovaphlow/pitchfork/service-gym/internal/identity/entity"
	identityrepo "github.com/ovaphlow/pitchfork/service-gym/internal/identity/repo"
	"github.com/ovaphlow/pitchfork/service-gym/internal/notify"
	"github.com/ovaphlow/pitchfork/service-gym/internal/staff/entity"
	staffrepo "github.com/ovaphlow/pitchfork/service-gym/internal/staff/repo"
	"github.com/ovaphlow/pitchfork/service-gym/pkg/apperr"
)

// IdentityStore creates and removes login identities; *identity.Service satisfies it.
type IdentityStore interface {
	CreateConfirmed(ctx context.Context, email, password string, md identityentity.Metadata) (*identityentity.Identity, error)
	Invite(ctx context.Context, email string, md identityentity.Metadata) (*identityentity.Identity, error)
	GetByEmail(ctx context.Context, email string) (*identityentity.Identity, error)
	Delete(ctx context.Context, id string) error
}

type ProfileStore interface {
	Upsert(ctx context.Context, p *entity.Profile) error
	Get(ctx context.Context, userID string) (*entity.Profile, error)
	Delete(ctx context.Context, userID string) error
}

type PermissionStore interface {
	Upsert(ctx context.Context, ps *entity.PermissionSet) error
	Get(ctx context.Context, userID string) (*entity.PermissionSet, error)
	Delete(ctx context.Context, userID string) error
}

type TrainerStore interface {
	Upsert(ctx context.Context, t *entity.Trainer) error
	Get(ctx context.Context, userID string) (*entity.Trainer, error)
	Delete(ctx context.Context, userID string) error
}

// Result is returned by a successful Provision.
type Result struct {
	UserID  string          `json:"user_id"`
	Staff   *entity.Trainer `json:"staff"`
	Invited bool            `json:"invited"`
}

// Service provisions staff: identity, profile, permissions and, for trainers,
// the trainer record, undoing earlier steps when a later one fails.
type Service struct {
	identities  IdentityStore
	profiles    ProfileStore
	permissions PermissionStore
	trainers    TrainerStore
	publisher   notify.Publisher
	logger      *zap.SugaredLogger
}

func NewService(identities IdentityStore, profiles ProfileStore, permissions PermissionStore, trainers TrainerStore,
	publisher notify.Publisher, logger *zap.SugaredLogger) *Service {
	return &Service{
		identities:  identities,
		profiles:    profiles,
		permissions: permissions,
		trainers:    trainers,
		publisher:   publisher,
		logger:      logger,
	}
}

// Provision creates all staff rows for req on behalf of requesterID, who must
// already be authorized as an administrator.
func (s *Service) Provision(ctx context.Context, requesterID string, req Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, apperr.Wrap(apperr.ValidationFailure, err)
	}
	flags, err := entity.MergeFlags(req.Permissions)
	if err != nil {
		return nil, apperr.Wrap(apperr.ValidationFailure, err)
	}

	role := req.role()
	md := identityentity.Metadata{
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
		Role:      role,
	}
	var (
		ident   *identityentity.Identity
		trainer *entity.Trainer
	)

	saga := NewSaga(s.logger)
	saga.Add(Step{
		Name: "identity",
		Do: func(ctx context.Context) error {
			var err error
			if req.invite() {
				ident, err = s.identities.Invite(ctx, req.Email, md)
			} else {
				password := req.CustomPassword
				if !req.loginAccess() {
					password = ""
				}
				ident, err = s.identities.CreateConfirmed(ctx, req.Email, password, md)
			}
			return err
		},
		Undo: func(ctx context.Context) error { return s.identities.Delete(ctx, ident.ID) },
	})
	saga.Add(Step{
		Name: "profile",
		Do: func(ctx context.Context) error {
			return s.profiles.Upsert(ctx, &entity.Profile{
				UserID:      ident.ID,
				FirstName:   md.FirstName,
				LastName:    md.LastName,
				Phone:       optString(req.Phone),
				DateOfBirth: optDate(req.DateOfBirth),
				Address:     optString(req.Address),
				StartDate:   optDate(req.StartDate),
				Notes:       optString(req.Notes),
				Role:        role,
				LoginAccess: req.loginAccess(),
			})
		},
		Undo: func(ctx context.Context) error { return s.profiles.Delete(ctx, ident.ID) },
	})
	saga.Add(Step{
		Name: "permissions",
		Do: func(ctx context.Context) error {
			return s.permissions.Upsert(ctx, &entity.PermissionSet{UserID: ident.ID, Flags: flags})
		},
		Undo: func(ctx context.Context) error { return s.permissions.Delete(ctx, ident.ID) },
	})
	if req.IsTrainer {
		saga.Add(Step{
			Name: "trainer",
			Do: func(ctx context.Context) error {
				t := entity.NewTrainer(ident.ID, entity.PayrollType(req.PayrollType), req.SessionRate, req.PackagePercentage, requesterID)
				if err := s.trainers.Upsert(ctx, &t); err != nil {
					return err
				}
				trainer = &t
				return nil
			},
		})
	}

	if err := saga.Run(ctx); err != nil {
		s.logger.Warnw("provisioning failed", "email", req.Email, "err", err)
		var se *StepError
		if errors.As(err, &se) {
			return nil, apperr.Wrap(apperr.StoreFailure, se.Err)
		}
		return nil, apperr.Wrap(apperr.Unexpected, err)
	}

	s.logger.Infow("staff provisioned", "user_id", ident.ID, "role", role, "invited", ident.Invited(), "created_by", requesterID)
	s.announce(ctx, notify.StaffProvisioned{
		UserID:      ident.ID,
		Email:       ident.Email,
		FirstName:   md.FirstName,
		LastName:    md.LastName,
		Role:        role,
		Invited:     ident.Invited(),
		LoginAccess: req.loginAccess(),
		CreatedBy:   requesterID,
	})
	return &Result{UserID: ident.ID, Staff: trainer, Invited: ident.Invited()}, nil
}

// announce publishes after the rows are committed; a lost event does not undo provisioning.
func (s *Service) announce(ctx context.Context, ev notify.StaffProvisioned) {
	if err := s.publisher.PublishJSON(ctx, notify.RKStaffProvisioned, ev); err != nil {
		s.logger.Warnw("publish staff.provisioned failed", "user_id", ev.UserID, "err", err)
	}
}

// View is the stored state of one provisioned staff member.
type View struct {
	Profile     *entity.Profile       `json:"profile"`
	Permissions *entity.PermissionSet `json:"permissions"`
	Trainer     *entity.Trainer       `json:"trainer"`
}

var ErrStaffNotFound = errors.New("staff member not found")

func (s *Service) Get(ctx context.Context, userID string) (*View, error) {
	p, err := s.profiles.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, staffrepo.ErrNotFound) {
			return nil, ErrStaffNotFound
		}
		return nil, err
	}
	v := &View{Profile: p}
	if v.Permissions, err = s.permissions.Get(ctx, userID); err != nil && !errors.Is(err, staffrepo.ErrNotFound) {
		return nil, err
	}
	if v.Trainer, err = s.trainers.Get(ctx, userID); err != nil && !errors.Is(err, staffrepo.ErrNotFound) {
		return nil, err
	}
	return v, nil
}

// Role returns the stored role of userID; the admin gate relies on it.
func (s *Service) Role(ctx context.Context, userID string) (string, error) {
	p, err := s.profiles.Get(ctx, userID)
	if err != nil {
		return "", err
	}
	return p.Role, nil
}

// EnsureAdmin provisions the bootstrap administrator unless the email is already registered.
func (s *Service) EnsureAdmin(ctx context.Context, email, password string) error {
	if _, err := s.identities.GetByEmail(ctx, email); err == nil {
		return nil
	} else if !errors.Is(err, identityrepo.ErrNotFound) {
		return fmt.Errorf("bootstrap admin: %w", err)
	}
	var ident *identityentity.Identity
	md := identityentity.Metadata{FirstName: "Admin", LastName: "", Role: entity.RoleAdmin}
	saga := NewSaga(s.logger,
		Step{
			Name: "identity",
			Do: func(ctx context.Context) error {
				var err error
				ident, err = s.identities.CreateConfirmed(ctx, email, password, md)
				return err
			},
			Undo: func(ctx context.Context) error { return s.identities.Delete(ctx, ident.ID) },
		},
		Step{
			Name: "profile",
			Do: func(ctx context.Context) error {
				return s.profiles.Upsert(ctx, &entity.Profile{UserID: ident.ID, FirstName: md.FirstName, Role: entity.RoleAdmin, LoginAccess: true})
			},
			Undo: func(ctx context.Context) error { return s.profiles.Delete(ctx, ident.ID) },
		},
		Step{
			Name: "permissions",
			Do: func(ctx context.Context) error {
				return s.permissions.Upsert(ctx, &entity.PermissionSet{UserID: ident.ID, Flags: entity.AllFlags()})
			},
		},
	)
	if err := saga.Run(ctx); err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}
	s.logger.Infow("bootstrap admin created", "user_id", ident.ID, "email", ident.Email)
	return nil
}

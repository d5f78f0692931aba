package identity

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/pitchfork/service-gym/internal/identity/entity"
	identityrepo "github.com/ovaphlow/pitchfork/service-gym/internal/identity/repo"
	"github.com/ovaphlow/pitchfork/service-gym/internal/notify"
	"github.com/ovaphlow/pitchfork/service-gym/pkg/utilities"
)

// PasswordHasher defines minimal hashing interface (abstract so we can swap to argon2 later).
type PasswordHasher interface {
	Hash(pw string) (hash string, algo string, err error)
	Verify(hash, pw string) bool
}

// BcryptHasher implementation.
type BcryptHasher struct{ Cost int }

func (b BcryptHasher) Hash(pw string) (string, string, error) {
	cost := b.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(pw), cost)
	if err != nil {
		return "", "", err
	}
	return string(h), fmt.Sprintf("bcrypt:%d", cost), nil
}

func (b BcryptHasher) Verify(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

// Store is the persistence contract the service needs; *repo.IdentityRepo satisfies it.
type Store interface {
	Create(ctx context.Context, i *entity.Identity) error
	GetByEmail(ctx context.Context, email string) (*entity.Identity, error)
	GetByID(ctx context.Context, id string) (*entity.Identity, error)
	GetByInvitationToken(ctx context.Context, token string) (*entity.Identity, error)
	CompleteInvitation(ctx context.Context, id, hash, algo string) error
	Delete(ctx context.Context, id string) error
}

var (
	ErrNotFound          = identityrepo.ErrNotFound
	ErrEmailTaken        = identityrepo.ErrEmailTaken
	ErrBadCredentials    = errors.New("invalid credentials")
	ErrNotConfirmed      = errors.New("identity not confirmed")
	ErrInvitationInvalid = errors.New("invitation invalid")
	ErrInvitationExpired = errors.New("invitation expired")
	ErrWeakPassword      = errors.New("password must be at least 8 characters")
)

const minPasswordLen = 8

type Config struct {
	InviteTTL time.Duration
	InviteURL string
	Logger    *zap.SugaredLogger
}

// Service is the identity store: it owns credentials and the invitation lifecycle.
type Service struct {
	store     Store
	hasher    PasswordHasher
	publisher notify.Publisher
	cfg       Config
	logger    *zap.SugaredLogger
	now       func() time.Time
}

func NewService(store Store, hasher PasswordHasher, publisher notify.Publisher, cfg Config) *Service {
	if hasher == nil {
		hasher = BcryptHasher{Cost: 12}
	}
	if cfg.InviteTTL <= 0 {
		cfg.InviteTTL = 7 * 24 * time.Hour
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{store: store, hasher: hasher, publisher: publisher, cfg: cfg, logger: logger, now: time.Now}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CreateConfirmed creates a pre-confirmed identity. An empty password is
// replaced by a random one nobody knows.
func (s *Service) CreateConfirmed(ctx context.Context, email, password string, md entity.Metadata) (*entity.Identity, error) {
	if password == "" {
		pw, err := randomPassword()
		if err != nil {
			return nil, err
		}
		password = pw
	} else if len(password) < minPasswordLen {
		return nil, ErrWeakPassword
	}
	hash, algo, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	i := &entity.Identity{
		ID:           utilities.NewKSUID(),
		Email:        normalizeEmail(email),
		PasswordHash: &hash,
		PasswordAlgo: &algo,
		Confirmed:    true,
		ConfirmedAt:  &now,
		Metadata:     md,
	}
	if err := s.store.Create(ctx, i); err != nil {
		return nil, err
	}
	return i, nil
}

// Invite creates an identity without a usable password and emits the
// invitation event. If the event cannot be published the identity is removed
// again so the caller sees a single failed step.
func (s *Service) Invite(ctx context.Context, email string, md entity.Metadata) (*entity.Identity, error) {
	now := s.now().UTC()
	expires := now.Add(s.cfg.InviteTTL)
	token := uuid.NewString()
	i := &entity.Identity{
		ID:                  utilities.NewKSUID(),
		Email:               normalizeEmail(email),
		InvitationToken:     &token,
		InvitedAt:           &now,
		InvitationExpiresAt: &expires,
		Metadata:            md,
	}
	if err := s.store.Create(ctx, i); err != nil {
		return nil, err
	}
	ev := notify.IdentityInvited{
		UserID:    i.ID,
		Email:     i.Email,
		FirstName: md.FirstName,
		AcceptURL: s.acceptURL(token),
		ExpiresAt: expires,
	}
	if err := s.publisher.PublishJSON(ctx, notify.RKIdentityInvited, ev); err != nil {
		if derr := s.store.Delete(context.WithoutCancel(ctx), i.ID); derr != nil {
			s.logger.Warnw("remove uninvited identity failed", "user_id", i.ID, "err", derr)
		}
		return nil, fmt.Errorf("send invitation: %w", err)
	}
	return i, nil
}

func (s *Service) acceptURL(token string) string {
	u, err := url.Parse(s.cfg.InviteURL)
	if err != nil || s.cfg.InviteURL == "" {
		return token
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}

// AcceptInvitation sets the invited identity's password and confirms it.
func (s *Service) AcceptInvitation(ctx context.Context, token, password string) (*entity.Identity, error) {
	if len(password) < minPasswordLen {
		return nil, ErrWeakPassword
	}
	i, err := s.store.GetByInvitationToken(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvitationInvalid
		}
		return nil, err
	}
	if i.InvitationExpiresAt != nil && i.InvitationExpiresAt.Before(s.now()) {
		return nil, ErrInvitationExpired
	}
	hash, algo, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}
	if err := s.store.CompleteInvitation(ctx, i.ID, hash, algo); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvitationInvalid
		}
		return nil, err
	}
	return s.store.GetByID(ctx, i.ID)
}

// Authenticate verifies an email/password pair. Unknown emails and wrong
// passwords both yield ErrBadCredentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*entity.Identity, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, ErrBadCredentials
	}
	i, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrBadCredentials
		}
		return nil, err
	}
	if i.PasswordHash == nil || *i.PasswordHash == "" {
		return nil, ErrBadCredentials
	}
	if !s.hasher.Verify(*i.PasswordHash, password) {
		return nil, ErrBadCredentials
	}
	if !i.Confirmed {
		return nil, ErrNotConfirmed
	}
	return i, nil
}

func (s *Service) Get(ctx context.Context, id string) (*entity.Identity, error) {
	return s.store.GetByID(ctx, id)
}

func (s *Service) GetByEmail(ctx context.Context, email string) (*entity.Identity, error) {
	return s.store.GetByEmail(ctx, normalizeEmail(email))
}

func (s *Service) Delete(ctx context.Context, id string) error {
	return s.store.Delete(ctx, id)
}

func randomPassword() (string, error) {
	b := make([]byte, 18)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

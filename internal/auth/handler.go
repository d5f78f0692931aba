package auth

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-gym/internal/identity"
	identityentity "github.com/ovaphlow/pitchfork/service-gym/internal/identity/entity"
	"github.com/ovaphlow/pitchfork/service-gym/internal/ratelimit"
	"github.com/ovaphlow/pitchfork/service-gym/pkg/apperr"
)

// Authenticator verifies credentials; *identity.Service satisfies it.
type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (*identityentity.Identity, error)
	Get(ctx context.Context, id string) (*identityentity.Identity, error)
}

// RoleLookup resolves the stored role of a user.
type RoleLookup interface {
	Role(ctx context.Context, userID string) (string, error)
}

// maxBodyBytes caps request bodies on the token endpoints.
const maxBodyBytes = 1 << 20

type Handler struct {
	tokens  *TokenService
	users   Authenticator
	roles   RoleLookup
	limiter ratelimit.Limiter
	logger  *zap.SugaredLogger
}

func NewHandler(tokens *TokenService, users Authenticator, roles RoleLookup, limiter ratelimit.Limiter, logger *zap.SugaredLogger) *Handler {
	return &Handler{tokens: tokens, users: users, roles: roles, limiter: limiter, logger: logger}
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.Password == "" {
		apperr.Write(w, apperr.New(apperr.ValidationFailure, "email and password are required"))
		return
	}
	key := strings.ToLower(strings.TrimSpace(req.Email))

	res, err := h.limiter.Check(r.Context(), key)
	if err != nil {
		h.logger.Warnw("rate limiter check failed", "err", err)
		apperr.Write(w, apperr.Wrap(apperr.Unexpected, err))
		return
	}
	if !res.Allowed {
		h.logger.Infow("login blocked", "email", key, "retry_after", res.RetryAfter)
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(res.RetryAfter.Seconds()))))
		apperr.WriteJSON(w, http.StatusTooManyRequests, map[string]string{"error": "too many login attempts"})
		return
	}

	u, err := h.users.Authenticate(r.Context(), key, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrBadCredentials):
			h.logger.Debugw("login rejected", "email", key, "remaining", res.Remaining)
			apperr.Write(w, apperr.New(apperr.Unauthenticated, "invalid email or password"))
		case errors.Is(err, identity.ErrNotConfirmed):
			apperr.Write(w, apperr.New(apperr.Unauthenticated, "account not activated"))
		default:
			h.logger.Warnw("login failed", "err", err)
			apperr.Write(w, apperr.Wrap(apperr.Unexpected, err))
		}
		return
	}

	if err := h.limiter.Clear(r.Context(), key); err != nil {
		h.logger.Warnw("rate limiter clear failed", "email", key, "err", err)
	}
	h.issue(w, r, u)
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		apperr.Write(w, apperr.New(apperr.ValidationFailure, "refresh_token is required"))
		return
	}
	userID, err := h.tokens.Consume(r.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, ErrInvalidToken) || errors.Is(err, ErrSessionExpired) {
			apperr.Write(w, apperr.Wrap(apperr.Unauthenticated, err))
			return
		}
		h.logger.Warnw("refresh failed", "err", err)
		apperr.Write(w, apperr.Wrap(apperr.Unexpected, err))
		return
	}
	u, err := h.users.Get(r.Context(), userID)
	if err != nil {
		h.logger.Debugw("refresh for missing user", "user_id", userID, "err", err)
		apperr.Write(w, apperr.New(apperr.Unauthenticated, "invalid token"))
		return
	}
	h.issue(w, r, u)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		apperr.Write(w, apperr.New(apperr.ValidationFailure, "refresh_token is required"))
		return
	}
	if err := h.tokens.Revoke(r.Context(), req.RefreshToken); err != nil {
		h.logger.Warnw("revoke failed", "err", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) JWKS(w http.ResponseWriter, r *http.Request) {
	apperr.WriteJSON(w, http.StatusOK, h.tokens.JWKS())
}

func (h *Handler) issue(w http.ResponseWriter, r *http.Request, u *identityentity.Identity) {
	role, err := h.roles.Role(r.Context(), u.ID)
	if err != nil {
		// identities without a profile still log in, they just hold no role
		h.logger.Debugw("role lookup failed", "user_id", u.ID, "err", err)
		role = ""
	}
	pair, err := h.tokens.Issue(r.Context(), u.ID, u.Email, role)
	if err != nil {
		h.logger.Warnw("issue tokens failed", "user_id", u.ID, "err", err)
		apperr.Write(w, apperr.Wrap(apperr.Unexpected, err))
		return
	}
	apperr.WriteJSON(w, http.StatusOK, pair)
}

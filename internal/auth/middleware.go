package auth

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-gym/pkg/apperr"
)

type ctxKey int

const (
	userIDKey ctxKey = iota
	claimsKey
)

// UserIDFromContext returns the caller set by Authenticate.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey).(*Claims)
	return c, ok
}

// Authenticate rejects requests without a valid bearer access token.
func Authenticate(tokens *TokenService, logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearer(r)
			if !ok {
				apperr.Write(w, apperr.New(apperr.Unauthenticated, "missing bearer token"))
				return
			}
			claims, err := tokens.Parse(raw)
			if err != nil {
				logger.Debugw("bearer rejected", "path", r.URL.Path, "err", err)
				apperr.Write(w, apperr.New(apperr.Unauthenticated, "invalid token"))
				return
			}
			ctx := context.WithValue(r.Context(), userIDKey, claims.Subject)
			ctx = context.WithValue(ctx, claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole admits callers whose stored role equals role. It must run after Authenticate.
func RequireRole(roles RoleLookup, role string, logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := UserIDFromContext(r.Context())
			if !ok {
				apperr.Write(w, apperr.New(apperr.Unauthenticated, "missing bearer token"))
				return
			}
			got, err := roles.Role(r.Context(), userID)
			if err != nil || got != role {
				logger.Infow("role check denied", "user_id", userID, "want", role, "got", got, "err", err)
				apperr.Write(w, apperr.New(apperr.Forbidden, "insufficient permissions"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearer(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if len(h) < len("bearer ") || !strings.EqualFold(h[:len("bearer ")], "bearer ") {
		return "", false
	}
	t := strings.TrimSpace(h[len("bearer "):])
	return t, t != ""
}

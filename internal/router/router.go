package router

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-gym/internal/auth"
	"github.com/ovaphlow/pitchfork/service-gym/internal/identity"
	"github.com/ovaphlow/pitchfork/service-gym/internal/provision"
	"github.com/ovaphlow/pitchfork/service-gym/internal/staff/entity"
	"github.com/ovaphlow/pitchfork/service-gym/pkg/apperr"
	"github.com/ovaphlow/pitchfork/service-gym/pkg/utilities"
)

// loggingResponseWriter wraps http.ResponseWriter to capture status and size.
type loggingResponseWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.status = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	if lrw.status == 0 {
		lrw.status = http.StatusOK
	}
	n, err := lrw.ResponseWriter.Write(b)
	lrw.size += n
	return n, err
}

// LoggingMiddleware tags each request with an X-Request-ID and logs it at debug level.
// Server errors are logged at warn.
func LoggingMiddleware(logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqID := r.Header.Get("X-Request-ID")
			if reqID == "" {
				reqID = utilities.NewSnowflakeID()
			}
			w.Header().Set("X-Request-ID", reqID)

			lrw := &loggingResponseWriter{ResponseWriter: w}
			next.ServeHTTP(lrw, r)
			dur := time.Since(start)
			status := lrw.status
			if status == 0 {
				status = http.StatusOK
			}
			log := logger.Debugw
			if status >= http.StatusInternalServerError {
				log = logger.Warnw
			}
			log("http request",
				"request_id", reqID,
				"method", r.Method,
				"path", r.URL.Path,
				"remote", r.RemoteAddr,
				"status", status,
				"duration_ms", float64(dur.Microseconds())/1000.0,
				"size", lrw.size,
			)
		})
	}
}

// SecurityHeadersMiddleware sets common HTTP security headers.
func SecurityHeadersMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "no-referrer-when-downgrade")
			w.Header().Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
			// JSON only API, nothing to load
			w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			w.Header().Set("Cache-Control", "no-store")
			// only meaningful over TLS
			if r.TLS != nil {
				w.Header().Set("Strict-Transport-Security", "max-age=2592000; includeSubDomains")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Deps carries the handlers and collaborators the routes are built from.
type Deps struct {
	Identity  *identity.Handler
	Auth      *auth.Handler
	Provision *provision.Handler
	Tokens    *auth.TokenService
	Roles     auth.RoleLookup
	// Ping reports backing store health; nil means always healthy.
	Ping func(ctx context.Context) error
}

// RegisterRoutes mounts every endpoint under prefix on a http.ServeMux.
func RegisterRoutes(logger *zap.SugaredLogger, prefix string, d Deps) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET "+prefix+"/api/health", func(w http.ResponseWriter, r *http.Request) {
		if d.Ping != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := d.Ping(ctx); err != nil {
				logger.Warnw("health check failed", "err", err)
				apperr.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		apperr.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("POST "+prefix+"/api/auth/login", d.Auth.Login)
	mux.HandleFunc("POST "+prefix+"/api/auth/refresh", d.Auth.Refresh)
	mux.HandleFunc("POST "+prefix+"/api/auth/logout", d.Auth.Logout)
	mux.HandleFunc("GET "+prefix+"/api/auth/jwks.json", d.Auth.JWKS)
	mux.HandleFunc("POST "+prefix+"/api/invitations/accept", d.Identity.AcceptInvitation)

	admin := func(h http.HandlerFunc) http.Handler {
		return auth.Authenticate(d.Tokens, logger)(auth.RequireRole(d.Roles, entity.RoleAdmin, logger)(h))
	}
	mux.Handle("POST "+prefix+"/api/staff", admin(d.Provision.Create))
	mux.Handle("GET "+prefix+"/api/staff/{id}", admin(d.Provision.Get))
	mux.Handle("GET "+prefix+"/api/permissions/defaults", admin(d.Provision.Defaults))

	return LoggingMiddleware(logger)(SecurityHeadersMiddleware()(mux))
}

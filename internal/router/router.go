package router

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-diary-core/internal/oidc"
	"github.com/ovaphlow/pitchfork/service-diary-core/internal/result"
	"github.com/ovaphlow/pitchfork/service-diary-core/internal/role"
	"github.com/ovaphlow/pitchfork/service-diary-core/internal/user"
	"github.com/ovaphlow/pitchfork/service-diary-core/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-diary-core/pkg/utilities"
)

const RequestIDHeader = "X-Request-Id"

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

// LoggingMiddleware tags every request with a request id (kept from the
// caller when present) and logs it once served.
func LoggingMiddleware(logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqID := r.Header.Get(RequestIDHeader)
			if reqID == "" {
				reqID = utilities.NewKSUID()
			}
			w.Header().Set(RequestIDHeader, reqID)

			lrw := &loggingResponseWriter{ResponseWriter: w}
			next.ServeHTTP(lrw, r)
			status := lrw.status
			if status == 0 {
				status = http.StatusOK
			}
			logger.Debugw("http request",
				"request_id", reqID,
				"method", r.Method,
				"path", r.URL.Path,
				"remote", r.RemoteAddr,
				"status", status,
				"duration_ms", float64(time.Since(start).Microseconds())/1000.0,
				"size", lrw.size,
			)
		})
	}
}

// SecurityHeadersMiddleware sets conservative security headers on every
// response. The API serves JSON only.
func SecurityHeadersMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "no-referrer")
			w.Header().Set("Cache-Control", "no-store")
			if w.Header().Get("Content-Security-Policy") == "" {
				w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			}
			// HSTS only makes sense over TLS
			if r.TLS != nil {
				w.Header().Set("Strict-Transport-Security", "max-age=2592000; includeSubDomains")
			}
			next.ServeHTTP(w, r)
		})
	}
}

func deny(w http.ResponseWriter, status int) {
	code := result.CodeUserUnauthorizedAccess
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(result.Envelope[struct{}]{
		ErrorMessage: result.ErrUserUnauthorizedAccess.Message,
		ErrorCode:    &code,
	})
}

// RequireRoles admits requests whose bearer token is valid and carries at
// least one of roles. Missing or invalid tokens get 401, a token without
// the role gets 403.
func RequireRoles(issuer *oidc.Issuer, logger *zap.SugaredLogger, roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if len(auth) < len("bearer ") || !strings.EqualFold(auth[:len("bearer ")], "bearer ") {
				deny(w, http.StatusUnauthorized)
				return
			}
			claims, err := issuer.Parse(strings.TrimSpace(auth[len("bearer "):]), true)
			if err != nil {
				logger.Debugw("bearer rejected", "path", r.URL.Path, "err", err)
				deny(w, http.StatusUnauthorized)
				return
			}
			if !claims.HasAnyRole(roles...) {
				logger.Infow("access denied", "path", r.URL.Path, "login", claims.Subject, "roles", claims.Roles)
				deny(w, http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r.WithContext(oidc.WithClaims(r.Context(), claims)))
		})
	}
}

// Deps are the handlers and helpers mounted by RegisterRoutes.
type Deps struct {
	Auth   *user.Handler
	Tokens *oidc.Handler
	Roles  *role.Handler
	Issuer *oidc.Issuer
	// Ping backs the health endpoint; nil reports healthy.
	Ping func(ctx context.Context) error
}

// RegisterRoutes mounts HTTP handlers using the standard library's http.ServeMux.
func RegisterRoutes(logger *zap.SugaredLogger, d Deps) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, r *http.Request) {
		if d.Ping != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := d.Ping(ctx); err != nil {
				logger.Warnw("health check failed", "err", err)
				http.Error(w, "unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("POST /api/v1/auth/register-user", d.Auth.Register)
	mux.HandleFunc("POST /api/v1/auth/login-user", d.Auth.Login)
	mux.HandleFunc("POST /api/token/refresh-token", d.Tokens.Refresh)

	staff := RequireRoles(d.Issuer, logger, entity.RoleAdmin, entity.RoleModerator)
	mux.Handle("POST /api/v1/role/create-role", staff(http.HandlerFunc(d.Roles.Create)))
	mux.Handle("PUT /api/v1/role/update-role", staff(http.HandlerFunc(d.Roles.Update)))
	mux.Handle("DELETE /api/v1/role/delete-role/{id}", staff(http.HandlerFunc(d.Roles.Delete)))
	mux.Handle("POST /api/v1/role/add-role-for-user", staff(http.HandlerFunc(d.Roles.AddForUser)))
	mux.Handle("PUT /api/v1/role/update-role-for-user", staff(http.HandlerFunc(d.Roles.UpdateForUser)))
	mux.Handle("DELETE /api/v1/role/remove-role-for-user", staff(http.HandlerFunc(d.Roles.RemoveForUser)))

	// wrap with security headers middleware then logging middleware
	return LoggingMiddleware(logger)(SecurityHeadersMiddleware()(mux))
}

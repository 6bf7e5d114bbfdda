package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/vulntrack/api/pkg/apierror"
	"github.com/vulntrack/api/pkg/domain/shared"
	"github.com/vulntrack/api/pkg/jwt"
	"github.com/vulntrack/api/pkg/logger"
)

// Identity-related context keys - use logger.ContextKey for consistency.
const (
	UserIDKey                  = logger.ContextKeyUserID
	RoleKey  logger.ContextKey = "role"
)

// Dev identity headers accepted when IdentityConfig.DevHeaders is enabled.
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
)

// IdentityConfig configures the identity middleware.
type IdentityConfig struct {
	// Secret verifies gateway assertion tokens (HS256).
	Secret string
	// Issuer is the expected issuer claim. Empty skips the check.
	Issuer string
	// DevHeaders accepts X-User-ID / X-User-Role headers instead of a
	// token. Development only; never enable behind an untrusted edge.
	DevHeaders bool
	Logger     *logger.Logger
}

// =============================================================================
// Context Getters
// =============================================================================

// GetUserID extracts the caller identifier from context.
func GetUserID(ctx context.Context) string {
	if id, ok := ctx.Value(UserIDKey).(string); ok {
		return id
	}
	return ""
}

// GetRole extracts the caller role from context, defaulting to user.
func GetRole(ctx context.Context) shared.Role {
	if role, ok := ctx.Value(RoleKey).(shared.Role); ok {
		return role
	}
	return shared.RoleUser
}

// withIdentity stores the caller identity on the request context.
func withIdentity(ctx context.Context, userID string, role shared.Role) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, userID)
	return context.WithValue(ctx, RoleKey, role)
}

// =============================================================================
// Middleware
// =============================================================================

// Identity authenticates requests using the gateway's assertion token from
// the Authorization header. When DevHeaders is enabled, plain identity
// headers are accepted as a fallback for local development.
func Identity(cfg IdentityConfig) func(http.Handler) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = logger.NewNop()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token != "" {
				claims, err := jwt.Validate(token, cfg.Secret, cfg.Issuer)
				if err != nil {
					log.Debug("assertion rejected", "error", err, "path", r.URL.Path)
					apierror.Unauthorized("Invalid or expired token").WriteJSON(w)
					return
				}
				role, err := claims.ParsedRole()
				if err != nil {
					log.Warn("assertion carried unknown role", "role", claims.Role, "subject", claims.Subject)
					apierror.Unauthorized("Invalid or expired token").WriteJSON(w)
					return
				}
				next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), claims.Subject, role)))
				return
			}

			if cfg.DevHeaders {
				if userID := strings.TrimSpace(r.Header.Get(HeaderUserID)); userID != "" {
					role := shared.RoleUser
					if raw := r.Header.Get(HeaderUserRole); raw != "" {
						parsed, ok := shared.ParseRole(raw)
						if !ok {
							apierror.BadRequest("Unknown role in " + HeaderUserRole + " header").WriteJSON(w)
							return
						}
						role = parsed
					}
					next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), userID, role)))
					return
				}
			}

			apierror.Unauthorized("Authentication required").WriteJSON(w)
		})
	}
}

// RequireElevated restricts a route to security champions and admins.
// Must run after Identity().
func RequireElevated() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !GetRole(r.Context()).IsElevated() {
				apierror.Forbidden("Requires security champion or admin role").WriteJSON(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole restricts a route to the given roles. Must run after Identity().
func RequireRole(roles ...shared.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			current := GetRole(r.Context())
			for _, role := range roles {
				if current == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			apierror.Forbidden("Insufficient role").WriteJSON(w)
		})
	}
}

// bearerToken extracts the token from the Authorization header.
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	const prefix = "Bearer "
	if len(auth) > len(prefix) && strings.EqualFold(auth[:len(prefix)], prefix) {
		return strings.TrimSpace(auth[len(prefix):])
	}
	return ""
}

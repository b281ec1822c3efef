package auth

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/wisbric/pulse/internal/db"
)

// Middleware returns an HTTP middleware that authenticates the caller via an
// OIDC bearer token, or (development only) an X-Tenant-Slug header, storing
// the resulting Identity in the request context.
//
// Authentication precedence:
//  1. Authorization: Bearer <jwt>  →  OIDC ID token validation
//  2. X-Tenant-Slug: <slug>        →  development-only fallback, admin role
//
// If neither succeeds, the request is rejected with 401.
func Middleware(oidcAuth *OIDCAuthenticator, pool db.DBTX, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var identity *Identity

			if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") || strings.HasPrefix(authHeader, "bearer ") {
				if oidcAuth == nil {
					logger.Warn("bearer token presented but OIDC is not configured")
					respondErr(w, http.StatusUnauthorized, "unauthorized", "invalid token")
					return
				}

				claims, err := oidcAuth.Authenticate(r.Context(), authHeader)
				if err != nil {
					logger.Warn("OIDC authentication failed", "error", err)
					respondErr(w, http.StatusUnauthorized, "unauthorized", "invalid token")
					return
				}

				identity = &Identity{
					Subject:    claims.Subject,
					Email:      claims.Email,
					Role:       claims.Role,
					TenantSlug: claims.TenantSlug,
					Method:     MethodOIDC,
				}

				logger.Debug("authenticated via OIDC",
					"sub", claims.Subject,
					"email", claims.Email,
					"tenant_slug", claims.TenantSlug,
				)
			}

			// Dev-mode fallback: X-Tenant-Slug header (no real authentication).
			if identity == nil {
				if slug := r.Header.Get("X-Tenant-Slug"); slug != "" {
					devID := uuid.Nil
					identity = &Identity{
						Subject:    "dev:anonymous",
						Email:      "dev@localhost",
						Role:       RoleAdmin,
						TenantSlug: slug,
						TenantID:   devID,
						UserID:     &devID,
						Method:     MethodDev,
					}

					if pool != nil {
						q := db.New(pool)
						if t, err := q.GetTenantBySlug(r.Context(), slug); err == nil {
							identity.TenantID = t.ID
						}
					}

					logger.Debug("dev-mode authentication", "tenant_slug", slug)
				}
			}

			if identity == nil {
				respondErr(w, http.StatusUnauthorized, "unauthorized", "no valid authentication provided")
				return
			}

			ctx := NewContext(r.Context(), identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func respondErr(w http.ResponseWriter, status int, errStr, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   errStr,
		"message": message,
	})
}

package tenant

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wisbric/pulse/internal/db"
)

// Resolver identifies the tenant slug for the current request. Production
// resolvers derive the slug from an authenticated identity; HeaderResolver
// below is for local development only.
type Resolver interface {
	Resolve(r *http.Request) (string, error)
}

// HeaderResolver resolves the tenant from the X-Tenant-Slug header.
// Intended for development and testing; production should use an identity
// that already carries a resolved tenant slug (see internal/auth).
type HeaderResolver struct{}

func (HeaderResolver) Resolve(r *http.Request) (string, error) {
	slug := r.Header.Get("X-Tenant-Slug")
	if slug == "" {
		return "", fmt.Errorf("missing X-Tenant-Slug header")
	}
	return slug, nil
}

// lookup resolves a tenant slug to its id/name via the public.tenants table.
func lookup(ctx context.Context, pool *pgxpool.Pool, slug string) (uuid.UUID, string, error) {
	q := db.New(pool)
	t, err := q.GetTenantBySlug(ctx, slug)
	if err != nil {
		return uuid.Nil, "", err
	}
	return t.ID, t.Name, nil
}

// Middleware resolves the tenant for each request, acquires a dedicated
// pooled connection, scopes it to the tenant's schema via search_path, and
// stores both the tenant Info and the connection in the request context. The
// connection is released once the handler chain returns.
func Middleware(pool *pgxpool.Pool, resolver Resolver, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			slug, err := resolver.Resolve(r)
			if err != nil {
				http.Error(w, "tenant not resolved: "+err.Error(), http.StatusUnauthorized)
				return
			}

			id, name, err := lookup(r.Context(), pool, slug)
			if err != nil {
				logger.Warn("tenant lookup failed", "slug", slug, "error", err)
				http.Error(w, "unknown tenant", http.StatusNotFound)
				return
			}

			schema := SchemaName(slug)

			conn, err := pool.Acquire(r.Context())
			if err != nil {
				logger.Error("acquiring tenant connection", "error", err, "schema", schema)
				http.Error(w, "service unavailable", http.StatusServiceUnavailable)
				return
			}
			defer conn.Release()

			if _, err := conn.Exec(r.Context(), "SELECT set_config('search_path', $1, false)", schema+", public"); err != nil {
				logger.Error("setting tenant search_path", "error", err, "schema", schema)
				http.Error(w, "service unavailable", http.StatusServiceUnavailable)
				return
			}

			info := &Info{ID: id, Name: name, Slug: slug, Schema: schema}
			ctx := NewContext(r.Context(), info)
			ctx = NewConnContext(ctx, conn)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OperatorMiddleware scopes an operator-role request to the public schema
// instead of a single tenant's schema (an operator can act across tenants,
// filtering explicitly by tenant_id column rather than by search_path), and
// writes an audit record synchronously before the downstream handler runs.
// auditFn must block until the record is durably recorded.
func OperatorMiddleware(pool *pgxpool.Pool, auditFn func(ctx context.Context, r *http.Request) error, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			conn, err := pool.Acquire(r.Context())
			if err != nil {
				logger.Error("acquiring operator connection", "error", err)
				http.Error(w, "service unavailable", http.StatusServiceUnavailable)
				return
			}
			defer conn.Release()

			// Pooled connections may still carry a tenant search_path from
			// an earlier request.
			if _, err := conn.Exec(r.Context(), "SELECT set_config('search_path', 'public', false)"); err != nil {
				logger.Error("setting operator search_path", "error", err)
				http.Error(w, "service unavailable", http.StatusServiceUnavailable)
				return
			}

			if err := auditFn(r.Context(), r); err != nil {
				logger.Error("operator audit write failed, denying access", "error", err)
				http.Error(w, "audit trail unavailable", http.StatusServiceUnavailable)
				return
			}

			ctx := NewConnContext(r.Context(), conn)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Tenant is a row of the public.tenants registry table.
type Tenant struct {
	ID        uuid.UUID
	Name      string
	Slug      string
	Config    json.RawMessage
	CreatedAt time.Time
}

// CreateTenantParams holds the fields required to insert a tenant.
type CreateTenantParams struct {
	Name   string
	Slug   string
	Config json.RawMessage
}

// CreateTenant inserts a new row into public.tenants.
func (q *Queries) CreateTenant(ctx context.Context, arg CreateTenantParams) (Tenant, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO public.tenants (name, slug, config)
		VALUES ($1, $2, $3)
		RETURNING id, name, slug, config, created_at
	`, arg.Name, arg.Slug, arg.Config)

	var t Tenant
	if err := row.Scan(&t.ID, &t.Name, &t.Slug, &t.Config, &t.CreatedAt); err != nil {
		return Tenant{}, fmt.Errorf("scanning tenant row: %w", err)
	}
	return t, nil
}

// GetTenantBySlug looks up a tenant by its slug.
func (q *Queries) GetTenantBySlug(ctx context.Context, slug string) (Tenant, error) {
	row := q.db.QueryRow(ctx, `
		SELECT id, name, slug, config, created_at FROM public.tenants WHERE slug = $1
	`, slug)

	var t Tenant
	if err := row.Scan(&t.ID, &t.Name, &t.Slug, &t.Config, &t.CreatedAt); err != nil {
		return Tenant{}, err
	}
	return t, nil
}

// GetTenantByID looks up a tenant by its surrogate key. Background
// components (ingestion, evaluator, dispatcher) receive tenant_id directly
// from the wire rather than a resolved HTTP request, so they look up the
// schema name by id instead of through the slug-based request middleware.
func (q *Queries) GetTenantByID(ctx context.Context, id uuid.UUID) (Tenant, error) {
	row := q.db.QueryRow(ctx, `
		SELECT id, name, slug, config, created_at FROM public.tenants WHERE id = $1
	`, id)

	var t Tenant
	if err := row.Scan(&t.ID, &t.Name, &t.Slug, &t.Config, &t.CreatedAt); err != nil {
		return Tenant{}, err
	}
	return t, nil
}

// ListTenants returns every provisioned tenant, ordered by slug. Used by the
// Evaluator and Dispatcher tick loops to iterate all tenant schemas.
func (q *Queries) ListTenants(ctx context.Context) ([]Tenant, error) {
	rows, err := q.db.Query(ctx, `SELECT id, name, slug, config, created_at FROM public.tenants ORDER BY slug`)
	if err != nil {
		return nil, fmt.Errorf("querying tenants: %w", err)
	}
	defer rows.Close()

	var out []Tenant
	for rows.Next() {
		var t Tenant
		if err := rows.Scan(&t.ID, &t.Name, &t.Slug, &t.Config, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning tenant row: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// DeleteTenant removes a tenant's registry row (not its schema).
func (q *Queries) DeleteTenant(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.Exec(ctx, `DELETE FROM public.tenants WHERE id = $1`, id)
	return err
}

package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Route is a row of the tenant-scoped routes table: a predicate
// over {severity, alert_type, device_selector} plus an integration and an
// optional per-fingerprint throttle.
type Route struct {
	ID              uuid.UUID
	TenantID        uuid.UUID
	IntegrationID   uuid.UUID
	Name            string
	MinSeverity     string
	AlertTypes      []string
	DeviceSelector  json.RawMessage
	ThrottleSeconds int32
	Template        string
	Enabled         bool
	CreatedAt       time.Time
}

const routeColumns = `id, tenant_id, integration_id, name, min_severity, alert_types, device_selector, throttle_seconds, template, enabled, created_at`

func scanRoute(row interface{ Scan(dest ...any) error }) (Route, error) {
	var r Route
	err := row.Scan(&r.ID, &r.TenantID, &r.IntegrationID, &r.Name, &r.MinSeverity, &r.AlertTypes,
		&r.DeviceSelector, &r.ThrottleSeconds, &r.Template, &r.Enabled, &r.CreatedAt)
	return r, err
}

// CreateRouteParams holds fields for defining a route.
type CreateRouteParams struct {
	TenantID        uuid.UUID
	IntegrationID   uuid.UUID
	Name            string
	MinSeverity     string
	AlertTypes      []string
	DeviceSelector  json.RawMessage
	ThrottleSeconds int32
	Template        string
	Enabled         bool
}

// CreateRoute inserts a new route.
func (q *Queries) CreateRoute(ctx context.Context, arg CreateRouteParams) (Route, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO routes (tenant_id, integration_id, name, min_severity, alert_types, device_selector, throttle_seconds, template, enabled)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+routeColumns,
		arg.TenantID, arg.IntegrationID, arg.Name, arg.MinSeverity, arg.AlertTypes,
		arg.DeviceSelector, arg.ThrottleSeconds, arg.Template, arg.Enabled)
	r, err := scanRoute(row)
	if err != nil {
		return Route{}, fmt.Errorf("inserting route: %w", err)
	}
	return r, nil
}

// GetRoute looks up a single route by id.
func (q *Queries) GetRoute(ctx context.Context, id uuid.UUID) (Route, error) {
	row := q.db.QueryRow(ctx, `SELECT `+routeColumns+` FROM routes WHERE id = $1`, id)
	return scanRoute(row)
}

// ListRoutes returns every route in the current tenant schema.
func (q *Queries) ListRoutes(ctx context.Context) ([]Route, error) {
	rows, err := q.db.Query(ctx, `SELECT `+routeColumns+` FROM routes ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("querying routes: %w", err)
	}
	defer rows.Close()

	var out []Route
	for rows.Next() {
		r, err := scanRoute(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning route row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListEnabledRoutes returns enabled routes for the Dispatcher's per-alert
// matching pass.
func (q *Queries) ListEnabledRoutes(ctx context.Context) ([]Route, error) {
	rows, err := q.db.Query(ctx, `SELECT `+routeColumns+` FROM routes WHERE enabled ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying enabled routes: %w", err)
	}
	defer rows.Close()

	var out []Route
	for rows.Next() {
		r, err := scanRoute(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning route row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpdateRouteParams updates a route's mutable fields.
type UpdateRouteParams struct {
	ID              uuid.UUID
	MinSeverity     string
	AlertTypes      []string
	DeviceSelector  json.RawMessage
	ThrottleSeconds int32
	Template        string
	Enabled         bool
}

// UpdateRoute updates an existing route.
func (q *Queries) UpdateRoute(ctx context.Context, arg UpdateRouteParams) (Route, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE routes SET min_severity = $2, alert_types = $3, device_selector = $4,
			throttle_seconds = $5, template = $6, enabled = $7
		WHERE id = $1
		RETURNING `+routeColumns,
		arg.ID, arg.MinSeverity, arg.AlertTypes, arg.DeviceSelector, arg.ThrottleSeconds, arg.Template, arg.Enabled)
	return scanRoute(row)
}

// DeleteRoute removes a route.
func (q *Queries) DeleteRoute(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.Exec(ctx, `DELETE FROM routes WHERE id = $1`, id)
	return err
}

// GetRouteThrottle returns the last time a delivery job was created for a
// (route, fingerprint) pair, or pgx.ErrNoRows if the pair has never fired.
func (q *Queries) GetRouteThrottle(ctx context.Context, routeID uuid.UUID, fingerprint string) (time.Time, error) {
	row := q.db.QueryRow(ctx, `
		SELECT last_sent_at FROM route_throttles WHERE route_id = $1 AND fingerprint = $2
	`, routeID, fingerprint)
	var t time.Time
	err := row.Scan(&t)
	return t, err
}

// SetRouteThrottle records the last-sent timestamp for a (route, fingerprint)
// pair, used by the Dispatcher's throttle check.
func (q *Queries) SetRouteThrottle(ctx context.Context, routeID uuid.UUID, fingerprint string, at time.Time) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO route_throttles (route_id, fingerprint, last_sent_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (route_id, fingerprint) DO UPDATE SET last_sent_at = EXCLUDED.last_sent_at
	`, routeID, fingerprint, at)
	return err
}

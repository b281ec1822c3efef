package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Integration is a row of the tenant-scoped integrations table.
type Integration struct {
	ID        uuid.UUID
	TenantID  uuid.UUID
	Kind      string // webhook | snmp | email | mqtt
	Name      string
	Config    json.RawMessage
	Enabled   bool
	CreatedAt time.Time
}

const integrationColumns = `id, tenant_id, kind, name, config, enabled, created_at`

func scanIntegration(row interface{ Scan(dest ...any) error }) (Integration, error) {
	var i Integration
	err := row.Scan(&i.ID, &i.TenantID, &i.Kind, &i.Name, &i.Config, &i.Enabled, &i.CreatedAt)
	return i, err
}

// CreateIntegrationParams holds fields for registering an outbound integration.
type CreateIntegrationParams struct {
	TenantID uuid.UUID
	Kind     string
	Name     string
	Config   json.RawMessage
	Enabled  bool
}

// CreateIntegration inserts a new integration.
func (q *Queries) CreateIntegration(ctx context.Context, arg CreateIntegrationParams) (Integration, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO integrations (tenant_id, kind, name, config, enabled)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+integrationColumns,
		arg.TenantID, arg.Kind, arg.Name, arg.Config, arg.Enabled)
	i, err := scanIntegration(row)
	if err != nil {
		return Integration{}, fmt.Errorf("inserting integration: %w", err)
	}
	return i, nil
}

// GetIntegration looks up a single integration by id.
func (q *Queries) GetIntegration(ctx context.Context, id uuid.UUID) (Integration, error) {
	row := q.db.QueryRow(ctx, `SELECT `+integrationColumns+` FROM integrations WHERE id = $1`, id)
	return scanIntegration(row)
}

// ListIntegrations returns every integration in the current tenant schema.
func (q *Queries) ListIntegrations(ctx context.Context) ([]Integration, error) {
	rows, err := q.db.Query(ctx, `SELECT `+integrationColumns+` FROM integrations ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("querying integrations: %w", err)
	}
	defer rows.Close()

	var out []Integration
	for rows.Next() {
		i, err := scanIntegration(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning integration row: %w", err)
		}
		out = append(out, i)
	}
	return out, rows.Err()
}

// UpdateIntegrationParams updates an integration's config/enabled flag.
type UpdateIntegrationParams struct {
	ID      uuid.UUID
	Name    string
	Config  json.RawMessage
	Enabled bool
}

// UpdateIntegration updates an existing integration.
func (q *Queries) UpdateIntegration(ctx context.Context, arg UpdateIntegrationParams) (Integration, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE integrations SET name = $2, config = $3, enabled = $4 WHERE id = $1
		RETURNING `+integrationColumns,
		arg.ID, arg.Name, arg.Config, arg.Enabled)
	return scanIntegration(row)
}

// DeleteIntegration removes an integration.
func (q *Queries) DeleteIntegration(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.Exec(ctx, `DELETE FROM integrations WHERE id = $1`, id)
	return err
}

package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Device is a row of the tenant-scoped devices table (the Device Registry).
// DeviceID is the customer-facing identifier presented on the
// wire; ID is the internal surrogate key.
type Device struct {
	ID                 uuid.UUID
	TenantID           uuid.UUID
	DeviceID           string
	SiteID             string
	Status             string // ACTIVE | REVOKED
	ProvisionTokenHash string
	SubscriptionID     *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// CreateDeviceParams holds the fields required to provision a device.
type CreateDeviceParams struct {
	TenantID           uuid.UUID
	DeviceID           string
	SiteID             string
	ProvisionTokenHash string
	SubscriptionID     *string
}

func scanDevice(row interface {
	Scan(dest ...any) error
}) (Device, error) {
	var d Device
	err := row.Scan(&d.ID, &d.TenantID, &d.DeviceID, &d.SiteID, &d.Status,
		&d.ProvisionTokenHash, &d.SubscriptionID, &d.CreatedAt, &d.UpdatedAt)
	return d, err
}

const deviceColumns = `id, tenant_id, device_id, site_id, status, provision_token_hash, subscription_id, created_at, updated_at`

// CreateDevice inserts a new device registry row with status ACTIVE.
func (q *Queries) CreateDevice(ctx context.Context, arg CreateDeviceParams) (Device, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO devices (tenant_id, device_id, site_id, status, provision_token_hash, subscription_id)
		VALUES ($1, $2, $3, 'ACTIVE', $4, $5)
		RETURNING `+deviceColumns,
		arg.TenantID, arg.DeviceID, arg.SiteID, arg.ProvisionTokenHash, arg.SubscriptionID)

	d, err := scanDevice(row)
	if err != nil {
		return Device{}, fmt.Errorf("scanning device row: %w", err)
	}
	return d, nil
}

// GetDevice looks up a device by its canonical (tenant, device_id) identity.
// The tenant scoping comes from the connection's search_path (internal/tenant
// middleware); the tenant_id column is still filtered explicitly as defense
// in depth — canonical identity is never device_id alone.
func (q *Queries) GetDevice(ctx context.Context, tenantID uuid.UUID, deviceID string) (Device, error) {
	row := q.db.QueryRow(ctx, `
		SELECT `+deviceColumns+` FROM devices WHERE tenant_id = $1 AND device_id = $2
	`, tenantID, deviceID)
	return scanDevice(row)
}

// ListDevicesParams filters the device listing endpoint.
type ListDevicesParams struct {
	SiteID *string
	Limit  int32
	Offset int32
}

// ListDevices returns devices for the current tenant schema, optionally
// filtered by site.
func (q *Queries) ListDevices(ctx context.Context, arg ListDevicesParams) ([]Device, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+deviceColumns+` FROM devices
		WHERE ($1::text IS NULL OR site_id = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, arg.SiteID, arg.Limit, arg.Offset)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var out []Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device row: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// UpdateDeviceStatus transitions a device's registry status, e.g. to REVOKED.
func (q *Queries) UpdateDeviceStatus(ctx context.Context, id uuid.UUID, status string) (Device, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE devices SET status = $2, updated_at = now() WHERE id = $1
		RETURNING `+deviceColumns,
		id, status)
	return scanDevice(row)
}

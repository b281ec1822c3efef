package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DeviceState is a row of the tenant-scoped device_state table.
type DeviceState struct {
	TenantID        uuid.UUID
	DeviceID        string
	LastSeenAt      time.Time
	Liveness        string // ONLINE | STALE | OFFLINE
	LastKnownSiteID string
	UpdatedAt       time.Time
}

// UpsertLastSeenParams records a heartbeat/telemetry observation. Liveness
// defaults to ONLINE on first insert; the Evaluator is solely responsible for
// downgrading it as age grows — the hot ingestion path never
// writes STALE/OFFLINE.
type UpsertLastSeenParams struct {
	TenantID   uuid.UUID
	DeviceID   string
	SiteID     string
	ObservedAt time.Time
}

// UpsertLastSeen updates last_seen_at for a device, inserting a row on first
// contact. Called from the last-seen batcher's periodic flush, never per
// message.
func (q *Queries) UpsertLastSeen(ctx context.Context, arg UpsertLastSeenParams) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO device_state (tenant_id, device_id, last_seen_at, liveness, last_known_site_id, updated_at)
		VALUES ($1, $2, $3, 'ONLINE', $4, now())
		ON CONFLICT (tenant_id, device_id) DO UPDATE SET
			last_seen_at = EXCLUDED.last_seen_at,
			last_known_site_id = EXCLUDED.last_known_site_id,
			updated_at = now()
		WHERE device_state.last_seen_at < EXCLUDED.last_seen_at
	`, arg.TenantID, arg.DeviceID, arg.ObservedAt, arg.SiteID)
	if err != nil {
		return fmt.Errorf("upserting device_state: %w", err)
	}
	return nil
}

// GetDeviceState looks up the liveness row for a single device.
func (q *Queries) GetDeviceState(ctx context.Context, tenantID uuid.UUID, deviceID string) (DeviceState, error) {
	row := q.db.QueryRow(ctx, `
		SELECT tenant_id, device_id, last_seen_at, liveness, last_known_site_id, updated_at
		FROM device_state WHERE tenant_id = $1 AND device_id = $2
	`, tenantID, deviceID)

	var s DeviceState
	err := row.Scan(&s.TenantID, &s.DeviceID, &s.LastSeenAt, &s.Liveness, &s.LastKnownSiteID, &s.UpdatedAt)
	return s, err
}

// ListDeviceStates returns every device_state row for the current tenant
// schema, for the Evaluator's liveness sweep. The Evaluator reconstructs
// liveness purely from last_seen_at on restart — no in-memory state needs to
// survive a process restart.
func (q *Queries) ListDeviceStates(ctx context.Context) ([]DeviceState, error) {
	rows, err := q.db.Query(ctx, `
		SELECT tenant_id, device_id, last_seen_at, liveness, last_known_site_id, updated_at
		FROM device_state
	`)
	if err != nil {
		return nil, fmt.Errorf("querying device_state: %w", err)
	}
	defer rows.Close()

	var out []DeviceState
	for rows.Next() {
		var s DeviceState
		if err := rows.Scan(&s.TenantID, &s.DeviceID, &s.LastSeenAt, &s.Liveness, &s.LastKnownSiteID, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning device_state row: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// UpdateLiveness transitions a device_state row's liveness column.
func (q *Queries) UpdateLiveness(ctx context.Context, tenantID uuid.UUID, deviceID, liveness string) error {
	_, err := q.db.Exec(ctx, `
		UPDATE device_state SET liveness = $3, updated_at = now()
		WHERE tenant_id = $1 AND device_id = $2
	`, tenantID, deviceID, liveness)
	return err
}

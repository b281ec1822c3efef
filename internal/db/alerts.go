package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Alert is a row of the tenant-scoped alerts table. Uniqueness
// of (tenant_id, fingerprint) WHERE status = 'OPEN' is enforced by a partial
// unique index created in the tenant migration, not in application code —
// CreateAlert relies on that constraint and the caller is expected to have
// already checked GetOpenAlertByFingerprint first (see pkg/alert's
// Deduplicator.OpenOrTouch).
type Alert struct {
	ID            uuid.UUID
	TenantID      uuid.UUID
	DeviceID      string
	Type          string // NO_HEARTBEAT | THRESHOLD
	RuleID        *uuid.UUID
	Severity      string
	Status        string // OPEN | ACKED | CLOSED | SILENCED
	Fingerprint   string
	OpenedAt      time.Time
	ClosedAt      *time.Time
	LastSeenAt    time.Time
	Details       json.RawMessage
	DispatchedAt  *time.Time
	CreatedAt     time.Time
}

const alertColumns = `id, tenant_id, device_id, type, rule_id, severity, status, fingerprint,
	opened_at, closed_at, last_seen_at, details, dispatched_at, created_at`

func scanAlert(row interface{ Scan(dest ...any) error }) (Alert, error) {
	var a Alert
	err := row.Scan(&a.ID, &a.TenantID, &a.DeviceID, &a.Type, &a.RuleID, &a.Severity, &a.Status,
		&a.Fingerprint, &a.OpenedAt, &a.ClosedAt, &a.LastSeenAt, &a.Details, &a.DispatchedAt, &a.CreatedAt)
	return a, err
}

// CreateAlertParams opens a new alert.
type CreateAlertParams struct {
	TenantID    uuid.UUID
	DeviceID    string
	Type        string
	RuleID      *uuid.UUID
	Severity    string
	Fingerprint string
	Details     json.RawMessage
}

// CreateAlert inserts a new OPEN alert. Callers must have already verified no
// OPEN row exists for this fingerprint; the
// partial unique index on (tenant_id, fingerprint) WHERE status='OPEN' is the
// last line of defense against a race between the check and this insert.
func (q *Queries) CreateAlert(ctx context.Context, arg CreateAlertParams) (Alert, error) {
	details := arg.Details
	if details == nil {
		details = json.RawMessage(`{}`)
	}
	row := q.db.QueryRow(ctx, `
		INSERT INTO alerts (tenant_id, device_id, type, rule_id, severity, status, fingerprint,
			opened_at, last_seen_at, details)
		VALUES ($1, $2, $3, $4, $5, 'OPEN', $6, now(), now(), $7)
		RETURNING `+alertColumns,
		arg.TenantID, arg.DeviceID, arg.Type, arg.RuleID, arg.Severity, arg.Fingerprint, details)
	a, err := scanAlert(row)
	if err != nil {
		return Alert{}, fmt.Errorf("inserting alert: %w", err)
	}
	return a, nil
}

// GetOpenAlertByFingerprint returns the OPEN alert for a fingerprint, or
// pgx.ErrNoRows if none exists. This is the dedup check.
func (q *Queries) GetOpenAlertByFingerprint(ctx context.Context, tenantID uuid.UUID, fingerprint string) (Alert, error) {
	row := q.db.QueryRow(ctx, `
		SELECT `+alertColumns+` FROM alerts
		WHERE tenant_id = $1 AND fingerprint = $2 AND status = 'OPEN'
	`, tenantID, fingerprint)
	return scanAlert(row)
}

// GetAlert looks up a single alert by id.
func (q *Queries) GetAlert(ctx context.Context, id uuid.UUID) (Alert, error) {
	row := q.db.QueryRow(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id = $1`, id)
	return scanAlert(row)
}

// TouchAlertParams updates an existing OPEN alert's freshness and details
// without changing its identity — the "update its last_seen_at and details"
// branch of the dedup contract.
type TouchAlertParams struct {
	ID      uuid.UUID
	Details json.RawMessage
}

// TouchAlert refreshes last_seen_at and details on an already-open alert.
func (q *Queries) TouchAlert(ctx context.Context, arg TouchAlertParams) error {
	_, err := q.db.Exec(ctx, `
		UPDATE alerts SET last_seen_at = now(), details = $2 WHERE id = $1
	`, arg.ID, arg.Details)
	return err
}

// CloseAlert transitions an OPEN alert to CLOSED.
func (q *Queries) CloseAlert(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.Exec(ctx, `
		UPDATE alerts SET status = 'CLOSED', closed_at = now() WHERE id = $1 AND status = 'OPEN'
	`, id)
	return err
}

// AcknowledgeAlert transitions an OPEN alert to ACKED.
func (q *Queries) AcknowledgeAlert(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.Exec(ctx, `UPDATE alerts SET status = 'ACKED' WHERE id = $1 AND status = 'OPEN'`, id)
	return err
}

// ListAlertsParams filters the alert read API.
type ListAlertsParams struct {
	Status   *string
	DeviceID *string
	Limit    int32
	Offset   int32
}

// ListAlerts returns alerts for the current tenant schema, most recent first.
func (q *Queries) ListAlerts(ctx context.Context, arg ListAlertsParams) ([]Alert, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+alertColumns+` FROM alerts
		WHERE ($1::text IS NULL OR status = $1) AND ($2::text IS NULL OR device_id = $2)
		ORDER BY opened_at DESC
		LIMIT $3 OFFSET $4
	`, arg.Status, arg.DeviceID, arg.Limit, arg.Offset)
	if err != nil {
		return nil, fmt.Errorf("querying alerts: %w", err)
	}
	defer rows.Close()

	var out []Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning alert row: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ListUndispatchedOpenAlerts returns OPEN alerts the Dispatcher has not yet
// matched against routes (dispatched_at IS NULL). The Dispatcher is still
// safe to run twice per alert (throttle + fingerprint suppress duplicate
// jobs) but this keeps its per-tick scan bounded to genuinely new alerts.
func (q *Queries) ListUndispatchedOpenAlerts(ctx context.Context) ([]Alert, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+alertColumns+` FROM alerts WHERE status = 'OPEN' AND dispatched_at IS NULL
		ORDER BY opened_at
	`)
	if err != nil {
		return nil, fmt.Errorf("querying undispatched alerts: %w", err)
	}
	defer rows.Close()

	var out []Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning alert row: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// MarkAlertDispatched records that the Dispatcher has processed this alert.
func (q *Queries) MarkAlertDispatched(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.Exec(ctx, `UPDATE alerts SET dispatched_at = now() WHERE id = $1`, id)
	return err
}

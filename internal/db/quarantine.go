package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// QuarantineEvent is an append-only row recording a rejected message
//. It never influences device_state or alerts.
type QuarantineEvent struct {
	ID             uuid.UUID
	TenantID       uuid.UUID
	DeviceID       *string
	Reason         string
	PayloadSnippet string
	ObservedAt     time.Time
}

// CreateQuarantineEventParams holds the fields for a rejected-message record.
type CreateQuarantineEventParams struct {
	TenantID       uuid.UUID
	DeviceID       *string
	Reason         string
	PayloadSnippet string
	ObservedAt     time.Time
}

// CreateQuarantineEvent appends a quarantine record.
func (q *Queries) CreateQuarantineEvent(ctx context.Context, arg CreateQuarantineEventParams) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO quarantine_events (tenant_id, device_id, reason, payload_snippet, observed_at)
		VALUES ($1, $2, $3, $4, $5)
	`, arg.TenantID, arg.DeviceID, arg.Reason, arg.PayloadSnippet, arg.ObservedAt)
	if err != nil {
		return fmt.Errorf("inserting quarantine event: %w", err)
	}
	return nil
}

// ListQuarantineParams filters the quarantine read API.
type ListQuarantineParams struct {
	Reason *string
	Limit  int32
	Offset int32
}

// ListQuarantineEvents returns quarantine events for the current tenant
// schema, most recent first.
func (q *Queries) ListQuarantineEvents(ctx context.Context, arg ListQuarantineParams) ([]QuarantineEvent, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, tenant_id, device_id, reason, payload_snippet, observed_at
		FROM quarantine_events
		WHERE ($1::text IS NULL OR reason = $1)
		ORDER BY observed_at DESC
		LIMIT $2 OFFSET $3
	`, arg.Reason, arg.Limit, arg.Offset)
	if err != nil {
		return nil, fmt.Errorf("querying quarantine_events: %w", err)
	}
	defer rows.Close()

	var out []QuarantineEvent
	for rows.Next() {
		var e QuarantineEvent
		if err := rows.Scan(&e.ID, &e.TenantID, &e.DeviceID, &e.Reason, &e.PayloadSnippet, &e.ObservedAt); err != nil {
			return nil, fmt.Errorf("scanning quarantine_events row: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

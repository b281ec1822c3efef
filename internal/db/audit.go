package db

import (
	"context"
	"encoding/json"
	"fmt"
	"net/netip"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// AuditLogEntry is a row of the tenant-scoped audit_log table.
type AuditLogEntry struct {
	ID         uuid.UUID
	UserID     pgtype.UUID
	APIKeyID   pgtype.UUID
	Action     string
	Resource   string
	ResourceID pgtype.UUID
	Detail     json.RawMessage
	IPAddress  *netip.Addr
	UserAgent  *string
	CreatedAt  time.Time
}

// CreateAuditLogEntryParams holds fields for an audit record.
type CreateAuditLogEntryParams struct {
	UserID     pgtype.UUID
	ApiKeyID   pgtype.UUID
	Action     string
	Resource   string
	ResourceID pgtype.UUID
	Detail     json.RawMessage
	IpAddress  *netip.Addr
	UserAgent  *string
}

// CreateAuditLogEntry appends an audit record to the current tenant schema.
func (q *Queries) CreateAuditLogEntry(ctx context.Context, arg CreateAuditLogEntryParams) (AuditLogEntry, error) {
	detail := arg.Detail
	if detail == nil {
		detail = json.RawMessage(`{}`)
	}
	row := q.db.QueryRow(ctx, `
		INSERT INTO audit_log (user_id, api_key_id, action, resource, resource_id, detail, ip_address, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, user_id, api_key_id, action, resource, resource_id, detail, ip_address, user_agent, created_at
	`, arg.UserID, arg.ApiKeyID, arg.Action, arg.Resource, arg.ResourceID, detail, arg.IpAddress, arg.UserAgent)

	var e AuditLogEntry
	err := row.Scan(&e.ID, &e.UserID, &e.APIKeyID, &e.Action, &e.Resource, &e.ResourceID,
		&e.Detail, &e.IPAddress, &e.UserAgent, &e.CreatedAt)
	if err != nil {
		return AuditLogEntry{}, fmt.Errorf("inserting audit log entry: %w", err)
	}
	return e, nil
}

// ListAuditLogParams paginates the audit log read API.
type ListAuditLogParams struct {
	Limit  int32
	Offset int32
}

// ListAuditLog returns audit entries for the current tenant schema, most
// recent first.
func (q *Queries) ListAuditLog(ctx context.Context, arg ListAuditLogParams) ([]AuditLogEntry, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, user_id, api_key_id, action, resource, resource_id, detail, ip_address, user_agent, created_at
		FROM audit_log
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, arg.Limit, arg.Offset)
	if err != nil {
		return nil, fmt.Errorf("querying audit_log: %w", err)
	}
	defer rows.Close()

	var out []AuditLogEntry
	for rows.Next() {
		var e AuditLogEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.APIKeyID, &e.Action, &e.Resource, &e.ResourceID,
			&e.Detail, &e.IPAddress, &e.UserAgent, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning audit_log row: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

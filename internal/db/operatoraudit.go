package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// OperatorAuditEntry is a row of public.operator_audit_log: the record of a
// cross-tenant operator action. Unlike the tenant-scoped audit_log, these
// rows are written synchronously before the bypassing query executes.
type OperatorAuditEntry struct {
	ID        uuid.UUID
	Actor     string
	Action    string
	Resource  string
	Detail    json.RawMessage
	CreatedAt time.Time
}

// CreateOperatorAuditEntryParams holds fields for an operator audit record.
type CreateOperatorAuditEntryParams struct {
	Actor    string
	Action   string
	Resource string
	Detail   json.RawMessage
}

// CreateOperatorAuditEntry appends an operator audit record.
func (q *Queries) CreateOperatorAuditEntry(ctx context.Context, arg CreateOperatorAuditEntryParams) (OperatorAuditEntry, error) {
	detail := arg.Detail
	if detail == nil {
		detail = json.RawMessage(`{}`)
	}
	row := q.db.QueryRow(ctx, `
		INSERT INTO public.operator_audit_log (actor, action, resource, detail)
		VALUES ($1, $2, $3, $4)
		RETURNING id, actor, action, resource, detail, created_at
	`, arg.Actor, arg.Action, arg.Resource, detail)

	var e OperatorAuditEntry
	if err := row.Scan(&e.ID, &e.Actor, &e.Action, &e.Resource, &e.Detail, &e.CreatedAt); err != nil {
		return OperatorAuditEntry{}, fmt.Errorf("inserting operator audit entry: %w", err)
	}
	return e, nil
}

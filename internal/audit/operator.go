package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/wisbric/pulse/internal/auth"
	"github.com/wisbric/pulse/internal/db"
)

// LogOperatorSync writes a cross-tenant operator audit record synchronously.
// Operator actions bypass per-tenant schema scoping, so their audit trail
// must exist *before* the bypassing query runs — the async
// buffered path cannot give that ordering if the process crashes between
// enqueue and flush.
func (w *Writer) LogOperatorSync(ctx context.Context, actor, action, resource string, detail json.RawMessage) error {
	if _, err := db.New(w.pool).CreateOperatorAuditEntry(ctx, db.CreateOperatorAuditEntryParams{
		Actor:    actor,
		Action:   action,
		Resource: resource,
		Detail:   detail,
	}); err != nil {
		return fmt.Errorf("writing operator audit record: %w", err)
	}
	return nil
}

// OperatorAuditFunc adapts LogOperatorSync to the shape
// tenant.OperatorMiddleware expects: one pre-query audit record per
// operator request.
func (w *Writer) OperatorAuditFunc() func(ctx context.Context, r *http.Request) error {
	return func(ctx context.Context, r *http.Request) error {
		actor := "unknown"
		if id := auth.FromContext(ctx); id != nil {
			actor = id.Subject
		}
		detail, _ := json.Marshal(map[string]string{"method": r.Method, "path": r.URL.Path})
		return w.LogOperatorSync(ctx, actor, "operator_access", r.URL.Path, detail)
	}
}

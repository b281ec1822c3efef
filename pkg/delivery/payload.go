// Package delivery implements the delivery worker: it drains PENDING
// delivery jobs, executes them against the job's integration via a
// kind-specific Sender, and applies retry/backoff with a dead-letter
// terminal state.
package delivery

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Payload is the materialized delivery payload stored on a job at dispatch
// time. It is self-contained: executing a job never
// requires re-reading the alert.
type Payload struct {
	TenantID  uuid.UUID `json:"tenant_id"`
	AlertID   uuid.UUID `json:"alert_id"`
	AlertType string    `json:"alert_type"`
	Severity  string    `json:"severity"`
	DeviceID  string    `json:"device_id"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`

	// CorrelationID is stamped per attempt by the worker, not stored with
	// the job: each attempt is its own trace.
	CorrelationID string `json:"correlation_id,omitempty"`
}

// ParsePayload decodes a job's payload column.
func ParsePayload(raw json.RawMessage) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Payload{}, fmt.Errorf("decoding delivery payload: %w", err)
	}
	return p, nil
}

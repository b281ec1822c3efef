// Package alert implements the Alert entity and the dedup
// contract the Evaluator opens/touches/closes alerts through.
// It also serves the admin read API (list/get/acknowledge/close).
package alert

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/wisbric/pulse/internal/db"
)

// Alert types.
const (
	TypeNoHeartbeat = "NO_HEARTBEAT"
	TypeThreshold   = "THRESHOLD"
)

// Alert statuses.
const (
	StatusOpen     = "OPEN"
	StatusAcked    = "ACKED"
	StatusClosed   = "CLOSED"
	StatusSilenced = "SILENCED"
)

// Response is the API/read representation of an alert.
type Response struct {
	ID          uuid.UUID       `json:"id"`
	DeviceID    string          `json:"device_id"`
	Type        string          `json:"type"`
	RuleID      *uuid.UUID      `json:"rule_id,omitempty"`
	Severity    string          `json:"severity"`
	Status      string          `json:"status"`
	Fingerprint string          `json:"fingerprint"`
	OpenedAt    time.Time       `json:"opened_at"`
	ClosedAt    *time.Time      `json:"closed_at,omitempty"`
	LastSeenAt  time.Time       `json:"last_seen_at"`
	Details     json.RawMessage `json:"details"`
	CreatedAt   time.Time       `json:"created_at"`
}

func rowToResponse(a db.Alert) Response {
	return Response{
		ID:          a.ID,
		DeviceID:    a.DeviceID,
		Type:        a.Type,
		RuleID:      a.RuleID,
		Severity:    a.Severity,
		Status:      a.Status,
		Fingerprint: a.Fingerprint,
		OpenedAt:    a.OpenedAt,
		ClosedAt:    a.ClosedAt,
		LastSeenAt:  a.LastSeenAt,
		Details:     a.Details,
		CreatedAt:   a.CreatedAt,
	}
}

// FingerprintHeartbeat is the dedup key for a NO_HEARTBEAT alert: one per
// device, independent of how many times it flaps offline —
// dedup is against the currently OPEN row, not history.
func FingerprintHeartbeat(tenantID uuid.UUID, deviceID string) string {
	return hashFingerprint(tenantID.String(), deviceID, TypeNoHeartbeat)
}

// FingerprintThreshold is the dedup key for a THRESHOLD alert: scoped to the
// specific rule, so two rules firing on the same
// device produce two independent alerts.
func FingerprintThreshold(tenantID uuid.UUID, deviceID string, ruleID uuid.UUID) string {
	return hashFingerprint(tenantID.String(), deviceID, ruleID.String())
}

func hashFingerprint(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0}) // separator avoids ("ab","c") colliding with ("a","bc")
	}
	return hex.EncodeToString(h.Sum(nil))
}

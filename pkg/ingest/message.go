// Package ingest implements the ingestion worker pool: a pool of
// cooperative workers sharing one bounded queue, one auth cache, and one
// batch writer, fed by polymorphic device ingress sources.
package ingest

import (
	"encoding/json"

	"github.com/google/uuid"
)

// MsgType distinguishes a heartbeat from a telemetry message.
type MsgType string

const (
	MsgTelemetry MsgType = "telemetry"
	MsgHeartbeat MsgType = "heartbeat"
)

// Quarantine reasons.
const (
	ReasonUnregisteredDevice = "UNREGISTERED_DEVICE"
	ReasonInvalidToken       = "INVALID_TOKEN"
	ReasonRateLimited        = "RATE_LIMITED"
	ReasonSiteMismatch       = "SITE_MISMATCH"
	ReasonDeviceRevoked      = "DEVICE_REVOKED"
	ReasonMalformed          = "MALFORMED"
)

// RawMessage is a single device message as it arrives from any source,
// before validation. Every field is attacker-controlled.
type RawMessage struct {
	TenantID        uuid.UUID
	DeviceID        string
	MsgType         MsgType
	SiteID          string
	Seq             int64
	Metrics         json.RawMessage // telemetry only; nil for heartbeat
	ProvisionToken  string
	ObservedAtNanos int64 // server-observed receipt time

	// ViaBroker is true for messages arriving over MQTT, where the broker's
	// ACLs already bind the publishing client to this tenant_id/device_id
	// (mTLS or a pre-authenticated service account). The per-message token
	// check only applies to the HTTP ingress, which carries no broker-level
	// identity of its own.
	ViaBroker bool

	// Malformed marks a message whose body failed to parse at the source.
	// The source still enqueues it so the rejection is recorded against the
	// identity it arrived under, rather than dropped silently.
	Malformed bool
}

// wireEnvelope is the JSON body shape for MQTT payloads:
// `{site_id, seq, metrics}`.
type wireEnvelope struct {
	SiteID  string          `json:"site_id"`
	Seq     int64           `json:"seq"`
	Metrics json.RawMessage `json:"metrics,omitempty"`
}

package dispatch

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/wisbric/pulse/internal/db"
)

// defaultTemplate is used when a route doesn't define its own message.
const defaultTemplate = "{alert_type} alert for device {device_id} (severity {severity}) at {timestamp}"

// RenderTemplate substitutes alert variables into a route's message
// template. Recognized variables: {severity},
// {alert_type}, {device_id}, {tenant_id}, {message}, {timestamp}.
func RenderTemplate(template string, a db.Alert) string {
	if template == "" {
		template = defaultTemplate
	}
	r := strings.NewReplacer(
		"{severity}", a.Severity,
		"{alert_type}", a.Type,
		"{device_id}", a.DeviceID,
		"{tenant_id}", a.TenantID.String(),
		"{message}", detailsMessage(a.Details),
		"{timestamp}", a.OpenedAt.UTC().Format(time.RFC3339),
	)
	return r.Replace(template)
}

// detailsMessage extracts the evaluator-written "message" field from an
// alert's details blob, if present.
func detailsMessage(details json.RawMessage) string {
	if len(details) == 0 {
		return ""
	}
	var d struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(details, &d); err != nil {
		return ""
	}
	return d.Message
}

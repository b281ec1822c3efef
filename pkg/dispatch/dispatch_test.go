package dispatch

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/wisbric/pulse/internal/db"
	"github.com/wisbric/pulse/pkg/delivery"
)

func sampleAlert() db.Alert {
	return db.Alert{
		ID:       uuid.MustParse("22222222-2222-2222-2222-222222222222"),
		TenantID: uuid.MustParse("11111111-1111-1111-1111-111111111111"),
		DeviceID: "pump-7",
		Type:     "THRESHOLD",
		Severity: "warning",
		OpenedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Details:  json.RawMessage(`{"message":"temp_c=51.2 exceeds 50"}`),
	}
}

func TestRenderTemplate(t *testing.T) {
	a := sampleAlert()

	tests := []struct {
		name     string
		template string
		want     string
	}{
		{
			name:     "all variables",
			template: "[{severity}] {alert_type} on {device_id} ({tenant_id}): {message} @ {timestamp}",
			want:     "[warning] THRESHOLD on pump-7 (11111111-1111-1111-1111-111111111111): temp_c=51.2 exceeds 50 @ 2026-03-01T12:00:00Z",
		},
		{
			name:     "empty template falls back to default",
			template: "",
			want:     "THRESHOLD alert for device pump-7 (severity warning) at 2026-03-01T12:00:00Z",
		},
		{
			name:     "literal text without variables passes through",
			template: "fixed text",
			want:     "fixed text",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RenderTemplate(tt.template, a); got != tt.want {
				t.Errorf("RenderTemplate = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRenderTemplateMissingDetailsMessage(t *testing.T) {
	a := sampleAlert()
	a.Details = nil
	if got := RenderTemplate("{message}", a); got != "" {
		t.Errorf("message for nil details = %q, want empty", got)
	}

	a.Details = json.RawMessage(`{"other":"field"}`)
	if got := RenderTemplate("{message}", a); got != "" {
		t.Errorf("message for absent field = %q, want empty", got)
	}
}

func TestMaterializePayload(t *testing.T) {
	a := sampleAlert()
	r := db.Route{
		ID:       uuid.New(),
		Template: "{alert_type}: {message}",
	}

	raw, err := materialize(r, a)
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}

	p, err := delivery.ParsePayload(raw)
	if err != nil {
		t.Fatalf("ParsePayload: %v", err)
	}
	if p.TenantID != a.TenantID || p.AlertID != a.ID || p.DeviceID != "pump-7" {
		t.Errorf("payload identity mismatch: %+v", p)
	}
	if p.Message != "THRESHOLD: temp_c=51.2 exceeds 50" {
		t.Errorf("payload message = %q", p.Message)
	}
	if !p.Timestamp.Equal(a.OpenedAt) {
		t.Errorf("payload timestamp = %v, want %v", p.Timestamp, a.OpenedAt)
	}
	if p.CorrelationID != "" {
		t.Error("correlation ID must not be materialized at dispatch time")
	}
}

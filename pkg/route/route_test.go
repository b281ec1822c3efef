package route

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"

	"github.com/wisbric/pulse/internal/db"
)

func TestSelectorMatches(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		deviceID string
		siteID   string
		want     bool
	}{
		{"empty selector matches all", `{}`, "d1", "s1", true},
		{"nil selector matches all", ``, "d1", "s1", true},
		{"site match", `{"site_ids":["s1","s2"]}`, "d1", "s1", true},
		{"site mismatch", `{"site_ids":["s2"]}`, "d1", "s1", false},
		{"device match", `{"device_ids":["d1"]}`, "d1", "s1", true},
		{"device mismatch", `{"device_ids":["d2"]}`, "d1", "s1", false},
		{"site and device must both match", `{"site_ids":["s1"],"device_ids":["d2"]}`, "d1", "s1", false},
		{"both match", `{"site_ids":["s1"],"device_ids":["d1"]}`, "d1", "s1", true},
		{"site constraint with unknown site fails closed", `{"site_ids":["s1"]}`, "d1", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel, err := ParseSelector(json.RawMessage(tt.raw))
			if err != nil {
				t.Fatalf("ParseSelector: %v", err)
			}
			if got := sel.Matches(tt.deviceID, tt.siteID); got != tt.want {
				t.Errorf("Matches(%q, %q) = %v, want %v", tt.deviceID, tt.siteID, got, tt.want)
			}
		})
	}
}

func TestParseSelectorRejectsGarbage(t *testing.T) {
	if _, err := ParseSelector(json.RawMessage(`["not","an","object"]`)); err == nil {
		t.Error("expected error for non-object selector")
	}
}

func TestRouteMatches(t *testing.T) {
	mkRoute := func(minSev string, types []string, selector string) db.Route {
		return db.Route{
			ID:             uuid.New(),
			MinSeverity:    minSev,
			AlertTypes:     types,
			DeviceSelector: json.RawMessage(selector),
		}
	}
	mkAlert := func(sev, typ, device string) db.Alert {
		return db.Alert{Severity: sev, Type: typ, DeviceID: device}
	}

	tests := []struct {
		name   string
		route  db.Route
		alert  db.Alert
		siteID string
		want   bool
	}{
		{"severity meets minimum", mkRoute("warning", nil, `{}`), mkAlert("critical", "THRESHOLD", "d1"), "s1", true},
		{"severity below minimum", mkRoute("critical", nil, `{}`), mkAlert("warning", "THRESHOLD", "d1"), "s1", false},
		{"equal severity matches", mkRoute("warning", nil, `{}`), mkAlert("warning", "THRESHOLD", "d1"), "s1", true},
		{"type in set", mkRoute("info", []string{"NO_HEARTBEAT"}, `{}`), mkAlert("critical", "NO_HEARTBEAT", "d1"), "s1", true},
		{"type not in set", mkRoute("info", []string{"NO_HEARTBEAT"}, `{}`), mkAlert("critical", "THRESHOLD", "d1"), "s1", false},
		{"empty type set matches all", mkRoute("info", nil, `{}`), mkAlert("info", "THRESHOLD", "d1"), "s1", true},
		{"device selector applies", mkRoute("info", nil, `{"device_ids":["d2"]}`), mkAlert("critical", "THRESHOLD", "d1"), "s1", false},
		{"unvalidated min severity ranks lowest", mkRoute("sev1", nil, `{}`), mkAlert("info", "THRESHOLD", "d1"), "s1", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Matches(tt.route, tt.alert, tt.siteID); got != tt.want {
				t.Errorf("Matches = %v, want %v", got, tt.want)
			}
		})
	}
}

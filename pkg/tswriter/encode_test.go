package tswriter

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestHeartbeatLine(t *testing.T) {
	got := HeartbeatLine("d1", "s1", 5, 1700000000000000000)
	want := "heartbeat,device_id=d1,site_id=s1 seq=5i 1700000000000000000"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestTelemetryLineHappyPath(t *testing.T) {
	raw := json.RawMessage(`{"battery_pct":87.5,"temp_c":24.2,"rssi_dbm":-95,"snr_db":8.5,"uplink_ok":true}`)
	metrics, err := ParseMetrics(raw)
	if err != nil {
		t.Fatal(err)
	}

	line := TelemetryLine("d1", "s1", 5, metrics, 1700000000000000000)
	if !strings.HasPrefix(line, "telemetry,device_id=d1,site_id=s1 seq=5i,") {
		t.Fatalf("unexpected prefix: %s", line)
	}
	for _, want := range []string{"battery_pct=87.5", "temp_c=24.2", "rssi_dbm=-95i", "snr_db=8.5", "uplink_ok=true"} {
		if !strings.Contains(line, want) {
			t.Fatalf("line %q missing field %q", line, want)
		}
	}
}

func TestTelemetryLineDropsStringsAndNulls(t *testing.T) {
	raw := json.RawMessage(`{"pressure_psi":42.7,"flow_rate":120,"valve_open":true,"location":"A","note":null}`)
	metrics, err := ParseMetrics(raw)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := metrics["location"]; ok {
		t.Fatal("expected string field to be dropped")
	}
	if _, ok := metrics["note"]; ok {
		t.Fatal("expected null field to be dropped")
	}

	line := TelemetryLine("d1", "s1", 0, metrics, 1700000000000000000)
	for _, want := range []string{"pressure_psi=42.7", "flow_rate=120i", "valve_open=true"} {
		if !strings.Contains(line, want) {
			t.Fatalf("line %q missing field %q", line, want)
		}
	}
	if strings.Contains(line, "location") || strings.Contains(line, "note") {
		t.Fatalf("line %q should not contain dropped fields", line)
	}
}

func TestEscapesSpecialCharactersInKeys(t *testing.T) {
	metrics := map[string]Value{"a,b=c d": {Kind: KindInt, Int: 1}}
	line := TelemetryLine("d1", "s1", 0, metrics, 1)
	if !strings.Contains(line, `a\,b\=c\ d=1i`) {
		t.Fatalf("expected escaped key, got %q", line)
	}
}

func TestBooleanCheckedBeforeInteger(t *testing.T) {
	raw := json.RawMessage(`{"flag":true}`)
	metrics, err := ParseMetrics(raw)
	if err != nil {
		t.Fatal(err)
	}
	v := metrics["flag"]
	if v.Kind != KindBool {
		t.Fatalf("expected KindBool, got %v", v.Kind)
	}
	if formatValue(v) != "true" {
		t.Fatalf("expected 'true', got %q", formatValue(v))
	}
}

package tswriter

import (
	"strconv"
	"strings"
	"testing"
)

// decodeFields parses the field set of a telemetry line back into typed
// values, the inverse of TelemetryLine for lines whose keys need no
// escaping. Verifies the round-trip property: a metrics map of only
// floats/ints/booleans survives encode→decode unchanged.
func decodeFields(t *testing.T, line string) map[string]Value {
	t.Helper()

	parts := strings.SplitN(line, " ", 3)
	if len(parts) != 3 {
		t.Fatalf("line has %d space-separated sections, want 3: %q", len(parts), line)
	}

	out := make(map[string]Value)
	for _, pair := range strings.Split(parts[1], ",") {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			t.Fatalf("malformed field pair %q in %q", pair, line)
		}
		key, raw := kv[0], kv[1]

		switch {
		case raw == "true" || raw == "false":
			out[key] = Value{Kind: KindBool, Bool: raw == "true"}
		case strings.HasSuffix(raw, "i"):
			n, err := strconv.ParseInt(strings.TrimSuffix(raw, "i"), 10, 64)
			if err != nil {
				t.Fatalf("parsing integer field %q: %v", pair, err)
			}
			out[key] = Value{Kind: KindInt, Int: n}
		default:
			f, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				t.Fatalf("parsing float field %q: %v", pair, err)
			}
			out[key] = Value{Kind: KindFloat, Float: f}
		}
	}
	return out
}

func TestLineEncodingRoundTrip(t *testing.T) {
	metrics := map[string]Value{
		"battery_pct": {Kind: KindFloat, Float: 87.5},
		"temp_c":      {Kind: KindFloat, Float: 24.2},
		"rssi_dbm":    {Kind: KindInt, Int: -95},
		"snr_db":      {Kind: KindFloat, Float: 8.5},
		"uplink_ok":   {Kind: KindBool, Bool: true},
		"valve_open":  {Kind: KindBool, Bool: false},
		"flow_rate":   {Kind: KindInt, Int: 120},
	}

	line := TelemetryLine("d1", "s1", 5, metrics, 1700000000000000000)
	decoded := decodeFields(t, line)

	if got := decoded["seq"]; got.Kind != KindInt || got.Int != 5 {
		t.Errorf("seq = %+v, want 5i", got)
	}
	delete(decoded, "seq")

	if len(decoded) != len(metrics) {
		t.Fatalf("decoded %d fields, want %d", len(decoded), len(metrics))
	}
	for key, want := range metrics {
		got, ok := decoded[key]
		if !ok {
			t.Errorf("field %q missing after round trip", key)
			continue
		}
		if got != want {
			t.Errorf("field %q = %+v after round trip, want %+v", key, got, want)
		}
	}
}

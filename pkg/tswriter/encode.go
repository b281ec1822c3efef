package tswriter

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// escapeTag escapes backslash, comma, equals, and space in a tag or field
// key.
func escapeTag(s string) string {
	r := strings.NewReplacer(
		`\`, `\\`,
		`,`, `\,`,
		`=`, `\=`,
		` `, `\ `,
	)
	return r.Replace(s)
}

// formatValue renders a single field value per its Kind: bool → true/false,
// int → Ni, float → N.
func formatValue(v Value) string {
	switch v.Kind {
	case KindBool:
		if v.Bool {
			return "true"
		}
		return "false"
	case KindInt:
		return strconv.FormatInt(v.Int, 10) + "i"
	case KindFloat:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	default:
		return "0"
	}
}

// HeartbeatLine builds a heartbeat line-protocol point:
//
//	heartbeat,device_id=…,site_id=… seq={seq}i {ns_ts}
func HeartbeatLine(deviceID, siteID string, seq int64, tsNanos int64) string {
	return fmt.Sprintf("heartbeat,device_id=%s,site_id=%s seq=%di %d",
		escapeTag(deviceID), escapeTag(siteID), seq, tsNanos)
}

// TelemetryLine builds a telemetry line-protocol point:
//
//	telemetry,device_id=…,site_id=… seq={seq}i[,{key}=…]* {ns_ts}
//
// Field keys are emitted in sorted order for deterministic output (and
// testability); line protocol itself does not
// require field ordering.
func TelemetryLine(deviceID, siteID string, seq int64, metrics map[string]Value, tsNanos int64) string {
	var b strings.Builder
	b.WriteString("telemetry,device_id=")
	b.WriteString(escapeTag(deviceID))
	b.WriteString(",site_id=")
	b.WriteString(escapeTag(siteID))
	b.WriteString(" seq=")
	b.WriteString(strconv.FormatInt(seq, 10))
	b.WriteByte('i')

	keys := make([]string, 0, len(metrics))
	for k := range metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		b.WriteByte(',')
		b.WriteString(escapeTag(k))
		b.WriteByte('=')
		b.WriteString(formatValue(metrics[k]))
	}

	b.WriteByte(' ')
	b.WriteString(strconv.FormatInt(tsNanos, 10))
	return b.String()
}

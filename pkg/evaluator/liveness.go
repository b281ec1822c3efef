package evaluator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/wisbric/pulse/internal/db"
	"github.com/wisbric/pulse/internal/telemetry"
	"github.com/wisbric/pulse/pkg/alert"
)

// livenessFor derives the target state from a device's silence duration.
func (e *Engine) livenessFor(age time.Duration) string {
	switch {
	case age < e.cfg.StaleAfter:
		return LivenessOnline
	case age < e.cfg.OfflineAfter:
		return LivenessStale
	default:
		return LivenessOffline
	}
}

// sweepLiveness applies the liveness state machine to every device in the
// current tenant schema. Entering OFFLINE opens a NO_HEARTBEAT alert;
// leaving OFFLINE closes it. dbtx must be scoped to the tenant's schema.
func (e *Engine) sweepLiveness(ctx context.Context, dbtx db.DBTX, states []db.DeviceState) {
	q := db.New(dbtx)
	now := e.now()

	for _, s := range states {
		target := e.livenessFor(now.Sub(s.LastSeenAt))
		if target == s.Liveness {
			continue
		}

		if err := q.UpdateLiveness(ctx, s.TenantID, s.DeviceID, target); err != nil {
			e.logger.Error("updating liveness", "device_id", s.DeviceID, "error", err)
			continue
		}
		telemetry.LivenessTransitionsTotal.WithLabelValues(target).Inc()
		e.logger.Info("liveness transition",
			"device_id", s.DeviceID,
			"from", s.Liveness,
			"to", target,
			"last_seen_at", s.LastSeenAt,
		)

		fingerprint := alert.FingerprintHeartbeat(s.TenantID, s.DeviceID)
		switch {
		case target == LivenessOffline:
			details, _ := json.Marshal(map[string]any{
				"message":      fmt.Sprintf("no heartbeat from device %s since %s", s.DeviceID, s.LastSeenAt.UTC().Format(time.RFC3339)),
				"last_seen_at": s.LastSeenAt.UTC().Format(time.RFC3339),
				"site_id":      s.LastKnownSiteID,
			})
			if _, err := e.dedup.OpenOrTouch(ctx, dbtx, db.CreateAlertParams{
				TenantID:    s.TenantID,
				DeviceID:    s.DeviceID,
				Type:        alert.TypeNoHeartbeat,
				Severity:    alert.SeverityCritical,
				Fingerprint: fingerprint,
				Details:     details,
			}); err != nil {
				e.logger.Error("opening NO_HEARTBEAT alert", "device_id", s.DeviceID, "error", err)
			}
		case s.Liveness == LivenessOffline:
			// Any exit from OFFLINE means the device was heard again;
			// resolve the open heartbeat alert.
			if err := e.dedup.Close(ctx, dbtx, s.TenantID, fingerprint, alert.TypeNoHeartbeat); err != nil {
				e.logger.Error("closing NO_HEARTBEAT alert", "device_id", s.DeviceID, "error", err)
			}
		}
	}
}

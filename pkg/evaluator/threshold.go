package evaluator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"slices"

	"github.com/wisbric/pulse/internal/db"
	"github.com/wisbric/pulse/pkg/alert"
	"github.com/wisbric/pulse/pkg/route"
	"github.com/wisbric/pulse/pkg/tswriter"
)

// compare applies a rule comparator. NaN on either side is non-matching:
// comparisons are total over finite numbers only.
func compare(comparator string, value, threshold float64) bool {
	if math.IsNaN(value) || math.IsNaN(threshold) {
		return false
	}
	switch comparator {
	case "GT":
		return value > threshold
	case "GTE":
		return value >= threshold
	case "LT":
		return value < threshold
	case "LTE":
		return value <= threshold
	default:
		return false
	}
}

// evaluateRules runs every threshold rule for the current tenant schema.
// Rules are iterated in id order — the stable tie-break for simultaneous
// edges. Disabled rules close their open alerts rather than leaving them
// stranded.
func (e *Engine) evaluateRules(ctx context.Context, dbtx db.DBTX, tenantSlug string, states []db.DeviceState) {
	q := db.New(dbtx)

	rules, err := q.ListAlertRules(ctx)
	if err != nil {
		e.logger.Error("listing alert rules", "error", err)
		return
	}
	if len(rules) == 0 {
		return
	}
	// ListAlertRules returns creation order; evaluation runs in id order.
	slices.SortFunc(rules, func(a, b db.AlertRule) int { return bytes.Compare(a.ID[:], b.ID[:]) })

	sites := make(map[string]string, len(states))
	for _, s := range states {
		sites[s.DeviceID] = s.LastKnownSiteID
	}

	// One query per distinct metric, shared by every rule on that metric.
	samplesByMetric := make(map[string]map[string]tswriter.Sample)

	for _, r := range rules {
		if !r.Enabled {
			e.closeRuleAlerts(ctx, dbtx, r, states)
			continue
		}

		samples, ok := samplesByMetric[r.MetricName]
		if !ok {
			samples, err = e.samples.LastSamples(ctx, tenantSlug, r.MetricName)
			if err != nil {
				// A transient store error must not close matched alerts:
				// skip the rule this tick; missing samples never close.
				e.logger.Error("querying samples", "metric", r.MetricName, "error", err)
				continue
			}
			samplesByMetric[r.MetricName] = samples
		}

		sel, err := route.ParseSelector(r.DeviceSelector)
		if err != nil {
			e.logger.Error("parsing rule device selector", "rule_id", r.ID, "error", err)
			continue
		}

		for _, s := range states {
			if !sel.Matches(s.DeviceID, s.LastKnownSiteID) {
				continue
			}
			e.applyRule(ctx, dbtx, r, s.DeviceID, samples)
		}
	}
}

// applyRule opens or closes the THRESHOLD alert for one (rule, device) pair
// based on that device's newest sample.
func (e *Engine) applyRule(ctx context.Context, dbtx db.DBTX, r db.AlertRule, deviceID string, samples map[string]tswriter.Sample) {
	fingerprint := alert.FingerprintThreshold(r.TenantID, deviceID, r.ID)

	sample, ok := samples[deviceID]
	if !ok || math.IsNaN(sample.Value) {
		// No sample, or NaN: non-matching, and never closes an open alert.
		return
	}

	if compare(r.Comparator, sample.Value, r.Threshold) {
		ruleID := r.ID
		details, _ := json.Marshal(map[string]any{
			"message":    fmt.Sprintf("%s=%g %s threshold %g", r.MetricName, sample.Value, r.Comparator, r.Threshold),
			"metric":     r.MetricName,
			"value":      sample.Value,
			"sampled_at": sample.Time.UTC(),
		})
		if _, err := e.dedup.OpenOrTouch(ctx, dbtx, db.CreateAlertParams{
			TenantID:    r.TenantID,
			DeviceID:    deviceID,
			Type:        alert.TypeThreshold,
			RuleID:      &ruleID,
			Severity:    r.Severity,
			Fingerprint: fingerprint,
			Details:     details,
		}); err != nil {
			e.logger.Error("opening THRESHOLD alert", "rule_id", r.ID, "device_id", deviceID, "error", err)
		}
		return
	}

	// A finite, non-matching sample resolves the alert if one is open.
	if err := e.dedup.Close(ctx, dbtx, r.TenantID, fingerprint, alert.TypeThreshold); err != nil {
		e.logger.Error("closing THRESHOLD alert", "rule_id", r.ID, "device_id", deviceID, "error", err)
	}
}

// closeRuleAlerts closes any open alerts belonging to a disabled rule.
func (e *Engine) closeRuleAlerts(ctx context.Context, dbtx db.DBTX, r db.AlertRule, states []db.DeviceState) {
	for _, s := range states {
		fingerprint := alert.FingerprintThreshold(r.TenantID, s.DeviceID, r.ID)
		if err := e.dedup.Close(ctx, dbtx, r.TenantID, fingerprint, alert.TypeThreshold); err != nil {
			e.logger.Error("closing alert for disabled rule", "rule_id", r.ID, "device_id", s.DeviceID, "error", err)
		}
	}
}

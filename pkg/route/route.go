package route

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/wisbric/pulse/internal/db"
	"github.com/wisbric/pulse/pkg/alert"
)

// Response is the API/read representation of a route.
type Response struct {
	ID              uuid.UUID       `json:"id"`
	IntegrationID   uuid.UUID       `json:"integration_id"`
	Name            string          `json:"name"`
	MinSeverity     string          `json:"min_severity"`
	AlertTypes      []string        `json:"alert_types"`
	DeviceSelector  json.RawMessage `json:"device_selector"`
	ThrottleSeconds int32           `json:"throttle_seconds"`
	Template        string          `json:"template"`
	Enabled         bool            `json:"enabled"`
	CreatedAt       time.Time       `json:"created_at"`
}

func rowToResponse(r db.Route) Response {
	return Response{
		ID:              r.ID,
		IntegrationID:   r.IntegrationID,
		Name:            r.Name,
		MinSeverity:     r.MinSeverity,
		AlertTypes:      r.AlertTypes,
		DeviceSelector:  r.DeviceSelector,
		ThrottleSeconds: r.ThrottleSeconds,
		Template:        r.Template,
		Enabled:         r.Enabled,
		CreatedAt:       r.CreatedAt,
	}
}

// Matches evaluates the route's predicate against an alert: the alert's
// severity must meet the route's minimum, its type must
// be in the route's set (empty set = all types), and its device must pass
// the device selector.
func Matches(r db.Route, a db.Alert, siteID string) bool {
	if alert.SeverityRank(a.Severity) < alert.SeverityRank(r.MinSeverity) {
		return false
	}
	if len(r.AlertTypes) > 0 && !contains(r.AlertTypes, a.Type) {
		return false
	}
	sel, err := ParseSelector(r.DeviceSelector)
	if err != nil {
		return false
	}
	return sel.Matches(a.DeviceID, siteID)
}

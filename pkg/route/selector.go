// Package route implements routing rules: a predicate
// over {severity, alert_type, device_selector} plus a target integration and
// an optional per-fingerprint throttle. The Dispatcher evaluates these
// predicates; the admin API manages them.
package route

import (
	"encoding/json"
	"fmt"
)

// Selector narrows a rule or route to a subset of a tenant's devices. An
// empty selector (no site_ids, no device_ids) matches every device. Both
// lists are OR within themselves and AND across: a device matches when its
// site is in site_ids (or site_ids is empty) and its id is in device_ids (or
// device_ids is empty).
type Selector struct {
	SiteIDs   []string `json:"site_ids,omitempty"`
	DeviceIDs []string `json:"device_ids,omitempty"`
}

// ParseSelector decodes a device_selector JSON column. nil or empty input
// yields the match-everything selector.
func ParseSelector(raw json.RawMessage) (Selector, error) {
	var s Selector
	if len(raw) == 0 || string(raw) == "null" {
		return s, nil
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		return Selector{}, fmt.Errorf("decoding device selector: %w", err)
	}
	return s, nil
}

// Matches reports whether a device identified by (deviceID, siteID) is
// selected. siteID may be empty when the caller doesn't know the device's
// site; a selector that constrains by site then fails closed.
func (s Selector) Matches(deviceID, siteID string) bool {
	if len(s.SiteIDs) > 0 && !contains(s.SiteIDs, siteID) {
		return false
	}
	if len(s.DeviceIDs) > 0 && !contains(s.DeviceIDs, deviceID) {
		return false
	}
	return true
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

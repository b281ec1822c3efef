package ingest

import (
	"testing"

	"github.com/google/uuid"
)

func TestLimiterSetAllowsBurstThenThrottles(t *testing.T) {
	set := newLimiterSet(10, 3)
	tenantID := uuid.New()

	allowed := 0
	for i := 0; i < 10; i++ {
		if set.Allow(tenantID, "dev-1") {
			allowed++
		}
	}
	if allowed != 3 {
		t.Fatalf("expected exactly burst=3 allowed immediately, got %d", allowed)
	}
}

func TestLimiterSetIsPerDevice(t *testing.T) {
	set := newLimiterSet(10, 1)
	tenantID := uuid.New()

	if !set.Allow(tenantID, "dev-1") {
		t.Fatal("expected first message for dev-1 to be allowed")
	}
	if !set.Allow(tenantID, "dev-2") {
		t.Fatal("expected dev-2's bucket to be independent of dev-1's")
	}
	if set.Allow(tenantID, "dev-1") {
		t.Fatal("expected dev-1's second immediate message to be throttled")
	}
}

func TestParseTopicTelemetry(t *testing.T) {
	tenantID := uuid.New()
	topic := "tenant/" + tenantID.String() + "/device/dev-1/telemetry"

	gotTenant, gotDevice, gotType, err := parseTopic(topic)
	if err != nil {
		t.Fatal(err)
	}
	if gotTenant != tenantID || gotDevice != "dev-1" || gotType != MsgTelemetry {
		t.Fatalf("got (%v, %v, %v)", gotTenant, gotDevice, gotType)
	}
}

func TestParseTopicRejectsMalformed(t *testing.T) {
	cases := []string{
		"tenant/not-a-uuid/device/dev-1/telemetry",
		"tenant/" + uuid.New().String() + "/device/dev-1/unknown",
		"wrong/prefix/device/dev-1/telemetry",
		"tenant/" + uuid.New().String() + "/device/dev-1",
	}
	for _, topic := range cases {
		if _, _, _, err := parseTopic(topic); err == nil {
			t.Fatalf("expected error for topic %q", topic)
		}
	}
}

func TestQuarantineSnippetIsBounded(t *testing.T) {
	msg := RawMessage{
		DeviceID: "dev-1",
		SiteID:   "site-1",
		Metrics:  make([]byte, 1000),
	}
	snippet := quarantineSnippet(msg)
	if len(snippet) > 512 {
		t.Fatalf("expected snippet bounded to 512 bytes, got %d", len(snippet))
	}
}

package delivery

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/wisbric/pulse/pkg/addrguard"
)

func TestRetryDelayMonotonicAndCapped(t *testing.T) {
	base := time.Second
	max := 300 * time.Second

	var prev time.Duration
	for attempt := int32(1); attempt <= 12; attempt++ {
		d := RetryDelay(attempt, base, max)
		if d <= 0 {
			t.Fatalf("attempt %d: non-positive delay %v", attempt, d)
		}
		if d > max {
			t.Fatalf("attempt %d: delay %v exceeds cap %v", attempt, d, max)
		}
		// Monotonic modulo the jitter window: the 20% randomization can
		// shrink a step, never below half the previous doubling.
		if prev > 0 && d < prev/2 {
			t.Fatalf("attempt %d: delay %v collapsed below half of previous %v", attempt, d, prev)
		}
		prev = d
	}

	// Deep attempts pin at the cap.
	if d := RetryDelay(30, base, max); d != max {
		t.Errorf("attempt 30: delay %v, want cap %v", d, max)
	}
}

func TestRetryDelayFirstAttemptNearBase(t *testing.T) {
	base := time.Second
	d := RetryDelay(1, base, 300*time.Second)
	if d < 800*time.Millisecond || d > 1200*time.Millisecond {
		t.Errorf("first retry delay %v outside base jitter window", d)
	}
}

func testPayload() Payload {
	return Payload{
		TenantID:      uuid.MustParse("11111111-1111-1111-1111-111111111111"),
		AlertID:       uuid.MustParse("22222222-2222-2222-2222-222222222222"),
		AlertType:     "THRESHOLD",
		Severity:      "critical",
		DeviceID:      "d1",
		Message:       "temp_c over threshold",
		Timestamp:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		CorrelationID: "abc123",
	}
}

func TestWebhookSenderSignsAndPosts(t *testing.T) {
	var gotBody []byte
	var gotSig, gotCorr string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotSig = r.Header.Get("X-Pulse-Signature")
		gotCorr = r.Header.Get("X-Correlation-ID")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	// httptest listens on loopback, so the guard must be in allow mode.
	s := NewWebhookSender(srv.Client(), addrguard.New(true))
	cfg, _ := json.Marshal(map[string]string{"url": srv.URL, "hmac_secret": "s3cret"})

	if err := s.Send(context.Background(), cfg, testPayload()); err != nil {
		t.Fatalf("Send: %v", err)
	}

	var decoded Payload
	if err := json.Unmarshal(gotBody, &decoded); err != nil {
		t.Fatalf("decoding posted body: %v", err)
	}
	if decoded.DeviceID != "d1" || decoded.Severity != "critical" {
		t.Errorf("posted payload mismatch: %+v", decoded)
	}
	if gotCorr != "abc123" {
		t.Errorf("correlation header = %q, want abc123", gotCorr)
	}

	mac := hmac.New(sha256.New, []byte("s3cret"))
	mac.Write(gotBody)
	want := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	if gotSig != want {
		t.Errorf("signature = %q, want %q", gotSig, want)
	}
}

func TestWebhookSenderRejectsNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s := NewWebhookSender(srv.Client(), addrguard.New(true))
	cfg, _ := json.Marshal(map[string]string{"url": srv.URL})

	if err := s.Send(context.Background(), cfg, testPayload()); err == nil {
		t.Error("expected error for 503 response")
	}
}

func TestWebhookSenderGuardBlocksLoopback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Error("request reached server despite guard")
	}))
	defer srv.Close()

	s := NewWebhookSender(srv.Client(), addrguard.New(false))
	cfg, _ := json.Marshal(map[string]string{"url": srv.URL})

	if err := s.Send(context.Background(), cfg, testPayload()); err == nil {
		t.Error("expected guard rejection for loopback URL")
	}
}

func TestRenderTopic(t *testing.T) {
	p := testPayload()
	got := RenderTopic("alerts/{tenant_id}/{device_id}/{severity}", p)
	want := "alerts/11111111-1111-1111-1111-111111111111/d1/critical"
	if got != want {
		t.Errorf("RenderTopic = %q, want %q", got, want)
	}
}

func TestParsePayloadRoundTrip(t *testing.T) {
	p := testPayload()
	raw, err := json.Marshal(p)
	if err != nil {
		t.Fatal(err)
	}
	got, err := ParsePayload(raw)
	if err != nil {
		t.Fatalf("ParsePayload: %v", err)
	}
	if got != p {
		t.Errorf("round trip mismatch: got %+v want %+v", got, p)
	}

	if _, err := ParsePayload(json.RawMessage(`{`)); err == nil {
		t.Error("expected error for truncated payload")
	}
}

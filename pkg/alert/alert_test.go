package alert

import (
	"testing"

	"github.com/google/uuid"
)

func TestFingerprintHeartbeatIsDeterministic(t *testing.T) {
	tenantID := uuid.New()
	a := FingerprintHeartbeat(tenantID, "dev-1")
	b := FingerprintHeartbeat(tenantID, "dev-1")
	if a != b {
		t.Fatalf("expected deterministic fingerprint, got %q and %q", a, b)
	}
}

func TestFingerprintHeartbeatDiffersByDevice(t *testing.T) {
	tenantID := uuid.New()
	a := FingerprintHeartbeat(tenantID, "dev-1")
	b := FingerprintHeartbeat(tenantID, "dev-2")
	if a == b {
		t.Fatal("expected different devices to produce different fingerprints")
	}
}

func TestFingerprintThresholdDiffersByRule(t *testing.T) {
	tenantID := uuid.New()
	ruleA, ruleB := uuid.New(), uuid.New()
	a := FingerprintThreshold(tenantID, "dev-1", ruleA)
	b := FingerprintThreshold(tenantID, "dev-1", ruleB)
	if a == b {
		t.Fatal("expected different rules to produce different fingerprints")
	}
}

func TestFingerprintHeartbeatAndThresholdNeverCollide(t *testing.T) {
	tenantID := uuid.New()
	ruleID := uuid.New()
	hb := FingerprintHeartbeat(tenantID, "dev-1")
	th := FingerprintThreshold(tenantID, "dev-1", ruleID)
	if hb == th {
		t.Fatal("heartbeat and threshold fingerprints must never collide")
	}
}

func TestHashFingerprintAvoidsConcatenationCollision(t *testing.T) {
	a := hashFingerprint("ab", "c")
	b := hashFingerprint("a", "bc")
	if a == b {
		t.Fatal("expected separator to prevent concatenation collision")
	}
}

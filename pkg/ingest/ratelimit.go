package ingest

import (
	"sync"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// limiterKey identifies a per-(tenant, device) token bucket.
type limiterKey struct {
	tenantID uuid.UUID
	deviceID string
}

// limiterSet holds one rate.Limiter per device, scoped to this ingest
// instance rather than shared cluster-wide — an ingest deployment with
// multiple replicas gets
// independent, additive capacity per replica rather than a shared budget).
type limiterSet struct {
	mu       sync.Mutex
	limiters map[limiterKey]*rate.Limiter
	rps      rate.Limit
	burst    int
}

// newLimiterSet creates a set defaulting to 10/sec burst 30.
func newLimiterSet(rps float64, burst int) *limiterSet {
	if rps <= 0 {
		rps = 10
	}
	if burst <= 0 {
		burst = 30
	}
	return &limiterSet{
		limiters: make(map[limiterKey]*rate.Limiter),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
}

// Allow reports whether a message for (tenant, device) is within budget,
// lazily creating that pair's bucket on first use.
func (s *limiterSet) Allow(tenantID uuid.UUID, deviceID string) bool {
	key := limiterKey{tenantID: tenantID, deviceID: deviceID}

	s.mu.Lock()
	lim, ok := s.limiters[key]
	if !ok {
		lim = rate.NewLimiter(s.rps, s.burst)
		s.limiters[key] = lim
	}
	s.mu.Unlock()

	return lim.Allow()
}

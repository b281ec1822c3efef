package evaluator

import (
	"math"
	"testing"
	"time"
)

func testEngine() *Engine {
	return NewEngine(Config{
		StaleAfter:   60 * time.Second,
		OfflineAfter: 300 * time.Second,
		Tick:         10 * time.Second,
	}, nil, nil, nil, nil)
}

func TestLivenessFor(t *testing.T) {
	e := testEngine()

	tests := []struct {
		age  time.Duration
		want string
	}{
		{0, LivenessOnline},
		{59 * time.Second, LivenessOnline},
		{60 * time.Second, LivenessStale},
		{299 * time.Second, LivenessStale},
		{300 * time.Second, LivenessOffline},
		{400 * time.Second, LivenessOffline},
		{24 * time.Hour, LivenessOffline},
	}

	for _, tt := range tests {
		if got := e.livenessFor(tt.age); got != tt.want {
			t.Errorf("livenessFor(%v) = %s, want %s", tt.age, got, tt.want)
		}
	}
}

func TestCompare(t *testing.T) {
	tests := []struct {
		name       string
		comparator string
		value      float64
		threshold  float64
		want       bool
	}{
		{"GT above", "GT", 50.1, 50, true},
		{"GT below", "GT", 49.9, 50, false},
		{"GT equal", "GT", 50, 50, false},
		{"GTE equal", "GTE", 50, 50, true},
		{"LT below", "LT", -96, -95, true},
		{"LT above", "LT", -94, -95, false},
		{"LTE equal", "LTE", -95, -95, true},
		{"NaN value never matches", "GT", math.NaN(), 50, false},
		{"NaN threshold never matches", "LT", 10, math.NaN(), false},
		{"unknown comparator never matches", "EQ", 50, 50, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := compare(tt.comparator, tt.value, tt.threshold); got != tt.want {
				t.Errorf("compare(%s, %g, %g) = %v, want %v", tt.comparator, tt.value, tt.threshold, got, tt.want)
			}
		})
	}
}

package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	tests := []struct {
		name   string
		check  func(*Config) bool
		expect string
	}{
		{
			name:   "default mode is admin-api",
			check:  func(c *Config) bool { return c.Mode == "admin-api" },
			expect: "admin-api",
		},
		{
			name:   "default host is 0.0.0.0",
			check:  func(c *Config) bool { return c.Host == "0.0.0.0" },
			expect: "0.0.0.0",
		},
		{
			name:   "default port is 8080",
			check:  func(c *Config) bool { return c.Port == 8080 },
			expect: "8080",
		},
		{
			name:   "default log level is info",
			check:  func(c *Config) bool { return c.LogLevel == "info" },
			expect: "info",
		},
		{
			name:   "default log format is json",
			check:  func(c *Config) bool { return c.LogFormat == "json" },
			expect: "json",
		},
		{
			name:   "default metrics path",
			check:  func(c *Config) bool { return c.MetricsPath == "/metrics" },
			expect: "/metrics",
		},
		{
			name:   "listen addr format",
			check:  func(c *Config) bool { return c.ListenAddr() == "0.0.0.0:8080" },
			expect: "0.0.0.0:8080",
		},
		{
			name:   "default auth cache ttl is 60s",
			check:  func(c *Config) bool { return c.AuthCacheTTL() == 60*time.Second },
			expect: "60s",
		},
		{
			name:   "default auth cache max size is 10000",
			check:  func(c *Config) bool { return c.AuthCacheMaxSize == 10000 },
			expect: "10000",
		},
		{
			name:   "default batch size is 500",
			check:  func(c *Config) bool { return c.InfluxBatchSize == 500 },
			expect: "500",
		},
		{
			name:   "default flush interval is 1s",
			check:  func(c *Config) bool { return c.InfluxFlushInterval() == time.Second },
			expect: "1s",
		},
		{
			name:   "default worker count is 4",
			check:  func(c *Config) bool { return c.IngestWorkerCount == 4 },
			expect: "4",
		},
		{
			name:   "default queue size is 50000",
			check:  func(c *Config) bool { return c.IngestQueueSize == 50000 },
			expect: "50000",
		},
		{
			name:   "default liveness thresholds",
			check:  func(c *Config) bool { return c.StaleAfter() == time.Minute && c.OfflineAfter() == 5*time.Minute },
			expect: "60s/300s",
		},
		{
			name:   "default evaluator tick is 10s",
			check:  func(c *Config) bool { return c.EvaluatorTick() == 10*time.Second },
			expect: "10s",
		},
		{
			name:   "default delivery limits",
			check: func(c *Config) bool {
				return c.DeliveryMaxAttempts == 5 && c.DeliveryConcurrency == 8 &&
					c.DeliveryMaxBackoff() == 5*time.Minute && c.DeliveryRequestTimeout() == 10*time.Second
			},
			expect: "5 attempts / 8 workers / 300s cap / 10s timeout",
		},
		{
			name:   "ssrf guard closed by default",
			check:  func(c *Config) bool { return !c.SSRFAllowPrivate },
			expect: "false",
		},
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.check(cfg) {
				t.Errorf("expected %s", tt.expect)
			}
		})
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero cache ttl", func(c *Config) { c.AuthCacheTTLSeconds = 0 }},
		{"negative cache size", func(c *Config) { c.AuthCacheMaxSize = -1 }},
		{"zero batch size", func(c *Config) { c.InfluxBatchSize = 0 }},
		{"zero workers", func(c *Config) { c.IngestWorkerCount = 0 }},
		{"stale >= offline", func(c *Config) { c.StaleAfterSeconds = 300; c.OfflineAfterSeconds = 300 }},
		{"zero max attempts", func(c *Config) { c.DeliveryMaxAttempts = 0 }},
		{"zero delivery concurrency", func(c *Config) { c.DeliveryConcurrency = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load()
			if err != nil {
				t.Fatalf("Load() error: %v", err)
			}
			tt.mutate(cfg)
			if err := cfg.validate(); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

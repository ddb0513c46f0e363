package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestNewDefault tests that defaults form a valid configuration
func TestNewDefault(t *testing.T) {
	cfg := NewDefault()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("default configuration should validate: %v", err)
	}
	if cfg.HasRemote() {
		t.Error("default configuration should not have a remote configured")
	}
	if cfg.Compression.ThresholdBytes != 1024 {
		t.Errorf("expected compression threshold 1024, got %d", cfg.Compression.ThresholdBytes)
	}
	if cfg.Memory.MaxSizeBytes() != 64*1024*1024 {
		t.Errorf("expected 64MB ceiling, got %d", cfg.Memory.MaxSizeBytes())
	}
}

// TestTTLConfig_ForNamespace tests namespace TTL resolution
func TestTTLConfig_ForNamespace(t *testing.T) {
	ttl := TTLConfig{
		Default: 5 * time.Minute,
		User:    time.Hour,
		Ranking: 10 * time.Minute,
	}

	tests := []struct {
		namespace string
		want      time.Duration
	}{
		{"user", time.Hour},
		{"ranking", 10 * time.Minute},
		{"guild", 5 * time.Minute},   // unset, falls back to default
		{"unknown", 5 * time.Minute}, // outside the closed set
		{"", 5 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.namespace, func(t *testing.T) {
			if got := ttl.ForNamespace(tt.namespace); got != tt.want {
				t.Errorf("ForNamespace(%q) = %v, want %v", tt.namespace, got, tt.want)
			}
		})
	}
}

// TestConfiguration_Validate tests validation failures
func TestConfiguration_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Configuration)
	}{
		{"zero memory ceiling", func(c *Configuration) { c.Memory.MaxSizeMB = 0 }},
		{"zero sweep interval", func(c *Configuration) { c.Memory.SweepInterval = 0 }},
		{"zero default ttl", func(c *Configuration) { c.TTL.Default = 0 }},
		{"compression enabled with zero threshold", func(c *Configuration) {
			c.Compression.Enabled = true
			c.Compression.ThresholdBytes = 0
		}},
		{"batching enabled with zero batch size", func(c *Configuration) {
			c.Batching.Enabled = true
			c.Batching.MaxBatchSize = 0
		}},
		{"batching enabled with zero flush interval", func(c *Configuration) {
			c.Batching.Enabled = true
			c.Batching.FlushInterval = 0
		}},
		{"warning threshold above 100", func(c *Configuration) {
			c.Monitoring.MemoryWarningThresholdPercent = 120
		}},
		{"bad log level", func(c *Configuration) { c.Logging.Level = "VERBOSE" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefault()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

// TestConfiguration_LoadFromEnv tests environment variable overrides
func TestConfiguration_LoadFromEnv(t *testing.T) {
	t.Setenv("TIERCACHE_REMOTE_URL", "redis://localhost:6379")
	t.Setenv("TIERCACHE_CLUSTER_NODES", "node1:6379,node2:6379,node3:6379")
	t.Setenv("TIERCACHE_MEMORY_MAX_SIZE_MB", "128")
	t.Setenv("TIERCACHE_COMPRESSION_ENABLED", "false")
	t.Setenv("TIERCACHE_BATCHING_ENABLED", "true")
	t.Setenv("TIERCACHE_BATCH_SIZE", "25")
	t.Setenv("TIERCACHE_FLUSH_INTERVAL", "250ms")
	t.Setenv("TIERCACHE_TTL_DEFAULT", "2m")

	cfg := NewDefault()
	if err := cfg.LoadFromEnv(); err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}

	if cfg.Remote.URL != "redis://localhost:6379" {
		t.Errorf("remote url not applied: %s", cfg.Remote.URL)
	}
	if len(cfg.Remote.ClusterNodes) != 3 {
		t.Errorf("expected 3 cluster nodes, got %d", len(cfg.Remote.ClusterNodes))
	}
	if !cfg.ClusterMode() {
		t.Error("expected cluster mode with 3 nodes")
	}
	if cfg.Memory.MaxSizeMB != 128 {
		t.Errorf("memory ceiling not applied: %d", cfg.Memory.MaxSizeMB)
	}
	if cfg.Compression.Enabled {
		t.Error("compression should be disabled")
	}
	if !cfg.Batching.Enabled || cfg.Batching.MaxBatchSize != 25 {
		t.Errorf("batching settings not applied: %+v", cfg.Batching)
	}
	if cfg.Batching.FlushInterval != 250*time.Millisecond {
		t.Errorf("flush interval not applied: %v", cfg.Batching.FlushInterval)
	}
	if cfg.TTL.Default != 2*time.Minute {
		t.Errorf("default ttl not applied: %v", cfg.TTL.Default)
	}
}

// TestConfiguration_LoadFromEnvNamespaceAndMonitoring tests that the env
// surface covers per-namespace TTLs and the monitoring options
func TestConfiguration_LoadFromEnvNamespaceAndMonitoring(t *testing.T) {
	t.Setenv("TIERCACHE_TTL_USER", "2h")
	t.Setenv("TIERCACHE_TTL_GUILD", "90m")
	t.Setenv("TIERCACHE_TTL_RANKING", "5m")
	t.Setenv("TIERCACHE_TTL_SESSION", "15m")
	t.Setenv("TIERCACHE_TTL_LEADERBOARD", "3m")
	t.Setenv("TIERCACHE_TTL_STATS", "30s")
	t.Setenv("TIERCACHE_SLOW_QUERY_THRESHOLD", "250ms")
	t.Setenv("TIERCACHE_METRICS_INTERVAL", "30s")
	t.Setenv("TIERCACHE_MEMORY_WARNING_THRESHOLD_PERCENT", "70")
	t.Setenv("TIERCACHE_METRICS_PORT", "9191")
	t.Setenv("TIERCACHE_METRICS_PATH", "/varz")
	t.Setenv("TIERCACHE_PROMETHEUS_ENABLED", "false")

	cfg := NewDefault()
	if err := cfg.LoadFromEnv(); err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}

	ttls := map[string]time.Duration{
		"user":        2 * time.Hour,
		"guild":       90 * time.Minute,
		"ranking":     5 * time.Minute,
		"session":     15 * time.Minute,
		"leaderboard": 3 * time.Minute,
		"stats":       30 * time.Second,
	}
	for namespace, want := range ttls {
		if got := cfg.TTL.ForNamespace(namespace); got != want {
			t.Errorf("ttl.%s = %v, want %v", namespace, got, want)
		}
	}

	if cfg.Monitoring.SlowQueryThreshold != 250*time.Millisecond {
		t.Errorf("slow query threshold not applied: %v", cfg.Monitoring.SlowQueryThreshold)
	}
	if cfg.Monitoring.MetricsInterval != 30*time.Second {
		t.Errorf("metrics interval not applied: %v", cfg.Monitoring.MetricsInterval)
	}
	if cfg.Monitoring.MemoryWarningThresholdPercent != 70 {
		t.Errorf("memory warning threshold not applied: %d", cfg.Monitoring.MemoryWarningThresholdPercent)
	}
	if cfg.Monitoring.MetricsPort != 9191 || cfg.Monitoring.MetricsPath != "/varz" {
		t.Errorf("metrics endpoint not applied: %d %s", cfg.Monitoring.MetricsPort, cfg.Monitoring.MetricsPath)
	}
	if cfg.Monitoring.PrometheusEnabled {
		t.Error("prometheus should be disabled")
	}
}

// TestConfiguration_SaveLoadRoundTrip tests file persistence
func TestConfiguration_SaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cache.yaml")

	cfg := NewDefault()
	cfg.Remote.URL = "redis://example:6379"
	cfg.Memory.MaxSizeMB = 32
	cfg.Batching.Enabled = true

	if err := cfg.SaveToFile(path); err != nil {
		t.Fatalf("SaveToFile: %v", err)
	}

	loaded := NewDefault()
	if err := loaded.LoadFromFile(path); err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}

	if loaded.Remote.URL != cfg.Remote.URL {
		t.Errorf("remote url mismatch: %s != %s", loaded.Remote.URL, cfg.Remote.URL)
	}
	if loaded.Memory.MaxSizeMB != 32 {
		t.Errorf("memory ceiling mismatch: %d", loaded.Memory.MaxSizeMB)
	}
	if !loaded.Batching.Enabled {
		t.Error("batching flag lost in round trip")
	}
}

// TestConfiguration_LoadFromFileMissing tests load failure on a missing file
func TestConfiguration_LoadFromFileMissing(t *testing.T) {
	cfg := NewDefault()
	err := cfg.LoadFromFile(filepath.Join(os.TempDir(), "does-not-exist-tiercache.yaml"))
	if err == nil {
		t.Error("expected error for missing config file")
	}
}

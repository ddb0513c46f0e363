package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// Configuration represents the complete cache service configuration
type Configuration struct {
	Remote      RemoteConfig      `yaml:"remote"`
	TTL         TTLConfig         `yaml:"ttl"`
	Memory      MemoryConfig      `yaml:"memory"`
	Compression CompressionConfig `yaml:"compression"`
	Batching    BatchingConfig    `yaml:"batching"`
	Monitoring  MonitoringConfig  `yaml:"monitoring"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// RemoteConfig represents remote store connection settings. When ClusterNodes
// holds more than one address the client runs in cluster mode; when both URL
// and ClusterNodes are empty the cache runs memory-only.
type RemoteConfig struct {
	URL          string        `yaml:"url"`
	ClusterNodes []string      `yaml:"cluster_nodes"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	PingInterval time.Duration `yaml:"ping_interval"`
	PingTimeout  time.Duration `yaml:"ping_timeout"`
}

// TTLConfig represents per-namespace default TTLs. The set of namespaces is
// closed; unknown prefixes fall back to Default.
type TTLConfig struct {
	Default     time.Duration `yaml:"default"`
	User        time.Duration `yaml:"user"`
	Guild       time.Duration `yaml:"guild"`
	Ranking     time.Duration `yaml:"ranking"`
	Session     time.Duration `yaml:"session"`
	Leaderboard time.Duration `yaml:"leaderboard"`
	Stats       time.Duration `yaml:"stats"`
}

// ForNamespace returns the configured TTL for a namespace tag, or Default
// when the namespace has no explicit setting.
func (t TTLConfig) ForNamespace(namespace string) time.Duration {
	var d time.Duration
	switch namespace {
	case "user":
		d = t.User
	case "guild":
		d = t.Guild
	case "ranking":
		d = t.Ranking
	case "session":
		d = t.Session
	case "leaderboard":
		d = t.Leaderboard
	case "stats":
		d = t.Stats
	}
	if d <= 0 {
		return t.Default
	}
	return d
}

// MemoryConfig represents fallback store limits
type MemoryConfig struct {
	MaxSizeMB     int           `yaml:"max_size_mb"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// MaxSizeBytes returns the fallback store ceiling in bytes
func (m MemoryConfig) MaxSizeBytes() int64 {
	return int64(m.MaxSizeMB) * 1024 * 1024
}

// CompressionConfig represents payload compression settings
type CompressionConfig struct {
	Enabled        bool `yaml:"enabled"`
	ThresholdBytes int  `yaml:"threshold_bytes"`
}

// BatchingConfig represents write batching settings
type BatchingConfig struct {
	Enabled       bool          `yaml:"enabled"`
	MaxBatchSize  int           `yaml:"max_batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// MonitoringConfig represents monitoring settings
type MonitoringConfig struct {
	SlowQueryThreshold            time.Duration `yaml:"slow_query_threshold"`
	MetricsInterval               time.Duration `yaml:"metrics_interval"`
	MemoryWarningThresholdPercent int           `yaml:"memory_warning_threshold_percent"`
	MetricsPort                   int           `yaml:"metrics_port"`
	MetricsPath                   string        `yaml:"metrics_path"`
	PrometheusEnabled             bool          `yaml:"prometheus_enabled"`
}

// LoggingConfig represents logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// NewDefault returns a configuration with sensible defaults
func NewDefault() *Configuration {
	return &Configuration{
		Remote: RemoteConfig{
			URL:          "",
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
			PingInterval: 30 * time.Second,
			PingTimeout:  2 * time.Second,
		},
		TTL: TTLConfig{
			Default:     5 * time.Minute,
			User:        time.Hour,
			Guild:       time.Hour,
			Ranking:     10 * time.Minute,
			Session:     30 * time.Minute,
			Leaderboard: 10 * time.Minute,
			Stats:       time.Minute,
		},
		Memory: MemoryConfig{
			MaxSizeMB:     64,
			SweepInterval: time.Minute,
		},
		Compression: CompressionConfig{
			Enabled:        true,
			ThresholdBytes: 1024,
		},
		Batching: BatchingConfig{
			Enabled:       false,
			MaxBatchSize:  50,
			FlushInterval: 100 * time.Millisecond,
		},
		Monitoring: MonitoringConfig{
			SlowQueryThreshold:            100 * time.Millisecond,
			MetricsInterval:               time.Minute,
			MemoryWarningThresholdPercent: 85,
			MetricsPort:                   8080,
			MetricsPath:                   "/metrics",
			PrometheusEnabled:             true,
		},
		Logging: LoggingConfig{
			Level:  "INFO",
			Format: "text",
		},
	}
}

// LoadFromFile loads configuration from a YAML file
func (c *Configuration) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// LoadFromEnv loads configuration from environment variables
func (c *Configuration) LoadFromEnv() error {
	if val := os.Getenv("TIERCACHE_REMOTE_URL"); val != "" {
		c.Remote.URL = val
	}
	if val := os.Getenv("TIERCACHE_CLUSTER_NODES"); val != "" {
		c.Remote.ClusterNodes = strings.Split(val, ",")
	}
	if val := os.Getenv("TIERCACHE_PING_INTERVAL"); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			c.Remote.PingInterval = duration
		}
	}

	if val := os.Getenv("TIERCACHE_TTL_DEFAULT"); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			c.TTL.Default = duration
		}
	}
	namespaceTTLs := []struct {
		env string
		dst *time.Duration
	}{
		{"TIERCACHE_TTL_USER", &c.TTL.User},
		{"TIERCACHE_TTL_GUILD", &c.TTL.Guild},
		{"TIERCACHE_TTL_RANKING", &c.TTL.Ranking},
		{"TIERCACHE_TTL_SESSION", &c.TTL.Session},
		{"TIERCACHE_TTL_LEADERBOARD", &c.TTL.Leaderboard},
		{"TIERCACHE_TTL_STATS", &c.TTL.Stats},
	}
	for _, ns := range namespaceTTLs {
		if val := os.Getenv(ns.env); val != "" {
			if duration, err := time.ParseDuration(val); err == nil {
				*ns.dst = duration
			}
		}
	}

	if val := os.Getenv("TIERCACHE_MEMORY_MAX_SIZE_MB"); val != "" {
		if size, err := strconv.Atoi(val); err == nil {
			c.Memory.MaxSizeMB = size
		}
	}
	if val := os.Getenv("TIERCACHE_SWEEP_INTERVAL"); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			c.Memory.SweepInterval = duration
		}
	}

	if val := os.Getenv("TIERCACHE_COMPRESSION_ENABLED"); val != "" {
		c.Compression.Enabled = strings.ToLower(val) == "true"
	}
	if val := os.Getenv("TIERCACHE_COMPRESSION_THRESHOLD"); val != "" {
		if threshold, err := strconv.Atoi(val); err == nil {
			c.Compression.ThresholdBytes = threshold
		}
	}

	if val := os.Getenv("TIERCACHE_BATCHING_ENABLED"); val != "" {
		c.Batching.Enabled = strings.ToLower(val) == "true"
	}
	if val := os.Getenv("TIERCACHE_BATCH_SIZE"); val != "" {
		if size, err := strconv.Atoi(val); err == nil {
			c.Batching.MaxBatchSize = size
		}
	}
	if val := os.Getenv("TIERCACHE_FLUSH_INTERVAL"); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			c.Batching.FlushInterval = duration
		}
	}

	if val := os.Getenv("TIERCACHE_SLOW_QUERY_THRESHOLD"); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			c.Monitoring.SlowQueryThreshold = duration
		}
	}
	if val := os.Getenv("TIERCACHE_METRICS_INTERVAL"); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			c.Monitoring.MetricsInterval = duration
		}
	}
	if val := os.Getenv("TIERCACHE_MEMORY_WARNING_THRESHOLD_PERCENT"); val != "" {
		if percent, err := strconv.Atoi(val); err == nil {
			c.Monitoring.MemoryWarningThresholdPercent = percent
		}
	}
	if val := os.Getenv("TIERCACHE_METRICS_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			c.Monitoring.MetricsPort = port
		}
	}
	if val := os.Getenv("TIERCACHE_METRICS_PATH"); val != "" {
		c.Monitoring.MetricsPath = val
	}
	if val := os.Getenv("TIERCACHE_PROMETHEUS_ENABLED"); val != "" {
		c.Monitoring.PrometheusEnabled = strings.ToLower(val) == "true"
	}

	if val := os.Getenv("TIERCACHE_LOG_LEVEL"); val != "" {
		c.Logging.Level = val
	}
	if val := os.Getenv("TIERCACHE_LOG_FORMAT"); val != "" {
		c.Logging.Format = val
	}

	return nil
}

// SaveToFile saves the configuration to a YAML file
func (c *Configuration) SaveToFile(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(filename, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// HasRemote reports whether any remote store address is configured
func (c *Configuration) HasRemote() bool {
	return c.Remote.URL != "" || len(c.Remote.ClusterNodes) > 0
}

// ClusterMode reports whether the remote store should run in cluster mode
func (c *Configuration) ClusterMode() bool {
	return len(c.Remote.ClusterNodes) > 1
}

// Validate validates the configuration
func (c *Configuration) Validate() error {
	if c.Memory.MaxSizeMB <= 0 {
		return fmt.Errorf("memory.max_size_mb must be greater than 0")
	}

	if c.Memory.SweepInterval <= 0 {
		return fmt.Errorf("memory.sweep_interval must be greater than 0")
	}

	if c.TTL.Default <= 0 {
		return fmt.Errorf("ttl.default must be greater than 0")
	}

	if c.Compression.Enabled && c.Compression.ThresholdBytes <= 0 {
		return fmt.Errorf("compression.threshold_bytes must be greater than 0 when compression is enabled")
	}

	if c.Batching.Enabled {
		if c.Batching.MaxBatchSize <= 0 {
			return fmt.Errorf("batching.max_batch_size must be greater than 0 when batching is enabled")
		}
		if c.Batching.FlushInterval <= 0 {
			return fmt.Errorf("batching.flush_interval must be greater than 0 when batching is enabled")
		}
	}

	if c.Monitoring.MemoryWarningThresholdPercent < 0 || c.Monitoring.MemoryWarningThresholdPercent > 100 {
		return fmt.Errorf("monitoring.memory_warning_threshold_percent must be between 0 and 100")
	}

	validLogLevels := []string{"DEBUG", "INFO", "WARN", "ERROR"}
	logLevelValid := false
	for _, level := range validLogLevels {
		if strings.ToUpper(c.Logging.Level) == level {
			logLevelValid = true
			break
		}
	}
	if !logLevelValid {
		return fmt.Errorf("invalid logging.level: %s (must be one of: %s)",
			c.Logging.Level, strings.Join(validLogLevels, ", "))
	}

	return nil
}

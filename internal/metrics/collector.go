package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector exports cache metrics to Prometheus
type Collector struct {
	config   *Config
	registry *prometheus.Registry

	requestCounter    *prometheus.CounterVec
	operationCounter  *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	tierSizeGauge     *prometheus.GaugeVec
	connectionState   prometheus.Gauge
	errorCounter      *prometheus.CounterVec

	server *http.Server
}

// Config represents collector configuration
type Config struct {
	Enabled   bool
	Port      int
	Path      string
	Namespace string
}

// NewCollector creates a metrics collector
func NewCollector(config *Config) (*Collector, error) {
	if config == nil {
		config = &Config{
			Enabled:   true,
			Port:      8080,
			Path:      "/metrics",
			Namespace: "tiercache",
		}
	}
	if config.Namespace == "" {
		config.Namespace = "tiercache"
	}
	if config.Path == "" {
		config.Path = "/metrics"
	}

	if !config.Enabled {
		return &Collector{config: config}, nil
	}

	c := &Collector{
		config:   config,
		registry: prometheus.NewRegistry(),
	}

	c.initMetrics()
	if err := c.registerMetrics(); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	return c, nil
}

// Start serves the metrics endpoint in the background
func (c *Collector) Start() error {
	if !c.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(c.config.Path, promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"healthy","service":"tiercache"}`))
	})

	c.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", c.config.Port),
		Handler:           mux,
		ReadHeaderTimeout: 30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		if err := c.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("Metrics server error: %v\n", err)
		}
	}()

	return nil
}

// Stop shuts down the metrics endpoint
func (c *Collector) Stop(ctx context.Context) error {
	if c.server != nil {
		return c.server.Shutdown(ctx)
	}
	return nil
}

// RecordRequest records a cache request outcome by tier
func (c *Collector) RecordRequest(hit bool, source string) {
	if !c.config.Enabled {
		return
	}

	kind := "miss"
	if hit {
		kind = "hit"
	}
	c.requestCounter.With(prometheus.Labels{"type": kind, "source": source}).Inc()
}

// RecordOperation records an operation's outcome and latency
func (c *Collector) RecordOperation(operation string, duration time.Duration, success bool) {
	if !c.config.Enabled {
		return
	}

	status := "success"
	if !success {
		status = "error"
	}
	c.operationCounter.With(prometheus.Labels{"operation": operation, "status": status}).Inc()
	c.operationDuration.With(prometheus.Labels{"operation": operation}).Observe(duration.Seconds())
}

// RecordError records a classified error
func (c *Collector) RecordError(operation, errorType string) {
	if !c.config.Enabled {
		return
	}

	c.errorCounter.With(prometheus.Labels{"operation": operation, "type": errorType}).Inc()
}

// UpdateTierSize updates a tier's current size gauge
func (c *Collector) UpdateTierSize(tier string, size int64) {
	if !c.config.Enabled {
		return
	}

	c.tierSizeGauge.With(prometheus.Labels{"tier": tier}).Set(float64(size))
}

// UpdateConnectionState sets the connection gauge (1 = connected, 0 = degraded)
func (c *Collector) UpdateConnectionState(connected bool) {
	if !c.config.Enabled {
		return
	}

	if connected {
		c.connectionState.Set(1)
	} else {
		c.connectionState.Set(0)
	}
}

func (c *Collector) initMetrics() {
	c.requestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: c.config.Namespace,
			Name:      "cache_requests_total",
			Help:      "Total number of cache requests",
		},
		[]string{"type", "source"},
	)

	c.operationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: c.config.Namespace,
			Name:      "operations_total",
			Help:      "Total number of operations",
		},
		[]string{"operation", "status"},
	)

	c.operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: c.config.Namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of operations in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 15), // 100µs to ~1.6s
		},
		[]string{"operation"},
	)

	c.tierSizeGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: c.config.Namespace,
			Name:      "tier_size_bytes",
			Help:      "Current size of a cache tier in bytes",
		},
		[]string{"tier"},
	)

	c.connectionState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: c.config.Namespace,
			Name:      "remote_connected",
			Help:      "Whether the remote store is usable (1) or the cache is degraded (0)",
		},
	)

	c.errorCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: c.config.Namespace,
			Name:      "errors_total",
			Help:      "Total number of errors",
		},
		[]string{"operation", "type"},
	)
}

func (c *Collector) registerMetrics() error {
	collectors := []prometheus.Collector{
		c.requestCounter,
		c.operationCounter,
		c.operationDuration,
		c.tierSizeGauge,
		c.connectionState,
		c.errorCounter,
	}

	for _, collector := range collectors {
		if err := c.registry.Register(collector); err != nil {
			return err
		}
	}

	return nil
}

// Package monitor periodically reports cache activity and warns when the
// in-process fallback store runs close to its ceiling.
package monitor

import (
	"sync"
	"time"

	"github.com/tiercache/tiercache/pkg/errors"
	"github.com/tiercache/tiercache/pkg/types"
	"github.com/tiercache/tiercache/pkg/utils"
)

// StatsSource supplies the snapshot the monitor reports on
type StatsSource interface {
	Stats() types.CacheStats
}

// Config represents monitor configuration
type Config struct {
	Interval               time.Duration
	MemoryWarningThreshold float64
}

// Monitor logs a periodic statistics summary
type Monitor struct {
	mu      sync.Mutex
	config  Config
	source  StatsSource
	logger  *utils.StructuredLogger
	started bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// New creates a monitor over the given stats source
func New(config Config, source StatsSource, logger *utils.StructuredLogger) *Monitor {
	if config.Interval <= 0 {
		config.Interval = time.Minute
	}
	if config.MemoryWarningThreshold <= 0 {
		config.MemoryWarningThreshold = 0.9
	}

	return &Monitor{
		config: config,
		source: source,
		logger: logger.WithComponent("monitor"),
		stopCh: make(chan struct{}),
	}
}

// Start begins the reporting loop
func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return errors.NewError(errors.ErrCodeAlreadyStarted, "monitor already started").
			WithComponent("monitor")
	}

	m.started = true
	m.wg.Add(1)
	go m.loop()

	m.logger.Info("Monitor started", map[string]interface{}{
		"interval":                 m.config.Interval.String(),
		"memory_warning_threshold": m.config.MemoryWarningThreshold,
	})
	return nil
}

// Stop halts the reporting loop and waits for it to exit
func (m *Monitor) Stop() error {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = false
	close(m.stopCh)
	m.mu.Unlock()

	m.wg.Wait()
	m.logger.Info("Monitor stopped", nil)
	return nil
}

func (m *Monitor) loop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.report()
		case <-m.stopCh:
			return
		}
	}
}

func (m *Monitor) report() {
	stats := m.source.Stats()

	m.logger.Info("Cache statistics", map[string]interface{}{
		"state":            stats.State,
		"hits":             stats.Operations.Hits,
		"misses":           stats.Operations.Misses,
		"hit_rate":         stats.Operations.HitRate,
		"slow_queries":     stats.Operations.SlowQueries,
		"avg_response_ms":  float64(stats.Operations.AvgResponse) / float64(time.Millisecond),
		"fallback_entries": stats.Fallback.Entries,
		"fallback_size":    stats.Fallback.Size,
		"batch_pending":    stats.Batching.Pending,
		"uptime":           stats.Uptime.String(),
	})

	if stats.Fallback.Utilization >= m.config.MemoryWarningThreshold {
		m.logger.Warn("Fallback store near capacity", map[string]interface{}{
			"utilization": stats.Fallback.Utilization,
			"size":        stats.Fallback.Size,
			"capacity":    stats.Fallback.Capacity,
			"threshold":   m.config.MemoryWarningThreshold,
		})
	}
}

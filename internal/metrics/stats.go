// Package metrics tracks per-operation counters and exposes them through a
// Prometheus collector.
package metrics

import (
	"sync"
	"time"

	"github.com/tiercache/tiercache/pkg/types"
)

// sampleCap bounds the response-time window to the most recent samples
const sampleCap = 1000

// Tracker accumulates process-wide operation statistics. Counters only
// increase and reset with the process.
type Tracker struct {
	mu sync.Mutex

	hits        uint64
	misses      uint64
	successes   uint64
	failures    uint64
	slowQueries uint64

	samples     [sampleCap]time.Duration
	sampleIndex int
	sampleCount int

	slowThreshold time.Duration
	startedAt     time.Time
}

// NewTracker creates a tracker. Operations slower than slowThreshold are
// counted as slow queries; a non-positive threshold disables that counter.
func NewTracker(slowThreshold time.Duration) *Tracker {
	return &Tracker{
		slowThreshold: slowThreshold,
		startedAt:     time.Now(),
	}
}

// RecordOperation records the latency and outcome of one cache operation
func (t *Tracker) RecordOperation(d time.Duration, success bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if success {
		t.successes++
	} else {
		t.failures++
	}

	if t.slowThreshold > 0 && d > t.slowThreshold {
		t.slowQueries++
	}

	t.samples[t.sampleIndex] = d
	t.sampleIndex = (t.sampleIndex + 1) % sampleCap
	if t.sampleCount < sampleCap {
		t.sampleCount++
	}
}

// RecordHit counts a get that found a value in either tier
func (t *Tracker) RecordHit() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.hits++
}

// RecordMiss counts a get that found nothing
func (t *Tracker) RecordMiss() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.misses++
}

// Uptime returns time since the tracker was created
func (t *Tracker) Uptime() time.Duration {
	return time.Since(t.startedAt)
}

// Snapshot returns a copy of the current statistics
func (t *Tracker) Snapshot() types.OperationStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	stats := types.OperationStats{
		Hits:           t.hits,
		Misses:         t.misses,
		Successes:      t.successes,
		Failures:       t.failures,
		SlowQueries:    t.slowQueries,
		SampleCount:    t.sampleCount,
		TrackedSamples: sampleCap,
	}

	total := t.hits + t.misses
	if total > 0 {
		stats.HitRate = float64(t.hits) / float64(total)
	}

	if t.sampleCount > 0 {
		var sum, max time.Duration
		for i := 0; i < t.sampleCount; i++ {
			s := t.samples[i]
			sum += s
			if s > max {
				max = s
			}
		}
		stats.AvgResponse = sum / time.Duration(t.sampleCount)
		stats.MaxResponse = max
	}

	return stats
}

// Package types defines shared result and statistics types used across tiercache.
package types

import "time"

// Source identifies which tier served a cache operation.
type Source string

const (
	// SourceRemote means the operation was served by the remote store.
	SourceRemote Source = "redis"

	// SourceMemory means the operation was served by the in-process fallback store.
	SourceMemory Source = "memory"

	// SourceNone means no tier held the key (a miss) or no tier accepted the write.
	SourceNone Source = "none"
)

// Result describes the outcome of a single cache operation. A miss is a
// successful result with no data, not an error.
type Result struct {
	Success      bool          `json:"success"`
	Data         []byte        `json:"data,omitempty"`
	Source       Source        `json:"source"`
	ResponseTime time.Duration `json:"response_time"`
	Deleted      bool          `json:"deleted,omitempty"`
	Err          error         `json:"-"`
}

// StoreStats represents fallback store occupancy and activity.
type StoreStats struct {
	Entries     int     `json:"entries"`
	Size        int64   `json:"size"`
	Capacity    int64   `json:"capacity"`
	Hits        uint64  `json:"hits"`
	Misses      uint64  `json:"misses"`
	Evictions   uint64  `json:"evictions"`
	Expired     uint64  `json:"expired"`
	Utilization float64 `json:"utilization"`
}

// OperationStats represents process-wide operation counters. Counters only
// increase; they reset on process restart.
type OperationStats struct {
	Hits           uint64        `json:"hits"`
	Misses         uint64        `json:"misses"`
	Successes      uint64        `json:"successes"`
	Failures       uint64        `json:"failures"`
	SlowQueries    uint64        `json:"slow_queries"`
	SampleCount    int           `json:"sample_count"`
	AvgResponse    time.Duration `json:"avg_response"`
	MaxResponse    time.Duration `json:"max_response"`
	HitRate        float64       `json:"hit_rate"`
	TrackedSamples int           `json:"tracked_samples"`
}

// RemoteStats represents statistics reported by the remote store itself.
type RemoteStats struct {
	Connected      bool   `json:"connected"`
	UsedMemory     int64  `json:"used_memory"`
	KeyCount       int64  `json:"key_count"`
	KeyspaceHits   int64  `json:"keyspace_hits"`
	KeyspaceMisses int64  `json:"keyspace_misses"`
	Version        string `json:"version"`
}

// CacheStats is the aggregate snapshot returned by the facade: remote-side
// introspection, local operation counters, and fallback store occupancy.
type CacheStats struct {
	State      string         `json:"state"`
	Remote     RemoteStats    `json:"remote"`
	Operations OperationStats `json:"operations"`
	Fallback   StoreStats     `json:"fallback"`
	Batching   BatchStats     `json:"batching"`
	Uptime     time.Duration  `json:"uptime"`
}

// BatchStats represents batching layer activity.
type BatchStats struct {
	Enqueued       uint64  `json:"enqueued"`
	FlushCount     uint64  `json:"flush_count"`
	FlushedOps     uint64  `json:"flushed_ops"`
	DroppedBatches uint64  `json:"dropped_batches"`
	DroppedOps     uint64  `json:"dropped_ops"`
	AvgBatchSize   float64 `json:"avg_batch_size"`
	Pending        int     `json:"pending"`
}

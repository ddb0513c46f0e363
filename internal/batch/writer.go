// Package batch coalesces cache writes into single round trips to the remote
// store. A batch is committed when the pending queue reaches the configured
// size or when the flush timer fires, whichever comes first. A failed batch
// is dropped whole; cache entries are always re-derivable from the source of
// truth, so the loss window is accepted.
package batch

import (
	"context"
	"sync"
	"time"

	"github.com/tiercache/tiercache/internal/remote"
	"github.com/tiercache/tiercache/pkg/errors"
	"github.com/tiercache/tiercache/pkg/types"
	"github.com/tiercache/tiercache/pkg/utils"
)

// Flusher commits a batch of SET-with-TTL operations in one round trip.
// MarkError receives the flush error so the connection state machine sees
// the failure; a dropped batch must not leave the remote looking healthy.
type Flusher interface {
	FlushSetEx(ctx context.Context, ops []remote.SetOp) error
	MarkError(err error)
}

// Config represents batching settings
type Config struct {
	MaxBatchSize  int
	FlushInterval time.Duration
}

// Writer owns the ordered queue of pending writes
type Writer struct {
	mu         sync.Mutex
	pending    []remote.SetOp
	flushTimer *time.Timer
	stopped    bool

	maxBatchSize  int
	flushInterval time.Duration
	flusher       Flusher
	logger        *utils.StructuredLogger
	stats         types.BatchStats
}

// NewWriter creates a batching writer
func NewWriter(flusher Flusher, config Config, logger *utils.StructuredLogger) *Writer {
	if config.MaxBatchSize <= 0 {
		config.MaxBatchSize = 50
	}
	if config.FlushInterval <= 0 {
		config.FlushInterval = 100 * time.Millisecond
	}
	if logger == nil {
		logger, _ = utils.NewStructuredLogger(nil)
	}

	return &Writer{
		maxBatchSize:  config.MaxBatchSize,
		flushInterval: config.FlushInterval,
		flusher:       flusher,
		logger:        logger.WithComponent("batch"),
	}
}

// Enqueue appends a write to the pending queue. Reaching the batch-size
// threshold flushes synchronously; otherwise the first unflushed item arms
// the flush timer.
func (w *Writer) Enqueue(key string, ttl time.Duration, value []byte) error {
	w.mu.Lock()

	if w.stopped {
		w.mu.Unlock()
		return errors.NewError(errors.ErrCodeShutdownInProgress, "batch writer stopped").
			WithComponent("batch")
	}

	w.pending = append(w.pending, remote.SetOp{Key: key, TTL: ttl, Value: value})
	w.stats.Enqueued++

	if len(w.pending) >= w.maxBatchSize {
		ops := w.takeLocked()
		w.mu.Unlock()
		w.commit(ops)
		return nil
	}

	if w.flushTimer == nil {
		w.flushTimer = time.AfterFunc(w.flushInterval, w.timerFlush)
	}
	w.mu.Unlock()

	return nil
}

// Flush commits everything currently pending
func (w *Writer) Flush() {
	w.mu.Lock()
	ops := w.takeLocked()
	w.mu.Unlock()

	w.commit(ops)
}

// Stop flushes the remaining queue and rejects further writes
func (w *Writer) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	ops := w.takeLocked()
	w.mu.Unlock()

	w.commit(ops)
}

// Pending returns the current queue length
func (w *Writer) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

// Stats returns batching statistics
func (w *Writer) Stats() types.BatchStats {
	w.mu.Lock()
	defer w.mu.Unlock()

	stats := w.stats
	stats.Pending = len(w.pending)
	if stats.FlushCount > 0 {
		stats.AvgBatchSize = float64(stats.FlushedOps+stats.DroppedOps) / float64(stats.FlushCount)
	}
	return stats
}

// takeLocked snapshots and clears the queue atomically and disarms the timer.
// Must be called with the lock held.
func (w *Writer) takeLocked() []remote.SetOp {
	if w.flushTimer != nil {
		w.flushTimer.Stop()
		w.flushTimer = nil
	}

	if len(w.pending) == 0 {
		return nil
	}

	ops := w.pending
	w.pending = nil
	return ops
}

func (w *Writer) timerFlush() {
	w.mu.Lock()
	// The timer may race a threshold flush that already took the queue
	w.flushTimer = nil
	ops := w.takeLocked()
	w.mu.Unlock()

	w.commit(ops)
}

// commit executes one batch. The whole batch is dropped on failure; items
// are never retried individually.
func (w *Writer) commit(ops []remote.SetOp) {
	if len(ops) == 0 {
		return
	}

	err := w.flusher.FlushSetEx(context.Background(), ops)

	w.mu.Lock()
	w.stats.FlushCount++
	if err != nil {
		w.stats.DroppedBatches++
		w.stats.DroppedOps += uint64(len(ops))
	} else {
		w.stats.FlushedOps += uint64(len(ops))
	}
	w.mu.Unlock()

	if err != nil {
		w.flusher.MarkError(err)
		w.logger.Error("Dropped batch after failed flush", map[string]interface{}{
			"ops":   len(ops),
			"error": err.Error(),
		})
	}
}

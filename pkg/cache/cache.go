// Package cache provides the two-tier cache facade: a remote Redis store
// backed by a bounded in-process fallback store. Reads and writes prefer the
// remote tier while it is reachable and degrade transparently to the
// fallback store when it is not.
package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/tiercache/tiercache/internal/batch"
	"github.com/tiercache/tiercache/internal/codec"
	"github.com/tiercache/tiercache/internal/config"
	"github.com/tiercache/tiercache/internal/memstore"
	"github.com/tiercache/tiercache/internal/metrics"
	"github.com/tiercache/tiercache/internal/monitor"
	"github.com/tiercache/tiercache/internal/remote"
	"github.com/tiercache/tiercache/pkg/errors"
	"github.com/tiercache/tiercache/pkg/keys"
	"github.com/tiercache/tiercache/pkg/types"
	"github.com/tiercache/tiercache/pkg/utils"
)

// State represents the facade tier state
type State int

const (
	// StateConnected means the remote tier is usable
	StateConnected State = iota

	// StateDegraded means operations are served from the fallback store only
	StateDegraded
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateDegraded:
		return "degraded"
	default:
		return "unknown"
	}
}

// remoteStore captures the remote client operations the facade depends on
type remoteStore interface {
	Connect(ctx context.Context) error
	Close() error
	Subscribe(fn func(remote.State))
	MarkError(err error)
	SetEx(ctx context.Context, key string, ttl time.Duration, value []byte) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Del(ctx context.Context, keys ...string) (int64, error)
	FlushSetEx(ctx context.Context, ops []remote.SetOp) error
	Stats(ctx context.Context) (types.RemoteStats, error)
}

// Cache is the two-tier cache facade. Construct with New, then Init before
// use; a Cache is safe for concurrent use.
type Cache struct {
	mu     sync.RWMutex
	state  State
	config *config.Configuration
	logger *utils.StructuredLogger

	codec   *codec.Codec
	store   *memstore.Store
	remote  remoteStore
	writer  *batch.Writer
	tracker *metrics.Tracker

	collector *metrics.Collector
	monitor   *monitor.Monitor

	started bool
	closed  bool
}

// statsFunc adapts a closure to the monitor's stats source
type statsFunc func() types.CacheStats

func (f statsFunc) Stats() types.CacheStats { return f() }

// New creates a cache from the given configuration. When no remote address
// is configured the cache runs memory-only and stays degraded for its whole
// lifetime. The remote connection is dialed in Init, not here.
func New(cfg *config.Configuration, logger *utils.StructuredLogger) (*Cache, error) {
	if cfg == nil {
		cfg = config.NewDefault()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if logger == nil {
		level, err := utils.ParseLogLevel(cfg.Logging.Level)
		if err != nil {
			return nil, err
		}
		format, err := utils.ParseLogFormat(cfg.Logging.Format)
		if err != nil {
			return nil, err
		}
		logger, err = utils.NewStructuredLogger(&utils.StructuredLoggerConfig{
			Level:  level,
			Format: format,
		})
		if err != nil {
			return nil, err
		}
	}

	c := &Cache{
		state:   StateDegraded,
		config:  cfg,
		logger:  logger.WithComponent("cache"),
		codec:   codec.New(cfg.Compression.Enabled, cfg.Compression.ThresholdBytes),
		tracker: metrics.NewTracker(cfg.Monitoring.SlowQueryThreshold),
	}

	c.store = memstore.New(memstore.Config{
		MaxSizeBytes:  cfg.Memory.MaxSizeBytes(),
		SweepInterval: cfg.Memory.SweepInterval,
	}, logger)

	if cfg.HasRemote() {
		client, err := remote.New(remote.Config{
			URL:          cfg.Remote.URL,
			ClusterNodes: cfg.Remote.ClusterNodes,
			DialTimeout:  cfg.Remote.DialTimeout,
			ReadTimeout:  cfg.Remote.ReadTimeout,
			WriteTimeout: cfg.Remote.WriteTimeout,
			PingInterval: cfg.Remote.PingInterval,
			PingTimeout:  cfg.Remote.PingTimeout,
		}, logger)
		if err != nil {
			return nil, err
		}
		c.remote = client

		if cfg.Batching.Enabled {
			c.writer = batch.NewWriter(client, batch.Config{
				MaxBatchSize:  cfg.Batching.MaxBatchSize,
				FlushInterval: cfg.Batching.FlushInterval,
			}, logger)
		}
	}

	collector, err := metrics.NewCollector(&metrics.Config{
		Enabled:   cfg.Monitoring.PrometheusEnabled,
		Port:      cfg.Monitoring.MetricsPort,
		Path:      cfg.Monitoring.MetricsPath,
		Namespace: "tiercache",
	})
	if err != nil {
		return nil, err
	}
	c.collector = collector

	c.monitor = monitor.New(monitor.Config{
		Interval:               cfg.Monitoring.MetricsInterval,
		MemoryWarningThreshold: float64(cfg.Monitoring.MemoryWarningThresholdPercent) / 100,
	}, statsFunc(func() types.CacheStats { return c.Stats(context.Background()) }), logger)

	return c, nil
}

// Init starts the fallback store sweep, dials the remote store when one is
// configured, and starts monitoring. A failed initial dial is not fatal: the
// cache comes up degraded and recovers when the remote becomes reachable.
func (c *Cache) Init(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return errors.NewError(errors.ErrCodeAlreadyStarted, "cache already initialized").
			WithComponent("cache")
	}
	if c.closed {
		c.mu.Unlock()
		return errors.NewError(errors.ErrCodeShutdownInProgress, "cache already shut down").
			WithComponent("cache")
	}
	c.started = true
	c.mu.Unlock()

	if err := c.store.Start(); err != nil {
		return err
	}

	if c.remote != nil {
		c.remote.Subscribe(c.onRemoteState)
		if err := c.remote.Connect(ctx); err != nil {
			c.logger.Warn("Remote store unreachable, starting degraded", map[string]interface{}{
				"error": err.Error(),
			})
		}
	} else {
		c.logger.Info("No remote store configured, running memory-only", nil)
	}

	if err := c.collector.Start(); err != nil {
		return err
	}
	if err := c.monitor.Start(); err != nil {
		return err
	}

	c.logger.Info("Cache initialized", map[string]interface{}{
		"state":     c.State().String(),
		"remote":    c.config.HasRemote(),
		"clustered": c.config.ClusterMode(),
		"batching":  c.writer != nil,
	})
	return nil
}

// Shutdown flushes pending batched writes and releases every resource. The
// cache cannot be restarted afterwards.
func (c *Cache) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	if c.writer != nil {
		c.writer.Stop()
	}

	var firstErr error
	if c.remote != nil {
		if err := c.remote.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if err := c.monitor.Stop(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := c.collector.Stop(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	c.store.Stop()

	c.logger.Info("Cache shut down", nil)
	return firstErr
}

// State returns the current tier state
func (c *Cache) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Set stores a value. TTL resolution order: an explicit positive ttl wins,
// then the key's namespace default, then the global default. While connected
// the write goes to the remote tier (batched when batching is enabled); a
// failed remote write lands in the fallback store instead and the result
// reports source "memory" with the remote error attached.
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl ...time.Duration) types.Result {
	start := time.Now()

	effTTL := c.resolveTTL(key, ttl...)

	data, compressed, err := c.codec.Encode(value)
	if err != nil {
		return c.finish("set", start, types.Result{Source: types.SourceNone, Err: err})
	}

	if c.State() == StateConnected {
		remoteKey := key
		if compressed {
			remoteKey = codec.CompressedKey(key)
		}

		var writeErr error
		if c.writer != nil {
			writeErr = c.writer.Enqueue(remoteKey, effTTL, data)
		} else {
			writeErr = c.remote.SetEx(ctx, remoteKey, effTTL, data)
			if writeErr != nil {
				c.remote.MarkError(writeErr)
			}
		}

		if writeErr == nil {
			return c.finish("set", start, types.Result{Success: true, Source: types.SourceRemote})
		}

		c.logger.Warn("Remote write failed, falling back to memory", map[string]interface{}{
			"key":   key,
			"error": writeErr.Error(),
		})
		if memErr := c.store.Set(key, data, compressed, effTTL); memErr != nil {
			return c.finish("set", start, types.Result{Source: types.SourceNone, Err: memErr})
		}
		return c.finish("set", start, types.Result{Success: true, Source: types.SourceMemory, Err: writeErr})
	}

	if err := c.store.Set(key, data, compressed, effTTL); err != nil {
		return c.finish("set", start, types.Result{Source: types.SourceNone, Err: err})
	}
	return c.finish("set", start, types.Result{Success: true, Source: types.SourceMemory})
}

// Get reads a value into out, which must be a pointer; a nil out returns the
// raw serialized payload in Result.Data instead. A key present in neither
// tier is a miss: Success true, no data, source "none", never an error.
func (c *Cache) Get(ctx context.Context, key string, out interface{}) types.Result {
	start := time.Now()

	data, compressed, found := c.readTiers(ctx, key)
	if !found {
		c.tracker.RecordMiss()
		c.collector.RecordRequest(false, string(types.SourceNone))
		return c.finish("get", start, types.Result{Success: true, Source: types.SourceNone})
	}

	source := data.source
	var raw json.RawMessage
	target := out
	if target == nil {
		target = &raw
	}
	if err := c.codec.Decode(data.payload, compressed, target); err != nil {
		c.logger.Warn("Stored value failed to decode, treating as miss", map[string]interface{}{
			"key":    key,
			"source": string(source),
			"error":  err.Error(),
		})
		c.tracker.RecordMiss()
		c.collector.RecordRequest(false, string(types.SourceNone))
		c.collector.RecordError("get", string(errors.ErrCodeDecodeFailed))
		return c.finish("get", start, types.Result{Success: true, Source: types.SourceNone})
	}

	c.tracker.RecordHit()
	c.collector.RecordRequest(true, string(source))
	return c.finish("get", start, types.Result{Success: true, Data: raw, Source: source})
}

// tierRead is one tier's answer to a read
type tierRead struct {
	payload []byte
	source  types.Source
}

// readTiers tries the remote tier first while connected, then the fallback
// store. The remote holds compressed payloads under the "compressed:" key
// variant, so that variant is probed before the plain key.
func (c *Cache) readTiers(ctx context.Context, key string) (tierRead, bool, bool) {
	if c.State() == StateConnected {
		payload, found, err := c.remote.Get(ctx, codec.CompressedKey(key))
		if err == nil && found {
			return tierRead{payload: payload, source: types.SourceRemote}, true, true
		}
		if err == nil {
			payload, found, err = c.remote.Get(ctx, key)
			if err == nil && found {
				return tierRead{payload: payload, source: types.SourceRemote}, false, true
			}
		}
		if err != nil {
			c.remote.MarkError(err)
			c.logger.Warn("Remote read failed, falling back to memory", map[string]interface{}{
				"key":   key,
				"error": err.Error(),
			})
		}
	}

	payload, compressed, ok := c.store.Get(key)
	if !ok {
		return tierRead{}, false, false
	}
	return tierRead{payload: payload, source: types.SourceMemory}, compressed, true
}

// Delete removes a key from both tiers regardless of the current state,
// since the key may have been written before a state transition. The result
// reports Deleted true when either tier held the key.
func (c *Cache) Delete(ctx context.Context, key string) types.Result {
	start := time.Now()

	result := types.Result{Success: true, Source: types.SourceNone}

	if c.remote != nil {
		n, err := c.remote.Del(ctx, codec.CompressedKey(key), key)
		if err != nil {
			c.remote.MarkError(err)
			c.logger.Warn("Remote delete failed", map[string]interface{}{
				"key":   key,
				"error": err.Error(),
			})
			result.Err = err
		} else if n > 0 {
			result.Deleted = true
			result.Source = types.SourceRemote
		}
	}

	if c.store.Delete(key) {
		result.Deleted = true
		if result.Source == types.SourceNone {
			result.Source = types.SourceMemory
		}
	}

	return c.finish("delete", start, result)
}

// Stats merges the remote store's own introspection with local operation
// counters, fallback store occupancy, and batching activity.
func (c *Cache) Stats(ctx context.Context) types.CacheStats {
	stats := types.CacheStats{
		State:      c.State().String(),
		Operations: c.tracker.Snapshot(),
		Fallback:   c.store.Stats(),
		Uptime:     c.tracker.Uptime(),
	}

	if c.writer != nil {
		stats.Batching = c.writer.Stats()
	}

	if c.remote != nil && c.State() == StateConnected {
		remoteStats, err := c.remote.Stats(ctx)
		if err != nil {
			c.logger.Debug("Remote stats unavailable", map[string]interface{}{
				"error": err.Error(),
			})
		} else {
			stats.Remote = remoteStats
		}
	}

	c.collector.UpdateTierSize("memory", stats.Fallback.Size)
	return stats
}

// FlushPending forces the batching layer to commit queued writes now
func (c *Cache) FlushPending() {
	if c.writer != nil {
		c.writer.Flush()
	}
}

func (c *Cache) resolveTTL(key string, ttl ...time.Duration) time.Duration {
	if len(ttl) > 0 && ttl[0] > 0 {
		return ttl[0]
	}
	if ns, ok := keys.NamespaceOf(key); ok {
		return c.config.TTL.ForNamespace(ns.String())
	}
	return c.config.TTL.Default
}

// finish records the operation outcome and stamps the response time
func (c *Cache) finish(operation string, start time.Time, result types.Result) types.Result {
	result.ResponseTime = time.Since(start)
	c.tracker.RecordOperation(result.ResponseTime, result.Err == nil)
	c.collector.RecordOperation(operation, result.ResponseTime, result.Err == nil)
	if result.Err != nil {
		c.collector.RecordError(operation, string(errors.CodeOf(result.Err)))
	}
	return result
}

func (c *Cache) onRemoteState(s remote.State) {
	next := StateDegraded
	if s == remote.StateReady {
		next = StateConnected
	}

	c.mu.Lock()
	prev := c.state
	c.state = next
	c.mu.Unlock()

	if prev == next {
		return
	}

	c.collector.UpdateConnectionState(next == StateConnected)
	if next == StateDegraded {
		c.logger.Warn("Remote tier lost, serving from fallback store", map[string]interface{}{
			"remote_state": s.String(),
		})
	} else {
		c.logger.Info("Remote tier restored", map[string]interface{}{
			"remote_state": s.String(),
		})
	}
}

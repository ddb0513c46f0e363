// Package remote wraps the Redis client used as the primary cache tier. The
// wrapper surfaces connection-state changes through a subscription interface;
// reconnection backoff itself is left to go-redis.
package remote

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tiercache/tiercache/pkg/errors"
	"github.com/tiercache/tiercache/pkg/types"
	"github.com/tiercache/tiercache/pkg/utils"
)

// State represents the connection state of the remote store client
type State int

const (
	// StateConnecting indicates the initial connection attempt is in progress
	StateConnecting State = iota

	// StateReady indicates the remote store is usable
	StateReady

	// StateError indicates the remote store is unreachable
	StateError

	// StateClosed indicates the client was shut down and will not recover
	StateClosed

	// StateReconnecting indicates a health probe is retrying after an error
	StateReconnecting
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateError:
		return "error"
	case StateClosed:
		return "closed"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// Config represents remote store connection settings
type Config struct {
	URL          string
	ClusterNodes []string
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PingInterval time.Duration
	PingTimeout  time.Duration
}

// SetOp is one pending SET-with-TTL operation for a batched flush
type SetOp struct {
	Key   string
	TTL   time.Duration
	Value []byte
}

// Client wraps a single-node or clustered Redis connection with a periodic
// health probe and an observable connection state.
type Client struct {
	mu          sync.RWMutex
	config      Config
	client      redis.UniversalClient
	state       State
	lastError   error
	subscribers []func(State)
	clustered   bool

	stopCh  chan struct{}
	wg      sync.WaitGroup
	started bool

	logger *utils.StructuredLogger
}

// New creates a remote store client. Cluster mode is chosen when more than
// one node address is configured. The underlying connection is dialed on
// Connect, not here.
func New(config Config, logger *utils.StructuredLogger) (*Client, error) {
	if logger == nil {
		logger, _ = utils.NewStructuredLogger(nil)
	}
	if config.PingInterval <= 0 {
		config.PingInterval = 30 * time.Second
	}
	if config.PingTimeout <= 0 {
		config.PingTimeout = 2 * time.Second
	}

	c := &Client{
		config: config,
		state:  StateConnecting,
		logger: logger.WithComponent("remote"),
	}

	if len(config.ClusterNodes) > 1 {
		c.clustered = true
		c.client = redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:        config.ClusterNodes,
			DialTimeout:  config.DialTimeout,
			ReadTimeout:  config.ReadTimeout,
			WriteTimeout: config.WriteTimeout,
		})
		return c, nil
	}

	opts := &redis.Options{
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}

	switch {
	case config.URL != "":
		parsed, err := redis.ParseURL(config.URL)
		if err != nil {
			return nil, errors.NewError(errors.ErrCodeInvalidConfig, "invalid remote url").
				WithComponent("remote").
				WithCause(err)
		}
		parsed.DialTimeout = config.DialTimeout
		parsed.ReadTimeout = config.ReadTimeout
		parsed.WriteTimeout = config.WriteTimeout
		opts = parsed
	case len(config.ClusterNodes) == 1:
		opts.Addr = config.ClusterNodes[0]
	default:
		return nil, errors.NewError(errors.ErrCodeInvalidConfig, "no remote address configured").
			WithComponent("remote")
	}

	c.client = redis.NewClient(opts)
	return c, nil
}

// Clustered reports whether the client runs in cluster mode
func (c *Client) Clustered() bool {
	return c.clustered
}

// Connect verifies the remote store is reachable and starts the health probe
// loop. A failed initial ping leaves the client in the error state; the probe
// loop keeps retrying, so a later recovery still flips the state to ready.
func (c *Client) Connect(ctx context.Context) error {
	c.setState(StateConnecting)

	err := c.Ping(ctx)

	c.mu.Lock()
	if !c.started {
		c.started = true
		c.stopCh = make(chan struct{})
		c.wg.Add(1)
		go c.pingLoop()
	}
	c.mu.Unlock()

	if err != nil {
		c.setError(err)
		return errors.NewError(errors.ErrCodeConnectionFailed, "remote store unreachable").
			WithComponent("remote").
			WithCause(err)
	}

	c.setState(StateReady)
	return nil
}

// Close shuts down the client permanently
func (c *Client) Close() error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return nil
	}
	started := c.started
	c.started = false
	if started {
		close(c.stopCh)
	}
	c.mu.Unlock()

	if started {
		c.wg.Wait()
	}

	c.setState(StateClosed)
	return c.client.Close()
}

// State returns the current connection state
func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Ready reports whether remote operations are currently permitted
func (c *Client) Ready() bool {
	return c.State() == StateReady
}

// LastError returns the most recent connection error, if any
func (c *Client) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastError
}

// Subscribe registers a callback invoked on every state transition
func (c *Client) Subscribe(fn func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribers = append(c.subscribers, fn)
}

// MarkError records an operation failure observed by a caller and downgrades
// the connection state. Callers must not report redis.Nil here.
func (c *Client) MarkError(err error) {
	if err == nil {
		return
	}
	c.setError(err)
}

// SetEx writes a value with a TTL
func (c *Client) SetEx(ctx context.Context, key string, ttl time.Duration, value []byte) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

// Get reads a value. The second return is false when the key does not exist.
func (c *Client) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// Del removes keys and returns how many existed
func (c *Client) Del(ctx context.Context, keys ...string) (int64, error) {
	return c.client.Del(ctx, keys...).Result()
}

// TTL returns the remaining time-to-live of a key
func (c *Client) TTL(ctx context.Context, key string) (time.Duration, error) {
	return c.client.TTL(ctx, key).Result()
}

// Ping probes the remote store within the configured ping timeout
func (c *Client) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, c.config.PingTimeout)
	defer cancel()
	return c.client.Ping(pingCtx).Err()
}

// FlushSetEx executes a batch of SET-with-TTL operations as a single
// transactional pipeline round trip. On failure the whole batch failed.
func (c *Client) FlushSetEx(ctx context.Context, ops []SetOp) error {
	if len(ops) == 0 {
		return nil
	}

	pipe := c.client.TxPipeline()
	for _, op := range ops {
		pipe.Set(ctx, op.Key, op.Value, op.TTL)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return errors.NewError(errors.ErrCodeBatchFlush, "pipeline flush failed").
			WithComponent("remote").
			WithContext("ops", strconv.Itoa(len(ops))).
			WithCause(err)
	}
	return nil
}

// Stats queries the remote store's own introspection (INFO, DBSIZE)
func (c *Client) Stats(ctx context.Context) (types.RemoteStats, error) {
	stats := types.RemoteStats{Connected: c.Ready()}

	info, err := c.client.Info(ctx, "memory", "stats", "server").Result()
	if err != nil {
		return stats, err
	}
	parseInfo(info, &stats)

	if keys, err := c.client.DBSize(ctx).Result(); err == nil {
		stats.KeyCount = keys
	}

	return stats, nil
}

// parseInfo extracts the fields tiercache reports from an INFO response
func parseInfo(info string, stats *types.RemoteStats) {
	for _, line := range strings.Split(info, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		switch parts[0] {
		case "used_memory":
			if v, err := strconv.ParseInt(parts[1], 10, 64); err == nil {
				stats.UsedMemory = v
			}
		case "keyspace_hits":
			if v, err := strconv.ParseInt(parts[1], 10, 64); err == nil {
				stats.KeyspaceHits = v
			}
		case "keyspace_misses":
			if v, err := strconv.ParseInt(parts[1], 10, 64); err == nil {
				stats.KeyspaceMisses = v
			}
		case "redis_version":
			stats.Version = parts[1]
		}
	}
}

// setState transitions the state machine and notifies subscribers. Repeated
// transitions into the same state are suppressed.
func (c *Client) setState(next State) {
	c.mu.Lock()
	if c.state == next || c.state == StateClosed && next != StateClosed {
		c.mu.Unlock()
		return
	}
	prev := c.state
	c.state = next
	subscribers := make([]func(State), len(c.subscribers))
	copy(subscribers, c.subscribers)
	c.mu.Unlock()

	c.logger.Info("Connection state changed", map[string]interface{}{
		"from": prev.String(),
		"to":   next.String(),
	})

	for _, fn := range subscribers {
		fn(next)
	}
}

func (c *Client) setError(err error) {
	c.mu.Lock()
	c.lastError = err
	c.mu.Unlock()

	c.logger.Warn("Remote store error", map[string]interface{}{
		"error": err.Error(),
	})
	c.setState(StateError)
}

// pingLoop probes the remote store on a fixed interval, independent of
// traffic, so silent failures are detected even when no operation runs.
func (c *Client) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.probe()
		}
	}
}

func (c *Client) probe() {
	if c.State() == StateError {
		c.setState(StateReconnecting)
	}

	err := c.Ping(context.Background())
	if err != nil {
		c.setError(err)
		return
	}

	c.setState(StateReady)
}

// Package memstore implements the bounded in-process fallback store used when
// the remote store is unavailable.
package memstore

import (
	"sort"
	"sync"
	"time"

	"github.com/tiercache/tiercache/pkg/errors"
	"github.com/tiercache/tiercache/pkg/types"
	"github.com/tiercache/tiercache/pkg/utils"
)

// Store is a thread-safe key->value map with expiry and size-based eviction.
// Total tracked byte usage never exceeds the configured ceiling: a breaching
// insert first evicts the soonest-to-expire quarter of entries.
type Store struct {
	mu          sync.Mutex
	maxSize     int64
	currentSize int64
	entries     map[string]*entry

	sweepInterval time.Duration
	stopCh        chan struct{}
	wg            sync.WaitGroup
	started       bool

	logger *utils.StructuredLogger
	stats  types.StoreStats
}

// entry holds one cached value. The compressed flag travels with the payload
// so reads can hand the right hint to the codec.
type entry struct {
	data       []byte
	compressed bool
	expiresAt  time.Time
	size       int64
}

// Config represents fallback store limits
type Config struct {
	MaxSizeBytes  int64
	SweepInterval time.Duration
}

// New creates a fallback store. Call Start to run the background sweep.
func New(config Config, logger *utils.StructuredLogger) *Store {
	if config.MaxSizeBytes <= 0 {
		config.MaxSizeBytes = 64 * 1024 * 1024
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = time.Minute
	}
	if logger == nil {
		logger, _ = utils.NewStructuredLogger(nil)
	}

	return &Store{
		maxSize:       config.MaxSizeBytes,
		entries:       make(map[string]*entry),
		sweepInterval: config.SweepInterval,
		stopCh:        make(chan struct{}),
		logger:        logger.WithComponent("memstore"),
		stats: types.StoreStats{
			Capacity: config.MaxSizeBytes,
		},
	}
}

// Start launches the periodic expiry sweep
func (s *Store) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return errors.NewError(errors.ErrCodeAlreadyStarted, "sweep already running").
			WithComponent("memstore")
	}

	s.started = true
	s.stopCh = make(chan struct{})
	s.wg.Add(1)
	go s.sweepLoop()

	return nil
}

// Stop halts the sweep loop
func (s *Store) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
}

// Set stores a value with the given TTL, evicting older entries if the
// insert would breach the memory ceiling. An entry larger than the ceiling
// itself is rejected.
func (s *Store) Set(key string, data []byte, compressed bool, ttl time.Duration) error {
	size := int64(len(data))
	if size > s.maxSize {
		return errors.NewError(errors.ErrCodeEntryTooLarge, "entry exceeds fallback store ceiling").
			WithComponent("memstore").
			WithContext("key", key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Replacing an existing entry frees its share first. The old entry must
	// leave the map too, or the eviction loop below could pick it and
	// double-subtract its size.
	if _, exists := s.entries[key]; exists {
		s.removeLocked(key)
	}

	for s.currentSize+size > s.maxSize && len(s.entries) > 0 {
		s.evictExpiringQuarter()
	}

	s.entries[key] = &entry{
		data:       data,
		compressed: compressed,
		expiresAt:  time.Now().Add(ttl),
		size:       size,
	}
	s.currentSize += size

	return nil
}

// Get returns the stored value, or nil when the key is absent or expired.
// Expired entries are deleted lazily on access.
func (s *Store) Get(key string) ([]byte, bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.entries[key]
	if !exists {
		s.stats.Misses++
		return nil, false, false
	}

	if time.Now().After(e.expiresAt) {
		s.removeLocked(key)
		s.stats.Expired++
		s.stats.Misses++
		return nil, false, false
	}

	s.stats.Hits++
	data := make([]byte, len(e.data))
	copy(data, e.data)
	return data, e.compressed, true
}

// ExpiresAt returns the expiry time of a live entry, for introspection
func (s *Store) ExpiresAt(key string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.entries[key]
	if !exists || time.Now().After(e.expiresAt) {
		return time.Time{}, false
	}
	return e.expiresAt, true
}

// Delete removes an entry and reports whether one was removed
func (s *Store) Delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[key]; !exists {
		return false
	}
	s.removeLocked(key)
	return true
}

// Len returns the number of live entries
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Size returns the current tracked byte usage
func (s *Store) Size() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentSize
}

// Stats returns store statistics
func (s *Store) Stats() types.StoreStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := s.stats
	stats.Entries = len(s.entries)
	stats.Size = s.currentSize
	stats.Capacity = s.maxSize
	if s.maxSize > 0 {
		stats.Utilization = float64(s.currentSize) / float64(s.maxSize)
	}
	return stats
}

// Sweep deletes all expired entries immediately and returns how many were removed
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked()
}

// Clear removes all entries
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[string]*entry)
	s.currentSize = 0
}

// Internal helpers, all called with the lock held.

func (s *Store) removeLocked(key string) {
	e, exists := s.entries[key]
	if !exists {
		return
	}
	delete(s.entries, key)
	s.currentSize -= e.size
}

// evictExpiringQuarter removes the soonest-to-expire 25% of entries (rounded
// up). Expiry stands in for recency: entries with little TTL remaining are
// assumed least valuable, which avoids a separate access-order structure.
func (s *Store) evictExpiringQuarter() {
	if len(s.entries) == 0 {
		return
	}

	type candidate struct {
		key       string
		expiresAt time.Time
	}

	candidates := make([]candidate, 0, len(s.entries))
	for key, e := range s.entries {
		candidates = append(candidates, candidate{key: key, expiresAt: e.expiresAt})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].expiresAt.Before(candidates[j].expiresAt)
	})

	count := (len(candidates) + 3) / 4
	for i := 0; i < count; i++ {
		s.removeLocked(candidates[i].key)
		s.stats.Evictions++
	}

	s.logger.Debug("Evicted soonest-expiring entries", map[string]interface{}{
		"evicted":   count,
		"remaining": len(s.entries),
		"size":      s.currentSize,
	})
}

func (s *Store) sweepLocked() int {
	now := time.Now()
	var expiredKeys []string

	for key, e := range s.entries {
		if now.After(e.expiresAt) {
			expiredKeys = append(expiredKeys, key)
		}
	}

	for _, key := range expiredKeys {
		s.removeLocked(key)
		s.stats.Expired++
	}

	return len(expiredKeys)
}

func (s *Store) sweepLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			removed := s.Sweep()
			if removed > 0 {
				s.logger.Debug("Sweep removed expired entries", map[string]interface{}{
					"removed": removed,
				})
			}
		}
	}
}

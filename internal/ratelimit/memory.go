package ratelimit

import (
	"context"
	"hash/fnv"
	"sync"
	"time"
)

const shardCount = 64

// MemoryStore is the in-memory Store implementation. Keys are spread
// over a fixed array of mutex-guarded shards so concurrent requests
// for unrelated keys do not contend on a single lock. State lives in
// the process only: it is lost on restart and not shared across
// instances. Use the Redis store for multi-instance deployments.
type MemoryStore struct {
	shards [shardCount]*memoryShard

	retention time.Duration
	sweepT    *time.Ticker
	stopCh    chan struct{}
	stopOnce  sync.Once
}

type memoryShard struct {
	mu      sync.Mutex
	windows map[string]*windowEntry
	blocks  map[string]time.Time
}

type windowEntry struct {
	stamps  []time.Time
	touched time.Time
}

// MemoryStoreConfig holds tuning knobs for the in-memory store.
type MemoryStoreConfig struct {
	// SweepInterval is how often the background sweep removes idle
	// entries and expired blocks.
	SweepInterval time.Duration `yaml:"sweep_interval"`

	// Retention is how long an untouched key is kept before the sweep
	// drops it. Must exceed the largest configured rule window.
	Retention time.Duration `yaml:"retention"`
}

// DefaultMemoryStoreConfig returns production defaults.
func DefaultMemoryStoreConfig() MemoryStoreConfig {
	return MemoryStoreConfig{
		SweepInterval: time.Minute,
		Retention:     10 * time.Minute,
	}
}

// NewMemoryStore creates an in-memory store and starts its sweep
// goroutine. Call Stop when the store is no longer needed.
func NewMemoryStore(cfg MemoryStoreConfig) *MemoryStore {
	def := DefaultMemoryStoreConfig()
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = def.SweepInterval
	}
	if cfg.Retention <= 0 {
		cfg.Retention = def.Retention
	}

	s := &MemoryStore{
		retention: cfg.Retention,
		stopCh:    make(chan struct{}),
	}
	for i := range s.shards {
		s.shards[i] = &memoryShard{
			windows: make(map[string]*windowEntry),
			blocks:  make(map[string]time.Time),
		}
	}

	s.sweepT = time.NewTicker(cfg.SweepInterval)
	go s.sweepLoop()

	return s
}

func (s *MemoryStore) shard(key string) *memoryShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return s.shards[h.Sum32()%shardCount]
}

// Take implements Store. The shard lock is held across the whole
// check-and-record so concurrent callers can never over-admit.
func (s *MemoryStore) Take(_ context.Context, key string, now time.Time, limit int, window time.Duration) (Decision, error) {
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	var stamps []time.Time
	if e, ok := sh.windows[key]; ok {
		stamps = e.stamps
	}

	kept, dec := checkAndRecord(stamps, now, limit, window)
	if len(kept) == 0 {
		delete(sh.windows, key)
	} else {
		sh.windows[key] = &windowEntry{stamps: kept, touched: now}
	}
	return dec, nil
}

// IsBlocked implements Store. Expired blocks are removed on check.
func (s *MemoryStore) IsBlocked(_ context.Context, key string, now time.Time) (time.Time, bool, error) {
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	until, ok := sh.blocks[key]
	if !ok {
		return time.Time{}, false, nil
	}
	if !now.Before(until) {
		delete(sh.blocks, key)
		return time.Time{}, false, nil
	}
	return until, true, nil
}

// Block implements Store. Overwriting an existing entry extends the
// block from the latest violation.
func (s *MemoryStore) Block(_ context.Context, key string, until time.Time) error {
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	sh.blocks[key] = until
	return nil
}

// Unblock implements Store.
func (s *MemoryStore) Unblock(_ context.Context, key string) error {
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	delete(sh.blocks, key)
	return nil
}

func (s *MemoryStore) sweepLoop() {
	for {
		select {
		case <-s.sweepT.C:
			s.sweep(time.Now())
		case <-s.stopCh:
			s.sweepT.Stop()
			return
		}
	}
}

// sweep removes window entries that have not been touched within the
// retention period and blocks that have expired. Correctness does not
// depend on the sweep; it only bounds memory for keys seen once and
// never again.
func (s *MemoryStore) sweep(now time.Time) {
	cutoff := now.Add(-s.retention)
	for _, sh := range s.shards {
		sh.mu.Lock()
		for key, e := range sh.windows {
			if e.touched.Before(cutoff) {
				delete(sh.windows, key)
			}
		}
		for key, until := range sh.blocks {
			if !now.Before(until) {
				delete(sh.blocks, key)
			}
		}
		sh.mu.Unlock()
	}
}

// Stop halts the sweep goroutine. Idempotent.
func (s *MemoryStore) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

var _ Stoppable = (*MemoryStore)(nil)

// Package cache provides the in-memory artifact caches: a path-keyed
// LRU over loaded embedding artifacts with a configurable byte budget,
// and a collection-keyed cache that maps logical collections onto path
// cache entries through a resolver.
//
// Features:
//   - LRU eviction ordered by last access with O(1) touch
//   - Dual limits: max resident entries and max resident bytes
//   - Miss coalescing: concurrent requests for the same path trigger
//     exactly one load; all callers share the result
//   - Loads survive caller cancellation so the result is still
//     published for later requests
//   - Atomic hit/miss/eviction counters and point-in-time snapshots
//
// Usage:
//
//	pc := cache.NewPathCache(loadFn, cache.Options{
//		MaxEntries: 16,
//		MaxBytes:   2 << 30,
//	})
//	h, err := pc.GetOrLoad(ctx, "/data/vectors/glove.6B.100d.txt")
//	if err != nil {
//		return err
//	}
//	defer h.Close()
package cache

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/diachrony/wordvec/pkg/embedding"
	"github.com/diachrony/wordvec/pkg/metric"
)

// ErrOverLimit is returned when a loaded artifact is larger than the
// cache's entire byte budget and can never become resident.
var ErrOverLimit = errors.New("cache: artifact exceeds memory budget")

// LoadFunc loads an embedding artifact from a filesystem path. It is
// called at most once per concurrent set of requests for the same key.
type LoadFunc func(path string) (*embedding.Artifact, error)

// Options configures a PathCache.
type Options struct {
	// MaxEntries caps the number of resident artifacts. Zero or
	// negative means DefaultMaxEntries.
	MaxEntries int

	// MaxBytes caps the aggregate byte cost of resident artifacts.
	// Zero or negative means DefaultMaxBytes.
	MaxBytes int64

	// Logger receives eviction and load events. Nil means slog.Default.
	Logger *slog.Logger

	// Metrics receives cache instrumentation. Nil disables it.
	Metrics *metric.Metrics
}

const (
	// DefaultMaxEntries is the entry cap when Options.MaxEntries is unset.
	DefaultMaxEntries = 8

	// DefaultMaxBytes is the byte budget when Options.MaxBytes is unset (4 GiB).
	DefaultMaxBytes = 4 << 30
)

// Key reduces a filesystem path to its cache key: the base name of the
// file. Two paths with the same base name share one cache slot.
func Key(path string) string {
	return filepath.Base(path)
}

type pathEntry struct {
	key       string
	handle    *embedding.Handle
	elem      *list.Element
	byteCost  int64
	wordCount int
	loadedAt  time.Time
	lastUsed  time.Time
}

// PathCache is an LRU cache of embedding artifacts keyed by file base
// name. All methods are safe for concurrent use.
type PathCache struct {
	mu      sync.Mutex
	entries map[string]*pathEntry
	lru     *list.List // front = most recently used
	bytes   int64      // aggregate byte cost, guarded by mu

	loads singleflight.Group
	load  LoadFunc

	maxEntries int
	maxBytes   int64

	hits         atomic.Uint64
	misses       atomic.Uint64
	evictions    atomic.Uint64
	peakBytes    atomic.Int64
	lastEviction atomic.Int64 // unix nanos, 0 = never

	now     func() time.Time
	logger  *slog.Logger
	metrics *metric.Metrics
}

// NewPathCache creates a path cache that loads missing artifacts with fn.
func NewPathCache(fn LoadFunc, opts Options) *PathCache {
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultMaxEntries
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &PathCache{
		entries:    make(map[string]*pathEntry),
		lru:        list.New(),
		load:       fn,
		maxEntries: opts.MaxEntries,
		maxBytes:   opts.MaxBytes,
		now:        time.Now,
		logger:     logger,
		metrics:    opts.Metrics,
	}
}

// GetOrLoad returns a handle on the artifact for path, loading it on a
// miss. The returned handle is owned by the caller and must be closed.
// Concurrent misses for the same key are coalesced into a single load.
// If ctx is cancelled while waiting for a load started by another
// caller, GetOrLoad returns ctx.Err() but the load itself runs to
// completion and its result is cached.
func (c *PathCache) GetOrLoad(ctx context.Context, path string) (*embedding.Handle, error) {
	key := Key(path)

	if h := c.touch(key); h != nil {
		c.hits.Add(1)
		c.metrics.ObserveCacheHit()
		return h, nil
	}
	c.misses.Add(1)
	c.metrics.ObserveCacheMiss()

	// A freshly inserted entry can be evicted by a competing load of a
	// different key before we re-acquire it, so retry a bounded number
	// of times rather than assuming one round trip suffices.
	for attempt := 0; attempt < 3; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ch := c.loads.DoChan(key, func() (any, error) {
			return nil, c.loadAndInsert(path, key)
		})
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case res := <-ch:
			if res.Err != nil {
				return nil, res.Err
			}
		}
		if h := c.touch(key); h != nil {
			return h, nil
		}
	}
	return nil, fmt.Errorf("cache: entry for %q evicted repeatedly under load", key)
}

// touch returns an acquired handle for key and refreshes its LRU
// position, or nil if the key is not resident.
func (c *PathCache) touch(key string) *embedding.Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil
	}
	c.lru.MoveToFront(e.elem)
	e.lastUsed = c.now()
	return e.handle.Acquire()
}

// loadAndInsert runs inside the singleflight group: it evicts to make
// room, loads the artifact, and inserts it. It deliberately ignores
// caller contexts so a load outlives the request that triggered it.
func (c *PathCache) loadAndInsert(path, key string) error {
	// Another flight may have populated the entry between our miss and
	// the group admitting this call.
	c.mu.Lock()
	_, resident := c.entries[key]
	if !resident {
		// Evict ahead of the load using the file size as a cost
		// estimate so the budget is respected during the load itself.
		if fi, err := os.Stat(path); err == nil && fi.Mode().IsRegular() {
			c.evictForLocked(fi.Size())
		}
	}
	c.mu.Unlock()
	if resident {
		return nil
	}

	start := c.now()
	art, err := c.load(path)
	if err != nil {
		return err
	}
	cost := art.ByteCost()
	if cost > c.maxBytes {
		return fmt.Errorf("%w: %q needs %d bytes, budget is %d", ErrOverLimit, key, cost, c.maxBytes)
	}

	c.mu.Lock()
	if _, ok := c.entries[key]; ok {
		// Lost a race with a concurrent insert of the same key; keep
		// the resident artifact and drop ours.
		c.mu.Unlock()
		return nil
	}
	// Reconcile with the actual cost now that the artifact is in memory.
	c.evictForLocked(cost)
	e := &pathEntry{
		key:       key,
		handle:    embedding.NewHandle(art),
		byteCost:  cost,
		wordCount: art.Len(),
		loadedAt:  c.now(),
		lastUsed:  c.now(),
	}
	e.elem = c.lru.PushFront(e)
	c.entries[key] = e
	c.bytes += cost
	c.updatePeakLocked()
	bytes, entries := c.bytes, len(c.entries)
	c.mu.Unlock()

	c.metrics.ObserveLoad(c.now().Sub(start), bytes, entries)

	c.logger.Info("artifact loaded",
		"key", key,
		"path", path,
		"words", art.Len(),
		"dimensions", art.Dimensions(),
		"bytes", cost,
		"duration", c.now().Sub(start))
	return nil
}

// evictForLocked drops least-recently-used entries until an artifact of
// the given cost fits under both limits. Caller holds c.mu.
func (c *PathCache) evictForLocked(cost int64) {
	for c.lru.Len() > 0 &&
		(c.lru.Len() >= c.maxEntries || c.bytes+cost > c.maxBytes) {
		c.evictOldestLocked()
	}
}

func (c *PathCache) evictOldestLocked() {
	back := c.lru.Back()
	if back == nil {
		return
	}
	e := back.Value.(*pathEntry)
	c.lru.Remove(back)
	delete(c.entries, e.key)
	c.bytes -= e.byteCost
	c.evictions.Add(1)
	c.lastEviction.Store(c.now().UnixNano())
	// Releases the cache's reference only; handles held by in-flight
	// queries keep the artifact alive until they are closed.
	e.handle.Close()
	c.metrics.ObserveEviction(c.bytes, len(c.entries))
	c.logger.Info("artifact evicted",
		"key", e.key,
		"bytes", e.byteCost,
		"last_used", e.lastUsed)
}

func (c *PathCache) updatePeakLocked() {
	for {
		peak := c.peakBytes.Load()
		if c.bytes <= peak || c.peakBytes.CompareAndSwap(peak, c.bytes) {
			return
		}
	}
}

// artifactFor reports the resident artifact for key without acquiring a
// handle or refreshing the LRU position. Used by the collection cache
// for identity checks.
func (c *PathCache) artifactFor(key string) *embedding.Artifact {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil
	}
	return e.handle.Artifact()
}

// Len reports the number of resident artifacts.
func (c *PathCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Bytes reports the aggregate byte cost of resident artifacts.
func (c *PathCache) Bytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bytes
}

// Purge removes the entry for key if resident. It reports whether an
// entry was removed. Purged entries do not count as evictions.
func (c *PathCache) Purge(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return false
	}
	c.lru.Remove(e.elem)
	delete(c.entries, key)
	c.bytes -= e.byteCost
	e.handle.Close()
	return true
}

// Snapshot returns a point-in-time view of the cache contents and
// counters. Per-entry rows are ordered most recently used first.
func (c *PathCache) Snapshot() Stats {
	c.mu.Lock()
	entries := make([]EntryStats, 0, len(c.entries))
	for el := c.lru.Front(); el != nil; el = el.Next() {
		e := el.Value.(*pathEntry)
		entries = append(entries, EntryStats{
			Key:       e.key,
			WordCount: e.wordCount,
			Bytes:     e.byteCost,
			LoadedAt:  e.loadedAt,
			LastUsed:  e.lastUsed,
		})
	}
	bytes := c.bytes
	c.mu.Unlock()

	s := Stats{
		EntriesResident: len(entries),
		BytesResident:   bytes,
		BytesLimit:      c.maxBytes,
		EntryLimit:      c.maxEntries,
		Hits:            c.hits.Load(),
		Misses:          c.misses.Load(),
		Evictions:       c.evictions.Load(),
		PeakBytes:       c.peakBytes.Load(),
		Entries:         entries,
	}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRatio = float64(s.Hits) / float64(total)
	}
	if ns := c.lastEviction.Load(); ns > 0 {
		t := time.Unix(0, ns)
		s.LastEviction = &t
	}
	return s
}

// Stats is a point-in-time snapshot of path cache state.
type Stats struct {
	EntriesResident int          `json:"entries_resident"`
	BytesResident   int64        `json:"bytes_resident"`
	BytesLimit      int64        `json:"bytes_limit"`
	EntryLimit      int          `json:"entry_limit"`
	Hits            uint64       `json:"hits"`
	Misses          uint64       `json:"misses"`
	Evictions       uint64       `json:"evictions"`
	HitRatio        float64      `json:"hit_ratio"`
	PeakBytes       int64        `json:"peak_bytes"`
	LastEviction    *time.Time   `json:"last_eviction_time,omitempty"`
	Entries         []EntryStats `json:"path_entries"`
}

// EntryStats describes one resident artifact.
type EntryStats struct {
	Key       string    `json:"key"`
	WordCount int       `json:"word_count"`
	Bytes     int64     `json:"bytes"`
	LoadedAt  time.Time `json:"loaded_at"`
	LastUsed  time.Time `json:"last_used"`
}

package cache

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/diachrony/wordvec/pkg/embedding"
	"github.com/diachrony/wordvec/pkg/resolver"
)

// CollectionKey identifies a collection within a database.
type CollectionKey struct {
	DatabaseID int32  `json:"database_id"`
	Collection string `json:"collection"`
}

// collectionEntry remembers where a collection's artifact came from.
// The artifact pointer is an identity token, not a reference: it is
// never dereferenced for data and holds no handle, so it cannot pin an
// evicted artifact in memory.
type collectionEntry struct {
	path     string
	artifact *embedding.Artifact
}

// CollectionCache maps collections to path cache entries. A collection
// is resolved at most once while its mapping stays fresh; every access
// goes through the path cache so the artifact's LRU position tracks
// real usage.
//
// Collections that resolve to no embeddings produce no cache state and
// are re-resolved on each access.
type CollectionCache struct {
	mu      sync.RWMutex
	entries map[CollectionKey]*collectionEntry

	paths       *PathCache
	resolver    resolver.Resolver
	defaultPath string

	resolutions atomic.Uint64
	logger      *slog.Logger
}

// CollectionOptions configures a CollectionCache.
type CollectionOptions struct {
	// DefaultPath is the artifact used for collections that resolve to
	// the deployment default. Empty means default-kind collections
	// behave as if embeddings were disabled.
	DefaultPath string

	// Logger receives resolution and staleness events. Nil means
	// slog.Default.
	Logger *slog.Logger
}

// NewCollectionCache builds a collection cache over a path cache and a
// resolver.
func NewCollectionCache(paths *PathCache, r resolver.Resolver, opts CollectionOptions) *CollectionCache {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &CollectionCache{
		entries:     make(map[CollectionKey]*collectionEntry),
		paths:       paths,
		resolver:    r,
		defaultPath: opts.DefaultPath,
		logger:      logger,
	}
}

// Get returns a handle on the artifact backing the collection. The
// second return is false when the collection has no embeddings; the
// handle is nil in that case. The caller owns the returned handle.
func (c *CollectionCache) Get(ctx context.Context, key CollectionKey) (*embedding.Handle, bool, error) {
	c.mu.RLock()
	e := c.entries[key]
	c.mu.RUnlock()

	if e != nil {
		return c.refresh(ctx, key, e)
	}

	c.resolutions.Add(1)
	spec, err := c.resolver.Resolve(ctx, key.DatabaseID, key.Collection)
	if err != nil {
		return nil, false, err
	}

	var path string
	switch spec.Kind {
	case resolver.KindNone:
		return nil, false, nil
	case resolver.KindDefault:
		if c.defaultPath == "" {
			c.logger.Warn("collection resolved to default but no default artifact is configured",
				"database_id", key.DatabaseID,
				"collection", key.Collection)
			return nil, false, nil
		}
		path = c.defaultPath
	case resolver.KindCustom:
		path = spec.Path
	}

	h, err := c.paths.GetOrLoad(ctx, path)
	if err != nil {
		return nil, false, err
	}

	c.mu.Lock()
	c.entries[key] = &collectionEntry{path: path, artifact: h.Artifact()}
	c.mu.Unlock()

	c.logger.Info("collection bound",
		"database_id", key.DatabaseID,
		"collection", key.Collection,
		"key", Key(path),
		"kind", spec.Kind)
	return h, true, nil
}

// refresh serves an already-bound collection through the path cache,
// detecting and repairing staleness when the artifact was evicted and
// reloaded since the binding was recorded.
func (c *CollectionCache) refresh(ctx context.Context, key CollectionKey, e *collectionEntry) (*embedding.Handle, bool, error) {
	h, err := c.paths.GetOrLoad(ctx, e.path)
	if err != nil {
		return nil, false, err
	}
	if h.Artifact() != e.artifact {
		c.mu.Lock()
		if cur := c.entries[key]; cur == e {
			c.entries[key] = &collectionEntry{path: e.path, artifact: h.Artifact()}
		}
		c.mu.Unlock()
		c.logger.Debug("collection rebound after artifact reload",
			"database_id", key.DatabaseID,
			"collection", key.Collection,
			"key", Key(e.path))
	}
	return h, true, nil
}

// Invalidate drops the cached binding for a collection so the next
// access re-resolves it. Needed after a mapping changes.
func (c *CollectionCache) Invalidate(key CollectionKey) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Len reports the number of bound collections.
func (c *CollectionCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Resolutions reports how many resolver calls the cache has made.
func (c *CollectionCache) Resolutions() uint64 {
	return c.resolutions.Load()
}

package leyline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/sync/singleflight"
)

// Cache is the file cache orchestrating the content store, statistics and
// error handling. It provides cache-aside semantics: callers supply a
// loader that produces the authoritative bytes on a miss, and the cache
// degrades gracefully — a broken cache makes operations slower, never
// failed.
type Cache struct {
	root    string
	fs      afero.Fs
	nowFunc NowFunc
	logger  *slog.Logger
	store   *ContentStore
	stats   *Stats
	handler *ErrorHandler

	group singleflight.Group

	mu   sync.RWMutex
	keys map[uint64]string // logical key fingerprint -> content hash

	degraded atomic.Bool // set when the store cannot accept writes
}

// Option defines a function that configures a Cache.
type Option func(*Cache)

// Open creates a cache rooted at the given directory. The directory and
// its content store are created if they don't exist. The OS filesystem is
// used by default; override with WithFs for testing.
func Open(root string, options ...Option) (*Cache, error) {
	cache := &Cache{
		root:    root,
		fs:      afero.NewOsFs(),
		nowFunc: time.Now,
		logger:  slog.New(slog.DiscardHandler),
		keys:    make(map[uint64]string),
	}

	// Apply options
	for _, option := range options {
		option(cache)
	}

	if cache.handler == nil {
		cache.handler = NewErrorHandler(WithHandlerLogger(cache.logger))
	}
	if cache.stats == nil {
		cache.stats = NewStats()
	}
	cache.stats.now = cache.nowFunc

	store, err := newContentStore(cache.fs, root, cache.nowFunc, cache.logger)
	if err != nil {
		return nil, err
	}
	cache.store = store

	return cache, nil
}

// OpenTemp creates a temporary in-memory cache for testing.
func OpenTemp() *Cache {
	cache, err := Open("/leyline-cache", WithFs(afero.NewMemMapFs()))
	if err != nil {
		panic("failed to create temp cache: " + err.Error())
	}
	return cache
}

// Fetch returns the bytes for key using cache-aside semantics: on a hit
// the cached bytes are returned; on a miss the loader is invoked, the
// result is stored, and the bytes are returned regardless of whether the
// store succeeded. At most one loader invocation runs per key at a time;
// concurrent callers for the same missing key share the result.
func (c *Cache) Fetch(ctx context.Context, key string, loader func() ([]byte, error)) ([]byte, error) {
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		return c.fetch(ctx, key, loader)
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (c *Cache) fetch(ctx context.Context, key string, loader func() ([]byte, error)) ([]byte, error) {
	fp := keyFingerprint(key)

	c.mu.RLock()
	hash, known := c.keys[fp]
	c.mu.RUnlock()

	if known {
		data, err := c.getWithRetry(ctx, hash)
		if err == nil {
			c.stats.RecordHit()
			c.stats.AddBytesServed(int64(len(data)))
			return data, nil
		}
		if !errors.Is(err, ErrNotFound) {
			// A broken store must not break the read; fall through to the
			// loader. Unwritable stores additionally disable caching.
			c.noteStoreFailure(err, "get")
		}
		// Corrupted entries were self-healed to NotFound by the store;
		// the miss path below repopulates them.
	}

	c.stats.RecordMiss()
	data, err := loader()
	if err != nil {
		return nil, err
	}

	if !c.degraded.Load() {
		hash, perr := c.store.Put(data)
		if perr != nil {
			c.noteStoreFailure(perr, "put")
		} else {
			c.mu.Lock()
			c.keys[fp] = hash
			c.mu.Unlock()
		}
	}
	return data, nil
}

// getWithRetry reads a blob, retrying transient errors per the handler's
// policy. NotFound and corruption (self-healed to NotFound) return
// immediately.
func (c *Cache) getWithRetry(ctx context.Context, hash string) ([]byte, error) {
	var data []byte
	err := c.handler.Retry(ctx, "cache get", func() error {
		var getErr error
		data, getErr = c.store.Get(hash)
		return getErr
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// noteStoreFailure records a cache-layer failure and, for unwritable
// stores (disk full, permission), flips the cache into degraded mode:
// loads keep working uncached for the rest of the process.
func (c *Cache) noteStoreFailure(err error, op string) {
	category := c.handler.Classify(err)
	if category == CategoryDiskFull || category == CategoryPermission {
		if c.degraded.CompareAndSwap(false, true) {
			c.logger.Warn("cache disabled for this run",
				slog.String("op", op),
				slog.String("category", category.String()),
				slog.String("error", err.Error()),
				slog.String("suggestion", Suggestion(category)))
		}
		return
	}
	c.logger.Debug("cache operation failed",
		slog.String("op", op),
		slog.String("category", category.String()),
		slog.String("error", err.Error()))
}

// Put stores data directly in the content store and records the logical
// key association. Used by the sync engine, which already holds the
// authoritative bytes.
func (c *Cache) Put(key string, data []byte) (string, error) {
	hash, err := c.store.Put(data)
	if err != nil {
		return "", err
	}
	c.Seed(key, hash)
	return hash, nil
}

// Seed records a key -> content hash association without touching the
// store. Loading a sync manifest and seeding its entries lets later
// fetches hit blobs cached by previous runs.
func (c *Cache) Seed(key, hash string) {
	c.mu.Lock()
	c.keys[keyFingerprint(key)] = hash
	c.mu.Unlock()
}

// KnownHash returns the content hash recorded for key, if any.
func (c *Cache) KnownHash(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	hash, ok := c.keys[keyFingerprint(key)]
	return hash, ok
}

// Invalidate removes the association for key. Used when sync determines
// the remote content changed. The blob itself stays in the store; it is
// content-addressed and harmless, reclaimed by Evict.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	delete(c.keys, keyFingerprint(key))
	c.mu.Unlock()
}

// InvalidateAll drops every key association.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	c.keys = make(map[uint64]string)
	c.mu.Unlock()
}

// Evict runs content store maintenance. See ContentStore.Evict.
func (c *Cache) Evict(maxAge time.Duration, maxBytes int64) (int, error) {
	return c.store.Evict(maxAge, maxBytes)
}

// Degraded reports whether caching was disabled after an unwritable-store
// failure.
func (c *Cache) Degraded() bool {
	return c.degraded.Load()
}

// Store exposes the underlying content store.
func (c *Cache) Store() *ContentStore {
	return c.store
}

// Stats exposes the hit/miss counters.
func (c *Cache) Stats() *Stats {
	return c.stats
}

// Handler exposes the error handler, shared with the sync engine.
func (c *Cache) Handler() *ErrorHandler {
	return c.handler
}

// Root returns the cache root directory.
func (c *Cache) Root() string {
	return c.root
}

// Fs returns the filesystem the cache operates on.
func (c *Cache) Fs() afero.Fs {
	return c.fs
}

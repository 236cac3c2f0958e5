/*
Package leyline provides the local cache and synchronization core for the
leyline knowledge base: a content-addressed file cache, a sync-state
tracker and a metadata index for category discovery and free-text search.

# Overview

Remote documents are synchronized through an external git provider into a
local content-addressed store, a manifest records the last synced baseline,
and a derived metadata index answers discovery queries. The cache is
single-machine and filesystem-backed; there is no distributed coordination.

# Core Architecture

The cache root uses the following layout:

	~/.cache/leyline/            (or $LEYLINE_CACHE_DIR)
	├── content/
	│   └── [first 2 chars of hash]/
	│       └── [full hash]      # immutable SHA-256 addressed blobs
	├── manifest.json            # last sync: timestamp, categories, entries
	└── stats.json               # optional persisted counters

Blobs are written with a temp-then-rename protocol and verified on read:
a corrupted entry is deleted and reported as a miss rather than served,
so the store self-heals without transactional rollback logic.

# Key Features

  - Content-Addressed Storage: SHA-256 keyed blobs, idempotent writes
  - Cache-Aside Reads: loader-backed fetches that degrade gracefully when
    the cache is unusable
  - Atomic Sync Manifest: a crash mid-sync leaves the previous baseline
    intact and loadable
  - Derived Metadata Index: category listings, ranked search and
    "did you mean" suggestions, re-indexed incrementally after sync

# Basic Usage

Opening a cache and fetching through it:

	cache, err := leyline.Open(leyline.DefaultCacheDir())
	if err != nil {
	    log.Fatalf("failed to open cache: %v", err)
	}

	data, err := cache.Fetch(ctx, "tenets/simplicity.md", func() ([]byte, error) {
	    return os.ReadFile("docs/leyline/tenets/simplicity.md")
	})

Synchronizing against a git provider:

	engine := leyline.NewSyncEngine(cache, provider, "docs/leyline",
	    leyline.WithRef("v1.0.0"))
	report, err := engine.Sync(ctx, []string{"typescript"})

Discovery:

	meta := leyline.NewMetadataCache(cache, "docs/leyline")
	task := meta.Warm(ctx, nil)
	results := meta.Search("no-any", 10) // partial while warming
	_ = task.Wait()

# Error Handling

Lookups that simply miss return ErrNotFound; corruption unwraps to
ErrNotFound after self-healing. Filesystem failures carry typed wrappers
(PermissionError, DiskFullError) consumed by ErrorHandler, which decides
retry, fallback or abort. Only unrecoverable manifest-write failures are
fatal to a sync; every other cache failure degrades to direct, uncached
operation.
*/
package leyline

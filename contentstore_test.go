package leyline

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
)

func TestContentStoreRoundTrip(t *testing.T) {
	cache, _ := newTestCache(t)
	store := cache.Store()

	content := []byte("tenet: prefer simplicity over cleverness")
	hash, err := store.Put(content)
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if hash != HashBytes(content) {
		t.Fatalf("Put returned unexpected hash %s", hash)
	}

	got, err := store.Get(hash)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	assertBytesEqual(t, got, content, "Round-trip content")
}

func TestContentStorePutIdempotent(t *testing.T) {
	cache, memFs := newTestCache(t)
	store := cache.Store()

	content := []byte("identical content")
	first, err := store.Put(content)
	if err != nil {
		t.Fatalf("First Put failed: %v", err)
	}
	second, err := store.Put(content)
	if err != nil {
		t.Fatalf("Second Put failed: %v", err)
	}
	if first != second {
		t.Fatalf("Idempotent Put returned different hashes: %s vs %s", first, second)
	}

	// Exactly one blob must exist on disk.
	count := 0
	err = afero.Walk(memFs, store.contentDir(), func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			count++
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Walk failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("Expected exactly 1 stored blob, found %d", count)
	}
}

func TestContentStoreGetMissing(t *testing.T) {
	cache, _ := newTestCache(t)

	_, err := cache.Store().Get(HashBytes([]byte("never stored")))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
}

func TestContentStoreCorruptionSelfHeals(t *testing.T) {
	cache, memFs := newTestCache(t)
	store := cache.Store()

	content := []byte("original bytes")
	hash, err := store.Put(content)
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	// Mutate the blob on disk behind the store's back.
	blobPath := store.blobPath(hash)
	createTestFile(t, memFs, blobPath, []byte("tampered bytes"))

	_, err = store.Get(hash)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected corrupted entry to read as NotFound, got %v", err)
	}
	var corruption *CorruptionError
	if !errors.As(err, &corruption) {
		t.Fatalf("Expected CorruptionError, got %T: %v", err, err)
	}

	// The corrupted blob must be gone from disk.
	exists, _ := afero.Exists(memFs, blobPath)
	if exists {
		t.Fatal("Corrupted blob still present after failed Get")
	}

	// A fresh Put repopulates the same hash.
	if _, err := store.Put(content); err != nil {
		t.Fatalf("Repopulating Put failed: %v", err)
	}
	got, err := store.Get(hash)
	if err != nil {
		t.Fatalf("Get after repopulation failed: %v", err)
	}
	assertBytesEqual(t, got, content, "Repopulated content")
}

func TestContentStoreHas(t *testing.T) {
	cache, _ := newTestCache(t)
	store := cache.Store()

	hash, err := store.Put([]byte("present"))
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if !store.Has(hash) {
		t.Fatal("Expected Has to report stored blob")
	}
	if store.Has(HashBytes([]byte("absent"))) {
		t.Fatal("Expected Has to report missing blob as absent")
	}
}

func TestContentStoreEvictZeroByte(t *testing.T) {
	cache, memFs := newTestCache(t)
	store := cache.Store()

	if _, err := store.Put([]byte("keep me")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	// A zero-byte file is symptomatic of a disk-full interrupted write.
	stale := filepath.Join(store.contentDir(), "ab", "abcdef")
	createTestFile(t, memFs, stale, nil)

	removed, err := store.Evict(time.Hour, 0)
	if err != nil {
		t.Fatalf("Evict failed: %v", err)
	}
	if removed != 1 {
		t.Fatalf("Expected 1 eviction, got %d", removed)
	}
	if exists, _ := afero.Exists(memFs, stale); exists {
		t.Fatal("Zero-byte blob survived eviction")
	}
}

func TestContentStoreEvictSizeBound(t *testing.T) {
	// Real wall-clock time so blob mod times compare sanely with the cutoff.
	cache, err := Open("/cache", WithFs(afero.NewMemMapFs()))
	if err != nil {
		t.Fatalf("Failed to create cache: %v", err)
	}
	store := cache.Store()

	old := []byte("old blob that should be evicted when over budget")
	hash, putErr := store.Put(old)
	if putErr != nil {
		t.Fatalf("Put failed: %v", putErr)
	}

	// Everything in MemMapFs is "old" relative to a future cutoff; a tiny
	// size bound forces eviction of entries older than maxAge.
	removed, err := store.Evict(-time.Hour, 1)
	if err != nil {
		t.Fatalf("Evict failed: %v", err)
	}
	if removed == 0 {
		t.Fatal("Expected size-bound eviction to remove the old blob")
	}
	if store.Has(hash) {
		t.Fatal("Evicted blob still present")
	}
}

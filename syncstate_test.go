package leyline

import (
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"
)

func TestSyncStateFirstRun(t *testing.T) {
	cache, _ := newTestCache(t)

	_, err := NewSyncState(cache).Load()
	if !errors.Is(err, ErrNoManifest) {
		t.Fatalf("Expected ErrNoManifest on first run, got %v", err)
	}
}

func TestSyncStateRoundTrip(t *testing.T) {
	cache, _ := newTestCache(t)
	state := NewSyncState(cache)

	entries := map[string]string{
		"tenets/simplicity.md":          HashBytes([]byte("a")),
		"bindings/go/error-wrapping.md": HashBytes([]byte("b")),
	}
	saved, err := state.RecordSync([]string{"go"}, entries)
	if err != nil {
		t.Fatalf("RecordSync failed: %v", err)
	}
	if !saved.SyncedAt.Equal(fixedNowFunc()) {
		t.Fatalf("SyncedAt = %v, want %v", saved.SyncedAt, fixedNowFunc())
	}

	loaded, err := state.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if diff := cmp.Diff(saved, loaded); diff != "" {
		t.Fatalf("Manifest round-trip mismatch (-saved +loaded):\n%s", diff)
	}

	hash, ok := loaded.Hash("tenets/simplicity.md")
	if !ok || hash != entries["tenets/simplicity.md"] {
		t.Fatalf("Hash lookup = %q/%v, want tracked entry", hash, ok)
	}
	wantPaths := []string{"bindings/go/error-wrapping.md", "tenets/simplicity.md"}
	if diff := cmp.Diff(wantPaths, loaded.Paths()); diff != "" {
		t.Fatalf("Paths mismatch (-want +got):\n%s", diff)
	}
}

func TestSyncStateSortsCategories(t *testing.T) {
	cache, _ := newTestCache(t)

	m, err := NewSyncState(cache).RecordSync([]string{"rust", "go", "core"}, nil)
	if err != nil {
		t.Fatalf("RecordSync failed: %v", err)
	}
	if diff := cmp.Diff([]string{"core", "go", "rust"}, m.Categories); diff != "" {
		t.Fatalf("Categories not sorted (-want +got):\n%s", diff)
	}
}

func TestSyncStateOverwriteIsAtomic(t *testing.T) {
	cache, memFs := newTestCache(t)
	state := NewSyncState(cache)

	if _, err := state.RecordSync([]string{"go"}, map[string]string{"a.md": "h1"}); err != nil {
		t.Fatalf("First RecordSync failed: %v", err)
	}
	if _, err := state.RecordSync([]string{"go", "rust"}, map[string]string{"a.md": "h2"}); err != nil {
		t.Fatalf("Second RecordSync failed: %v", err)
	}

	loaded, err := state.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Entries["a.md"] != "h2" {
		t.Fatalf("Entry = %q, want overwritten hash h2", loaded.Entries["a.md"])
	}

	// The temp-then-rename protocol must not leave temp files behind.
	err = afero.Walk(memFs, cache.Root(), func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && strings.Contains(info.Name(), ".tmp-") {
			t.Fatalf("Leftover temp file: %s", path)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Walk failed: %v", err)
	}
}

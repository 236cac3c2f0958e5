package leyline

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/spf13/afero"
)

// manifestFileName is the persisted sync manifest at the cache root.
const manifestFileName = "manifest.json"

// Manifest is the persisted record of the last successful sync: when it
// ran, which categories were requested, and the content hash of every
// synced path. It is the baseline that status and diff compare against.
type Manifest struct {
	SyncedAt   time.Time         `json:"synced_at"`
	Categories []string          `json:"categories"`
	Entries    map[string]string `json:"entries"` // relative path -> content hash
}

// Hash returns the recorded content hash for path, if tracked.
func (m *Manifest) Hash(path string) (string, bool) {
	hash, ok := m.Entries[path]
	return hash, ok
}

// Paths returns the tracked paths in sorted order.
func (m *Manifest) Paths() []string {
	paths := make([]string, 0, len(m.Entries))
	for p := range m.Entries {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// SyncState persists and loads the sync manifest. Saves are atomic
// (temp-then-rename): a manifest is never observed half-written, so a
// crash mid-sync leaves the previous manifest intact and authoritative.
//
// Concurrent CLI invocations writing the manifest are not coordinated
// beyond rename atomicity: the last writer wins. This is a documented
// limitation, not a silent one.
type SyncState struct {
	fs      afero.Fs
	path    string
	nowFunc NowFunc
	mu      sync.Mutex
}

// NewSyncState creates a SyncState storing its manifest at the cache root.
func NewSyncState(cache *Cache) *SyncState {
	return &SyncState{
		fs:      cache.fs,
		path:    filepath.Join(cache.root, manifestFileName),
		nowFunc: cache.nowFunc,
	}
}

// Load reads the persisted manifest. Returns ErrNoManifest on first run.
func (s *SyncState) Load() (*Manifest, error) {
	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoManifest
		}
		return nil, wrapFsError(s.path, fmt.Errorf("failed to read manifest: %w", err))
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal manifest: %w", err)
	}
	if m.Entries == nil {
		m.Entries = make(map[string]string)
	}
	return &m, nil
}

// Save atomically persists the manifest. The write is never partially
// visible; on failure the previous manifest remains in place.
func (s *SyncState) Save(m *Manifest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return &ManifestWriteError{Err: fmt.Errorf("failed to marshal manifest: %w", err)}
	}
	if err := writeFileAtomic(s.fs, s.path, data, 0o644); err != nil {
		return &ManifestWriteError{Err: err}
	}
	return nil
}

// RecordSync constructs a manifest with the current timestamp and saves
// it. Categories are stored sorted for deterministic output.
func (s *SyncState) RecordSync(categories []string, entries map[string]string) (*Manifest, error) {
	sorted := append([]string(nil), categories...)
	sort.Strings(sorted)

	m := &Manifest{
		SyncedAt:   s.nowFunc(),
		Categories: sorted,
		Entries:    entries,
	}
	if err := s.Save(m); err != nil {
		return nil, err
	}
	return m, nil
}

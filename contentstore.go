package leyline

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/afero"
)

// ContentStore is content-addressed blob storage: it maps the SHA-256
// hash of a byte sequence to a file on disk. Blobs are immutable; for a
// given hash the stored bytes never change. Writes use a temp-then-rename
// protocol so a crash never leaves a half-written blob visible under its
// final name, which makes the store crash-tolerant without transactional
// rollback logic.
type ContentStore struct {
	root   string
	fs     afero.Fs
	now    NowFunc
	logger *slog.Logger
}

// newContentStore creates the store rooted at root/content and ensures
// the directory exists.
func newContentStore(fs afero.Fs, root string, now NowFunc, logger *slog.Logger) (*ContentStore, error) {
	store := &ContentStore{
		root:   root,
		fs:     fs,
		now:    now,
		logger: logger,
	}
	if err := fs.MkdirAll(store.contentDir(), 0o755); err != nil {
		return nil, wrapFsError(store.contentDir(), fmt.Errorf("failed to create content directory: %w", err))
	}
	return store, nil
}

// contentDir returns the path to the blob directory.
func (s *ContentStore) contentDir() string {
	return filepath.Join(s.root, "content")
}

// blobPath returns the on-disk path for a content hash, sharded by the
// first two hex characters to keep directory fan-out bounded.
func (s *ContentStore) blobPath(hash string) string {
	if len(hash) < 2 {
		return filepath.Join(s.contentDir(), hash)
	}
	return filepath.Join(s.contentDir(), hash[:2], hash)
}

// Put stores data under its SHA-256 hash and returns the hash. Put is
// idempotent: if the blob already exists no rewrite occurs, since content
// addressing guarantees identical content.
func (s *ContentStore) Put(data []byte) (string, error) {
	hash := HashBytes(data)
	path := s.blobPath(hash)

	exists, err := afero.Exists(s.fs, path)
	if err != nil {
		return "", wrapFsError(path, fmt.Errorf("failed to check blob: %w", err))
	}
	if exists {
		return hash, nil
	}

	if err := writeFileAtomic(s.fs, path, data, 0o644); err != nil {
		return "", wrapFsError(path, err)
	}
	s.logger.Debug("stored blob", slog.String("hash", hash), slog.Int("size", len(data)))
	return hash, nil
}

// Get reads the blob for hash and verifies its integrity by recomputing
// the SHA-256 of the bytes read. On mismatch the entry is deleted from
// disk and a CorruptionError (which unwraps to ErrNotFound) is returned:
// the cache self-heals rather than serving bad data, and the next Put
// with correct content repopulates the entry.
func (s *ContentStore) Get(hash string) ([]byte, error) {
	path := s.blobPath(hash)
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, wrapFsError(path, fmt.Errorf("failed to read blob: %w", err))
	}

	if actual := HashBytes(data); actual != hash {
		s.logger.Warn("removing corrupted blob",
			slog.String("expected", hash),
			slog.String("actual", actual))
		if rmErr := s.fs.Remove(path); rmErr != nil {
			return nil, &CorruptionError{Hash: hash, Err: fmt.Errorf("failed to remove corrupted blob: %w", rmErr)}
		}
		return nil, &CorruptionError{Hash: hash}
	}
	return data, nil
}

// Has reports whether a blob exists for hash. This is a fast existence
// check without integrity verification, suitable for pre-flight decisions
// only; callers relying on correctness must still Get.
func (s *ContentStore) Has(hash string) bool {
	exists, err := afero.Exists(s.fs, s.blobPath(hash))
	return err == nil && exists
}

// Remove deletes the blob for hash if present.
func (s *ContentStore) Remove(hash string) error {
	path := s.blobPath(hash)
	if err := s.fs.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return wrapFsError(path, fmt.Errorf("failed to remove blob: %w", err))
	}
	return nil
}

// blobInfo describes one stored blob during maintenance walks.
type blobInfo struct {
	path    string
	size    int64
	modTime time.Time
}

// Evict performs periodic maintenance: zero-byte blobs (symptomatic of a
// disk-full interrupted write) are always removed, and when the store
// exceeds maxBytes, blobs older than maxAge are removed oldest-first
// until the store fits. Returns the number of blobs removed. A zero
// maxBytes disables the size bound.
func (s *ContentStore) Evict(maxAge time.Duration, maxBytes int64) (int, error) {
	var blobs []blobInfo
	var total int64

	err := afero.Walk(s.fs, s.contentDir(), func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		blobs = append(blobs, blobInfo{path: path, size: info.Size(), modTime: info.ModTime()})
		total += info.Size()
		return nil
	})
	if err != nil {
		return 0, wrapFsError(s.contentDir(), fmt.Errorf("failed to walk content directory: %w", err))
	}

	removed := 0
	for _, b := range blobs {
		if b.size != 0 {
			continue
		}
		if err := s.fs.Remove(b.path); err != nil {
			return removed, wrapFsError(b.path, fmt.Errorf("failed to remove zero-byte blob: %w", err))
		}
		removed++
	}

	if maxBytes <= 0 || total <= maxBytes {
		return removed, nil
	}

	cutoff := s.now().Add(-maxAge)
	sort.Slice(blobs, func(i, j int) bool { return blobs[i].modTime.Before(blobs[j].modTime) })
	for _, b := range blobs {
		if total <= maxBytes {
			break
		}
		if b.size == 0 || !b.modTime.Before(cutoff) {
			continue
		}
		if err := s.fs.Remove(b.path); err != nil {
			return removed, wrapFsError(b.path, fmt.Errorf("failed to evict blob: %w", err))
		}
		total -= b.size
		removed++
	}
	return removed, nil
}

// Size returns the total bytes stored.
func (s *ContentStore) Size() (int64, error) {
	var total int64
	err := afero.Walk(s.fs, s.contentDir(), func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	if err != nil {
		return 0, wrapFsError(s.contentDir(), err)
	}
	return total, nil
}

// wrapFsError converts raw filesystem errors into the typed taxonomy so
// callers can classify without inspecting errno values. Errors that do
// not match a known category pass through unchanged.
func wrapFsError(path string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, os.ErrPermission):
		return &PermissionError{Path: path, Err: err}
	case errors.Is(err, syscall.ENOSPC):
		return &DiskFullError{Path: path, Err: err}
	default:
		return err
	}
}

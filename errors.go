package leyline

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors
var (
	// ErrNotFound is returned when a content hash is not present in the store.
	ErrNotFound = errors.New("content not found")

	// ErrNoManifest is returned when no sync manifest has been recorded yet.
	ErrNoManifest = errors.New("no sync manifest recorded")
)

// CorruptionError indicates a stored blob failed integrity verification.
// The entry is removed from disk before this error is returned, so it
// unwraps to ErrNotFound: callers that only care about presence see a
// plain miss, while callers driving recovery policy can detect the
// corruption with errors.As.
type CorruptionError struct {
	Hash string
	Err  error
}

// Error implements the error interface.
func (e *CorruptionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("corrupted cache entry %s: %v", e.Hash, e.Err)
	}
	return fmt.Sprintf("corrupted cache entry %s: content hash mismatch", e.Hash)
}

// Unwrap returns ErrNotFound: a corrupted entry is treated as absent.
func (e *CorruptionError) Unwrap() error {
	return ErrNotFound
}

// PermissionError indicates the cache directory is not accessible.
type PermissionError struct {
	Path string
	Err  error
}

// Error implements the error interface.
func (e *PermissionError) Error() string {
	return fmt.Sprintf("permission denied accessing %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying filesystem error.
func (e *PermissionError) Unwrap() error { return e.Err }

// DiskFullError indicates a write failed because the device is out of space.
type DiskFullError struct {
	Path string
	Err  error
}

// Error implements the error interface.
func (e *DiskFullError) Error() string {
	return fmt.Sprintf("disk full writing %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying filesystem error.
func (e *DiskFullError) Unwrap() error { return e.Err }

// ManifestWriteError indicates the sync manifest could not be committed.
// Manifest writes are data-integrity-critical and never retried; the
// previous manifest remains authoritative.
type ManifestWriteError struct {
	Err error
}

// Error implements the error interface.
func (e *ManifestWriteError) Error() string {
	return fmt.Sprintf("failed to write sync manifest: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *ManifestWriteError) Unwrap() error { return e.Err }

// FileError records a single file that could not be fetched or populated
// during a sync. Individual file failures are collected, not fatal.
type FileError struct {
	Path string
	Err  error
}

// Error implements the error interface.
func (e *FileError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *FileError) Unwrap() error { return e.Err }

// SyncError wraps the failure of a sync attempt, carrying any per-file
// errors collected during population.
type SyncError struct {
	Phase   Phase
	Skipped []*FileError
	Err     error
}

// Error implements the error interface.
func (e *SyncError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "sync failed during %s", e.Phase)
	if e.Err != nil {
		fmt.Fprintf(&buf, ": %v", e.Err)
	}
	if len(e.Skipped) > 0 {
		fmt.Fprintf(&buf, " (%d files skipped)", len(e.Skipped))
	}
	return buf.String()
}

// Unwrap returns the underlying errors for use with errors.Is and errors.As.
func (e *SyncError) Unwrap() []error {
	errs := make([]error, 0, len(e.Skipped)+1)
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	for _, fe := range e.Skipped {
		errs = append(errs, fe)
	}
	return errs
}

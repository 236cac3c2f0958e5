package leyline

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

// DeltaStatus classifies a tracked path relative to the sync manifest.
type DeltaStatus int

// Delta statuses.
const (
	StatusUnmodified DeltaStatus = iota
	StatusModified
	StatusAdded
	StatusRemoved
)

// String implements fmt.Stringer.
func (s DeltaStatus) String() string {
	switch s {
	case StatusUnmodified:
		return "unmodified"
	case StatusModified:
		return "modified"
	case StatusAdded:
		return "added"
	case StatusRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Delta is the comparison result for one path. Derived, never persisted;
// recomputed on every status/diff invocation.
type Delta struct {
	Path         string
	Status       DeltaStatus
	LocalHash    string // hash of the working copy, empty when removed
	ManifestHash string // hash recorded at last sync, empty when added
}

// DeltaSummary aggregates delta counts for reporting.
type DeltaSummary struct {
	Unmodified int
	Modified   int
	Added      int
	Removed    int
}

// Total returns the number of classified paths.
func (s DeltaSummary) Total() int {
	return s.Unmodified + s.Modified + s.Added + s.Removed
}

// Comparator diffs a working tree against a sync manifest by content
// hash. Only markdown documents are tracked; editor droppings and build
// artifacts never show up as spurious additions.
type Comparator struct {
	fs afero.Fs
}

// NewComparator creates a comparator over the given filesystem.
func NewComparator(fs afero.Fs) *Comparator {
	return &Comparator{fs: fs}
}

// Diff classifies every path in the union of the working tree under root
// and the manifest entries: present only locally means added, only in the
// manifest means removed, both with differing hashes means modified, and
// both with equal hashes means unmodified. The result is sorted by path
// for deterministic output.
func (c *Comparator) Diff(root string, m *Manifest) ([]Delta, error) {
	current, err := c.hashTree(root)
	if err != nil {
		return nil, err
	}

	entries := map[string]string{}
	if m != nil {
		entries = m.Entries
	}

	seen := make(map[string]struct{}, len(current)+len(entries))
	deltas := make([]Delta, 0, len(current)+len(entries))

	for path, localHash := range current {
		seen[path] = struct{}{}
		manifestHash, tracked := entries[path]
		switch {
		case !tracked:
			deltas = append(deltas, Delta{Path: path, Status: StatusAdded, LocalHash: localHash})
		case manifestHash != localHash:
			deltas = append(deltas, Delta{Path: path, Status: StatusModified, LocalHash: localHash, ManifestHash: manifestHash})
		default:
			deltas = append(deltas, Delta{Path: path, Status: StatusUnmodified, LocalHash: localHash, ManifestHash: manifestHash})
		}
	}

	for path, manifestHash := range entries {
		if _, ok := seen[path]; ok {
			continue
		}
		deltas = append(deltas, Delta{Path: path, Status: StatusRemoved, ManifestHash: manifestHash})
	}

	sort.Slice(deltas, func(i, j int) bool { return deltas[i].Path < deltas[j].Path })
	return deltas, nil
}

// Summarize counts deltas by status.
func Summarize(deltas []Delta) DeltaSummary {
	var s DeltaSummary
	for _, d := range deltas {
		switch d.Status {
		case StatusUnmodified:
			s.Unmodified++
		case StatusModified:
			s.Modified++
		case StatusAdded:
			s.Added++
		case StatusRemoved:
			s.Removed++
		}
	}
	return s
}

// hashTree walks root and returns relative path -> SHA-256 hash for every
// tracked file. A missing root yields an empty tree, not an error: a
// fresh working directory simply has everything "removed".
func (c *Comparator) hashTree(root string) (map[string]string, error) {
	tree := make(map[string]string)

	exists, err := afero.DirExists(c.fs, root)
	if err != nil {
		return nil, wrapFsError(root, fmt.Errorf("failed to check working tree: %w", err))
	}
	if !exists {
		return tree, nil
	}

	err = afero.Walk(c.fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if !isTrackedFile(path) {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return fmt.Errorf("failed to relativize %s: %w", path, err)
		}

		file, err := c.fs.Open(path)
		if err != nil {
			return wrapFsError(path, fmt.Errorf("failed to open file: %w", err))
		}
		hash, err := hashReader(file)
		_ = file.Close()
		if err != nil {
			return fmt.Errorf("failed to hash %s: %w", path, err)
		}

		tree[filepath.ToSlash(rel)] = hash
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tree, nil
}

// isTrackedFile reports whether the comparator tracks this path.
func isTrackedFile(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	return strings.HasSuffix(base, ".md")
}

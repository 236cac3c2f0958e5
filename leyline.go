package leyline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
)

// NowFunc defines a function that returns the current time.
type NowFunc func() time.Time

// EnvCacheDir is the environment variable that overrides the default
// cache directory.
const EnvCacheDir = "LEYLINE_CACHE_DIR"

// DefaultCacheDir returns the cache root directory. The LEYLINE_CACHE_DIR
// environment variable takes precedence; otherwise the platform user cache
// directory is used, falling back to ".leyline-cache" in the working
// directory when no home is available.
func DefaultCacheDir() string {
	if dir := os.Getenv(EnvCacheDir); dir != "" {
		return dir
	}
	if base, err := os.UserCacheDir(); err == nil {
		return filepath.Join(base, "leyline")
	}
	return ".leyline-cache"
}

// writeFileAtomic writes data to path using a write-to-temp-then-rename
// protocol so a crash never leaves a half-written file visible under its
// final name. The parent directory is created if needed.
func writeFileAtomic(fs afero.Fs, path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := afero.TempFile(fs, dir, "."+filepath.Base(path)+".tmp-")
	if err != nil {
		return fmt.Errorf("failed to create temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = fs.Remove(tmpName)
		return fmt.Errorf("failed to write temp file %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		_ = fs.Remove(tmpName)
		return fmt.Errorf("failed to close temp file %s: %w", tmpName, err)
	}
	if err := fs.Chmod(tmpName, perm); err != nil {
		_ = fs.Remove(tmpName)
		return fmt.Errorf("failed to chmod temp file %s: %w", tmpName, err)
	}

	if err := fs.Rename(tmpName, path); err != nil {
		_ = fs.Remove(tmpName)
		return fmt.Errorf("failed to rename temp file to %s: %w", path, err)
	}
	return nil
}

// CategoryOf derives the category name from a document's repository path.
// Binding documents live under bindings/<category>/; tenets live under
// tenets/ and share the "tenets" pseudo-category. Anything else uses its
// first path element.
func CategoryOf(path string) string {
	parts := strings.Split(filepath.ToSlash(path), "/")
	if len(parts) >= 2 && parts[0] == "bindings" {
		return parts[1]
	}
	if len(parts) >= 1 && parts[0] != "" {
		return parts[0]
	}
	return ""
}

// SparsePaths maps requested category names to the repository paths a git
// provider should fetch. The tenets directory is always included because
// bindings derive from tenets.
func SparsePaths(categories []string) []string {
	paths := []string{"tenets/"}
	for _, cat := range categories {
		if cat == "" || cat == "tenets" {
			continue
		}
		paths = append(paths, "bindings/"+cat+"/")
	}
	return paths
}

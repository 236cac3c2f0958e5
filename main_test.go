package leyline

import (
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
)

func TestMain(t *testing.M) {
	code := t.Run()

	os.Exit(code)
}

func fixedNowFunc() time.Time {
	return time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
}

// newTestCache creates an in-memory cache for testing.
// It returns the cache and its filesystem.
func newTestCache(t *testing.T) (*Cache, afero.Fs) {
	t.Helper()

	memFs := afero.NewMemMapFs()
	cache, err := Open("/cache", WithFs(memFs), WithNowFunc(fixedNowFunc))
	if err != nil {
		t.Fatalf("Failed to create cache: %v", err)
	}
	return cache, memFs
}

// createTestFile creates a file with the given path and content in the filesystem.
func createTestFile(t *testing.T, fs afero.Fs, path string, content []byte) {
	t.Helper()

	if err := afero.WriteFile(fs, path, content, 0o644); err != nil {
		t.Fatalf("Failed to write file %s: %v", path, err)
	}
}

// docContent builds a markdown document with valid front-matter.
func docContent(id, title string, tags []string, body string) []byte {
	var buf strings.Builder
	buf.WriteString("---\n")
	fmt.Fprintf(&buf, "id: %s\n", id)
	buf.WriteString("version: 0.1.0\n")
	buf.WriteString("last_modified: '2026-05-20'\n")
	if len(tags) > 0 {
		fmt.Fprintf(&buf, "tags: [%s]\n", strings.Join(tags, ", "))
	}
	buf.WriteString("derived_from: simplicity\n")
	buf.WriteString("enforced_by: code review\n")
	buf.WriteString("---\n\n")
	fmt.Fprintf(&buf, "# %s\n\n", title)
	buf.WriteString(body)
	buf.WriteString("\n")
	return []byte(buf.String())
}

// assertBytesEqual asserts that two byte slices are equal.
func assertBytesEqual(t *testing.T, actual, expected []byte, context string) {
	t.Helper()

	if string(actual) != string(expected) {
		t.Fatalf("%s mismatch:\nExpected: %s\nActual: %s",
			context, string(expected), string(actual))
	}
}

package leyline

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"
)

func seedWorkTree(t *testing.T, fs afero.Fs) {
	t.Helper()

	createTestFile(t, fs, "/work/tenets/simplicity.md",
		docContent("simplicity", "Simplicity", []string{"core"}, "Prefer the simplest design that works."))
	createTestFile(t, fs, "/work/bindings/go/error-wrapping.md",
		docContent("error-wrapping", "Error Wrapping", []string{"go", "errors"}, "Wrap errors with context at package boundaries."))
	createTestFile(t, fs, "/work/bindings/go/no-panic.md",
		docContent("no-panic", "No Panic", []string{"go"}, "Return errors instead of panicking in library code."))
	createTestFile(t, fs, "/work/bindings/rust/ownership.md",
		docContent("ownership", "Ownership", []string{"rust"}, "Let the borrow checker carry the invariants."))
}

func newTestMetadata(t *testing.T) (*MetadataCache, afero.Fs) {
	t.Helper()

	cache, memFs := newTestCache(t)
	seedWorkTree(t, memFs)
	return NewMetadataCache(cache, "/work"), memFs
}

func TestMetadataWarm(t *testing.T) {
	meta, _ := newTestMetadata(t)

	if err := meta.Warm(context.Background(), nil).Wait(); err != nil {
		t.Fatalf("Warm failed: %v", err)
	}
	if meta.Len() != 4 {
		t.Fatalf("Len = %d, want 4", meta.Len())
	}
	if diff := cmp.Diff([]string{"go", "rust", "tenets"}, meta.Categories()); diff != "" {
		t.Fatalf("Categories mismatch (-want +got):\n%s", diff)
	}

	docs := meta.DocumentsIn("go")
	if len(docs) != 2 {
		t.Fatalf("DocumentsIn(go) = %d docs, want 2", len(docs))
	}
	if docs[0].Path != "bindings/go/error-wrapping.md" || docs[1].Path != "bindings/go/no-panic.md" {
		t.Fatalf("DocumentsIn(go) not sorted by path: %s, %s", docs[0].Path, docs[1].Path)
	}

	doc, ok := meta.Document("simplicity")
	if !ok || doc.Title != "Simplicity" || doc.Type != DocTenet {
		t.Fatalf("Document(simplicity) = %+v/%v", doc, ok)
	}
}

func TestMetadataWarmCategoryFilter(t *testing.T) {
	meta, _ := newTestMetadata(t)

	if err := meta.Warm(context.Background(), []string{"go"}).Wait(); err != nil {
		t.Fatalf("Warm failed: %v", err)
	}

	// Tenets are always warmed; the rust binding is filtered out.
	if meta.Len() != 3 {
		t.Fatalf("Len = %d, want 3 (tenets + go)", meta.Len())
	}
	if _, ok := meta.Document("ownership"); ok {
		t.Fatal("Filtered category was warmed anyway")
	}
	if _, ok := meta.Document("simplicity"); !ok {
		t.Fatal("Tenets must be warmed regardless of the category filter")
	}
}

func TestMetadataWarmSkipsMalformed(t *testing.T) {
	meta, memFs := newTestMetadata(t)
	createTestFile(t, memFs, "/work/tenets/broken.md", []byte("no front-matter at all\n"))

	if err := meta.Warm(context.Background(), nil).Wait(); err != nil {
		t.Fatalf("Warm must not fail on a malformed document: %v", err)
	}
	if meta.Len() != 4 {
		t.Fatalf("Len = %d, want 4 (malformed doc skipped)", meta.Len())
	}
}

func TestMetadataSearch(t *testing.T) {
	meta, _ := newTestMetadata(t)
	if err := meta.Warm(context.Background(), nil).Wait(); err != nil {
		t.Fatalf("Warm failed: %v", err)
	}

	results := meta.Search("simplest design", 5)
	if len(results) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(results))
	}
	if results[0].Document.ID != "simplicity" {
		t.Fatalf("Top result = %s, want simplicity", results[0].Document.ID)
	}
	if diff := cmp.Diff([]string{"design", "simplest"}, results[0].MatchedTerms); diff != "" {
		t.Fatalf("MatchedTerms mismatch (-want +got):\n%s", diff)
	}
}

func TestMetadataInvalidatePathReloads(t *testing.T) {
	meta, memFs := newTestMetadata(t)
	ctx := context.Background()
	if err := meta.Warm(ctx, nil).Wait(); err != nil {
		t.Fatalf("Warm failed: %v", err)
	}

	// Snapshot an unrelated document's postings before re-indexing.
	otherPath := "bindings/go/no-panic.md"
	before := make(map[string]fieldCounts)
	for _, tok := range meta.index.docTokens[otherPath] {
		before[tok] = meta.index.postings[tok][otherPath]
	}

	// Rewrite one document with new content.
	createTestFile(t, memFs, "/work/bindings/go/error-wrapping.md",
		docContent("error-wrapping", "Sentinel Errors", []string{"go"}, "Compare sentinel values with errors.Is at call sites."))

	if err := meta.InvalidatePath(ctx, "bindings/go/error-wrapping.md"); err != nil {
		t.Fatalf("InvalidatePath failed: %v", err)
	}

	doc, ok := meta.Document("error-wrapping")
	if !ok || doc.Title != "Sentinel Errors" {
		t.Fatalf("Document not re-derived: %+v/%v", doc, ok)
	}

	// New tokens are searchable, stale tokens are gone.
	if results := meta.Search("sentinel", 5); len(results) != 1 || results[0].Document.ID != "error-wrapping" {
		t.Fatalf("New content not indexed: %+v", results)
	}
	if results := meta.Search("boundaries", 5); len(results) != 0 {
		t.Fatalf("Stale postings survived re-index: %+v", results)
	}

	// Every other document's postings are untouched.
	after := make(map[string]fieldCounts)
	for _, tok := range meta.index.docTokens[otherPath] {
		after[tok] = meta.index.postings[tok][otherPath]
	}
	if diff := cmp.Diff(before, after); diff != "" {
		t.Fatalf("Unrelated postings changed by re-index (-before +after):\n%s", diff)
	}
	if results := meta.Search("panicking", 5); len(results) != 1 || results[0].Document.ID != "no-panic" {
		t.Fatalf("Unrelated postings damaged: %+v", results)
	}
}

func TestMetadataInvalidatePathRemoved(t *testing.T) {
	meta, memFs := newTestMetadata(t)
	ctx := context.Background()
	if err := meta.Warm(ctx, nil).Wait(); err != nil {
		t.Fatalf("Warm failed: %v", err)
	}

	if err := memFs.Remove("/work/bindings/rust/ownership.md"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if err := meta.InvalidatePath(ctx, "bindings/rust/ownership.md"); err != nil {
		t.Fatalf("InvalidatePath failed: %v", err)
	}

	if meta.Len() != 3 {
		t.Fatalf("Len = %d, want 3 after removal", meta.Len())
	}
	if _, ok := meta.Document("ownership"); ok {
		t.Fatal("Removed document still resolvable by ID")
	}
	if results := meta.Search("borrow", 5); len(results) != 0 {
		t.Fatalf("Removed document still searchable: %+v", results)
	}
}

func TestMetadataApplySyncReport(t *testing.T) {
	memFs := afero.NewMemMapFs()
	cache := fastCache(t, memFs)
	provider := &fakeProvider{files: testRemoteFiles()}
	engine := NewSyncEngine(cache, provider, "/work")
	ctx := context.Background()

	if _, err := engine.Sync(ctx, []string{"go"}); err != nil {
		t.Fatalf("First sync failed: %v", err)
	}

	meta := NewMetadataCache(cache, "/work")
	if err := meta.Warm(ctx, nil).Wait(); err != nil {
		t.Fatalf("Warm failed: %v", err)
	}

	// Upstream edits one document; the next sync reports it as changed.
	files := testRemoteFiles()
	files[0].Data = docContent("simplicity", "Radical Simplicity", []string{"core"}, "Cut scope before cutting corners.")
	provider.files = files

	report, err := engine.Sync(ctx, []string{"go"})
	if err != nil {
		t.Fatalf("Second sync failed: %v", err)
	}
	if err := meta.ApplySyncReport(ctx, report); err != nil {
		t.Fatalf("ApplySyncReport failed: %v", err)
	}

	doc, ok := meta.Document("simplicity")
	if !ok || doc.Title != "Radical Simplicity" {
		t.Fatalf("Changed document not re-derived: %+v/%v", doc, ok)
	}
	if meta.Len() != 3 {
		t.Fatalf("Len = %d, want 3", meta.Len())
	}
}

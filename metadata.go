package leyline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

// defaultWarmWorkers bounds the background warming pool.
const defaultWarmWorkers = 4

// MetadataCache is the secondary index over cached documents: category
// listings, free-text search and typo suggestions. Everything it holds is
// derived from document content read through the file cache and can be
// rebuilt at any time. Warming runs in the background; queries return
// whatever is indexed so far rather than blocking on a cold start.
type MetadataCache struct {
	cache   *Cache
	fs      afero.Fs
	root    string // working tree holding the synced documents
	workers int
	logger  *slog.Logger

	mu    sync.RWMutex
	docs  map[string]Document // by path
	byID  map[string]string   // id -> path
	index *searchIndex
}

// MetaOption configures a MetadataCache.
type MetaOption func(*MetadataCache)

// WithWarmWorkers bounds the warming worker pool.
func WithWarmWorkers(n int) MetaOption {
	return func(m *MetadataCache) {
		if n > 0 {
			m.workers = n
		}
	}
}

// WithMetaLogger sets the metadata cache's logger.
func WithMetaLogger(logger *slog.Logger) MetaOption {
	return func(m *MetadataCache) {
		m.logger = logger
	}
}

// NewMetadataCache creates a metadata cache over the documents under root.
func NewMetadataCache(cache *Cache, root string, options ...MetaOption) *MetadataCache {
	m := &MetadataCache{
		cache:   cache,
		fs:      cache.fs,
		root:    root,
		workers: defaultWarmWorkers,
		logger:  cache.logger,
		docs:    make(map[string]Document),
		byID:    make(map[string]string),
		index:   newSearchIndex(),
	}
	for _, option := range options {
		option(m)
	}
	return m
}

// WarmTask is the handle for a background warming run.
type WarmTask struct {
	done chan struct{}
	err  error
}

// Done returns a channel closed when warming finishes.
func (t *WarmTask) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until warming finishes and returns its error.
func (t *WarmTask) Wait() error {
	<-t.done
	return t.err
}

// Warm builds document metadata and search postings for the given
// categories in the background (all categories when empty). Queries
// issued while warming runs see partial results immediately.
func (m *MetadataCache) Warm(ctx context.Context, categories []string) *WarmTask {
	task := &WarmTask{done: make(chan struct{})}
	go func() {
		defer close(task.done)
		task.err = m.warm(ctx, categories)
	}()
	return task
}

func (m *MetadataCache) warm(ctx context.Context, categories []string) error {
	wanted := make(map[string]struct{}, len(categories))
	for _, cat := range categories {
		wanted[cat] = struct{}{}
	}

	paths, err := m.listDocuments(wanted)
	if err != nil {
		return err
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(m.workers)
	for _, path := range paths {
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			if err := m.loadDocument(groupCtx, path); err != nil {
				// Unparseable documents are skipped, not fatal to warming.
				m.logger.Warn("skipping document",
					slog.String("path", path),
					slog.String("error", err.Error()))
			}
			return nil
		})
	}
	return group.Wait()
}

// listDocuments walks the working tree and returns document paths in the
// wanted categories (all when the set is empty), sorted.
func (m *MetadataCache) listDocuments(wanted map[string]struct{}) ([]string, error) {
	var paths []string

	exists, err := afero.DirExists(m.fs, m.root)
	if err != nil {
		return nil, wrapFsError(m.root, err)
	}
	if !exists {
		return nil, nil
	}

	err = afero.Walk(m.fs, m.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !isTrackedFile(path) {
			return nil
		}
		rel, err := filepath.Rel(m.root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if len(wanted) > 0 {
			cat := CategoryOf(rel)
			if _, ok := wanted[cat]; !ok && cat != "tenets" {
				return nil
			}
		}
		paths = append(paths, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

// loadDocument reads one document through the file cache, derives its
// metadata and indexes its tokens.
func (m *MetadataCache) loadDocument(ctx context.Context, path string) error {
	full := filepath.Join(m.root, filepath.FromSlash(path))
	data, err := m.cache.Fetch(ctx, path, func() ([]byte, error) {
		return afero.ReadFile(m.fs, full)
	})
	if err != nil {
		return err
	}

	doc, err := ParseDocument(path, data)
	if err != nil {
		return err
	}
	_, body, err := splitFrontMatter(data)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[path] = doc
	m.byID[doc.ID] = path
	m.index.add(doc, body)
	return nil
}

// InvalidatePath re-derives metadata for exactly one document after its
// content hash changed. Other documents' index entries are untouched;
// sync never triggers a full rebuild. A path that no longer exists is
// dropped from the index.
func (m *MetadataCache) InvalidatePath(ctx context.Context, path string) error {
	m.cache.Invalidate(path)

	full := filepath.Join(m.root, filepath.FromSlash(path))
	exists, err := afero.Exists(m.fs, full)
	if err != nil {
		return wrapFsError(full, err)
	}
	if !exists {
		m.mu.Lock()
		defer m.mu.Unlock()
		if doc, ok := m.docs[path]; ok {
			delete(m.byID, doc.ID)
		}
		delete(m.docs, path)
		m.index.remove(path)
		return nil
	}
	return m.loadDocument(ctx, path)
}

// Categories returns the sorted category names currently indexed.
func (m *MetadataCache) Categories() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, doc := range m.docs {
		seen[doc.Category] = struct{}{}
	}
	categories := make([]string, 0, len(seen))
	for cat := range seen {
		categories = append(categories, cat)
	}
	sort.Strings(categories)
	return categories
}

// DocumentsIn returns the documents of a category, sorted by path.
func (m *MetadataCache) DocumentsIn(category string) []Document {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var docs []Document
	for _, doc := range m.docs {
		if doc.Category == category {
			docs = append(docs, doc)
		}
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Path < docs[j].Path })
	return docs
}

// Document looks up a document by its front-matter ID.
func (m *MetadataCache) Document(id string) (Document, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	path, ok := m.byID[id]
	if !ok {
		return Document{}, false
	}
	doc, ok := m.docs[path]
	return doc, ok
}

// Len returns the number of indexed documents.
func (m *MetadataCache) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}

// Search ranks indexed documents against query. See the scoring constants
// in search.go for the relevance function.
func (m *MetadataCache) Search(query string, limit int) []SearchResult {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ranked := m.index.search(query, limit)
	results := make([]SearchResult, 0, len(ranked))
	for _, r := range ranked {
		doc, ok := m.docs[r.path]
		if !ok {
			continue
		}
		results = append(results, SearchResult{
			Document:     doc,
			Score:        r.score,
			MatchedTerms: r.matched,
		})
	}
	return results
}

// Suggest proposes near-miss tokens for a query that returned no results.
func (m *MetadataCache) Suggest(query string, max int) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.index.suggest(query, max)
}

// ApplySyncReport invalidates the documents a sync changed so only they
// are re-derived and re-indexed.
func (m *MetadataCache) ApplySyncReport(ctx context.Context, report *Report) error {
	var errs []error
	for _, path := range report.Changed {
		if err := m.InvalidatePath(ctx, path); err != nil {
			errs = append(errs, fmt.Errorf("invalidate %s: %w", path, err))
		}
	}
	return errors.Join(errs...)
}

package leyline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Phase is the sync engine's position in its state machine:
// Idle -> Fetching -> Populating -> Finalizing -> Synced | Failed.
type Phase int

// Sync phases.
const (
	PhaseIdle Phase = iota
	PhaseFetching
	PhasePopulating
	PhaseFinalizing
	PhaseSynced
	PhaseFailed
)

// String implements fmt.Stringer.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseFetching:
		return "fetching"
	case PhasePopulating:
		return "populating"
	case PhaseFinalizing:
		return "finalizing"
	case PhaseSynced:
		return "synced"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// RemoteFile is one file returned by the git provider.
type RemoteFile struct {
	Path string // repository-relative path
	Data []byte
}

// Provider is the external git collaborator. The engine never implements
// git protocol itself; it asks the provider for a sparse, shallow fetch of
// the requested paths at a pinned ref.
type Provider interface {
	Fetch(ctx context.Context, ref string, sparsePaths []string) ([]RemoteFile, error)
}

// Report describes the outcome of one sync attempt.
type Report struct {
	Phase      Phase
	Ref        string
	Categories map[string]int // category -> synced file count
	Synced     int
	Skipped    []*FileError // individual files that failed and were skipped
	Changed    []string     // paths whose content hash differs from the previous manifest
	Duration   time.Duration
	Manifest   *Manifest // the committed manifest, nil when failed
}

// defaultSyncWorkers bounds the population worker pool.
const defaultSyncWorkers = 4

// SyncEngine orchestrates a sync: fetch the remote ref through the
// provider, populate the cache and working tree with the fetched blobs,
// then atomically commit a new manifest. Individual file failures are
// collected and skipped; a manifest commit failure fails the whole sync
// and leaves the old manifest authoritative.
type SyncEngine struct {
	cache     *Cache
	state     *SyncState
	provider  Provider
	targetDir string
	ref       string
	workers   int
	logger    *slog.Logger
	nowFunc   NowFunc
}

// SyncOption configures a SyncEngine.
type SyncOption func(*SyncEngine)

// WithRef pins the remote ref to sync. Defaults to "main".
func WithRef(ref string) SyncOption {
	return func(e *SyncEngine) {
		e.ref = ref
	}
}

// WithWorkers bounds the population worker pool.
func WithWorkers(n int) SyncOption {
	return func(e *SyncEngine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithSyncLogger sets the engine's logger.
func WithSyncLogger(logger *slog.Logger) SyncOption {
	return func(e *SyncEngine) {
		e.logger = logger
	}
}

// NewSyncEngine creates an engine writing working copies under targetDir.
func NewSyncEngine(cache *Cache, provider Provider, targetDir string, options ...SyncOption) *SyncEngine {
	engine := &SyncEngine{
		cache:     cache,
		state:     NewSyncState(cache),
		provider:  provider,
		targetDir: targetDir,
		ref:       "main",
		workers:   defaultSyncWorkers,
		logger:    cache.logger,
		nowFunc:   cache.nowFunc,
	}
	for _, option := range options {
		option(engine)
	}
	return engine
}

// State exposes the engine's sync state tracker.
func (e *SyncEngine) State() *SyncState {
	return e.state
}

// Sync fetches the requested categories, populates the cache and working
// tree, and commits a new manifest. On failure the returned report's
// Phase is PhaseFailed and the error is a *SyncError; the previous
// manifest is untouched.
func (e *SyncEngine) Sync(ctx context.Context, categories []string) (*Report, error) {
	start := e.nowFunc()
	report := &Report{Phase: PhaseIdle, Ref: e.ref, Categories: make(map[string]int)}

	previous, err := e.state.Load()
	if err != nil && !errors.Is(err, ErrNoManifest) {
		e.logger.Warn("ignoring unreadable previous manifest", slog.String("error", err.Error()))
	}

	// Fetching: delegated to the provider, retried per transient policy.
	report.Phase = PhaseFetching
	var files []RemoteFile
	fetchErr := e.cache.Handler().Retry(ctx, "git fetch", func() error {
		var ferr error
		files, ferr = e.provider.Fetch(ctx, e.ref, SparsePaths(categories))
		return ferr
	})
	if fetchErr != nil {
		report.Phase = PhaseFailed
		report.Duration = e.nowFunc().Sub(start)
		return report, &SyncError{Phase: PhaseFetching, Err: fetchErr}
	}
	e.logger.Debug("fetched remote files",
		slog.String("ref", e.ref),
		slog.Int("count", len(files)))

	// Populating: bounded worker pool, per-file failures retried once then
	// skipped and reported.
	report.Phase = PhasePopulating
	entries := make(map[string]string, len(files))
	var skipped []*FileError
	var mu sync.Mutex

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(e.workers)
	for _, file := range files {
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			hash, err := e.populate(file)
			if err != nil {
				hash, err = e.populate(file) // one retry per file
			}
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				skipped = append(skipped, &FileError{Path: file.Path, Err: err})
				return nil
			}
			entries[file.Path] = hash
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		report.Phase = PhaseFailed
		report.Duration = e.nowFunc().Sub(start)
		return report, &SyncError{Phase: PhasePopulating, Skipped: skipped, Err: err}
	}
	report.Skipped = skipped

	// Finalizing: every manifest entry must reference a blob that exists
	// in the cache, then the manifest is committed atomically. Commit
	// failures are never retried.
	report.Phase = PhaseFinalizing
	for path, hash := range entries {
		if !e.cache.Store().Has(hash) {
			report.Phase = PhaseFailed
			report.Duration = e.nowFunc().Sub(start)
			return report, &SyncError{
				Phase:   PhaseFinalizing,
				Skipped: skipped,
				Err:     fmt.Errorf("manifest entry %s references missing blob %s", path, hash),
			}
		}
	}
	manifest, err := e.state.RecordSync(categories, entries)
	if err != nil {
		report.Phase = PhaseFailed
		report.Duration = e.nowFunc().Sub(start)
		return report, &SyncError{Phase: PhaseFinalizing, Skipped: skipped, Err: err}
	}

	report.Phase = PhaseSynced
	report.Manifest = manifest
	report.Synced = len(entries)
	report.Changed = changedPaths(previous, entries)
	for path := range entries {
		report.Categories[CategoryOf(path)]++
	}
	report.Duration = e.nowFunc().Sub(start)
	e.logger.Info("sync complete",
		slog.Int("files", report.Synced),
		slog.Int("skipped", len(report.Skipped)),
		slog.Duration("duration", report.Duration))
	return report, nil
}

// populate stores one fetched file in the content store and materializes
// its working copy under the target directory.
func (e *SyncEngine) populate(file RemoteFile) (string, error) {
	hash, err := e.cache.Put(file.Path, file.Data)
	if err != nil {
		return "", err
	}
	dst := filepath.Join(e.targetDir, filepath.FromSlash(file.Path))
	if err := writeFileAtomic(e.cache.fs, dst, file.Data, 0o644); err != nil {
		return "", err
	}
	return hash, nil
}

// changedPaths returns the entries whose hash differs from (or is absent
// in) the previous manifest, sorted. Consumers use it to invalidate
// derived metadata for exactly the documents that changed.
func changedPaths(previous *Manifest, entries map[string]string) []string {
	var changed []string
	for path, hash := range entries {
		if previous == nil {
			changed = append(changed, path)
			continue
		}
		if old, ok := previous.Entries[path]; !ok || old != hash {
			changed = append(changed, path)
		}
	}
	sort.Strings(changed)
	return changed
}

package leyline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"syscall"
	"time"
)

// ErrorCategory classifies cache and filesystem errors for recovery policy.
type ErrorCategory int

// Error categories, from most to least recoverable.
const (
	CategoryTransient ErrorCategory = iota
	CategoryNotFound
	CategoryCorruption
	CategoryPermission
	CategoryDiskFull
	CategoryUnknown
)

// String implements fmt.Stringer.
func (c ErrorCategory) String() string {
	switch c {
	case CategoryTransient:
		return "transient"
	case CategoryNotFound:
		return "not-found"
	case CategoryCorruption:
		return "corruption"
	case CategoryPermission:
		return "permission"
	case CategoryDiskFull:
		return "disk-full"
	default:
		return "unknown"
	}
}

// ActionKind describes what the caller should do about an error.
type ActionKind int

// Action kinds.
const (
	// ActionRetry means the operation is safe to retry with backoff.
	ActionRetry ActionKind = iota
	// ActionFallback means the cache is unusable for this operation but the
	// caller can satisfy the request by reading the source directly.
	ActionFallback
	// ActionAbort means the failure is fatal and must surface to the user.
	ActionAbort
)

// Action is the recovery decision for a classified error.
type Action struct {
	Kind       ActionKind
	Attempts   int           // retry budget when Kind == ActionRetry
	Backoff    time.Duration // base backoff when Kind == ActionRetry
	Suggestion string        // actionable remediation text for the user
}

// ErrorHandler classifies errors and decides retry/fallback/abort policy.
// Cache failures must never prevent the underlying operation from
// succeeding via direct access, only make it slower; the handler encodes
// that degradation policy in one place.
type ErrorHandler struct {
	maxRetries  int
	baseBackoff time.Duration
	logger      *slog.Logger
}

// HandlerOption configures an ErrorHandler.
type HandlerOption func(*ErrorHandler)

// WithMaxRetries sets the retry budget for transient errors.
func WithMaxRetries(n int) HandlerOption {
	return func(h *ErrorHandler) {
		h.maxRetries = n
	}
}

// WithBaseBackoff sets the base delay for exponential backoff.
func WithBaseBackoff(d time.Duration) HandlerOption {
	return func(h *ErrorHandler) {
		h.baseBackoff = d
	}
}

// WithHandlerLogger sets the logger used for retry and degradation events.
func WithHandlerLogger(logger *slog.Logger) HandlerOption {
	return func(h *ErrorHandler) {
		h.logger = logger
	}
}

// NewErrorHandler creates an ErrorHandler with the default policy:
// 3 attempts with 100ms base exponential backoff for transient errors.
func NewErrorHandler(options ...HandlerOption) *ErrorHandler {
	h := &ErrorHandler{
		maxRetries:  3,
		baseBackoff: 100 * time.Millisecond,
		logger:      slog.New(slog.DiscardHandler),
	}
	for _, option := range options {
		option(h)
	}
	return h
}

// Classify maps an error to an ErrorCategory.
func (h *ErrorHandler) Classify(err error) ErrorCategory {
	if err == nil {
		return CategoryUnknown
	}

	var corruption *CorruptionError
	if errors.As(err, &corruption) {
		return CategoryCorruption
	}
	var diskFull *DiskFullError
	if errors.As(err, &diskFull) {
		return CategoryDiskFull
	}
	var permission *PermissionError
	if errors.As(err, &permission) {
		return CategoryPermission
	}

	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, os.ErrNotExist), errors.Is(err, fs.ErrNotExist):
		return CategoryNotFound
	case errors.Is(err, os.ErrPermission):
		return CategoryPermission
	case errors.Is(err, syscall.ENOSPC):
		return CategoryDiskFull
	case errors.Is(err, syscall.EAGAIN), errors.Is(err, syscall.EINTR), errors.Is(err, syscall.EBUSY):
		return CategoryTransient
	case isTimeout(err):
		return CategoryTransient
	default:
		return CategoryUnknown
	}
}

// Handle decides the recovery action for an error that occurred during op.
func (h *ErrorHandler) Handle(err error, op string) Action {
	category := h.Classify(err)
	h.logger.Debug("handling cache error",
		slog.String("op", op),
		slog.String("category", category.String()),
		slog.String("error", err.Error()))

	switch category {
	case CategoryTransient:
		return Action{Kind: ActionRetry, Attempts: h.maxRetries, Backoff: h.baseBackoff}
	case CategoryCorruption:
		// The store already deleted the corrupted entry; one reload through
		// the loader repopulates it. If that also fails the caller degrades
		// to an uncached read.
		return Action{Kind: ActionRetry, Attempts: 1, Backoff: 0}
	case CategoryNotFound:
		return Action{Kind: ActionFallback}
	case CategoryDiskFull:
		return Action{Kind: ActionAbort, Suggestion: Suggestion(category)}
	case CategoryPermission, CategoryUnknown:
		return Action{Kind: ActionAbort, Suggestion: Suggestion(category)}
	default:
		return Action{Kind: ActionAbort, Suggestion: Suggestion(category)}
	}
}

// Retry runs fn, retrying per the transient policy with exponential
// backoff. Non-transient errors are returned immediately.
func (h *ErrorHandler) Retry(ctx context.Context, op string, fn func() error) error {
	var err error
	backoff := h.baseBackoff
	for attempt := 1; attempt <= h.maxRetries; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if h.Classify(err) != CategoryTransient {
			return err
		}
		if attempt == h.maxRetries {
			break
		}
		h.logger.Debug("retrying after transient error",
			slog.String("op", op),
			slog.Int("attempt", attempt),
			slog.Duration("backoff", backoff),
			slog.String("error", err.Error()))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return fmt.Errorf("%s failed after %d attempts: %w", op, h.maxRetries, err)
}

// Suggestion returns actionable remediation text for an error category.
func Suggestion(category ErrorCategory) string {
	switch category {
	case CategoryPermission:
		return fmt.Sprintf("check permissions on the cache directory (%s) or point %s at a writable location", DefaultCacheDir(), EnvCacheDir)
	case CategoryDiskFull:
		return fmt.Sprintf("free disk space or point %s at a volume with room; the cache cannot be repaired automatically", EnvCacheDir)
	case CategoryCorruption:
		return "the corrupted entry was removed; re-run sync to repopulate it"
	case CategoryTransient:
		return "the operation was retried; if it keeps failing, check for other processes locking the cache directory"
	default:
		return fmt.Sprintf("re-run with --verbose for details, or clear the cache directory (%s)", DefaultCacheDir())
	}
}

// isTimeout reports whether err is a timeout from the net/fs layers.
func isTimeout(err error) bool {
	var timeout interface{ Timeout() bool }
	return errors.As(err, &timeout) && timeout.Timeout()
}

package leyline

import (
	"log/slog"

	"github.com/spf13/afero"
)

// WithFs sets a custom filesystem for the cache.
// This is primarily useful for testing with in-memory filesystems.
//
// Example:
//
//	cache, err := leyline.Open(".cache", leyline.WithFs(afero.NewMemMapFs()))
func WithFs(fs afero.Fs) Option {
	return func(c *Cache) {
		c.fs = fs
	}
}

// WithNowFunc sets a custom time function for the cache.
// This is primarily useful for testing with deterministic timestamps.
func WithNowFunc(nowFunc NowFunc) Option {
	return func(c *Cache) {
		c.nowFunc = nowFunc
	}
}

// WithLogger sets the logger used by the cache and its content store.
// The default logger discards everything.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

// WithErrorHandler sets a custom error handler, overriding the default
// retry/fallback policy.
func WithErrorHandler(handler *ErrorHandler) Option {
	return func(c *Cache) {
		c.handler = handler
	}
}

// WithStats sets a custom stats tracker, allowing counters to be shared
// across several caches in one process.
func WithStats(stats *Stats) Option {
	return func(c *Cache) {
		c.stats = stats
	}
}

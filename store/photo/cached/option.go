package cached

import (
	"log/slog"
	"time"
)

// Default configuration values.
const (
	DefaultMaxSize      = 256 << 20 // 256 MB of thumbnails
	DefaultMaxEntrySize = 1 << 20   // larger photos pass through uncached
	DefaultTTL          = 24 * time.Hour
)

// options holds cached store configuration.
type options struct {
	cacheDir     string
	maxSize      int64
	maxEntrySize int64
	ttl          time.Duration
	logger       *slog.Logger
}

// Option configures the cached store.
type Option func(*options)

// WithCacheDir sets the parent directory for cached files.
// Default is the system temp directory.
func WithCacheDir(dir string) Option {
	return func(o *options) {
		if dir != "" {
			o.cacheDir = dir
		}
	}
}

// WithMaxSize sets the total cache size in bytes. When the cache is full,
// new photos are not cached until old entries expire.
func WithMaxSize(size int64) Option {
	return func(o *options) {
		if size > 0 {
			o.maxSize = size
		}
	}
}

// WithMaxEntrySize sets the largest photo that is cached.
func WithMaxEntrySize(size int64) Option {
	return func(o *options) {
		if size > 0 {
			o.maxEntrySize = size
		}
	}
}

// WithTTL sets how long a cached photo stays valid.
// Zero disables expiry and the background cleanup.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl >= 0 {
			o.ttl = ttl
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

package rediscache

import (
	"log/slog"
	"time"
)

// Default configuration values.
const (
	DefaultKeyPrefix    = "chips:photo:"
	DefaultMaxEntrySize = 256 << 10 // thumbnails only; larger photos pass through
	DefaultTTL          = time.Hour
)

// options holds Redis cache configuration.
type options struct {
	keyPrefix    string
	maxEntrySize int64
	ttl          time.Duration
	logger       *slog.Logger
}

// Option configures the Redis-cached store.
type Option func(*options)

// WithKeyPrefix sets the prefix of cache keys.
func WithKeyPrefix(prefix string) Option {
	return func(o *options) {
		if prefix != "" {
			o.keyPrefix = prefix
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

// WithTTL sets the expiry of cached photos. Zero keeps them until evicted.
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

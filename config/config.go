// Package config loads chips service settings from the environment and
// assembles the photo store stack they describe.
//
// Every variable is prefixed with CHIPS_. Unset variables fall back to the
// same defaults the chips package uses, so an empty environment yields an
// in-memory photo store and a service with default limits.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rbaliyan/chips"
	"github.com/rbaliyan/chips/retry"
	"github.com/rbaliyan/chips/store"
	"github.com/rbaliyan/chips/store/memory"
	"github.com/rbaliyan/chips/store/photo/cached"
	"github.com/rbaliyan/chips/store/photo/gcs"
	photootel "github.com/rbaliyan/chips/store/photo/otel"
	"github.com/rbaliyan/chips/store/photo/rediscache"
	"github.com/rbaliyan/chips/store/photo/router"
	"github.com/rbaliyan/chips/store/photo/s3"
	"github.com/redis/go-redis/v9"
)

// Photo backends.
const (
	BackendMemory = "memory"
	BackendS3     = "s3"
	BackendGCS    = "gcs"
)

// Config holds the service settings.
type Config struct {
	ServiceName          string        `env:"CHIPS_SERVICE_NAME"           envDefault:"chips"`
	MaxSuggestions       int           `env:"CHIPS_MAX_SUGGESTIONS"        envDefault:"10"`
	MaxQueryLength       int           `env:"CHIPS_MAX_QUERY_LENGTH"       envDefault:"256"`
	FakeEntries          bool          `env:"CHIPS_FAKE_ENTRIES"           envDefault:"true"`
	MaxPhotoSize         int64         `env:"CHIPS_MAX_PHOTO_SIZE"         envDefault:"1048576"`
	MaxConcurrentFetches int           `env:"CHIPS_MAX_CONCURRENT_FETCHES" envDefault:"4"`
	FetchTimeout         time.Duration `env:"CHIPS_FETCH_TIMEOUT"          envDefault:"10s"`
	FetchMaxRetries      int           `env:"CHIPS_FETCH_MAX_RETRIES"      envDefault:"3"`
	ShutdownTimeout      time.Duration `env:"CHIPS_SHUTDOWN_TIMEOUT"       envDefault:"30s"`
	Tracing              bool          `env:"CHIPS_TRACING"                envDefault:"true"`
	Metrics              bool          `env:"CHIPS_METRICS"                envDefault:"true"`
	EventErrorsFatal     bool          `env:"CHIPS_EVENT_ERRORS_FATAL"     envDefault:"false"`
	RedisAddr            string        `env:"CHIPS_REDIS_ADDR"`

	Photo PhotoConfig `envPrefix:"CHIPS_PHOTO_"`
}

// PhotoConfig describes the photo store stack.
type PhotoConfig struct {
	Backend       string        `env:"BACKEND"         envDefault:"memory"`
	Bucket        string        `env:"BUCKET"`
	Prefix        string        `env:"PREFIX"          envDefault:"photos"`
	Region        string        `env:"REGION"`
	Endpoint      string        `env:"ENDPOINT"`
	PathStyle     bool          `env:"PATH_STYLE"`
	CacheDir      string        `env:"CACHE_DIR"`
	CacheTTL      time.Duration `env:"CACHE_TTL"       envDefault:"24h"`
	RedisCacheTTL time.Duration `env:"REDIS_CACHE_TTL" envDefault:"1h"`
}

// Load parses the environment and validates the result.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that defaults cannot repair.
func (c *Config) Validate() error {
	switch c.Photo.Backend {
	case BackendMemory:
	case BackendS3, BackendGCS:
		if c.Photo.Bucket == "" {
			return fmt.Errorf("config: CHIPS_PHOTO_BUCKET is required for the %s backend", c.Photo.Backend)
		}
	default:
		return fmt.Errorf("config: unknown photo backend %q", c.Photo.Backend)
	}
	if c.MaxSuggestions < 0 || c.MaxQueryLength < 0 || c.MaxConcurrentFetches < 0 {
		return errors.New("config: limits must not be negative")
	}
	return nil
}

// Options converts the settings to service options. Stores, resolvers and
// clients are passed separately.
func (c *Config) Options() []chips.Option {
	rc := retry.DefaultConfig()
	rc.MaxRetries = c.FetchMaxRetries

	return []chips.Option{
		chips.WithServiceName(c.ServiceName),
		chips.WithMaxSuggestions(c.MaxSuggestions),
		chips.WithMaxQueryLength(c.MaxQueryLength),
		chips.WithFakeEntries(c.FakeEntries),
		chips.WithMaxPhotoSize(c.MaxPhotoSize),
		chips.WithMaxConcurrentFetches(c.MaxConcurrentFetches),
		chips.WithFetchTimeout(c.FetchTimeout),
		chips.WithFetchRetry(rc),
		chips.WithShutdownTimeout(c.ShutdownTimeout),
		chips.WithTracing(c.Tracing),
		chips.WithMetrics(c.Metrics),
		chips.WithEventErrorsFatal(c.EventErrorsFatal),
	}
}

// RedisClient returns a client for CHIPS_REDIS_ADDR, or nil when unset.
// The caller owns the client.
func (c *Config) RedisClient() redis.UniversalClient {
	if c.RedisAddr == "" {
		return nil
	}
	return redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{c.RedisAddr}})
}

// PhotoStack is an assembled photo store and the resources it holds.
type PhotoStack struct {
	store.PhotoStore
	closers []func() error
}

// Close releases the stack's resources.
func (p *PhotoStack) Close() error {
	var errs []error
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewPhotoStore builds the configured backend and layers, from inside out:
// the Redis cache (when client is non-nil), the local file cache (when
// CHIPS_PHOTO_CACHE_DIR is set) and OpenTelemetry instrumentation. The
// result is routed by scheme so in-memory photos stay loadable next to the
// configured backend.
func (c *Config) NewPhotoStore(ctx context.Context, client redis.UniversalClient, logger *slog.Logger) (*PhotoStack, error) {
	if logger == nil {
		logger = slog.Default()
	}
	stack := &PhotoStack{}

	var (
		backend store.PhotoStore
		scheme  string
	)
	switch c.Photo.Backend {
	case BackendS3:
		opts := []s3.Option{
			s3.WithBucket(c.Photo.Bucket),
			s3.WithPrefix(c.Photo.Prefix),
			s3.WithRegion(c.Photo.Region),
			s3.WithLogger(logger),
		}
		if c.Photo.Endpoint != "" {
			opts = append(opts, s3.WithEndpoint(c.Photo.Endpoint, c.Photo.PathStyle))
		}
		s, err := s3.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("create s3 photo store: %w", err)
		}
		backend, scheme = s, s3.Scheme
	case BackendGCS:
		s, err := gcs.New(ctx,
			gcs.WithBucket(c.Photo.Bucket),
			gcs.WithPrefix(c.Photo.Prefix),
			gcs.WithEndpoint(c.Photo.Endpoint),
			gcs.WithLogger(logger),
		)
		if err != nil {
			return nil, fmt.Errorf("create gcs photo store: %w", err)
		}
		stack.closers = append(stack.closers, s.Close)
		backend, scheme = s, gcs.Scheme
	default:
		backend, scheme = memory.NewPhotoStore(), memory.Scheme
	}

	if client != nil {
		rc, err := rediscache.New(backend, client,
			rediscache.WithTTL(c.Photo.RedisCacheTTL),
			rediscache.WithMaxEntrySize(c.MaxPhotoSize),
			rediscache.WithLogger(logger),
		)
		if err != nil {
			stack.Close()
			return nil, err
		}
		backend = rc
	}

	if c.Photo.CacheDir != "" {
		cs, err := cached.New(backend,
			cached.WithCacheDir(c.Photo.CacheDir),
			cached.WithTTL(c.Photo.CacheTTL),
			cached.WithMaxEntrySize(c.MaxPhotoSize),
			cached.WithLogger(logger),
		)
		if err != nil {
			stack.Close()
			return nil, fmt.Errorf("create photo cache: %w", err)
		}
		stack.closers = append(stack.closers, cs.Close)
		backend = cs
	}

	if c.Tracing || c.Metrics {
		instrumented, err := photootel.New(backend,
			photootel.WithTracing(c.Tracing),
			photootel.WithMetrics(c.Metrics),
			photootel.WithServiceName(c.ServiceName),
		)
		if err != nil {
			stack.Close()
			return nil, fmt.Errorf("instrument photo store: %w", err)
		}
		backend = instrumented
	}

	r := router.New(scheme)
	if err := r.Register(scheme, backend); err != nil {
		stack.Close()
		return nil, err
	}
	if scheme != memory.Scheme {
		if err := r.Register(memory.Scheme, memory.NewPhotoStore()); err != nil {
			stack.Close()
			return nil, err
		}
	}
	stack.PhotoStore = r
	return stack, nil
}

// Package rediscache caches thumbnails from another photo store in Redis.
//
// It suits deployments where several chips processes share one photo
// backend: a thumbnail fetched by any process is served to the others from
// Redis until it expires. Cache failures are logged and never fail a load.
package rediscache

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/rbaliyan/chips/store"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/blake2b"
)

// Store wraps a PhotoStore with a Redis read-through cache.
type Store struct {
	backend store.PhotoStore
	client  redis.UniversalClient
	opts    *options
}

var _ store.PhotoStore = (*Store)(nil)

// New creates a Redis-cached store. The client is owned by the caller.
func New(backend store.PhotoStore, client redis.UniversalClient, opts ...Option) (*Store, error) {
	if backend == nil {
		return nil, errors.New("rediscache: backend is required")
	}
	if client == nil {
		return nil, errors.New("rediscache: redis client is required")
	}
	o := &options{
		keyPrefix:    DefaultKeyPrefix,
		maxEntrySize: DefaultMaxEntrySize,
		ttl:          DefaultTTL,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return &Store{backend: backend, client: client, opts: o}, nil
}

// Upload stores the photo in the backend. New URIs are never cached yet.
func (s *Store) Upload(ctx context.Context, filename, contentType string, content io.Reader) (string, error) {
	return s.backend.Upload(ctx, filename, contentType, content)
}

// Load serves the photo from Redis, falling back to the backend on a miss
// and filling the cache with the result.
func (s *Store) Load(ctx context.Context, uri string) (io.ReadCloser, error) {
	key := s.key(uri)

	data, err := s.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		s.opts.logger.Debug("photo redis cache hit", "uri", uri)
		return io.NopCloser(bytes.NewReader(data)), nil
	case !errors.Is(err, redis.Nil):
		s.opts.logger.Warn("photo redis cache read failed", "uri", uri, "error", err)
	}

	rc, err := s.backend.Load(ctx, uri)
	if err != nil {
		return nil, err
	}

	head, err := io.ReadAll(io.LimitReader(rc, s.opts.maxEntrySize+1))
	if err != nil {
		rc.Close()
		return nil, fmt.Errorf("read photo: %w", err)
	}
	if int64(len(head)) > s.opts.maxEntrySize {
		return struct {
			io.Reader
			io.Closer
		}{io.MultiReader(bytes.NewReader(head), rc), rc}, nil
	}
	rc.Close()

	if err := s.client.Set(ctx, key, head, s.opts.ttl).Err(); err != nil {
		s.opts.logger.Warn("photo redis cache write failed", "uri", uri, "error", err)
	}
	return io.NopCloser(bytes.NewReader(head)), nil
}

// Delete invalidates the cache entry and removes the photo from the backend.
func (s *Store) Delete(ctx context.Context, uri string) error {
	if err := s.client.Del(ctx, s.key(uri)).Err(); err != nil {
		s.opts.logger.Warn("photo redis cache invalidation failed", "uri", uri, "error", err)
	}
	return s.backend.Delete(ctx, uri)
}

// key hashes the URI so arbitrary URIs map to fixed-length keys.
func (s *Store) key(uri string) string {
	sum := blake2b.Sum256([]byte(uri))
	return s.opts.keyPrefix + hex.EncodeToString(sum[:])
}

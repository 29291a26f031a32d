// Package cached provides a local file cache in front of a photo store.
package cached

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rbaliyan/chips/store"
	"golang.org/x/sync/singleflight"
)

// Store wraps a PhotoStore with a directory of cached thumbnails.
// Photos are cached whole on first Load; uploads go straight to the backend.
type Store struct {
	backend      store.PhotoStore
	cacheDir     string
	maxSize      int64
	maxEntrySize int64
	ttl          time.Duration
	logger       *slog.Logger

	mu        sync.Mutex
	cacheSize int64

	// Concurrent misses for one photo share a single backend fetch.
	fetches singleflight.Group

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

var _ store.PhotoStore = (*Store)(nil)

// New creates a cached store wrapping backend.
// Call Close to stop the background cleanup.
func New(backend store.PhotoStore, opts ...Option) (*Store, error) {
	o := &options{
		cacheDir:     os.TempDir(),
		maxSize:      DefaultMaxSize,
		maxEntrySize: DefaultMaxEntrySize,
		ttl:          DefaultTTL,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}

	cacheDir := filepath.Join(o.cacheDir, "chips-photos")
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	s := &Store{
		backend:      backend,
		cacheDir:     cacheDir,
		maxSize:      o.maxSize,
		maxEntrySize: o.maxEntrySize,
		ttl:          o.ttl,
		logger:       o.logger,
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
	s.cacheSize = s.diskUsage()

	if s.ttl > 0 {
		go s.cleanupLoop()
	} else {
		close(s.done)
	}
	return s, nil
}

// Close stops the background cleanup. Cached files are kept.
func (s *Store) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
	return nil
}

// Upload stores the photo in the backend.
func (s *Store) Upload(ctx context.Context, filename, contentType string, content io.Reader) (string, error) {
	return s.backend.Upload(ctx, filename, contentType, content)
}

// Load serves the photo from the cache when fresh, otherwise from the
// backend, caching it on the way.
func (s *Store) Load(ctx context.Context, uri string) (io.ReadCloser, error) {
	cachePath := s.pathFor(uri)

	if info, err := os.Stat(cachePath); err == nil {
		if s.ttl == 0 || time.Since(info.ModTime()) < s.ttl {
			if data, err := os.ReadFile(cachePath); err == nil {
				s.logger.Debug("photo cache hit", "uri", uri)
				return io.NopCloser(bytes.NewReader(data)), nil
			}
		} else {
			s.remove(cachePath, info.Size())
		}
	}

	s.logger.Debug("photo cache miss", "uri", uri)

	// Only the goroutine that runs the fetch may stream an uncacheable photo.
	var own io.ReadCloser
	v, err, _ := s.fetches.Do(cachePath, func() (any, error) {
		rc, err := s.backend.Load(ctx, uri)
		if err != nil {
			return nil, err
		}
		head, err := io.ReadAll(io.LimitReader(rc, s.maxEntrySize+1))
		if err != nil {
			rc.Close()
			return nil, fmt.Errorf("read photo: %w", err)
		}
		if int64(len(head)) > s.maxEntrySize {
			// Too large to cache; hand back what was read followed by the rest.
			own = struct {
				io.Reader
				io.Closer
			}{io.MultiReader(bytes.NewReader(head), rc), rc}
			return nil, nil
		}
		rc.Close()
		s.put(cachePath, head)
		return head, nil
	})
	if err != nil {
		return nil, err
	}
	if own != nil {
		return own, nil
	}
	data, ok := v.([]byte)
	if !ok {
		// Another loader found the photo too large to cache.
		return s.backend.Load(ctx, uri)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Delete removes the photo from the cache and the backend.
func (s *Store) Delete(ctx context.Context, uri string) error {
	cachePath := s.pathFor(uri)
	if info, err := os.Stat(cachePath); err == nil {
		s.remove(cachePath, info.Size())
	}
	return s.backend.Delete(ctx, uri)
}

// ClearCache removes all cached files.
func (s *Store) ClearCache() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.cacheDir)
	if err != nil {
		return fmt.Errorf("read cache dir: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			_ = os.Remove(filepath.Join(s.cacheDir, entry.Name()))
		}
	}
	s.cacheSize = 0
	s.logger.Info("photo cache cleared")
	return nil
}

// Size returns the bytes currently accounted to the cache.
func (s *Store) Size() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cacheSize
}

func (s *Store) pathFor(uri string) string {
	h := sha256.Sum256([]byte(uri))
	return filepath.Join(s.cacheDir, hex.EncodeToString(h[:]))
}

// put writes data through a temp file and renames it into place, so readers
// never see a partial photo. A file replaced by the rename is subtracted from
// the accounted size.
func (s *Store) put(cachePath string, data []byte) {
	size := int64(len(data))

	s.mu.Lock()
	full := s.cacheSize+size > s.maxSize
	s.mu.Unlock()
	if full {
		s.logger.Debug("photo cache full, not caching", "size", size)
		return
	}

	tmp, err := os.CreateTemp(s.cacheDir, "tmp-*")
	if err == nil {
		_, err = tmp.Write(data)
		if closeErr := tmp.Close(); err == nil {
			err = closeErr
		}
		if err == nil {
			err = s.commit(tmp.Name(), cachePath, size)
		}
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}
	if errors.Is(err, errCacheFull) {
		s.logger.Debug("photo cache full, not caching", "size", size)
		return
	}
	if err != nil {
		s.logger.Warn("failed to cache photo", "error", err)
		return
	}
	s.logger.Debug("cached photo", "path", cachePath, "size", size)
}

var errCacheFull = errors.New("cache full")

// commit renames tmp over cachePath and updates the accounted size.
func (s *Store) commit(tmp, cachePath string, size int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var prev int64
	if info, err := os.Stat(cachePath); err == nil {
		prev = info.Size()
	}
	if s.cacheSize-prev+size > s.maxSize {
		return errCacheFull
	}
	if err := os.Rename(tmp, cachePath); err != nil {
		return err
	}
	s.cacheSize += size - prev
	return nil
}

func (s *Store) remove(path string, size int64) {
	if err := os.Remove(path); err == nil {
		s.addSize(-size)
	}
}

func (s *Store) addSize(delta int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cacheSize = max(s.cacheSize+delta, 0)
}

func (s *Store) diskUsage() int64 {
	entries, err := os.ReadDir(s.cacheDir)
	if err != nil {
		s.logger.Warn("failed to calculate cache size", "error", err)
		return 0
	}
	var size int64
	for _, entry := range entries {
		if info, err := entry.Info(); err == nil && !entry.IsDir() {
			size += info.Size()
		}
	}
	return size
}

func (s *Store) cleanupLoop() {
	defer close(s.done)
	ticker := time.NewTicker(s.ttl / 2)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.cleanupExpired()
		}
	}
}

// cleanupExpired removes entries older than the TTL.
func (s *Store) cleanupExpired() {
	entries, err := os.ReadDir(s.cacheDir)
	if err != nil {
		s.logger.Warn("failed to read cache dir for cleanup", "error", err)
		return
	}

	now := time.Now()
	var removed int
	var freed int64
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil || now.Sub(info.ModTime()) <= s.ttl {
			continue
		}
		if err := os.Remove(filepath.Join(s.cacheDir, entry.Name())); err == nil {
			removed++
			freed += info.Size()
		}
	}

	if removed > 0 {
		s.addSize(-freed)
		s.logger.Info("photo cache cleanup completed", "removed", removed, "freed_bytes", freed)
	}
}

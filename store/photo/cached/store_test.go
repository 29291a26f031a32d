package cached

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rbaliyan/chips/store"
	"github.com/rbaliyan/chips/store/memory"
)

// countingStore counts backend loads.
type countingStore struct {
	*memory.PhotoStore
	loads atomic.Int32
}

func (c *countingStore) Load(ctx context.Context, uri string) (io.ReadCloser, error) {
	c.loads.Add(1)
	return c.PhotoStore.Load(ctx, uri)
}

func newTestStore(t *testing.T, opts ...Option) (*Store, *countingStore) {
	t.Helper()
	backend := &countingStore{PhotoStore: memory.NewPhotoStore()}
	s, err := New(backend, append([]Option{WithCacheDir(t.TempDir())}, opts...)...)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, backend
}

func readAll(t *testing.T, rc io.ReadCloser) []byte {
	t.Helper()
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return data
}

func TestLoadCachesPhoto(t *testing.T) {
	ctx := context.Background()
	s, backend := newTestStore(t)

	uri, err := s.Upload(ctx, "jane.png", "image/png", strings.NewReader("thumbnail"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	for i := 0; i < 3; i++ {
		rc, err := s.Load(ctx, uri)
		if err != nil {
			t.Fatalf("load %d: %v", i, err)
		}
		if got := readAll(t, rc); string(got) != "thumbnail" {
			t.Errorf("load %d: got %q", i, got)
		}
	}
	if n := backend.loads.Load(); n != 1 {
		t.Errorf("expected 1 backend load, got %d", n)
	}
	if s.Size() != int64(len("thumbnail")) {
		t.Errorf("unexpected cache size %d", s.Size())
	}
}

func TestLoadPassesThroughLargePhotos(t *testing.T) {
	ctx := context.Background()
	s, backend := newTestStore(t, WithMaxEntrySize(4))

	payload := bytes.Repeat([]byte("x"), 10)
	uri, _ := s.Upload(ctx, "big.png", "image/png", bytes.NewReader(payload))

	for i := 0; i < 2; i++ {
		rc, err := s.Load(ctx, uri)
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if got := readAll(t, rc); !bytes.Equal(got, payload) {
			t.Errorf("expected full payload, got %d bytes", len(got))
		}
	}
	if n := backend.loads.Load(); n != 2 {
		t.Errorf("expected every load to hit the backend, got %d", n)
	}
	if s.Size() != 0 {
		t.Errorf("expected nothing cached, got %d bytes", s.Size())
	}
}

func TestCacheFull(t *testing.T) {
	ctx := context.Background()
	s, backend := newTestStore(t, WithMaxSize(5))

	uri, _ := s.Upload(ctx, "a.png", "image/png", strings.NewReader("123456"))
	for i := 0; i < 2; i++ {
		rc, err := s.Load(ctx, uri)
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		readAll(t, rc)
	}
	if n := backend.loads.Load(); n != 2 {
		t.Errorf("expected uncached loads when full, got %d", n)
	}
}

func TestExpiredEntriesReload(t *testing.T) {
	ctx := context.Background()
	s, backend := newTestStore(t, WithTTL(time.Hour))

	uri, _ := s.Upload(ctx, "a.png", "image/png", strings.NewReader("abc"))
	rc, _ := s.Load(ctx, uri)
	readAll(t, rc)

	old := time.Now().Add(-2 * time.Hour)
	if err := chtimes(s.pathFor(uri), old); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	rc, _ = s.Load(ctx, uri)
	readAll(t, rc)
	if n := backend.loads.Load(); n != 2 {
		t.Errorf("expected reload after expiry, got %d loads", n)
	}

	if err := chtimes(s.pathFor(uri), old); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	s.cleanupExpired()
	if s.Size() != 0 {
		t.Errorf("expected cleanup to free the entry, got %d bytes", s.Size())
	}
}

func TestDeleteAndClear(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	uri, _ := s.Upload(ctx, "a.png", "image/png", strings.NewReader("abc"))
	rc, _ := s.Load(ctx, uri)
	readAll(t, rc)

	if err := s.Delete(ctx, uri); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Load(ctx, uri); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}

	uri, _ = s.Upload(ctx, "b.png", "image/png", strings.NewReader("abc"))
	rc, _ = s.Load(ctx, uri)
	readAll(t, rc)
	if err := s.ClearCache(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if s.Size() != 0 {
		t.Errorf("expected empty cache, got %d", s.Size())
	}
}

// gatedStore holds every backend load until gate is closed.
type gatedStore struct {
	countingStore
	gate chan struct{}
}

func (g *gatedStore) Load(ctx context.Context, uri string) (io.ReadCloser, error) {
	select {
	case <-g.gate:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return g.countingStore.Load(ctx, uri)
}

func newGatedStore(t *testing.T, opts ...Option) (*Store, *gatedStore) {
	t.Helper()
	backend := &gatedStore{
		countingStore: countingStore{PhotoStore: memory.NewPhotoStore()},
		gate:          make(chan struct{}),
	}
	s, err := New(backend, append([]Option{WithCacheDir(t.TempDir())}, opts...)...)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, backend
}

// loadConcurrently runs n loads of uri that all miss the cache together.
func loadConcurrently(t *testing.T, s *Store, gate chan struct{}, uri string, n int) [][]byte {
	t.Helper()
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([][]byte, n)
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rc, err := s.Load(ctx, uri)
			if err != nil {
				errs <- err
				return
			}
			defer rc.Close()
			data, err := io.ReadAll(rc)
			if err != nil {
				errs <- err
				return
			}
			results[i] = data
		}(i)
	}

	time.Sleep(100 * time.Millisecond)
	close(gate)
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("load: %v", err)
	}
	return results
}

func TestConcurrentMissesAccountOnce(t *testing.T) {
	s, backend := newGatedStore(t)

	payload := bytes.Repeat([]byte("p"), 1000)
	uri, err := backend.Upload(context.Background(), "a.png", "image/png", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	for i, got := range loadConcurrently(t, s, backend.gate, uri, 8) {
		if !bytes.Equal(got, payload) {
			t.Errorf("loader %d: got %d bytes", i, len(got))
		}
	}

	if s.Size() != int64(len(payload)) {
		t.Errorf("expected %d bytes accounted, got %d", len(payload), s.Size())
	}
	if disk := s.diskUsage(); disk != s.Size() {
		t.Errorf("accounted %d bytes, %d on disk", s.Size(), disk)
	}
	if n := backend.loads.Load(); n >= 8 {
		t.Errorf("expected concurrent misses to share fetches, got %d loads", n)
	}
}

func TestConcurrentMissesOfLargePhoto(t *testing.T) {
	s, backend := newGatedStore(t, WithMaxEntrySize(4))

	payload := bytes.Repeat([]byte("x"), 10)
	uri, _ := backend.Upload(context.Background(), "big.png", "image/png", bytes.NewReader(payload))

	for i, got := range loadConcurrently(t, s, backend.gate, uri, 4) {
		if !bytes.Equal(got, payload) {
			t.Errorf("loader %d: got %q", i, got)
		}
	}
	if s.Size() != 0 {
		t.Errorf("expected nothing cached, got %d bytes", s.Size())
	}
}

func TestPutReplacesExistingFile(t *testing.T) {
	s, _ := newTestStore(t)
	path := s.pathFor("mem://photos/a.png")

	s.put(path, []byte("12345"))
	s.put(path, []byte("123"))

	if s.Size() != 3 {
		t.Errorf("expected 3 bytes accounted, got %d", s.Size())
	}
	if disk := s.diskUsage(); disk != 3 {
		t.Errorf("expected 3 bytes on disk, got %d", disk)
	}
}

func chtimes(path string, t time.Time) error {
	return os.Chtimes(path, t, t)
}

package rediscache

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rbaliyan/chips/store"
	"github.com/rbaliyan/chips/store/memory"
	"github.com/redis/go-redis/v9"
)

type countingStore struct {
	*memory.PhotoStore
	loads atomic.Int32
}

func (c *countingStore) Load(ctx context.Context, uri string) (io.ReadCloser, error) {
	c.loads.Add(1)
	return c.PhotoStore.Load(ctx, uri)
}

func newTestStore(t *testing.T, opts ...Option) (*Store, *countingStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	backend := &countingStore{PhotoStore: memory.NewPhotoStore()}
	s, err := New(backend, client, opts...)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return s, backend, mr
}

func load(t *testing.T, s *Store, uri string) []byte {
	t.Helper()
	rc, err := s.Load(context.Background(), uri)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return data
}

func TestReadThrough(t *testing.T) {
	s, backend, mr := newTestStore(t)
	uri, err := s.Upload(context.Background(), "jane.png", "image/png", strings.NewReader("thumbnail"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	for i := 0; i < 3; i++ {
		if got := load(t, s, uri); string(got) != "thumbnail" {
			t.Errorf("load %d: got %q", i, got)
		}
	}
	if n := backend.loads.Load(); n != 1 {
		t.Errorf("expected 1 backend load, got %d", n)
	}
	if !mr.Exists(s.key(uri)) {
		t.Error("expected cache key in redis")
	}
	if ttl := mr.TTL(s.key(uri)); ttl != DefaultTTL {
		t.Errorf("expected ttl %v, got %v", DefaultTTL, ttl)
	}
}

func TestExpiry(t *testing.T) {
	s, backend, mr := newTestStore(t, WithTTL(time.Minute))
	uri, _ := s.Upload(context.Background(), "a.png", "image/png", strings.NewReader("abc"))

	load(t, s, uri)
	mr.FastForward(2 * time.Minute)
	load(t, s, uri)

	if n := backend.loads.Load(); n != 2 {
		t.Errorf("expected reload after expiry, got %d loads", n)
	}
}

func TestLargePhotosPassThrough(t *testing.T) {
	s, backend, mr := newTestStore(t, WithMaxEntrySize(4))
	payload := bytes.Repeat([]byte("x"), 10)
	uri, _ := s.Upload(context.Background(), "big.png", "image/png", bytes.NewReader(payload))

	for i := 0; i < 2; i++ {
		if got := load(t, s, uri); !bytes.Equal(got, payload) {
			t.Errorf("expected full payload, got %d bytes", len(got))
		}
	}
	if n := backend.loads.Load(); n != 2 {
		t.Errorf("expected uncached loads, got %d", n)
	}
	if mr.Exists(s.key(uri)) {
		t.Error("large photo must not be cached")
	}
}

func TestDeleteInvalidates(t *testing.T) {
	ctx := context.Background()
	s, _, mr := newTestStore(t)
	uri, _ := s.Upload(ctx, "a.png", "image/png", strings.NewReader("abc"))
	load(t, s, uri)

	if err := s.Delete(ctx, uri); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if mr.Exists(s.key(uri)) {
		t.Error("expected cache entry removed")
	}
	if _, err := s.Load(ctx, uri); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRedisDownFallsBack(t *testing.T) {
	s, backend, mr := newTestStore(t)
	uri, _ := s.Upload(context.Background(), "a.png", "image/png", strings.NewReader("abc"))
	mr.Close()

	if got := load(t, s, uri); string(got) != "abc" {
		t.Errorf("expected backend content, got %q", got)
	}
	if n := backend.loads.Load(); n != 1 {
		t.Errorf("expected backend load, got %d", n)
	}
}

func TestKey(t *testing.T) {
	s, _, _ := newTestStore(t, WithKeyPrefix("p:"))
	a, b := s.key("s3://b/1.png"), s.key("s3://b/2.png")
	if a == b {
		t.Error("distinct URIs must map to distinct keys")
	}
	if !strings.HasPrefix(a, "p:") || len(a) != len("p:")+64 {
		t.Errorf("unexpected key %q", a)
	}
}

func TestNewRequiresArgs(t *testing.T) {
	if _, err := New(nil, redis.NewClient(&redis.Options{})); err == nil {
		t.Error("expected error without backend")
	}
	if _, err := New(memory.NewPhotoStore(), nil); err == nil {
		t.Error("expected error without client")
	}
}

package router

import (
	"context"
	"errors"
	"io"
	"slices"
	"strings"
	"testing"

	"github.com/rbaliyan/chips/store"
	"github.com/rbaliyan/chips/store/memory"
)

// legacyStore serves fixed photos under any scheme.
type legacyStore map[string]string

func (l legacyStore) Upload(context.Context, string, string, io.Reader) (string, error) {
	return "", errors.New("read-only")
}

func (l legacyStore) Load(_ context.Context, uri string) (io.ReadCloser, error) {
	data, ok := l[uri]
	if !ok {
		return nil, store.ErrNotFound
	}
	return io.NopCloser(strings.NewReader(data)), nil
}

func (l legacyStore) Delete(_ context.Context, uri string) error {
	if _, ok := l[uri]; !ok {
		return store.ErrNotFound
	}
	delete(l, uri)
	return nil
}

func TestRouting(t *testing.T) {
	ctx := context.Background()
	mem := memory.NewPhotoStore()
	other := legacyStore{"legacy://host/jane.png": "legacy"}

	r := New(memory.Scheme)
	if err := r.Register(memory.Scheme, mem); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Register("legacy", other); err != nil {
		t.Fatalf("register: %v", err)
	}
	if got := r.Schemes(); !slices.Equal(got, []string{"legacy", "mem"}) {
		t.Errorf("unexpected schemes %v", got)
	}

	uri, err := r.Upload(ctx, "a.png", "image/png", strings.NewReader("new"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if !strings.HasPrefix(uri, "mem://") {
		t.Errorf("expected upload to default store, got %q", uri)
	}
	if mem.Len() != 1 {
		t.Errorf("expected photo in default store")
	}

	t.Run("load from each scheme", func(t *testing.T) {
		for uri, want := range map[string]string{uri: "new", "legacy://host/jane.png": "legacy"} {
			rc, err := r.Load(ctx, uri)
			if err != nil {
				t.Fatalf("load %s: %v", uri, err)
			}
			data, _ := io.ReadAll(rc)
			rc.Close()
			if string(data) != want {
				t.Errorf("load %s: got %q", uri, data)
			}
		}
	})

	t.Run("delete routes by scheme", func(t *testing.T) {
		if err := r.Delete(ctx, "legacy://host/jane.png"); err != nil {
			t.Fatalf("delete: %v", err)
		}
		if len(other) != 0 || mem.Len() != 1 {
			t.Errorf("delete touched the wrong store")
		}
	})

	t.Run("unknown scheme", func(t *testing.T) {
		if _, err := r.Load(ctx, "ftp://host/a.png"); !errors.Is(err, store.ErrInvalidURI) {
			t.Errorf("expected ErrInvalidURI, got %v", err)
		}
		if err := r.Delete(ctx, "no scheme"); !errors.Is(err, store.ErrInvalidURI) {
			t.Errorf("expected ErrInvalidURI, got %v", err)
		}
	})
}

func TestUploadWithoutDefault(t *testing.T) {
	r := New("s3")
	if _, err := r.Upload(context.Background(), "a.png", "image/png", strings.NewReader("x")); err == nil {
		t.Error("expected error without default store")
	}
}

func TestRegisterValidation(t *testing.T) {
	r := New("mem")
	if err := r.Register("", memory.NewPhotoStore()); err == nil {
		t.Error("expected error for empty scheme")
	}
	if err := r.Register("mem", nil); err == nil {
		t.Error("expected error for nil store")
	}
}

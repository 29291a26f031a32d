package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"sync"

	"github.com/google/uuid"
	"github.com/rbaliyan/chips/store"
)

// Scheme is the URI scheme of photos held by PhotoStore.
const Scheme = "mem"

// PhotoStore implements store.PhotoStore in memory.
// URIs look like mem://<uuid>/<filename>.
type PhotoStore struct {
	mu     sync.RWMutex
	photos map[string][]byte
}

var _ store.PhotoStore = (*PhotoStore)(nil)

// NewPhotoStore creates an empty in-memory photo store.
func NewPhotoStore() *PhotoStore {
	return &PhotoStore{photos: make(map[string][]byte)}
}

// Upload stores the content under a fresh URI.
func (s *PhotoStore) Upload(ctx context.Context, filename, _ string, content io.Reader) (string, error) {
	data, err := io.ReadAll(content)
	if err != nil {
		return "", fmt.Errorf("read content: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name := path.Base(filename)
	if name == "." || name == "/" {
		name = "photo"
	}
	u := url.URL{Scheme: Scheme, Host: uuid.New().String(), Path: "/" + name}
	uri := u.String()

	s.mu.Lock()
	s.photos[uri] = data
	s.mu.Unlock()
	return uri, nil
}

// Put stores data under a caller-chosen URI.
func (s *PhotoStore) Put(uri string, data []byte) {
	s.mu.Lock()
	s.photos[uri] = bytes.Clone(data)
	s.mu.Unlock()
}

// Load returns a reader over a copy of the stored bytes.
func (s *PhotoStore) Load(ctx context.Context, uri string) (io.ReadCloser, error) {
	if err := checkURI(uri); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	data, ok := s.photos[uri]
	s.mu.RUnlock()
	if !ok {
		return nil, store.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(bytes.Clone(data))), nil
}

// Delete removes the photo.
func (s *PhotoStore) Delete(_ context.Context, uri string) error {
	if err := checkURI(uri); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.photos[uri]; !ok {
		return store.ErrNotFound
	}
	delete(s.photos, uri)
	return nil
}

// Len returns the number of stored photos.
func (s *PhotoStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.photos)
}

func checkURI(uri string) error {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme != Scheme {
		return fmt.Errorf("%w: %q", store.ErrInvalidURI, uri)
	}
	return nil
}

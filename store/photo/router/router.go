// Package router dispatches photo operations to stores by URI scheme.
//
// Contacts imported from different sources may reference thumbnails in
// several backends at once (s3://, gs://, mem://). A Router lets the service
// load any of them through one store.PhotoStore while new uploads go to a
// single default backend.
package router

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sort"
	"sync"

	"github.com/rbaliyan/chips/store"
)

// Router implements store.PhotoStore over a set of scheme-keyed stores.
type Router struct {
	mu       sync.RWMutex
	stores   map[string]store.PhotoStore
	defaultS string
}

var _ store.PhotoStore = (*Router)(nil)

// New creates a router that uploads to the store registered under
// defaultScheme.
func New(defaultScheme string) *Router {
	return &Router{
		stores:   make(map[string]store.PhotoStore),
		defaultS: defaultScheme,
	}
}

// Register binds a store to a URI scheme, replacing any previous binding.
func (r *Router) Register(scheme string, s store.PhotoStore) error {
	if scheme == "" {
		return errors.New("router: scheme is required")
	}
	if s == nil {
		return errors.New("router: store is required")
	}
	r.mu.Lock()
	r.stores[scheme] = s
	r.mu.Unlock()
	return nil
}

// Schemes returns the registered schemes in sorted order.
func (r *Router) Schemes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	schemes := make([]string, 0, len(r.stores))
	for scheme := range r.stores {
		schemes = append(schemes, scheme)
	}
	sort.Strings(schemes)
	return schemes
}

// Upload stores the photo in the default store.
func (r *Router) Upload(ctx context.Context, filename, contentType string, content io.Reader) (string, error) {
	r.mu.RLock()
	s, ok := r.stores[r.defaultS]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("router: no store for default scheme %q", r.defaultS)
	}
	return s.Upload(ctx, filename, contentType, content)
}

// Load reads the photo from the store owning the URI's scheme.
func (r *Router) Load(ctx context.Context, uri string) (io.ReadCloser, error) {
	s, err := r.route(uri)
	if err != nil {
		return nil, err
	}
	return s.Load(ctx, uri)
}

// Delete removes the photo from the store owning the URI's scheme.
func (r *Router) Delete(ctx context.Context, uri string) error {
	s, err := r.route(uri)
	if err != nil {
		return err
	}
	return s.Delete(ctx, uri)
}

func (r *Router) route(uri string) (store.PhotoStore, error) {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme == "" {
		return nil, fmt.Errorf("%w: %q", store.ErrInvalidURI, uri)
	}
	r.mu.RLock()
	s, ok := r.stores[u.Scheme]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: no store for scheme %q", store.ErrInvalidURI, u.Scheme)
	}
	return s, nil
}

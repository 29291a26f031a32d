// Package gcs provides a Google Cloud Storage photo store.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/auth/credentials"
	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"github.com/rbaliyan/chips/store"
	"google.golang.org/api/option"
)

// Scheme is the URI scheme of photos held in GCS.
const Scheme = "gs"

const cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// Store implements store.PhotoStore using Google Cloud Storage.
// URIs look like gs://<bucket>/<prefix>/<yyyy/mm/dd>/<uuid>/<filename>.
type Store struct {
	client *storage.Client
	bucket string
	prefix string
	logger *slog.Logger
}

var _ store.PhotoStore = (*Store)(nil)

// New creates a new GCS photo store.
func New(ctx context.Context, opts ...Option) (*Store, error) {
	o := newOptions(opts...)
	if o.bucket == "" {
		return nil, fmt.Errorf("gcs: bucket is required")
	}

	clientOpts, err := clientOptions(o)
	if err != nil {
		return nil, fmt.Errorf("build client options: %w", err)
	}

	client, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}

	return &Store{
		client: client,
		bucket: o.bucket,
		prefix: o.prefix,
		logger: o.logger,
	}, nil
}

func clientOptions(o *options) ([]option.ClientOption, error) {
	var opts []option.ClientOption

	var detect *credentials.DetectOptions
	switch {
	case o.credentialsJSON != nil:
		detect = &credentials.DetectOptions{Scopes: []string{cloudPlatformScope}, CredentialsJSON: o.credentialsJSON}
	case o.credentialsFile != "":
		detect = &credentials.DetectOptions{Scopes: []string{cloudPlatformScope}, CredentialsFile: o.credentialsFile}
	}
	if detect != nil {
		creds, err := credentials.DetectDefault(detect)
		if err != nil {
			return nil, fmt.Errorf("detect credentials: %w", err)
		}
		opts = append(opts, option.WithAuthCredentials(creds))
	}

	if o.endpoint != "" {
		opts = append(opts, option.WithEndpoint(o.endpoint))
	}
	return opts, nil
}

// Upload writes the photo under a fresh date-partitioned name.
func (s *Store) Upload(ctx context.Context, filename, contentType string, content io.Reader) (string, error) {
	key := newKey(s.prefix, filename, time.Now().UTC())

	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, content); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("copy content to gcs: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close gcs writer: %w", err)
	}

	s.logger.Debug("uploaded photo to gcs", "bucket", s.bucket, "key", key)
	return formatURI(s.bucket, key), nil
}

// Load returns a reader over the object.
func (s *Store) Load(ctx context.Context, uri string) (io.ReadCloser, error) {
	bucket, key, err := parseURI(uri)
	if err != nil {
		return nil, err
	}

	r, err := s.client.Bucket(bucket).Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("%w: %s", store.ErrNotFound, uri)
		}
		return nil, fmt.Errorf("create gcs reader: %w", err)
	}
	return r, nil
}

// Delete removes the object.
func (s *Store) Delete(ctx context.Context, uri string) error {
	bucket, key, err := parseURI(uri)
	if err != nil {
		return err
	}

	if err := s.client.Bucket(bucket).Object(key).Delete(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return store.ErrNotFound
		}
		return fmt.Errorf("delete object from gcs: %w", err)
	}

	s.logger.Debug("deleted photo from gcs", "bucket", bucket, "key", key)
	return nil
}

// Close closes the GCS client.
func (s *Store) Close() error {
	return s.client.Close()
}

func newKey(prefix, filename string, now time.Time) string {
	return path.Join(prefix, now.Format("2006/01/02"), uuid.New().String(), path.Base("/"+filename))
}

func formatURI(bucket, key string) string {
	u := url.URL{Scheme: Scheme, Host: bucket, Path: "/" + key}
	return u.String()
}

// parseURI splits gs://bucket/object.
func parseURI(uri string) (bucket, key string, err error) {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme != Scheme || u.Host == "" {
		return "", "", fmt.Errorf("%w: %q", store.ErrInvalidURI, uri)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return "", "", fmt.Errorf("%w: no object in %q", store.ErrInvalidURI, uri)
	}
	return u.Host, key, nil
}

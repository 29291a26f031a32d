package gcs

import (
	"log/slog"
)

// DefaultPrefix is the object name prefix for photos.
const DefaultPrefix = "photos"

// options holds GCS photo store configuration.
type options struct {
	bucket   string
	prefix   string
	endpoint string // emulators

	// Credential sources, first match wins. None means Application Default Credentials.
	credentialsJSON []byte
	credentialsFile string

	logger *slog.Logger
}

func newOptions(opts ...Option) *options {
	o := &options{
		prefix: DefaultPrefix,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Option configures the GCS photo store.
type Option func(*options)

// WithBucket sets the bucket name (required).
func WithBucket(bucket string) Option {
	return func(o *options) {
		o.bucket = bucket
	}
}

// WithPrefix sets the object name prefix. Default is "photos".
func WithPrefix(prefix string) Option {
	return func(o *options) {
		o.prefix = prefix
	}
}

// WithEndpoint sets a custom endpoint, typically a storage emulator.
func WithEndpoint(endpoint string) Option {
	return func(o *options) {
		o.endpoint = endpoint
	}
}

// WithCredentialsJSON authenticates with a service account key held in memory.
func WithCredentialsJSON(json []byte) Option {
	return func(o *options) {
		o.credentialsJSON = json
	}
}

// WithCredentialsFile authenticates with a service account key file.
func WithCredentialsFile(path string) Option {
	return func(o *options) {
		o.credentialsFile = path
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

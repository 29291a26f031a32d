package s3

import (
	"log/slog"
)

// Default configuration values.
const (
	DefaultRegion          = "us-east-1"
	DefaultPrefix          = "photos"
	DefaultRoleSessionName = "chips-photo-store"
)

// options holds S3 photo store configuration.
type options struct {
	bucket string
	prefix string
	region string

	// S3-compatible services such as MinIO
	endpoint     string
	usePathStyle bool

	// Static credentials
	accessKey    string
	secretKey    string
	sessionToken string

	// Role assumption
	roleARN         string
	roleSessionName string
	externalID      string

	logger *slog.Logger
}

func newOptions(opts ...Option) *options {
	o := &options{
		region:          DefaultRegion,
		prefix:          DefaultPrefix,
		roleSessionName: DefaultRoleSessionName,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Option configures the S3 photo store.
type Option func(*options)

// WithBucket sets the bucket name (required).
func WithBucket(bucket string) Option {
	return func(o *options) {
		o.bucket = bucket
	}
}

// WithPrefix sets the key prefix for photos. Default is "photos".
func WithPrefix(prefix string) Option {
	return func(o *options) {
		o.prefix = prefix
	}
}

// WithRegion sets the AWS region. Default is "us-east-1".
func WithRegion(region string) Option {
	return func(o *options) {
		if region != "" {
			o.region = region
		}
	}
}

// WithEndpoint sets a custom endpoint for S3-compatible services.
// usePathStyle is required by most of them.
func WithEndpoint(endpoint string, usePathStyle bool) Option {
	return func(o *options) {
		o.endpoint = endpoint
		o.usePathStyle = usePathStyle
	}
}

// WithStaticCredentials sets long-term or STS-issued credentials.
// sessionToken may be empty.
func WithStaticCredentials(accessKey, secretKey, sessionToken string) Option {
	return func(o *options) {
		o.accessKey = accessKey
		o.secretKey = secretKey
		o.sessionToken = sessionToken
	}
}

// WithAssumeRole makes the store assume roleARN through STS.
// externalID may be empty.
func WithAssumeRole(roleARN, sessionName, externalID string) Option {
	return func(o *options) {
		o.roleARN = roleARN
		if sessionName != "" {
			o.roleSessionName = sessionName
		}
		o.externalID = externalID
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

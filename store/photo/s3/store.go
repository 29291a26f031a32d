// Package s3 provides an S3-backed photo store.
package s3

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

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/transfermanager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
	"github.com/rbaliyan/chips/store"
)

// Scheme is the URI scheme of photos held in S3.
const Scheme = "s3"

// Store implements store.PhotoStore using AWS S3.
// URIs look like s3://<bucket>/<prefix>/<yyyy/mm/dd>/<uuid>/<filename>.
type Store struct {
	client *s3.Client
	tm     *transfermanager.Client
	bucket string
	prefix string
	logger *slog.Logger
}

var _ store.PhotoStore = (*Store)(nil)

// New creates a new S3 photo store.
// The context is used for credential loading.
func New(ctx context.Context, opts ...Option) (*Store, error) {
	o := newOptions(opts...)
	if o.bucket == "" {
		return nil, fmt.Errorf("s3: bucket is required")
	}

	awsCfg, err := loadConfig(ctx, o)
	if err != nil {
		return nil, fmt.Errorf("build aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(so *s3.Options) {
		if o.endpoint != "" {
			so.BaseEndpoint = aws.String(o.endpoint)
			so.UsePathStyle = o.usePathStyle
		}
	})

	return &Store{
		client: client,
		tm:     transfermanager.New(client),
		bucket: o.bucket,
		prefix: o.prefix,
		logger: o.logger,
	}, nil
}

// loadConfig picks credentials: static keys, then an assumed role, then
// the SDK's default chain (environment, shared files, instance and pod roles).
func loadConfig(ctx context.Context, o *options) (aws.Config, error) {
	optFns := []func(*config.LoadOptions) error{config.WithRegion(o.region)}

	switch {
	case o.accessKey != "" && o.secretKey != "":
		creds := credentials.NewStaticCredentialsProvider(o.accessKey, o.secretKey, o.sessionToken)
		optFns = append(optFns, config.WithCredentialsProvider(creds))
	case o.roleARN != "":
		base, err := config.LoadDefaultConfig(ctx, config.WithRegion(o.region))
		if err != nil {
			return aws.Config{}, fmt.Errorf("load base config for role: %w", err)
		}
		optFns = append(optFns, config.WithCredentialsProvider(aws.NewCredentialsCache(assumeRoleProvider(base, o))))
	}

	return config.LoadDefaultConfig(ctx, optFns...)
}

// Upload stores the photo under a fresh date-partitioned key.
func (s *Store) Upload(ctx context.Context, filename, contentType string, content io.Reader) (string, error) {
	key := s.newKey(filename, time.Now().UTC())

	_, err := s.tm.UploadObject(ctx, &transfermanager.UploadObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        content,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("upload to s3: %w", err)
	}

	s.logger.Debug("uploaded photo to s3", "bucket", s.bucket, "key", key)
	return formatURI(s.bucket, key), nil
}

// Load returns the object body.
func (s *Store) Load(ctx context.Context, uri string) (io.ReadCloser, error) {
	bucket, key, err := parseURI(uri)
	if err != nil {
		return nil, err
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("%w: %s", store.ErrNotFound, uri)
		}
		return nil, fmt.Errorf("get object from s3: %w", err)
	}
	return out.Body, nil
}

// Delete removes the object. S3 reports success for missing keys.
func (s *Store) Delete(ctx context.Context, uri string) error {
	bucket, key, err := parseURI(uri)
	if err != nil {
		return err
	}

	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}); err != nil {
		return fmt.Errorf("delete object from s3: %w", err)
	}

	s.logger.Debug("deleted photo from s3", "bucket", bucket, "key", key)
	return nil
}

func (s *Store) newKey(filename string, now time.Time) string {
	return path.Join(s.prefix, now.Format("2006/01/02"), uuid.New().String(), path.Base("/"+filename))
}

func formatURI(bucket, key string) string {
	u := url.URL{Scheme: Scheme, Host: bucket, Path: "/" + key}
	return u.String()
}

// parseURI splits s3://bucket/key.
func parseURI(uri string) (bucket, key string, err error) {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme != Scheme || u.Host == "" {
		return "", "", fmt.Errorf("%w: %q", store.ErrInvalidURI, uri)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return "", "", fmt.Errorf("%w: no key in %q", store.ErrInvalidURI, uri)
	}
	return u.Host, key, nil
}

// Package gcs reads documents from Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"github.com/hashicorp/go-hclog"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/hashicorp-forge/pawls/pkg/errs"
	"github.com/hashicorp-forge/pawls/pkg/remote"
)

// Config contains configuration for the GCS source.
type Config struct {
	// CredentialsFile is a service account key file. When empty Application
	// Default Credentials are used.
	CredentialsFile string `hcl:"credentials_file,optional"`

	// Endpoint overrides the JSON API endpoint, e.g. for an emulator.
	Endpoint string `hcl:"endpoint,optional"`

	// Anonymous disables authentication, for public buckets and emulators.
	Anonymous bool `hcl:"anonymous,optional"`
}

// Validate validates the GCS configuration.
func (c *Config) Validate() error {
	if c.Anonymous && c.CredentialsFile != "" {
		return fmt.Errorf("credentials_file cannot be used with anonymous access")
	}
	return nil
}

func (c *Config) clientOptions() []option.ClientOption {
	var opts []option.ClientOption
	if c.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(c.CredentialsFile))
	}
	if c.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.Endpoint))
	}
	if c.Anonymous {
		opts = append(opts, option.WithoutAuthentication())
	}
	return opts
}

// Source lists and downloads objects from GCS.
type Source struct {
	client *storage.Client
	logger hclog.Logger
}

var _ remote.Source = (*Source)(nil)

// NewSource creates a Source. Close releases the client.
func NewSource(ctx context.Context, cfg *Config, logger hclog.Logger) (*Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid GCS configuration: %w", err)
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	client, err := storage.NewClient(ctx, cfg.clientOptions()...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &Source{client: client, logger: logger.Named("gcs")}, nil
}

// Close closes the underlying client.
func (s *Source) Close() error {
	return s.client.Close()
}

// BucketExists implements remote.Source.
func (s *Source) BucketExists(ctx context.Context, bucket string) (bool, error) {
	_, err := s.client.Bucket(bucket).Attrs(ctx)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, storage.ErrBucketNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("bucket %s is not accessible: %w", bucket, err)
	}
}

// ListObjects implements remote.Source.
func (s *Source) ListObjects(ctx context.Context, bucket, prefix string) ([]remote.Object, error) {
	it := s.client.Bucket(bucket).Objects(ctx, &storage.Query{Prefix: prefix})

	var objects []remote.Object
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list objects in %s: %w", bucket, err)
		}
		// Prefix placeholders have no name.
		if attrs.Name == "" {
			continue
		}
		objects = append(objects, remote.Object{Key: attrs.Name, Size: attrs.Size})
	}

	s.logger.Debug("listed objects", "bucket", bucket, "prefix", prefix, "count", len(objects))
	return objects, nil
}

// Open implements remote.Source.
func (s *Source) Open(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	r, err := s.client.Bucket(bucket).Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, errs.Wrap("Open", errs.ErrNotFound, err)
		}
		return nil, fmt.Errorf("failed to read object %s: %w", key, err)
	}
	return r, nil
}

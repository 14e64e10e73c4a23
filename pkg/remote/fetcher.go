// Package remote pulls documents from object storage into the document
// store.
//
// Objects are listed under a bucket prefix, downloaded in parallel into a
// private staging directory and ingested one by one. A failed object is
// reported in its Outcome and never stops the others.
package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/hashicorp-forge/pawls/pkg/blob"
	"github.com/hashicorp-forge/pawls/pkg/documents"
	"github.com/hashicorp-forge/pawls/pkg/errs"
)

// Object is a listed remote object.
type Object struct {
	Key  string
	Size int64
}

// Source is an object storage backend.
type Source interface {
	// BucketExists reports whether bucket exists. Errors mean the backend
	// could not be asked.
	BucketExists(ctx context.Context, bucket string) (bool, error)

	// ListObjects lists every object under prefix.
	ListObjects(ctx context.Context, bucket, prefix string) ([]Object, error)

	// Open streams an object. Missing objects are errs.ErrNotFound.
	Open(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}

// Ingester stores documents.
type Ingester interface {
	Ingest(ctx context.Context, src io.Reader, preferredID string) (documents.IngestResult, error)
}

// Config configures a Fetcher.
type Config struct {
	// Concurrency bounds parallel downloads. Defaults to 10.
	Concurrency int

	// ObjectTimeout bounds the download and ingestion of one object.
	// Defaults to 5 minutes.
	ObjectTimeout time.Duration

	// MaxRetries is the number of extra download attempts for transient
	// failures. Defaults to 3.
	MaxRetries uint64

	// NoHash names documents after the object's file stem instead of its
	// content digest.
	NoHash bool

	// Staging holds downloads before ingestion. Defaults to a temporary
	// directory on the OS filesystem.
	Staging afero.Fs

	Logger hclog.Logger
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.Concurrency <= 0 {
		c.Concurrency = 10
	}
	if c.ObjectTimeout <= 0 {
		c.ObjectTimeout = 5 * time.Minute
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.Staging == nil {
		c.Staging = afero.NewOsFs()
	}
	if c.Logger == nil {
		c.Logger = hclog.NewNullLogger()
	}
}

// Outcome is the result for one object.
type Outcome struct {
	Key    string
	Result documents.IngestResult
	Err    error
}

// Fetcher copies documents from a Source into an Ingester.
type Fetcher struct {
	source Source
	docs   Ingester
	cfg    Config
	logger hclog.Logger
}

// NewFetcher creates a Fetcher.
func NewFetcher(source Source, docs Ingester, cfg Config) *Fetcher {
	cfg.SetDefaults()
	return &Fetcher{
		source: source,
		docs:   docs,
		cfg:    cfg,
		logger: cfg.Logger.Named("remote"),
	}
}

// FetchPrefix ingests every document under prefix in bucket.
//
// The bucket must exist (errs.ErrNotFound otherwise) and be reachable
// (errs.ErrUnavailable). If no key ends in .pdf the error is
// errs.ErrEmptyResult. Otherwise one Outcome per document is returned in
// listing order, and the error aggregates the failed ones. Documents already
// ingested stay in place if ctx is cancelled.
func (f *Fetcher) FetchPrefix(ctx context.Context, bucket, prefix string) ([]Outcome, error) {
	const op = "FetchPrefix"
	prefix = strings.TrimPrefix(prefix, "/")

	exists, err := f.source.BucketExists(ctx, bucket)
	if err != nil {
		return nil, errs.Wrap(op, errs.ErrUnavailable, err)
	}
	if !exists {
		return nil, errs.Ef(op, errs.ErrNotFound, "bucket %q does not exist", bucket)
	}

	objects, err := f.source.ListObjects(ctx, bucket, prefix)
	if err != nil {
		return nil, errs.Wrap(op, errs.ErrUnavailable, err)
	}
	var keys []string
	for _, obj := range objects {
		if documents.IsDocumentName(obj.Key) {
			keys = append(keys, obj.Key)
		}
	}
	if len(keys) == 0 {
		return nil, errs.Ef(op, errs.ErrEmptyResult, "no %s objects under %s/%s",
			documents.Extension, bucket, prefix)
	}

	staging, err := afero.TempDir(f.cfg.Staging, "", "pawls-fetch-")
	if err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer func() {
		if err := f.cfg.Staging.RemoveAll(staging); err != nil {
			f.logger.Warn("failed to remove staging directory", "path", staging, "error", err)
		}
	}()

	f.logger.Info("fetching documents",
		"bucket", bucket, "prefix", prefix, "objects", len(keys))

	outcomes := make([]Outcome, len(keys))
	var g errgroup.Group
	g.SetLimit(f.cfg.Concurrency)
	for i, key := range keys {
		outcomes[i].Key = key
		if err := ctx.Err(); err != nil {
			outcomes[i].Err = err
			continue
		}
		g.Go(func() error {
			outcomes[i].Result, outcomes[i].Err = f.fetchOne(ctx, bucket, key, staging)
			return nil
		})
	}
	_ = g.Wait()

	var (
		result          *multierror.Error
		created, failed int
	)
	for _, out := range outcomes {
		if out.Err != nil {
			f.logger.Error("failed to fetch document", "key", out.Key, "error", out.Err)
			result = multierror.Append(result, fmt.Errorf("%s: %w", out.Key, out.Err))
			failed++
			continue
		}
		if out.Result.Created {
			created++
		}
	}
	f.logger.Info("fetch complete",
		"bucket", bucket,
		"prefix", prefix,
		"created", created,
		"failed", failed,
	)

	return outcomes, result.ErrorOrNil()
}

// fetchOne downloads key into staging and ingests it.
func (f *Fetcher) fetchOne(ctx context.Context, bucket, key, staging string) (documents.IngestResult, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.ObjectTimeout)
	defer cancel()

	local, err := f.download(ctx, bucket, key, staging)
	if err != nil {
		return documents.IngestResult{}, err
	}
	defer func() {
		_ = f.cfg.Staging.Remove(local)
	}()

	file, err := f.cfg.Staging.Open(local)
	if err != nil {
		return documents.IngestResult{}, fmt.Errorf("failed to open staged download: %w", err)
	}
	defer file.Close()

	preferred := ""
	if f.cfg.NoHash {
		preferred = documents.FileStem(key)
	}
	res, err := f.docs.Ingest(ctx, file, preferred)
	if err != nil {
		return documents.IngestResult{}, err
	}

	f.logger.Debug("ingested object",
		"key", key, "document_id", res.ID.String(), "created", res.Created)
	return res, nil
}

// download stages key in dir and returns the local path. Transient failures
// are retried with exponential backoff.
func (f *Fetcher) download(ctx context.Context, bucket, key, dir string) (string, error) {
	stage := blob.New(f.cfg.Staging)

	var local string
	attempt := func() error {
		rc, err := f.source.Open(ctx, bucket, key)
		if err != nil {
			if errors.Is(err, errs.ErrNotFound) {
				return backoff.Permanent(err)
			}
			return err
		}
		defer rc.Close()

		local, err = stage.Stage(dir, rc)
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	policy := backoff.WithContext(backoff.WithMaxRetries(b, f.cfg.MaxRetries), ctx)

	notify := func(err error, wait time.Duration) {
		f.logger.Warn("retrying download", "key", key, "error", err, "wait", wait)
	}
	if err := backoff.RetryNotify(attempt, policy, notify); err != nil {
		return "", fmt.Errorf("failed to download %s: %w", key, err)
	}
	return local, nil
}

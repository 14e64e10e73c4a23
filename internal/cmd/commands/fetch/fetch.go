package fetch

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/hashicorp-forge/pawls/internal/cmd/base"
	"github.com/hashicorp-forge/pawls/internal/config"
	"github.com/hashicorp-forge/pawls/internal/server"
	"github.com/hashicorp-forge/pawls/pkg/errs"
	"github.com/hashicorp-forge/pawls/pkg/remote"
	"github.com/hashicorp-forge/pawls/pkg/remote/gcs"
	"github.com/hashicorp-forge/pawls/pkg/remote/s3"
)

const (
	providerS3  = "s3"
	providerGCS = "gcs"
)

type Command struct {
	*base.Command

	flagProvider string
	flagNoHash   bool
}

func (c *Command) Synopsis() string {
	return "Add PDFs from an S3 or GCS bucket"
}

func (c *Command) Help() string {
	return `Usage: pawls fetch [options] <bucket> <prefix>

  Download every PDF under prefix in bucket and add it to the data
  directory. The s3 or gcs block of the configuration file selects the
  endpoint and credentials.` + c.Flags().Help()
}

func (c *Command) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("fetch", flag.ContinueOnError))
	c.ConfigFlags(f)

	f.StringVar(
		&c.flagProvider, "provider", providerS3,
		"Object store to read from: s3 or gcs.",
	)
	f.BoolVar(
		&c.flagNoHash, "no-hash", false,
		"Name documents after their object names instead of their digests.",
	)

	return f
}

func (c *Command) Run(args []string) int {
	f := c.Flags()
	if err := f.Parse(args); err != nil {
		c.UI.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}
	if f.NArg() != 2 {
		c.UI.Error("bucket and prefix are required")
		return 1
	}
	bucket, prefix := f.Arg(0), f.Arg(1)

	cfg, err := c.LoadConfig()
	if err != nil {
		c.UI.Error(fmt.Sprintf("error loading configuration: %v", err))
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	source, closeSource, err := c.source(ctx, cfg)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error initializing %s client: %v", c.flagProvider, err))
		return 1
	}
	defer closeSource()

	return c.fetch(ctx, cfg, source, bucket, prefix)
}

func (c *Command) source(ctx context.Context, cfg *config.Config) (remote.Source, func(), error) {
	switch c.flagProvider {
	case providerS3:
		s3Cfg := cfg.S3
		if s3Cfg == nil {
			s3Cfg = &s3.Config{Region: os.Getenv("AWS_REGION")}
			s3Cfg.SetDefaults()
		}
		src, err := s3.NewSource(ctx, s3Cfg, c.Log)
		return src, func() {}, err

	case providerGCS:
		gcsCfg := cfg.GCS
		if gcsCfg == nil {
			gcsCfg = &gcs.Config{}
		}
		src, err := gcs.NewSource(ctx, gcsCfg, c.Log)
		if err != nil {
			return nil, nil, err
		}
		return src, func() {
			if err := src.Close(); err != nil {
				c.Log.Warn("error closing gcs client", "error", err)
			}
		}, nil

	default:
		return nil, nil, fmt.Errorf("unknown provider %q", c.flagProvider)
	}
}

// fetch copies the documents under prefix into the configured data
// directory.
func (c *Command) fetch(
	ctx context.Context, cfg *config.Config, source remote.Source, bucket, prefix string,
) int {
	srv, closeFn, err := server.New(cfg, c.Log, server.Options{SkipUsers: true})
	if err != nil {
		c.UI.Error(fmt.Sprintf("error initializing stores: %v", err))
		return 1
	}
	defer closeFn()

	fetcher := remote.NewFetcher(source, srv.Documents, remote.Config{
		Concurrency:   cfg.Ingest.Concurrency,
		ObjectTimeout: config.Duration(cfg.Ingest.ObjectTimeout),
		MaxRetries:    uint64(cfg.Ingest.MaxRetries),
		NoHash:        c.flagNoHash,
		Logger:        c.Log,
	})

	outcomes, err := fetcher.FetchPrefix(ctx, bucket, prefix)
	if errors.Is(err, errs.ErrEmptyResult) {
		c.UI.Warn(fmt.Sprintf("No PDFs found under %s://%s/%s", c.flagProvider, bucket, prefix))
		return 0
	}

	added := 0
	for _, o := range outcomes {
		switch {
		case o.Err != nil:
			c.UI.Error(fmt.Sprintf("%s: %v", o.Key, o.Err))
		case o.Result.Created:
			added++
			c.UI.Output(fmt.Sprintf("%s: added as %s", o.Key, o.Result.ID))
		default:
			c.UI.Warn(fmt.Sprintf("%s: already added as %s", o.Key, o.Result.ID))
		}
	}
	if err != nil {
		c.UI.Error(fmt.Sprintf("error fetching documents: %v", err))
		return 1
	}

	c.UI.Info(fmt.Sprintf("Added %d of %d documents.", added, len(outcomes)))
	return 0
}

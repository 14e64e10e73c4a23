package add

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/hashicorp-forge/pawls/internal/cmd/base"
	"github.com/hashicorp-forge/pawls/internal/server"
)

type Command struct {
	*base.Command

	flagNoHash   bool
	flagValidate bool
}

func (c *Command) Synopsis() string {
	return "Add local PDFs to the data directory"
}

func (c *Command) Help() string {
	return `Usage: pawls add [options] <path>

  Add a PDF file, or every PDF directly inside a directory. Each document is
  stored under the SHA-256 of its bytes unless -no-hash is given, in which
  case the file name without its extension is used. Documents already
  present are skipped.` + c.Flags().Help()
}

func (c *Command) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("add", flag.ContinueOnError))
	c.ConfigFlags(f)

	f.BoolVar(
		&c.flagNoHash, "no-hash", false,
		"Name documents after their file names instead of their digests.",
	)
	f.BoolVar(
		&c.flagValidate, "validate", false,
		"Reject files that are not valid PDFs. Also set by ingest.validate_pdf.",
	)

	return f
}

func (c *Command) Run(args []string) int {
	f := c.Flags()
	if err := f.Parse(args); err != nil {
		c.UI.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}
	if f.NArg() != 1 {
		c.UI.Error("exactly one path is required")
		return 1
	}
	path := f.Arg(0)

	cfg, err := c.LoadConfig()
	if err != nil {
		c.UI.Error(fmt.Sprintf("error loading configuration: %v", err))
		return 1
	}
	if c.flagValidate {
		cfg.Ingest.ValidatePDF = true
	}

	srv, closeFn, err := server.New(cfg, c.Log, server.Options{SkipUsers: true})
	if err != nil {
		c.UI.Error(fmt.Sprintf("error initializing stores: %v", err))
		return 1
	}
	defer closeFn()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	outcomes, err := srv.Documents.IngestPaths(ctx, path, c.flagNoHash)
	added := 0
	for _, o := range outcomes {
		switch {
		case o.Err != nil:
			c.UI.Error(fmt.Sprintf("%s: %v", o.Path, o.Err))
		case o.Skipped:
			c.UI.Warn(fmt.Sprintf("%s: already added as %s", o.Path, o.Result.ID))
		default:
			added++
			c.UI.Output(fmt.Sprintf("%s: added as %s", o.Path, o.Result.ID))
		}
	}
	if err != nil {
		c.UI.Error(fmt.Sprintf("error adding documents: %v", err))
		return 1
	}

	c.UI.Info(fmt.Sprintf("Added %d of %d documents.", added, len(outcomes)))
	return 0
}

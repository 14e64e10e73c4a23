package watch

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp-forge/pawls/internal/cmd/base"
	"github.com/hashicorp-forge/pawls/internal/config"
	"github.com/hashicorp-forge/pawls/internal/server"
	pkgwatch "github.com/hashicorp-forge/pawls/pkg/watch"
)

type Command struct {
	*base.Command

	flagNoHash   bool
	flagRemove   bool
	flagDebounce time.Duration
}

func (c *Command) Synopsis() string {
	return "Add PDFs as they appear in a directory"
}

func (c *Command) Help() string {
	return `Usage: pawls watch [options] <directory>

  Add every PDF already in the directory, then keep adding PDFs as they are
  written until interrupted.` + c.Flags().Help()
}

func (c *Command) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("watch", flag.ContinueOnError))
	c.ConfigFlags(f)

	f.BoolVar(
		&c.flagNoHash, "no-hash", false,
		"Name documents after their file names instead of their digests.",
	)
	f.BoolVar(
		&c.flagRemove, "remove", false,
		"Delete each file once it has been added.",
	)
	f.DurationVar(
		&c.flagDebounce, "debounce", 0,
		"Quiet period before a file is added. Overrides ingest.watch_debounce.",
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
		c.UI.Error("exactly one directory is required")
		return 1
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		c.UI.Error(fmt.Sprintf("error loading configuration: %v", err))
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return c.watch(ctx, cfg, f.Arg(0))
}

func (c *Command) watch(ctx context.Context, cfg *config.Config, dir string) int {
	srv, closeFn, err := server.New(cfg, c.Log, server.Options{SkipUsers: true})
	if err != nil {
		c.UI.Error(fmt.Sprintf("error initializing stores: %v", err))
		return 1
	}
	defer closeFn()

	debounce := c.flagDebounce
	if debounce == 0 {
		debounce = config.Duration(cfg.Ingest.WatchDebounce)
	}

	w, err := pkgwatch.New(srv.Documents, pkgwatch.Config{
		Dir:               dir,
		Debounce:          debounce,
		NoHash:            c.flagNoHash,
		RemoveAfterIngest: c.flagRemove,
		Logger:            c.Log,
		OnIngest: func(e pkgwatch.Event) {
			switch {
			case e.Err != nil:
				c.UI.Error(fmt.Sprintf("%s: %v", e.Path, e.Err))
			case e.Result.Created:
				c.UI.Output(fmt.Sprintf("%s: added as %s", e.Path, e.Result.ID))
			default:
				c.UI.Warn(fmt.Sprintf("%s: already added as %s", e.Path, e.Result.ID))
			}
		},
	})
	if err != nil {
		c.UI.Error(fmt.Sprintf("error creating watcher: %v", err))
		return 1
	}

	if err := w.Run(ctx); err != nil {
		c.UI.Error(fmt.Sprintf("error watching %s: %v", dir, err))
		return 1
	}
	return 0
}

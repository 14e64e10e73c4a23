package assign

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/hashicorp-forge/pawls/internal/cmd/base"
	"github.com/hashicorp-forge/pawls/internal/server"
	pkgassign "github.com/hashicorp-forge/pawls/pkg/assign"
)

type UsersCommand struct {
	*base.Command

	flagAll      bool
	flagNameFile string
}

func (c *UsersCommand) Synopsis() string {
	return "Allocate documents to every annotator in a file"
}

func (c *UsersCommand) Help() string {
	return `Usage: pawls assign-users [options] <users file> [document IDs...]

  Allocate the same documents to every annotator listed, one email address
  per line, in the users file. Invalid addresses are skipped with a
  warning.` + c.Flags().Help()
}

func (c *UsersCommand) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("assign-users", flag.ContinueOnError))
	c.ConfigFlags(f)

	f.BoolVar(
		&c.flagAll, "all", false,
		"Allocate every document in the data directory.",
	)
	f.StringVar(
		&c.flagNameFile, "name-file", "",
		"JSON or YAML file mapping document IDs to display names.",
	)

	return f
}

func (c *UsersCommand) Run(args []string) int {
	f := c.Flags()
	if err := f.Parse(args); err != nil {
		c.UI.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}
	if f.NArg() < 1 {
		c.UI.Error("users file is required")
		return 1
	}

	uf, err := os.Open(f.Arg(0))
	if err != nil {
		c.UI.Error(fmt.Sprintf("error opening users file: %v", err))
		return 1
	}
	users, err := pkgassign.ReadUsers(uf)
	uf.Close()
	if err != nil {
		c.UI.Error(fmt.Sprintf("error reading users file: %v", err))
		return 1
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		c.UI.Error(fmt.Sprintf("error loading configuration: %v", err))
		return 1
	}

	srv, closeFn, err := server.New(cfg, c.Log, server.Options{SkipUsers: true})
	if err != nil {
		c.UI.Error(fmt.Sprintf("error initializing stores: %v", err))
		return 1
	}
	defer closeFn()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	ids, err := collectIDs(ctx, srv, f.Args()[1:], "", c.flagAll)
	if err != nil {
		c.UI.Error(err.Error())
		return 1
	}

	var names pkgassign.Names
	if c.flagNameFile != "" {
		if names, err = readNames(c.flagNameFile); err != nil {
			c.UI.Error(err.Error())
			return 1
		}
	}

	outcomes, err := srv.Assign.AssignDocumentsToUsers(ctx, users, ids, names)
	for _, o := range outcomes {
		switch {
		case o.Skipped:
			c.UI.Warn(fmt.Sprintf("Invalid annotator email %s", o.User))
		case o.Err != nil:
			c.UI.Error(fmt.Sprintf("%s: %v", o.User, o.Err))
		default:
			c.UI.Output(fmt.Sprintf("%s: %d new documents", o.User, o.Inserted))
		}
	}
	if err != nil {
		c.UI.Error(describeError(srv, err))
		return 1
	}
	return 0
}

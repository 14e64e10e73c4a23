package assign

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/hashicorp-forge/pawls/internal/cmd/base"
	"github.com/hashicorp-forge/pawls/internal/server"
	pkgassign "github.com/hashicorp-forge/pawls/pkg/assign"
	"github.com/hashicorp-forge/pawls/pkg/docid"
)

type Command struct {
	*base.Command

	flagAll      bool
	flagIDFile   string
	flagNameFile string
}

func (c *Command) Synopsis() string {
	return "Allocate documents to an annotator"
}

func (c *Command) Help() string {
	return `Usage: pawls assign [options] <annotator> [document IDs...]

  Allocate documents to an annotator, identified by email address. With no
  documents the annotator is registered with an empty allocation. Documents
  already allocated keep their progress.

  Allocate every stored document:

      $ pawls assign -all markn@example.com` + c.Flags().Help()
}

func (c *Command) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("assign", flag.ContinueOnError))
	c.ConfigFlags(f)

	f.BoolVar(
		&c.flagAll, "all", false,
		"Allocate every document in the data directory.",
	)
	f.StringVar(
		&c.flagIDFile, "sha-file", "",
		"File of document IDs, one per line.",
	)
	f.StringVar(
		&c.flagNameFile, "name-file", "",
		"JSON or YAML file mapping document IDs to display names.",
	)

	return f
}

func (c *Command) Run(args []string) int {
	f := c.Flags()
	if err := f.Parse(args); err != nil {
		c.UI.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}
	if f.NArg() < 1 {
		c.UI.Error("annotator is required")
		return 1
	}
	annotator := f.Arg(0)
	if err := pkgassign.ValidateAnnotator(annotator); err != nil {
		c.UI.Error(fmt.Sprintf("Provided annotator was not a valid email: %v", err))
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

	ids, err := collectIDs(ctx, srv, f.Args()[1:], c.flagIDFile, c.flagAll)
	if err != nil {
		c.UI.Error(err.Error())
		return 1
	}

	var names pkgassign.Names
	if c.flagNameFile != "" {
		names, err = readNames(c.flagNameFile)
		if err != nil {
			c.UI.Error(err.Error())
			return 1
		}
	} else if len(ids) > 0 {
		c.UI.Warn("-name-file was not provided, using document IDs as names.")
	}

	n, err := srv.Assign.AssignDocuments(ctx, annotator, ids, names)
	if err != nil {
		c.UI.Error(describeError(srv, err))
		return 1
	}

	c.UI.Info(fmt.Sprintf("Allocated %d new documents to %s.", n, annotator))
	return 0
}

// collectIDs merges the positional IDs, the ID file and, with all, every
// stored document.
func collectIDs(
	ctx context.Context, srv *server.Server, raw []string, idFile string, all bool,
) ([]docid.DocumentID, error) {
	ids, err := pkgassign.ParseIDs(raw)
	if err != nil {
		return nil, err
	}

	if idFile != "" {
		f, err := os.Open(idFile)
		if err != nil {
			return nil, fmt.Errorf("error opening ID file: %w", err)
		}
		defer f.Close()
		fromFile, err := pkgassign.ReadIDs(f)
		if err != nil {
			return nil, fmt.Errorf("error reading ID file: %w", err)
		}
		ids = append(ids, fromFile...)
	}

	if all {
		stored, err := srv.Documents.AllIDs(ctx)
		if err != nil {
			return nil, fmt.Errorf("error listing documents: %w", err)
		}
		ids = append(ids, stored...)
	}
	return ids, nil
}

func readNames(path string) (pkgassign.Names, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening name file: %w", err)
	}
	defer f.Close()

	names, err := pkgassign.ReadNames(f)
	if err != nil {
		return nil, fmt.Errorf("error reading name file: %w", err)
	}
	return names, nil
}

// describeError lists each missing ID of an unknown document error.
func describeError(srv *server.Server, err error) string {
	var unknown *pkgassign.UnknownDocumentsError
	if !errors.As(err, &unknown) {
		return fmt.Sprintf("error allocating documents: %v", err)
	}
	return fmt.Sprintf(
		"Found document IDs which are not present in %s.\n"+
			"Add PDF files first, one per sub-directory.\n%s",
		srv.Documents.Root(), strings.Join(unknown.IDs, "\n"))
}

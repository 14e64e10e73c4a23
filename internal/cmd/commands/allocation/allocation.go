package allocation

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"

	"github.com/hashicorp-forge/pawls/internal/cmd/base"
	"github.com/hashicorp-forge/pawls/internal/server"
)

type Command struct {
	*base.Command

	flagSummary bool
}

func (c *Command) Synopsis() string {
	return "Show the documents allocated to an annotator"
}

func (c *Command) Help() string {
	return `Usage: pawls allocation [options] <annotator>

  Print the documents the annotator sees, as the annotation API returns
  them. An annotator without allocated documents sees every document.` +
		c.Flags().Help()
}

func (c *Command) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("allocation", flag.ContinueOnError))
	c.ConfigFlags(f)

	f.BoolVar(
		&c.flagSummary, "summary", false,
		"Print progress counts instead of the full allocation.",
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
		c.UI.Error("annotator is required")
		return 1
	}
	annotator := f.Arg(0)

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

	alloc, err := srv.Allocation.GetAllocation(context.Background(), annotator)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error getting allocation: %v", err))
		return 1
	}

	if c.flagSummary {
		var finished, junk, annotations uint
		for _, p := range alloc.Papers {
			if p.Finished {
				finished++
			}
			if p.Junk {
				junk++
			}
			annotations += p.Annotations
		}
		c.UI.Output(fmt.Sprintf(
			"allocated: %t\ndocuments: %d\nfinished: %d\njunk: %d\nannotations: %d",
			alloc.HasAllocatedPapers, len(alloc.Papers), finished, junk, annotations))
		return 0
	}

	out, err := json.MarshalIndent(alloc, "", "  ")
	if err != nil {
		c.UI.Error(fmt.Sprintf("error encoding allocation: %v", err))
		return 1
	}
	c.UI.Output(string(out))
	return 0
}

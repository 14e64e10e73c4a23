package version

import (
	"github.com/hashicorp-forge/pawls/internal/cmd/base"
	"github.com/hashicorp-forge/pawls/internal/version"
)

type Command struct {
	*base.Command
}

func (c *Command) Synopsis() string {
	return "Print the version"
}

func (c *Command) Help() string {
	return `Usage: pawls version

  Print the version of pawls.`
}

func (c *Command) Run(args []string) int {
	c.UI.Output(version.Version)
	return 0
}

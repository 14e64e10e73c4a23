package cmd

import (
	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"

	"github.com/hashicorp-forge/pawls/internal/cmd/base"
	"github.com/hashicorp-forge/pawls/internal/cmd/commands/add"
	"github.com/hashicorp-forge/pawls/internal/cmd/commands/allocation"
	"github.com/hashicorp-forge/pawls/internal/cmd/commands/assign"
	"github.com/hashicorp-forge/pawls/internal/cmd/commands/fetch"
	"github.com/hashicorp-forge/pawls/internal/cmd/commands/serve"
	"github.com/hashicorp-forge/pawls/internal/cmd/commands/version"
	"github.com/hashicorp-forge/pawls/internal/cmd/commands/watch"
)

// initCommands returns the command factories. Every command gets its own
// base.Command so that loading configuration in one does not affect another.
func initCommands(log hclog.Logger, ui cli.Ui) map[string]cli.CommandFactory {
	newBase := func() *base.Command {
		return &base.Command{Log: log, UI: ui}
	}

	return map[string]cli.CommandFactory{
		"add": func() (cli.Command, error) {
			return &add.Command{Command: newBase()}, nil
		},
		"allocation": func() (cli.Command, error) {
			return &allocation.Command{Command: newBase()}, nil
		},
		"assign": func() (cli.Command, error) {
			return &assign.Command{Command: newBase()}, nil
		},
		"assign-users": func() (cli.Command, error) {
			return &assign.UsersCommand{Command: newBase()}, nil
		},
		"fetch": func() (cli.Command, error) {
			return &fetch.Command{Command: newBase()}, nil
		},
		"serve": func() (cli.Command, error) {
			return &serve.Command{Command: newBase()}, nil
		},
		"version": func() (cli.Command, error) {
			return &version.Command{Command: newBase()}, nil
		},
		"watch": func() (cli.Command, error) {
			return &watch.Command{Command: newBase()}, nil
		},
	}
}

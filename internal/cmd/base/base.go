// Package base holds what every pawls command shares.
package base

import (
	"bytes"
	"flag"
	"fmt"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"

	"github.com/hashicorp-forge/pawls/internal/config"
)

// Command is embedded by every command.
type Command struct {
	Log hclog.Logger
	UI  cli.Ui

	flagConfig  string
	flagDataDir string
}

// FlagSet wraps a flag.FlagSet to render help text.
type FlagSet struct {
	*flag.FlagSet
}

// NewFlagSet wraps f. Parse errors are returned rather than printed.
func NewFlagSet(f *flag.FlagSet) *FlagSet {
	f.SetOutput(&bytes.Buffer{})
	return &FlagSet{FlagSet: f}
}

// Help lists the flags in the set.
func (f *FlagSet) Help() string {
	var b strings.Builder
	b.WriteString("\n\nOptions:\n")
	f.VisitAll(func(fl *flag.Flag) {
		fmt.Fprintf(&b, "\n  -%s", fl.Name)
		if fl.DefValue != "" && fl.DefValue != "false" {
			fmt.Fprintf(&b, "=%s", fl.DefValue)
		}
		fmt.Fprintf(&b, "\n    %s\n", fl.Usage)
	})
	return b.String()
}

// ConfigFlags registers the -config and -data-dir flags.
func (c *Command) ConfigFlags(f *FlagSet) {
	f.StringVar(
		&c.flagConfig, "config", "",
		"Path to the pawls HCL configuration file.",
	)
	f.StringVar(
		&c.flagDataDir, "data-dir", "",
		fmt.Sprintf("Data directory. Overrides data_dir (default %q).",
			config.DefaultDataDir),
	)
}

// LoadConfig loads the configuration named by -config, or the defaults when
// none was given, and applies -data-dir. The command logger is rebuilt from
// the configured log level and format.
func (c *Command) LoadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if c.flagConfig != "" {
		cfg, err = config.LoadFile(c.flagConfig)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = config.NewConfig()
	}
	if c.flagDataDir != "" {
		cfg.DataDir = c.flagDataDir
	}

	name := "pawls"
	if c.Log != nil && c.Log.Name() != "" {
		name = c.Log.Name()
	}
	c.Log = cfg.Logger(name)
	return cfg, nil
}

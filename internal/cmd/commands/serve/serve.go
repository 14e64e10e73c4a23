package serve

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/browser"

	"github.com/hashicorp-forge/pawls/internal/api"
	"github.com/hashicorp-forge/pawls/internal/cmd/base"
	"github.com/hashicorp-forge/pawls/internal/config"
	"github.com/hashicorp-forge/pawls/internal/server"
)

type Command struct {
	*base.Command

	flagAddr    string
	flagBrowser bool
}

func (c *Command) Synopsis() string {
	return "Run the annotation API server"
}

func (c *Command) Help() string {
	return `Usage: pawls serve [options]

  Serve the annotation API over HTTP. Routes that act for a user require
  HTTP Basic credentials from the password file named by
  server.password_file.` + c.Flags().Help()
}

func (c *Command) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("serve", flag.ContinueOnError))
	c.ConfigFlags(f)

	f.StringVar(
		&c.flagAddr, "addr", "",
		fmt.Sprintf("Listen address. Overrides server.addr (default %q).",
			config.DefaultAddr),
	)
	f.BoolVar(
		&c.flagBrowser, "browser", false,
		"Open the server address in the default browser once listening.",
	)

	return f
}

func (c *Command) Run(args []string) int {
	f := c.Flags()
	if err := f.Parse(args); err != nil {
		c.UI.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		c.UI.Error(fmt.Sprintf("error loading configuration: %v", err))
		return 1
	}
	if c.flagAddr != "" {
		cfg.Server.Addr = c.flagAddr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return c.serve(ctx, cfg)
}

// serve runs the server until ctx is done.
func (c *Command) serve(ctx context.Context, cfg *config.Config) int {
	logger := c.Log

	srv, closeFn, err := server.New(cfg, logger, server.Options{})
	if err != nil {
		c.UI.Error(fmt.Sprintf("error initializing server: %v", err))
		return 1
	}
	defer closeFn()

	if srv.Users == nil {
		logger.Warn("no password file configured, authenticated routes will reject every request")
	}

	ln, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error listening on %s: %v", cfg.Server.Addr, err))
		return 1
	}

	httpSrv := &http.Server{
		Handler:           api.Routes(*srv),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpSrv.Serve(ln)
	}()

	url := "http://" + ln.Addr().String()
	logger.Info("listening", "address", url, "data_dir", cfg.DataDir)
	if c.flagBrowser {
		if err := browser.OpenURL(url); err != nil {
			c.UI.Warn(fmt.Sprintf("Could not open browser: %v", err))
		}
	}

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			c.UI.Error(fmt.Sprintf("error serving: %v", err))
			return 1
		}
		return 0
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(
		context.Background(), config.Duration(cfg.Server.ShutdownTimeout))
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		c.UI.Error(fmt.Sprintf("error shutting down server: %v", err))
		return 1
	}
	return 0
}

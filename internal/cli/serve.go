package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/eggprofit/internal/infrastructure/server"
)

// NewServeCommand creates the serve command
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the launcher and its loopback bridge",
		Long: `Run connectivity probing and launch resolution, drive the browsing
session for remote content, and serve the bridge the native shell talks to.

Example:
  launcher serve
  BRIDGE_PORT=9000 TRUST_POLICY=accept-all launcher serve -v`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), rootOpts)
		},
	}
}

func runServe(parent context.Context, opts *RootOptions) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := opts.Logger()
	srv, err := server.New(ctx, opts.Config, server.Options{Logger: logger})
	if err != nil {
		return WrapExitError(ExitCommandError, "initialize launcher", err)
	}
	defer func() {
		if cerr := srv.Close(); cerr != nil {
			logger.Error("Shutdown failed", zap.Error(cerr))
		}
	}()

	if err := srv.Run(ctx); err != nil {
		return WrapExitError(ExitFailure, "launcher stopped", err)
	}
	return nil
}

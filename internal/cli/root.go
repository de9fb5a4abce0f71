// Package cli implements the launcher command line.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/eggprofit/internal/infrastructure/config"
	"github.com/GriffinCanCode/eggprofit/internal/infrastructure/logging"
)

// ValidFormats are the accepted --format values
var ValidFormats = []string{"text", "json"}

// RootOptions holds global flags and the loaded configuration
type RootOptions struct {
	Verbose     bool
	Format      string
	StatePath   string
	StateDriver string

	Config *config.Config
}

// Logger builds the logger for a command run
func (o *RootOptions) Logger() *logging.Logger {
	level := o.Config.Logging.Level
	if o.Verbose {
		level = "debug"
	}
	return logging.NewFromLevel(level, o.Config.Logging.Development)
}

// NewRootCommand creates the launcher root command
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "launcher",
		Short: "Launch resolver and embedded browsing session manager",
		Long: `Decides at startup whether the app shows remote content, the native
fallback or a connectivity failure, persists that decision, and drives the
browsing session for remote content.

Configuration comes from the environment (see STATE_PATH, CONFIG_ENDPOINT,
TRUST_POLICY, BRIDGE_PORT and friends); flags override the state location.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			cfg, err := config.Load()
			if err != nil {
				return WrapExitError(ExitCommandError, "load configuration", err)
			}
			if opts.StatePath != "" {
				cfg.Storage.Path = opts.StatePath
			}
			if opts.StateDriver != "" {
				cfg.Storage.Driver = opts.StateDriver
			}
			if err := cfg.Validate(); err != nil {
				return WrapExitError(ExitCommandError, "invalid configuration", err)
			}
			opts.Config = cfg
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.StatePath, "state", "", "state database path (overrides STATE_PATH)")
	cmd.PersistentFlags().StringVar(&opts.StateDriver, "driver", "", "state driver: sqlite or memory (overrides STATE_DRIVER)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewResolveCommand(opts))
	cmd.AddCommand(NewStateCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/eggprofit/internal/domain/notify"
	"github.com/GriffinCanCode/eggprofit/internal/infrastructure/server"
	"github.com/GriffinCanCode/eggprofit/internal/shared/types"
)

// ResolveOptions holds flags for the resolve command
type ResolveOptions struct {
	*RootOptions
	Prompt           string
	Attribution      string
	AttributionError string
	Timeout          time.Duration
}

// ResolveResult is printed after a pass
type ResolveResult struct {
	Phase      types.Phase       `json:"phase"`
	Address    string            `json:"address,omitempty"`
	Generation uint64            `json:"generation"`
	InstallID  string            `json:"install_id"`
	State      types.LaunchState `json:"state"`
}

// NewResolveCommand creates the resolve command
func NewResolveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ResolveOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Run one launch resolution pass and print the phase",
		Long: `Run a single resolution pass against the configured endpoints and
persisted state, then print the phase it settled on.

The attribution payload stands in for the attribution SDK. The prompt flag
answers the notification prompt if the pass asks for one: granted, denied,
declined, or none to never prompt.

Example:
  launcher resolve --attribution '{"af_status":"Non-organic"}'
  launcher resolve --prompt granted --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.Prompt, "prompt", "none", "answer to the notification prompt (granted|denied|declined|none)")
	cmd.Flags().StringVar(&opts.Attribution, "attribution", "", "attribution payload as a JSON object")
	cmd.Flags().StringVar(&opts.AttributionError, "attribution-error", "", "report an attribution failure instead of a payload")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 2*time.Minute, "give up after this long")

	return cmd
}

func runResolve(parent context.Context, opts *ResolveOptions, w io.Writer) error {
	if parent == nil {
		parent = context.Background()
	}

	prompter, err := scriptedPrompter(opts.Prompt)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --prompt", err)
	}
	var payload map[string]interface{}
	if opts.Attribution != "" {
		if err := json.Unmarshal([]byte(opts.Attribution), &payload); err != nil || payload == nil {
			return WrapExitError(ExitCommandError, "invalid --attribution", errors.Join(err, errors.New("payload must be a JSON object")))
		}
	}

	cfg := *opts.Config
	cfg.Bridge.Enabled = false

	logger := opts.Logger()
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(parent, opts.Timeout)
	defer cancel()

	srv, err := server.New(ctx, &cfg, server.Options{Logger: logger, Prompter: prompter})
	if err != nil {
		return WrapExitError(ExitCommandError, "initialize launcher", err)
	}
	defer func() {
		if cerr := srv.Close(); cerr != nil {
			logger.Error("Shutdown failed", zap.Error(cerr))
		}
	}()

	switch {
	case opts.AttributionError != "":
		srv.Collector().Fail(errors.New(opts.AttributionError))
	case payload != nil:
		srv.Collector().Deliver(payload)
	}

	phase, err := srv.Resolve(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "resolution did not settle", err)
	}

	result := ResolveResult{
		Phase:      phase.Phase,
		Address:    phase.Address,
		Generation: srv.Resolver().Generation(),
		InstallID:  srv.Collector().InstallID(),
		State:      srv.Store().Snapshot(),
	}
	return writeResult(w, opts.Format, result, func(w io.Writer) error {
		if result.Address != "" {
			_, err := fmt.Fprintf(w, "%s %s\n", result.Phase, result.Address)
			return err
		}
		_, err := fmt.Fprintln(w, result.Phase)
		return err
	})
}

// scriptedPrompter answers every prompt with a fixed outcome. "none" never
// prompts.
func scriptedPrompter(answer string) (notify.Prompter, error) {
	if answer == "" || answer == "none" {
		return nil, nil
	}
	outcome, err := notify.ParseOutcome(answer)
	if err != nil {
		return nil, err
	}
	return notify.PrompterFunc(func(context.Context) (notify.Outcome, error) {
		return outcome, nil
	}), nil
}

package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/eggprofit/internal/domain/attribution"
	"github.com/GriffinCanCode/eggprofit/internal/domain/state"
	"github.com/GriffinCanCode/eggprofit/internal/providers/storage"
	"github.com/GriffinCanCode/eggprofit/internal/shared/types"
)

// StateView is the printed form of the persisted state
type StateView struct {
	InstallID string            `json:"install_id,omitempty"`
	State     types.LaunchState `json:"state"`
}

// NewStateCommand creates the state command group
func NewStateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect or reset the persisted launch state",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the persisted launch state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), rootOpts, func(ctx context.Context, backend storage.Backend, store *state.Store) error {
				installID, _, err := backend.Get(ctx, attribution.KeyInstallID)
				if err != nil {
					return WrapExitError(ExitFailure, "read install id", err)
				}
				view := StateView{InstallID: installID, State: store.Snapshot()}
				return writeResult(cmd.OutOrStdout(), rootOpts.Format, view, func(w io.Writer) error {
					return printState(w, view)
				})
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Forget the committed mode, saved address and prompt history",
		Long: `Remove every persisted launch state key. The install id is kept so
attribution stays tied to the same install.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), rootOpts, func(ctx context.Context, _ storage.Backend, store *state.Store) error {
				if err := store.Reset(ctx); err != nil {
					return WrapExitError(ExitFailure, "reset state", err)
				}
				return writeResult(cmd.OutOrStdout(), rootOpts.Format, map[string]bool{"reset": true}, func(w io.Writer) error {
					_, err := fmt.Fprintln(w, "launch state reset")
					return err
				})
			})
		},
	})
	return cmd
}

func withStore(ctx context.Context, opts *RootOptions, fn func(context.Context, storage.Backend, *state.Store) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	backend, err := storage.Open(opts.Config.Storage.Driver, opts.Config.Storage.Path)
	if err != nil {
		return WrapExitError(ExitCommandError, "open state backend", err)
	}
	defer backend.Close()

	store, err := state.Open(ctx, backend, opts.Logger())
	if err != nil {
		return WrapExitError(ExitFailure, "load launch state", err)
	}
	return fn(ctx, backend, store)
}

func printState(w io.Writer, view StateView) error {
	st := view.State
	mode := string(st.AppMode)
	if mode == "" {
		mode = "unset"
	}
	rows := [][2]string{
		{"install id", view.InstallID},
		{"launched before", fmt.Sprint(st.HasLaunchedBefore)},
		{"app mode", mode},
		{"saved address", st.SavedAddress},
		{"saved expiry", formatTime(st.SavedExpiry)},
		{"notifications accepted", fmt.Sprint(st.AcceptedNotifications)},
		{"notifications declined by system", fmt.Sprint(st.SystemDeclinedNotifications)},
		{"last prompt", formatTime(st.LastNotificationPromptAt)},
		{"push token", st.PushToken},
		{"pending deep link", st.PendingDeepLink},
		{"cookies", fmt.Sprint(st.Cookies.Len())},
	}
	for _, row := range rows {
		if _, err := fmt.Fprintf(w, "%-34s %s\n", row[0]+":", row[1]); err != nil {
			return err
		}
	}
	return nil
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}

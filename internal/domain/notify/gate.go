// Package notify decides when to ask for notification permission and records
// the outcome in the persisted launch state.
package notify

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/eggprofit/internal/domain/state"
	"github.com/GriffinCanCode/eggprofit/internal/infrastructure/logging"
	"github.com/GriffinCanCode/eggprofit/internal/shared/types"
)

// DefaultCooldown is how long a declined prompt stays quiet
const DefaultCooldown = 72 * time.Hour

// Outcome is the user's answer to a permission prompt
type Outcome int

const (
	// Declined means the user dismissed the in-app prompt
	Declined Outcome = iota
	// Granted means the platform permission request succeeded
	Granted
	// Denied means the platform permission request was refused
	Denied
)

func (o Outcome) String() string {
	switch o {
	case Granted:
		return "granted"
	case Denied:
		return "denied"
	default:
		return "declined"
	}
}

// Prompter shows the permission prompt and reports the answer
type Prompter interface {
	Prompt(ctx context.Context) (Outcome, error)
}

// PrompterFunc adapts a function to Prompter
type PrompterFunc func(ctx context.Context) (Outcome, error)

// Prompt calls f
func (f PrompterFunc) Prompt(ctx context.Context) (Outcome, error) {
	return f(ctx)
}

// ShouldPrompt reports whether a prompt is due for st at now
func ShouldPrompt(st types.LaunchState, now time.Time, cooldown time.Duration) bool {
	if st.LastNotificationPromptAt != nil && now.Sub(*st.LastNotificationPromptAt) < cooldown {
		return false
	}
	if st.AcceptedNotifications || st.SystemDeclinedNotifications {
		return false
	}
	return true
}

// Gate runs the prompt when due and persists the answer
type Gate struct {
	store    *state.Store
	prompter Prompter
	cooldown time.Duration
	timeout  time.Duration
	now      func() time.Time
	logger   *logging.Logger
}

// Option configures a Gate
type Option func(*Gate)

// WithCooldown overrides DefaultCooldown
func WithCooldown(d time.Duration) Option {
	return func(g *Gate) { g.cooldown = d }
}

// WithTimeout bounds how long the gate waits for an answer
func WithTimeout(d time.Duration) Option {
	return func(g *Gate) { g.timeout = d }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// WithLogger sets the logger
func WithLogger(l *logging.Logger) Option {
	return func(g *Gate) { g.logger = l }
}

// NewGate creates a gate. A nil prompter never prompts.
func NewGate(store *state.Store, prompter Prompter, opts ...Option) *Gate {
	g := &Gate{
		store:    store,
		prompter: prompter,
		cooldown: DefaultCooldown,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = logging.OrNop(g.logger).Named("notify")
	return g
}

// Due reports whether the current persisted state calls for a prompt
func (g *Gate) Due() bool {
	return g.prompter != nil && ShouldPrompt(g.store.Snapshot(), g.now(), g.cooldown)
}

// Run prompts when due and records the outcome. It never returns a prompt
// failure: an error or a timeout counts as a decline so launch can proceed.
// Only a failed state write is returned.
func (g *Gate) Run(ctx context.Context) (prompted bool, err error) {
	if !g.Due() {
		return false, nil
	}

	promptCtx := ctx
	if g.timeout > 0 {
		var cancel context.CancelFunc
		promptCtx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	outcome, perr := g.prompter.Prompt(promptCtx)
	if perr != nil {
		if errors.Is(perr, context.DeadlineExceeded) {
			g.logger.Info("Notification prompt timed out")
		} else {
			g.logger.Warn("Notification prompt failed", zap.Error(perr))
		}
		outcome = Declined
	}

	g.logger.Info("Notification prompt answered", zap.Stringer("outcome", outcome))
	switch outcome {
	case Granted, Denied:
		return true, g.RecordPermission(ctx, outcome == Granted)
	default:
		return true, g.RecordDecline(ctx)
	}
}

// RecordDecline starts the cooldown
func (g *Gate) RecordDecline(ctx context.Context) error {
	now := g.now()
	_, err := g.store.Update(ctx, func(st *types.LaunchState) error {
		st.LastNotificationPromptAt = &now
		return nil
	})
	return err
}

// RecordPermission persists the platform permission result
func (g *Gate) RecordPermission(ctx context.Context, granted bool) error {
	_, err := g.store.Update(ctx, func(st *types.LaunchState) error {
		st.AcceptedNotifications = granted
		st.SystemDeclinedNotifications = !granted
		return nil
	})
	return err
}

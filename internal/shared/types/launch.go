package types

import (
	"errors"
	"time"
)

// Phase identifies the top-level experience selected for a launch
type Phase string

const (
	PhaseLaunching           Phase = "launching"
	PhaseRemoteContent       Phase = "remote_content"
	PhaseNativeFallback      Phase = "native_fallback"
	PhaseConnectivityFailure Phase = "connectivity_failure"
)

// Final reports whether the phase ends a resolution pass
func (p Phase) Final() bool {
	return p != PhaseLaunching
}

// LaunchPhase is the resolved phase plus the remote address when one applies
type LaunchPhase struct {
	Phase   Phase  `json:"phase"`
	Address string `json:"address,omitempty"`
}

// AppMode is the experience an install has committed to
type AppMode string

const (
	ModeUnset          AppMode = ""
	ModeRemoteContent  AppMode = "remote_content"
	ModeNativeFallback AppMode = "native_fallback"
)

// ErrRemoteWithoutAddress is returned when a state commits to remote content
// without an address to load.
var ErrRemoteWithoutAddress = errors.New("remote content mode requires a saved address")

// LaunchState is everything the launcher persists between process runs
type LaunchState struct {
	HasLaunchedBefore           bool           `json:"has_launched_before"`
	AppMode                     AppMode        `json:"app_mode"`
	SavedAddress                string         `json:"saved_address,omitempty"`
	SavedExpiry                 *time.Time     `json:"saved_expiry,omitempty"`
	AcceptedNotifications       bool           `json:"accepted_notifications"`
	SystemDeclinedNotifications bool           `json:"system_declined_notifications"`
	LastNotificationPromptAt    *time.Time     `json:"last_notification_prompt_at,omitempty"`
	PushToken                   string         `json:"push_token,omitempty"`
	PendingDeepLink             string         `json:"pending_deep_link,omitempty"`
	Cookies                     CookieSnapshot `json:"cookies,omitempty"`
}

// Validate enforces that remote content mode always carries an address.
func (s LaunchState) Validate() error {
	if s.AppMode == ModeRemoteContent && s.SavedAddress == "" {
		return ErrRemoteWithoutAddress
	}
	return nil
}

// Clone returns a deep copy so callers can mutate freely.
func (s LaunchState) Clone() LaunchState {
	out := s
	out.SavedExpiry = cloneTime(s.SavedExpiry)
	out.LastNotificationPromptAt = cloneTime(s.LastNotificationPromptAt)
	out.Cookies = s.Cookies.Clone()
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// SessionConfig is the decoded reply of the session-config endpoint
type SessionConfig struct {
	OK        bool
	Address   string
	ExpiresAt *time.Time
}

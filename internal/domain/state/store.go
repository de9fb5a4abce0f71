// Package state owns the persisted launch state.
//
// Every read goes through Snapshot and every write through Update. Updates
// are serialized by one mutex and written to the backend immediately, one key
// per field, so the resolver, the notification gate and the browsing session
// manager can share the store without coordinating among themselves.
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/eggprofit/internal/infrastructure/logging"
	"github.com/GriffinCanCode/eggprofit/internal/providers/storage"
	"github.com/GriffinCanCode/eggprofit/internal/shared/types"
)

// Persisted keys
const (
	KeyHasLaunched         = "hasLaunched"
	KeyAppMode             = "app_mode"
	KeySavedURL            = "saved_url"
	KeySavedExpires        = "saved_expires"
	KeyAcceptedNotif       = "accepted_notifications"
	KeySystemDeclinedNotif = "system_close_notifications"
	KeyLastNotifAsk        = "last_notification_ask"
	KeyPushToken           = "fcm_token"
	KeyPendingDeepLink     = "temp_url"
	KeySessionCookies      = "session_cookies"
)

// AllKeys lists every key the store manages
var AllKeys = []string{
	KeyHasLaunched,
	KeyAppMode,
	KeySavedURL,
	KeySavedExpires,
	KeyAcceptedNotif,
	KeySystemDeclinedNotif,
	KeyLastNotifAsk,
	KeyPushToken,
	KeyPendingDeepLink,
	KeySessionCookies,
}

// Store is the single serialized accessor for types.LaunchState
type Store struct {
	backend storage.Backend
	logger  *logging.Logger

	mu      sync.Mutex
	current types.LaunchState
	encoded map[string]string
}

// Open reads the persisted state from backend
func Open(ctx context.Context, backend storage.Backend, logger *logging.Logger) (*Store, error) {
	s := &Store{
		backend: backend,
		logger:  logging.OrNop(logger).Named("state"),
	}

	raw := make(map[string]string)
	for _, key := range AllKeys {
		v, ok, err := backend.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", key, err)
		}
		if ok {
			raw[key] = v
		}
	}

	st, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	if err := st.Validate(); err != nil {
		// A half-written remote commitment is treated as no commitment at all
		s.logger.Warn("Discarding inconsistent app mode", zap.Error(err))
		st.AppMode = types.ModeUnset
	}

	s.current = st
	s.encoded = Encode(st)
	return s, nil
}

// Snapshot returns a copy of the current state
func (s *Store) Snapshot() types.LaunchState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Clone()
}

// Update applies fn to a copy of the state and persists the changed keys.
// When fn fails or the result violates the remote-content invariant nothing
// is written and the previous state stays current.
func (s *Store) Update(ctx context.Context, fn func(st *types.LaunchState) error) (types.LaunchState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.current.Clone()
	if err := fn(&next); err != nil {
		return s.current.Clone(), err
	}
	if err := next.Validate(); err != nil {
		return s.current.Clone(), err
	}
	normalize(&next)

	encoded := Encode(next)
	if err := s.writeDiff(ctx, encoded); err != nil {
		return s.current.Clone(), err
	}

	s.current = next
	s.encoded = encoded
	return next.Clone(), nil
}

// Reset removes every persisted key
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.backend.Apply(ctx, nil, AllKeys); err != nil {
		return fmt.Errorf("reset launch state: %w", err)
	}
	s.current = types.LaunchState{}
	s.encoded = map[string]string{}
	return nil
}

// writeDiff persists the keys that changed since the last write as one
// batch, so a failed write leaves the backend at the previous state.
func (s *Store) writeDiff(ctx context.Context, encoded map[string]string) error {
	set := make(map[string]string)
	var del []string
	for _, key := range AllKeys {
		prev, hadPrev := s.encoded[key]
		next, hasNext := encoded[key]
		switch {
		case hasNext && (!hadPrev || prev != next):
			set[key] = next
		case !hasNext && hadPrev:
			del = append(del, key)
		}
	}
	if len(set) == 0 && len(del) == 0 {
		return nil
	}
	if err := s.backend.Apply(ctx, set, del); err != nil {
		return fmt.Errorf("write launch state: %w", err)
	}
	return nil
}

// normalize strips monotonic readings and zones so a reload compares equal
func normalize(st *types.LaunchState) {
	st.SavedExpiry = normalizeTime(st.SavedExpiry)
	st.LastNotificationPromptAt = normalizeTime(st.LastNotificationPromptAt)
	if st.Cookies.Len() == 0 {
		st.Cookies = nil
		return
	}
	for domain, byName := range st.Cookies {
		for name, c := range byName {
			c.Expires = normalizeTime(c.Expires)
			byName[name] = c
		}
		st.Cookies[domain] = byName
	}
}

func normalizeTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC().Round(0)
	return &v
}

// Encode flattens a state into persisted key-value pairs. Zero-valued
// fields are omitted.
func Encode(st types.LaunchState) map[string]string {
	out := make(map[string]string)
	putBool := func(key string, v bool) {
		if v {
			out[key] = strconv.FormatBool(v)
		}
	}
	putString := func(key, v string) {
		if v != "" {
			out[key] = v
		}
	}
	putTime := func(key string, v *time.Time) {
		if v != nil {
			out[key] = v.UTC().Format(time.RFC3339Nano)
		}
	}

	putBool(KeyHasLaunched, st.HasLaunchedBefore)
	putString(KeyAppMode, string(st.AppMode))
	putString(KeySavedURL, st.SavedAddress)
	putTime(KeySavedExpires, st.SavedExpiry)
	putBool(KeyAcceptedNotif, st.AcceptedNotifications)
	putBool(KeySystemDeclinedNotif, st.SystemDeclinedNotifications)
	putTime(KeyLastNotifAsk, st.LastNotificationPromptAt)
	putString(KeyPushToken, st.PushToken)
	putString(KeyPendingDeepLink, st.PendingDeepLink)
	if st.Cookies.Len() > 0 {
		if data, err := json.Marshal(st.Cookies); err == nil {
			out[KeySessionCookies] = string(data)
		}
	}
	return out
}

// Decode rebuilds a state from persisted key-value pairs
func Decode(raw map[string]string) (types.LaunchState, error) {
	var st types.LaunchState
	var err error

	if st.HasLaunchedBefore, err = decodeBool(raw, KeyHasLaunched); err != nil {
		return st, err
	}
	if st.AcceptedNotifications, err = decodeBool(raw, KeyAcceptedNotif); err != nil {
		return st, err
	}
	if st.SystemDeclinedNotifications, err = decodeBool(raw, KeySystemDeclinedNotif); err != nil {
		return st, err
	}
	if st.SavedExpiry, err = decodeTime(raw, KeySavedExpires); err != nil {
		return st, err
	}
	if st.LastNotificationPromptAt, err = decodeTime(raw, KeyLastNotifAsk); err != nil {
		return st, err
	}

	switch mode := types.AppMode(raw[KeyAppMode]); mode {
	case types.ModeUnset, types.ModeRemoteContent, types.ModeNativeFallback:
		st.AppMode = mode
	default:
		return st, fmt.Errorf("decode %s: unknown mode %q", KeyAppMode, mode)
	}

	st.SavedAddress = raw[KeySavedURL]
	st.PushToken = raw[KeyPushToken]
	st.PendingDeepLink = raw[KeyPendingDeepLink]

	if data, ok := raw[KeySessionCookies]; ok && data != "" {
		var cookies types.CookieSnapshot
		if err := json.Unmarshal([]byte(data), &cookies); err != nil {
			return st, fmt.Errorf("decode %s: %w", KeySessionCookies, err)
		}
		if cookies.Len() > 0 {
			st.Cookies = cookies
		}
	}

	normalize(&st)
	return st, nil
}

func decodeBool(raw map[string]string, key string) (bool, error) {
	v, ok := raw[key]
	if !ok || v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return b, nil
}

func decodeTime(raw map[string]string, key string) (*time.Time, error) {
	v, ok := raw[key]
	if !ok || v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return &t, nil
}

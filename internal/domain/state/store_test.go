package state

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/eggprofit/internal/providers/storage"
	"github.com/GriffinCanCode/eggprofit/internal/shared/types"
)

func timePtr(t time.Time) *time.Time { return &t }

func sampleStates() map[string]types.LaunchState {
	prompt := time.Date(2026, 10, 18, 9, 30, 0, 123456789, time.FixedZone("EEST", 3*3600))
	expiry := time.Unix(1999999999, 0)
	cookieExp := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)

	return map[string]types.LaunchState{
		"empty": {},
		"native committed": {
			HasLaunchedBefore: true,
			AppMode:           types.ModeNativeFallback,
		},
		"remote committed with everything": {
			HasLaunchedBefore:           true,
			AppMode:                     types.ModeRemoteContent,
			SavedAddress:                "https://x.example/s1",
			SavedExpiry:                 timePtr(expiry),
			AcceptedNotifications:       false,
			SystemDeclinedNotifications: true,
			LastNotificationPromptAt:    timePtr(prompt),
			PushToken:                   "token-1",
			PendingDeepLink:             "https://promo.example/deal",
			Cookies: types.CookieSnapshot{
				"x.example": {
					"sid":  {Name: "sid", Value: "abc", Domain: "x.example", Path: "/", Secure: true, HTTPOnly: true, Expires: timePtr(cookieExp)},
					"pref": {Name: "pref", Value: "dark", Domain: "x.example"},
				},
			},
		},
	}
}

func newStore(t *testing.T, backend storage.Backend) *Store {
	t.Helper()
	s, err := Open(context.Background(), backend, nil)
	require.NoError(t, err)
	return s
}

func TestRoundTrip(t *testing.T) {
	for name, st := range sampleStates() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			backend, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "state.db"))
			require.NoError(t, err)
			defer backend.Close()

			s := newStore(t, backend)
			saved, err := s.Update(ctx, func(cur *types.LaunchState) error {
				*cur = st.Clone()
				return nil
			})
			require.NoError(t, err)

			reloaded := newStore(t, backend)
			assert.Equal(t, saved, reloaded.Snapshot())

			// Saving the reloaded state again writes the same structure
			again, err := reloaded.Update(ctx, func(*types.LaunchState) error { return nil })
			require.NoError(t, err)
			assert.Equal(t, saved, again)
		})
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	for name, st := range sampleStates() {
		t.Run(name, func(t *testing.T) {
			normalized := st.Clone()
			normalize(&normalized)

			decoded, err := Decode(Encode(st))
			require.NoError(t, err)
			assert.Equal(t, normalized, decoded)
		})
	}
}

func TestUpdateRejectsRemoteWithoutAddress(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemory()
	s := newStore(t, backend)

	_, err := s.Update(ctx, func(st *types.LaunchState) error {
		st.HasLaunchedBefore = true
		st.AppMode = types.ModeRemoteContent
		return nil
	})
	assert.ErrorIs(t, err, types.ErrRemoteWithoutAddress)

	// Nothing reached the backend
	keys, err := backend.Keys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)
	assert.Equal(t, types.LaunchState{}, s.Snapshot())
}

func TestUpdateCallbackErrorLeavesStateUntouched(t *testing.T) {
	s := newStore(t, storage.NewMemory())
	boom := errors.New("boom")

	_, err := s.Update(context.Background(), func(st *types.LaunchState) error {
		st.PushToken = "half-written"
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, s.Snapshot().PushToken)
}

func TestUpdateWritesImmediately(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemory()
	s := newStore(t, backend)

	_, err := s.Update(ctx, func(st *types.LaunchState) error {
		st.PushToken = "tok"
		st.PendingDeepLink = "https://promo.example"
		return nil
	})
	require.NoError(t, err)

	v, ok, err := backend.Get(ctx, KeyPushToken)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "tok", v)

	// Clearing a field deletes its key
	_, err = s.Update(ctx, func(st *types.LaunchState) error {
		st.PendingDeepLink = ""
		return nil
	})
	require.NoError(t, err)
	_, ok, err = backend.Get(ctx, KeyPendingDeepLink)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSnapshotIsACopy(t *testing.T) {
	s := newStore(t, storage.NewMemory())
	_, err := s.Update(context.Background(), func(st *types.LaunchState) error {
		st.Cookies = types.CookieSnapshot{}
		st.Cookies.Put(types.Cookie{Name: "a", Value: "1", Domain: "d.example"})
		return nil
	})
	require.NoError(t, err)

	snap := s.Snapshot()
	snap.Cookies.Put(types.Cookie{Name: "b", Value: "2", Domain: "d.example"})
	assert.Equal(t, 1, s.Snapshot().Cookies.Len())
}

func TestConcurrentUpdatesAreSerialized(t *testing.T) {
	s := newStore(t, storage.NewMemory())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Update(ctx, func(st *types.LaunchState) error {
				if st.Cookies == nil {
					st.Cookies = types.CookieSnapshot{}
				}
				st.Cookies.Put(types.Cookie{Name: fmt.Sprintf("c%d", i), Value: "v", Domain: "d.example"})
				return nil
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 50, s.Snapshot().Cookies.Len())
}

func TestOpenDiscardsInconsistentMode(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemory()
	require.NoError(t, backend.Set(ctx, KeyAppMode, string(types.ModeRemoteContent)))
	require.NoError(t, backend.Set(ctx, KeyHasLaunched, "true"))

	s := newStore(t, backend)
	snap := s.Snapshot()
	assert.Equal(t, types.ModeUnset, snap.AppMode)
	assert.True(t, snap.HasLaunchedBefore)
}

func TestOpenRejectsCorruptValues(t *testing.T) {
	tests := map[string]string{
		KeyHasLaunched:    "maybe",
		KeyAppMode:        "Funtik",
		KeyLastNotifAsk:   "yesterday",
		KeySessionCookies: "{not json",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			backend := storage.NewMemory()
			require.NoError(t, backend.Set(context.Background(), key, value))

			_, err := Open(context.Background(), backend, nil)
			assert.Error(t, err)
		})
	}
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemory()
	s := newStore(t, backend)

	_, err := s.Update(ctx, func(st *types.LaunchState) error {
		st.HasLaunchedBefore = true
		st.AppMode = types.ModeNativeFallback
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, s.Reset(ctx))
	assert.Equal(t, types.LaunchState{}, s.Snapshot())

	keys, err := backend.Keys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

// flakyBackend fails batches while failing is set
type flakyBackend struct {
	storage.Backend
	failing bool
}

func (b *flakyBackend) Apply(ctx context.Context, set map[string]string, del []string) error {
	if b.failing {
		return errors.New("disk full")
	}
	return b.Backend.Apply(ctx, set, del)
}

func TestFailedWriteLeavesBackendAndStateUnchanged(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	backend := &flakyBackend{Backend: mem}
	s := newStore(t, backend)

	commitRemote := func(st *types.LaunchState) error {
		st.HasLaunchedBefore = true
		st.AppMode = types.ModeRemoteContent
		st.SavedAddress = "https://x.example/s1"
		return nil
	}

	backend.failing = true
	_, err := s.Update(ctx, commitRemote)
	require.Error(t, err)
	assert.Equal(t, types.LaunchState{}, s.Snapshot())
	keys, err := mem.Keys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)

	// The next write still carries every changed key
	backend.failing = false
	_, err = s.Update(ctx, commitRemote)
	require.NoError(t, err)

	reopened := newStore(t, mem)
	assert.Equal(t, s.Snapshot(), reopened.Snapshot())
	assert.Equal(t, "https://x.example/s1", reopened.Snapshot().SavedAddress)
}

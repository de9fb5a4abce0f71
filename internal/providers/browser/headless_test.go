package browser

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/eggprofit/internal/domain/state"
	"github.com/GriffinCanCode/eggprofit/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/eggprofit/internal/providers/storage"
)

func newSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/good", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, "<html><head><title>Good</title></head><body>ok</body></html>")
	})
	mux.HandleFunc("/other", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html><head><title>Other</title></head></html>")
	})
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "sid", Value: "s3cr3t", Path: "/"})
		http.Redirect(w, r, "/good", http.StatusFound)
	})
	mux.HandleFunc("/whoami", func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie("sid")
		if err != nil {
			fmt.Fprint(w, "<title>anonymous</title>")
			return
		}
		fmt.Fprintf(w, "<title>%s</title>", c.Value)
	})
	mux.HandleFunc("/loop/", func(w http.ResponseWriter, r *http.Request) {
		n, _ := strconv.Atoi(strings.TrimPrefix(r.URL.Path, "/loop/"))
		http.Redirect(w, r, fmt.Sprintf("/loop/%d", n+1), http.StatusFound)
	})
	mux.HandleFunc("/refresh", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><head><meta http-equiv="Refresh" content="0; URL='/other'"></head></html>`)
	})
	mux.HandleFunc("/mail", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "mailto:help@example.com", http.StatusFound)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newHeadlessManager(t *testing.T, opts Options, hops int) *harness {
	t.Helper()
	store, err := state.Open(context.Background(), storage.NewMemory(), nil)
	require.NoError(t, err)

	h := &harness{container: &fakeContainer{}, recovery: &recoveryRecorder{}, store: store}
	h.manager = NewManager(Deps{
		Factory:   HeadlessFactory(HeadlessOptions{MaxHops: hops}),
		Store:     store,
		Container: h.container,
		Opener: ExternalOpenerFunc(func(_ context.Context, address string) error {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.opened = append(h.opened, address)
			return nil
		}),
		Recovery: h.recovery,
	}, opts)
	t.Cleanup(h.manager.Close)
	return h
}

func headlessPrimary(t *testing.T, h *harness) *Headless {
	t.Helper()
	primaryID, ok := h.manager.Primary()
	require.True(t, ok)
	tracked := h.manager.find(primaryID)
	require.NotNil(t, tracked)
	surface, ok := tracked.surface.(*Headless)
	require.True(t, ok)
	return surface
}

func TestHeadlessLoadCommitsPage(t *testing.T) {
	srv := newSite(t)
	h := newHeadlessManager(t, Options{}, 0)

	_, err := h.manager.OpenPrimary(context.Background(), srv.URL+"/good")
	require.NoError(t, err)

	s := headlessPrimary(t, h)
	assert.Equal(t, srv.URL+"/good", s.CurrentAddress())
	assert.Equal(t, "Good", s.Title())
	assert.False(t, s.CanGoBack())
	assert.Equal(t, srv.URL+"/good", h.manager.Surfaces()[0].LastSuccessful)
}

func TestHeadlessRedirectLoopRecovers(t *testing.T) {
	srv := newSite(t)
	h := newHeadlessManager(t, Options{}, 0)
	ctx := context.Background()

	_, err := h.manager.OpenPrimary(ctx, srv.URL+"/good")
	require.NoError(t, err)
	s := headlessPrimary(t, h)

	require.NoError(t, s.Follow(ctx, "/loop/0"))

	assert.Equal(t, srv.URL+"/good", s.CurrentAddress())
	info := h.manager.Surfaces()[0]
	assert.Equal(t, 0, info.Redirects)
	assert.Equal(t, srv.URL+"/good", info.LastSuccessful)
	_, escalated := h.recovery.Cause(info.ID)
	assert.False(t, escalated)
}

func TestHeadlessFailedLoadsDoNotBlockLaterLoads(t *testing.T) {
	srv := newSite(t)
	h := newHeadlessManager(t, Options{}, 0)
	ctx := context.Background()

	_, err := h.manager.OpenPrimary(ctx, srv.URL+"/good")
	require.NoError(t, err)
	s := headlessPrimary(t, h)

	for i := 0; i < 10; i++ {
		assert.Error(t, s.Load(ctx, "http://127.0.0.1:1/"))
	}
	assert.Equal(t, resilience.StateClosed, s.client.BreakerState())

	require.NoError(t, s.Load(ctx, srv.URL+"/other"))
	assert.Equal(t, "Other", s.Title())
}

func TestHeadlessHopLimitReportsTooManyRedirects(t *testing.T) {
	srv := newSite(t)
	h := newHeadlessManager(t, Options{}, 5)
	ctx := context.Background()

	_, err := h.manager.OpenPrimary(ctx, srv.URL+"/good")
	require.NoError(t, err)
	s := headlessPrimary(t, h)

	err = s.Follow(ctx, "/loop/0")
	assert.ErrorIs(t, err, ErrTooManyRedirects)
	assert.Equal(t, srv.URL+"/good", s.CurrentAddress())
	assert.Equal(t, 0, h.manager.Surfaces()[0].Redirects)
}

func TestHeadlessLoopWithoutGoodAddressEscalates(t *testing.T) {
	srv := newSite(t)
	h := newHeadlessManager(t, Options{RedirectLimit: 3}, 0)

	surfaceID, err := h.manager.OpenPrimary(context.Background(), srv.URL+"/loop/0")
	require.NoError(t, err)

	// The first decision records the loop entry itself, so reloads keep
	// looping until the recovery budget runs out.
	cause, escalated := h.recovery.Cause(surfaceID)
	require.True(t, escalated)
	assert.ErrorIs(t, cause, ErrRedirectLoop)
}

func TestHeadlessCookiesPersistAcrossSurfaces(t *testing.T) {
	srv := newSite(t)
	h := newHeadlessManager(t, Options{}, 0)
	ctx := context.Background()

	_, err := h.manager.OpenPrimary(ctx, srv.URL+"/login")
	require.NoError(t, err)

	persisted := h.store.Snapshot().Cookies
	require.Equal(t, 1, persisted.Len())
	assert.Equal(t, "s3cr3t", persisted["127.0.0.1"]["sid"].Value)

	// A new primary starts from the persisted snapshot
	_, err = h.manager.OpenPrimary(ctx, srv.URL+"/whoami")
	require.NoError(t, err)
	assert.Equal(t, "s3cr3t", headlessPrimary(t, h).Title())
}

func TestHeadlessMetaRefreshCountsAsRedirect(t *testing.T) {
	srv := newSite(t)
	h := newHeadlessManager(t, Options{}, 0)

	_, err := h.manager.OpenPrimary(context.Background(), srv.URL+"/refresh")
	require.NoError(t, err)

	s := headlessPrimary(t, h)
	assert.Equal(t, srv.URL+"/other", s.CurrentAddress())
	assert.Equal(t, "Other", s.Title())
	assert.True(t, s.CanGoBack())
}

func TestHeadlessExternalRedirectHandsOff(t *testing.T) {
	srv := newSite(t)
	h := newHeadlessManager(t, Options{}, 0)
	ctx := context.Background()

	_, err := h.manager.OpenPrimary(ctx, srv.URL+"/good")
	require.NoError(t, err)
	s := headlessPrimary(t, h)

	require.NoError(t, s.Follow(ctx, "/mail"))

	assert.Equal(t, []string{"mailto:help@example.com"}, h.Opened())
	assert.Equal(t, srv.URL+"/good", s.CurrentAddress())
}

func TestHeadlessHistoryAndDismiss(t *testing.T) {
	srv := newSite(t)
	h := newHeadlessManager(t, Options{}, 0)
	ctx := context.Background()

	_, err := h.manager.OpenPrimary(ctx, srv.URL+"/good")
	require.NoError(t, err)
	primary := headlessPrimary(t, h)

	popup, err := primary.OpenWindow(ctx, "/good", "_blank")
	require.NoError(t, err)
	child := popup.(*Headless)
	require.NoError(t, child.Follow(ctx, "/other"))
	assert.True(t, child.CanGoBack())

	result, err := h.manager.EdgeDismiss(ctx, child.ID())
	require.NoError(t, err)
	assert.Equal(t, DismissWentBack, result)
	assert.Equal(t, srv.URL+"/good", child.CurrentAddress())

	result, err = h.manager.EdgeDismiss(ctx, child.ID())
	require.NoError(t, err)
	assert.Equal(t, DismissClosed, result)
	assert.ErrorIs(t, child.Load(ctx, srv.URL+"/good"), ErrSurfaceClosed)

	framed, err := primary.OpenWindow(ctx, "/other", "sidebar")
	require.NoError(t, err)
	assert.Nil(t, framed)
}

func TestParseRefresh(t *testing.T) {
	tests := []struct {
		content  string
		expected string
	}{
		{"0; url=/next", "/next"},
		{"0;URL='https://example.com/'", "https://example.com/"},
		{"0", ""},
		{"5; url=/later", ""},
		{"soon", ""},
	}
	for _, tt := range tests {
		t.Run(tt.content, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseRefresh(tt.content))
		})
	}
}

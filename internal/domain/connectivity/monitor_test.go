package connectivity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/eggprofit/internal/providers/http/client"
)

func receive(t *testing.T, ch <-chan bool) bool {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(time.Second):
		t.Fatal("no connectivity update")
		return false
	}
}

func assertQuiet(t *testing.T, ch <-chan bool) {
	t.Helper()
	select {
	case v := <-ch:
		t.Fatalf("unexpected update %v", v)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestMonitorDeliversChangesOnly(t *testing.T) {
	m := NewMonitor(nil, Config{}, nil)
	updates, cancel := m.Subscribe()
	defer cancel()

	assert.True(t, m.Online(), "assumed online before any observation")

	m.Set(true)
	assert.True(t, receive(t, updates), "first observation is always delivered")

	m.Set(true)
	assertQuiet(t, updates)

	m.Set(false)
	assert.False(t, receive(t, updates))
	assert.False(t, m.Online())
	assert.ErrorIs(t, m.Check(), ErrUnavailable)
}

func TestMonitorSlowSubscriberSeesLatest(t *testing.T) {
	m := NewMonitor(nil, Config{}, nil)
	updates, cancel := m.Subscribe()
	defer cancel()

	m.Set(false)
	m.Set(true)
	m.Set(false)

	assert.False(t, receive(t, updates))
	assertQuiet(t, updates)
}

func TestMonitorUnsubscribe(t *testing.T) {
	m := NewMonitor(nil, Config{}, nil)
	updates, cancel := m.Subscribe()
	cancel()
	cancel()

	m.Set(false)
	assertQuiet(t, updates)
}

func TestMonitorProbeLoop(t *testing.T) {
	var online atomic.Bool
	online.Store(false)

	m := NewMonitor(ProberFunc(func(context.Context) bool {
		return online.Load()
	}), Config{Interval: 5 * time.Millisecond}, nil)
	updates, unsubscribe := m.Subscribe()
	defer unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	m.Start(ctx)

	// Start probes synchronously before returning
	assert.False(t, m.Online())
	assert.False(t, receive(t, updates))

	online.Store(true)
	assert.True(t, receive(t, updates))

	cancel()
	select {
	case <-m.Done():
	case <-time.After(time.Second):
		t.Fatal("probe loop did not stop")
	}
}

func TestHTTPProber(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		w.WriteHeader(http.StatusNoContent)
	}))

	prober := &HTTPProber{Client: client.NewClient(client.Options{Timeout: time.Second}), URL: srv.URL}
	require.True(t, prober.Probe(context.Background()))

	srv.Close()
	assert.False(t, prober.Probe(context.Background()))
}

package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/eggprofit/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/eggprofit/internal/providers/http/client"
	"github.com/GriffinCanCode/eggprofit/internal/shared/types"
)

func newClient(t *testing.T, handler http.HandlerFunc) (*Client, *monitoring.Metrics) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	metrics := monitoring.NewMetrics()
	c := New(client.NewClient(client.Options{}), Config{
		ConfigEndpoint:      srv.URL + "/config.php",
		AttributionEndpoint: srv.URL + "/install_data",
		DevKey:              "dev-key",
		BundleID:            "com.example.app",
		OSTag:               "iOS",
		StoreID:             "id6753625851",
		Locale:              "en-GB",
		PushProjectID:       "123456",
		OrganicTimeout:      200 * time.Millisecond,
		ConfigTimeout:       200 * time.Millisecond,
	}, metrics, nil)
	return c, metrics
}

func TestVerifyOrganicInstall(t *testing.T) {
	c, metrics := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/install_data", r.URL.Path)
		assert.Equal(t, "dev-key", r.URL.Query().Get("devkey"))
		assert.Equal(t, "install-1", r.URL.Query().Get("device_id"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		_, _ = w.Write([]byte(`{"af_status":"Non-organic","media_source":"ads"}`))
	})

	payload, err := c.VerifyOrganicInstall(context.Background(), "install-1")
	require.NoError(t, err)
	assert.False(t, payload.IsOrganic())
	assert.Equal(t, "ads", payload["media_source"])
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RemoteCalls.WithLabelValues(CallOrganic, "ok")))
}

func TestVerifyOrganicInstallFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		kind    FailureKind
	}{
		{
			name:    "non-200",
			handler: func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusForbidden) },
			kind:    KindStatus,
		},
		{
			name:    "not json",
			handler: func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("<html>")) },
			kind:    KindMalformed,
		},
		{
			name:    "json array",
			handler: func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(`[1,2]`)) },
			kind:    KindMalformed,
		},
		{
			name:    "json null",
			handler: func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(`null`)) },
			kind:    KindMalformed,
		},
		{
			name: "timeout",
			handler: func(w http.ResponseWriter, r *http.Request) {
				<-r.Context().Done()
			},
			kind: KindTransport,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, metrics := newClient(t, tt.handler)

			_, err := c.VerifyOrganicInstall(context.Background(), "install-1")
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrAttributionVerification)
			assert.NotErrorIs(t, err, ErrConfigFetch)
			assert.Equal(t, tt.kind, KindOf(err))
			assert.Equal(t, int64(1), metrics.Snapshot().RemoteFailures)
		})
	}
}

func TestFetchSessionConfigRequestBody(t *testing.T) {
	var body map[string]interface{}
	c, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, _ = w.Write([]byte(`{"ok":false}`))
	})

	payload := types.AttributionPayload{"af_status": "Non-organic", "os": "spoofed", "campaign": "spring"}
	_, err := c.FetchSessionConfig(context.Background(), payload, Install{ID: "install-1", PushToken: "tok"})
	require.NoError(t, err)

	assert.Equal(t, "install-1", body["af_id"])
	assert.Equal(t, "com.example.app", body["bundle_id"])
	assert.Equal(t, "iOS", body["os"], "install metadata wins over payload keys")
	assert.Equal(t, "id6753625851", body["store_id"])
	assert.Equal(t, "EN", body["locale"])
	assert.Equal(t, "tok", body["push_token"])
	assert.Equal(t, "123456", body["firebase_project_id"])
	assert.Equal(t, "spring", body["campaign"])
	assert.Equal(t, "Non-organic", body["af_status"])

	// The caller's payload is untouched
	assert.Equal(t, "spoofed", payload["os"])
}

func TestFetchSessionConfig(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		reply   string
		want    types.SessionConfig
		kind    FailureKind
		wantErr bool
	}{
		{
			name:   "ok with url and expiry",
			status: http.StatusOK,
			reply:  `{"ok":true,"url":"https://x.example/s1","expires":999}`,
			want:   types.SessionConfig{OK: true, Address: "https://x.example/s1", ExpiresAt: timePtr(time.Unix(999, 0).UTC())},
		},
		{
			name:   "ok without expiry",
			status: http.StatusOK,
			reply:  `{"ok":true,"url":"https://x.example/s1"}`,
			want:   types.SessionConfig{OK: true, Address: "https://x.example/s1"},
		},
		{
			name:   "not ok",
			status: http.StatusOK,
			reply:  `{"ok":false}`,
			want:   types.SessionConfig{OK: false},
		},
		{name: "ok without url", status: http.StatusOK, reply: `{"ok":true}`, kind: KindMalformed, wantErr: true},
		{name: "ok with empty url", status: http.StatusOK, reply: `{"ok":true,"url":""}`, kind: KindMalformed, wantErr: true},
		{name: "ok with relative url", status: http.StatusOK, reply: `{"ok":true,"url":"/s1"}`, kind: KindMalformed, wantErr: true},
		{name: "missing ok", status: http.StatusOK, reply: `{"url":"https://x.example"}`, kind: KindMalformed, wantErr: true},
		{name: "garbage", status: http.StatusOK, reply: `not json`, kind: KindMalformed, wantErr: true},
		{name: "server error", status: http.StatusInternalServerError, reply: `{"ok":true,"url":"https://x.example"}`, kind: KindStatus, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.reply))
			})

			got, err := c.FetchSessionConfig(context.Background(), types.AttributionPayload{}, Install{ID: "i"})
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrConfigFetch)
				assert.Equal(t, tt.kind, KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFetchSessionConfigTimeout(t *testing.T) {
	c, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	_, err := c.FetchSessionConfig(context.Background(), nil, Install{ID: "i"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfigFetch)
	assert.Equal(t, KindTransport, KindOf(err))
}

func TestNormalizeLocale(t *testing.T) {
	assert.Equal(t, "EN", NormalizeLocale(""))
	assert.Equal(t, "EN", NormalizeLocale("e"))
	assert.Equal(t, "DE", NormalizeLocale("de-AT"))
	assert.Equal(t, "UK", NormalizeLocale("uk"))
}

func timePtr(t time.Time) *time.Time { return &t }

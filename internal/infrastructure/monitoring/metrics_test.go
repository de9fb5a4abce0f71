package monitoring

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordPhase("native_fallback")
		m.RecordRemoteCall("session_config", "ok", time.Second)
		m.IncRedirects()
		m.RecordRedirectRecovery("threshold")
		m.SetChildSurfaces(2)
		NewTimer(m, "organic").Stop("transport")
	})
	assert.Equal(t, Snapshot{}, m.Snapshot())
}

func TestRecordPhaseUpdatesSnapshot(t *testing.T) {
	m := NewMetrics()

	m.RecordPhase("launching")
	m.RecordPhase("remote_content")

	assert.Equal(t, float64(1), testutil.ToFloat64(m.PhaseTransitions.WithLabelValues("remote_content")))
	snap := m.Snapshot()
	assert.Equal(t, "remote_content", snap.Phase)
	assert.False(t, snap.PhaseChangedAt.IsZero())
}

func TestRemoteFailuresCounted(t *testing.T) {
	m := NewMetrics()

	m.RecordRemoteCall("session_config", "ok", 10*time.Millisecond)
	m.RecordRemoteCall("session_config", "status", 10*time.Millisecond)
	m.RecordRemoteCall("organic", "transport", 10*time.Millisecond)

	assert.Equal(t, int64(2), m.Snapshot().RemoteFailures)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RemoteCalls.WithLabelValues("session_config", "status")))
}

func TestSeparateRegistries(t *testing.T) {
	// Two collectors must not collide on registration
	a := NewMetrics()
	b := NewMetrics()
	a.IncRedirects()

	assert.Equal(t, float64(1), testutil.ToFloat64(a.Redirects))
	assert.Equal(t, float64(0), testutil.ToFloat64(b.Redirects))
}

func TestMiddlewareRecordsRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics()

	router := gin.New()
	router.Use(Middleware(m))
	router.GET("/surfaces/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/surfaces/abc", nil))
	require.Equal(t, http.StatusNoContent, w.Code)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/surfaces/:id", "204")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := NewMetrics()
	m.IncExternalOpens()

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "browser_external_opens_total 1")
}

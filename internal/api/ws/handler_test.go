package ws

import (
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/eggprofit/internal/domain/launch"
	"github.com/GriffinCanCode/eggprofit/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/eggprofit/internal/shared/types"
)

type fakeSource struct {
	mu       sync.Mutex
	updates  chan launch.Update
	retries  int
	retryErr error
	unsubbed bool
}

func (f *fakeSource) Subscribe() (<-chan launch.Update, func()) {
	return f.updates, func() {
		f.mu.Lock()
		f.unsubbed = true
		f.mu.Unlock()
	}
}

func (f *fakeSource) Retry() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retries++
	return f.retryErr
}

func (f *fakeSource) unsubscribed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unsubbed
}

func dial(t *testing.T, source Source, metrics *monitoring.Metrics) *websocket.Conn {
	t.Helper()
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.GET("/ws", NewHandler(source, metrics, nil).HandleConnection)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	return conn
}

func TestStreamsUpdates(t *testing.T) {
	source := &fakeSource{updates: make(chan launch.Update, 1)}
	conn := dial(t, source, nil)

	source.updates <- launch.Update{
		Kind:       launch.UpdatePhase,
		Phase:      types.LaunchPhase{Phase: types.PhaseRemoteContent, Address: "https://good.example"},
		Generation: 4,
	}

	var msg struct {
		Type   string        `json:"type"`
		Update launch.Update `json:"update"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "update", msg.Type)
	assert.Equal(t, types.PhaseRemoteContent, msg.Update.Phase.Phase)
	assert.Equal(t, "https://good.example", msg.Update.Phase.Address)
	assert.Equal(t, uint64(4), msg.Update.Generation)
}

func TestClientMessages(t *testing.T) {
	tests := []struct {
		name     string
		send     string
		retryErr error
		wantType string
		wantMsg  string
	}{
		{"ping", "ping", nil, "pong", ""},
		{"retry", "retry", nil, "retry_accepted", ""},
		{"retry rejected", "retry", errors.New("launch event queue full"), "error", "launch event queue full"},
		{"unknown", "reload", nil, "error", "unknown message type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source := &fakeSource{updates: make(chan launch.Update), retryErr: tt.retryErr}
			conn := dial(t, source, nil)

			require.NoError(t, conn.WriteJSON(Message{Type: tt.send}))

			var reply map[string]interface{}
			require.NoError(t, conn.ReadJSON(&reply))
			assert.Equal(t, tt.wantType, reply["type"])
			assert.Contains(t, reply, "timestamp")
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, reply["message"])
			}
		})
	}
}

func TestConnectionLifecycle(t *testing.T) {
	metrics := monitoring.NewMetrics()
	source := &fakeSource{updates: make(chan launch.Update)}
	conn := dial(t, source, metrics)

	// A round trip proves the handler is past its setup
	require.NoError(t, conn.WriteJSON(Message{Type: "ping"}))
	var reply map[string]interface{}
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, float64(1), testWSConnections(metrics))

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	conn.Close()

	assert.Eventually(t, source.unsubscribed, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return testWSConnections(metrics) == 0 }, 2*time.Second, 10*time.Millisecond)
}

func testWSConnections(m *monitoring.Metrics) float64 {
	families, err := m.Registry().Gather()
	if err != nil {
		return -1
	}
	for _, family := range families {
		if family.GetName() == "bridge_ws_connections" {
			return family.GetMetric()[0].GetGauge().GetValue()
		}
	}
	return -1
}

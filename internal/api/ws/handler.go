// Package ws streams launch updates to the native shell over WebSocket.
package ws

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/eggprofit/internal/domain/launch"
	"github.com/GriffinCanCode/eggprofit/internal/infrastructure/logging"
	"github.com/GriffinCanCode/eggprofit/internal/infrastructure/monitoring"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	// The bridge listens on loopback for the embedding shell
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Source is the resolver surface the stream needs
type Source interface {
	Subscribe() (<-chan launch.Update, func())
	Retry() error
}

// Message is a client request
type Message struct {
	Type string `json:"type"`
}

// Handler manages WebSocket connections
type Handler struct {
	source  Source
	metrics *monitoring.Metrics
	logger  *logging.Logger
}

// NewHandler creates a new WebSocket handler
func NewHandler(source Source, metrics *monitoring.Metrics, logger *logging.Logger) *Handler {
	return &Handler{
		source:  source,
		metrics: metrics,
		logger:  logging.OrNop(logger).Named("ws"),
	}
}

// HandleConnection upgrades the request and streams updates until the
// client goes away.
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	h.metrics.IncWSConnections()
	defer h.metrics.DecWSConnections()

	updates, unsubscribe := h.source.Subscribe()
	defer unsubscribe()

	replies := make(chan map[string]interface{}, 8)
	done := make(chan struct{})
	go h.read(conn, replies, done)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case u := <-updates:
			if err := h.send(conn, map[string]interface{}{
				"type":      "update",
				"update":    u,
				"timestamp": time.Now().Unix(),
			}); err != nil {
				return
			}
		case reply := <-replies:
			if err := h.send(conn, reply); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// read handles client messages. Replies go back through the writer loop
// since a connection allows one writer at a time.
func (h *Handler) read(conn *websocket.Conn, replies chan<- map[string]interface{}, done chan<- struct{}) {
	defer close(done)

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("WebSocket read error", zap.Error(err))
			}
			return
		}

		var reply map[string]interface{}
		switch msg.Type {
		case "ping":
			reply = map[string]interface{}{"type": "pong"}
		case "retry":
			if err := h.source.Retry(); err != nil {
				reply = errorMessage(err.Error())
			} else {
				reply = map[string]interface{}{"type": "retry_accepted"}
			}
		default:
			reply = errorMessage("unknown message type")
		}
		reply["timestamp"] = time.Now().Unix()

		select {
		case replies <- reply:
		default:
			h.logger.Debug("Dropping WebSocket reply", zap.String("type", msg.Type))
		}
	}
}

func (h *Handler) send(conn *websocket.Conn, data interface{}) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(data)
}

func errorMessage(msg string) map[string]interface{} {
	return map[string]interface{}{
		"type":    "error",
		"message": msg,
	}
}

package handlers

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/yourusername/yt-extract-go/internal/app"
	"github.com/yourusername/yt-extract-go/internal/domain"
	"go.uber.org/zap"
)

// newUpgrader builds a websocket upgrader; a nil checkOrigin keeps the
// library's same-origin check
func newUpgrader(checkOrigin func(r *http.Request) bool) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     checkOrigin,
	}
}

const (
	clientSendBuffer = 64
	pingInterval     = 30 * time.Second
	writeWait        = 10 * time.Second
)

// Message types pushed to browsers
const (
	MessageSnapshot = "snapshot"
	MessageStarted  = "started"
	MessageProgress = "progress"
	MessageStatus   = "status"
	MessageFinished = "finished"
	MessageError    = "error"
	MessageState    = "state"
)

// ProgressMessage is one websocket frame
type ProgressMessage struct {
	Type      string              `json:"type"`
	AttemptID string              `json:"attempt_id,omitempty"`
	Fraction  *float64            `json:"fraction,omitempty"`
	Status    string              `json:"status,omitempty"`
	State     domain.AttemptState `json:"state,omitempty"`
	Snapshot  *app.Snapshot       `json:"snapshot,omitempty"`
}

type wsClient struct {
	conn *websocket.Conn
	send chan ProgressMessage
}

// ProgressHub fans progress messages out to every connected browser.
// Slow clients are dropped instead of blocking the tool's output reader.
type ProgressHub struct {
	snapshot func() app.Snapshot
	upgrader websocket.Upgrader
	logger   *zap.Logger
	clients  map[*wsClient]bool
	mu       sync.Mutex
}

// NewProgressHub creates a new hub; snapshot is sent to each client on connect.
// checkOrigin vets websocket handshakes, nil allows same-origin pages only.
func NewProgressHub(snapshot func() app.Snapshot, checkOrigin func(r *http.Request) bool, log *zap.Logger) *ProgressHub {
	return &ProgressHub{
		snapshot: snapshot,
		upgrader: newUpgrader(checkOrigin),
		logger:   log,
		clients:  make(map[*wsClient]bool),
	}
}

// ClientCount returns the number of connected clients
func (h *ProgressHub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast queues msg for every client without blocking
func (h *ProgressHub) Broadcast(msg ProgressMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		select {
		case client.send <- msg:
		default:
			h.logger.Warn("WebSocket client too slow, disconnecting")
			h.removeLocked(client)
		}
	}
}

func (h *ProgressHub) add(client *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client] = true
}

func (h *ProgressHub) remove(client *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(client)
}

func (h *ProgressHub) removeLocked(client *wsClient) {
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
}

// HandleWebSocket handles GET /api/v1/ws
func (h *ProgressHub) HandleWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket", zap.Error(err))
		return
	}

	client := &wsClient{conn: conn, send: make(chan ProgressMessage, clientSendBuffer)}
	if h.snapshot != nil {
		snap := h.snapshot()
		client.send <- ProgressMessage{Type: MessageSnapshot, AttemptID: snap.AttemptID, State: snap.State, Snapshot: &snap}
	}
	h.add(client)

	h.logger.Debug("WebSocket client connected", zap.String("remote_addr", c.Request.RemoteAddr))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	h.writePump(client, done)
	h.remove(client)
	conn.Close()
}

func (h *ProgressHub) writePump(client *wsClient, done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-client.send:
			if !ok {
				return
			}
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteJSON(msg); err != nil {
				h.logger.Debug("Failed to send progress message", zap.Error(err))
				return
			}
		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// Sink returns a progress sink that broadcasts through the hub
func (h *ProgressHub) Sink() *WebSocketSink {
	return &WebSocketSink{hub: h}
}

// WebSocketSink implements domain.ProgressSink, domain.StateObserver and
// domain.StartObserver for browsers
type WebSocketSink struct {
	hub *ProgressHub
}

func (s *WebSocketSink) OnProgress(fraction float64, status string) error {
	s.hub.Broadcast(ProgressMessage{Type: MessageProgress, Fraction: &fraction, Status: status})
	return nil
}

func (s *WebSocketSink) OnStatus(status string) error {
	s.hub.Broadcast(ProgressMessage{Type: MessageStatus, Status: status})
	return nil
}

func (s *WebSocketSink) OnFinished(status string) error {
	one := 1.0
	s.hub.Broadcast(ProgressMessage{Type: MessageFinished, Fraction: &one, Status: status})
	return nil
}

func (s *WebSocketSink) OnError(message string) error {
	s.hub.Broadcast(ProgressMessage{Type: MessageError, Status: message})
	return nil
}

func (s *WebSocketSink) OnStarted(attemptID string) {
	s.hub.Broadcast(ProgressMessage{Type: MessageStarted, AttemptID: attemptID})
}

func (s *WebSocketSink) OnState(state domain.AttemptState) {
	s.hub.Broadcast(ProgressMessage{Type: MessageState, State: state})
}

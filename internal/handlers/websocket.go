package handlers

import (
	"encoding/json"
	"log"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"

	"genslides/internal/models"
	"genslides/internal/services"
)

// WebSocketHandler handles the per-project realtime channel at
// /ws/slides/:slug.
type WebSocketHandler struct {
	connManager *services.ConnectionManager
	tasks       *services.TaskRegistry
	heartbeat   time.Duration
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(connManager *services.ConnectionManager, tasks *services.TaskRegistry, heartbeat time.Duration) *WebSocketHandler {
	return &WebSocketHandler{
		connManager: connManager,
		tasks:       tasks,
		heartbeat:   heartbeat,
	}
}

// readDeadline is generous: three missed heartbeats before the server
// considers the client gone.
func (h *WebSocketHandler) readDeadline() time.Time {
	return time.Now().Add(3 * h.heartbeat)
}

// Handle handles a new WebSocket connection
func (h *WebSocketHandler) Handle(c *websocket.Conn) {
	connID := uuid.New().String()
	slug := c.Params("slug")

	conn := &models.ProjectConnection{
		ConnID:    connID,
		Slug:      slug,
		Conn:      c,
		WriteChan: make(chan models.Envelope, 100),
	}

	h.connManager.Add(conn)
	log.Printf("👀 Project %s now has %d viewer(s)", slug, h.connManager.CountForProject(slug))
	if m := services.GetMetrics(); m != nil {
		m.WebSocketConnections.Inc()
	}
	defer func() {
		h.connManager.Remove(connID)
		if m := services.GetMetrics(); m != nil {
			m.WebSocketConnections.Dec()
		}
	}()

	c.SetReadDeadline(h.readDeadline())
	c.SetPongHandler(func(appData string) error {
		c.SetReadDeadline(h.readDeadline())
		return nil
	})

	go h.writeLoop(conn)

	// First frame is always the task sync, even when nothing is running,
	// so a reconnecting client can drop stale local task state.
	conn.WriteChan <- models.Envelope{
		Type: models.EventSyncGeneratingTasks,
		Data: models.SyncGeneratingTasksData{Sids: h.tasks.ActiveSids(slug)},
	}

	h.readLoop(conn)
}

// writeLoop serializes all writes to the connection
func (h *WebSocketHandler) writeLoop(conn *models.ProjectConnection) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("❌ Panic in writeLoop for %s: %v", conn.ConnID, r)
		}
	}()

	for msg := range conn.WriteChan {
		conn.Mutex.Lock()
		err := conn.Conn.WriteJSON(msg)
		conn.Mutex.Unlock()
		if err != nil {
			log.Printf("⚠️ WebSocket write error for %s: %v", conn.ConnID, err)
			return
		}
		if m := services.GetMetrics(); m != nil {
			m.WebSocketMessages.WithLabelValues(msg.Type, "outbound").Inc()
		}
	}
}

// readLoop handles incoming messages from the client
func (h *WebSocketHandler) readLoop(conn *models.ProjectConnection) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("❌ Panic in readLoop: %v", r)
		}
	}()

	for {
		_, msg, err := conn.Conn.ReadMessage()
		if err != nil {
			log.Printf("❌ WebSocket read error for %s: %v", conn.ConnID, err)
			return
		}

		// Any inbound traffic proves the client is alive
		conn.Conn.SetReadDeadline(h.readDeadline())

		var envelope models.Envelope
		if err := json.Unmarshal(msg, &envelope); err != nil {
			log.Printf("⚠️ Invalid message format from %s: %v", conn.ConnID, err)
			continue
		}
		if m := services.GetMetrics(); m != nil {
			m.WebSocketMessages.WithLabelValues(envelope.Type, "inbound").Inc()
		}

		switch envelope.Type {
		case models.EventPing:
			// Respond to client heartbeat immediately
			conn.SafeSend(models.Envelope{Type: models.EventPong})
		default:
			// The channel is server-push; other client frames are ignored
			log.Printf("⚠️ Unknown message type from %s: %s", conn.ConnID, envelope.Type)
		}
	}
}

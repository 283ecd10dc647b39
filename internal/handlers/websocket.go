package handlers

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"

	"lumichat/internal/models"
	"lumichat/internal/reply"
	"lumichat/internal/services"
)

// WebSocketHandler handles WebSocket connections. Reply events are
// pushed as individual frames, in emission order, so the client renders
// bubbles one by one.
type WebSocketHandler struct {
	connManager *services.ConnectionManager
	chatService *services.ChatService
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(connManager *services.ConnectionManager, chatService *services.ChatService) *WebSocketHandler {
	return &WebSocketHandler{
		connManager: connManager,
		chatService: chatService,
	}
}

// clientFrame is one inbound message from the client.
type clientFrame struct {
	Type     string `json:"type"`
	ActorID  string `json:"actorId"`
	Messages []struct {
		Kind      string            `json:"kind"`
		Content   string            `json:"content"`
		RedPacket *models.RedPacket `json:"redPacket,omitempty"`
	} `json:"messages"`
}

// serverFrame is one outbound frame.
type serverFrame struct {
	Type    string       `json:"type"`
	ActorID string       `json:"actorId,omitempty"`
	Event   *reply.Event `json:"event,omitempty"`
	Error   string       `json:"error,omitempty"`
	Hint    string       `json:"hint,omitempty"`
}

// Handle handles a new WebSocket connection
func (h *WebSocketHandler) Handle(c *websocket.Conn) {
	connID := uuid.New().String()

	conn := &models.ClientConnection{
		ConnID:    connID,
		Conn:      c,
		WriteChan: make(chan []byte, 100),
		StopChan:  make(chan struct{}),
	}

	h.connManager.Add(conn)
	defer h.connManager.Remove(connID)

	c.SetReadDeadline(time.Now().Add(120 * time.Second))
	c.SetPongHandler(func(appData string) error {
		c.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

	go h.writeLoop(conn)
	go h.pingLoop(conn)

	h.send(conn, serverFrame{Type: "connected"})

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			return
		}
		c.SetReadDeadline(time.Now().Add(120 * time.Second))

		var frame clientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			h.send(conn, serverFrame{Type: "error", Error: "Invalid frame"})
			continue
		}

		switch frame.Type {
		case "chat":
			h.handleChat(conn, frame)
		case "ping":
			h.send(conn, serverFrame{Type: "pong"})
		default:
			h.send(conn, serverFrame{Type: "error", Error: "Unknown frame type"})
		}
	}
}

func (h *WebSocketHandler) handleChat(conn *models.ClientConnection, frame clientFrame) {
	if frame.ActorID == "" {
		h.send(conn, serverFrame{Type: "error", Error: "actorId is required"})
		return
	}

	var userMsgs []models.Message
	for _, m := range frame.Messages {
		kind := models.MessageKind(m.Kind)
		if kind == "" {
			kind = models.MessageKindText
		}
		userMsgs = append(userMsgs, models.Message{
			ID:        uuid.New().String(),
			Kind:      kind,
			Content:   m.Content,
			RedPacket: m.RedPacket,
		})
	}

	events, err := h.chatService.SendMessage(context.Background(), frame.ActorID, userMsgs)
	if err != nil {
		log.Printf("❌ WS chat round trip failed for actor %s: %v", frame.ActorID, err)
		h.send(conn, serverFrame{
			Type:    "error",
			ActorID: frame.ActorID,
			Error:   "Chat request failed",
			Hint:    services.Hint(err),
		})
		return
	}

	// One frame per event keeps the client's bubble animation in sync
	for i := range events {
		h.send(conn, serverFrame{Type: "event", ActorID: frame.ActorID, Event: &events[i]})
	}
	h.send(conn, serverFrame{Type: "done", ActorID: frame.ActorID})
}

func (h *WebSocketHandler) send(conn *models.ClientConnection, frame serverFrame) {
	data, err := json.Marshal(frame)
	if err != nil {
		log.Printf("⚠️ Failed to encode ws frame: %v", err)
		return
	}
	select {
	case conn.WriteChan <- data:
	case <-conn.StopChan:
	}
}

// writeLoop is the only goroutine that writes to the socket.
func (h *WebSocketHandler) writeLoop(conn *models.ClientConnection) {
	for data := range conn.WriteChan {
		if err := conn.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

func (h *WebSocketHandler) pingLoop(conn *models.ClientConnection) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := conn.Conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		case <-conn.StopChan:
			return
		}
	}
}

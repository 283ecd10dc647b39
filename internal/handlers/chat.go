package handlers

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"lumichat/internal/models"
	"lumichat/internal/services"
)

// ChatHandler handles the chat round-trip endpoints
type ChatHandler struct {
	chat     *services.ChatService
	messages *services.MessageService
}

// NewChatHandler creates a new chat handler
func NewChatHandler(chat *services.ChatService, messages *services.MessageService) *ChatHandler {
	return &ChatHandler{chat: chat, messages: messages}
}

type sendMessageRequest struct {
	ActorID  string `json:"actorId"`
	Messages []struct {
		Kind      string            `json:"kind"`
		Content   string            `json:"content"`
		RedPacket *models.RedPacket `json:"redPacket,omitempty"`
	} `json:"messages"`
}

// Send handles POST /api/chat/send. The reply events come back in
// emission order; the same events are also pushed over the WebSocket.
func (h *ChatHandler) Send(c *fiber.Ctx) error {
	var req sendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.ActorID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "actorId is required",
		})
	}

	var userMsgs []models.Message
	for _, m := range req.Messages {
		kind := models.MessageKind(m.Kind)
		if kind == "" {
			kind = models.MessageKindText
		}
		if kind == models.MessageKindRedPacket && (m.RedPacket == nil || !m.RedPacket.Valid()) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid red packet",
			})
		}
		userMsgs = append(userMsgs, models.Message{
			ID:        uuid.New().String(),
			Kind:      kind,
			Content:   m.Content,
			RedPacket: m.RedPacket,
		})
	}

	events, err := h.chat.SendMessage(c.Context(), req.ActorID, userMsgs)
	if err != nil {
		log.Printf("❌ Chat round trip failed for actor %s: %v", req.ActorID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Chat request failed",
			"hint":  services.Hint(err),
		})
	}

	return c.JSON(fiber.Map{"events": events})
}

// History handles GET /api/chat/:actorId/history?limit=50
func (h *ChatHandler) History(c *fiber.Ctx) error {
	actorID := c.Params("actorId")
	limit := c.QueryInt("limit", 50)

	msgs, err := h.messages.Recent(actorID, limit)
	if err != nil {
		log.Printf("❌ Failed to load history for actor %s: %v", actorID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load history",
		})
	}
	return c.JSON(fiber.Map{"messages": msgs})
}

// Regenerate handles POST /api/chat/:actorId/regenerate. It reruns the
// opening turn for a fresh individual conversation.
func (h *ChatHandler) Regenerate(c *fiber.Ctx) error {
	actorID := c.Params("actorId")

	events, err := h.chat.RegenerateOpening(c.Context(), actorID)
	if err != nil {
		log.Printf("❌ Opening regeneration failed for actor %s: %v", actorID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Regeneration failed",
			"hint":  services.Hint(err),
		})
	}
	return c.JSON(fiber.Map{"events": events})
}

package handlers

import (
	"log"

	"github.com/gofiber/fiber/v2"

	"lumichat/internal/models"
	"lumichat/internal/services"
)

// ForumHandler handles the simulated forum endpoints
type ForumHandler struct {
	service *services.ForumService
}

// NewForumHandler creates a new forum handler
func NewForumHandler(service *services.ForumService) *ForumHandler {
	return &ForumHandler{service: service}
}

type forumGenerateRequest struct {
	ActorID      string `json:"actorId"`
	RelationTag  string `json:"relationTag"`
	RelationDesc string `json:"relationDesc"`
	Hashtag      string `json:"hashtag"`
	PostCount    int    `json:"postCount"`
	Manual       bool   `json:"manual"`
}

// Generate handles POST /api/forum/generate
func (h *ForumHandler) Generate(c *fiber.Ctx) error {
	var req forumGenerateRequest
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

	bundle, err := h.service.GeneratePosts(c.Context(), services.PostRequest{
		ActorID:      req.ActorID,
		RelationTag:  req.RelationTag,
		RelationDesc: req.RelationDesc,
		Hashtag:      req.Hashtag,
		PostCount:    req.PostCount,
		Manual:       req.Manual,
	})
	if err != nil {
		log.Printf("❌ Forum generation failed for actor %s: %v", req.ActorID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Forum generation failed",
			"hint":  services.Hint(err),
		})
	}
	return c.JSON(bundle)
}

type forumReplyRequest struct {
	ActorID     string                `json:"actorId"`
	PostContent string                `json:"postContent"`
	UserComment string                `json:"userComment"`
	MentionedBy string                `json:"mentionedBy"`
	Comments    []models.ForumComment `json:"comments"`
}

// Reply handles POST /api/forum/reply. With mentionedBy set the actor
// answers an @-mention instead of the user's comment.
func (h *ForumHandler) Reply(c *fiber.Ctx) error {
	var req forumReplyRequest
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

	var reply string
	var err error
	if req.MentionedBy != "" {
		reply, err = h.service.ReplyToMention(c.Context(), req.ActorID, req.PostContent, req.MentionedBy, req.Comments)
	} else {
		reply, err = h.service.ReplyToComment(c.Context(), req.ActorID, req.PostContent, req.UserComment, req.Comments)
	}
	if err != nil {
		log.Printf("❌ Forum reply failed for actor %s: %v", req.ActorID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Forum reply failed",
			"hint":  services.Hint(err),
		})
	}
	return c.JSON(fiber.Map{"reply": reply})
}

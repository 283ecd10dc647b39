package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"strings"

	"lumichat/internal/models"
	"lumichat/internal/prompt"
	"lumichat/internal/reply"
)

// MomentService generates actor moments (short posts with an image) and
// their simulated comment sections.
type MomentService struct {
	actors    *ActorService
	messages  *MessageService
	providers *ProviderService
	llm       completionCaller

	Rand *rand.Rand
}

// NewMomentService creates a new moment service.
func NewMomentService(actors *ActorService, messages *MessageService, providers *ProviderService, llm completionCaller) *MomentService {
	return &MomentService{actors: actors, messages: messages, providers: providers, llm: llm}
}

// Moment is one generated moment: body text plus the keywords used to
// search an accompanying image. Image lookup happens client side.
type Moment struct {
	ActorID       string   `json:"actor_id"`
	Content       string   `json:"content"`
	ImageKeywords []string `json:"image_keywords"`
}

// GenerateMoment produces a moment body grounded in recent chat
// history, then a keyword set for its image.
func (s *MomentService) GenerateMoment(ctx context.Context, actorID string) (*Moment, error) {
	actor, err := s.actors.Get(actorID)
	if err != nil {
		return nil, err
	}
	cfg, err := s.providers.GetActive()
	if err != nil {
		return nil, &CallError{Kind: ErrKindConfigIncomplete, Reason: "no active api config", Err: err}
	}
	history, err := s.messages.Recent(actor.ID, cfg.ContextWindow())
	if err != nil {
		return nil, err
	}

	content, err := s.llm.Call(ctx, cfg, prompt.BuildMomentContent(actor, history, cfg.ContextWindow()), nil)
	if err != nil {
		return nil, err
	}
	content = strings.TrimSpace(reply.StripFences(content))
	if content == "" {
		return nil, &CallError{Kind: ErrKindEmptyContent, Reason: "empty moment body"}
	}

	keywords := s.imageKeywords(ctx, cfg, content)
	log.Printf("🖼️ [MOMENT] Generated moment for actor %s (%d keywords)", actor.ID, len(keywords))
	return &Moment{ActorID: actor.ID, Content: content, ImageKeywords: keywords}, nil
}

// imageKeywords is best effort. A moment without keywords still ships;
// the client falls back to a stock image.
func (s *MomentService) imageKeywords(ctx context.Context, cfg *models.APIConfig, text string) []string {
	out, err := s.llm.Call(ctx, cfg, prompt.BuildImageKeywords(text), nil)
	if err != nil {
		log.Printf("⚠️ [MOMENT] Keyword extraction failed: %v", err)
		return nil
	}
	return strings.Fields(strings.TrimSpace(reply.StripFences(out)))
}

// GenerateComments builds the comment section for a moment.
func (s *MomentService) GenerateComments(ctx context.Context, actorID, content string) (*models.MomentCommentBundle, error) {
	actor, err := s.actors.Get(actorID)
	if err != nil {
		return nil, err
	}
	cfg, err := s.providers.GetActive()
	if err != nil {
		return nil, &CallError{Kind: ErrKindConfigIncomplete, Reason: "no active api config", Err: err}
	}
	user, err := s.actors.GetUserProfile()
	if err != nil {
		return nil, err
	}
	contacts, err := s.actors.ListIndividuals(actor.ID)
	if err != nil {
		return nil, err
	}

	in := prompt.MomentCommentsInput{
		Actor:    actor,
		User:     user,
		Content:  content,
		Contacts: contacts,
		Rand:     s.Rand,
	}
	out, err := s.llm.Call(ctx, cfg, prompt.BuildMomentComments(in), nil)
	if err != nil {
		return nil, err
	}

	var bundle models.MomentCommentBundle
	if err := json.Unmarshal([]byte(reply.StripFences(out)), &bundle); err != nil {
		return nil, fmt.Errorf("moment comments did not parse: %w", err)
	}
	return &bundle, nil
}

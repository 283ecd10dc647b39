package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"

	"lumichat/internal/models"
	"lumichat/internal/prompt"
	"lumichat/internal/reply"
)

// ForumService generates simulated forum posts around an actor and
// handles the author's replies to the user's comments.
type ForumService struct {
	actors    *ActorService
	messages  *MessageService
	providers *ProviderService
	llm       completionCaller

	// Rand is injectable so tests control commenter selection.
	Rand *rand.Rand
}

// NewForumService creates a new forum service.
func NewForumService(actors *ActorService, messages *MessageService, providers *ProviderService, llm completionCaller) *ForumService {
	return &ForumService{actors: actors, messages: messages, providers: providers, llm: llm}
}

// PostRequest describes one forum generation round.
type PostRequest struct {
	ActorID      string
	RelationTag  string
	RelationDesc string
	Hashtag      string
	PostCount    int
	Manual       bool
}

// GeneratePosts builds the forum prompt for the actor, runs the call,
// and parses the JSON bundle. The model decides post and comment
// content; composition policy is fixed in the prompt.
func (s *ForumService) GeneratePosts(ctx context.Context, req PostRequest) (*models.ForumPostBundle, error) {
	actor, err := s.actors.Get(req.ActorID)
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
	history, err := s.messages.Recent(actor.ID, cfg.ContextWindow())
	if err != nil {
		return nil, err
	}
	contacts, err := s.actors.ListIndividuals(actor.ID)
	if err != nil {
		return nil, err
	}

	in := prompt.ForumPostInput{
		Actor:        actor,
		User:         user,
		RelationTag:  req.RelationTag,
		RelationDesc: req.RelationDesc,
		Hashtag:      req.Hashtag,
		PostCount:    req.PostCount,
		History:      history,
		Contacts:     contacts,
		Manual:       req.Manual,
		Rand:         s.Rand,
	}

	content, err := s.llm.Call(ctx, cfg, prompt.BuildForumPost(in), nil)
	if err != nil {
		return nil, err
	}

	bundle, err := parseForumBundle(content)
	if err != nil {
		log.Printf("⚠️ [FORUM] Unparseable forum bundle for actor %s: %v", actor.ID, err)
		return nil, err
	}
	bundle.RelationTag = req.RelationTag
	log.Printf("📰 [FORUM] Generated %d posts for actor %s", len(bundle.Posts), actor.ID)
	return bundle, nil
}

func parseForumBundle(content string) (*models.ForumPostBundle, error) {
	content = reply.StripFences(content)
	var bundle models.ForumPostBundle
	if err := json.Unmarshal([]byte(content), &bundle); err == nil && len(bundle.Posts) > 0 {
		return &bundle, nil
	}
	// Some models emit the bare post array without the wrapper object.
	var posts []models.ForumPost
	if err := json.Unmarshal([]byte(content), &posts); err == nil && len(posts) > 0 {
		return &models.ForumPostBundle{Posts: posts}, nil
	}
	return nil, fmt.Errorf("forum bundle did not parse as object or array")
}

// ReplyToComment lets the post author answer the user's comment under a
// generated post. Returns free text, not JSON.
func (s *ForumService) ReplyToComment(ctx context.Context, actorID, postContent, userComment string, comments []models.ForumComment) (string, error) {
	return s.authorReply(ctx, actorID, postContent, userComment, "", comments)
}

// ReplyToMention lets the actor respond when an NPC commenter @-ed them
// under the user's own post.
func (s *ForumService) ReplyToMention(ctx context.Context, actorID, postContent, mentionedBy string, comments []models.ForumComment) (string, error) {
	return s.authorReply(ctx, actorID, postContent, "", mentionedBy, comments)
}

func (s *ForumService) authorReply(ctx context.Context, actorID, postContent, userComment, mentionedBy string, comments []models.ForumComment) (string, error) {
	actor, err := s.actors.Get(actorID)
	if err != nil {
		return "", err
	}
	cfg, err := s.providers.GetActive()
	if err != nil {
		return "", &CallError{Kind: ErrKindConfigIncomplete, Reason: "no active api config", Err: err}
	}
	user, err := s.actors.GetUserProfile()
	if err != nil {
		return "", err
	}

	in := prompt.ForumReplyInput{
		Actor:       actor,
		User:        user,
		PostContent: postContent,
		Comments:    comments,
		UserComment: userComment,
		MentionedBy: mentionedBy,
	}
	req := prompt.BuildForumReply(in)
	if mentionedBy != "" {
		req = prompt.BuildForumMention(in)
	}

	content, err := s.llm.Call(ctx, cfg, req, nil)
	if err != nil {
		return "", err
	}
	return reply.StripFences(content), nil
}

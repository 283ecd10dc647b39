package services

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"lumichat/internal/models"
	"lumichat/internal/prompt"
)

// Generous budget for the table rewrite; the secondary model re-emits
// the whole markdown document.
const (
	refreshTemperature = 0.3
	refreshMaxTokens   = 5000
)

// completionCaller is the slice of the call coordinator the refresher
// needs; tests substitute a stub.
type completionCaller interface {
	Call(ctx context.Context, cfg *models.APIConfig, req prompt.Request, opts *CallOptions) (string, error)
}

// MemoryRefreshService rewrites per-conversation memory tables with the
// configured secondary model. At most one refresh per actor is in
// flight; extra triggers are dropped and the next user turn re-triggers.
type MemoryRefreshService struct {
	actors    *ActorService
	messages  *MessageService
	memory    *MemoryService
	emojis    *EmojiService
	providers *ProviderService
	llm       completionCaller
	metrics   *Metrics

	mu       sync.Mutex
	inFlight map[string]bool
}

// NewMemoryRefreshService creates a new refresher.
func NewMemoryRefreshService(actors *ActorService, messages *MessageService, memory *MemoryService, emojis *EmojiService, providers *ProviderService, llm completionCaller, metrics *Metrics) *MemoryRefreshService {
	return &MemoryRefreshService{
		actors:    actors,
		messages:  messages,
		memory:    memory,
		emojis:    emojis,
		providers: providers,
		llm:       llm,
		metrics:   metrics,
		inFlight:  make(map[string]bool),
	}
}

// Trigger starts a refresh for the actor unless one is already pending.
// Returns whether a refresh was actually started.
func (s *MemoryRefreshService) Trigger(ctx context.Context, actorID string) bool {
	s.mu.Lock()
	if s.inFlight[actorID] {
		s.mu.Unlock()
		log.Printf("⏭️ [MEMORY-REFRESH] Refresh already pending for actor %s, dropping trigger", actorID)
		if s.metrics != nil {
			s.metrics.RecordMemoryRefresh("dropped")
		}
		return false
	}
	s.inFlight[actorID] = true
	s.mu.Unlock()

	// The refresh outlives the HTTP request that triggered it.
	ctx = context.WithoutCancel(ctx)

	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.inFlight, actorID)
			s.mu.Unlock()
		}()
		if err := s.refresh(ctx, actorID); err != nil {
			// Non-fatal: the existing table stays intact.
			log.Printf("⚠️ [MEMORY-REFRESH] Refresh failed for actor %s: %v", actorID, err)
			if s.metrics != nil {
				s.metrics.RecordMemoryRefresh("failed")
			}
			return
		}
		if s.metrics != nil {
			s.metrics.RecordMemoryRefresh("success")
		}
	}()
	return true
}

// InFlight reports whether a refresh is pending for the actor. The chat
// service consults it before applying an inline table update.
func (s *MemoryRefreshService) InFlight(actorID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight[actorID]
}

func (s *MemoryRefreshService) refresh(ctx context.Context, actorID string) error {
	cfg, err := s.providers.GetActive()
	if err != nil {
		return err
	}

	// Snapshot the table and tail before suspending on the call.
	table, err := s.memory.GetMemoryTable(actorID)
	if err != nil {
		return err
	}
	tail, err := s.messages.Recent(actorID, cfg.ContextWindow())
	if err != nil {
		return err
	}

	hopts, err := s.historyOptions(actorID)
	if err != nil {
		return err
	}
	history := prompt.RenderHistory(tail, hopts)
	req := prompt.BuildMemoryTableUpdate(table, history, time.Now())

	temp := refreshTemperature
	content, err := s.llm.Call(ctx, cfg, req, &CallOptions{
		Model:       cfg.RefresherModel(),
		Temperature: &temp,
		MaxTokens:   refreshMaxTokens,
	})
	if err != nil {
		return err
	}

	updated := strings.TrimSpace(content)
	if updated == "" {
		return &CallError{Kind: ErrKindEmptyContent}
	}

	// Full replace, never a partial merge.
	if err := s.memory.SetMemoryTable(actorID, updated); err != nil {
		return err
	}
	log.Printf("🧠 [MEMORY-REFRESH] Table updated for actor %s (%d bytes)", actorID, len(updated))
	return nil
}

// historyOptions renders the tail the same way the chat prompt does, so
// the secondary model sees sender attribution in group conversations and
// emoji meanings for legacy inline images.
func (s *MemoryRefreshService) historyOptions(actorID string) (prompt.HistoryOptions, error) {
	emojis, err := s.emojis.List()
	if err != nil {
		return prompt.HistoryOptions{}, err
	}
	hopts := prompt.HistoryOptions{Emojis: models.NewEmojiIndex(emojis)}

	actor, err := s.actors.Get(actorID)
	if err != nil {
		return hopts, err
	}
	if !actor.IsGroup() {
		return hopts, nil
	}

	members, err := s.actors.Members(actor)
	if err != nil {
		return hopts, err
	}
	names := make(map[string]string, len(members))
	for _, m := range members {
		names[m.ID] = m.Name
	}
	user, err := s.actors.GetUserProfile()
	if err != nil {
		return hopts, err
	}
	hopts.Group = true
	hopts.SenderNames = names
	hopts.UserName = user.DisplayName()
	return hopts, nil
}

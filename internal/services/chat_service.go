package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"lumichat/internal/logging"
	"lumichat/internal/models"
	"lumichat/internal/prompt"
	"lumichat/internal/reply"
)

// DefaultRefreshEveryNTurns is how many user turns pass between
// memory-table refresh triggers.
const DefaultRefreshEveryNTurns = 5

// ChatService glues the orchestrator together: it snapshots state,
// assembles the prompt, runs the call, demultiplexes the reply, and
// persists the resulting messages in emission order.
type ChatService struct {
	actors    *ActorService
	messages  *MessageService
	memory    *MemoryService
	emojis    *EmojiService
	providers *ProviderService
	llm       completionCaller
	refresher *MemoryRefreshService
	metrics   *Metrics

	// TTSConfigured gates the voice capability together with the
	// actor's voice ID.
	TTSConfigured bool

	// RefreshEveryNTurns tunes the refresh cadence; zero means default.
	RefreshEveryNTurns int
}

// NewChatService creates a new chat service.
func NewChatService(actors *ActorService, messages *MessageService, memory *MemoryService, emojis *EmojiService, providers *ProviderService, llm completionCaller, refresher *MemoryRefreshService, metrics *Metrics) *ChatService {
	return &ChatService{
		actors:    actors,
		messages:  messages,
		memory:    memory,
		emojis:    emojis,
		providers: providers,
		llm:       llm,
		refresher: refresher,
		metrics:   metrics,
	}
}

// SendMessage appends the user's messages, runs one reply round trip for
// the actor, and returns the demultiplexed events. For groups every
// member takes a turn, seeing the earlier members' replies as turn
// context.
func (s *ChatService) SendMessage(ctx context.Context, actorID string, userMsgs []models.Message) ([]reply.Event, error) {
	actor, err := s.actors.Get(actorID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	for i := range userMsgs {
		userMsgs[i].ActorID = actorID
		userMsgs[i].Role = "user"
		if userMsgs[i].Timestamp.IsZero() {
			userMsgs[i].Timestamp = now
		}
		if err := s.messages.Append(&userMsgs[i]); err != nil {
			return nil, err
		}
	}

	var events []reply.Event
	if actor.IsGroup() {
		events, err = s.groupTurn(ctx, actor)
	} else {
		events, err = s.individualTurn(ctx, actor)
	}
	if err != nil {
		return nil, err
	}

	s.maybeTriggerRefresh(ctx, actorID, len(userMsgs))
	logging.WithActor(actor.ID, actor.Name).Debug("chat turn complete", "events", len(events))
	return events, nil
}

func (s *ChatService) individualTurn(ctx context.Context, actor *models.Actor) ([]reply.Event, error) {
	snap, cfg, err := s.buildSnapshot(actor, nil, nil, nil)
	if err != nil {
		return nil, err
	}

	events := s.runCall(ctx, cfg, prompt.BuildChat(snap), snap)
	s.persistEvents(actor, actor.ID, events)
	return events, nil
}

// groupTurn runs one reply round for every member in order. Each member
// sees the replies produced earlier in the same turn, framed as turn
// context.
func (s *ChatService) groupTurn(ctx context.Context, group *models.Actor) ([]reply.Event, error) {
	members, err := s.actors.Members(group)
	if err != nil {
		return nil, err
	}

	var all []reply.Event
	var turnContext []string
	for _, member := range members {
		snap, cfg, err := s.buildSnapshot(group, member, members, turnContext)
		if err != nil {
			return nil, err
		}

		events := s.runCall(ctx, cfg, prompt.BuildChat(snap), snap)
		s.persistEvents(group, member.ID, events)
		all = append(all, events...)

		for _, line := range textLines(member.Name, events) {
			turnContext = append(turnContext, line)
		}
	}
	return all, nil
}

// textLines renders a member's bubbles as "name: text" turn-context lines.
func textLines(name string, events []reply.Event) []string {
	var lines []string
	for _, e := range events {
		if e.Type == reply.EventText {
			lines = append(lines, name+": "+e.Text)
		}
	}
	return lines
}

// buildSnapshot takes the single consistent view of state a prompt is
// assembled from. All reads happen before the call suspends.
func (s *ChatService) buildSnapshot(actor, speaker *models.Actor, members []*models.Actor, turnContext []string) (*prompt.Snapshot, *models.APIConfig, error) {
	cfg, err := s.providers.GetActive()
	if err != nil {
		return nil, nil, &CallError{Kind: ErrKindConfigIncomplete, Reason: "no active api config", Err: err}
	}

	memoryOwner := actor
	if speaker != nil {
		memoryOwner = speaker
	}

	global, err := s.memory.GetGlobalMemory()
	if err != nil {
		return nil, nil, err
	}
	character, err := s.memory.GetCharacterMemory(memoryOwner.ID)
	if err != nil {
		return nil, nil, err
	}
	table, err := s.memory.GetMemoryTable(actor.ID)
	if err != nil {
		return nil, nil, err
	}
	user, err := s.actors.GetUserProfile()
	if err != nil {
		return nil, nil, err
	}
	emojis, err := s.emojis.List()
	if err != nil {
		return nil, nil, err
	}
	history, err := s.messages.Recent(actor.ID, cfg.ContextWindow())
	if err != nil {
		return nil, nil, err
	}

	snap := &prompt.Snapshot{
		Actor:           actor,
		Speaker:         speaker,
		Members:         members,
		User:            user,
		GlobalMemory:    global,
		CharacterMemory: character,
		MemoryTable:     table,
		Emojis:          emojis,
		Live:            s.memory.GetLiveFacts(),
		History:         history,
		TurnContext:     turnContext,
		Capabilities: prompt.CapabilityFlags{
			RedPacket: true,
			Emoji:     len(emojis) > 0,
			Voice:     memoryOwner.VoiceID != "" && s.TTSConfigured,
		},
		ContextWindow: cfg.ContextWindow(),
	}
	return snap, cfg, nil
}

// runCall performs the round trip and demultiplexes, mapping call
// failures to typed failure events so the UI always gets events back.
func (s *ChatService) runCall(ctx context.Context, cfg *models.APIConfig, req prompt.Request, snap *prompt.Snapshot) []reply.Event {
	content, err := s.llm.Call(ctx, cfg, req, nil)
	if err != nil {
		log.Printf("❌ [CHAT] Call failed for actor %s: %v", snap.Actor.ID, err)
		reason := reply.FailureAPIFailure
		switch ErrorKind(err) {
		case ErrKindEmptyContent:
			reason = reply.FailureEmptyContent
		case ErrKindShapeError:
			reason = reply.FailureShapeError
		}
		return []reply.Event{reply.FailureEvent(reason)}
	}

	events := reply.Demultiplex(content, reply.Options{
		VoiceEnabled: snap.Capabilities.Voice,
		Emojis:       models.NewEmojiIndex(snap.Emojis),
	})
	if s.metrics != nil {
		for _, e := range events {
			s.metrics.RecordChatEvent(string(e.Type))
		}
	}
	return events
}

// persistEvents appends the reply events to the conversation in
// emission order. Timestamps are produced here, at demultiplex time, so
// a late reply interleaves correctly with messages typed meanwhile.
func (s *ChatService) persistEvents(actor *models.Actor, senderID string, events []reply.Event) {
	for _, e := range events {
		msg, ok := s.eventToMessage(actor, senderID, e)
		if !ok {
			continue
		}
		if err := s.messages.Append(&msg); err != nil {
			log.Printf("⚠️ [CHAT] Failed to persist reply message: %v", err)
		}
	}
}

func (s *ChatService) eventToMessage(actor *models.Actor, senderID string, e reply.Event) (models.Message, bool) {
	msg := models.Message{
		ActorID:   actor.ID,
		SenderID:  senderID,
		Role:      "assistant",
		Timestamp: time.Now(),
	}
	switch e.Type {
	case reply.EventText:
		msg.Kind = models.MessageKindText
		msg.Content = e.Text
	case reply.EventEmoji:
		msg.Kind = models.MessageKindEmoji
		msg.Content = models.EmojiToken(e.Emoji.Tag)
	case reply.EventRedPacket:
		msg.Kind = models.MessageKindRedPacket
		msg.Content = models.RedPacketToken(e.RedPacket)
		msg.RedPacket = e.RedPacket
	case reply.EventVoice:
		msg.Kind = models.MessageKindVoice
		msg.Content = models.VoicePrefix + e.Text
	case reply.EventMemoryTable:
		// Inline channel is optional; the standalone refresher wins
		// when both fire in the same turn.
		if s.refresher != nil && s.refresher.InFlight(actor.ID) {
			log.Printf("⏭️ [CHAT] Dropping inline table update for actor %s, refresh in flight", actor.ID)
			return models.Message{}, false
		}
		if err := s.memory.SetMemoryTable(actor.ID, e.Text); err != nil {
			log.Printf("⚠️ [CHAT] Failed to apply inline table update: %v", err)
		}
		return models.Message{}, false
	default:
		return models.Message{}, false
	}
	return msg, true
}

// maybeTriggerRefresh triggers a memory refresh every N user turns. A
// send can carry several user messages at once, so the check is whether
// this send crossed a multiple of N, not whether the count landed on
// one. Runs after the triggering turn is persisted.
func (s *ChatService) maybeTriggerRefresh(ctx context.Context, actorID string, added int) {
	if s.refresher == nil {
		return
	}
	every := s.RefreshEveryNTurns
	if every <= 0 {
		every = DefaultRefreshEveryNTurns
	}
	turns, err := s.messages.CountUserTurns(actorID)
	if err != nil {
		log.Printf("⚠️ [CHAT] Failed to count user turns: %v", err)
		return
	}
	if added < 1 {
		added = 1
	}
	if turns > 0 && turns/every > (turns-added)/every {
		s.refresher.Trigger(ctx, actorID)
	}
}

// RegenerateOpening produces the placeholder-only request used when a
// conversation has no usable history yet.
func (s *ChatService) RegenerateOpening(ctx context.Context, actorID string) ([]reply.Event, error) {
	actor, err := s.actors.Get(actorID)
	if err != nil {
		return nil, err
	}
	if actor.IsGroup() {
		return nil, fmt.Errorf("opening regeneration is for individual chats")
	}
	return s.individualTurn(ctx, actor)
}

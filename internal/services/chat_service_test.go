package services

import (
	"context"
	"strings"
	"testing"

	"lumichat/internal/database"
	"lumichat/internal/models"
	"lumichat/internal/reply"
)

type chatFixture struct {
	chat     *ChatService
	actors   *ActorService
	messages *MessageService
	memory   *MemoryService
	emojis   *EmojiService
	caller   *stubCaller
	db       *database.DB
}

func newChatFixture(t *testing.T) *chatFixture {
	t.Helper()
	db := newTestDB(t)
	actors := NewActorService(db)
	messages := NewMessageService(db)
	memory := NewMemoryService(db)
	emojis := NewEmojiService(db)
	providers := NewProviderService(db)

	cfg := &models.APIConfig{
		Name:    "test",
		BaseURL: "http://unused",
		APIKeys: []string{"sk-test"},
		Model:   "primary",
	}
	if err := providers.Create(cfg); err != nil {
		t.Fatalf("create config: %v", err)
	}
	if err := providers.SetActive(cfg.ID); err != nil {
		t.Fatalf("activate config: %v", err)
	}

	caller := &stubCaller{}
	refresher := NewMemoryRefreshService(actors, messages, memory, emojis, providers, caller, nil)
	chat := NewChatService(actors, messages, memory, emojis, providers, caller, refresher, nil)

	return &chatFixture{chat: chat, actors: actors, messages: messages, memory: memory, emojis: emojis, caller: caller, db: db}
}

func (f *chatFixture) createActor(t *testing.T, name string, kind models.ActorKind) *models.Actor {
	t.Helper()
	actor := &models.Actor{Name: name, Persona: name + "的人设", Kind: kind}
	if err := f.actors.Create(actor); err != nil {
		t.Fatalf("create actor: %v", err)
	}
	return actor
}

func userMessage(content string) models.Message {
	return models.Message{Kind: models.MessageKindText, Content: content}
}

func TestSendMessagePersistsBothSides(t *testing.T) {
	f := newChatFixture(t)
	actor := f.createActor(t, "阿狸", models.ActorKindIndividual)
	f.caller.content = "在呢|||怎么啦"

	events, err := f.chat.SendMessage(context.Background(), actor.ID, []models.Message{userMessage("在吗")})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Text != "在呢" || events[1].Text != "怎么啦" {
		t.Errorf("unexpected bubbles: %+v", events)
	}

	history, err := f.messages.Recent(actor.ID, 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected user msg + 2 bubbles, got %d", len(history))
	}
	if history[0].Role != "user" || history[0].Content != "在吗" {
		t.Errorf("user message not first: %+v", history[0])
	}
	if history[1].Role != "assistant" || history[2].Role != "assistant" {
		t.Errorf("reply bubbles missing: %+v", history[1:])
	}
}

func TestSendMessageMapsFailureKinds(t *testing.T) {
	f := newChatFixture(t)
	actor := f.createActor(t, "阿狸", models.ActorKindIndividual)

	cases := []struct {
		kind CallErrorKind
		want string
	}{
		{ErrKindEmptyContent, reply.FailureEmptyContent},
		{ErrKindShapeError, reply.FailureShapeError},
		{ErrKindTimeout, reply.FailureAPIFailure},
		{ErrKindTransientUpstream, reply.FailureAPIFailure},
	}
	for _, tc := range cases {
		f.caller.err = &CallError{Kind: tc.kind}
		events, err := f.chat.SendMessage(context.Background(), actor.ID, []models.Message{userMessage("在吗")})
		if err != nil {
			t.Fatalf("kind %s: send should surface failure as event, got %v", tc.kind, err)
		}
		if len(events) != 1 || events[0].Type != reply.EventFailure || events[0].Reason != tc.want {
			t.Errorf("kind %s: unexpected events %+v", tc.kind, events)
		}
	}
}

func TestSendMessagePersistsTokenForms(t *testing.T) {
	f := newChatFixture(t)
	actor := f.createActor(t, "阿狸", models.ActorKindIndividual)
	if err := f.emojis.Upsert(models.Emoji{Tag: "doge", Meaning: "狗头"}); err != nil {
		t.Fatalf("seed emoji: %v", err)
	}
	f.caller.content = `好嘞|||[emoji:doge]|||[red_packet:{"amount":5.20,"message":"拿去花"}]`

	events, err := f.chat.SendMessage(context.Background(), actor.ID, []models.Message{userMessage("发个红包")})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}

	history, _ := f.messages.Recent(actor.ID, 10)
	var kinds []models.MessageKind
	for _, m := range history[1:] {
		kinds = append(kinds, m.Kind)
	}
	want := []models.MessageKind{models.MessageKindText, models.MessageKindEmoji, models.MessageKindRedPacket}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("expected kinds %v, got %v", want, kinds)
		}
	}
	rp := history[3]
	if rp.RedPacket == nil || rp.RedPacket.Amount != 5.20 {
		t.Errorf("red packet payload not persisted: %+v", rp.RedPacket)
	}
	if !strings.HasPrefix(rp.Content, "[red_packet:") {
		t.Errorf("red packet token form missing: %q", rp.Content)
	}
}

func TestSendMessageAppliesInlineTableUpdate(t *testing.T) {
	f := newChatFixture(t)
	actor := f.createActor(t, "阿狸", models.ActorKindIndividual)
	f.caller.content = "记住了|||<memory_table>| 字段 | 当前值 |\n| 约定 | 周末看电影 |</memory_table>"

	events, err := f.chat.SendMessage(context.Background(), actor.ID, []models.Message{userMessage("周末看电影吧")})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	table, _ := f.memory.GetMemoryTable(actor.ID)
	if !strings.Contains(table, "周末看电影") {
		t.Errorf("inline table update not applied: %q", table)
	}

	// The table event is surfaced to the caller but never stored as a
	// conversation message.
	history, _ := f.messages.Recent(actor.ID, 10)
	if len(history) != 2 {
		t.Fatalf("expected user msg + 1 bubble, got %d", len(history))
	}
	var sawTable bool
	for _, e := range events {
		if e.Type == reply.EventMemoryTable {
			sawTable = true
		}
	}
	if !sawTable {
		t.Error("memory table event missing from returned events")
	}
}

func TestGroupTurnEveryMemberReplies(t *testing.T) {
	f := newChatFixture(t)
	a := f.createActor(t, "阿狸", models.ActorKindIndividual)
	b := f.createActor(t, "小白", models.ActorKindIndividual)
	group := &models.Actor{Name: "老友群", Kind: models.ActorKindGroup, MemberIDs: []string{a.ID, b.ID}}
	if err := f.actors.Create(group); err != nil {
		t.Fatalf("create group: %v", err)
	}
	f.caller.content = "大家好"

	events, err := f.chat.SendMessage(context.Background(), group.ID, []models.Message{userMessage("晚上吃什么")})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected one bubble per member, got %d", len(events))
	}
	if got := f.caller.calls.Load(); got != 2 {
		t.Errorf("expected one call per member, got %d", got)
	}

	// The second member sees the first member's bubble as turn context.
	var sawContext bool
	for _, m := range f.caller.lastReq.Messages {
		if strings.Contains(m.Content, "阿狸: 大家好") {
			sawContext = true
		}
	}
	if !sawContext {
		t.Error("second member did not receive the first member's reply as turn context")
	}

	// Bubbles carry the member who spoke them.
	history, _ := f.messages.Recent(group.ID, 10)
	senders := map[string]bool{}
	for _, m := range history {
		if m.Role == "assistant" {
			senders[m.SenderID] = true
		}
	}
	if !senders[a.ID] || !senders[b.ID] {
		t.Errorf("expected bubbles from both members, got %v", senders)
	}
}

func TestRefreshTriggersEveryNTurns(t *testing.T) {
	f := newChatFixture(t)
	actor := f.createActor(t, "阿狸", models.ActorKindIndividual)
	f.caller.content = "嗯嗯"
	f.chat.RefreshEveryNTurns = 2

	// Turn 1: no refresh. Turn 2: refresh fires once.
	for i := 0; i < 2; i++ {
		if _, err := f.chat.SendMessage(context.Background(), actor.ID, []models.Message{userMessage("讲个故事")}); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	waitIdle(t, f.chat.refresher, actor.ID)

	// Two chat calls plus one refresher call.
	if got := f.caller.calls.Load(); got != 3 {
		t.Errorf("expected 3 calls (2 chat + 1 refresh), got %d", got)
	}
}

func TestRefreshTriggersWhenBatchedSendJumpsCadence(t *testing.T) {
	f := newChatFixture(t)
	actor := f.createActor(t, "阿狸", models.ActorKindIndividual)
	f.caller.content = "嗯嗯"
	f.chat.RefreshEveryNTurns = 2

	// Turn 1: no refresh yet.
	if _, err := f.chat.SendMessage(context.Background(), actor.ID, []models.Message{userMessage("在吗")}); err != nil {
		t.Fatalf("send: %v", err)
	}
	// One send carrying two user messages jumps the count from 1 to 3,
	// crossing the cadence without landing on it.
	batch := []models.Message{userMessage("讲个故事"), userMessage("要长一点的")}
	if _, err := f.chat.SendMessage(context.Background(), actor.ID, batch); err != nil {
		t.Fatalf("batched send: %v", err)
	}
	waitIdle(t, f.chat.refresher, actor.ID)

	// Two chat calls plus one refresher call.
	if got := f.caller.calls.Load(); got != 3 {
		t.Errorf("expected 3 calls (2 chat + 1 refresh), got %d", got)
	}
}

func TestRegenerateOpeningRejectsGroups(t *testing.T) {
	f := newChatFixture(t)
	group := &models.Actor{Name: "老友群", Kind: models.ActorKindGroup}
	if err := f.actors.Create(group); err != nil {
		t.Fatalf("create group: %v", err)
	}
	if _, err := f.chat.RegenerateOpening(context.Background(), group.ID); err == nil {
		t.Fatal("expected error for group actor")
	}
}

func TestVoiceCapabilityRequiresBothSides(t *testing.T) {
	f := newChatFixture(t)
	actor := f.createActor(t, "阿狸", models.ActorKindIndividual)
	actor.VoiceID = "voice-1"
	if err := f.actors.Update(actor); err != nil {
		t.Fatalf("update actor: %v", err)
	}

	// Voice ID set but TTS unconfigured: voice replies degrade to split
	// text bubbles.
	f.caller.content = "[语音]: 今天好想你|||真的"
	events, err := f.chat.SendMessage(context.Background(), actor.ID, []models.Message{userMessage("在吗")})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected plain split without voice capability, got %+v", events)
	}

	// Both sides set: the whole reply becomes one voice event.
	f.chat.TTSConfigured = true
	events, err = f.chat.SendMessage(context.Background(), actor.ID, []models.Message{userMessage("再说一遍")})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(events) != 1 || events[0].Type != reply.EventVoice {
		t.Fatalf("expected single voice event, got %+v", events)
	}
}

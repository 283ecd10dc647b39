package prompt

import (
	"strings"
	"testing"

	"lumichat/internal/models"
)

func TestRenderHistoryRedPacketSyntheticLine(t *testing.T) {
	msgs := []models.Message{
		{Role: "user", Kind: models.MessageKindRedPacket,
			RedPacket: &models.RedPacket{Amount: 6.66, Message: "买奶茶"}},
	}

	out := RenderHistory(msgs, HistoryOptions{})
	if len(out) != 1 {
		t.Fatalf("expected 1 message, got %d", len(out))
	}
	if out[0].Role != "user" {
		t.Errorf("red packet lines are always user role, got %s", out[0].Role)
	}
	want := `[用户发送了一个金额为6.66元的红包，留言："买奶茶"]`
	if out[0].Content != want {
		t.Errorf("got %q, want %q", out[0].Content, want)
	}
}

func TestRenderHistoryRedPacketWholeAmount(t *testing.T) {
	msgs := []models.Message{
		{Role: "user", Kind: models.MessageKindRedPacket,
			RedPacket: &models.RedPacket{Amount: 5, Message: "拿去"}},
	}

	out := RenderHistory(msgs, HistoryOptions{})
	if !strings.Contains(out[0].Content, "金额为5元") {
		t.Errorf("whole amounts must not carry decimals: %q", out[0].Content)
	}
}

func TestRenderHistoryNormalizesEmoji(t *testing.T) {
	msgs := []models.Message{
		{Role: "assistant", Kind: models.MessageKindEmoji, Content: "doge"},
		{Role: "assistant", Kind: models.MessageKindEmoji, Content: "[emoji:cry]"},
	}

	out := RenderHistory(msgs, HistoryOptions{})
	if out[0].Content != "[emoji:doge]" {
		t.Errorf("bare tag not normalized: %q", out[0].Content)
	}
	if out[1].Content != "[emoji:cry]" {
		t.Errorf("token form must pass through: %q", out[1].Content)
	}
}

func TestRenderHistoryDropsEmptyMessages(t *testing.T) {
	msgs := []models.Message{
		{Role: "user", Kind: models.MessageKindText, Content: "   "},
		{Role: "user", Kind: models.MessageKindText, Content: "在吗"},
		{Role: "user", Kind: models.MessageKindRedPacket, RedPacket: nil},
	}

	out := RenderHistory(msgs, HistoryOptions{})
	if len(out) != 1 || out[0].Content != "在吗" {
		t.Fatalf("expected only the non-empty message, got %+v", out)
	}
}

func TestRenderHistoryGroupSenderPrefix(t *testing.T) {
	msgs := []models.Message{
		{Role: "user", Kind: models.MessageKindText, Content: "大家好"},
		{Role: "assistant", SenderID: "a1", Kind: models.MessageKindText, Content: "你好呀"},
		{Role: "assistant", SenderID: "unknown", Kind: models.MessageKindText, Content: "哈喽"},
	}

	out := RenderHistory(msgs, HistoryOptions{
		Group:       true,
		UserName:    "小明",
		SenderNames: map[string]string{"a1": "阿狸"},
	})

	if out[0].Content != "小明: 大家好" {
		t.Errorf("user prefix wrong: %q", out[0].Content)
	}
	if out[1].Content != "阿狸: 你好呀" {
		t.Errorf("member prefix wrong: %q", out[1].Content)
	}
	if out[2].Content != "unknown: 哈喽" {
		t.Errorf("unresolved sender falls back to ID: %q", out[2].Content)
	}
}

func TestRenderHistoryRewritesInlineImages(t *testing.T) {
	idx := models.NewEmojiIndex([]models.Emoji{
		{Tag: "doge", Meaning: "狗头", ImageURL: "data:image/png;base64,AAAA"},
	})
	msgs := []models.Message{
		{Role: "user", Kind: models.MessageKindText,
			Content: "看这个 ![](data:image/png;base64,AAAA) 好玩吧"},
		{Role: "user", Kind: models.MessageKindText,
			Content: "data:image/gif;base64,BBBB"},
	}

	out := RenderHistory(msgs, HistoryOptions{Emojis: idx})
	if !strings.Contains(out[0].Content, "[发送了表情：狗头]") {
		t.Errorf("known image should use its meaning: %q", out[0].Content)
	}
	if strings.Contains(out[0].Content, "base64") {
		t.Errorf("base64 payload leaked: %q", out[0].Content)
	}
	if !strings.Contains(out[1].Content, "[发送了表情：表情]") {
		t.Errorf("unknown image should use the generic meaning: %q", out[1].Content)
	}
}

func TestAppendTurnContextFraming(t *testing.T) {
	history := []ChatMessage{{Role: "user", Content: "大家好"}}
	out := AppendTurnContext(history, []string{"阿狸: 你好呀", "", "小白: 哈喽"})

	if len(out) != 5 {
		t.Fatalf("expected 5 messages, got %d", len(out))
	}
	if out[1].Content != TurnContextOpen {
		t.Errorf("missing open line: %q", out[1].Content)
	}
	if out[4].Content != TurnContextClose {
		t.Errorf("missing close line: %q", out[4].Content)
	}
	for _, m := range out[1:] {
		if m.Role != "user" {
			t.Errorf("turn context lines must be user role, got %s", m.Role)
		}
	}
}

func TestAppendTurnContextNoLines(t *testing.T) {
	history := []ChatMessage{{Role: "user", Content: "在吗"}}
	out := AppendTurnContext(history, nil)
	if len(out) != 1 {
		t.Fatalf("no lines means no framing, got %d messages", len(out))
	}
}

func TestEnsureNonEmpty(t *testing.T) {
	out := EnsureNonEmpty(nil)
	if len(out) != 1 || out[0].Content != EmptyHistoryPlaceholder {
		t.Fatalf("expected placeholder, got %+v", out)
	}

	kept := []ChatMessage{{Role: "user", Content: "你好"}}
	if got := EnsureNonEmpty(kept); len(got) != 1 || got[0].Content != "你好" {
		t.Fatalf("non-empty input must pass through, got %+v", got)
	}
}

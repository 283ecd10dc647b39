package prompt

import (
	"fmt"
	"regexp"
	"strings"

	"lumichat/internal/models"
)

// ChatMessage is one entry of an outbound chat-completion request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Synthetic lines inserted around per-turn group context, plus the
// placeholder used when the rendered history would otherwise be empty.
const (
	TurnContextOpen  = "--- 以下是本回合刚刚发生的对话 ---"
	TurnContextClose = "--- 请针对以上最新对话进行回应 ---"

	EmptyHistoryPlaceholder = "开始对话"
)

// Legacy clients pasted emoji images into text as inline base64 data
// URLs, sometimes wrapped in markdown image syntax.
var dataURLPattern = regexp.MustCompile(`!?\[[^\]]*\]\(data:image/[^)]+\)|data:image/[A-Za-z0-9.+-]+;base64,[A-Za-z0-9+/=]+`)

// HistoryOptions controls how a conversation tail is rendered into
// provider-facing chat messages.
type HistoryOptions struct {
	Group       bool
	SenderNames map[string]string // actor ID -> display name, group chats only
	UserName    string
	Emojis      *models.EmojiIndex
}

// RenderHistory transforms a conversation tail into provider-facing
// messages: red packets become synthetic user lines, emoji messages are
// normalized to wire tokens, legacy inline images are humanized, and
// group messages carry a sender prefix.
func RenderHistory(msgs []models.Message, opts HistoryOptions) []ChatMessage {
	out := make([]ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		cm, ok := renderMessage(m, opts)
		if !ok {
			continue
		}
		out = append(out, cm)
	}
	return out
}

func renderMessage(m models.Message, opts HistoryOptions) (ChatMessage, bool) {
	switch m.Kind {
	case models.MessageKindRedPacket:
		if m.RedPacket == nil {
			return ChatMessage{}, false
		}
		// Synthetic user line keeps providers that reject custom roles happy.
		line := fmt.Sprintf("[用户发送了一个金额为%s元的红包，留言：\"%s\"]",
			m.RedPacket.FormatAmount(), m.RedPacket.Message)
		return ChatMessage{Role: "user", Content: line}, true

	case models.MessageKindEmoji:
		content := strings.TrimSpace(m.Content)
		if !strings.HasPrefix(content, models.EmojiTokenPrefix) {
			content = models.EmojiToken(content)
		}
		return ChatMessage{Role: m.Role, Content: prefixSender(content, m, opts)}, true

	case models.MessageKindVoice:
		content := strings.TrimSpace(m.Content)
		if content == "" {
			return ChatMessage{}, false
		}
		return ChatMessage{Role: m.Role, Content: prefixSender(content, m, opts)}, true

	default:
		content := rewriteInlineImages(m.Content, opts.Emojis)
		content = strings.TrimSpace(content)
		if content == "" {
			return ChatMessage{}, false
		}
		return ChatMessage{Role: m.Role, Content: prefixSender(content, m, opts)}, true
	}
}

// prefixSender disambiguates speakers in group conversations.
func prefixSender(content string, m models.Message, opts HistoryOptions) string {
	if !opts.Group {
		return content
	}
	name := opts.UserName
	if m.Role != "user" {
		name = opts.SenderNames[m.SenderID]
		if name == "" {
			name = m.SenderID
		}
	}
	if name == "" {
		return content
	}
	return name + ": " + content
}

// rewriteInlineImages replaces legacy base64 image data URLs with the
// humanized emoji form shown to the model.
func rewriteInlineImages(content string, emojis *models.EmojiIndex) string {
	if !strings.Contains(content, "data:image/") {
		return content
	}
	return dataURLPattern.ReplaceAllStringFunc(content, func(match string) string {
		url := match
		// Unwrap markdown image syntax to the bare data URL.
		if i := strings.Index(match, "(data:image/"); i >= 0 {
			url = strings.TrimSuffix(match[i+1:], ")")
		}
		meaning := "表情"
		if emojis != nil {
			if e, ok := emojis.ResolveImage(url); ok && e.Meaning != "" {
				meaning = e.Meaning
			}
		}
		return fmt.Sprintf("[发送了表情：%s]", meaning)
	})
}

// AppendTurnContext frames the other members' same-turn replies with the
// two synthetic user lines the model is told to respond to.
func AppendTurnContext(history []ChatMessage, lines []string) []ChatMessage {
	if len(lines) == 0 {
		return history
	}
	out := append(history, ChatMessage{Role: "user", Content: TurnContextOpen})
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		out = append(out, ChatMessage{Role: "user", Content: line})
	}
	return append(out, ChatMessage{Role: "user", Content: TurnContextClose})
}

// EnsureNonEmpty inserts the placeholder line when nothing survived the
// transformation; providers must never receive an empty array.
func EnsureNonEmpty(msgs []ChatMessage) []ChatMessage {
	if len(msgs) > 0 {
		return msgs
	}
	return []ChatMessage{{Role: "user", Content: EmptyHistoryPlaceholder}}
}

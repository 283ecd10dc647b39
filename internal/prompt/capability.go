package prompt

import (
	"fmt"
	"strings"

	"lumichat/internal/models"
)

// CapabilityFlags marks which optional reply channels are available for
// the current request. Voice is true only when the actor has a voice ID
// and the external TTS credentials are configured.
type CapabilityFlags struct {
	RedPacket bool
	Emoji     bool
	Voice     bool
}

// Capability is one optional output channel advertised to the model.
// Each capability contributes its grammar fragment to the system prompt;
// the matching recognizer lives in the reply package.
type Capability interface {
	Name() string
	Grammar() string
}

// BubbleContract is the trailer appended after every capability block:
// the reply must split into 3-8 short bubbles separated by |||.
const BubbleContract = `【消息格式】将你的回复拆分成3到8条简短的消息，消息之间用 ` + models.BubbleSeparator + ` 分隔。除 ` + models.BubbleSeparator + ` 之外不允许使用任何其他分隔符。`

type redPacketCapability struct{}

func (redPacketCapability) Name() string { return "red_packet" }

func (redPacketCapability) Grammar() string {
	return `【红包】你可以在合适的时机给对方发红包，是否发送由你自己决定。红包必须单独作为一条消息输出（即两侧紧邻 ` + models.BubbleSeparator + ` 分隔符），格式为 [red_packet:{"amount":金额,"message":"留言"}]，金额为 1 到 1000000 之间的数字。`
}

type emojiCapability struct {
	emojis []models.Emoji
}

func (emojiCapability) Name() string { return "emoji" }

func (c emojiCapability) Grammar() string {
	var sb strings.Builder
	sb.WriteString("【表情】你可以发送表情，表情必须单独作为一条消息输出，格式为 [emoji:标签]。可用的表情有：\n")
	for _, e := range c.emojis {
		tag, meaning := e.Tag, e.Meaning
		if meaning == "" {
			meaning = tag
		}
		sb.WriteString(fmt.Sprintf("%s (含义: %s)\n", models.EmojiToken(tag), meaning))
	}
	sb.WriteString("历史消息中出现的 [发送了表情：…] 只是展示形式，你绝对不能模仿输出这种形式。")
	return sb.String()
}

type voiceCapability struct{}

func (voiceCapability) Name() string { return "voice" }

func (voiceCapability) Grammar() string {
	return `【语音】如果你想以语音形式回复，请在整条回复的最开头加上前缀 ` + strings.TrimSpace(models.VoicePrefix) + ` 。该前缀作用于整条回复，而不是单条消息。`
}

// Catalog returns the enabled capabilities in deterministic order.
func Catalog(flags CapabilityFlags, emojis []models.Emoji) []Capability {
	var caps []Capability
	if flags.RedPacket {
		caps = append(caps, redPacketCapability{})
	}
	if flags.Emoji && len(emojis) > 0 {
		caps = append(caps, emojiCapability{emojis: emojis})
	}
	if flags.Voice {
		caps = append(caps, voiceCapability{})
	}
	return caps
}

// CapabilityBlock joins the grammar fragments of the enabled
// capabilities and always ends with the bubble-split contract.
func CapabilityBlock(caps []Capability) string {
	parts := make([]string, 0, len(caps)+1)
	for _, c := range caps {
		parts = append(parts, c.Grammar())
	}
	parts = append(parts, BubbleContract)
	return strings.Join(parts, "\n\n")
}

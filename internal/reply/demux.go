package reply

import (
	"encoding/json"
	"log"
	"regexp"
	"strings"

	"lumichat/internal/models"
)

// MaxBubbles is the upper bound of the bubble-split contract. Replies
// exceeding it are accepted but logged.
const MaxBubbles = 8

var thinkPattern = regexp.MustCompile(`(?s)<think>.*?</think>`)

// Options controls demultiplexing for one reply.
type Options struct {
	VoiceEnabled bool
	Emojis       *models.EmojiIndex
}

// Demultiplex parses a raw model reply into an ordered list of typed
// events. The proxy already strips surrounding code fences, but their
// presence is tolerated here as well.
func Demultiplex(raw string, opts Options) []Event {
	content := strings.TrimSpace(StripFences(raw))

	// Voice short-circuits everything, including bubble splitting.
	if opts.VoiceEnabled && strings.HasPrefix(content, models.VoicePrefix) {
		payload := strings.TrimSpace(strings.TrimPrefix(content, models.VoicePrefix))
		return []Event{{Type: EventVoice, Text: payload}}
	}

	var events []Event

	content, table := extractMemoryTable(content)
	content = thinkPattern.ReplaceAllString(content, "")

	bubbles := 0
	for _, segment := range strings.Split(content, models.BubbleSeparator) {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			continue
		}
		events = append(events, classify(segment, opts))
		bubbles++
	}

	if bubbles == 0 {
		events = append(events, FailureEvent(FailureEmpty))
	} else if bubbles > MaxBubbles {
		log.Printf("⚠️ [REPLY] Reply produced %d bubbles (contract max %d), accepting", bubbles, MaxBubbles)
	}

	if table != "" {
		events = append(events, Event{Type: EventMemoryTable, Text: table})
	}
	return events
}

// classify maps one bubble to its event variant. Malformed red packets
// and unresolved emoji references degrade to plain text.
func classify(segment string, opts Options) Event {
	if strings.HasPrefix(segment, models.RedPacketTokenPrefix) && strings.HasSuffix(segment, "]") {
		payload := segment[len(models.RedPacketTokenPrefix) : len(segment)-1]
		var rp models.RedPacket
		if err := json.Unmarshal([]byte(payload), &rp); err == nil && rp.Valid() {
			return Event{Type: EventRedPacket, RedPacket: &rp}
		}
		return TextEvent(segment)
	}

	if strings.HasPrefix(segment, models.EmojiTokenPrefix) && strings.HasSuffix(segment, "]") {
		ref := segment[len(models.EmojiTokenPrefix) : len(segment)-1]
		if opts.Emojis != nil {
			if e, ok := opts.Emojis.Resolve(ref); ok {
				return Event{Type: EventEmoji, Emoji: e}
			}
		}
		return TextEvent(segment)
	}

	return TextEvent(segment)
}

// extractMemoryTable removes a <memory_table> block and returns the
// remaining content plus the trimmed table markdown. The block normally
// trails the reply; when a model emits it mid-reply, the splice keeps a
// bubble boundary so the surrounding text does not fuse into one bubble.
func extractMemoryTable(content string) (rest, table string) {
	open := strings.LastIndex(content, models.MemoryTableOpenTag)
	if open < 0 {
		return content, ""
	}
	end := strings.Index(content[open:], models.MemoryTableCloseTag)
	if end < 0 {
		return content, ""
	}
	end += open

	table = strings.TrimSpace(content[open+len(models.MemoryTableOpenTag) : end])
	before := content[:open]
	after := content[end+len(models.MemoryTableCloseTag):]
	if strings.TrimSpace(before) != "" && strings.TrimSpace(after) != "" {
		return before + models.BubbleSeparator + after, table
	}
	return before + after, table
}

// StripFences removes a surrounding markdown code fence, with or without
// a language tag.
func StripFences(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return s
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if i := strings.Index(trimmed, "\n"); i >= 0 {
		// Drop a language tag like "json" on the opening line.
		first := strings.TrimSpace(trimmed[:i])
		if len(first) <= 10 && !strings.Contains(first, " ") {
			trimmed = trimmed[i+1:]
		}
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

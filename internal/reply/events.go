package reply

import "lumichat/internal/models"

// EventType tags the variants a model reply demultiplexes into.
type EventType string

const (
	EventText        EventType = "text"
	EventEmoji       EventType = "emoji"
	EventRedPacket   EventType = "red_packet"
	EventVoice       EventType = "voice"
	EventMemoryTable EventType = "memory_table_update"
	EventFailure     EventType = "failure"
)

// Failure reasons surfaced to the UI.
const (
	FailureEmpty        = "empty"
	FailureAPIFailure   = "api_failure"
	FailureEmptyContent = "empty_content"
	FailureShapeError   = "shape_error"
)

// Event is one typed unit of a demultiplexed reply, in emission order.
type Event struct {
	Type      EventType         `json:"type"`
	Text      string            `json:"text,omitempty"` // bubble text, voice payload, or table markdown
	Emoji     *models.Emoji     `json:"emoji,omitempty"`
	RedPacket *models.RedPacket `json:"red_packet,omitempty"`
	Reason    string            `json:"reason,omitempty"` // failure events only
}

// Meta reports whether the event is excluded from the bubble count.
func (e Event) Meta() bool {
	return e.Type == EventMemoryTable || e.Type == EventFailure
}

// TextEvent builds a plain bubble.
func TextEvent(text string) Event {
	return Event{Type: EventText, Text: text}
}

// FailureEvent builds a typed failure the UI can prompt a retry from.
func FailureEvent(reason string) Event {
	return Event{Type: EventFailure, Reason: reason}
}

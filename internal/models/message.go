package models

import (
	"encoding/json"
	"strconv"
	"time"
)

// MessageKind identifies the payload semantics of a message.
type MessageKind string

const (
	MessageKindText      MessageKind = "text"
	MessageKindEmoji     MessageKind = "emoji"
	MessageKindRedPacket MessageKind = "red_packet"
	MessageKindVoice     MessageKind = "voice"
)

// Red packet amounts are bounded on both ends.
const (
	RedPacketMinAmount = 1
	RedPacketMaxAmount = 1_000_000
)

// RedPacket is the payload of a red-packet message.
// The wire key for the note is "message"; the legacy "note" key is
// accepted on read and migrated silently.
type RedPacket struct {
	Amount  float64 `json:"amount"`
	Message string  `json:"message"`
}

// UnmarshalJSON accepts both the current "message" key and the legacy "note" key.
func (r *RedPacket) UnmarshalJSON(data []byte) error {
	var raw struct {
		Amount  float64 `json:"amount"`
		Message string  `json:"message"`
		Note    string  `json:"note"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.Amount = raw.Amount
	r.Message = raw.Message
	if r.Message == "" {
		r.Message = raw.Note
	}
	return nil
}

// Valid reports whether the amount falls inside the allowed range.
func (r *RedPacket) Valid() bool {
	return r.Amount >= RedPacketMinAmount && r.Amount <= RedPacketMaxAmount
}

// FormatAmount renders the amount without trailing zeros (6.66 -> "6.66", 5 -> "5").
func (r *RedPacket) FormatAmount() string {
	return strconv.FormatFloat(r.Amount, 'f', -1, 64)
}

// Message is one entry in a conversation. Immutable after creation.
// For group conversations SenderID names the member that spoke; for
// individual conversations it equals ActorID on assistant messages and
// is empty on user messages.
type Message struct {
	ID        string      `json:"id"`
	ActorID   string      `json:"actor_id"`
	SenderID  string      `json:"sender_id,omitempty"`
	Role      string      `json:"role"` // "user" or "assistant"
	Kind      MessageKind `json:"kind"`
	Content   string      `json:"content"`
	RedPacket *RedPacket  `json:"red_packet,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

package models

import (
	"encoding/json"
	"fmt"
)

// Wire tokens shared between the prompt grammar and the reply parser.
const (
	// BubbleSeparator splits a reply into individual bubbles.
	BubbleSeparator = "|||"

	// VoicePrefix marks a whole reply as a voice directive.
	VoicePrefix = "[语音]: "

	// EmojiTokenPrefix opens an emoji reference token.
	EmojiTokenPrefix = "[emoji:"

	// RedPacketTokenPrefix opens a red-packet token.
	RedPacketTokenPrefix = "[red_packet:"

	// MemoryTableOpenTag and MemoryTableCloseTag delimit an inline
	// memory-table update embedded in a chat reply.
	MemoryTableOpenTag  = "<memory_table>"
	MemoryTableCloseTag = "</memory_table>"
)

// EmojiToken renders the wire form of an emoji reference.
func EmojiToken(ref string) string {
	return EmojiTokenPrefix + ref + "]"
}

// RedPacketToken renders the wire form of a red packet.
func RedPacketToken(r *RedPacket) string {
	payload, _ := json.Marshal(struct {
		Amount  float64 `json:"amount"`
		Message string  `json:"message"`
	}{r.Amount, r.Message})
	return fmt.Sprintf("%s%s]", RedPacketTokenPrefix, payload)
}

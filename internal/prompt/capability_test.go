package prompt

import (
	"strings"
	"testing"

	"lumichat/internal/models"
)

func TestCatalogRespectsFlags(t *testing.T) {
	emojis := []models.Emoji{{Tag: "doge", Meaning: "狗头"}}

	caps := Catalog(CapabilityFlags{RedPacket: true, Emoji: true, Voice: true}, emojis)
	if len(caps) != 3 {
		t.Fatalf("expected 3 capabilities, got %d", len(caps))
	}
	want := []string{"red_packet", "emoji", "voice"}
	for i, c := range caps {
		if c.Name() != want[i] {
			t.Errorf("capability %d: expected %s, got %s", i, want[i], c.Name())
		}
	}

	if caps := Catalog(CapabilityFlags{}, emojis); len(caps) != 0 {
		t.Errorf("all flags off must yield no capabilities, got %d", len(caps))
	}

	// The emoji flag without a catalog offers nothing to reference.
	if caps := Catalog(CapabilityFlags{Emoji: true}, nil); len(caps) != 0 {
		t.Errorf("emoji capability without emojis must be dropped, got %d", len(caps))
	}
}

func TestCapabilityBlockAlwaysEndsWithContract(t *testing.T) {
	block := CapabilityBlock(nil)
	if block != BubbleContract {
		t.Errorf("empty catalog should still carry the bubble contract")
	}

	caps := Catalog(CapabilityFlags{RedPacket: true}, nil)
	block = CapabilityBlock(caps)
	if !strings.HasSuffix(block, BubbleContract) {
		t.Errorf("bubble contract must come last:\n%s", block)
	}
	if !strings.Contains(block, "[red_packet:") {
		t.Errorf("red packet grammar missing:\n%s", block)
	}
}

func TestEmojiGrammarListsCatalog(t *testing.T) {
	emojis := []models.Emoji{
		{Tag: "doge", Meaning: "狗头"},
		{Tag: "blank", Meaning: ""},
	}
	block := CapabilityBlock(Catalog(CapabilityFlags{Emoji: true}, emojis))

	if !strings.Contains(block, "[emoji:doge] (含义: 狗头)") {
		t.Errorf("tag with meaning missing:\n%s", block)
	}
	if !strings.Contains(block, "[emoji:blank] (含义: blank)") {
		t.Errorf("empty meaning should fall back to the tag:\n%s", block)
	}
	if !strings.Contains(block, "绝对不能模仿") {
		t.Errorf("humanized-form warning missing:\n%s", block)
	}
}

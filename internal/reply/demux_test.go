package reply

import (
	"strings"
	"testing"

	"lumichat/internal/models"
)

func testEmojis() *models.EmojiIndex {
	return models.NewEmojiIndex([]models.Emoji{
		{Tag: "doge", Meaning: "狗头", ImageURL: "https://cdn.example.com/doge.png"},
		{Tag: "cry", Meaning: "大哭", ImageURL: "https://cdn.example.com/cry.png"},
	})
}

func TestDemultiplexSplitsBubbles(t *testing.T) {
	events := Demultiplex("你来啦|||今天过得怎么样？|||我有点想你", Options{})

	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	want := []string{"你来啦", "今天过得怎么样？", "我有点想你"}
	for i, e := range events {
		if e.Type != EventText {
			t.Errorf("event %d: expected text, got %s", i, e.Type)
		}
		if e.Text != want[i] {
			t.Errorf("event %d: expected %q, got %q", i, want[i], e.Text)
		}
	}
}

func TestDemultiplexRedPacket(t *testing.T) {
	raw := `收下这个|||[red_packet:{"amount":6.66,"message":"买奶茶"}]`
	events := Demultiplex(raw, Options{})

	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[1].Type != EventRedPacket {
		t.Fatalf("expected red_packet, got %s", events[1].Type)
	}
	if events[1].RedPacket.Amount != 6.66 || events[1].RedPacket.Message != "买奶茶" {
		t.Errorf("unexpected payload: %+v", events[1].RedPacket)
	}
}

func TestDemultiplexRedPacketLegacyNoteKey(t *testing.T) {
	events := Demultiplex(`[red_packet:{"amount":5,"note":"拿去花"}]`, Options{})

	if events[0].Type != EventRedPacket {
		t.Fatalf("expected red_packet, got %s", events[0].Type)
	}
	if events[0].RedPacket.Message != "拿去花" {
		t.Errorf("expected legacy note migrated, got %q", events[0].RedPacket.Message)
	}
}

func TestDemultiplexMalformedRedPacketDegradesToText(t *testing.T) {
	cases := []string{
		`[red_packet:{"amount":0,"message":"太小"}]`,
		`[red_packet:{"amount":9999999,"message":"太大"}]`,
		`[red_packet:not json]`,
	}
	for _, raw := range cases {
		events := Demultiplex(raw, Options{})
		if len(events) != 1 || events[0].Type != EventText {
			t.Errorf("%s: expected single text event, got %+v", raw, events)
		}
		if events[0].Text != raw {
			t.Errorf("%s: token should survive verbatim, got %q", raw, events[0].Text)
		}
	}
}

func TestDemultiplexEmojiByTagAndMeaning(t *testing.T) {
	events := Demultiplex("[emoji:doge]|||[emoji:大哭]", Options{Emojis: testEmojis()})

	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Type != EventEmoji || events[0].Emoji.Tag != "doge" {
		t.Errorf("tag lookup failed: %+v", events[0])
	}
	if events[1].Type != EventEmoji || events[1].Emoji.Tag != "cry" {
		t.Errorf("meaning lookup failed: %+v", events[1])
	}
}

func TestDemultiplexUnknownEmojiDegradesToText(t *testing.T) {
	events := Demultiplex("[emoji:nonexistent]", Options{Emojis: testEmojis()})

	if events[0].Type != EventText || events[0].Text != "[emoji:nonexistent]" {
		t.Errorf("expected verbatim text fallback, got %+v", events[0])
	}
}

func TestDemultiplexVoiceShortCircuit(t *testing.T) {
	raw := "[语音]: 今天我们去哪玩？|||还是在家待着？"
	events := Demultiplex(raw, Options{VoiceEnabled: true})

	if len(events) != 1 {
		t.Fatalf("voice must not split, got %d events", len(events))
	}
	if events[0].Type != EventVoice {
		t.Fatalf("expected voice, got %s", events[0].Type)
	}
	if !strings.Contains(events[0].Text, "|||") {
		t.Errorf("voice payload should keep separators verbatim: %q", events[0].Text)
	}
}

func TestDemultiplexVoiceDisabledSplitsNormally(t *testing.T) {
	events := Demultiplex("[语音]: 你好|||在吗", Options{VoiceEnabled: false})

	if len(events) != 2 {
		t.Fatalf("expected 2 text events, got %d", len(events))
	}
	if events[0].Type != EventText {
		t.Errorf("expected text, got %s", events[0].Type)
	}
}

func TestDemultiplexMemoryTable(t *testing.T) {
	raw := "好的，我记住了|||没问题\n<memory_table>\n# 背景设定\n|现在|家里|\n</memory_table>"
	events := Demultiplex(raw, Options{})

	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	last := events[2]
	if last.Type != EventMemoryTable {
		t.Fatalf("expected memory_table_update last, got %s", last.Type)
	}
	if !strings.HasPrefix(last.Text, "# 背景设定") {
		t.Errorf("table not trimmed: %q", last.Text)
	}
	for _, e := range events[:2] {
		if strings.Contains(e.Text, "memory_table") {
			t.Errorf("table leaked into bubble: %q", e.Text)
		}
	}
	if !last.Meta() {
		t.Error("table event must be meta")
	}
}

func TestDemultiplexMidReplyMemoryTableKeepsBubbleBoundary(t *testing.T) {
	raw := "先记一下<memory_table>\n|现在|家里|\n</memory_table>记好了"
	events := Demultiplex(raw, Options{})

	if len(events) != 3 {
		t.Fatalf("expected 2 bubbles + table, got %d: %+v", len(events), events)
	}
	if events[0].Text != "先记一下" || events[1].Text != "记好了" {
		t.Errorf("text around the table must stay separate bubbles: %+v", events[:2])
	}
	if events[2].Type != EventMemoryTable {
		t.Errorf("expected memory_table_update last, got %s", events[2].Type)
	}
}

func TestDemultiplexStripsThinkBlocks(t *testing.T) {
	raw := "<think>用户在撒娇，我应该安慰</think>别难过啦|||抱抱你"
	events := Demultiplex(raw, Options{})

	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if strings.Contains(events[0].Text, "think") {
		t.Errorf("think block leaked: %q", events[0].Text)
	}
}

func TestDemultiplexFencedReply(t *testing.T) {
	raw := "```\n早安|||吃早饭了吗\n```"
	events := Demultiplex(raw, Options{})

	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Text != "早安" {
		t.Errorf("fence not stripped: %q", events[0].Text)
	}
}

func TestDemultiplexEmptyReply(t *testing.T) {
	for _, raw := range []string{"", "   ", "|||", "<think>想了半天什么也没说</think>"} {
		events := Demultiplex(raw, Options{})
		if len(events) != 1 {
			t.Fatalf("%q: expected single failure event, got %d", raw, len(events))
		}
		if events[0].Type != EventFailure || events[0].Reason != FailureEmpty {
			t.Errorf("%q: expected empty failure, got %+v", raw, events[0])
		}
	}
}

func TestDemultiplexOverlongReplyAccepted(t *testing.T) {
	parts := make([]string, MaxBubbles+2)
	for i := range parts {
		parts[i] = "第n句"
	}
	events := Demultiplex(strings.Join(parts, "|||"), Options{})

	if len(events) != MaxBubbles+2 {
		t.Fatalf("overlong reply must be accepted whole, got %d events", len(events))
	}
}

func TestDemultiplexRoundTrip(t *testing.T) {
	// Demultiplexing emitted wire tokens must yield the original events.
	rp := &models.RedPacket{Amount: 88, Message: "生日快乐"}
	raw := "祝你生日快乐|||" + models.RedPacketToken(rp) + "|||" + models.EmojiToken("doge")
	events := Demultiplex(raw, Options{Emojis: testEmojis()})

	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[1].Type != EventRedPacket || events[1].RedPacket.Amount != 88 {
		t.Errorf("red packet did not round trip: %+v", events[1])
	}
	if events[2].Type != EventEmoji || events[2].Emoji.Tag != "doge" {
		t.Errorf("emoji did not round trip: %+v", events[2])
	}
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no fence", "hello", "hello"},
		{"plain fence", "```\nhello\n```", "hello"},
		{"json fence", "```json\n{\"a\":1}\n```", "{\"a\":1}"},
		{"leading space", "  ```\nhi\n```  ", "hi"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripFences(tt.in); got != tt.want {
				t.Errorf("StripFences(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

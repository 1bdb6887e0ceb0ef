package trigger

import (
	"math"
	"testing"
	"time"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestScoreMessageEmpty(t *testing.T) {
	res := ScoreMessage("")
	if res.HasEmote || res.HasPhrase || res.Score != 0 {
		t.Errorf("empty message scored %+v, want zero result", res)
	}
}

func TestScoreMessagePlainText(t *testing.T) {
	res := ScoreMessage("nice stream today")
	if res.Score != 0 {
		t.Errorf("plain message Score = %v, want 0", res.Score)
	}
}

func TestScoreMessageSingleEmote(t *testing.T) {
	res := ScoreMessage("KEKW")
	if !res.HasEmote || res.HasPhrase {
		t.Fatalf("single emote result = %+v", res)
	}
	if !almostEqual(res.Score, 0.3) {
		t.Errorf("Score = %v, want 0.3", res.Score)
	}
}

func TestScoreMessageSinglePhrase(t *testing.T) {
	res := ScoreMessage("no way he did that")
	if res.HasEmote || !res.HasPhrase {
		t.Fatalf("single phrase result = %+v", res)
	}
	if !almostEqual(res.Score, 0.4) {
		t.Errorf("Score = %v, want 0.4", res.Score)
	}
}

func TestScoreMessageCaseInsensitive(t *testing.T) {
	res := ScoreMessage("kekw clip it")
	if !res.HasEmote || !res.HasPhrase {
		t.Fatalf("lowercase match result = %+v", res)
	}
	if !almostEqual(res.Score, 0.7) {
		t.Errorf("Score = %v, want 0.7", res.Score)
	}
}

func TestScoreMessageExtraMatchesCapped(t *testing.T) {
	// Five distinct emotes: 0.3 base + 0.1 per extra, extras capped at two.
	res := ScoreMessage("KEKW LUL PogChamp monkaW LULW")
	if len(res.EmotesFound) < 5 {
		t.Fatalf("EmotesFound = %v, want at least 5", res.EmotesFound)
	}
	if !almostEqual(res.Score, 0.5) {
		t.Errorf("Score = %v, want 0.5", res.Score)
	}
}

func TestScoreMessageTotalCapped(t *testing.T) {
	res := ScoreMessage("NO SHOT WHAT HOW KEKW LUL OMEGALUL")
	if res.Score != 1.0 {
		t.Errorf("Score = %v, want capped at 1.0", res.Score)
	}
}

func floodMessages(text string, n int, base time.Time) []TimedMessage {
	msgs := make([]TimedMessage, n)
	for i := range msgs {
		msgs[i] = TimedMessage{Text: text, ReceivedAt: base.Add(time.Duration(i) * 100 * time.Millisecond)}
	}
	return msgs
}

func TestDetectEmoteFloodTooFewMessages(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	msgs := floodMessages("KEKW", 4, now)
	if DetectEmoteFlood(msgs, 10*time.Second, 3, now.Add(time.Second)) {
		t.Error("fewer than five messages must never flood")
	}
}

func TestDetectEmoteFloodThreshold(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	at := now.Add(time.Second)

	msgs := floodMessages("KEKW", 5, now)
	if !DetectEmoteFlood(msgs, 10*time.Second, 5, at) {
		t.Error("five KEKW messages must flood at threshold 5")
	}
	if DetectEmoteFlood(msgs, 10*time.Second, 6, at) {
		t.Error("five KEKW messages must not flood at threshold 6")
	}
}

func TestDetectEmoteFloodRequiresSameEmote(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	msgs := []TimedMessage{
		{Text: "KEKW", ReceivedAt: now},
		{Text: "PogChamp", ReceivedAt: now},
		{Text: "monkaS", ReceivedAt: now},
		{Text: "LULW", ReceivedAt: now},
		{Text: "OMEGALUL", ReceivedAt: now},
	}
	if DetectEmoteFlood(msgs, 10*time.Second, 3, now.Add(time.Second)) {
		t.Error("mixed emotes with no repeats must not flood")
	}
}

func TestDetectEmoteFloodIgnoresStaleMessages(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	stale := floodMessages("KEKW", 5, now.Add(-time.Minute))
	if DetectEmoteFlood(stale, 10*time.Second, 3, now) {
		t.Error("messages outside the window must not count")
	}
}

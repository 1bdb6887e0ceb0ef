package trigger

import (
	"strings"
	"time"
)

// ExcitementEmotes are emote names whose presence marks an excited message.
var ExcitementEmotes = []string{
	"KEKW", "LUL", "OMEGALUL", "PogChamp", "Pog", "POGGERS",
	"monkaW", "monkaS", "LULW", "PepeLaugh",
}

// ExcitementPhrases are plain-text exclamations that mark an excited message.
var ExcitementPhrases = []string{
	"NO SHOT", "WHAT", "HOW", "BRO", "DUDE", "HOLY", "WTF",
	"OMG", "LETS GO", "NO WAY", "INSANE", "CLIP IT", "CLIP THAT",
}

// ExcitementResult describes the excitement indicators found in one message.
type ExcitementResult struct {
	HasEmote     bool
	HasPhrase    bool
	EmotesFound  []string
	PhrasesFound []string
	Score        float64 // 0..1
}

// ScoreMessage analyzes a single chat message for excitement emotes and
// phrases. Matching is case-insensitive substring search.
//
// Scoring: an emote contributes 0.3 plus 0.1 per additional emote (capped at
// two extras); a phrase contributes 0.4 plus 0.1 per additional phrase (same
// cap); the total is capped at 1.0.
func ScoreMessage(message string) ExcitementResult {
	if message == "" {
		return ExcitementResult{}
	}
	upper := strings.ToUpper(message)

	var res ExcitementResult
	for _, emote := range ExcitementEmotes {
		if strings.Contains(upper, strings.ToUpper(emote)) {
			res.EmotesFound = append(res.EmotesFound, emote)
		}
	}
	for _, phrase := range ExcitementPhrases {
		if strings.Contains(upper, phrase) {
			res.PhrasesFound = append(res.PhrasesFound, phrase)
		}
	}
	res.HasEmote = len(res.EmotesFound) > 0
	res.HasPhrase = len(res.PhrasesFound) > 0

	if res.HasEmote {
		res.Score += 0.3 + float64(min(len(res.EmotesFound)-1, 2))*0.1
	}
	if res.HasPhrase {
		res.Score += 0.4 + float64(min(len(res.PhrasesFound)-1, 2))*0.1
	}
	if res.Score > 1.0 {
		res.Score = 1.0
	}
	return res
}

// TimedMessage is a chat message with its arrival time, used for flood checks.
type TimedMessage struct {
	Text       string
	ReceivedAt time.Time
}

// DetectEmoteFlood reports whether any single known emote appears at least
// threshold times across the messages that fall inside the window ending at
// now. Fewer than five messages never flood.
func DetectEmoteFlood(messages []TimedMessage, window time.Duration, threshold int, now time.Time) bool {
	if len(messages) < 5 {
		return false
	}
	if threshold <= 0 {
		threshold = 5
	}
	cutoff := now.Add(-window)

	counts := make(map[string]int)
	for _, m := range messages {
		if !m.ReceivedAt.IsZero() && m.ReceivedAt.Before(cutoff) {
			continue
		}
		upper := strings.ToUpper(m.Text)
		for _, emote := range ExcitementEmotes {
			if strings.Contains(upper, strings.ToUpper(emote)) {
				counts[strings.ToUpper(emote)]++
			}
		}
	}
	for _, c := range counts {
		if c >= threshold {
			return true
		}
	}
	return false
}

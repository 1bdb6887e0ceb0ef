// Package trigger contains the multi-signal detection engine: rolling-window
// statistics, the dynamic velocity baseline, the excitement scorer, the two
// signal sources (viewer polling and chat streaming), and the combo correlator
// that synthesizes higher-confidence events when signals align.
package trigger

import "time"

// Type identifies what kind of moment a signal source detected.
type Type string

const (
	TypeViewerSpike  Type = "viewer_spike"
	TypeChatVelocity Type = "chat_velocity"
	TypeKeyword      Type = "keyword"
	TypeEmoteFlood   Type = "emote_flood"

	// Combo types carry this prefix plus the combo name (combo_hype_moment).
	ComboPrefix = "combo_"
)

// IsCombo reports whether t was synthesized by the correlator.
func (t Type) IsCombo() bool {
	return len(t) > len(ComboPrefix) && string(t[:len(ComboPrefix)]) == ComboPrefix
}

// Event is an immutable detection record produced by exactly one signal source
// (or the correlator) and fanned out to any number of listeners.
type Event struct {
	Type       Type
	Timestamp  time.Time
	Data       map[string]any
	Confidence float64 // 0..1
}

// Ratio returns the viewer spike ratio carried in Data, or 0.
func (e Event) Ratio() float64 {
	if v, ok := e.Data["ratio"].(float64); ok {
		return v
	}
	return 0
}

// Sink receives every event a source emits, accepted or not. It replaces
// process-global stats: each orchestrator threads its own sink through the
// constructors so streamers stay isolated and testable.
type Sink interface {
	OnEvent(streamer string, ev Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(streamer string, ev Event)

func (f SinkFunc) OnEvent(streamer string, ev Event) { f(streamer, ev) }

// FanOut forwards each event to all sinks in order.
func FanOut(sinks ...Sink) Sink {
	return SinkFunc(func(streamer string, ev Event) {
		for _, s := range sinks {
			s.OnEvent(streamer, ev)
		}
	})
}

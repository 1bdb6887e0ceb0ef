package trigger

import (
	"sync"
	"time"
)

// comboRule is a named multi-signal combination.
type comboRule struct {
	name     string
	requires []Type
	boost    float64
}

// Two-type combos, evaluated in order after the super combo. The order is
// deliberate: once three distinct types are in the window only super_combo can
// fire, even if a specific pairing would be more descriptive.
var comboRules = []comboRule{
	{name: "chat_combo", requires: []Type{TypeChatVelocity, TypeKeyword}, boost: 0.15},
	{name: "hype_moment", requires: []Type{TypeViewerSpike, TypeChatVelocity}, boost: 0.20},
	{name: "clip_worthy", requires: []Type{TypeKeyword, TypeEmoteFlood}, boost: 0.15},
}

const superComboBoost = 0.30

// Combo describes a detected combination of trigger types.
type Combo struct {
	Name       string
	Triggers   []Type  // distinct types currently in the window
	Confidence float64 // 0..1
	EventCount int     // raw events in the window
}

// Correlator is a passive aggregator: signal sources record each emitted
// trigger into a shared short window, and Check re-evaluates the combo rules.
// Combo events are never recorded back into the window, so combos cannot
// cascade. Safe for concurrent use; one correlator is shared by all sources
// of a streamer.
type Correlator struct {
	mu     sync.Mutex
	window time.Duration
	events []comboEntry
}

type comboEntry struct {
	typ Type
	at  time.Time
}

// DefaultComboWindow is the correlation horizon.
const DefaultComboWindow = 10 * time.Second

// NewCorrelator creates a correlator with the given window (default 10s).
func NewCorrelator(window time.Duration) *Correlator {
	if window <= 0 {
		window = DefaultComboWindow
	}
	return &Correlator{window: window}
}

// Record notes that a trigger of the given type fired at the given time.
func (c *Correlator) Record(typ Type, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, comboEntry{typ: typ, at: at})
	c.pruneLocked(at)
}

func (c *Correlator) pruneLocked(now time.Time) {
	cutoff := now.Add(-c.window)
	i := 0
	for i < len(c.events) && !c.events[i].at.After(cutoff) {
		i++
	}
	if i > 0 {
		c.events = append(c.events[:0], c.events[i:]...)
	}
}

// Check evaluates the combo rules against the current window and returns the
// first match in priority order: super_combo (three or more distinct types)
// first, then the named two-type combos. Returns nil when nothing matches.
func (c *Correlator) Check(now time.Time) *Combo {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pruneLocked(now)

	if len(c.events) == 0 {
		return nil
	}

	counts := make(map[Type]int)
	for _, e := range c.events {
		counts[e.typ]++
	}
	distinct := make([]Type, 0, len(counts))
	for t := range counts {
		distinct = append(distinct, t)
	}

	if n := len(distinct); n >= 3 {
		// n * (1/n) = 1.0 before the boost; kept explicit to match the
		// documented confidence formula.
		base := float64(n) * (1.0 / float64(n))
		return &Combo{
			Name:       "super_combo",
			Triggers:   distinct,
			Confidence: capConfidence(base + superComboBoost),
			EventCount: len(c.events),
		}
	}

	for _, rule := range comboRules {
		if !hasAll(counts, rule.requires) {
			continue
		}
		var base float64
		for _, t := range rule.requires {
			base += minf(float64(counts[t])/3.0, 1.0)
		}
		base /= float64(len(rule.requires))
		return &Combo{
			Name:       rule.name,
			Triggers:   distinct,
			Confidence: capConfidence(base + rule.boost),
			EventCount: len(c.events),
		}
	}
	return nil
}

// Event converts a detected combo into a synthetic trigger event.
func (co *Combo) Event(at time.Time) Event {
	triggers := make([]string, len(co.Triggers))
	for i, t := range co.Triggers {
		triggers[i] = string(t)
	}
	return Event{
		Type:      Type(ComboPrefix + co.Name),
		Timestamp: at,
		Data: map[string]any{
			"combo_type":  co.Name,
			"triggers":    triggers,
			"event_count": co.EventCount,
		},
		Confidence: co.Confidence,
	}
}

// Stats returns per-type counts in the current window for status reporting.
func (c *Correlator) Stats(now time.Time) map[Type]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pruneLocked(now)
	counts := make(map[Type]int, len(c.events))
	for _, e := range c.events {
		counts[e.typ]++
	}
	return counts
}

// Reset clears the window.
func (c *Correlator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = c.events[:0]
}

func hasAll(counts map[Type]int, required []Type) bool {
	for _, t := range required {
		if counts[t] == 0 {
			return false
		}
	}
	return true
}

func capConfidence(v float64) float64 {
	if v > 1.0 {
		return 1.0
	}
	return v
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

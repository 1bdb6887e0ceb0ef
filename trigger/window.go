package trigger

import "time"

type sample struct {
	at    time.Time
	value float64
}

// Window is a sliding-time-window of timestamped scalar samples. Reads prune
// first, so no sample older than now minus the window duration ever leaks into
// a count or aggregate. Add is amortized O(1); prune is O(k) in the number of
// samples that expired since the last prune.
//
// Window is not goroutine safe; each signal source owns its windows and
// touches them from a single goroutine.
type Window struct {
	duration time.Duration
	samples  []sample
}

// NewWindow returns an empty window covering the given duration.
func NewWindow(d time.Duration) *Window {
	return &Window{duration: d}
}

// Add appends a sample observed at the given time.
func (w *Window) Add(value float64, at time.Time) {
	w.samples = append(w.samples, sample{at: at, value: value})
}

// Prune drops samples at or before now-duration; only samples strictly
// inside the window survive.
func (w *Window) Prune(now time.Time) {
	cutoff := now.Add(-w.duration)
	i := 0
	for i < len(w.samples) && !w.samples[i].at.After(cutoff) {
		i++
	}
	if i > 0 {
		w.samples = append(w.samples[:0], w.samples[i:]...)
	}
}

// Count returns the number of live samples.
func (w *Window) Count(now time.Time) int {
	w.Prune(now)
	return len(w.samples)
}

// Values returns the live sample values, oldest first.
func (w *Window) Values(now time.Time) []float64 {
	w.Prune(now)
	out := make([]float64, len(w.samples))
	for i, s := range w.samples {
		out[i] = s.value
	}
	return out
}

// Sum returns the sum of live sample values.
func (w *Window) Sum(now time.Time) float64 {
	w.Prune(now)
	var total float64
	for _, s := range w.samples {
		total += s.value
	}
	return total
}

// Mean returns the arithmetic mean of live samples, or 0 when empty.
func (w *Window) Mean(now time.Time) float64 {
	w.Prune(now)
	if len(w.samples) == 0 {
		return 0
	}
	var total float64
	for _, s := range w.samples {
		total += s.value
	}
	return total / float64(len(w.samples))
}

// Duration returns the configured window span.
func (w *Window) Duration() time.Duration { return w.duration }

// Clear drops all samples.
func (w *Window) Clear() { w.samples = w.samples[:0] }

package trigger

import (
	"context"
	"time"
)

// Source is a signal source that detects trigger-worthy moments. The closed
// variant set is ViewerSignal (timer-driven polling) and ChatSignal
// (message-driven); new signal types plug in without touching the correlator.
// Run blocks until ctx is canceled; sources stop promptly on cancellation.
type Source interface {
	Name() string
	Run(ctx context.Context) error
}

// Emitter delivers events from a source: each event goes to the listener,
// non-combo events are recorded into the shared correlator, and any combo the
// recording completes is delivered as a synthetic follow-up event. Combo
// events are never recorded back, so combos cannot feed themselves.
type Emitter struct {
	Correlator *Correlator
	Deliver    func(Event)
}

// Emit publishes ev and re-evaluates combos.
func (e *Emitter) Emit(ev Event) {
	e.Deliver(ev)
	if ev.Type.IsCombo() || e.Correlator == nil {
		return
	}
	e.Correlator.Record(ev.Type, ev.Timestamp)
	if combo := e.Correlator.Check(ev.Timestamp); combo != nil {
		e.Deliver(combo.Event(ev.Timestamp))
	}
}

// nowFunc lets tests pin time; production code leaves it at time.Now.
type nowFunc func() time.Time

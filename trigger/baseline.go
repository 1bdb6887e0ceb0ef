package trigger

import (
	"context"
	"log/slog"
	"math"
	"time"
)

// BaselineSnapshot is the persisted summary of a channel's velocity baseline.
// It is written on shutdown and read back on startup purely as warm-start
// information: restored statistics are logged but never seed the live sample
// window, so spike detection always starts cold.
type BaselineSnapshot struct {
	Mean    float64
	Stddev  float64
	Count   int
	SavedAt time.Time
}

// SnapshotStore persists baseline summaries keyed by channel identity.
type SnapshotStore interface {
	SaveBaseline(ctx context.Context, channelID string, snap BaselineSnapshot) error
	LoadBaseline(ctx context.Context, channelID string) (BaselineSnapshot, bool, error)
}

// Baseline tracks rolling chat velocity for one channel and derives a dynamic
// spike threshold of mean + 2*stddev over the configured horizon (default five
// minutes). With fewer than two samples the threshold is 0, which callers must
// treat as "no spike possible".
type Baseline struct {
	channelID string
	window    *Window
}

// DefaultBaselineWindow is the default statistics horizon.
const DefaultBaselineWindow = 5 * time.Minute

// NewBaseline creates a baseline tracker for a channel.
func NewBaseline(channelID string, horizon time.Duration) *Baseline {
	if horizon <= 0 {
		horizon = DefaultBaselineWindow
	}
	return &Baseline{channelID: channelID, window: NewWindow(horizon)}
}

// AddSample records a velocity measurement.
func (b *Baseline) AddSample(v float64, at time.Time) {
	b.window.Prune(at)
	b.window.Add(v, at)
}

// Threshold returns mean + 2*stddev over the live window, or 0 with fewer
// than two samples. Stddev is the sample standard deviation computed over the
// same pruned values as the mean.
func (b *Baseline) Threshold(now time.Time) float64 {
	values := b.window.Values(now)
	if len(values) < 2 {
		return 0
	}
	mean, stddev := meanStddev(values)
	return mean + 2*stddev
}

// IsSpike reports whether v strictly exceeds the current threshold. A value
// exactly equal to the threshold is not a spike, and with fewer than two
// samples nothing is.
func (b *Baseline) IsSpike(v float64, now time.Time) bool {
	threshold := b.Threshold(now)
	if threshold == 0 {
		return false
	}
	return v > threshold
}

// Snapshot summarizes the live window for persistence. ok is false when there
// are no samples to summarize.
func (b *Baseline) Snapshot(now time.Time) (BaselineSnapshot, bool) {
	values := b.window.Values(now)
	if len(values) == 0 {
		return BaselineSnapshot{}, false
	}
	mean, stddev := meanStddev(values)
	return BaselineSnapshot{Mean: mean, Stddev: stddev, Count: len(values), SavedAt: now}, true
}

// Persist writes the current summary to the store.
func (b *Baseline) Persist(ctx context.Context, store SnapshotStore, now time.Time) error {
	snap, ok := b.Snapshot(now)
	if !ok {
		return nil
	}
	return store.SaveBaseline(ctx, b.channelID, snap)
}

// RestoreHint loads a persisted summary, if any, and logs it. The summary is
// informational only: samples are never restored, so the next Threshold call
// still reports insufficient data until the window refills.
func (b *Baseline) RestoreHint(ctx context.Context, store SnapshotStore) {
	snap, ok, err := store.LoadBaseline(ctx, b.channelID)
	if err != nil {
		slog.Warn("baseline load failed", slog.String("channel", b.channelID), slog.Any("err", err))
		return
	}
	if !ok {
		return
	}
	slog.Info("loaded saved baseline",
		slog.String("channel", b.channelID),
		slog.Float64("mean", snap.Mean),
		slog.Float64("stddev", snap.Stddev),
		slog.Int("samples", snap.Count),
		slog.Time("saved_at", snap.SavedAt))
}

// Stats returns the live count, mean and stddev for status reporting.
func (b *Baseline) Stats(now time.Time) (count int, mean, stddev float64) {
	values := b.window.Values(now)
	if len(values) == 0 {
		return 0, 0, 0
	}
	if len(values) == 1 {
		return 1, values[0], 0
	}
	mean, stddev = meanStddev(values)
	return len(values), mean, stddev
}

// meanStddev computes the mean and sample standard deviation. len(values)
// must be >= 2.
func meanStddev(values []float64) (mean, stddev float64) {
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	stddev = math.Sqrt(sq / float64(len(values)-1))
	return mean, stddev
}

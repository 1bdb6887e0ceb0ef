package clip

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/clip-tender/backend/segment"
	"github.com/onnwee/clip-tender/backend/telemetry"
	"github.com/onnwee/clip-tender/backend/trigger"
)

// Rejection reasons reported by Process.
const (
	ReasonQuota      = "daily_quota"
	ReasonCooldown   = "cooldown"
	ReasonBusy       = "mux_in_flight"
	ReasonNoSegments = "no_segments"
	ReasonMuxFailed  = "mux_failed"
)

// Config holds the clip policy knobs.
type Config struct {
	ClipsDir               string
	Before                 time.Duration // stream time captured before the trigger
	After                  time.Duration // stream time captured after the trigger
	Cooldown               time.Duration // minimum spacing between clips
	MaxPerDay              int
	HighPriorityConfidence float64
}

// Result reports what Process did with an event.
type Result struct {
	Created bool
	Path    string
	Reason  string // rejection reason when Created is false
}

// Actuator applies clip policy to trigger events and materializes accepted
// ones via the muxer. Every event is forwarded to the sink regardless of the
// clip decision. Cooldown and the daily counter only advance after a clip
// file actually exists, so a failed mux costs nothing.
type Actuator struct {
	streamer string
	cfg      Config
	buffer   *segment.Buffer
	muxer    Muxer
	sink     trigger.Sink // may be nil
	logger   *slog.Logger

	// OnClip, when set, is called after each successful clip.
	OnClip func(ctx context.Context, path string, ev trigger.Event)

	now func() time.Time

	mu         sync.Mutex
	inFlight   bool
	lastClip   time.Time
	clipsToday int
	clipDate   string // YYYY-MM-DD of the daily counter
	seq        int
}

// NewActuator creates a clip actuator for one streamer.
func NewActuator(streamer string, cfg Config, buf *segment.Buffer, muxer Muxer, sink trigger.Sink) *Actuator {
	return &Actuator{
		streamer: streamer,
		cfg:      cfg,
		buffer:   buf,
		muxer:    muxer,
		sink:     sink,
		logger:   slog.Default().With(slog.String("component", "clip"), slog.String("streamer", streamer)),
		now:      time.Now,
	}
}

// Process forwards ev to the sink, then decides whether it becomes a clip.
// Event logging and counting live in the sink implementations, so the
// actuator only reports its own decisions.
func (a *Actuator) Process(ctx context.Context, ev trigger.Event) Result {
	if a.sink != nil {
		a.sink.OnEvent(a.streamer, ev)
	}

	now := a.now()
	segments, outPath, res := a.admit(ev, now)
	if res != nil {
		telemetry.CountRejection(res.Reason)
		return *res
	}

	paths := make([]string, len(segments))
	for i, s := range segments {
		paths[i] = s.Path
	}

	spanCtx, span := telemetry.StartSpan(ctx, "clip", "clip.create",
		attribute.String("streamer", a.streamer),
		attribute.String("trigger_type", string(ev.Type)),
		attribute.Int("segments", len(paths)))
	defer span.End()

	clipDur := a.cfg.Before + a.cfg.After
	timeout := 2 * clipDur
	if timeout < time.Minute {
		timeout = time.Minute
	}
	muxCtx, cancel := context.WithTimeout(spanCtx, timeout)
	defer cancel()

	var muxErr error
	d := telemetry.TimeFunc(telemetry.MuxDuration, func() {
		muxErr = a.muxer.Mux(muxCtx, paths, outPath)
	})

	a.mu.Lock()
	a.inFlight = false
	if muxErr == nil {
		a.lastClip = now
		a.clipsToday++
		a.seq++
	}
	clipsToday := a.clipsToday
	a.mu.Unlock()

	if muxErr != nil {
		a.logger.Error("clip mux failed", slog.Any("err", muxErr))
		telemetry.RecordError(span, muxErr)
		if telemetry.MuxFailures != nil {
			telemetry.MuxFailures.Inc()
		}
		telemetry.CountRejection(ReasonMuxFailed)
		return Result{Reason: ReasonMuxFailed}
	}
	telemetry.SetSpanSuccess(span)

	a.logger.Info("clip created",
		slog.String("path", outPath),
		slog.Int("segments", len(paths)),
		slog.Duration("mux_duration", d),
		slog.Int("clips_today", clipsToday))
	if telemetry.ClipsCreated != nil {
		telemetry.ClipsCreated.Inc()
	}
	if a.OnClip != nil {
		a.OnClip(ctx, outPath, ev)
	}
	return Result{Created: true, Path: outPath}
}

// admit runs the policy checks under the lock and reserves the mux slot. It
// returns the segments and output path on acceptance, or a rejection result.
func (a *Actuator) admit(ev trigger.Event, now time.Time) ([]segment.Ref, string, *Result) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if day := now.Format("2006-01-02"); day != a.clipDate {
		if a.clipDate != "" {
			a.logger.Info("new day, resetting clip counter")
		}
		a.clipDate = day
		a.clipsToday = 0
	}

	if a.cfg.MaxPerDay > 0 && a.clipsToday >= a.cfg.MaxPerDay {
		a.logger.Info("daily clip limit reached", slog.Int("limit", a.cfg.MaxPerDay))
		return nil, "", &Result{Reason: ReasonQuota}
	}

	highPriority := a.isHighPriority(ev)
	if !a.lastClip.IsZero() && !highPriority {
		if elapsed := now.Sub(a.lastClip); elapsed < a.cfg.Cooldown {
			a.logger.Info("clip cooldown active",
				slog.Duration("remaining", a.cfg.Cooldown-elapsed))
			return nil, "", &Result{Reason: ReasonCooldown}
		}
	}
	if highPriority && !a.lastClip.IsZero() && now.Sub(a.lastClip) < a.cfg.Cooldown {
		a.logger.Info("high priority trigger, bypassing cooldown")
	}

	if a.inFlight {
		return nil, "", &Result{Reason: ReasonBusy}
	}

	segments := a.buffer.RecentCovering(a.cfg.Before + a.cfg.After)
	if len(segments) == 0 {
		a.logger.Warn("no segments available for clip")
		return nil, "", &Result{Reason: ReasonNoSegments}
	}

	name := fmt.Sprintf("%s_%s_%s_%03d.mp4",
		a.streamer, ev.Type, now.Format("20060102_150405"), a.seq+1)
	dir := filepath.Join(a.cfg.ClipsDir, a.streamer)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		a.logger.Error("create clips dir failed", slog.Any("err", err))
		return nil, "", &Result{Reason: ReasonMuxFailed}
	}

	a.inFlight = true
	return segments, filepath.Join(dir, name), nil
}

// isHighPriority reports whether ev may bypass the cooldown: confidence at or
// above the configured bar, any combo, or a viewer spike of 3x or more.
func (a *Actuator) isHighPriority(ev trigger.Event) bool {
	if ev.Confidence >= a.cfg.HighPriorityConfidence {
		return true
	}
	if ev.Type.IsCombo() {
		return true
	}
	if ev.Type == trigger.TypeViewerSpike && ev.Ratio() >= 3.0 {
		return true
	}
	return false
}

// Stats returns the daily counter and last clip time for status reporting.
func (a *Actuator) Stats() (clipsToday int, lastClip time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.clipsToday, a.lastClip
}

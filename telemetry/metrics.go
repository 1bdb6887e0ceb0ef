package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	TriggersFired    *prometheus.CounterVec // by trigger type
	CombosDetected   *prometheus.CounterVec // by combo name
	ClipsCreated     prometheus.Counter
	ClipsRejected    *prometheus.CounterVec // by rejection reason
	MuxFailures      prometheus.Counter
	UploadsSucceeded prometheus.Counter
	UploadsFailed    prometheus.Counter
	RecorderRestarts prometheus.Counter

	// Histograms (seconds)
	MuxDuration    prometheus.Observer
	UploadDuration prometheus.Observer

	// Gauges
	LiveStreamers    prometheus.Gauge
	SegmentsBuffered *prometheus.GaugeVec // by streamer
	ChatVelocity     *prometheus.GaugeVec // msg/s by streamer
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		TriggersFired = promauto.NewCounterVec(prometheus.CounterOpts{Name: "clip_triggers_fired_total", Help: "Trigger events emitted, by trigger type"}, []string{"type"})
		CombosDetected = promauto.NewCounterVec(prometheus.CounterOpts{Name: "clip_combos_detected_total", Help: "Combo events synthesized, by combo name"}, []string{"combo"})
		ClipsCreated = promauto.NewCounter(prometheus.CounterOpts{Name: "clip_clips_created_total", Help: "Clips successfully materialized"})
		ClipsRejected = promauto.NewCounterVec(prometheus.CounterOpts{Name: "clip_clips_rejected_total", Help: "Trigger events that did not produce a clip, by reason"}, []string{"reason"})
		MuxFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "clip_mux_failures_total", Help: "Muxer invocations that failed"})
		UploadsSucceeded = promauto.NewCounter(prometheus.CounterOpts{Name: "clip_uploads_succeeded_total", Help: "Clip uploads that succeeded"})
		UploadsFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "clip_uploads_failed_total", Help: "Clip uploads that failed"})
		RecorderRestarts = promauto.NewCounter(prometheus.CounterOpts{Name: "clip_recorder_restarts_total", Help: "Segment recorder restarts while live"})
		MuxDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "clip_mux_duration_seconds", Help: "Clip mux duration seconds", Buckets: prometheus.DefBuckets})
		UploadDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "clip_upload_duration_seconds", Help: "Clip upload duration seconds", Buckets: prometheus.DefBuckets})
		LiveStreamers = promauto.NewGauge(prometheus.GaugeOpts{Name: "clip_live_streamers", Help: "Number of watched streamers currently live"})
		SegmentsBuffered = promauto.NewGaugeVec(prometheus.GaugeOpts{Name: "clip_segments_buffered", Help: "Segments currently in the rolling buffer"}, []string{"streamer"})
		ChatVelocity = promauto.NewGaugeVec(prometheus.GaugeOpts{Name: "clip_chat_velocity", Help: "Current chat velocity in messages per second"}, []string{"streamer"})
	})
}

// CountTrigger increments the trigger counter for a type, if metrics are up.
func CountTrigger(typ string) {
	if TriggersFired != nil {
		TriggersFired.WithLabelValues(typ).Inc()
	}
}

// CountRejection increments the clip rejection counter for a reason.
func CountRejection(reason string) {
	if ClipsRejected != nil {
		ClipsRejected.WithLabelValues(reason).Inc()
	}
}

// TimeFunc measures the duration of fn and records it in obs if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------

type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns the correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with the corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}

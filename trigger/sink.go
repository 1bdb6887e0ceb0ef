package trigger

import (
	"log/slog"

	"github.com/onnwee/clip-tender/backend/telemetry"
)

// LogSink writes one structured line per event.
type LogSink struct {
	Logger *slog.Logger // nil means slog.Default
}

func (s *LogSink) OnEvent(streamer string, ev Event) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("trigger fired",
		slog.String("streamer", streamer),
		slog.String("type", string(ev.Type)),
		slog.Float64("confidence", ev.Confidence),
		slog.Any("data", ev.Data))
}

// MetricsSink counts events in prometheus by trigger type; combos are also
// counted under their combo name.
type MetricsSink struct{}

func (MetricsSink) OnEvent(streamer string, ev Event) {
	telemetry.CountTrigger(string(ev.Type))
	if ev.Type.IsCombo() && telemetry.CombosDetected != nil {
		telemetry.CombosDetected.WithLabelValues(string(ev.Type)).Inc()
	}
}

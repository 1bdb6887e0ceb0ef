package trigger

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"

	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/onnwee/clip-tender/backend/telemetry"
)

func TestLogSinkWritesEvent(t *testing.T) {
	var buf bytes.Buffer
	sink := &LogSink{Logger: slog.New(slog.NewTextHandler(&buf, nil))}

	sink.OnEvent("teststreamer", Event{
		Type:       TypeChatVelocity,
		Timestamp:  time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC),
		Confidence: 0.8,
		Data:       map[string]any{"message_count": 15},
	})

	out := buf.String()
	for _, want := range []string{"trigger fired", "teststreamer", "chat_velocity", "0.8"} {
		if !strings.Contains(out, want) {
			t.Errorf("log line %q missing %q", out, want)
		}
	}
}

func TestMetricsSinkCountsByType(t *testing.T) {
	telemetry.Init()
	triggersBefore := promtestutil.ToFloat64(telemetry.TriggersFired.WithLabelValues("emote_flood"))
	combosBefore := promtestutil.ToFloat64(telemetry.CombosDetected.WithLabelValues("combo_hype_moment"))

	var sink MetricsSink
	sink.OnEvent("teststreamer", Event{Type: TypeEmoteFlood, Confidence: 0.3})
	sink.OnEvent("teststreamer", Event{Type: Type("combo_hype_moment"), Confidence: 1.0})

	if got := promtestutil.ToFloat64(telemetry.TriggersFired.WithLabelValues("emote_flood")); got != triggersBefore+1 {
		t.Errorf("emote_flood triggers = %v, want %v", got, triggersBefore+1)
	}
	// A combo counts both as a fired trigger and under its combo name.
	if got := promtestutil.ToFloat64(telemetry.TriggersFired.WithLabelValues("combo_hype_moment")); got < 1 {
		t.Errorf("combo trigger count = %v, want at least 1", got)
	}
	if got := promtestutil.ToFloat64(telemetry.CombosDetected.WithLabelValues("combo_hype_moment")); got != combosBefore+1 {
		t.Errorf("combos detected = %v, want %v", got, combosBefore+1)
	}
}

func TestFanOutDeliversInOrder(t *testing.T) {
	var order []string
	first := SinkFunc(func(streamer string, ev Event) { order = append(order, "first:"+streamer) })
	second := SinkFunc(func(streamer string, ev Event) { order = append(order, "second:"+streamer) })

	FanOut(first, second).OnEvent("teststreamer", Event{Type: TypeKeyword})

	if len(order) != 2 || order[0] != "first:teststreamer" || order[1] != "second:teststreamer" {
		t.Errorf("fan-out order = %v", order)
	}
}

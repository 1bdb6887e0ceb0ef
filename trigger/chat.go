package trigger

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/onnwee/clip-tender/backend/chat"
	"github.com/onnwee/clip-tender/backend/telemetry"
)

// ChatConfig tunes the chat signal.
type ChatConfig struct {
	VelocityThreshold float64       // static msg/s threshold
	Window            time.Duration // velocity and flood window
	Keywords          []string      // clip-request keywords
	KeywordThreshold  int           // keyword repeats before firing
	EmoteThreshold    int           // single-emote repeats before a flood
	DynamicThreshold  bool          // use the rolling baseline instead of the static threshold
	BaselineHorizon   time.Duration // baseline statistics horizon
}

// ChatStats is a snapshot of the chat signal for status reporting.
type ChatStats struct {
	Velocity      float64        `json:"velocity"`
	MessageCount  int            `json:"message_count"`
	KeywordCounts map[string]int `json:"keyword_counts"`
}

// ChatSignal consumes chat messages from a transport and emits chat_velocity,
// keyword and emote_flood events. Velocity is measured against either the
// static threshold or a dynamic baseline of mean + 2*stddev; keyword counters
// reset after firing and whenever a fresh message window starts.
type ChatSignal struct {
	streamer  string
	transport chat.Transport
	cfg       ChatConfig
	emitter   *Emitter
	baseline  *Baseline
	store     SnapshotStore
	logger    *slog.Logger

	// mu guards the window, counters and history: Run mutates them per
	// message while Stats reads them from the HTTP status handler.
	mu            sync.Mutex
	window        *Window
	keywordCounts map[string]int
	recent        []TimedMessage

	now nowFunc
}

// NewChatSignal creates the chat source for a streamer. channelID keys the
// persisted baseline; store may be nil to skip persistence.
func NewChatSignal(streamer, channelID string, transport chat.Transport, cfg ChatConfig, emitter *Emitter, store SnapshotStore) *ChatSignal {
	var baseline *Baseline
	if cfg.DynamicThreshold {
		baseline = NewBaseline(channelID, cfg.BaselineHorizon)
	}
	return &ChatSignal{
		streamer:      streamer,
		transport:     transport,
		cfg:           cfg,
		emitter:       emitter,
		baseline:      baseline,
		store:         store,
		logger:        slog.Default().With(slog.String("component", "chat_signal"), slog.String("streamer", streamer)),
		window:        NewWindow(cfg.Window),
		keywordCounts: make(map[string]int),
		now:           time.Now,
	}
}

func (c *ChatSignal) Name() string { return "chat" }

// Stats returns a snapshot of the live window for status reporting.
func (c *ChatSignal) Stats() ChatStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	counts := make(map[string]int, len(c.keywordCounts))
	for k, v := range c.keywordCounts {
		counts[k] = v
	}
	n := c.window.Count(now)
	return ChatStats{
		Velocity:      float64(n) / c.cfg.Window.Seconds(),
		MessageCount:  n,
		KeywordCounts: counts,
	}
}

// Run consumes the transport until ctx is canceled or the message channel
// closes. Any accumulated baseline is persisted on the way out.
func (c *ChatSignal) Run(ctx context.Context) error {
	c.logger.Info("chat signal started",
		slog.Float64("velocity_threshold", c.cfg.VelocityThreshold),
		slog.Bool("dynamic", c.cfg.DynamicThreshold))

	if c.baseline != nil && c.store != nil {
		c.baseline.RestoreHint(ctx, c.store)
	}
	defer c.persistBaseline()

	msgs := c.transport.Messages()
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("chat signal stopped")
			return nil
		case m, ok := <-msgs:
			if !ok {
				c.logger.Info("chat transport closed")
				return nil
			}
			at := m.ReceivedAt
			if at.IsZero() {
				at = c.now()
			}
			c.processMessage(m.Content, at)
		}
	}
}

func (c *ChatSignal) persistBaseline() {
	if c.baseline == nil || c.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.baseline.Persist(ctx, c.store, c.now()); err != nil {
		c.logger.Warn("baseline save failed", slog.Any("err", err))
	}
}

// processMessage runs the full per-message trigger pipeline. Called from the
// Run goroutine only.
func (c *ChatSignal) processMessage(content string, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.window.Add(1, now)
	count := c.window.Count(now)
	velocity := float64(count) / c.cfg.Window.Seconds()

	if telemetry.ChatVelocity != nil {
		telemetry.ChatVelocity.WithLabelValues(c.streamer).Set(velocity)
	}

	c.checkVelocity(velocity, count, now)

	excitement := ScoreMessage(content)
	c.checkKeywords(content, excitement, now)
	c.checkEmoteFlood(content, excitement, now)

	// First message of a fresh window starts keyword counting over.
	if count == 1 {
		c.keywordCounts = make(map[string]int)
	}
}

func (c *ChatSignal) checkVelocity(velocity float64, count int, now time.Time) {
	threshold := c.cfg.VelocityThreshold
	var spike bool
	if c.baseline != nil {
		c.baseline.AddSample(velocity, now)
		spike = c.baseline.IsSpike(velocity, now)
		if t := c.baseline.Threshold(now); t > 0 {
			threshold = t
		}
	} else {
		spike = velocity >= threshold
	}
	if !spike {
		return
	}
	denom := math.Max(threshold, c.cfg.VelocityThreshold)
	c.emitter.Emit(Event{
		Type:      TypeChatVelocity,
		Timestamp: now,
		Data: map[string]any{
			"velocity":       velocity,
			"threshold":      threshold,
			"message_count":  count,
			"window_seconds": c.cfg.Window.Seconds(),
			"dynamic":        c.baseline != nil,
		},
		Confidence: minf(velocity/denom, 1.0),
	})
}

func (c *ChatSignal) checkKeywords(content string, excitement ExcitementResult, now time.Time) {
	upper := strings.ToUpper(content)
	for _, keyword := range c.cfg.Keywords {
		if !strings.Contains(upper, strings.ToUpper(keyword)) {
			continue
		}
		c.keywordCounts[keyword]++
		if c.keywordCounts[keyword] < c.cfg.KeywordThreshold {
			continue
		}
		c.emitter.Emit(Event{
			Type:      TypeKeyword,
			Timestamp: now,
			Data: map[string]any{
				"keyword":          keyword,
				"count":            c.keywordCounts[keyword],
				"threshold":        c.cfg.KeywordThreshold,
				"excitement_score": excitement.Score,
			},
			Confidence: minf(1.0, 0.5+excitement.Score),
		})
		c.keywordCounts[keyword] = 0
	}
}

func (c *ChatSignal) checkEmoteFlood(content string, excitement ExcitementResult, now time.Time) {
	c.recent = append(c.recent, TimedMessage{Text: content, ReceivedAt: now})
	cutoff := now.Add(-c.cfg.Window)
	i := 0
	for i < len(c.recent) && c.recent[i].ReceivedAt.Before(cutoff) {
		i++
	}
	if i > 0 {
		c.recent = append(c.recent[:0], c.recent[i:]...)
	}

	if !DetectEmoteFlood(c.recent, c.cfg.Window, c.cfg.EmoteThreshold, now) {
		return
	}
	c.emitter.Emit(Event{
		Type:      TypeEmoteFlood,
		Timestamp: now,
		Data: map[string]any{
			"emotes":    excitement.EmotesFound,
			"threshold": c.cfg.EmoteThreshold,
		},
		Confidence: excitement.Score,
	})
	// Drop the history so one sustained wall fires once, not per message.
	c.recent = c.recent[:0]
}

package trigger

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/onnwee/clip-tender/backend/kickapi"
)

// ViewerConfig tunes the viewer-count signal.
type ViewerConfig struct {
	SpikeThreshold     float64       // viewers > baseline * this = spike
	PollInterval       time.Duration // between channel polls
	BaselineWindow     time.Duration // horizon of the rolling baseline
	CooldownAfterSpike time.Duration // between two emitted spikes
}

// LiveState is a snapshot of what the viewer signal knows about the channel.
type LiveState struct {
	IsLive      bool
	ChatroomID  int64
	ViewerCount int
	Title       string
	StreamStart time.Time
}

// ViewerSignal polls the channel API, maintains a rolling viewer-count
// baseline while live, and emits viewer_spike events when the current count
// exceeds baseline by the configured ratio. Going offline clears the window;
// going live starts it fresh.
type ViewerSignal struct {
	streamer string
	provider kickapi.StatusProvider
	cfg      ViewerConfig
	emitter  *Emitter
	logger   *slog.Logger

	// onLiveChange, when set, is called from the polling goroutine on every
	// OFFLINE<->LIVE transition.
	onLiveChange func(LiveState)

	mu    sync.Mutex
	state LiveState

	// polling-goroutine state, no lock needed
	history   *viewerHistory
	lastSpike time.Time
	now       nowFunc
}

// NewViewerSignal creates the viewer source for a streamer.
func NewViewerSignal(streamer string, provider kickapi.StatusProvider, cfg ViewerConfig, emitter *Emitter, onLiveChange func(LiveState)) *ViewerSignal {
	capacity := 1
	if cfg.PollInterval > 0 {
		if n := int(cfg.BaselineWindow / cfg.PollInterval); n > 1 {
			capacity = n
		}
	}
	return &ViewerSignal{
		streamer:     streamer,
		provider:     provider,
		cfg:          cfg,
		emitter:      emitter,
		onLiveChange: onLiveChange,
		logger:       slog.Default().With(slog.String("component", "viewer_signal"), slog.String("streamer", streamer)),
		history:      newViewerHistory(capacity),
		now:          time.Now,
	}
}

func (v *ViewerSignal) Name() string { return "viewer" }

// State returns the current live snapshot.
func (v *ViewerSignal) State() LiveState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Run polls until ctx is canceled.
func (v *ViewerSignal) Run(ctx context.Context) error {
	v.logger.Info("viewer signal started",
		slog.Float64("spike_threshold", v.cfg.SpikeThreshold),
		slog.Duration("poll_interval", v.cfg.PollInterval))
	ticker := time.NewTicker(v.cfg.PollInterval)
	defer ticker.Stop()
	for {
		v.poll(ctx)
		select {
		case <-ctx.Done():
			v.logger.Info("viewer signal stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// poll performs one liveness/viewer check. The network call happens before
// any shared state is touched.
func (v *ViewerSignal) poll(ctx context.Context) {
	reqCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	st, err := v.provider.GetChannel(reqCtx, v.streamer)
	cancel()
	if err != nil {
		if ctx.Err() == nil {
			v.logger.Debug("channel poll failed", slog.Any("err", err))
		}
		return
	}
	v.observe(st, v.now())
}

// observe folds one channel status into the signal. Split from poll so tests
// can drive the state machine without a ticker.
func (v *ViewerSignal) observe(st kickapi.ChannelStatus, now time.Time) {
	v.mu.Lock()
	wasLive := v.state.IsLive
	if v.state.ChatroomID == 0 && st.ChatroomID != 0 {
		v.state.ChatroomID = st.ChatroomID
		v.logger.Info("resolved chatroom", slog.Int64("chatroom_id", st.ChatroomID))
	}

	if !st.IsLive {
		if wasLive {
			v.logger.Info("stream went offline")
			v.state.IsLive = false
			v.state.ViewerCount = 0
			v.state.StreamStart = time.Time{}
			v.history.clear()
			cb := v.onLiveChange
			snapshot := v.state
			v.mu.Unlock()
			if cb != nil {
				cb(snapshot)
			}
			return
		}
		v.mu.Unlock()
		return
	}

	if !wasLive {
		start := st.StartedAt
		if start.IsZero() {
			start = now
		}
		v.logger.Info("stream is live", slog.Time("started_at", start), slog.String("title", st.Title))
		v.state.IsLive = true
		v.state.StreamStart = start
		v.state.Title = st.Title
		v.history.clear()
	}
	v.state.ViewerCount = st.ViewerCount
	cb := v.onLiveChange
	snapshot := v.state
	justWentLive := !wasLive
	v.mu.Unlock()
	if justWentLive && cb != nil {
		cb(snapshot)
	}

	v.sample(float64(st.ViewerCount), now)
}

// sample advances the baseline with one viewer-count reading and emits a
// spike when warranted. The baseline is the mean of prior samples only, so a
// sudden jump is compared against the pre-jump level.
func (v *ViewerSignal) sample(viewers float64, now time.Time) {
	baseline := v.history.mean()
	v.history.add(viewers)

	if baseline <= 0 {
		v.logger.Debug("building baseline", slog.Int("viewers", int(viewers)))
		return
	}
	ratio := viewers / baseline
	v.logger.Debug("viewer poll",
		slog.Int("viewers", int(viewers)),
		slog.Int("baseline", int(baseline)),
		slog.Float64("ratio", ratio))

	if ratio < v.cfg.SpikeThreshold {
		return
	}
	if !v.lastSpike.IsZero() && now.Sub(v.lastSpike) < v.cfg.CooldownAfterSpike {
		return
	}
	v.lastSpike = now
	v.emitter.Emit(Event{
		Type:      TypeViewerSpike,
		Timestamp: now,
		Data: map[string]any{
			"viewer_count": int(viewers),
			"baseline":     int(baseline),
			"ratio":        ratio,
		},
		Confidence: minf(ratio/v.cfg.SpikeThreshold, 1.0),
	})
	// Re-anchor the baseline at the new level so the same elevated count
	// doesn't re-trigger on every subsequent poll.
	v.history.refill(viewers)
}

// viewerHistory is a fixed-capacity ring of viewer counts; capacity is the
// number of polls that fit in the baseline window.
type viewerHistory struct {
	values []float64
	cap    int
}

func newViewerHistory(capacity int) *viewerHistory {
	return &viewerHistory{cap: capacity}
}

func (h *viewerHistory) add(v float64) {
	h.values = append(h.values, v)
	if len(h.values) > h.cap {
		h.values = h.values[1:]
	}
}

func (h *viewerHistory) mean() float64 {
	if len(h.values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range h.values {
		sum += v
	}
	return sum / float64(len(h.values))
}

func (h *viewerHistory) refill(v float64) {
	for i := range h.values {
		h.values[i] = v
	}
}

func (h *viewerHistory) clear() { h.values = h.values[:0] }

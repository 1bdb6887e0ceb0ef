// Package clipper coordinates the per-streamer pipeline: viewer polling, chat
// streaming, segment recording and clip creation, plus the multi-streamer
// supervisor.
package clipper

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/onnwee/clip-tender/backend/chat"
	"github.com/onnwee/clip-tender/backend/clip"
	"github.com/onnwee/clip-tender/backend/config"
	"github.com/onnwee/clip-tender/backend/db"
	"github.com/onnwee/clip-tender/backend/kickapi"
	"github.com/onnwee/clip-tender/backend/segment"
	"github.com/onnwee/clip-tender/backend/telemetry"
	"github.com/onnwee/clip-tender/backend/trigger"
)

// Orchestrator states.
const (
	StateAwaitingLive = "awaiting_live"
	StateRecording    = "recording"
	StateStopped      = "stopped"
)

// Status is a point-in-time snapshot of one streamer's pipeline.
type Status struct {
	Streamer         string            `json:"streamer"`
	State            string            `json:"state"`
	IsLive           bool              `json:"is_live"`
	ViewerCount      int               `json:"viewer_count"`
	Title            string            `json:"title,omitempty"`
	SegmentsBuffered int               `json:"segments_buffered"`
	ClipsToday       int               `json:"clips_today"`
	LastClipAt       *time.Time        `json:"last_clip_at,omitempty"`
	Chat             trigger.ChatStats `json:"chat"`
}

// Orchestrator runs the full pipeline for one streamer: it waits for the
// stream to go live, records segments, feeds trigger events into the clip
// actuator, and tears down again when the stream ends.
type Orchestrator struct {
	streamer string
	cfg      *config.Config
	dbx      *sql.DB // nil disables persistence
	provider kickapi.StatusProvider
	logger   *slog.Logger

	// test seams
	newRecorder   func(buf *segment.Buffer) segment.Recorder
	newTransport  func(chatroomID int64) (chat.Transport, error)
	newChatSignal func(transport chat.Transport, chatroomID int64) *trigger.ChatSignal

	buffer   *segment.Buffer
	actuator *clip.Actuator
	viewer   *trigger.ViewerSignal
	chatSig  *trigger.ChatSignal

	events chan trigger.Event
	liveCh chan trigger.LiveState

	mu        sync.Mutex
	state     string
	sessionID int64
}

// NewOrchestrator wires the pipeline for one streamer. sink receives every
// trigger event; pass nil to skip.
func NewOrchestrator(streamer string, cfg *config.Config, dbx *sql.DB, provider kickapi.StatusProvider, sink trigger.Sink) *Orchestrator {
	o := &Orchestrator{
		streamer: streamer,
		cfg:      cfg,
		dbx:      dbx,
		provider: provider,
		logger:   slog.Default().With(slog.String("component", "clipper"), slog.String("streamer", streamer)),
		events:   make(chan trigger.Event, 64),
		liveCh:   make(chan trigger.LiveState, 8),
		state:    StateAwaitingLive,
	}

	o.buffer = segment.NewBuffer(streamer, cfg.SegmentsToKeep, cfg.SegmentDuration)
	o.actuator = clip.NewActuator(streamer, clip.Config{
		ClipsDir:               cfg.ClipsDir,
		Before:                 cfg.ClipBefore,
		After:                  cfg.ClipAfter,
		Cooldown:               cfg.ClipCooldown,
		MaxPerDay:              cfg.MaxClipsPerDay,
		HighPriorityConfidence: cfg.HighPriorityConfidence,
	}, o.buffer, clip.FFmpegMuxer{}, sink)
	o.actuator.OnClip = o.onClip

	correlator := trigger.NewCorrelator(cfg.ComboWindow)
	emitter := &trigger.Emitter{Correlator: correlator, Deliver: o.deliver}

	o.viewer = trigger.NewViewerSignal(streamer, provider, trigger.ViewerConfig{
		SpikeThreshold:     cfg.SpikeThreshold,
		PollInterval:       cfg.PollInterval,
		BaselineWindow:     cfg.BaselineWindow,
		CooldownAfterSpike: cfg.CooldownAfterSpike,
	}, emitter, o.onLiveChange)

	chatCfg := trigger.ChatConfig{
		VelocityThreshold: cfg.ChatVelocityThreshold,
		Window:            cfg.ChatWindow,
		Keywords:          cfg.ClipKeywords,
		KeywordThreshold:  cfg.KeywordThreshold,
		EmoteThreshold:    cfg.EmoteSpamThreshold,
		DynamicThreshold:  cfg.DynamicThreshold,
		BaselineHorizon:   time.Duration(cfg.BaselineWindowMinutes) * time.Minute,
	}
	var store trigger.SnapshotStore
	if dbx != nil {
		store = &db.BaselineStore{DB: dbx}
	}
	o.newTransport = func(chatroomID int64) (chat.Transport, error) {
		if cfg.ChatTransport == "twitch" {
			if err := cfg.ValidateTwitchChatReady(); err != nil {
				return nil, err
			}
			return chat.NewTwitchTransport(cfg.TwitchBotUsername, cfg.TwitchOAuthToken, streamer), nil
		}
		return chat.NewPusherTransport(cfg.PusherURL, chatroomID), nil
	}
	o.newChatSignal = func(transport chat.Transport, chatroomID int64) *trigger.ChatSignal {
		return trigger.NewChatSignal(streamer, fmt.Sprintf("%d", chatroomID), transport, chatCfg, emitter, store)
	}

	o.newRecorder = func(buf *segment.Buffer) segment.Recorder {
		dir := filepath.Join(cfg.SegmentsDir, streamer)
		return segment.NewFFmpegRecorder(streamer, dir, cfg.SegmentDuration, buf)
	}
	return o
}

// deliver hands an event from a signal source to the consumer goroutine. The
// channel is buffered; a full channel drops the event rather than stalling a
// source.
func (o *Orchestrator) deliver(ev trigger.Event) {
	select {
	case o.events <- ev:
	default:
		o.logger.Warn("event channel full, dropping trigger", slog.String("type", string(ev.Type)))
	}
}

// Run drives the orchestrator until ctx is canceled.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("clipper started")
	defer o.setState(StateStopped)

	go o.consumeEvents(ctx)
	go func() {
		if err := o.viewer.Run(ctx); err != nil {
			o.logger.Error("viewer signal exited", slog.Any("err", err))
		}
	}()
	go o.startChatWhenReady(ctx)

	o.superviseRecorder(ctx)

	o.endSession(context.Background())
	o.logger.Info("clipper stopped")
	return nil
}

// Status returns the live snapshot for this streamer.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	state := o.state
	chatSig := o.chatSig
	o.mu.Unlock()

	live := o.viewer.State()
	clipsToday, lastClip := o.actuator.Stats()
	st := Status{
		Streamer:         o.streamer,
		State:            state,
		IsLive:           live.IsLive,
		ViewerCount:      live.ViewerCount,
		Title:            live.Title,
		SegmentsBuffered: o.buffer.Len(),
		ClipsToday:       clipsToday,
	}
	if !lastClip.IsZero() {
		t := lastClip
		st.LastClipAt = &t
	}
	if chatSig != nil {
		st.Chat = chatSig.Stats()
	}
	return st
}

func (o *Orchestrator) setState(s string) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

// onLiveChange runs on OFFLINE<->LIVE transitions, from the viewer goroutine.
func (o *Orchestrator) onLiveChange(ls trigger.LiveState) {
	select {
	case o.liveCh <- ls:
	default:
	}
	if telemetry.LiveStreamers != nil {
		if ls.IsLive {
			telemetry.LiveStreamers.Inc()
		} else {
			telemetry.LiveStreamers.Dec()
		}
	}
}

// consumeEvents feeds trigger events into the clip actuator.
func (o *Orchestrator) consumeEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-o.events:
			o.actuator.Process(ctx, ev)
		}
	}
}

// startChatWhenReady waits for the viewer signal to resolve the chatroom id,
// then starts the chat transport and signal.
func (o *Orchestrator) startChatWhenReady(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	var chatroomID int64
	for chatroomID == 0 {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			chatroomID = o.viewer.State().ChatroomID
		}
	}

	transport, err := o.newTransport(chatroomID)
	if err != nil {
		o.logger.Error("chat transport unavailable, chat monitoring disabled", slog.Any("err", err))
		return
	}
	sig := o.newChatSignal(transport, chatroomID)
	o.mu.Lock()
	o.chatSig = sig
	o.mu.Unlock()

	o.logger.Info("starting chat monitor", slog.Int64("chatroom_id", chatroomID))
	go func() {
		if err := transport.Run(ctx); err != nil && ctx.Err() == nil {
			o.logger.Error("chat transport exited", slog.Any("err", err))
		}
	}()
	if err := o.chatSig.Run(ctx); err != nil && ctx.Err() == nil {
		o.logger.Error("chat signal exited", slog.Any("err", err))
	}
}

// superviseRecorder keeps a recorder running while the stream is live and
// tears it down when it ends. Blocks until ctx is canceled.
func (o *Orchestrator) superviseRecorder(ctx context.Context) {
	var (
		recCancel context.CancelFunc
		recDone   chan struct{}
		live      bool
	)
	stopRecorder := func() {
		if recCancel != nil {
			recCancel()
			<-recDone
			recCancel = nil
		}
	}
	startRecorder := func() {
		recCtx, cancel := context.WithCancel(ctx)
		recCancel = cancel
		recDone = make(chan struct{})
		rec := o.newRecorder(o.buffer)
		go func() {
			defer close(recDone)
			if err := rec.Start(recCtx); err != nil && recCtx.Err() == nil {
				o.logger.Error("recorder exited", slog.Any("err", err))
			}
		}()
		o.setState(StateRecording)
	}

	check := time.NewTicker(5 * time.Second)
	defer check.Stop()

	for {
		select {
		case <-ctx.Done():
			stopRecorder()
			return
		case ls := <-o.liveCh:
			if ls.IsLive && !live {
				live = true
				o.startSession(ctx)
				startRecorder()
			} else if !ls.IsLive && live {
				live = false
				stopRecorder()
				o.buffer.Clear()
				o.setState(StateAwaitingLive)
				o.endSession(ctx)
			}
		case <-check.C:
			if !live || recDone == nil {
				continue
			}
			select {
			case <-recDone:
				// Recorder died while the stream is still live; restart.
				o.logger.Warn("recorder died, restarting")
				if telemetry.RecorderRestarts != nil {
					telemetry.RecorderRestarts.Inc()
				}
				recCancel = nil
				startRecorder()
			default:
			}
		}
	}
}

func (o *Orchestrator) startSession(ctx context.Context) {
	if o.dbx == nil {
		return
	}
	id, err := db.StartSession(ctx, o.dbx, o.streamer)
	if err != nil {
		o.logger.Warn("session start failed", slog.Any("err", err))
		return
	}
	o.mu.Lock()
	o.sessionID = id
	o.mu.Unlock()
	o.logger.Info("session started", slog.Int64("session_id", id))
}

func (o *Orchestrator) endSession(ctx context.Context) {
	if o.dbx == nil {
		return
	}
	o.mu.Lock()
	id := o.sessionID
	o.sessionID = 0
	o.mu.Unlock()
	if id == 0 {
		return
	}
	if err := db.EndSession(ctx, o.dbx, id); err != nil {
		o.logger.Warn("session end failed", slog.Any("err", err))
		return
	}
	o.logger.Info("session ended", slog.Int64("session_id", id))
}

// onClip records a successful clip in the database.
func (o *Orchestrator) onClip(ctx context.Context, path string, ev trigger.Event) {
	if o.dbx == nil {
		return
	}
	o.mu.Lock()
	sessionID := o.sessionID
	o.mu.Unlock()

	if err := db.RegisterClip(ctx, o.dbx, sessionID, o.streamer, path, string(ev.Type), ev.Confidence); err != nil {
		o.logger.Warn("clip registration failed", slog.Any("err", err))
	}
	viewers, _ := ev.Data["viewer_count"].(int)
	baseline, _ := ev.Data["baseline"].(int)
	data := fmt.Sprintf("%v", ev.Data)
	if err := db.LogMoment(ctx, o.dbx, sessionID, string(ev.Type), ev.Confidence, viewers, baseline, ev.Ratio(), data); err != nil {
		o.logger.Warn("moment log failed", slog.Any("err", err))
	}
}

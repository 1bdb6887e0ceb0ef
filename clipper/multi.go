package clipper

import (
	"context"
	"database/sql"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/onnwee/clip-tender/backend/config"
	"github.com/onnwee/clip-tender/backend/kickapi"
	"github.com/onnwee/clip-tender/backend/trigger"
)

// MultiStreamer runs one Orchestrator per configured streamer, each in its
// own goroutine with independent triggers and recording.
type MultiStreamer struct {
	cfg      *config.Config
	dbx      *sql.DB
	provider kickapi.StatusProvider
	sink     trigger.Sink
	logger   *slog.Logger

	mu            sync.Mutex
	orchestrators map[string]*Orchestrator
}

// NewMultiStreamer creates the supervisor. sink receives every trigger event
// from every streamer; pass nil to skip.
func NewMultiStreamer(cfg *config.Config, dbx *sql.DB, provider kickapi.StatusProvider, sink trigger.Sink) *MultiStreamer {
	return &MultiStreamer{
		cfg:           cfg,
		dbx:           dbx,
		provider:      provider,
		sink:          sink,
		logger:        slog.Default().With(slog.String("component", "multi_clipper")),
		orchestrators: make(map[string]*Orchestrator),
	}
}

// Run starts a clipper per streamer with staggered starts to avoid hammering
// the channel API, then blocks until ctx is canceled and all clippers exit.
func (m *MultiStreamer) Run(ctx context.Context) error {
	m.logger.Info("starting clippers", slog.Int("streamers", len(m.cfg.Streamers)))

	var wg sync.WaitGroup
	for i, streamer := range m.cfg.Streamers {
		o := NewOrchestrator(streamer, m.cfg, m.dbx, m.provider, m.sink)
		m.mu.Lock()
		m.orchestrators[streamer] = o
		m.mu.Unlock()

		wg.Add(1)
		go func(streamer string, o *Orchestrator) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					m.logger.Error("clipper panicked",
						slog.String("streamer", streamer),
						slog.Any("panic", r),
						slog.String("stack", string(debug.Stack())))
				}
			}()
			if err := o.Run(ctx); err != nil {
				m.logger.Error("clipper exited", slog.String("streamer", streamer), slog.Any("err", err))
			}
		}(streamer, o)

		if i < len(m.cfg.Streamers)-1 {
			select {
			case <-ctx.Done():
			case <-time.After(2 * time.Second):
			}
		}
	}

	wg.Wait()
	m.logger.Info("all clippers stopped")
	return nil
}

// Status returns a snapshot per streamer, keyed by streamer name.
func (m *MultiStreamer) Status() map[string]Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]Status, len(m.orchestrators))
	for name, o := range m.orchestrators {
		out[name] = o.Status()
	}
	return out
}

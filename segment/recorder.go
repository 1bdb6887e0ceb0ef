package segment

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Recorder captures a live stream into rotating segment files and feeds
// completed segments into a Buffer.
type Recorder interface {
	// Start blocks while recording; it returns when ctx is canceled or the
	// capture pipeline dies.
	Start(ctx context.Context) error
	Alive() bool
	Stop()
}

// FFmpegRecorder resolves the stream URL with streamlink and runs ffmpeg in
// stream-copy segment mode. A scanner goroutine watches the output directory
// and pushes finished segments into the buffer; a segment is finished once a
// newer one exists.
type FFmpegRecorder struct {
	Streamer string
	Dir      string
	SegDur   time.Duration
	Buffer   *Buffer

	logger *slog.Logger

	mu    sync.Mutex
	cmd   *exec.Cmd
	alive bool
}

// NewFFmpegRecorder creates a recorder writing segments under dir.
func NewFFmpegRecorder(streamer, dir string, segDur time.Duration, buf *Buffer) *FFmpegRecorder {
	return &FFmpegRecorder{
		Streamer: streamer,
		Dir:      dir,
		SegDur:   segDur,
		Buffer:   buf,
		logger:   slog.Default().With(slog.String("component", "recorder"), slog.String("streamer", streamer)),
	}
}

// Start resolves the stream URL, launches ffmpeg and blocks until the process
// exits or ctx is canceled.
func (r *FFmpegRecorder) Start(ctx context.Context) error {
	if err := os.MkdirAll(r.Dir, 0o755); err != nil {
		return fmt.Errorf("create segments dir: %w", err)
	}

	streamURL, err := r.resolveStreamURL(ctx)
	if err != nil {
		return err
	}

	pattern := filepath.Join(r.Dir, "chunk_%04d.ts")
	args := []string{
		"-hide_banner", "-loglevel", "warning",
		"-i", streamURL,
		"-c", "copy",
		"-f", "segment",
		"-segment_time", strconv.Itoa(int(r.SegDur.Seconds())),
		"-segment_format", "mpegts",
		"-reset_timestamps", "1",
		pattern,
	}
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)

	r.mu.Lock()
	r.cmd = cmd
	r.alive = true
	r.mu.Unlock()

	scanCtx, stopScan := context.WithCancel(ctx)
	defer stopScan()
	go r.scanLoop(scanCtx)

	r.logger.Info("recorder started", slog.Duration("segment_time", r.SegDur), slog.String("dir", r.Dir))
	err = cmd.Run()

	r.mu.Lock()
	r.alive = false
	r.mu.Unlock()

	if ctx.Err() != nil {
		r.logger.Info("recorder stopped")
		return nil
	}
	if err != nil {
		return fmt.Errorf("ffmpeg exited: %w", err)
	}
	return fmt.Errorf("ffmpeg exited unexpectedly")
}

// Alive reports whether the ffmpeg process is currently running.
func (r *FFmpegRecorder) Alive() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.alive
}

// Stop terminates the capture process if running.
func (r *FFmpegRecorder) Stop() {
	r.mu.Lock()
	cmd := r.cmd
	r.mu.Unlock()
	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
}

// resolveStreamURL asks streamlink for the raw HLS URL of the live stream.
func (r *FFmpegRecorder) resolveStreamURL(ctx context.Context) (string, error) {
	slCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	out, err := exec.CommandContext(slCtx, "streamlink", "--stream-url", "https://kick.com/"+r.Streamer, "best").Output()
	if err != nil {
		return "", fmt.Errorf("streamlink resolve: %w", err)
	}
	url := strings.TrimSpace(string(out))
	if url == "" {
		return "", fmt.Errorf("streamlink returned empty stream url")
	}
	return url, nil
}

// scanLoop polls the segment directory and pushes completed chunks. ffmpeg
// writes chunks in sequence order, so every chunk older than the newest one
// on disk is complete.
func (r *FFmpegRecorder) scanLoop(ctx context.Context) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	pushed := make(map[int]bool)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.scanOnce(pushed)
		}
	}
}

func (r *FFmpegRecorder) scanOnce(pushed map[int]bool) {
	entries, err := os.ReadDir(r.Dir)
	if err != nil {
		r.logger.Warn("segment dir read failed", slog.Any("err", err))
		return
	}
	type found struct {
		seq  int
		path string
	}
	var chunks []found
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "chunk_") || !strings.HasSuffix(name, ".ts") {
			continue
		}
		seq, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, "chunk_"), ".ts"))
		if err != nil {
			continue
		}
		chunks = append(chunks, found{seq: seq, path: filepath.Join(r.Dir, name)})
	}
	if len(chunks) < 2 {
		return
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].seq < chunks[j].seq })

	// The highest-numbered chunk is still being written.
	for _, c := range chunks[:len(chunks)-1] {
		if pushed[c.seq] {
			continue
		}
		info, err := os.Stat(c.path)
		if err != nil {
			continue
		}
		pushed[c.seq] = true
		r.Buffer.Push(Ref{Path: c.path, Seq: c.seq, CreatedAt: info.ModTime()})
		r.logger.Debug("segment buffered", slog.Int("seq", c.seq))
	}
}

// Package clip turns trigger events into clip files, applying cooldown,
// daily-quota and priority policy before invoking the muxer.
package clip

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Muxer joins segment files into a single clip file.
type Muxer interface {
	Mux(ctx context.Context, segments []string, outPath string) error
}

// FFmpegMuxer concatenates MPEG-TS segments with the concat protocol and a
// stream copy. No re-encode, so a clip materializes in well under a second.
type FFmpegMuxer struct{}

// Mux runs ffmpeg over the segment list.
func (FFmpegMuxer) Mux(ctx context.Context, segments []string, outPath string) error {
	if len(segments) == 0 {
		return fmt.Errorf("no segments to mux")
	}
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-y", "-hide_banner", "-loglevel", "warning",
		"-i", "concat:"+strings.Join(segments, "|"),
		"-c", "copy",
		"-bsf:a", "aac_adtstoasc",
		outPath,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		_ = os.Remove(outPath)
		return fmt.Errorf("ffmpeg concat: %w: %s", err, truncate(string(out), 200))
	}
	if _, err := os.Stat(outPath); err != nil {
		return fmt.Errorf("ffmpeg produced no output: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

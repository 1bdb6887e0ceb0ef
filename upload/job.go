// Package upload runs the background job that pushes finished clips to
// YouTube and records the outcome.
package upload

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/onnwee/clip-tender/backend/db"
	"github.com/onnwee/clip-tender/backend/telemetry"
	"github.com/onnwee/clip-tender/backend/youtubeapi"
)

// Uploader uploads one clip file and returns its public URL. Swapped out in
// tests.
type Uploader interface {
	Upload(ctx context.Context, path, title string) (string, error)
}

// YouTubeUploader uploads clips through the YouTube Data API.
type YouTubeUploader struct {
	Service *youtubeapi.Service
	Privacy string
}

func (u *YouTubeUploader) Upload(ctx context.Context, path, title string) (string, error) {
	svc, err := u.Service.Client(ctx)
	if err != nil {
		return "", fmt.Errorf("youtube client: %w", err)
	}
	desc := "Auto-clipped live stream moment."
	return youtubeapi.UploadVideo(ctx, svc, path, title, desc, u.Privacy)
}

// Job drains the clips table on a timer.
type Job struct {
	DB         *sql.DB
	Uploader   Uploader
	Interval   time.Duration
	RetryAfter time.Duration // spacing between attempts for the same clip
	MaxRetries int

	logger *slog.Logger
}

// NewJob creates an upload job with sane defaults.
func NewJob(dbx *sql.DB, up Uploader) *Job {
	return &Job{
		DB:         dbx,
		Uploader:   up,
		Interval:   time.Minute,
		RetryAfter: 10 * time.Minute,
		MaxRetries: 5,
		logger:     slog.Default().With(slog.String("component", "upload")),
	}
}

// Run processes the queue until ctx is canceled.
func (j *Job) Run(ctx context.Context) {
	j.logger.Info("upload job started", slog.Duration("interval", j.Interval))
	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			j.logger.Info("upload job stopped")
			return
		case <-ticker.C:
			j.drain(ctx)
		}
	}
}

// drain uploads queued clips until the queue is empty or an attempt fails.
func (j *Job) drain(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		clip, ok, err := db.NextClipForUpload(ctx, j.DB, j.RetryAfter, j.MaxRetries)
		if err != nil {
			j.logger.Warn("upload queue query failed", slog.Any("err", err))
			return
		}
		if !ok {
			return
		}
		if !j.uploadOne(ctx, clip) {
			return
		}
	}
}

func (j *Job) uploadOne(ctx context.Context, clip db.Clip) bool {
	logger := j.logger.With(slog.Int64("clip_id", clip.ID), slog.String("path", clip.Path))

	if _, err := os.Stat(clip.Path); err != nil {
		logger.Warn("clip file missing, dropping from queue", slog.Any("err", err))
		_ = db.MarkClipUploadError(ctx, j.DB, clip.ID, fmt.Errorf("file missing: %w", err))
		return true
	}

	title := clipTitle(clip)
	var url string
	var upErr error
	d := telemetry.TimeFunc(telemetry.UploadDuration, func() {
		url, upErr = j.Uploader.Upload(ctx, clip.Path, title)
	})
	if upErr != nil {
		logger.Error("clip upload failed", slog.Any("err", upErr), slog.Duration("upload_duration", d))
		if telemetry.UploadsFailed != nil {
			telemetry.UploadsFailed.Inc()
		}
		_ = db.MarkClipUploadError(ctx, j.DB, clip.ID, upErr)
		return false
	}
	if err := db.MarkClipUploaded(ctx, j.DB, clip.ID, url); err != nil {
		logger.Warn("clip upload record failed", slog.Any("err", err))
	}
	if telemetry.UploadsSucceeded != nil {
		telemetry.UploadsSucceeded.Inc()
	}
	logger.Info("clip uploaded", slog.String("youtube_url", url), slog.Duration("upload_duration", d))
	return true
}

// clipTitle derives a human-readable title from the clip metadata.
func clipTitle(clip db.Clip) string {
	base := strings.TrimSuffix(filepath.Base(clip.Path), filepath.Ext(clip.Path))
	reason := strings.ReplaceAll(clip.TriggerType, "_", " ")
	if reason == "" {
		return base
	}
	return fmt.Sprintf("%s - %s (%s)", clip.Streamer, reason, clip.CreatedAt.Format("2006-01-02 15:04"))
}

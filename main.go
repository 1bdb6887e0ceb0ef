// Command backend is the main entrypoint for the clip-tender service.
// It:
//   - Loads configuration and initializes structured logging.
//   - Connects to Postgres and runs idempotent migrations.
//   - Starts one clipper per configured streamer (viewer polling, chat
//     streaming, segment recording, clip creation).
//   - Starts the clip upload job and the YouTube OAuth token refresher.
//   - Exposes an HTTP server with /healthz, /readyz, /status, and /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/onnwee/clip-tender/backend/clipper"
	"github.com/onnwee/clip-tender/backend/config"
	"github.com/onnwee/clip-tender/backend/db"
	"github.com/onnwee/clip-tender/backend/kickapi"
	"github.com/onnwee/clip-tender/backend/oauth"
	"github.com/onnwee/clip-tender/backend/server"
	"github.com/onnwee/clip-tender/backend/telemetry"
	"github.com/onnwee/clip-tender/backend/trigger"
	"github.com/onnwee/clip-tender/backend/upload"
	"github.com/onnwee/clip-tender/backend/youtubeapi"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load("backend/.env")

	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()))

	// Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.ValidateStreamers(); err != nil {
		slog.Error("config invalid", slog.Any("err", err))
		os.Exit(1)
	}

	// Metrics / telemetry init
	telemetry.Init()

	// OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdown, err := telemetry.InitTracing("clip-tender", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	// DB
	database, err := db.Connect()
	if err != nil {
		slog.Error("failed to open db", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := database.Close(); err != nil {
			slog.Error("failed to close database", slog.Any("err", err))
		}
	}()
	slog.Info("running database migrations", slog.String("component", "db_migrate"))
	if err := db.Migrate(context.Background(), database); err != nil {
		slog.Error("failed to migrate db", slog.Any("err", err))
		os.Exit(1)
	}

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Clippers. Every trigger event is logged and counted, whether or not it
	// produces a clip.
	provider := &kickapi.Client{APIBase: cfg.KickAPIBase}
	eventSink := trigger.FanOut(&trigger.LogSink{}, trigger.MetricsSink{})
	multi := clipper.NewMultiStreamer(cfg, database, provider, eventSink)
	go func() {
		if err := multi.Run(ctx); err != nil {
			slog.Error("clippers exited with error", slog.Any("err", err))
		}
	}()

	// YouTube upload pipeline (disabled without client credentials)
	var ytService *youtubeapi.Service
	if cfg.YTClientID != "" {
		ytService = youtubeapi.New(cfg, &db.TokenStoreAdapter{DB: database})
		job := upload.NewJob(database, &upload.YouTubeUploader{Service: ytService, Privacy: os.Getenv("YT_PRIVACY")})
		go job.Run(ctx)
		oauth.StartRefresher(ctx, database, "youtube", 10*time.Minute, 20*time.Minute, ytService.RefreshToken)
	} else {
		slog.Info("youtube upload disabled (YT_CLIENT_ID not set)")
	}

	// HTTP server (health/status/metrics/oauth)
	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	handlers := &server.Handlers{DB: database, Status: multi.Status, YouTube: ytService}
	go func() {
		if err := server.Start(ctx, handlers, addr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	// Block until shutdown signal
	<-ctx.Done()
	slog.Info("shutting down")
}

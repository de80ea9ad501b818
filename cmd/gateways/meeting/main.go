package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"
	config "github.com/xilidan/voicelink/config/meeting"
	"github.com/xilidan/voicelink/gateways/meeting"
	"github.com/xilidan/voicelink/pkg/logger"
)

func main() {
	log := logger.Default()

	cfg := config.MustLoad()

	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		log.Warn("falling back to info level", slog.String("error", err.Error()))
	}
	log = logger.New(logger.Config{
		Level:      level,
		Output:     os.Stderr,
		AddSource:  true,
		JSONFormat: cfg.Log.JSON,
	})
	log.Info("configuration loaded",
		slog.Int("port", cfg.Port),
		slog.String("audio_dir", cfg.AudioDir),
		slog.String("storage_kind", cfg.Storage.Kind),
		slog.String("engine_kind", cfg.Engine.Kind),
		slog.Duration("engine_timeout", cfg.Engine.Timeout))

	ctx := logger.WithContext(context.Background(), log)

	rootCtx, cancel := signal.NotifyContext(ctx, syscall.SIGTERM)
	defer cancel()

	if err := run(rootCtx, cfg, log); err != nil {
		log.Error("failed to run()", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	srv, err := meeting.New(ctx, cfg, log)
	if err != nil {
		log.Error("failed to create server", slog.String("error", err.Error()))
		return err
	}

	return srv.Start(ctx)
}

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	config "github.com/xilidan/voicelink/config/engine"
	"github.com/xilidan/voicelink/pkg/logger"
	"github.com/xilidan/voicelink/services/engine/server"
	"github.com/xilidan/voicelink/services/engine/usecase"
)

func main() {
	log := logger.Default()

	cfg := config.MustLoad()

	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn("falling back to info level", slog.String("error", err.Error()))
	}
	log = logger.New(logger.Config{
		Level:      level,
		Output:     os.Stderr,
		AddSource:  true,
		JSONFormat: cfg.LogJSON,
	})

	ctx := logger.WithContext(context.Background(), log)

	rootCtx, cancel := signal.NotifyContext(ctx, syscall.SIGTERM)
	defer cancel()

	if err := run(rootCtx, cfg, log); err != nil {
		log.Error("failed to run()", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	factory, err := usecase.NewFactory(cfg.EngineKind, cfg.EngineCommand, log)
	if err != nil {
		return err
	}
	usc := usecase.New(usecase.Config{
		Kind:          cfg.EngineKind,
		ScratchDir:    cfg.ScratchDir,
		MaxAudioBytes: cfg.MaxAudioBytes,
	}, factory)

	srv := server.NewServerOptions(usc, log, cfg.MaxAudioBytes)
	grpcServer, err := srv.NewServer()
	if err != nil {
		log.Error("failed to create grpc server", slog.String("error", err.Error()))
		return err
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	address := fmt.Sprintf(":%d", cfg.Port)
	grpcListener, err := net.Listen("tcp", address)
	if err != nil {
		log.Error("failed to listen on grpc port", slog.String("error", err.Error()))
		return fmt.Errorf("failed to listen on grpc port: %w", err)
	}

	go func() {
		serverErrors <- grpcServer.Serve(grpcListener)
	}()
	log.Info("engine grpc service started",
		slog.String("address", address),
		slog.String("engine_kind", usc.Kind()))

	select {
	case err := <-serverErrors:
		log.Info("grpc server has closed")
		return fmt.Errorf("grpc server has closed: %w", err)
	case sig := <-shutdown:
		log.Info("start shutdown", slog.String("signal", sig.String()))
		grpcServer.GracefulStop()
	case <-ctx.Done():
		log.Info("closing grpc server due to context cancellation")
		grpcServer.GracefulStop()
	}

	return nil
}

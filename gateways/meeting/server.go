package meeting

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	config "github.com/xilidan/voicelink/config/meeting"
	engineClient "github.com/xilidan/voicelink/gateways/meeting/clients/engine"
	"github.com/xilidan/voicelink/gateways/meeting/handler"
	"github.com/xilidan/voicelink/pkg/logger"
	"github.com/xilidan/voicelink/services/meeting/audiostore"
	"github.com/xilidan/voicelink/services/meeting/engine"
	"github.com/xilidan/voicelink/services/meeting/storage"
	badgerStorage "github.com/xilidan/voicelink/services/meeting/storage/badger"
	postgresStorage "github.com/xilidan/voicelink/services/meeting/storage/postgres"
	"github.com/xilidan/voicelink/services/meeting/usecase"
)

const shutdownTimeout = 10 * time.Second

// engineFactory is swapped in tests.
var engineFactory = newEngine

type Server struct {
	cfg     *config.Config
	log     *slog.Logger
	storage storage.Storage
	adapter *engine.Adapter
	closers []io.Closer
	handler *handler.Handler
}

func New(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Server, error) {
	audio, err := audiostore.New(cfg.AudioDir, log)
	if err != nil {
		return nil, err
	}

	stg, err := newStorage(ctx, &cfg.Storage, log)
	if err != nil {
		return nil, err
	}

	eng, closer, err := engineFactory(&cfg.Engine, audio, log)
	if err != nil {
		stg.Close()
		return nil, err
	}

	adapter, err := engine.NewAdapter(eng,
		engine.WithTimeout(cfg.Engine.Timeout),
		engine.WithWorkers(cfg.Engine.Workers),
		engine.WithLogger(log))
	if err != nil {
		if closer != nil {
			closer.Close()
		}
		stg.Close()
		return nil, err
	}

	usc := usecase.New(usecase.Config{
		MaxUploadBytes: cfg.MaxUploadBytes,
		AudioURLPrefix: cfg.PublicAudioPrefix,
	}, audio, stg, adapter)

	s := &Server{
		cfg:     cfg,
		log:     log,
		storage: stg,
		adapter: adapter,
		handler: handler.New(usc, cfg.MaxUploadBytes),
	}
	if closer != nil {
		s.closers = append(s.closers, closer)
	}
	log.Info("meeting server created",
		slog.String("storage_kind", cfg.Storage.Kind),
		slog.String("engine_kind", cfg.Engine.Kind),
		slog.String("audio_dir", cfg.AudioDir))
	return s, nil
}

func newStorage(ctx context.Context, cfg *config.StorageConfig, log *slog.Logger) (storage.Storage, error) {
	switch cfg.Kind {
	case "memory", "":
		return storage.New(), nil
	case "postgres":
		db := postgresStorage.Config{
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			Host:     cfg.Database.Host,
			Name:     cfg.Database.Name,
			Port:     cfg.Database.Port,
			SSLMode:  cfg.Database.SSLMode,
		}
		return postgresStorage.New(ctx, db.DSN(), log)
	case "badger":
		return badgerStorage.New(cfg.BadgerDir, false, log)
	default:
		return nil, fmt.Errorf("unknown storage kind %q", cfg.Kind)
	}
}

func newEngine(cfg *config.EngineConfig, audio audiostore.Store, log *slog.Logger) (engine.Engine, io.Closer, error) {
	switch cfg.Kind {
	case "stub", "":
		log.Warn("using stub engine, results are placeholders")
		return engine.NewStub(), nil, nil
	case "command":
		eng, err := engine.NewCommand(cfg.Command, audio, log)
		return eng, nil, err
	case "http":
		eng, err := engine.NewHTTP(cfg.Url, audio, log)
		return eng, nil, err
	case "grpc":
		client, err := engineClient.New(cfg, audio, log)
		if err != nil {
			return nil, nil, err
		}
		return client, client, nil
	default:
		return nil, nil, fmt.Errorf("unknown engine kind %q", cfg.Kind)
	}
}

// Router builds the chi router with the API mounted under /api/v1.
func (s *Server) Router() http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(logger.Middleware(s.log))
	router.Use(middleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token", "Range"},
		ExposedHeaders:   []string{"Content-Length", "Content-Range"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	router.Route("/api/v1", s.handler.RegisterRoutes)
	return router
}

func (s *Server) Start(ctx context.Context) error {
	defer s.Close()

	addr := fmt.Sprintf(":%d", s.cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	serverErrors := make(chan error, 1)

	go func() {
		s.log.Info("meeting gateway started", slog.String("address", srv.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		s.log.Error("server error received", slog.String("error", err.Error()))
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		s.log.Info("start shutdown", slog.String("signal", sig.String()))
	case <-ctx.Done():
		s.log.Info("closing server due to context cancellation")
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		s.log.Error("graceful shutdown failed", slog.String("error", err.Error()))
		srv.Close()
		return fmt.Errorf("failed to gracefully shutdown server: %w", err)
	}
	s.log.Info("server stopped cleanly")
	return nil
}

// Close releases the engine pool, engine connections and the repository.
func (s *Server) Close() error {
	s.adapter.Close()
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c.Close())
	}
	errs = append(errs, s.storage.Close())
	return errors.Join(errs...)
}

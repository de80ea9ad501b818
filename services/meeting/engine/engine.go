package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/xilidan/voicelink/services/meeting/entity"
)

const (
	DefaultTimeout = 10 * time.Minute
	DefaultWorkers = 4

	// how often a call waiting for a free worker retries
	submitRetryInterval = 5 * time.Millisecond
)

// Engine turns a stored recording into a transcript. Implementations may return
// any error; Adapter is the boundary that reshapes them.
type Engine interface {
	Process(ctx context.Context, ref entity.Reference, format string) (*entity.EngineResult, error)
}

// AudioSource resolves references for engines that need the bytes or a local path.
type AudioSource interface {
	Open(ctx context.Context, name string) (io.ReadCloser, int64, error)
	Path(name string) (string, error)
}

type Adapter struct {
	engine  Engine
	pool    *ants.Pool
	timeout time.Duration
	log     *slog.Logger
}

type Option func(*Adapter) error

// WithTimeout sets the ceiling for one engine call. Default is DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(a *Adapter) error {
		if d <= 0 {
			return fmt.Errorf("engine timeout must be positive, got %s", d)
		}
		a.timeout = d
		return nil
	}
}

// WithWorkers bounds how many engine calls run at once. Default is DefaultWorkers.
func WithWorkers(n int) Option {
	return func(a *Adapter) error {
		if n < 1 {
			n = 1
		}
		pool, err := ants.NewPool(n, ants.WithNonblocking(true))
		if err != nil {
			return err
		}
		if a.pool != nil {
			a.pool.Release()
		}
		a.pool = pool
		return nil
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(a *Adapter) error {
		if log == nil {
			log = slog.Default()
		}
		a.log = log
		return nil
	}
}

func NewAdapter(engine Engine, opts ...Option) (*Adapter, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine is nil")
	}

	a := &Adapter{
		engine:  engine,
		timeout: DefaultTimeout,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			a.Close()
			return nil, err
		}
	}
	if a.pool == nil {
		if err := WithWorkers(DefaultWorkers)(a); err != nil {
			return nil, err
		}
	}
	return a, nil
}

type outcome struct {
	result *entity.EngineResult
	err    error
}

// Process runs the engine under the timeout ceiling. Every failure comes back as
// *entity.EngineError and every success is normalized.
func (a *Adapter) Process(ctx context.Context, ref entity.Reference, format string) (*entity.EngineResult, error) {
	log := a.log.With(slog.String("reference", ref.String()), slog.String("format", format))

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	done := make(chan outcome, 1)
	task := func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("engine panic: %v", r)}
			}
		}()
		if err := ctx.Err(); err != nil {
			done <- outcome{err: err}
			return
		}
		res, err := a.engine.Process(ctx, ref, format)
		done <- outcome{result: res, err: err}
	}

	started := time.Now()
	log.Debug("submitting engine call", slog.Duration("timeout", a.timeout))
	if err := a.submit(ctx, task); err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			return nil, a.timeoutError(log)
		case errors.Is(err, context.Canceled):
			log.Warn("engine call cancelled while waiting for a worker")
			return nil, &entity.EngineError{Message: "processing cancelled"}
		}
		log.Error("failed to submit engine call", slog.String("error", err.Error()))
		return nil, &entity.EngineError{Message: "engine unavailable: " + err.Error()}
	}

	select {
	case out := <-done:
		if out.err != nil {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, a.timeoutError(log)
			}
			log.Warn("engine call failed",
				slog.String("error", out.err.Error()),
				slog.Duration("elapsed", time.Since(started)))
			return nil, toEngineError(out.err)
		}
		if out.result == nil {
			return nil, &entity.EngineError{Message: "engine returned no result"}
		}
		log.Info("engine call finished", slog.Duration("elapsed", time.Since(started)))
		return Normalize(out.result), nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, a.timeoutError(log)
		}
		log.Warn("engine call cancelled")
		return nil, &entity.EngineError{Message: "processing cancelled"}
	}
}

// submit waits for a free worker until ctx ends. The pool never blocks, so the
// wait is bounded by the same deadline as the engine call.
func (a *Adapter) submit(ctx context.Context, task func()) error {
	ticker := time.NewTicker(submitRetryInterval)
	defer ticker.Stop()

	for {
		err := a.pool.Submit(task)
		if !errors.Is(err, ants.ErrPoolOverload) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (a *Adapter) timeoutError(log *slog.Logger) error {
	log.Warn("engine call timed out", slog.Duration("timeout", a.timeout))
	return &entity.EngineError{
		Message: fmt.Sprintf("no result within %s", a.timeout),
		Timeout: true,
	}
}

func (a *Adapter) Close() {
	if a.pool != nil {
		a.pool.Release()
	}
}

func toEngineError(err error) *entity.EngineError {
	var engErr *entity.EngineError
	if errors.As(err, &engErr) {
		return &entity.EngineError{Message: engErr.Message, Timeout: engErr.Timeout}
	}
	return &entity.EngineError{Message: err.Error()}
}

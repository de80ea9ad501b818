package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/xilidan/voicelink/pkg/logger"
	"github.com/xilidan/voicelink/services/engine/consts"
	"github.com/xilidan/voicelink/services/engine/entity"
	"github.com/xilidan/voicelink/services/meeting/audiostore"
	"github.com/xilidan/voicelink/services/meeting/engine"
	meeting "github.com/xilidan/voicelink/services/meeting/entity"
)

type Usecase interface {
	Process(ctx context.Context, req *entity.ProcessRequest) (*meeting.EngineResult, error)
	Kind() string
}

// Factory builds the hosted engine on top of the audio it should read.
type Factory func(audio engine.AudioSource) (engine.Engine, error)

type Config struct {
	Kind          string
	ScratchDir    string
	MaxAudioBytes int64
}

type usecase struct {
	cfg     Config
	factory Factory
}

func New(cfg Config, factory Factory) Usecase {
	if cfg.MaxAudioBytes <= 0 {
		cfg.MaxAudioBytes = consts.DefaultMaxAudioBytes
	}
	if cfg.ScratchDir == "" {
		cfg.ScratchDir = os.TempDir()
	}
	return &usecase{
		cfg:     cfg,
		factory: factory,
	}
}

// NewFactory returns the Factory for one of the kinds in consts.
func NewFactory(kind, command string, log *slog.Logger) (Factory, error) {
	switch kind {
	case consts.KindStub, "":
		return func(engine.AudioSource) (engine.Engine, error) {
			return engine.NewStub(), nil
		}, nil
	case consts.KindCommand:
		return func(audio engine.AudioSource) (engine.Engine, error) {
			return engine.NewCommand(command, audio, log)
		}, nil
	default:
		return nil, fmt.Errorf("unknown engine kind %q", kind)
	}
}

func (u *usecase) Kind() string {
	if u.cfg.Kind == "" {
		return consts.KindStub
	}
	return u.cfg.Kind
}

// Process stages the audio in a private scratch directory for the duration of the
// call; the directory is removed afterwards.
func (u *usecase) Process(ctx context.Context, req *entity.ProcessRequest) (*meeting.EngineResult, error) {
	log := logger.FromContext(ctx).With(slog.String("meeting_id", req.MeetingID))

	if !meeting.ValidMeetingID(req.MeetingID) {
		return nil, meeting.PayloadErrorf("invalid meeting id %q", req.MeetingID)
	}
	format, err := meeting.NormalizeFormat(req.Format)
	if err != nil {
		return nil, err
	}
	if len(req.Audio) == 0 {
		return nil, meeting.PayloadErrorf("audio is empty")
	}
	if int64(len(req.Audio)) > u.cfg.MaxAudioBytes {
		return nil, &meeting.PayloadError{
			Message: fmt.Sprintf("audio exceeds %d bytes", u.cfg.MaxAudioBytes),
			Err:     meeting.ErrUploadTooLarge,
		}
	}

	dir, err := os.MkdirTemp(u.cfg.ScratchDir, "engine-")
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			log.Warn("failed to remove scratch dir", slog.String("dir", dir), slog.String("error", err.Error()))
		}
	}()

	scratch, err := audiostore.New(dir, log)
	if err != nil {
		return nil, err
	}
	blob, err := scratch.Write(ctx, req.MeetingID, format, req.Audio)
	if err != nil {
		return nil, err
	}

	eng, err := u.factory(scratch)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	log.Debug("processing audio", slog.String("kind", u.Kind()), slog.Int64("size", blob.Size))
	res, err := eng.Process(ctx, blob.Reference, format)
	if err != nil {
		log.Warn("engine failed", slog.String("error", err.Error()))
		return nil, err
	}
	if res == nil {
		return nil, fmt.Errorf("engine returned no result")
	}
	return engine.Normalize(res), nil
}

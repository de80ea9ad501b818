package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/xilidan/voicelink/pkg/gen"
	"github.com/xilidan/voicelink/pkg/logger"
	"github.com/xilidan/voicelink/services/meeting/audiostore"
	"github.com/xilidan/voicelink/services/meeting/engine"
	"github.com/xilidan/voicelink/services/meeting/entity"
	"github.com/xilidan/voicelink/services/meeting/storage"
)

const (
	DefaultMaxUploadBytes = 25 * 1024 * 1024
	DefaultAudioURLPrefix = "/api/v1/audio/"
)

type Usecase interface {
	Ingest(ctx context.Context, req *entity.IngestRequest) (*entity.IngestSummary, error)
	GetRecord(ctx context.Context, meetingID string) (*entity.MeetingRecord, error)
	GetAudio(ctx context.Context, filename string) (*entity.Audio, error)
	ListRecords(ctx context.Context) ([]*entity.MeetingRecord, error)
}

type Config struct {
	MaxUploadBytes int64
	AudioURLPrefix string
	IDs            gen.UUIDGenerator
	Now            func() time.Time
}

type usecase struct {
	cfg     Config
	audio   audiostore.Store
	storage storage.Storage
	engine  engine.Engine
}

// New wires the pipeline. eng is expected to be an *engine.Adapter so that engine
// failures already arrive as *entity.EngineError.
func New(cfg Config, audio audiostore.Store, storage storage.Storage, eng engine.Engine) Usecase {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if cfg.AudioURLPrefix == "" {
		cfg.AudioURLPrefix = DefaultAudioURLPrefix
	}
	if cfg.IDs == nil {
		cfg.IDs = gen.UUID()
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}

	return &usecase{
		cfg:     cfg,
		audio:   audio,
		storage: storage,
		engine:  eng,
	}
}

// Ingest runs Received -> AudioPersisted -> Processed -> Recorded. Failures before
// the audio is persisted leave nothing behind; after that point the request context
// no longer cancels the work, so the record always reaches a terminal status.
func (u *usecase) Ingest(ctx context.Context, req *entity.IngestRequest) (*entity.IngestSummary, error) {
	meetingID := u.cfg.IDs.MeetingID()
	log := logger.FromContext(ctx).With(slog.String("meeting_id", meetingID))
	log.Info("ingestion received", slog.String("format", req.Format))

	format, err := entity.NormalizeFormat(req.Format)
	if err != nil {
		log.Warn("rejecting upload", slog.String("error", err.Error()))
		return nil, err
	}
	if req.Upload == nil {
		return nil, entity.PayloadErrorf("file is required")
	}

	data, err := u.readUpload(ctx, req.Upload)
	if err != nil {
		log.Warn("failed to read upload", slog.String("error", err.Error()))
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		log.Warn("ingestion cancelled before audio was stored", slog.String("error", err.Error()))
		return nil, err
	}

	blob, err := u.audio.Write(ctx, meetingID, format, data)
	if err != nil {
		log.Error("failed to store audio", slog.String("error", err.Error()))
		return nil, err
	}
	log.Debug("audio persisted",
		slog.String("reference", blob.Reference.String()),
		slog.Int64("size", blob.Size))

	ctx = context.WithoutCancel(ctx)

	rec := entity.NewRecord(meetingID, blob.Reference, blob.Size, blob.Checksum, u.cfg.Now())
	if err := u.storage.Create(ctx, rec); err != nil {
		log.Error("failed to index stored audio",
			slog.String("reference", blob.Reference.String()),
			slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to record meeting %s: %w", meetingID, err)
	}

	summary := &entity.IngestSummary{
		MeetingID:      meetingID,
		AudioURL:       u.cfg.AudioURLPrefix + blob.Reference.String(),
		Speakers:       []entity.SpeakerChannel{},
		TechnicalTerms: []string{},
	}

	result, procErr := u.engine.Process(ctx, blob.Reference, format)
	if procErr != nil {
		var engErr *entity.EngineError
		if !errors.As(procErr, &engErr) {
			engErr = &entity.EngineError{Message: procErr.Error()}
		}
		message := engErr.Error()
		log.Warn("engine failed, keeping audio", slog.String("error", message), slog.Bool("timeout", engErr.Timeout))

		if _, err := u.storage.Update(ctx, meetingID, func(r *entity.MeetingRecord) error {
			return r.Fail(message, u.cfg.Now())
		}); err != nil {
			log.Error("failed to mark meeting failed", slog.String("error", err.Error()))
			return nil, fmt.Errorf("failed to record meeting %s: %w", meetingID, err)
		}

		summary.Error = &message
		return summary, nil
	}
	log.Debug("audio processed",
		slog.Int("speakers", len(result.Speakers)),
		slog.Int("technical_terms", len(result.TechnicalTerms)))

	updated, err := u.storage.Update(ctx, meetingID, func(r *entity.MeetingRecord) error {
		return r.Complete(result, u.cfg.Now())
	})
	if err != nil {
		log.Error("failed to complete meeting", slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to record meeting %s: %w", meetingID, err)
	}
	log.Info("meeting recorded", slog.String("status", string(updated.Status)))

	summary.Transcript = result.Transcript
	summary.Speakers = updated.Speakers
	summary.TechnicalTerms = updated.TechnicalTerms
	return summary, nil
}

func (u *usecase) readUpload(ctx context.Context, r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, u.cfg.MaxUploadBytes+1))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &entity.PayloadError{Message: "failed to read upload: " + err.Error(), Err: err}
	}
	if int64(len(data)) > u.cfg.MaxUploadBytes {
		return nil, &entity.PayloadError{
			Message: fmt.Sprintf("upload exceeds %d bytes", u.cfg.MaxUploadBytes),
			Err:     entity.ErrUploadTooLarge,
		}
	}
	if len(data) == 0 {
		return nil, entity.PayloadErrorf("uploaded file is empty")
	}
	return data, nil
}

func (u *usecase) GetRecord(ctx context.Context, meetingID string) (*entity.MeetingRecord, error) {
	if !entity.ValidMeetingID(meetingID) {
		return nil, entity.PayloadErrorf("invalid meeting id %q", meetingID)
	}
	return u.storage.Get(ctx, meetingID)
}

// GetAudio re-validates the client supplied filename before touching the store.
func (u *usecase) GetAudio(ctx context.Context, filename string) (*entity.Audio, error) {
	ref, err := entity.ParseReference(filename)
	if err != nil {
		return nil, err
	}

	body, size, err := u.audio.Open(ctx, ref.String())
	if err != nil {
		return nil, err
	}
	return &entity.Audio{
		Reference:   ref,
		ContentType: entity.ContentType(ref.Format()),
		Size:        size,
		Body:        body,
	}, nil
}

func (u *usecase) ListRecords(ctx context.Context) ([]*entity.MeetingRecord, error) {
	return u.storage.List(ctx)
}

package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/xilidan/voicelink/pkg/json"
	"github.com/xilidan/voicelink/pkg/logger"
	"github.com/xilidan/voicelink/services/meeting/entity"
	"github.com/xilidan/voicelink/services/meeting/usecase"
)

const (
	// room for multipart boundaries and the format field
	multipartOverhead = 1 << 20
	maxFormMemory     = 32 << 20
)

type Handler struct {
	usecase        usecase.Usecase
	maxUploadBytes int64
}

func New(usc usecase.Usecase, maxUploadBytes int64) *Handler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = usecase.DefaultMaxUploadBytes
	}
	return &Handler{
		usecase:        usc,
		maxUploadBytes: maxUploadBytes,
	}
}

type (
	HealthCheckResponse struct {
		Status bool `json:"status"`
	}

	ListMeetingsResponse struct {
		Meetings []*entity.MeetingRecord `json:"meetings"`
	}
)

// RegisterRoutes mounts the meeting API on r, which is expected to sit under /api/v1.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/process-meeting", h.ProcessMeeting)
	r.Get("/audio/*", h.GetAudio)
	r.Get("/meetings", h.ListMeetings)
	r.Get("/meetings/{meeting_id}", h.GetMeeting)
	r.Get("/health", h.HealthCheck)
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	json.WriteJSON(w, http.StatusOK, HealthCheckResponse{Status: true})
}

func (h *Handler) ProcessMeeting(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+multipartOverhead)
	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			h.writeError(w, r, &entity.PayloadError{Message: "upload too large", Err: entity.ErrUploadTooLarge})
			return
		}
		h.writeError(w, r, entity.PayloadErrorf("invalid multipart form: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			h.writeError(w, r, entity.PayloadErrorf("file is required"))
			return
		}
		h.writeError(w, r, entity.PayloadErrorf("invalid file: %v", err))
		return
	}
	defer file.Close()
	log.Debug("upload received",
		slog.String("filename", header.Filename),
		slog.Int64("size", header.Size))

	summary, err := h.usecase.Ingest(r.Context(), &entity.IngestRequest{
		Upload: file,
		Format: r.FormValue("format"),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	json.WriteJSON(w, http.StatusOK, summary)
}

// GetAudio serves a stored blob. The wildcard is taken raw so encoded separators
// never turn into path segments; the usecase rejects anything that is not exactly
// a reference.
func (h *Handler) GetAudio(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "*")

	audio, err := h.usecase.GetAudio(r.Context(), name)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer audio.Body.Close()

	w.Header().Set("Content-Type", audio.ContentType)
	if rs, ok := audio.Body.(io.ReadSeeker); ok {
		http.ServeContent(w, r, audio.Reference.String(), time.Time{}, rs)
		return
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, audio.Body); err != nil {
		// headers are already sent, nothing left to tell the client
		logger.FromContext(r.Context()).Debug("audio stream interrupted",
			slog.String("reference", audio.Reference.String()),
			slog.String("error", err.Error()))
	}
}

func (h *Handler) GetMeeting(w http.ResponseWriter, r *http.Request) {
	rec, err := h.usecase.GetRecord(r.Context(), chi.URLParam(r, "meeting_id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	json.WriteJSON(w, http.StatusOK, rec)
}

func (h *Handler) ListMeetings(w http.ResponseWriter, r *http.Request) {
	records, err := h.usecase.ListRecords(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	json.WriteJSON(w, http.StatusOK, ListMeetingsResponse{Meetings: records})
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	log := logger.FromContext(r.Context())

	var (
		payloadErr *entity.PayloadError
		storageErr *entity.StorageError
		engineErr  *entity.EngineError
	)
	switch {
	case errors.Is(err, entity.ErrUploadTooLarge):
		log.Warn("upload too large", slog.String("error", err.Error()))
		json.WriteError(w, http.StatusRequestEntityTooLarge, json.CodePayload, err)
	case errors.As(err, &payloadErr):
		log.Warn("bad request", slog.String("error", err.Error()))
		json.WriteError(w, http.StatusBadRequest, json.CodePayload, err)
	case errors.Is(err, entity.ErrNotFound):
		json.WriteError(w, http.StatusNotFound, json.CodeNotFound, err)
	case errors.As(err, &storageErr):
		log.Error("storage failure", slog.String("error", err.Error()))
		json.WriteError(w, http.StatusInternalServerError, json.CodeStorage, err)
	case errors.As(err, &engineErr):
		log.Error("engine failure", slog.String("error", err.Error()))
		json.WriteError(w, http.StatusBadGateway, json.CodeEngine, err)
	case errors.Is(err, context.Canceled):
		log.Warn("request cancelled", slog.String("error", err.Error()))
		json.WriteError(w, http.StatusServiceUnavailable, json.CodeInternal, err)
	default:
		log.Error("internal error", slog.String("error", err.Error()))
		json.WriteError(w, http.StatusInternalServerError, json.CodeInternal, errors.New("internal error"))
	}
}

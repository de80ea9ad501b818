package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/xilidan/voicelink/services/meeting/entity"
)

const maxErrorBody = 4 << 10

// HTTP posts the audio as multipart `file` + `format` to an engine endpoint that
// answers with an EngineResult JSON document.
type HTTP struct {
	url        string
	httpClient *http.Client
	audio      AudioSource
	log        *slog.Logger
}

func NewHTTP(url string, audio AudioSource, log *slog.Logger) (*HTTP, error) {
	if url == "" {
		return nil, fmt.Errorf("engine url is empty")
	}
	log.Debug("http engine configured", slog.String("url", url))

	return &HTTP{
		url:        url,
		httpClient: &http.Client{},
		audio:      audio,
		log:        log,
	}, nil
}

func (h *HTTP) Process(ctx context.Context, ref entity.Reference, format string) (*entity.EngineResult, error) {
	rc, size, err := h.audio.Open(ctx, ref.String())
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("format", format); err != nil {
		return nil, err
	}
	part, err := mw.CreateFormFile("file", ref.String())
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, rc); err != nil {
		return nil, fmt.Errorf("failed to read audio: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	h.log.Debug("sending audio to engine",
		slog.String("url", h.url),
		slog.String("reference", ref.String()),
		slog.Int64("size", size))
	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call engine: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("engine http %d: %s", resp.StatusCode, bytes.TrimSpace(b))
	}

	var res entity.EngineResult
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, fmt.Errorf("failed to decode engine response: %w", err)
	}
	return &res, nil
}

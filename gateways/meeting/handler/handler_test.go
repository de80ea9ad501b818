package handler

import (
	"bytes"
	"context"
	stdjson "encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xilidan/voicelink/pkg/json"
	"github.com/xilidan/voicelink/pkg/logger"
	"github.com/xilidan/voicelink/services/meeting/audiostore"
	"github.com/xilidan/voicelink/services/meeting/engine"
	"github.com/xilidan/voicelink/services/meeting/entity"
	"github.com/xilidan/voicelink/services/meeting/storage"
	"github.com/xilidan/voicelink/services/meeting/usecase"
)

var meetingIDPattern = regexp.MustCompile(`^meet_[0-9a-f]{32}$`)

type testServer struct {
	*httptest.Server
	audioDir string
}

func newTestServer(t *testing.T, eng engine.Engine, maxUploadBytes int64) *testServer {
	t.Helper()

	base := t.TempDir()
	audioDir := filepath.Join(base, "uploads")
	audio, err := audiostore.New(audioDir, logger.Discard())
	require.NoError(t, err)

	adapter, err := engine.NewAdapter(eng, engine.WithLogger(logger.Discard()), engine.WithTimeout(2*time.Second))
	require.NoError(t, err)
	t.Cleanup(adapter.Close)

	usc := usecase.New(usecase.Config{MaxUploadBytes: maxUploadBytes}, audio, storage.New(), adapter)

	router := chi.NewRouter()
	router.Use(logger.Middleware(logger.Discard()))
	router.Route("/api/v1", New(usc, maxUploadBytes).RegisterRoutes)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, audioDir: audioDir}
}

func upload(t *testing.T, url string, data []byte, format string) *http.Response {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if data != nil {
		part, err := mw.CreateFormFile("file", "meeting.bin")
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	if format != "" {
		require.NoError(t, mw.WriteField("format", format))
	}
	require.NoError(t, mw.Close())

	resp, err := http.Post(url+"/api/v1/process-meeting", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, stdjson.NewDecoder(resp.Body).Decode(&v))
	return v
}

func get(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func helloWorld() *entity.EngineResult {
	return &entity.EngineResult{
		Transcript: "hello world",
		Speakers: []entity.SpeakerChannel{{
			SpeakerID: "Speaker 1",
			Segments:  []entity.TranscriptSegment{{Text: "hello world", Confidence: 0.9}},
		}},
		TechnicalTerms: []string{},
	}
}

func TestProcessMeetingEndToEnd(t *testing.T) {
	srv := newTestServer(t, engine.NewStubWithResult(helloWorld()), 0)
	audio := []byte("RIFF....WAVEfmt hello")

	resp := upload(t, srv.URL, audio, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	summary := decode[entity.IngestSummary](t, resp)

	assert.Regexp(t, meetingIDPattern, summary.MeetingID)
	assert.Equal(t, "/api/v1/audio/"+summary.MeetingID+".wav", summary.AudioURL)
	assert.Equal(t, "hello world", summary.Transcript)
	assert.Nil(t, summary.Error)

	audioResp := get(t, srv.URL+summary.AudioURL)
	require.Equal(t, http.StatusOK, audioResp.StatusCode)
	assert.Equal(t, "audio/wav", audioResp.Header.Get("Content-Type"))
	got, err := io.ReadAll(audioResp.Body)
	require.NoError(t, err)
	assert.Equal(t, audio, got)

	recResp := get(t, srv.URL+"/api/v1/meetings/"+summary.MeetingID)
	require.Equal(t, http.StatusOK, recResp.StatusCode)
	rec := decode[entity.MeetingRecord](t, recResp)
	assert.Equal(t, entity.StatusCompleted, rec.Status)
	require.NotNil(t, rec.Transcript)
	assert.Equal(t, "hello world", *rec.Transcript)
	assert.Equal(t, entity.Reference(summary.MeetingID+".wav"), rec.AudioReference)
	assert.Equal(t, int64(len(audio)), rec.AudioSize)
}

func TestProcessMeetingEngineFailureKeepsAudio(t *testing.T) {
	srv := newTestServer(t, engine.NewFailingStub(errors.New("model unavailable")), 0)
	audio := []byte("OggS-audio")

	resp := upload(t, srv.URL, audio, "ogg")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	summary := decode[entity.IngestSummary](t, resp)

	require.NotNil(t, summary.Error)
	assert.Contains(t, *summary.Error, "model unavailable")
	assert.Empty(t, summary.Transcript)
	assert.Empty(t, summary.Speakers)
	assert.Equal(t, "/api/v1/audio/"+summary.MeetingID+".ogg", summary.AudioURL)

	audioResp := get(t, srv.URL+summary.AudioURL)
	require.Equal(t, http.StatusOK, audioResp.StatusCode)
	assert.Equal(t, "audio/ogg", audioResp.Header.Get("Content-Type"))
	got, _ := io.ReadAll(audioResp.Body)
	assert.Equal(t, audio, got)

	rec := decode[entity.MeetingRecord](t, get(t, srv.URL+"/api/v1/meetings/"+summary.MeetingID))
	assert.Equal(t, entity.StatusFailed, rec.Status)
	require.NotNil(t, rec.Error)
	assert.Contains(t, *rec.Error, "model unavailable")
	assert.Nil(t, rec.Transcript)
}

func TestProcessMeetingRejectsPayload(t *testing.T) {
	srv := newTestServer(t, engine.NewStub(), 16)

	tests := []struct {
		name   string
		data   []byte
		format string
		status int
	}{
		{name: "missing file", data: nil, status: http.StatusBadRequest},
		{name: "empty file", data: []byte{}, status: http.StatusBadRequest},
		{name: "unsupported format", data: []byte("x"), format: "exe", status: http.StatusBadRequest},
		{name: "too large", data: bytes.Repeat([]byte("a"), 17), status: http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := upload(t, srv.URL, tt.data, tt.format)
			assert.Equal(t, tt.status, resp.StatusCode)
			body := decode[json.ErrorBody](t, resp)
			assert.Equal(t, json.CodePayload, body.Code)
			assert.NotEmpty(t, body.Error)
		})
	}

	list := decode[ListMeetingsResponse](t, get(t, srv.URL+"/api/v1/meetings"))
	assert.Empty(t, list.Meetings)
}

func TestGetAudioRejectsTraversal(t *testing.T) {
	srv := newTestServer(t, engine.NewStub(), 0)
	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(srv.audioDir), "secret.wav"), []byte("secret"), 0o600))

	paths := []string{
		"/api/v1/audio/../secret.wav",
		"/api/v1/audio/..%2Fsecret.wav",
		"/api/v1/audio/%2e%2e%2fsecret.wav",
		"/api/v1/audio/..%5Csecret.wav",
		"/api/v1/audio/sub/meet_0123456789abcdef0123456789abcdef.wav",
		"/api/v1/audio/meet_0123456789abcdef0123456789abcdef.exe",
		"/api/v1/audio/meet_0123456789abcdef0123456789abcdef",
		"/api/v1/audio/",
	}
	for _, p := range paths {
		t.Run(p, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
			require.NoError(t, err)
			req.URL.Opaque = p

			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			body, _ := io.ReadAll(resp.Body)
			assert.NotContains(t, string(body), "secret")
		})
	}
}

func TestGetAudioNotFound(t *testing.T) {
	srv := newTestServer(t, engine.NewStub(), 0)

	resp := get(t, srv.URL+"/api/v1/audio/meet_0123456789abcdef0123456789abcdef.wav")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	body := decode[json.ErrorBody](t, resp)
	assert.Equal(t, json.CodeNotFound, body.Code)
}

func TestGetAudioRange(t *testing.T) {
	srv := newTestServer(t, engine.NewStub(), 0)
	summary := decode[entity.IngestSummary](t, upload(t, srv.URL, []byte("0123456789"), "mp3"))

	req, err := http.NewRequest(http.MethodGet, srv.URL+summary.AudioURL, nil)
	require.NoError(t, err)
	req.Header.Set("Range", "bytes=2-5")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusPartialContent, resp.StatusCode)
	assert.Equal(t, "audio/mpeg", resp.Header.Get("Content-Type"))
	got, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "2345", string(got))
}

func TestGetMeeting(t *testing.T) {
	srv := newTestServer(t, engine.NewStub(), 0)

	resp := get(t, srv.URL+"/api/v1/meetings/not-a-meeting")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = get(t, srv.URL+"/api/v1/meetings/meet_0123456789abcdef0123456789abcdef")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, json.CodeNotFound, decode[json.ErrorBody](t, resp).Code)
}

func TestListMeetings(t *testing.T) {
	srv := newTestServer(t, engine.NewStub(), 0)
	first := decode[entity.IngestSummary](t, upload(t, srv.URL, []byte("one"), "wav"))
	second := decode[entity.IngestSummary](t, upload(t, srv.URL, []byte("two"), "flac"))

	list := decode[ListMeetingsResponse](t, get(t, srv.URL+"/api/v1/meetings"))
	require.Len(t, list.Meetings, 2)
	ids := []string{list.Meetings[0].MeetingID, list.Meetings[1].MeetingID}
	assert.ElementsMatch(t, []string{first.MeetingID, second.MeetingID}, ids)
}

func TestHealthCheck(t *testing.T) {
	srv := newTestServer(t, engine.NewStub(), 0)

	resp := get(t, srv.URL+"/api/v1/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decode[HealthCheckResponse](t, resp).Status)
}

// brokenBody yields a little audio and then fails, like a blob whose backing
// file disappears mid-read. It does not implement io.Seeker.
type brokenBody struct {
	sent bool
}

func (b *brokenBody) Read(p []byte) (int, error) {
	if b.sent {
		return 0, errors.New("disk went away")
	}
	b.sent = true
	return copy(p, "RIFF"), nil
}

func (b *brokenBody) Close() error { return nil }

type audioOnlyUsecase struct {
	usecase.Usecase
	audio *entity.Audio
}

func (u *audioOnlyUsecase) GetAudio(context.Context, string) (*entity.Audio, error) {
	return u.audio, nil
}

func TestGetAudioLogsInterruptedStream(t *testing.T) {
	var logs bytes.Buffer
	log := logger.New(logger.Config{Level: slog.LevelDebug, Output: &logs, JSONFormat: true})

	usc := &audioOnlyUsecase{audio: &entity.Audio{
		Reference:   entity.Reference("0123456789abcdef0123456789abcdef.wav"),
		ContentType: "audio/wav",
		Body:        &brokenBody{},
	}}
	router := chi.NewRouter()
	router.Route("/api/v1", New(usc, 1<<20).RegisterRoutes)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/audio/0123456789abcdef0123456789abcdef.wav", nil)
	req = req.WithContext(logger.WithContext(req.Context(), log))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "RIFF", rec.Body.String())
	assert.Contains(t, logs.String(), "audio stream interrupted")
	assert.Contains(t, logs.String(), "disk went away")
}

package main

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xilidan/voicelink/gateways/meeting/handler"
	"github.com/xilidan/voicelink/pkg/logger"
	"github.com/xilidan/voicelink/services/meeting/audiostore"
	"github.com/xilidan/voicelink/services/meeting/engine"
	"github.com/xilidan/voicelink/services/meeting/storage"
	"github.com/xilidan/voicelink/services/meeting/usecase"
	"gopkg.in/yaml.v3"
)

func newGateway(t *testing.T) string {
	t.Helper()

	audio, err := audiostore.New(t.TempDir(), logger.Discard())
	require.NoError(t, err)
	adapter, err := engine.NewAdapter(engine.NewStub(), engine.WithLogger(logger.Discard()), engine.WithTimeout(time.Second))
	require.NoError(t, err)
	t.Cleanup(adapter.Close)

	router := chi.NewRouter()
	router.Route("/api/v1", handler.New(usecase.New(usecase.Config{}, audio, storage.New(), adapter), 0).RegisterRoutes)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv.URL
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &errOut
	err := app.Run(append([]string{"meetingctl"}, args...))
	return out.String(), err
}

func TestUploadGetListAudio(t *testing.T) {
	server := newGateway(t)
	dir := t.TempDir()
	recording := filepath.Join(dir, "standup.mp3")
	require.NoError(t, os.WriteFile(recording, []byte("ID3-standup"), 0o600))

	out, err := run(t, "--server", server, "upload", recording)
	require.NoError(t, err)
	var summary map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	id, _ := summary["meeting_id"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, "/api/v1/audio/"+id+".mp3", summary["audio_url"])

	out, err = run(t, "--server", server, "--output", "yaml", "get", id)
	require.NoError(t, err)
	var rec map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &rec))
	assert.Equal(t, "completed", rec["status"])
	assert.Equal(t, id+".mp3", rec["audio_reference"])

	out, err = run(t, "--server", server, "list")
	require.NoError(t, err)
	assert.Contains(t, out, id)

	dest := filepath.Join(dir, "copy.mp3")
	_, err = run(t, "--server", server, "audio", "--out", dest, id+".mp3")
	require.NoError(t, err)
	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "ID3-standup", string(got))
}

func TestServerErrors(t *testing.T) {
	server := newGateway(t)

	_, err := run(t, "--server", server, "get", "meet_0123456789abcdef0123456789abcdef")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not_found")

	_, err = run(t, "--server", server, "audio", "--out", "-", "../../etc/passwd")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestArgumentValidation(t *testing.T) {
	_, err := run(t, "upload")
	assert.Error(t, err)

	_, err = run(t, "--output", "xml", "list")
	assert.Error(t, err)

	assert.Equal(t, "wav", formatFromExt("/tmp/a.wav"))
	assert.Equal(t, "", formatFromExt("/tmp/recording"))
}

package engine

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xilidan/voicelink/pkg/logger"
	"github.com/xilidan/voicelink/services/engine/consts"
	"github.com/xilidan/voicelink/services/engine/server"
	"github.com/xilidan/voicelink/services/engine/usecase"
	"github.com/xilidan/voicelink/services/meeting/audiostore"
	meetingengine "github.com/xilidan/voicelink/services/meeting/engine"
	"github.com/xilidan/voicelink/services/meeting/entity"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"
)

const testID = "meet_0123456789abcdef0123456789abcdef"

func newClient(t *testing.T, audio meetingengine.AudioSource) *Client {
	t.Helper()

	factory, err := usecase.NewFactory(consts.KindStub, "", logger.Discard())
	require.NoError(t, err)
	usc := usecase.New(usecase.Config{ScratchDir: t.TempDir()}, factory)
	srv, err := server.NewServerOptions(usc, logger.Discard(), 0).NewServer()
	require.NoError(t, err)

	lis := bufconn.Listen(1 << 20)
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	client, err := Dial("passthrough:///bufnet", audio, logger.Discard(),
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}))
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestClientProcess(t *testing.T) {
	store, err := audiostore.New(t.TempDir(), logger.Discard())
	require.NoError(t, err)
	blob, err := store.Write(context.Background(), testID, "flac", []byte("fLaC"))
	require.NoError(t, err)

	client := newClient(t, store)
	require.NoError(t, client.Ping(context.Background()))

	res, err := client.Process(context.Background(), blob.Reference, "flac")
	require.NoError(t, err)
	assert.Equal(t, "Sample transcript for "+testID+".flac", res.Transcript)
	assert.Equal(t, []string{"API", "audio processing", "transcription"}, res.TechnicalTerms)
}

func TestClientThroughAdapter(t *testing.T) {
	store, err := audiostore.New(t.TempDir(), logger.Discard())
	require.NoError(t, err)
	blob, err := store.Write(context.Background(), testID, "wav", []byte("RIFF"))
	require.NoError(t, err)

	adapter, err := meetingengine.NewAdapter(newClient(t, store), meetingengine.WithLogger(logger.Discard()))
	require.NoError(t, err)
	defer adapter.Close()

	res, err := adapter.Process(context.Background(), blob.Reference, "wav")
	require.NoError(t, err)
	assert.Equal(t, "Speaker 1", res.Speakers[0].SpeakerID)
}

func TestClientMissingAudio(t *testing.T) {
	store, err := audiostore.New(t.TempDir(), logger.Discard())
	require.NoError(t, err)

	_, err = newClient(t, store).Process(context.Background(), entity.Reference(testID+".wav"), "wav")
	assert.ErrorIs(t, err, entity.ErrNotFound)
}

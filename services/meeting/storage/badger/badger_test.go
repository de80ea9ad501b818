package badger

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xilidan/voicelink/services/meeting/storage"
	"github.com/xilidan/voicelink/services/meeting/storage/storagetest"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBadgerStorage(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Storage {
		s, err := New("", true, testLogger())
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestBadgerReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	rec := storagetest.NewRecord(time.Now().UTC())

	s, err := New(dir, false, testLogger())
	require.NoError(t, err)
	require.NoError(t, s.Create(ctx, rec))
	require.NoError(t, s.Close())

	s, err = New(dir, false, testLogger())
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Get(ctx, rec.MeetingID)
	require.NoError(t, err)
	assert.Equal(t, rec.AudioReference, got.AudioReference)
}

func TestBadgerRequiresDir(t *testing.T) {
	_, err := New("", false, testLogger())
	assert.Error(t, err)
}

func TestBadgerOptions(t *testing.T) {
	opts := newOptions(t.TempDir(), false, testLogger())
	assert.True(t, opts.SyncWrites)
	assert.False(t, opts.InMemory)

	opts = newOptions("", true, testLogger())
	assert.True(t, opts.InMemory)
}

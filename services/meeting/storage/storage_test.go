package storage_test

import (
	"testing"

	"github.com/xilidan/voicelink/services/meeting/storage"
	"github.com/xilidan/voicelink/services/meeting/storage/storagetest"
)

func TestMemoryStorage(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Storage {
		s := storage.New()
		t.Cleanup(func() { s.Close() })
		return s
	})
}

package gen

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xilidan/voicelink/services/meeting/entity"
)

func TestMeetingIDShape(t *testing.T) {
	id := MeetingID()
	assert.True(t, entity.ValidMeetingID(id), id)
	assert.Len(t, id, len(entity.MeetingIDPrefix)+32)
}

func TestMeetingIDUniqueness(t *testing.T) {
	const n = 10000
	const workers = 8

	ids := make(chan string, n)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < n/workers; i++ {
				ids <- MeetingID()
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]struct{}, n)
	for id := range ids {
		_, dup := seen[id]
		require.False(t, dup, "collision on %s", id)
		seen[id] = struct{}{}
	}
	assert.Len(t, seen, n)
}

func TestNilGenerator(t *testing.T) {
	var g UUIDGenerator
	assert.Equal(t, uuid.Nil, g.Next())
}

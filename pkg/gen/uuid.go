package gen

import (
	"encoding/hex"

	"github.com/google/uuid"
	"github.com/xilidan/voicelink/services/meeting/entity"
)

type UUIDGenerator func() uuid.UUID

// UUID draws random (version 4) UUIDs so concurrent callers never coordinate.
func UUID() UUIDGenerator {
	return uuid.New
}

func (g UUIDGenerator) Next() uuid.UUID {
	if g == nil {
		return uuid.Nil
	}

	return g()
}

// MeetingID renders the full 122 random bits as meet_<32 hex>.
func (g UUIDGenerator) MeetingID() string {
	id := g.Next()
	return entity.MeetingIDPrefix + hex.EncodeToString(id[:])
}

func MeetingID() string {
	return UUID().MeetingID()
}

// Package storagetest holds the behaviour every storage.Storage backend must share.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xilidan/voicelink/pkg/gen"
	"github.com/xilidan/voicelink/services/meeting/entity"
	"github.com/xilidan/voicelink/services/meeting/storage"
)

func NewRecord(createdAt time.Time) *entity.MeetingRecord {
	id := gen.MeetingID()
	return entity.NewRecord(id, entity.Reference(id+".wav"), 42, "checksum", createdAt)
}

// Run exercises a backend produced by open; each subtest gets a fresh instance.
func Run(t *testing.T, open func(t *testing.T) storage.Storage) {
	t.Run("CreateGet", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		rec := NewRecord(time.Now().UTC().Truncate(time.Millisecond))

		require.NoError(t, s.Create(ctx, rec))

		got, err := s.Get(ctx, rec.MeetingID)
		require.NoError(t, err)
		assert.Equal(t, rec.MeetingID, got.MeetingID)
		assert.Equal(t, rec.AudioReference, got.AudioReference)
		assert.Equal(t, entity.StatusProcessing, got.Status)
		assert.Equal(t, int64(42), got.AudioSize)
		assert.Nil(t, got.Transcript)
		assert.Nil(t, got.Error)
		assert.True(t, rec.CreatedAt.Equal(got.CreatedAt))
	})

	t.Run("CreateDuplicate", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		rec := NewRecord(time.Now().UTC())

		require.NoError(t, s.Create(ctx, rec))
		err := s.Create(ctx, rec)
		assert.ErrorIs(t, err, entity.ErrDuplicateID)
	})

	t.Run("GetMissing", func(t *testing.T) {
		s := open(t)
		_, err := s.Get(context.Background(), gen.MeetingID())
		assert.ErrorIs(t, err, entity.ErrNotFound)
	})

	t.Run("UpdateMissing", func(t *testing.T) {
		s := open(t)
		_, err := s.Update(context.Background(), gen.MeetingID(), func(*entity.MeetingRecord) error {
			return nil
		})
		assert.ErrorIs(t, err, entity.ErrNotFound)
	})

	t.Run("UpdateComplete", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		rec := NewRecord(time.Now().UTC())
		require.NoError(t, s.Create(ctx, rec))

		result := &entity.EngineResult{
			Transcript: "hello world",
			Speakers: []entity.SpeakerChannel{{
				SpeakerID: "Speaker 1",
				Segments: []entity.TranscriptSegment{{
					SpeakerLabel: "Speaker 1",
					Text:         "hello world",
					Timestamp:    entity.Timestamp(5 * time.Second),
					Confidence:   0.9,
				}},
			}},
			TechnicalTerms: []string{"API"},
		}
		updated, err := s.Update(ctx, rec.MeetingID, func(r *entity.MeetingRecord) error {
			return r.Complete(result, time.Now().UTC())
		})
		require.NoError(t, err)
		assert.Equal(t, entity.StatusCompleted, updated.Status)

		got, err := s.Get(ctx, rec.MeetingID)
		require.NoError(t, err)
		assert.Equal(t, entity.StatusCompleted, got.Status)
		require.NotNil(t, got.Transcript)
		assert.Equal(t, "hello world", *got.Transcript)
		assert.Equal(t, result.Speakers, got.Speakers)
		assert.Equal(t, []string{"API"}, got.TechnicalTerms)
	})

	t.Run("UpdateMutatorErrorLeavesRecord", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		rec := NewRecord(time.Now().UTC())
		require.NoError(t, s.Create(ctx, rec))

		boom := errors.New("boom")
		_, err := s.Update(ctx, rec.MeetingID, func(r *entity.MeetingRecord) error {
			r.Status = entity.StatusFailed
			return boom
		})
		assert.ErrorIs(t, err, boom)

		got, err := s.Get(ctx, rec.MeetingID)
		require.NoError(t, err)
		assert.Equal(t, entity.StatusProcessing, got.Status)
	})

	t.Run("FinalizedRecordIsImmutable", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		rec := NewRecord(time.Now().UTC())
		require.NoError(t, s.Create(ctx, rec))

		_, err := s.Update(ctx, rec.MeetingID, func(r *entity.MeetingRecord) error {
			return r.Fail("engine exploded", time.Now().UTC())
		})
		require.NoError(t, err)

		_, err = s.Update(ctx, rec.MeetingID, func(r *entity.MeetingRecord) error {
			return r.Complete(&entity.EngineResult{Transcript: "late"}, time.Now().UTC())
		})
		assert.ErrorIs(t, err, entity.ErrRecordFinalized)

		got, err := s.Get(ctx, rec.MeetingID)
		require.NoError(t, err)
		assert.Equal(t, entity.StatusFailed, got.Status)
		require.NotNil(t, got.Error)
		assert.Equal(t, "engine exploded", *got.Error)
	})

	t.Run("ConcurrentUpdatesSameID", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		rec := NewRecord(time.Now().UTC())
		require.NoError(t, s.Create(ctx, rec))

		const n = 20
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.Update(ctx, rec.MeetingID, func(r *entity.MeetingRecord) error {
					r.TechnicalTerms = append(r.TechnicalTerms, fmt.Sprintf("term-%d", len(r.TechnicalTerms)))
					return nil
				})
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		got, err := s.Get(ctx, rec.MeetingID)
		require.NoError(t, err)
		assert.Len(t, got.TechnicalTerms, n, "no update may be lost")
	})

	t.Run("ConcurrentCreateSameID", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		rec := NewRecord(time.Now().UTC())

		const n = 10
		var created atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := s.Create(ctx, rec)
				if err == nil {
					created.Add(1)
					return
				}
				assert.ErrorIs(t, err, entity.ErrDuplicateID)
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), created.Load())
	})

	t.Run("ListNewestFirst", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		base := time.Now().UTC().Truncate(time.Second)
		older := NewRecord(base.Add(-time.Minute))
		newer := NewRecord(base)
		require.NoError(t, s.Create(ctx, older))
		require.NoError(t, s.Create(ctx, newer))

		records, err := s.List(ctx)
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, newer.MeetingID, records[0].MeetingID)
		assert.Equal(t, older.MeetingID, records[1].MeetingID)
	})

	t.Run("ReturnedRecordsAreCopies", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		rec := NewRecord(time.Now().UTC())
		require.NoError(t, s.Create(ctx, rec))

		rec.Status = entity.StatusFailed
		got, err := s.Get(ctx, rec.MeetingID)
		require.NoError(t, err)
		got.TechnicalTerms = append(got.TechnicalTerms, "mutated")

		again, err := s.Get(ctx, rec.MeetingID)
		require.NoError(t, err)
		assert.Equal(t, entity.StatusProcessing, again.Status)
		assert.Empty(t, again.TechnicalTerms)
	})
}

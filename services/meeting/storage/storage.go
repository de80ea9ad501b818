package storage

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/xilidan/voicelink/services/meeting/entity"
)

// Mutator edits a private copy of a record; returning an error discards the edit.
type Mutator func(rec *entity.MeetingRecord) error

type Storage interface {
	Create(ctx context.Context, rec *entity.MeetingRecord) error
	Update(ctx context.Context, meetingID string, fn Mutator) (*entity.MeetingRecord, error)
	Get(ctx context.Context, meetingID string) (*entity.MeetingRecord, error)
	List(ctx context.Context) ([]*entity.MeetingRecord, error)
	Close() error
}

type entry struct {
	mu  sync.Mutex
	rec atomic.Pointer[entity.MeetingRecord]
}

type storage struct {
	mu      sync.RWMutex
	records map[string]*entry
}

// New returns the in-memory backend. Writers on one id are serialized by that
// id's entry lock; readers load the current snapshot without waiting on them.
func New() Storage {
	return &storage{
		records: make(map[string]*entry),
	}
}

func (s *storage) Create(ctx context.Context, rec *entity.MeetingRecord) error {
	if rec == nil || rec.MeetingID == "" {
		return fmt.Errorf("create: record without meeting id")
	}

	e := &entry{}
	e.rec.Store(rec.Clone())

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[rec.MeetingID]; exists {
		return fmt.Errorf("create %s: %w", rec.MeetingID, entity.ErrDuplicateID)
	}
	s.records[rec.MeetingID] = e
	return nil
}

func (s *storage) Update(ctx context.Context, meetingID string, fn Mutator) (*entity.MeetingRecord, error) {
	s.mu.RLock()
	e, exists := s.records[meetingID]
	s.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("update %s: %w", meetingID, entity.ErrNotFound)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	next := e.rec.Load().Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	if next.MeetingID != meetingID {
		return nil, fmt.Errorf("update %s: meeting id cannot change", meetingID)
	}
	e.rec.Store(next)
	return next.Clone(), nil
}

func (s *storage) Get(ctx context.Context, meetingID string) (*entity.MeetingRecord, error) {
	s.mu.RLock()
	e, exists := s.records[meetingID]
	s.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("get %s: %w", meetingID, entity.ErrNotFound)
	}
	return e.rec.Load().Clone(), nil
}

func (s *storage) List(ctx context.Context) ([]*entity.MeetingRecord, error) {
	s.mu.RLock()
	records := make([]*entity.MeetingRecord, 0, len(s.records))
	for _, e := range s.records {
		records = append(records, e.rec.Load().Clone())
	}
	s.mu.RUnlock()

	SortNewestFirst(records)
	return records, nil
}

func (s *storage) Close() error {
	return nil
}

func SortNewestFirst(records []*entity.MeetingRecord) {
	slices.SortFunc(records, func(a, b *entity.MeetingRecord) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.MeetingID, b.MeetingID)
	})
}

package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/xilidan/voicelink/services/meeting/entity"
	"github.com/xilidan/voicelink/services/meeting/storage"
)

const (
	recordPrefix = "meeting/record/"

	// Each conflicting round commits at least one writer, so this bounds contention
	// far above what concurrent requests on one id produce.
	maxConflictRetries = 100
)

type store struct {
	db  *badger.DB
	log *slog.Logger
}

type loggerAdapter struct {
	log *slog.Logger
}

var _ badger.Logger = (*loggerAdapter)(nil)

func (l *loggerAdapter) Errorf(msg string, items ...any) {
	l.log.Error(fmt.Sprintf(msg, items...))
}

func (l *loggerAdapter) Warningf(msg string, items ...any) {
	l.log.Warn(fmt.Sprintf(msg, items...))
}

func (l *loggerAdapter) Infof(msg string, items ...any) {
	l.log.Debug(fmt.Sprintf(msg, items...))
}

func (l *loggerAdapter) Debugf(msg string, items ...any) {
	l.log.Debug(fmt.Sprintf(msg, items...))
}

// New opens a badger database at dir, or an in-memory one when inMemory is set.
func New(dir string, inMemory bool, log *slog.Logger) (storage.Storage, error) {
	if !inMemory {
		if dir == "" {
			return nil, fmt.Errorf("badger directory is empty")
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create badger directory: %w", err)
		}
	}
	opts := newOptions(dir, inMemory, log)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	log.Info("badger meeting storage opened",
		slog.String("dir", dir),
		slog.Bool("in_memory", inMemory))

	return &store{
		db:  db,
		log: log,
	}, nil
}

// newOptions syncs every write to disk so a record acknowledged to the client
// survives a crash.
func newOptions(dir string, inMemory bool, log *slog.Logger) badger.Options {
	var opts badger.Options
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(dir).WithSyncWrites(true)
	}
	opts.Logger = &loggerAdapter{log: log.With(slog.String("component", "badger"))}
	opts.Compression = options.None
	return opts
}

func recordKey(meetingID string) []byte {
	return []byte(recordPrefix + meetingID)
}

func (s *store) Create(ctx context.Context, rec *entity.MeetingRecord) error {
	if rec == nil || rec.MeetingID == "" {
		return fmt.Errorf("create: record without meeting id")
	}

	value, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	return s.retry(ctx, func() error {
		return s.db.Update(func(txn *badger.Txn) error {
			_, err := txn.Get(recordKey(rec.MeetingID))
			switch {
			case err == nil:
				return fmt.Errorf("create %s: %w", rec.MeetingID, entity.ErrDuplicateID)
			case !errors.Is(err, badger.ErrKeyNotFound):
				return fmt.Errorf("create %s: %w", rec.MeetingID, err)
			}
			return txn.Set(recordKey(rec.MeetingID), value)
		})
	})
}

func (s *store) Update(ctx context.Context, meetingID string, fn storage.Mutator) (*entity.MeetingRecord, error) {
	var updated *entity.MeetingRecord

	err := s.retry(ctx, func() error {
		return s.db.Update(func(txn *badger.Txn) error {
			rec, err := getRecord(txn, meetingID)
			if err != nil {
				return fmt.Errorf("update %s: %w", meetingID, err)
			}
			if err := fn(rec); err != nil {
				return err
			}
			if rec.MeetingID != meetingID {
				return fmt.Errorf("update %s: meeting id cannot change", meetingID)
			}

			value, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("failed to encode record: %w", err)
			}
			if err := txn.Set(recordKey(meetingID), value); err != nil {
				return err
			}
			updated = rec
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *store) Get(ctx context.Context, meetingID string) (*entity.MeetingRecord, error) {
	var rec *entity.MeetingRecord
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		rec, err = getRecord(txn, meetingID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", meetingID, err)
	}
	return rec, nil
}

func (s *store) List(ctx context.Context) ([]*entity.MeetingRecord, error) {
	var records []*entity.MeetingRecord

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(recordPrefix)
		iter := txn.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			rec, err := decodeItem(iter.Item())
			if err != nil {
				return err
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list: %w", err)
	}

	storage.SortNewestFirst(records)
	return records, nil
}

func (s *store) Close() error {
	return s.db.Close()
}

func (s *store) retry(ctx context.Context, op func() error) error {
	for attempt := 0; ; attempt++ {
		err := op()
		if !errors.Is(err, badger.ErrConflict) || attempt >= maxConflictRetries {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		s.log.Debug("retrying conflicting badger transaction", slog.Int("attempt", attempt+1))
	}
}

func getRecord(txn *badger.Txn, meetingID string) (*entity.MeetingRecord, error) {
	item, err := txn.Get(recordKey(meetingID))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, entity.ErrNotFound
		}
		return nil, err
	}
	return decodeItem(item)
}

func decodeItem(item *badger.Item) (*entity.MeetingRecord, error) {
	var rec entity.MeetingRecord
	err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to decode record %s: %w", item.Key(), err)
	}
	return &rec, nil
}

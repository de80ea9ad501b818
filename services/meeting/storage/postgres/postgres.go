package postgres

import (
	"context"
	stdsql "database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	_ "github.com/lib/pq"
	"github.com/xilidan/voicelink/services/meeting/entity"
	"github.com/xilidan/voicelink/services/meeting/storage"
)

const table = "meetings"

const schema = `CREATE TABLE IF NOT EXISTS meetings (
	id              varchar(64)  PRIMARY KEY,
	audio_reference varchar(80)  NOT NULL UNIQUE,
	format          varchar(8)   NOT NULL,
	audio_size      bigint       NOT NULL,
	audio_checksum  varchar(128) NOT NULL,
	transcript      text,
	speakers        jsonb        NOT NULL DEFAULT '[]',
	technical_terms jsonb        NOT NULL DEFAULT '[]',
	status          varchar(16)  NOT NULL,
	error           text,
	created_at      timestamptz  NOT NULL,
	updated_at      timestamptz  NOT NULL
)`

var columns = []string{
	"id",
	"audio_reference",
	"format",
	"audio_size",
	"audio_checksum",
	"transcript",
	"speakers",
	"technical_terms",
	"status",
	"error",
	"created_at",
	"updated_at",
}

type store struct {
	drv *entsql.Driver
	log *slog.Logger
}

type Config struct {
	User     string
	Password string
	Host     string
	Name     string
	Port     int
	SSLMode  string
}

func (c Config) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s dbname=%s password=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		c.Name,
		c.Password,
		c.SSLMode,
	)
}

// New connects with lib/pq through ent's SQL driver and creates the table if needed.
func New(ctx context.Context, dsn string, log *slog.Logger) (storage.Storage, error) {
	drv, err := entsql.Open(dialect.Postgres, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	if err := drv.DB().PingContext(ctx); err != nil {
		drv.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	if err := drv.Exec(ctx, schema, []any{}, nil); err != nil {
		drv.Close()
		return nil, fmt.Errorf("failed to create meetings table: %w", err)
	}
	log.Info("postgres meeting storage ready")

	return &store{
		drv: drv,
		log: log,
	}, nil
}

func builder() *entsql.DialectBuilder {
	return entsql.Dialect(dialect.Postgres)
}

func (s *store) Create(ctx context.Context, rec *entity.MeetingRecord) error {
	if rec == nil || rec.MeetingID == "" {
		return fmt.Errorf("create: record without meeting id")
	}

	speakers, terms, err := encodeJSON(rec)
	if err != nil {
		return err
	}

	query, args := builder().Insert(table).
		Columns(columns...).
		Values(
			rec.MeetingID,
			rec.AudioReference.String(),
			rec.Format,
			rec.AudioSize,
			rec.AudioChecksum,
			nullString(rec.Transcript),
			speakers,
			terms,
			string(rec.Status),
			nullString(rec.Error),
			rec.CreatedAt,
			rec.UpdatedAt,
		).
		OnConflict(entsql.ConflictColumns("id"), entsql.DoNothing()).
		Query()

	var res stdsql.Result
	if err := s.drv.Exec(ctx, query, args, &res); err != nil {
		s.log.Error("failed to insert meeting", slog.String("meeting_id", rec.MeetingID), slog.String("error", err.Error()))
		return fmt.Errorf("create %s: %w", rec.MeetingID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("create %s: %w", rec.MeetingID, err)
	}
	if affected == 0 {
		return fmt.Errorf("create %s: %w", rec.MeetingID, entity.ErrDuplicateID)
	}
	return nil
}

// Update locks the row with SELECT ... FOR UPDATE so writers on one id serialize.
func (s *store) Update(ctx context.Context, meetingID string, fn storage.Mutator) (*entity.MeetingRecord, error) {
	tx, err := s.drv.Tx(ctx)
	if err != nil {
		return nil, fmt.Errorf("update %s: begin: %w", meetingID, err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	query, args := builder().Select(columns...).
		From(entsql.Table(table)).
		Where(entsql.EQ("id", meetingID)).
		ForUpdate().
		Query()
	rows := &entsql.Rows{}
	if err := tx.Query(ctx, query, args, rows); err != nil {
		return nil, fmt.Errorf("update %s: %w", meetingID, err)
	}
	records, err := scanRecords(rows)
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", meetingID, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("update %s: %w", meetingID, entity.ErrNotFound)
	}

	rec := records[0]
	if err := fn(rec); err != nil {
		return nil, err
	}
	if rec.MeetingID != meetingID {
		return nil, fmt.Errorf("update %s: meeting id cannot change", meetingID)
	}

	speakers, terms, err := encodeJSON(rec)
	if err != nil {
		return nil, err
	}
	query, args = builder().Update(table).
		Set("transcript", nullString(rec.Transcript)).
		Set("speakers", speakers).
		Set("technical_terms", terms).
		Set("status", string(rec.Status)).
		Set("error", nullString(rec.Error)).
		Set("updated_at", rec.UpdatedAt).
		Where(entsql.EQ("id", meetingID)).
		Query()
	if err := tx.Exec(ctx, query, args, nil); err != nil {
		return nil, fmt.Errorf("update %s: %w", meetingID, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("update %s: commit: %w", meetingID, err)
	}
	committed = true
	return rec, nil
}

func (s *store) Get(ctx context.Context, meetingID string) (*entity.MeetingRecord, error) {
	query, args := builder().Select(columns...).
		From(entsql.Table(table)).
		Where(entsql.EQ("id", meetingID)).
		Query()

	rows := &entsql.Rows{}
	if err := s.drv.Query(ctx, query, args, rows); err != nil {
		return nil, fmt.Errorf("get %s: %w", meetingID, err)
	}
	records, err := scanRecords(rows)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", meetingID, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("get %s: %w", meetingID, entity.ErrNotFound)
	}
	return records[0], nil
}

func (s *store) List(ctx context.Context) ([]*entity.MeetingRecord, error) {
	query, args := builder().Select(columns...).
		From(entsql.Table(table)).
		OrderBy(entsql.Desc("created_at"), "id").
		Query()

	rows := &entsql.Rows{}
	if err := s.drv.Query(ctx, query, args, rows); err != nil {
		return nil, fmt.Errorf("list: %w", err)
	}
	records, err := scanRecords(rows)
	if err != nil {
		return nil, fmt.Errorf("list: %w", err)
	}
	return records, nil
}

func (s *store) Close() error {
	return s.drv.Close()
}

func scanRecords(rows *entsql.Rows) ([]*entity.MeetingRecord, error) {
	defer rows.Close()

	var records []*entity.MeetingRecord
	for rows.Next() {
		var (
			rec        entity.MeetingRecord
			ref        string
			status     string
			transcript stdsql.NullString
			errMsg     stdsql.NullString
			speakers   []byte
			terms      []byte
		)
		if err := rows.Scan(
			&rec.MeetingID,
			&ref,
			&rec.Format,
			&rec.AudioSize,
			&rec.AudioChecksum,
			&transcript,
			&speakers,
			&terms,
			&status,
			&errMsg,
			&rec.CreatedAt,
			&rec.UpdatedAt,
		); err != nil {
			return nil, err
		}

		rec.AudioReference = entity.Reference(ref)
		rec.Status = entity.Status(status)
		if transcript.Valid {
			rec.Transcript = &transcript.String
		}
		if errMsg.Valid {
			rec.Error = &errMsg.String
		}
		if err := json.Unmarshal(speakers, &rec.Speakers); err != nil {
			return nil, fmt.Errorf("failed to decode speakers: %w", err)
		}
		if err := json.Unmarshal(terms, &rec.TechnicalTerms); err != nil {
			return nil, fmt.Errorf("failed to decode technical terms: %w", err)
		}
		records = append(records, &rec)
	}
	return records, rows.Err()
}

func encodeJSON(rec *entity.MeetingRecord) (string, string, error) {
	speakers := rec.Speakers
	if speakers == nil {
		speakers = []entity.SpeakerChannel{}
	}
	terms := rec.TechnicalTerms
	if terms == nil {
		terms = []string{}
	}

	sp, err := json.Marshal(speakers)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode speakers: %w", err)
	}
	tt, err := json.Marshal(terms)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode technical terms: %w", err)
	}
	return string(sp), string(tt), nil
}

func nullString(s *string) stdsql.NullString {
	if s == nil {
		return stdsql.NullString{}
	}
	return stdsql.NullString{String: *s, Valid: true}
}

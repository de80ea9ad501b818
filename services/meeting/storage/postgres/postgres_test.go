package postgres

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xilidan/voicelink/services/meeting/storage"
	"github.com/xilidan/voicelink/services/meeting/storage/storagetest"
)

func TestPostgresStorage(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}

	storagetest.Run(t, func(t *testing.T) storage.Storage {
		ctx := context.Background()
		s, err := New(ctx, dsn, slog.New(slog.NewTextHandler(io.Discard, nil)))
		require.NoError(t, err)
		require.NoError(t, s.(*store).drv.Exec(ctx, "TRUNCATE meetings", []any{}, nil))
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestConfigDSN(t *testing.T) {
	cfg := Config{
		User:     "voicelink",
		Password: "secret",
		Host:     "db",
		Name:     "meetings",
		Port:     5432,
		SSLMode:  "disable",
	}
	assert.Equal(t, "host=db port=5432 user=voicelink dbname=meetings password=secret sslmode=disable", cfg.DSN())
}

func TestQueriesUsePostgresPlaceholders(t *testing.T) {
	query, args := builder().Select(columns...).
		From(entsql.Table(table)).
		Where(entsql.EQ("id", "meet_x")).
		Query()
	assert.Contains(t, query, `FROM "meetings"`)
	assert.Contains(t, query, `"id" = $1`)
	assert.Equal(t, []any{"meet_x"}, args)
}

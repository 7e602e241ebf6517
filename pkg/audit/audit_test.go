package audit_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	_ "github.com/mattn/go-sqlite3"
	"github.com/platinummonkey/gatehouse/pkg/audit"
	"github.com/platinummonkey/gatehouse/pkg/contextkeys"
	"github.com/platinummonkey/gatehouse/pkg/storage/postgres"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, postgres.Migrate(context.Background(), db))
	return db
}

func int64Ptr(v int64) *int64 { return &v }

func TestNewEvent(t *testing.T) {
	ctx := contextkeys.WithRequestID(context.Background(), "req-1")
	event := audit.NewEvent(ctx, audit.EventTypeAccessDenied, audit.EventStatusDenied)

	assert.Equal(t, "req-1", event.RequestID)
	assert.Equal(t, audit.EventTypeAccessDenied, event.Type)
	assert.Equal(t, time.UTC, event.Timestamp.Location())
}

func TestDBLogger_LogAndSearch(t *testing.T) {
	db := setupDB(t)
	logger := audit.NewDBLogger(db)
	ctx := context.Background()
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	denied := &audit.Event{
		Timestamp: base,
		Type:      audit.EventTypeAccessDenied,
		Status:    audit.EventStatusDenied,
		UserID:    int64Ptr(2),
		Subject:   "user id=2",
		Operation: "roles.create",
		Target:    "organization id=10",
		Method:    "POST",
		Path:      "/v2/organizations/10/roles",
		Message:   "missing role.create",
		Metadata:  map[string]string{"mode": "hard"},
	}
	locked := &audit.Event{
		Timestamp: base.Add(time.Minute),
		Type:      audit.EventTypeAccountLocked,
		Status:    audit.EventStatusSuccess,
		UserID:    int64Ptr(3),
		Target:    "api_key",
	}
	anonymous := &audit.Event{
		Timestamp: base.Add(2 * time.Minute),
		Type:      audit.EventTypeAccountLocked,
		Status:    audit.EventStatusSuccess,
		Target:    "email",
	}
	for _, e := range []*audit.Event{denied, locked, anonymous} {
		require.NoError(t, logger.Log(ctx, e))
		assert.NotEmpty(t, e.ID)
	}

	t.Run("all newest first", func(t *testing.T) {
		events, err := logger.Search(ctx, audit.SearchFilter{})
		require.NoError(t, err)
		require.Len(t, events, 3)
		assert.Equal(t, anonymous.ID, events[0].ID)
		assert.Nil(t, events[0].UserID)
		assert.Equal(t, denied.ID, events[2].ID)
	})

	t.Run("round trips fields", func(t *testing.T) {
		events, err := logger.Search(ctx, audit.SearchFilter{UserID: int64Ptr(2)})
		require.NoError(t, err)
		require.Len(t, events, 1)
		got := events[0]
		assert.Equal(t, "roles.create", got.Operation)
		assert.Equal(t, "organization id=10", got.Target)
		assert.Equal(t, map[string]string{"mode": "hard"}, got.Metadata)
		assert.Equal(t, int64(2), *got.UserID)
		assert.True(t, base.Equal(got.Timestamp))
	})

	t.Run("by type", func(t *testing.T) {
		events, err := logger.Search(ctx, audit.SearchFilter{Types: []audit.EventType{audit.EventTypeAccountLocked}})
		require.NoError(t, err)
		assert.Len(t, events, 2)
	})

	t.Run("time range and paging", func(t *testing.T) {
		start := base.Add(30 * time.Second)
		events, err := logger.Search(ctx, audit.SearchFilter{StartTime: &start, Limit: 1, Offset: 1})
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, locked.ID, events[0].ID)
	})
}

func TestDBLogger_InsertError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO audit_events").WillReturnError(errors.New("connection reset"))

	err = audit.NewDBLogger(db).Log(context.Background(), audit.NewEvent(context.Background(), audit.EventTypeAccountLocked, audit.EventStatusSuccess))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to insert audit event")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLogrusLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.JSONFormatter{})

	event := &audit.Event{
		Type:      audit.EventTypeAccountLocked,
		Status:    audit.EventStatusSuccess,
		UserID:    int64Ptr(7),
		Target:    "user_id",
		RequestID: "req-9",
		Message:   "account locked",
		Metadata:  map[string]string{"violations": "5"},
	}
	require.NoError(t, audit.NewLogrusLogger(logger).Log(context.Background(), event))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, true, entry["audit"])
	assert.Equal(t, "autolock.account_locked", entry["event_type"])
	assert.Equal(t, float64(7), entry["user_id"])
	assert.Equal(t, "req-9", entry["request_id"])
	assert.Equal(t, "5", entry["meta_violations"])
	assert.Equal(t, "warning", entry["level"])
}

type failingLogger struct{ err error }

func (f failingLogger) Log(context.Context, *audit.Event) error { return f.err }

type countingLogger struct{ n int }

func (c *countingLogger) Log(context.Context, *audit.Event) error {
	c.n++
	return nil
}

func TestMultiLogger_TriesEverySink(t *testing.T) {
	first, last := &countingLogger{}, &countingLogger{}
	m := audit.NewMultiLogger(first, failingLogger{err: errors.New("disk full")}, last)

	err := m.Log(context.Background(), &audit.Event{Type: audit.EventTypeAccessDenied})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, 1, first.n)
	assert.Equal(t, 1, last.n)

	assert.NoError(t, audit.NewMultiLogger().Log(context.Background(), &audit.Event{}))
}

func TestRecord_ReportsFailureOnFallback(t *testing.T) {
	fallback, hook := test.NewNullLogger()

	audit.Record(context.Background(), failingLogger{err: errors.New("boom")}, fallback, &audit.Event{Type: audit.EventTypeAccountLocked})
	require.Len(t, hook.Entries, 1)
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
	assert.Equal(t, "failed to record audit event", hook.LastEntry().Message)

	hook.Reset()
	audit.Record(context.Background(), nil, fallback, &audit.Event{})
	audit.Record(context.Background(), audit.Nop(), fallback, &audit.Event{})
	assert.Empty(t, hook.Entries)
}

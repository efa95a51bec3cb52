package history

import (
	"context"
	"database/sql"
	"os"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// getTestDB returns a live database connection, skipping the test when
// TEST_DATABASE_URL is not set.
func getTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping PostgreSQL tests")
	}

	db, err := sql.Open("postgres", dbURL)
	require.NoError(t, err)

	_, err = db.Exec("DROP TABLE IF EXISTS interview_history")
	require.NoError(t, err)
	return db
}

func TestPostgresStore_RoundTrip(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()

	store, err := NewPostgresStore(db)
	require.NoError(t, err)

	ctx := context.Background()
	entry := &Entry{
		SessionID:  "session-1",
		ChunkID:    "chunk-1",
		Kind:       EntryTranscript,
		Timestamp:  2.5,
		Transcript: "patient had high fever",
	}
	require.NoError(t, store.Save(ctx, entry))
	assert.NotZero(t, entry.ID)
	assert.False(t, entry.CreatedAt.IsZero())

	entries, err := store.ListBySession(ctx, "session-1", 100, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "patient had high fever", entries[0].Transcript)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	require.NoError(t, store.DeleteSession(ctx, "session-1"))
	count, err = store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mock.ExpectPing()
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS interview_history").
		WillReturnResult(sqlmock.NewResult(0, 0))

	store, err := NewPostgresStore(db)
	require.NoError(t, err)
	return store, mock
}

func TestPostgresStore_SaveQuery(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO interview_history")).
		WithArgs("session-1", "chunk-1", "inference", 1.5, "", "Sepsis", 0.7).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(7), time.Now()))

	entry := &Entry{
		SessionID:  "session-1",
		ChunkID:    "chunk-1",
		Kind:       EntryInference,
		Timestamp:  1.5,
		COD:        "Sepsis",
		Confidence: 0.7,
	}
	require.NoError(t, store.Save(context.Background(), entry))
	assert.Equal(t, int64(7), entry.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CountQuery(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM interview_history")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(42)))

	count, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(42), count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteSessionQuery(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM interview_history WHERE session_id = $1")).
		WithArgs("session-1").
		WillReturnResult(sqlmock.NewResult(0, 3))

	require.NoError(t, store.DeleteSession(context.Background(), "session-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewPostgresStore_RequiresConnection(t *testing.T) {
	_, err := NewPostgresStore(nil)
	require.Error(t, err)
}

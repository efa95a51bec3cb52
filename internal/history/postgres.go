package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"time"

	_ "github.com/lib/pq"
)

// PostgresStore implements Store using PostgreSQL, for deployments where
// several interview servers share one history database.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a store over an existing connection and ensures
// the schema exists.
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := createPostgresSchema(db); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromURL creates a store from a connection URL.
func NewPostgresStoreFromURL(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	store, err := NewPostgresStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func createPostgresSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS interview_history (
		id BIGSERIAL PRIMARY KEY,
		session_id TEXT NOT NULL,
		chunk_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		timestamp DOUBLE PRECISION NOT NULL DEFAULT 0,
		transcript TEXT DEFAULT '',
		cod TEXT DEFAULT '',
		confidence DOUBLE PRECISION DEFAULT 0,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_history_session ON interview_history(session_id);
	CREATE INDEX IF NOT EXISTS idx_history_created ON interview_history(created_at);
	`
	_, err := db.Exec(schema)
	return err
}

// Save appends one entry.
func (s *PostgresStore) Save(ctx context.Context, entry *Entry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	query := `
		INSERT INTO interview_history (
			session_id, chunk_id, kind, timestamp, transcript, cod, confidence, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		RETURNING id, created_at
	`

	err := s.db.QueryRowContext(ctx, query,
		entry.SessionID, entry.ChunkID, string(entry.Kind),
		entry.Timestamp, entry.Transcript, entry.COD, entry.Confidence,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert: %w", err)
	}
	return nil
}

// ListBySession returns a session's entries oldest-first.
func (s *PostgresStore) ListBySession(ctx context.Context, sessionID string, limit, offset int) ([]*Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, chunk_id, kind, timestamp, transcript, cod, confidence, created_at
		FROM interview_history
		WHERE session_id = $1
		ORDER BY id ASC
		LIMIT $2 OFFSET $3
	`, sessionID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	var result []*Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}

// Count returns the total number of stored entries.
func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM interview_history").Scan(&count)
	return count, err
}

// DeleteSession removes all entries for a session.
func (s *PostgresStore) DeleteSession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM interview_history WHERE session_id = $1", sessionID)
	return err
}

// ExportJSON writes every stored entry to writer.
func (s *PostgresStore) ExportJSON(ctx context.Context, writer io.Writer) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, chunk_id, kind, timestamp, transcript, cod, confidence, created_at
		FROM interview_history
		ORDER BY id ASC
		LIMIT $1
	`, maxExportLimit)
	if err != nil {
		return fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	var all []*Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return fmt.Errorf("failed to scan row: %w", err)
		}
		all = append(all, entry)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	export := &Export{
		Version:    "1.0",
		ExportedAt: time.Now(),
		Count:      len(all),
		Entries:    all,
	}
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(export)
}

// Close closes the store and releases resources.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

var _ Store = (*PostgresStore)(nil)

package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite. The default backend: one file,
// no external service.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore opens (or creates) the database file and schema.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL mode: the read loop and inference tasks write concurrently.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	if err := createSQLiteSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{db: db, dbPath: dbPath}, nil
}

func createSQLiteSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS interview_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		chunk_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		timestamp REAL NOT NULL DEFAULT 0,
		transcript TEXT DEFAULT '',
		cod TEXT DEFAULT '',
		confidence REAL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_history_session ON interview_history(session_id);
	CREATE INDEX IF NOT EXISTS idx_history_created ON interview_history(created_at);
	`

	_, err := db.Exec(schema)
	return err
}

// scanner is an interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(s scanner) (*Entry, error) {
	entry := &Entry{}
	var kind string
	err := s.Scan(
		&entry.ID, &entry.SessionID, &entry.ChunkID, &kind,
		&entry.Timestamp, &entry.Transcript, &entry.COD,
		&entry.Confidence, &entry.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	entry.Kind = EntryKind(kind)
	return entry, nil
}

// Save appends one entry.
func (s *SQLiteStore) Save(ctx context.Context, entry *Entry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	now := time.Now()
	entry.CreatedAt = now

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO interview_history (
			session_id, chunk_id, kind, timestamp, transcript, cod, confidence, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		entry.SessionID, entry.ChunkID, string(entry.Kind),
		entry.Timestamp, entry.Transcript, entry.COD, entry.Confidence, now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get insert ID: %w", err)
	}
	entry.ID = id
	return nil
}

// ListBySession returns a session's entries oldest-first.
func (s *SQLiteStore) ListBySession(ctx context.Context, sessionID string, limit, offset int) ([]*Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, chunk_id, kind, timestamp, transcript, cod, confidence, created_at
		FROM interview_history
		WHERE session_id = ?
		ORDER BY id ASC
		LIMIT ? OFFSET ?
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
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM interview_history").Scan(&count)
	return count, err
}

// DeleteSession removes all entries for a session.
func (s *SQLiteStore) DeleteSession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM interview_history WHERE session_id = ?", sessionID)
	return err
}

const maxExportLimit = 1000000

// ExportJSON writes every stored entry to writer.
func (s *SQLiteStore) ExportJSON(ctx context.Context, writer io.Writer) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, chunk_id, kind, timestamp, transcript, cod, confidence, created_at
		FROM interview_history
		ORDER BY id ASC
		LIMIT ?
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
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ Store = (*SQLiteStore)(nil)

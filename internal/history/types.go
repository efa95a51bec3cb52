// Package history persists verbal-autopsy interview activity: per-session
// chunk transcripts and cause-of-death inference results, for later review
// and export.
package history

import (
	"context"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/coda-va-server/internal/domain"
)

// EntryKind discriminates the two record shapes stored per session.
type EntryKind string

const (
	EntryTranscript EntryKind = "transcript"
	EntryInference  EntryKind = "inference"
)

// Entry is one persisted interview event. Transcript entries carry the
// recognized text; inference entries carry the cause-of-death estimate.
type Entry struct {
	ID         int64     `json:"id,omitempty"`
	SessionID  string    `json:"session_id"`
	ChunkID    string    `json:"chunk_id"`
	Kind       EntryKind `json:"kind"`
	Timestamp  float64   `json:"timestamp"` // audio-stream position in seconds
	Transcript string    `json:"transcript,omitempty"`
	COD        string    `json:"cod,omitempty"`
	Confidence float64   `json:"confidence,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Validate rejects entries that cannot be attributed to a session or that
// carry an unknown kind.
func (e *Entry) Validate() error {
	if e.SessionID == "" {
		return domain.NewCodingError(domain.ErrValidation, "history entry requires a session id", "")
	}
	if e.Kind != EntryTranscript && e.Kind != EntryInference {
		return domain.NewCodingError(domain.ErrValidation, "unknown history entry kind", string(e.Kind))
	}
	return nil
}

// Store defines interview history storage operations.
type Store interface {
	// Save appends one entry, filling its ID and CreatedAt.
	Save(ctx context.Context, entry *Entry) error

	// ListBySession returns a session's entries oldest-first with pagination.
	ListBySession(ctx context.Context, sessionID string, limit, offset int) ([]*Entry, error)

	// Count returns the total number of stored entries.
	Count(ctx context.Context) (int64, error)

	// DeleteSession removes all entries for a session.
	DeleteSession(ctx context.Context, sessionID string) error

	// ExportJSON writes every stored entry to writer as a JSON document.
	ExportJSON(ctx context.Context, writer io.Writer) error

	// Close closes the store and releases resources.
	Close() error
}

// Export is the JSON export format.
type Export struct {
	Version    string    `json:"version"`
	ExportedAt time.Time `json:"exported_at"`
	Count      int       `json:"count"`
	Entries    []*Entry  `json:"entries"`
}

// SessionRecorder adapts a Store to the streaming session's recording
// boundary. Persistence failures are returned to the caller for logging but
// never interrupt a live interview.
type SessionRecorder struct {
	store  Store
	logger *logrus.Logger
}

// NewSessionRecorder creates a recorder over store.
func NewSessionRecorder(store Store, logger *logrus.Logger) *SessionRecorder {
	return &SessionRecorder{store: store, logger: logger}
}

// RecordTranscript persists one transcribed chunk.
func (r *SessionRecorder) RecordTranscript(ctx context.Context, sessionID, chunkID string, timestamp float64, transcript string) error {
	return r.store.Save(ctx, &Entry{
		SessionID:  sessionID,
		ChunkID:    chunkID,
		Kind:       EntryTranscript,
		Timestamp:  timestamp,
		Transcript: transcript,
	})
}

// RecordInference persists one inference result.
func (r *SessionRecorder) RecordInference(ctx context.Context, sessionID string, result domain.InferenceResult) error {
	return r.store.Save(ctx, &Entry{
		SessionID:  sessionID,
		ChunkID:    result.ChunkID,
		Kind:       EntryInference,
		Timestamp:  result.Timestamp,
		COD:        result.COD,
		Confidence: result.Confidence,
	})
}

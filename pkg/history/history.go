// Package history defines the storage interface for finished translation
// sessions. A session is persisted once, at the end of its run, as a full
// record of every utterance the pipeline finalized.
package history

import (
	"context"
	"errors"
	"time"
)

// ErrSessionNotFound is returned by [Store.GetSession] when no session with
// the requested ID exists.
var ErrSessionNotFound = errors.New("history: session not found")

// SessionRecord is one finished translation session.
type SessionRecord struct {
	// ID is the unique session identifier.
	ID string

	// SourceLanguage and TargetLanguage are the BCP-47 tags of the
	// translation pair.
	SourceLanguage string
	TargetLanguage string

	// Voice is the synthesis voice the session was configured with.
	Voice string

	// StartedAt and EndedAt bound the session's wall-clock lifetime.
	StartedAt time.Time
	EndedAt   time.Time

	// Utterances holds the final state of every utterance, in sequence order.
	Utterances []UtteranceRecord
}

// UtteranceRecord is the final state of one utterance within a session.
type UtteranceRecord struct {
	Seq         uint64
	SourceText  string
	Translation string
	AudioRef    string
	Status      string
	ErrKind     string
	Retries     int
}

// Store persists finished sessions.
// All methods must be safe for concurrent use.
type Store interface {
	// SaveSession writes rec and all its utterances atomically. Saving a
	// session ID that already exists replaces the stored record.
	SaveSession(ctx context.Context, rec SessionRecord) error

	// GetSession returns the session with the given ID, including its
	// utterances in sequence order. Returns [ErrSessionNotFound] if absent.
	GetSession(ctx context.Context, id string) (SessionRecord, error)

	// ListSessions returns up to limit sessions ordered newest first,
	// without their utterances. limit <= 0 means no limit.
	ListSessions(ctx context.Context, limit int) ([]SessionRecord, error)
}

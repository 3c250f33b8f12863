// Package mock provides an in-memory test double for the history.Store
// interface.
package mock

import (
	"context"
	"sync"

	"github.com/canning1295/RealTimeTranslate/pkg/history"
)

// Store is a mock implementation of history.Store backed by a map.
type Store struct {
	mu sync.Mutex

	// Err, if non-nil, is returned by every method.
	Err error

	// Saved records every SaveSession call in order, including overwrites.
	Saved []history.SessionRecord

	sessions map[string]history.SessionRecord
	order    []string
}

// Compile-time assertion that Store satisfies history.Store.
var _ history.Store = (*Store)(nil)

// SaveSession records rec and stores it under its ID.
func (s *Store) SaveSession(_ context.Context, rec history.SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	if s.sessions == nil {
		s.sessions = make(map[string]history.SessionRecord)
	}
	if _, exists := s.sessions[rec.ID]; !exists {
		s.order = append(s.order, rec.ID)
	}
	s.sessions[rec.ID] = rec
	s.Saved = append(s.Saved, rec)
	return nil
}

// GetSession returns the stored record for id.
func (s *Store) GetSession(_ context.Context, id string) (history.SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return history.SessionRecord{}, s.Err
	}
	rec, ok := s.sessions[id]
	if !ok {
		return history.SessionRecord{}, history.ErrSessionNotFound
	}
	return rec, nil
}

// ListSessions returns stored sessions newest first, without utterances.
func (s *Store) ListSessions(_ context.Context, limit int) ([]history.SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	var out []history.SessionRecord
	for i := len(s.order) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		rec := s.sessions[s.order[i]]
		rec.Utterances = nil
		out = append(out, rec)
	}
	return out, nil
}

// SaveCount returns the number of SaveSession calls. Thread-safe.
func (s *Store) SaveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Saved)
}

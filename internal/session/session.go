// Package session holds re-anchor sessions: the transient state between a
// user choosing to re-anchor an annotation and confirming or cancelling it.
// At most one session is active per page and sessions never expire.
package session

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrSessionActive = errors.New("re-anchor session already active for page")
	ErrNoSession     = errors.New("no re-anchor session for page")
)

// ReanchorSession records which annotation is awaiting a new selection.
type ReanchorSession struct {
	PageURL      string    `json:"page_url"`
	AnnotationID string    `json:"annotation_id"`
	StartedAt    time.Time `json:"started_at"`
}

// Store keeps at most one ReanchorSession per page.
type Store interface {
	// Start fails with ErrSessionActive if the page already has a session.
	Start(ctx context.Context, s ReanchorSession) error
	Active(ctx context.Context, pageURL string) (ReanchorSession, error)
	// End removes and returns the page's session, or ErrNoSession.
	End(ctx context.Context, pageURL string) (ReanchorSession, error)
}

// MemoryStore implements Store for a single process
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]ReanchorSession
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]ReanchorSession)}
}

func (m *MemoryStore) Start(_ context.Context, s ReanchorSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.PageURL]; ok {
		return ErrSessionActive
	}
	m.sessions[s.PageURL] = s
	return nil
}

func (m *MemoryStore) Active(_ context.Context, pageURL string) (ReanchorSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[pageURL]
	if !ok {
		return ReanchorSession{}, ErrNoSession
	}
	return s, nil
}

func (m *MemoryStore) End(_ context.Context, pageURL string) (ReanchorSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[pageURL]
	if !ok {
		return ReanchorSession{}, ErrNoSession
	}
	delete(m.sessions, pageURL)
	return s, nil
}

// Package memstore provides in-memory implementations of the persistence
// interfaces, used in tests and when the server runs without a database.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/legalsathi/sathi/internal/auth"
	"github.com/legalsathi/sathi/internal/store"
	"github.com/legalsathi/sathi/internal/transcript"
)

var (
	_ auth.Store            = (*Store)(nil)
	_ store.TranscriptStore = (*Store)(nil)
	_ store.DocumentStore   = (*Store)(nil)
)

// Store keeps all records in maps guarded by a single mutex.
type Store struct {
	mu          sync.Mutex
	users       map[string]*auth.User // by ID
	transcripts map[string][]store.SessionEntry
	documents   map[string]*store.Document
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		users:       make(map[string]*auth.User),
		transcripts: make(map[string][]store.SessionEntry),
		documents:   make(map[string]*store.Document),
	}
}

// CreateUser implements [auth.Store].
func (s *Store) CreateUser(_ context.Context, u *auth.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Email == u.Email {
			return auth.ErrEmailTaken
		}
	}
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

// UserByEmail implements [auth.Store].
func (s *Store) UserByEmail(_ context.Context, email string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, auth.ErrUserNotFound
}

// UserByID implements [auth.Store].
func (s *Store) UserByID(_ context.Context, id string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, auth.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

// WriteEntry implements [store.TranscriptStore].
func (s *Store) WriteEntry(_ context.Context, sessionID string, e transcript.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcripts[sessionID] = append(s.transcripts[sessionID], store.SessionEntry{
		SessionID: sessionID,
		Role:      e.Role,
		Text:      e.Text,
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

// Entries implements [store.TranscriptStore].
func (s *Store) Entries(_ context.Context, sessionID string) ([]store.SessionEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := make([]store.SessionEntry, len(s.transcripts[sessionID]))
	copy(entries, s.transcripts[sessionID])
	return entries, nil
}

// SaveDocument implements [store.DocumentStore].
func (s *Store) SaveDocument(_ context.Context, d *store.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *d
	s.documents[d.ID] = &cp
	return nil
}

// UpdateAnalysis implements [store.DocumentStore].
func (s *Store) UpdateAnalysis(_ context.Context, id, analysis string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.documents[id]
	if !ok {
		return store.ErrNotFound
	}
	d.Analysis = analysis
	return nil
}

// ListByOwner implements [store.DocumentStore].
func (s *Store) ListByOwner(_ context.Context, ownerID string) ([]store.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var docs []store.Document
	for _, d := range s.documents {
		if d.OwnerID == ownerID {
			docs = append(docs, *d)
		}
	}
	sort.Slice(docs, func(i, j int) bool {
		return docs[i].UploadedAt.After(docs[j].UploadedAt)
	})
	return docs, nil
}

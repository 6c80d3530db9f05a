// Package store defines the persistence interfaces for voice transcripts and
// uploaded legal documents. Implementations live in the postgres and memstore
// subpackages.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/legalsathi/sathi/internal/transcript"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// SessionEntry is one archived line of a voice session transcript.
type SessionEntry struct {
	SessionID string
	Role      transcript.Role
	Text      string
	CreatedAt time.Time
}

// TranscriptStore archives finished voice transcript entries.
type TranscriptStore interface {
	// WriteEntry appends one transcript entry under sessionID.
	WriteEntry(ctx context.Context, sessionID string, e transcript.Entry) error

	// Entries returns all entries for sessionID, oldest first.
	Entries(ctx context.Context, sessionID string) ([]SessionEntry, error)
}

// Document is an uploaded legal document and its analysis result.
type Document struct {
	ID         string
	OwnerID    string
	Name       string
	MIMEType   string
	Analysis   string
	UploadedAt time.Time
}

// DocumentStore persists uploaded documents and their analyses.
type DocumentStore interface {
	// SaveDocument inserts a new document record.
	SaveDocument(ctx context.Context, d *Document) error

	// UpdateAnalysis sets the analysis text for an existing document.
	// Returns ErrNotFound when the document does not exist.
	UpdateAnalysis(ctx context.Context, id, analysis string) error

	// ListByOwner returns the owner's documents, newest first.
	ListByOwner(ctx context.Context, ownerID string) ([]Document, error)
}

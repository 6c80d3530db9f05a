// Package postgres provides the PostgreSQL-backed persistence layer: user
// accounts, voice transcript archives and uploaded documents.
//
// All tables share a single [pgxpool.Pool]. The schema is created on startup
// via [Migrate], which is idempotent and safe to run on every boot.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/legalsathi/sathi/internal/auth"
	"github.com/legalsathi/sathi/internal/store"
	"github.com/legalsathi/sathi/internal/transcript"
)

// Compile-time interface checks.
var (
	_ auth.Store            = (*Store)(nil)
	_ store.TranscriptStore = (*Store)(nil)
	_ store.DocumentStore   = (*Store)(nil)
)

const ddlUsers = `
CREATE TABLE IF NOT EXISTS users (
    id            TEXT         PRIMARY KEY,
    name          TEXT         NOT NULL,
    email         TEXT         NOT NULL UNIQUE,
    role          TEXT         NOT NULL,
    verified      BOOLEAN      NOT NULL DEFAULT true,
    avatar_url    TEXT         NOT NULL DEFAULT '',
    password_hash BYTEA        NOT NULL,
    created_at    TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_users_email ON users (email);
`

const ddlTranscripts = `
CREATE TABLE IF NOT EXISTS voice_transcripts (
    id          BIGSERIAL    PRIMARY KEY,
    session_id  TEXT         NOT NULL,
    role        TEXT         NOT NULL,
    text        TEXT         NOT NULL,
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_voice_transcripts_session
    ON voice_transcripts (session_id, created_at);
`

const ddlDocuments = `
CREATE TABLE IF NOT EXISTS documents (
    id           TEXT         PRIMARY KEY,
    owner_id     TEXT         NOT NULL,
    name         TEXT         NOT NULL,
    mime_type    TEXT         NOT NULL,
    analysis     TEXT         NOT NULL DEFAULT '',
    uploaded_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_documents_owner
    ON documents (owner_id, uploaded_at DESC);
`

// Migrate ensures all required tables and indexes exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range []string{ddlUsers, ddlTranscripts, ddlDocuments} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return nil
}

// Store is the PostgreSQL persistence layer. All methods are safe for
// concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to the database at dsn, verifies the connection and runs the
// schema migration.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// Pool exposes the underlying connection pool for health checks.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// Close releases all pooled connections.
func (s *Store) Close() { s.pool.Close() }

// ── auth.Store ────────────────────────────────────────────────────────────────

// CreateUser implements [auth.Store].
func (s *Store) CreateUser(ctx context.Context, u *auth.User) error {
	const q = `
		INSERT INTO users (id, name, email, role, verified, avatar_url, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.pool.Exec(ctx, q,
		u.ID, u.Name, u.Email, string(u.Role), u.Verified, u.AvatarURL, u.PasswordHash, u.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			return auth.ErrEmailTaken
		}
		return fmt.Errorf("postgres: create user: %w", err)
	}
	return nil
}

// UserByEmail implements [auth.Store].
func (s *Store) UserByEmail(ctx context.Context, email string) (*auth.User, error) {
	return s.userWhere(ctx, "email = $1", email)
}

// UserByID implements [auth.Store].
func (s *Store) UserByID(ctx context.Context, id string) (*auth.User, error) {
	return s.userWhere(ctx, "id = $1", id)
}

func (s *Store) userWhere(ctx context.Context, cond string, arg any) (*auth.User, error) {
	q := `
		SELECT id, name, email, role, verified, avatar_url, password_hash, created_at
		FROM   users
		WHERE  ` + cond

	var (
		u    auth.User
		role string
	)
	err := s.pool.QueryRow(ctx, q, arg).Scan(
		&u.ID, &u.Name, &u.Email, &role, &u.Verified, &u.AvatarURL, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, auth.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: query user: %w", err)
	}
	u.Role = auth.Role(role)
	return &u, nil
}

// ── store.TranscriptStore ─────────────────────────────────────────────────────

// WriteEntry implements [store.TranscriptStore].
func (s *Store) WriteEntry(ctx context.Context, sessionID string, e transcript.Entry) error {
	const q = `
		INSERT INTO voice_transcripts (session_id, role, text)
		VALUES ($1, $2, $3)`

	if _, err := s.pool.Exec(ctx, q, sessionID, string(e.Role), e.Text); err != nil {
		return fmt.Errorf("postgres: write transcript entry: %w", err)
	}
	return nil
}

// Entries implements [store.TranscriptStore].
func (s *Store) Entries(ctx context.Context, sessionID string) ([]store.SessionEntry, error) {
	const q = `
		SELECT session_id, role, text, created_at
		FROM   voice_transcripts
		WHERE  session_id = $1
		ORDER  BY created_at, id`

	rows, err := s.pool.Query(ctx, q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("postgres: query transcript entries: %w", err)
	}

	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.SessionEntry, error) {
		var (
			e    store.SessionEntry
			role string
		)
		if err := row.Scan(&e.SessionID, &role, &e.Text, &e.CreatedAt); err != nil {
			return store.SessionEntry{}, err
		}
		e.Role = transcript.Role(role)
		return e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: scan transcript entries: %w", err)
	}
	return entries, nil
}

// ── store.DocumentStore ───────────────────────────────────────────────────────

// SaveDocument implements [store.DocumentStore].
func (s *Store) SaveDocument(ctx context.Context, d *store.Document) error {
	const q = `
		INSERT INTO documents (id, owner_id, name, mime_type, analysis, uploaded_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := s.pool.Exec(ctx, q, d.ID, d.OwnerID, d.Name, d.MIMEType, d.Analysis, d.UploadedAt)
	if err != nil {
		return fmt.Errorf("postgres: save document: %w", err)
	}
	return nil
}

// UpdateAnalysis implements [store.DocumentStore].
func (s *Store) UpdateAnalysis(ctx context.Context, id, analysis string) error {
	const q = `UPDATE documents SET analysis = $2 WHERE id = $1`

	tag, err := s.pool.Exec(ctx, q, id, analysis)
	if err != nil {
		return fmt.Errorf("postgres: update analysis: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ListByOwner implements [store.DocumentStore].
func (s *Store) ListByOwner(ctx context.Context, ownerID string) ([]store.Document, error) {
	const q = `
		SELECT id, owner_id, name, mime_type, analysis, uploaded_at
		FROM   documents
		WHERE  owner_id = $1
		ORDER  BY uploaded_at DESC`

	rows, err := s.pool.Query(ctx, q, ownerID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list documents: %w", err)
	}

	docs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.Document, error) {
		var d store.Document
		err := row.Scan(&d.ID, &d.OwnerID, &d.Name, &d.MIMEType, &d.Analysis, &d.UploadedAt)
		return d, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: scan documents: %w", err)
	}
	return docs, nil
}

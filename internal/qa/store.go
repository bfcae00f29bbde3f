// Package qa keeps interactive question sessions tied to generated
// explanations. Sessions and their exchanges persist in SQLite so a
// follow-up question works across CLI invocations.
package qa

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"codecast/internal/services"
)

const timeLayout = time.RFC3339Nano

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
    id          TEXT PRIMARY KEY,
    content_id  TEXT NOT NULL,
    fingerprint TEXT NOT NULL,
    language    TEXT NOT NULL DEFAULT '',
    code        TEXT NOT NULL,
    transcript  TEXT NOT NULL,
    closed      INTEGER NOT NULL DEFAULT 0,
    created_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_content ON sessions(content_id);

CREATE TABLE IF NOT EXISTS exchanges (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    question   TEXT NOT NULL,
    answer     TEXT NOT NULL,
    backend    TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_exchanges_session ON exchanges(session_id, id);
`

// Session binds questions to one explanation. A closed session rejects
// further questions; invalidating the underlying cache entry closes every
// session for its content ID.
type Session struct {
	ID          string
	ContentID   string
	Fingerprint string
	Language    string
	Code        string
	Transcript  string
	Closed      bool
	CreatedAt   time.Time
}

// Exchange is one question and answer within a session.
type Exchange struct {
	ID        int64
	SessionID string
	Question  string
	Answer    string
	Backend   string
	CreatedAt time.Time
}

// Store persists sessions in SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open initializes the session database inside dataDir.
func Open(dataDir string) (*Store, error) {
	dataDir = strings.TrimSpace(dataDir)
	if dataDir == "" {
		return nil, services.Wrap(services.ErrConfiguration, "qa", "open", "data directory required", nil)
	}
	db, err := sql.Open("sqlite", filepath.Join(dataDir, "sessions.db"))
	if err != nil {
		return nil, services.Wrap(services.ErrCacheIO, "qa", "open", "open sqlite db", err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, services.Wrap(services.ErrCacheIO, "qa", "open", fmt.Sprintf("apply pragma %q", pragma), execErr)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, services.Wrap(services.ErrCacheIO, "qa", "open", "initialize schema", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Create opens a new session for an explanation.
func (s *Store) Create(ctx context.Context, contentID, fp, language, code, transcript string) (Session, error) {
	session := Session{
		ID:          uuid.NewString(),
		ContentID:   contentID,
		Fingerprint: fp,
		Language:    language,
		Code:        code,
		Transcript:  transcript,
		CreatedAt:   s.now().UTC(),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, content_id, fingerprint, language, code, transcript, closed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?)`,
		session.ID, session.ContentID, session.Fingerprint, session.Language,
		session.Code, session.Transcript, session.CreatedAt.Format(timeLayout))
	if err != nil {
		return Session{}, services.Wrap(services.ErrCacheIO, "qa", "create", "insert session", err)
	}
	return session, nil
}

// Get loads a session by ID.
func (s *Store) Get(ctx context.Context, id string) (Session, error) {
	var (
		session   Session
		closed    int
		createdAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, content_id, fingerprint, language, code, transcript, closed, created_at
		FROM sessions WHERE id = ?`, strings.TrimSpace(id)).
		Scan(&session.ID, &session.ContentID, &session.Fingerprint, &session.Language,
			&session.Code, &session.Transcript, &closed, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, services.Wrap(services.ErrValidation, "qa", "get", "unknown session", nil)
	}
	if err != nil {
		return Session{}, services.Wrap(services.ErrCacheIO, "qa", "get", "query session", err)
	}
	session.Closed = closed != 0
	if parsed, parseErr := time.Parse(timeLayout, createdAt); parseErr == nil {
		session.CreatedAt = parsed
	}
	return session, nil
}

// Latest returns the most recently created open session, if any.
func (s *Store) Latest(ctx context.Context) (Session, bool, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM sessions WHERE closed = 0 ORDER BY created_at DESC LIMIT 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, services.Wrap(services.ErrCacheIO, "qa", "latest", "query session", err)
	}
	session, err := s.Get(ctx, id)
	if err != nil {
		return Session{}, false, err
	}
	return session, true, nil
}

// AppendExchange records a question and its answer.
func (s *Store) AppendExchange(ctx context.Context, sessionID, question, answer, backend string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO exchanges (session_id, question, answer, backend, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		sessionID, question, answer, backend, s.now().UTC().Format(timeLayout))
	if err != nil {
		return services.Wrap(services.ErrCacheIO, "qa", "append", "insert exchange", err)
	}
	return nil
}

// History returns the latest exchanges for a session in chronological
// order, bounded by limit.
func (s *Store) History(ctx context.Context, sessionID string, limit int) ([]Exchange, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, question, answer, backend, created_at FROM (
			SELECT * FROM exchanges WHERE session_id = ? ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`, sessionID, limit)
	if err != nil {
		return nil, services.Wrap(services.ErrCacheIO, "qa", "history", "query exchanges", err)
	}
	defer rows.Close()

	var history []Exchange
	for rows.Next() {
		var (
			exchange  Exchange
			createdAt string
		)
		if err := rows.Scan(&exchange.ID, &exchange.SessionID, &exchange.Question,
			&exchange.Answer, &exchange.Backend, &createdAt); err != nil {
			return nil, services.Wrap(services.ErrCacheIO, "qa", "history", "scan exchange", err)
		}
		if parsed, parseErr := time.Parse(timeLayout, createdAt); parseErr == nil {
			exchange.CreatedAt = parsed
		}
		history = append(history, exchange)
	}
	if err := rows.Err(); err != nil {
		return nil, services.Wrap(services.ErrCacheIO, "qa", "history", "iterate exchanges", err)
	}
	return history, nil
}

// CloseSession marks one session closed.
func (s *Store) CloseSession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE sessions SET closed = 1 WHERE id = ?`, sessionID)
	if err != nil {
		return services.Wrap(services.ErrCacheIO, "qa", "close", "update session", err)
	}
	return nil
}

// CloseForContent closes every session bound to a content ID. Called when
// the cached explanation behind those sessions is invalidated.
func (s *Store) CloseForContent(ctx context.Context, contentID string) (int64, error) {
	if strings.TrimSpace(contentID) == "" {
		return 0, nil
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET closed = 1 WHERE content_id = ? AND closed = 0`, contentID)
	if err != nil {
		return 0, services.Wrap(services.ErrCacheIO, "qa", "close_content", "update sessions", err)
	}
	affected, _ := result.RowsAffected()
	return affected, nil
}

// Package contentcache persists generated explanations keyed by request
// fingerprint. Metadata lives in SQLite; the explanation artifacts are JSON
// files next to the database. Eviction runs synchronously inside Put so the
// size budget holds the moment Put returns.
package contentcache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sys/unix"
	_ "modernc.org/sqlite"

	"codecast/internal/content"
	"codecast/internal/fingerprint"
	"codecast/internal/logging"
	"codecast/internal/services"
)

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond

	// freeSpaceFloor is the minimum free-space ratio allowed on the cache
	// filesystem before eviction kicks in regardless of budget.
	freeSpaceFloor = 0.10

	timeLayout = time.RFC3339Nano
)

// statfsFunc allows tests to stub filesystem stats.
type statfsFunc func(path string) (total uint64, free uint64, err error)

// Entry is cache metadata for one stored explanation.
type Entry struct {
	Fingerprint    fingerprint.Fingerprint `json:"fingerprint"`
	ContentID      string                  `json:"content_id"`
	Language       string                  `json:"language"`
	ContentType    content.Type            `json:"content_type"`
	SnippetPreview string                  `json:"snippet_preview"`
	SizeBytes      int64                   `json:"size_bytes"`
	Partial        bool                    `json:"partial"`
	CreatedAt      time.Time               `json:"created_at"`
	LastAccessedAt time.Time               `json:"last_accessed_at"`
	AccessCount    int64                   `json:"access_count"`
}

// Stats describes current cache usage.
type Stats struct {
	Entries    int     `json:"entries"`
	TotalBytes int64   `json:"total_bytes"`
	MaxBytes   int64   `json:"max_bytes"`
	Hits       int64   `json:"hits"`
	Misses     int64   `json:"misses"`
	HitRate    float64 `json:"hit_rate"`
	FreeBytes  uint64  `json:"free_bytes"`
	FreeRatio  float64 `json:"free_ratio"`
}

// Store is the SQLite-backed explanation cache.
type Store struct {
	db       *sql.DB
	root     string
	maxBytes int64
	logger   *slog.Logger
	statfs   statfsFunc
	now      func() time.Time
}

// Open initializes the cache under root with the given size budget.
func Open(root string, maxBytes int64, logger *slog.Logger) (*Store, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, services.Wrap(services.ErrConfiguration, "cache", "open", "cache directory required", nil)
	}
	if maxBytes <= 0 {
		return nil, services.Wrap(services.ErrConfiguration, "cache", "open", "cache budget must be positive", nil)
	}
	if err := os.MkdirAll(filepath.Join(root, "artifacts"), 0o755); err != nil {
		return nil, services.Wrap(services.ErrCacheIO, "cache", "open", "create cache directories", err)
	}

	dbPath := filepath.Join(root, "cache.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, services.Wrap(services.ErrCacheIO, "cache", "open", "open sqlite db", err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, services.Wrap(services.ErrCacheIO, "cache", "open", fmt.Sprintf("apply pragma %q", pragma), execErr)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, services.Wrap(services.ErrCacheIO, "cache", "open", "initialize schema", err)
	}

	return &Store{
		db:       db,
		root:     root,
		maxBytes: maxBytes,
		logger:   logging.NewComponentLogger(logger, "cache"),
		statfs:   realStatfs,
		now:      time.Now,
	}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Get loads a cached explanation. The second return reports whether the
// fingerprint was present; misses are not errors. A hit bumps the access
// stats used by eviction.
func (s *Store) Get(ctx context.Context, fp fingerprint.Fingerprint) (*content.Explanation, bool, error) {
	var contentID string
	err := s.queryRowWithRetry(ctx,
		`SELECT content_id FROM entries WHERE fingerprint = ?`, fp.String()).Scan(&contentID)
	if errors.Is(err, sql.ErrNoRows) {
		s.bumpCounter(ctx, "misses")
		return nil, false, nil
	}
	if err != nil {
		return nil, false, services.Wrap(services.ErrCacheIO, "cache", "get", "query entry", err)
	}

	data, err := os.ReadFile(s.artifactPath(fp))
	if err != nil {
		// The artifact vanished underneath the metadata. Drop the row so
		// the next request regenerates cleanly.
		s.logger.WarnContext(ctx, "cache artifact missing, dropping entry",
			logging.String(logging.FieldFingerprint, fp.Short()),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "artifact file was removed outside codecast"),
		)
		_ = s.execWithoutResultRetry(ctx, `DELETE FROM entries WHERE fingerprint = ?`, fp.String())
		s.bumpCounter(ctx, "misses")
		return nil, false, nil
	}

	var expl content.Explanation
	if err := json.Unmarshal(data, &expl); err != nil {
		return nil, false, services.Wrap(services.ErrCacheIO, "cache", "get", "decode artifact", err)
	}

	now := s.now().UTC().Format(timeLayout)
	if err := s.execWithoutResultRetry(ctx,
		`UPDATE entries SET last_accessed_at = ?, access_count = access_count + 1 WHERE fingerprint = ?`,
		now, fp.String()); err != nil {
		return nil, false, services.Wrap(services.ErrCacheIO, "cache", "get", "update access stats", err)
	}
	s.bumpCounter(ctx, "hits")
	return &expl, true, nil
}

// Put stores an explanation under the fingerprint, replacing any previous
// entry, then evicts least-recently-used entries until the budget holds.
// An artifact bigger than the whole budget is rejected rather than letting
// it blow the invariant.
func (s *Store) Put(ctx context.Context, fp fingerprint.Fingerprint, req content.Request, expl *content.Explanation) error {
	if expl == nil {
		return services.Wrap(services.ErrCacheIO, "cache", "put", "nil explanation", nil)
	}
	data, err := json.MarshalIndent(expl, "", "  ")
	if err != nil {
		return services.Wrap(services.ErrCacheIO, "cache", "put", "encode artifact", err)
	}
	size := int64(len(data))
	if size > s.maxBytes {
		return services.Wrap(services.ErrCacheIO, "cache", "put",
			fmt.Sprintf("artifact of %d bytes exceeds the %d byte cache budget", size, s.maxBytes), nil)
	}

	path := s.artifactPath(fp)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return services.Wrap(services.ErrCacheIO, "cache", "put", "write artifact", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return services.Wrap(services.ErrCacheIO, "cache", "put", "publish artifact", err)
	}

	now := s.now().UTC().Format(timeLayout)
	if err := s.execWithoutResultRetry(ctx, `
		INSERT INTO entries (fingerprint, content_id, language, content_type, snippet_preview, size_bytes, partial, created_at, last_accessed_at, access_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0)
		ON CONFLICT(fingerprint) DO UPDATE SET
			content_id = excluded.content_id,
			language = excluded.language,
			content_type = excluded.content_type,
			snippet_preview = excluded.snippet_preview,
			size_bytes = excluded.size_bytes,
			partial = excluded.partial,
			created_at = excluded.created_at,
			last_accessed_at = excluded.last_accessed_at,
			access_count = 0`,
		fp.String(), expl.ID, req.SourceLanguage, string(expl.ContentType),
		content.SnippetPreview(req.Code, 80), size, boolToInt(expl.Partial), now, now); err != nil {
		_ = os.Remove(path)
		return services.Wrap(services.ErrCacheIO, "cache", "put", "record entry", err)
	}

	if err := s.evict(ctx, fp); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "cached explanation",
		logging.String(logging.FieldFingerprint, fp.Short()),
		logging.String("content_id", expl.ID),
		logging.Int64("size_bytes", size),
	)
	return nil
}

// Invalidate removes the entry for a fingerprint. It returns the removed
// content ID so Q&A sessions bound to the old explanation can be closed,
// and the empty string when nothing was cached. Invalidation is idempotent.
func (s *Store) Invalidate(ctx context.Context, fp fingerprint.Fingerprint) (string, error) {
	var contentID string
	err := s.queryRowWithRetry(ctx,
		`SELECT content_id FROM entries WHERE fingerprint = ?`, fp.String()).Scan(&contentID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", services.Wrap(services.ErrCacheIO, "cache", "invalidate", "query entry", err)
	}
	if err := s.execWithoutResultRetry(ctx, `DELETE FROM entries WHERE fingerprint = ?`, fp.String()); err != nil {
		return "", services.Wrap(services.ErrCacheIO, "cache", "invalidate", "delete entry", err)
	}
	if err := os.Remove(s.artifactPath(fp)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", services.Wrap(services.ErrCacheIO, "cache", "invalidate", "remove artifact", err)
	}
	s.logger.InfoContext(ctx, "invalidated cache entry",
		logging.String(logging.FieldFingerprint, fp.Short()),
		logging.String("content_id", contentID),
	)
	return contentID, nil
}

// Clear removes every entry and returns how many were dropped.
func (s *Store) Clear(ctx context.Context) (int, error) {
	entries, err := s.List(ctx)
	if err != nil {
		return 0, err
	}
	for _, entry := range entries {
		if _, err := s.Invalidate(ctx, entry.Fingerprint); err != nil {
			return 0, err
		}
	}
	return len(entries), nil
}

// List returns cache metadata ordered most recently used first.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.queryWithRetry(ctx, `
		SELECT fingerprint, content_id, language, content_type, snippet_preview, size_bytes, partial, created_at, last_accessed_at, access_count
		FROM entries ORDER BY last_accessed_at DESC`)
	if err != nil {
		return nil, services.Wrap(services.ErrCacheIO, "cache", "list", "query entries", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, services.Wrap(services.ErrCacheIO, "cache", "list", "scan entry", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, services.Wrap(services.ErrCacheIO, "cache", "list", "iterate entries", err)
	}
	return entries, nil
}

// Stats reports usage, hit counters, and filesystem headroom.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	stats.MaxBytes = s.maxBytes

	err := s.queryRowWithRetry(ctx,
		`SELECT COUNT(*), COALESCE(SUM(size_bytes), 0) FROM entries`).Scan(&stats.Entries, &stats.TotalBytes)
	if err != nil {
		return Stats{}, services.Wrap(services.ErrCacheIO, "cache", "stats", "aggregate entries", err)
	}
	err = s.queryRowWithRetry(ctx,
		`SELECT hits, misses FROM counters WHERE id = 1`).Scan(&stats.Hits, &stats.Misses)
	if err != nil {
		return Stats{}, services.Wrap(services.ErrCacheIO, "cache", "stats", "read counters", err)
	}
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
	}

	total, free, err := s.statfs(s.root)
	if err != nil {
		return Stats{}, services.Wrap(services.ErrCacheIO, "cache", "stats", "statfs", err)
	}
	stats.FreeBytes = free
	stats.FreeRatio = 1.0
	if total > 0 {
		stats.FreeRatio = float64(free) / float64(total)
	}
	return stats, nil
}

// evict drops the least valuable entries until the budget and free-space
// floor hold. keep protects the entry just written; Put already guaranteed
// it fits the budget alone.
func (s *Store) evict(ctx context.Context, keep fingerprint.Fingerprint) error {
	for {
		var total int64
		if err := s.queryRowWithRetry(ctx,
			`SELECT COALESCE(SUM(size_bytes), 0) FROM entries`).Scan(&total); err != nil {
			return services.Wrap(services.ErrCacheIO, "cache", "evict", "sum sizes", err)
		}
		freeOK, err := s.freeSpaceOK()
		if err != nil {
			return err
		}
		if total <= s.maxBytes && freeOK {
			return nil
		}

		var victim string
		var size int64
		err = s.queryRowWithRetry(ctx, `
			SELECT fingerprint, size_bytes FROM entries
			WHERE fingerprint != ?
			ORDER BY last_accessed_at ASC, access_count ASC
			LIMIT 1`, keep.String()).Scan(&victim, &size)
		if errors.Is(err, sql.ErrNoRows) {
			// Only the protected entry remains; nothing more to free.
			return nil
		}
		if err != nil {
			return services.Wrap(services.ErrCacheIO, "cache", "evict", "select victim", err)
		}

		if _, err := s.Invalidate(ctx, fingerprint.Fingerprint(victim)); err != nil {
			return err
		}
		s.logger.InfoContext(ctx, "evicted cache entry",
			logging.String(logging.FieldFingerprint, fingerprint.Fingerprint(victim).Short()),
			logging.Int64("entry_size_bytes", size),
		)
	}
}

func (s *Store) freeSpaceOK() (bool, error) {
	total, free, err := s.statfs(s.root)
	if err != nil {
		return false, services.Wrap(services.ErrCacheIO, "cache", "evict", "statfs", err)
	}
	if total == 0 {
		return true, nil
	}
	return float64(free)/float64(total) >= freeSpaceFloor, nil
}

func (s *Store) artifactPath(fp fingerprint.Fingerprint) string {
	return filepath.Join(s.root, "artifacts", fp.String()+".json")
}

func (s *Store) bumpCounter(ctx context.Context, column string) {
	var query string
	switch column {
	case "hits":
		query = `UPDATE counters SET hits = hits + 1 WHERE id = 1`
	default:
		query = `UPDATE counters SET misses = misses + 1 WHERE id = 1`
	}
	if err := s.execWithoutResultRetry(ctx, query); err != nil {
		s.logger.WarnContext(ctx, "counter update failed", logging.Error(err))
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (Entry, error) {
	var (
		entry                 Entry
		fp                    string
		contentType           string
		partial               int
		createdAt, lastAccess string
	)
	if err := row.Scan(&fp, &entry.ContentID, &entry.Language, &contentType, &entry.SnippetPreview,
		&entry.SizeBytes, &partial, &createdAt, &lastAccess, &entry.AccessCount); err != nil {
		return Entry{}, err
	}
	entry.Fingerprint = fingerprint.Fingerprint(fp)
	entry.ContentType = content.Type(contentType)
	entry.Partial = partial != 0
	if parsed, err := time.Parse(timeLayout, createdAt); err == nil {
		entry.CreatedAt = parsed
	}
	if parsed, err := time.Parse(timeLayout, lastAccess); err == nil {
		entry.LastAccessedAt = parsed
	}
	return entry, nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (s *Store) execWithoutResultRetry(ctx context.Context, query string, args ...any) error {
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query, args...)
		return err
	})
}

func (s *Store) queryWithRetry(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	ctx = ensureContext(ctx)
	var rows *sql.Rows
	err := retryOnBusy(ctx, func() error {
		var queryErr error
		rows, queryErr = s.db.QueryContext(ctx, query, args...)
		return queryErr
	})
	return rows, err
}

func (s *Store) queryRowWithRetry(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ensureContext(ctx), query, args...)
}

func realStatfs(path string) (uint64, uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, 0, err
	}
	total := stat.Blocks * uint64(stat.Bsize)
	free := stat.Bavail * uint64(stat.Bsize)
	return total, free, nil
}

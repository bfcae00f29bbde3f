package contentcache

const schema = `
CREATE TABLE IF NOT EXISTS entries (
    fingerprint      TEXT PRIMARY KEY,
    content_id       TEXT NOT NULL,
    language         TEXT NOT NULL DEFAULT '',
    content_type     TEXT NOT NULL DEFAULT '',
    snippet_preview  TEXT NOT NULL DEFAULT '',
    size_bytes       INTEGER NOT NULL DEFAULT 0,
    partial          INTEGER NOT NULL DEFAULT 0,
    created_at       TEXT NOT NULL,
    last_accessed_at TEXT NOT NULL,
    access_count     INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_entries_eviction
    ON entries(last_accessed_at, access_count);

CREATE TABLE IF NOT EXISTS counters (
    id     INTEGER PRIMARY KEY CHECK (id = 1),
    hits   INTEGER NOT NULL DEFAULT 0,
    misses INTEGER NOT NULL DEFAULT 0
);

INSERT OR IGNORE INTO counters (id, hits, misses) VALUES (1, 0, 0);
`

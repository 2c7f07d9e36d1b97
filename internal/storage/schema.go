package storage

// Schema is the SQL schema for the document store database.
const Schema = `
CREATE TABLE IF NOT EXISTS documents (
    key         TEXT PRIMARY KEY,
    content     TEXT NOT NULL,
    updated_at  TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE VIRTUAL TABLE IF NOT EXISTS documents_fts USING fts5(
    key,
    content,
    content='documents',
    content_rowid='rowid'
);

CREATE TABLE IF NOT EXISTS sync_runs (
    id          TEXT PRIMARY KEY,
    operation   TEXT NOT NULL
                CHECK(operation IN ('push', 'clone', 'prune', 'create')),
    target      TEXT NOT NULL,
    status      TEXT NOT NULL DEFAULT 'running'
                CHECK(status IN ('running', 'succeeded', 'failed')),
    commit_sha  TEXT NOT NULL DEFAULT '',
    error       TEXT NOT NULL DEFAULT '',
    started_at  TEXT NOT NULL DEFAULT (strftime('%Y-%m-%d %H:%M:%f', 'now')),
    finished_at TEXT NULL
);

CREATE INDEX IF NOT EXISTS idx_sync_runs_started ON sync_runs(started_at);
`

// Triggers keep documents_fts in step with documents.
const Triggers = `
CREATE TRIGGER IF NOT EXISTS documents_ai AFTER INSERT ON documents BEGIN
    INSERT INTO documents_fts(rowid, key, content) VALUES (new.rowid, new.key, new.content);
END;
CREATE TRIGGER IF NOT EXISTS documents_ad AFTER DELETE ON documents BEGIN
    INSERT INTO documents_fts(documents_fts, rowid, key, content) VALUES('delete', old.rowid, old.key, old.content);
END;
CREATE TRIGGER IF NOT EXISTS documents_au AFTER UPDATE ON documents BEGIN
    INSERT INTO documents_fts(documents_fts, rowid, key, content) VALUES('delete', old.rowid, old.key, old.content);
    INSERT INTO documents_fts(rowid, key, content) VALUES (new.rowid, new.key, new.content);
END;
`

// dsnPragmas configures every connection. Write transactions take the lock up
// front so concurrent batches queue on busy_timeout instead of failing.
const dsnPragmas = "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)&_pragma=cache_size(-64000)&_txlock=immediate"

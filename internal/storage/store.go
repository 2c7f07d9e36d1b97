package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/flexpertsdev/flexios-v1/internal/models"
)

// DBFile is the store's database file name inside the data directory.
const DBFile = "flexios.db"

// Store is the local virtual file store. Every multi-row mutation runs in a
// single transaction, so a reader sees either none or all of a batch.
type Store struct {
	db      *sql.DB
	dataDir string
}

// Open opens (or creates) the store database in dataDir and runs migrations.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dataDir, DBFile)
	db, err := sql.Open("sqlite3", "file:"+dbPath+dsnPragmas)
	if err != nil {
		return nil, fmt.Errorf("open store db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping store db: %w", err)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate store db: %w", err)
	}
	if _, err := db.Exec(Triggers); err != nil {
		db.Close()
		return nil, fmt.Errorf("create store triggers: %w", err)
	}

	return &Store{db: db, dataDir: dataDir}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DataDir returns the directory holding the database.
func (s *Store) DataDir() string {
	return s.dataDir
}

// Get returns the document stored under key. ok is false if there is none.
func (s *Store) Get(ctx context.Context, key string) (doc models.Document, ok bool, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT key, content FROM documents WHERE key = ?`, key,
	).Scan(&doc.Key, &doc.Content)
	if err == sql.ErrNoRows {
		return models.Document{}, false, nil
	}
	if err != nil {
		return models.Document{}, false, fmt.Errorf("get document %q: %w", key, err)
	}
	return doc, true, nil
}

// Put inserts or replaces a single document.
func (s *Store) Put(ctx context.Context, doc models.Document) error {
	return upsert(ctx, s.db, doc)
}

// BulkPut upserts all docs in one transaction.
func (s *Store) BulkPut(ctx context.Context, docs []models.Document) error {
	ops := make([]models.FileOperation, len(docs))
	for i, doc := range docs {
		ops[i] = models.WriteOp(doc)
	}
	return s.Apply(ctx, ops)
}

// Delete removes the document stored under key. Deleting an absent key is
// not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete document %q: %w", key, err)
	}
	return nil
}

// Apply runs a mixed batch of writes and deletes as one transaction, in
// order. Either every operation is applied or none is.
func (s *Store) Apply(ctx context.Context, ops []models.FileOperation) error {
	if len(ops) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := applyOps(ctx, tx, ops); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ReplaceAll clears the store and inserts docs in one transaction. Readers
// never observe the intermediate empty store.
func (s *Store) ReplaceAll(ctx context.Context, docs []models.Document) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM documents`); err != nil {
		return fmt.Errorf("clear documents: %w", err)
	}
	ops := make([]models.FileOperation, len(docs))
	for i, doc := range docs {
		ops[i] = models.WriteOp(doc)
	}
	if err := applyOps(ctx, tx, ops); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Clear removes every document.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM documents`); err != nil {
		return fmt.Errorf("clear documents: %w", err)
	}
	return nil
}

// ListAll returns every document, ordered by key.
func (s *Store) ListAll(ctx context.Context) ([]models.Document, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, content FROM documents ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return scanDocuments(rows)
}

// QueryByPrefix returns every document whose key starts with prefix, ordered
// by key. The prefix is matched literally.
func (s *Store) QueryByPrefix(ctx context.Context, prefix string) ([]models.Document, error) {
	if prefix == "" {
		return s.ListAll(ctx)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, content FROM documents WHERE instr(key, ?) = 1 ORDER BY key`, prefix,
	)
	if err != nil {
		return nil, fmt.Errorf("query documents by prefix %q: %w", prefix, err)
	}
	return scanDocuments(rows)
}

// Keys returns every document key, ordered.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM documents ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// Count returns the number of stored documents.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM documents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return n, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func applyOps(ctx context.Context, tx *sql.Tx, ops []models.FileOperation) error {
	for _, op := range ops {
		switch op.Action {
		case models.ActionWrite:
			if err := upsert(ctx, tx, op.File); err != nil {
				return err
			}
		case models.ActionDelete:
			if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE key = ?`, op.File.Key); err != nil {
				return fmt.Errorf("delete document %q: %w", op.File.Key, err)
			}
		default:
			return fmt.Errorf("unknown file operation %q for %q", op.Action, op.File.Key)
		}
	}
	return nil
}

func upsert(ctx context.Context, db execer, doc models.Document) error {
	if doc.Key == "" {
		return fmt.Errorf("document key is required")
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO documents (key, content) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET content = excluded.content, updated_at = datetime('now')`,
		doc.Key, doc.Content,
	)
	if err != nil {
		return fmt.Errorf("upsert document %q: %w", doc.Key, err)
	}
	return nil
}

func scanDocuments(rows *sql.Rows) ([]models.Document, error) {
	defer rows.Close()

	docs := []models.Document{}
	for rows.Next() {
		var d models.Document
		if err := rows.Scan(&d.Key, &d.Content); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// Package watermark persists the last successfully indexed modification time
// per document. The scanner diffs source listings against these watermarks to
// decide what needs reindexing, so they advance only after a document is
// fully finalized in the vector store.
package watermark

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/fyrsmithlabs/corpusd/internal/document"
)

const schema = `
CREATE TABLE IF NOT EXISTS watermarks (
	user_id     TEXT NOT NULL,
	doc_type    TEXT NOT NULL,
	doc_id      TEXT NOT NULL,
	modified_at INTEGER NOT NULL,
	updated_at  INTEGER NOT NULL,
	PRIMARY KEY (user_id, doc_type, doc_id)
);
CREATE INDEX IF NOT EXISTS idx_watermarks_user_type
	ON watermarks (user_id, doc_type);
`

// Store is a SQLite-backed watermark store. Safe for concurrent use.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the watermark database at path.
// Use ":memory:" for an ephemeral store in tests.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("failed to create watermark directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open watermark db: %w", err)
	}
	// SQLite handles one writer at a time; a single connection avoids
	// SQLITE_BUSY under concurrent workers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize watermark schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Get returns the watermark for key, or ok=false when none exists.
func (s *Store) Get(ctx context.Context, key document.Key) (time.Time, bool, error) {
	var unix int64
	err := s.db.QueryRowContext(ctx,
		`SELECT modified_at FROM watermarks WHERE user_id = ? AND doc_type = ? AND doc_id = ?`,
		key.UserID, string(key.DocType), key.DocID,
	).Scan(&unix)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to read watermark for %s: %w", key, err)
	}
	return time.Unix(unix, 0).UTC(), true, nil
}

// Upsert records modifiedAt as the watermark for key.
func (s *Store) Upsert(ctx context.Context, key document.Key, modifiedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO watermarks (user_id, doc_type, doc_id, modified_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (user_id, doc_type, doc_id)
		 DO UPDATE SET modified_at = excluded.modified_at, updated_at = excluded.updated_at`,
		key.UserID, string(key.DocType), key.DocID, modifiedAt.Unix(), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert watermark for %s: %w", key, err)
	}
	return nil
}

// Delete removes the watermark for key. Missing keys are not an error.
func (s *Store) Delete(ctx context.Context, key document.Key) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM watermarks WHERE user_id = ? AND doc_type = ? AND doc_id = ?`,
		key.UserID, string(key.DocType), key.DocID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete watermark for %s: %w", key, err)
	}
	return nil
}

// ListByUserType returns all watermarks for one user and document type,
// keyed by document ID.
func (s *Store) ListByUserType(ctx context.Context, userID string, docType document.Type) (map[string]time.Time, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT doc_id, modified_at FROM watermarks WHERE user_id = ? AND doc_type = ?`,
		userID, string(docType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list watermarks for user %s type %s: %w", userID, docType, err)
	}
	defer rows.Close()

	out := make(map[string]time.Time)
	for rows.Next() {
		var docID string
		var unix int64
		if err := rows.Scan(&docID, &unix); err != nil {
			return nil, fmt.Errorf("failed to scan watermark row: %w", err)
		}
		out[docID] = time.Unix(unix, 0).UTC()
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate watermarks: %w", err)
	}
	return out, nil
}

// CountByUser returns the number of watermarked documents for a user.
func (s *Store) CountByUser(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM watermarks WHERE user_id = ?`, userID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count watermarks for user %s: %w", userID, err)
	}
	return n, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

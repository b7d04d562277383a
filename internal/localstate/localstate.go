// Package localstate keeps enrichment fields that the store of record has no
// place for. They are overlaid onto records in memory and never written to
// the shared document.
package localstate

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/lepinkainen/backlogsync/internal/backlog"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS local_enrichment (
	record_id TEXT PRIMARY KEY NOT NULL,
	data TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// Store is a SQLite-backed map from record id to local-only enrichment.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens or creates the local state database.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open local state database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		closeErr := db.Close()
		return nil, errors.Join(fmt.Errorf("failed to create local state table: %w", err), closeErr)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Save stores the local-only part of e for a record. Persisted fields are
// ignored.
func (s *Store) Save(ctx context.Context, recordID string, e backlog.Enrichment) error {
	data, err := json.Marshal(e.Local())
	if err != nil {
		return fmt.Errorf("failed to encode local enrichment: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO local_enrichment (record_id, data, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(record_id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
	`, recordID, string(data))
	if err != nil {
		return fmt.Errorf("failed to save local enrichment for %s: %w", recordID, err)
	}
	return nil
}

// Load returns the local enrichment of every record that has any.
func (s *Store) Load(ctx context.Context) (map[string]backlog.Enrichment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `SELECT record_id, data FROM local_enrichment`)
	if err != nil {
		return nil, fmt.Errorf("failed to query local enrichment: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]backlog.Enrichment)
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("failed to scan local enrichment: %w", err)
		}
		var e backlog.Enrichment
		if err := json.Unmarshal([]byte(data), &e); err != nil {
			return nil, fmt.Errorf("failed to decode local enrichment for %s: %w", id, err)
		}
		out[id] = e.Local()
	}
	return out, rows.Err()
}

// Overlay copies stored local fields onto the matching records in place.
func (s *Store) Overlay(ctx context.Context, records []backlog.Record) error {
	local, err := s.Load(ctx)
	if err != nil {
		return err
	}
	for i := range records {
		if e, ok := local[records[i].ID]; ok {
			records[i].ReviewScore = e.ReviewScore
			records[i].ReviewCount = e.ReviewCount
			records[i].Genres = e.Genres
		}
	}
	return nil
}

// Prune deletes state for records that are no longer in the collection.
func (s *Store) Prune(ctx context.Context, keep []backlog.Record) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(keep) == 0 {
		res, err := s.db.ExecContext(ctx, `DELETE FROM local_enrichment`)
		if err != nil {
			return 0, fmt.Errorf("failed to prune local enrichment: %w", err)
		}
		return res.RowsAffected()
	}

	args := make([]any, len(keep))
	for i, r := range keep {
		args[i] = r.ID
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keep)), ",")
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM local_enrichment WHERE record_id NOT IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to prune local enrichment: %w", err)
	}
	return res.RowsAffected()
}

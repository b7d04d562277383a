package docstore

import (
	"context"
	"database/sql"
	_ "embed"
	stdErrors "errors"
	"fmt"

	"github.com/lepinkainen/backlogsync/internal/backlog"
	"github.com/lepinkainen/backlogsync/internal/errors"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// SQLite keeps the document in a local SQLite database. Compare-and-swap is a
// conditional UPDATE on the revision column.
type SQLite struct {
	db     *sql.DB
	dbPath string
	name   string
}

// NewSQLite creates a store for the document called name inside dbPath.
func NewSQLite(dbPath, name string) *SQLite {
	return &SQLite{
		dbPath: dbPath,
		name:   name,
	}
}

// Connect opens the database and creates the tables if needed.
func (s *SQLite) Connect() error {
	db, err := sql.Open("sqlite", s.dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection serializes writers within this process; other
	// processes are kept honest by the revision check.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		closeErr := db.Close()
		return stdErrors.Join(fmt.Errorf("failed to create document tables: %w", err), closeErr)
	}
	s.db = db
	return nil
}

func (s *SQLite) Name() string {
	return "sqlite:" + s.dbPath
}

// Read implements Store.
func (s *SQLite) Read(ctx context.Context) (backlog.Document, error) {
	var content []byte
	var revision string
	err := s.db.QueryRowContext(ctx,
		`SELECT content, revision FROM documents WHERE name = ?`, s.name,
	).Scan(&content, &revision)
	if stdErrors.Is(err, sql.ErrNoRows) {
		return backlog.Document{Records: []backlog.Record{}}, nil
	}
	if err != nil {
		return backlog.Document{}, fmt.Errorf("failed to read document %s: %w", s.name, err)
	}

	records, err := backlog.DecodeRecords(content)
	if err != nil {
		return backlog.Document{}, err
	}
	return backlog.Document{Records: records, Revision: backlog.Revision(revision)}, nil
}

// Write implements Store.
func (s *SQLite) Write(ctx context.Context, records []backlog.Record, rev backlog.Revision, label string) (backlog.Revision, error) {
	if err := checkLabel(label); err != nil {
		return "", err
	}
	content, err := backlog.EncodeRecords(records)
	if err != nil {
		return "", err
	}
	next := chainRevision(rev, content)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		// Rollback if we don't commit - ignore errors as they're expected if transaction was committed
		_ = tx.Rollback()
	}()

	var res sql.Result
	if rev == "" {
		res, err = tx.ExecContext(ctx, `
			INSERT INTO documents (name, content, revision, updated_at)
			VALUES (?, ?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(name) DO NOTHING
		`, s.name, content, string(next))
	} else {
		res, err = tx.ExecContext(ctx, `
			UPDATE documents
			SET content = ?, revision = ?, updated_at = CURRENT_TIMESTAMP
			WHERE name = ? AND revision = ?
		`, content, string(next), s.name, string(rev))
	}
	if err != nil {
		return "", fmt.Errorf("failed to write document %s: %w", s.name, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return "", errors.NewConflictError(s.name, string(rev), "document changed since it was read")
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO document_history (name, revision, label) VALUES (?, ?, ?)`,
		s.name, string(next), label,
	); err != nil {
		return "", fmt.Errorf("failed to record history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit transaction: %w", err)
	}
	return next, nil
}

// History returns the labels of the most recent writes, newest first.
func (s *SQLite) History(ctx context.Context, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT label FROM document_history WHERE name = ? ORDER BY id DESC LIMIT ?`, s.name, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var labels []string
	for rows.Next() {
		var label string
		if err := rows.Scan(&label); err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		labels = append(labels, label)
	}
	return labels, rows.Err()
}

// Close closes the database connection
func (s *SQLite) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

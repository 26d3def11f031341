// Package sqlite provides a SQLite-backed note storage implementation.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/nicktill/tinynotes/pkg/storage"
)

// FileName is the database file created inside the data directory.
const FileName = "notes.db"

const schema = `
CREATE TABLE IF NOT EXISTS note (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    content VARCHAR(500) NOT NULL CHECK (length(content) <= 500)
);
`

// Store persists notes in a single SQLite file.
type Store struct {
	sqlDB *sql.DB
}

// Open opens (or creates) the SQLite database at path and ensures the note table exists.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ensure note table: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Create inserts one note and returns the id SQLite assigned.
func (s *Store) Create(ctx context.Context, content string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := storage.ValidateContent(content); err != nil {
		return 0, err
	}

	res, err := s.sqlDB.ExecContext(ctx, `INSERT INTO note (content) VALUES (?)`, content)
	if err != nil {
		return 0, mapError("insert note", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read inserted id: %w", err)
	}
	return id, nil
}

// Get returns one note by id.
func (s *Store) Get(ctx context.Context, id int64) (storage.Note, error) {
	if err := ctx.Err(); err != nil {
		return storage.Note{}, err
	}

	note := storage.Note{ID: id}
	err := s.sqlDB.QueryRowContext(ctx, `SELECT content FROM note WHERE id = ?`, id).Scan(&note.Content)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.Note{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.Note{}, fmt.Errorf("get note: %w", err)
	}
	return note, nil
}

// Update overwrites the content of one note.
func (s *Store) Update(ctx context.Context, id int64, content string) (storage.Note, error) {
	if err := ctx.Err(); err != nil {
		return storage.Note{}, err
	}
	if err := storage.ValidateContent(content); err != nil {
		return storage.Note{}, err
	}

	res, err := s.sqlDB.ExecContext(ctx, `UPDATE note SET content = ? WHERE id = ?`, content, id)
	if err != nil {
		return storage.Note{}, mapError("update note", err)
	}
	if err := requireRow(res); err != nil {
		return storage.Note{}, err
	}
	return storage.Note{ID: id, Content: content}, nil
}

// Delete removes one note.
func (s *Store) Delete(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	res, err := s.sqlDB.ExecContext(ctx, `DELETE FROM note WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	return requireRow(res)
}

// Maintain refreshes planner statistics and truncates the WAL.
func (s *Store) Maintain(ctx context.Context) error {
	if _, err := s.sqlDB.ExecContext(ctx, `PRAGMA optimize`); err != nil {
		return fmt.Errorf("optimize: %w", err)
	}
	if _, err := s.sqlDB.ExecContext(ctx, `PRAGMA wal_checkpoint(TRUNCATE)`); err != nil {
		return fmt.Errorf("wal checkpoint: %w", err)
	}
	return nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// mapError turns constraint violations into validation errors so they surface as 400s.
func mapError(op string, err error) error {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_CHECK, sqlite3lib.SQLITE_CONSTRAINT_NOTNULL:
			return &storage.ValidationError{Field: "content", Reason: "violates table constraint"}
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

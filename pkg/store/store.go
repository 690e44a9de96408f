// Package store is the SQLite persistence layer for sources, documents,
// extractions, and summaries.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"
)

// ErrDuplicate is returned when an insert hits a natural-key constraint
// (feed URL, document URL, one-per-parent rows). Pipeline stages count it
// as a skip, not a failure.
var ErrDuplicate = errors.New("record already exists")

// ErrNotFound is returned by point lookups that match nothing.
var ErrNotFound = errors.New("record not found")

type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and ensures the schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	_, err := s.db.Exec(schema)
	return err
}

// builder produces SQLite-flavored statements with ? placeholders.
var builder = sq.StatementBuilder.PlaceholderFormat(sq.Question)

// wrapInsertErr maps sqlite unique violations onto ErrDuplicate so callers
// never have to match driver error strings.
func wrapInsertErr(err error, what string) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%s: %w", what, ErrDuplicate)
	}
	return fmt.Errorf("failed to insert %s: %w", what, err)
}

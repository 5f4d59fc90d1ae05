// Package store provides write access to the mailshare SQLite database.
package store

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-sqlite3"
)

//go:embed schema.sql schema_sqlite.sql
var schemaFS embed.FS

// Store owns the mailshare database: mails, contacts, tags and their links.
type Store struct {
	db     *sql.DB
	path   string
	hasFTS bool
}

// WAL lets the query engine read while an import writes.
const dsnParams = "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=ON"

// SQLite's default host parameter limit is 999.
const maxParams = 900

// asSQLiteError unwraps the driver error, which go-sqlite3 returns by value
// but wrappers sometimes hold by pointer.
func asSQLiteError(err error) (sqlite3.Error, bool) {
	var val sqlite3.Error
	if errors.As(err, &val) {
		return val, true
	}
	var ptr *sqlite3.Error
	if errors.As(err, &ptr) && ptr != nil {
		return *ptr, true
	}
	return sqlite3.Error{}, false
}

// isSQLiteError reports whether err is a driver error mentioning substr.
func isSQLiteError(err error, substr string) bool {
	e, ok := asSQLiteError(err)
	return ok && strings.Contains(e.Error(), substr)
}

// Open opens the mail database at path, creating the file and its parent
// directory when missing. Call InitSchema before first use.
func Open(path string) (*Store, error) {
	if strings.Contains(path, "://") {
		return nil, fmt.Errorf("unsupported database url %q: only sqlite file paths are supported", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+dsnParams)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database %s: %w", path, err)
	}
	return &Store{db: db, path: path}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying connection. The query engine reads through it.
func (s *Store) DB() *sql.DB {
	return s.db
}

// withTx commits when fn succeeds and rolls back otherwise.
func (s *Store) withTx(fn func(tx *sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// eachChunk calls fn over [start, end) windows of n items, size at a time.
func eachChunk(n, size int, fn func(start, end int) error) error {
	if size < 1 {
		size = 1
	}
	for start := 0; start < n; start += size {
		end := min(start+size, n)
		if err := fn(start, end); err != nil {
			return err
		}
	}
	return nil
}

// placeholders returns "?,?,...,?" with n marks.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// InitSchema creates missing tables. The mails_fts index needs the fts5
// build tag; without it the store works and search falls back to LIKE.
func (s *Store) InitSchema() error {
	if err := s.execSchema("schema.sql"); err != nil {
		return err
	}
	err := s.execSchema("schema_sqlite.sql")
	switch {
	case err == nil:
		s.hasFTS = true
	case isSQLiteError(err, "no such module: fts5"):
		s.hasFTS = false
	default:
		return err
	}
	return nil
}

func (s *Store) execSchema(name string) error {
	ddl, err := schemaFS.ReadFile(name)
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	if _, err := s.db.Exec(string(ddl)); err != nil {
		return fmt.Errorf("execute %s: %w", name, err)
	}
	return nil
}

// FTS5Available reports whether the full-text index was created.
func (s *Store) FTS5Available() bool {
	return s.hasFTS
}

// Stats counts the rows of each table and the database file size.
type Stats struct {
	MailCount    int64
	ContactCount int64
	TagCount     int64
	TaggingCount int64
	DatabaseSize int64
}

// GetStats returns row counts. A table not yet created counts as zero.
func (s *Store) GetStats() (*Stats, error) {
	stats := &Stats{}
	counts := []struct {
		table string
		dest  *int64
	}{
		{"mails", &stats.MailCount},
		{"contacts", &stats.ContactCount},
		{"tags", &stats.TagCount},
		{"mail_tags", &stats.TaggingCount},
	}
	for _, c := range counts {
		err := s.db.QueryRow("SELECT COUNT(*) FROM " + c.table).Scan(c.dest)
		if err != nil && !isSQLiteError(err, "no such table") {
			return nil, fmt.Errorf("count %s: %w", c.table, err)
		}
	}
	if info, err := os.Stat(s.path); err == nil {
		stats.DatabaseSize = info.Size()
	}
	return stats, nil
}

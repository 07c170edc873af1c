// Package sqlite is the output datastore: one SQLite file holding every
// canonical table under its key plus the attached metadata documents.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/couchcryptid/gelap-etl/internal/domain"

	_ "modernc.org/sqlite"
)

var (
	// ErrStoreClosed is returned by writes after Close.
	ErrStoreClosed = errors.New("store is closed")
	// ErrDuplicateKey is returned when a key is written twice.
	ErrDuplicateKey = errors.New("key already written")
	// ErrKeyNotFound is returned by Get for an unknown key.
	ErrKeyNotFound = errors.New("key not found")
)

const schema = `
CREATE TABLE series (
	key               TEXT PRIMARY KEY,
	building          INTEGER NOT NULL,
	meter             INTEGER NOT NULL,
	physical_quantity TEXT NOT NULL,
	type              TEXT NOT NULL,
	level_names       TEXT NOT NULL,
	dtype             TEXT NOT NULL,
	timezone          TEXT NOT NULL,
	row_count         INTEGER NOT NULL,
	first_ms          INTEGER,
	last_ms           INTEGER,
	converted_at      TEXT NOT NULL
);
CREATE TABLE measurements (
	series_key TEXT NOT NULL REFERENCES series(key),
	position   INTEGER NOT NULL,
	ts_ms      INTEGER NOT NULL,
	value      REAL NOT NULL,
	PRIMARY KEY (series_key, position)
);
CREATE TABLE metadata (
	path     TEXT PRIMARY KEY,
	document TEXT NOT NULL
);
`

// Store is an open datastore file.
type Store struct {
	db   *sql.DB
	path string

	mu     sync.Mutex
	closed bool
}

// Create removes any file at path and creates a fresh, empty store.
func Create(ctx context.Context, path string) (*Store, error) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("remove existing store: %w", err)
	}

	s, err := open(ctx, path)
	if err != nil {
		return nil, err
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		s.db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return s, nil
}

// Open opens an existing store, typically to read it back.
func Open(ctx context.Context, path string) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return open(ctx, path)
}

func open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}
	// One writer owns the file for the whole run.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}
	return &Store{db: db, path: path}, nil
}

// Path returns the store's file path.
func (s *Store) Path() string {
	return s.path
}

// Put writes one canonical table under key inside a single transaction.
func (s *Store) Put(ctx context.Context, key domain.Key, table domain.Table) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("put %s: begin: %w", key, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM series WHERE key = ?`, key.String()).Scan(&exists); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	if exists > 0 {
		return fmt.Errorf("put %s: %w", key, ErrDuplicateKey)
	}

	var firstMS, lastMS sql.NullInt64
	if first, last := table.Span(); table.Len() > 0 {
		firstMS = sql.NullInt64{Int64: first.UnixMilli(), Valid: true}
		lastMS = sql.NullInt64{Int64: last.UnixMilli(), Valid: true}
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO series
		(key, building, meter, physical_quantity, type, level_names, dtype, timezone, row_count, first_ms, last_ms, converted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		key.String(), key.Building, key.Meter,
		table.Column.PhysicalQuantity, table.Column.Type,
		strings.Join(domain.LevelNames[:], ","), "float32", zoneName(table.Location),
		table.Len(), firstMS, lastMS, domain.Now().UTC().Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("put %s: insert series: %w", key, err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO measurements (series_key, position, ts_ms, value) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("put %s: prepare: %w", key, err)
	}
	defer stmt.Close()

	for i, ts := range table.Index {
		if _, err := stmt.ExecContext(ctx, key.String(), i, ts.UnixMilli(), float64(table.Values[i])); err != nil {
			return fmt.Errorf("put %s: insert row %d: %w", key, i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("put %s: commit: %w", key, err)
	}
	return nil
}

// PutMetadata stores a document verbatim under path, replacing any earlier copy.
func (s *Store) PutMetadata(ctx context.Context, path string, document []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}

	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO metadata (path, document) VALUES (?, ?)
		 ON CONFLICT(path) DO UPDATE SET document = excluded.document`,
		path, string(document),
	); err != nil {
		return fmt.Errorf("put metadata %s: %w", path, err)
	}
	return nil
}

// Close finalizes the store. Further writes fail with ErrStoreClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func zoneName(loc *time.Location) string {
	if loc == nil {
		return time.UTC.String()
	}
	return loc.String()
}

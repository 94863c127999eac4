package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/ValentinKolb/sKV/lib/backend"
	"github.com/lni/dragonboat/v4/logger"

	_ "modernc.org/sqlite"
)

var (
	log = logger.GetLogger("sqlite")
)

const schema = `
CREATE TABLE IF NOT EXISTS skv_items (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);`

// Store implements backend.IStringStore on top of a SQLite database file.
type Store struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

// NewStore opens (or creates) a SQLite-backed string store.
// Use ":memory:" for a database that lives as long as the store.
func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}

	// one connection: an in-memory database is private to its connection
	// and SQLite serializes writers anyway
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	log.Debugf("opened sqlite store at %s", path)

	return &Store{db: db, path: path}, nil
}

// Factory returns a backend.StringStoreFactory opening the database at path.
func Factory(path string) backend.StringStoreFactory {
	return func() (backend.IStringStore, error) {
		return NewStore(path)
	}
}

// Path returns the database path the store was opened with.
func (s *Store) Path() string {
	return s.path
}

// --------------------------------------------------------------------------
// Interface Methods (docu see backend/interface.go)
// --------------------------------------------------------------------------

func (s *Store) SetItem(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return backend.ErrClosed
	}

	_, err := s.db.Exec(`
		INSERT INTO skv_items (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

func (s *Store) GetItem(key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return "", false, backend.ErrClosed
	}

	var value string
	err := s.db.QueryRow("SELECT value FROM skv_items WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %q: %w", key, err)
	}
	return value, true, nil
}

func (s *Store) RemoveItem(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return backend.ErrClosed
	}

	if _, err := s.db.Exec("DELETE FROM skv_items WHERE key = ?", key); err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

func (s *Store) Keys() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, backend.ErrClosed
	}

	rows, err := s.db.Query("SELECT key FROM skv_items ORDER BY key")
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// Close shuts down the database. Closing twice is a no-op.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

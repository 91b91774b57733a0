package persist

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"
)

// Store holds the encoded record, standing in for the flash sector.
type Store interface {
	// Load returns the stored bytes, or nil when nothing was ever written.
	Load() ([]byte, error)
	Save(b []byte) error
	Close() error
}

// SQLiteStore keeps the record as a single-row blob.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS persistence_region (
			id                INTEGER PRIMARY KEY CHECK (id = 0),
			data              BLOB NOT NULL,
			updated_at        TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Load returns the stored record bytes.
func (s *SQLiteStore) Load() ([]byte, error) {
	var b []byte
	err := s.db.QueryRow(`SELECT data FROM persistence_region WHERE id = 0`).Scan(&b)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load record: %w", err)
	}
	return b, nil
}

// Save replaces the stored record bytes.
func (s *SQLiteStore) Save(b []byte) error {
	_, err := s.db.Exec(`
		INSERT INTO persistence_region (id, data, updated_at)
		VALUES (0, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
	`, b)
	if err != nil {
		return fmt.Errorf("save record: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// MemoryStore is an in-memory Store that counts writes.
type MemoryStore struct {
	mu     sync.Mutex
	data   []byte
	writes int

	// SaveError, if set, will be returned by Save.
	SaveError error
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load returns a copy of the stored bytes.
func (m *MemoryStore) Load() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return nil, nil
	}
	return append([]byte(nil), m.data...), nil
}

// Save stores a copy of b.
func (m *MemoryStore) Save(b []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveError != nil {
		return m.SaveError
	}
	m.data = append([]byte(nil), b...)
	m.writes++
	return nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }

// Writes returns the number of successful saves.
func (m *MemoryStore) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

package cache

import (
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

// SQLite keeps entries in a single SQLite table.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the database at path and ensures the schema.
func NewSQLite(path string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrapf(err, "cache: create %q", filepath.Dir(path))
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "cache: open sqlite")
	}
	// WAL lets readers proceed while a minified asset is written; the busy
	// timeout makes concurrent writers wait instead of failing.
	if _, err := db.Exec(`
		PRAGMA journal_mode=WAL;
		PRAGMA busy_timeout=5000;
		PRAGMA synchronous=NORMAL;
	`); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "cache: sqlite pragmas")
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)
	s := &SQLite{db: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) ensureSchema() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS entries (
    key TEXT PRIMARY KEY,
    value BLOB NOT NULL,
    created INTEGER NOT NULL
);
`)
	return errors.Wrap(err, "cache: ensure schema")
}

// Get returns the value for key when fresh and deletes it when stale.
func (s *SQLite) Get(key string, ttl time.Duration) ([]byte, bool, error) {
	var value []byte
	var created int64
	err := s.db.QueryRow(`SELECT value, created FROM entries WHERE key = ?`, key).Scan(&value, &created)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "cache: get %q", key)
	}
	if (Entry{Created: time.Unix(0, created)}).fresh(now(), ttl) {
		return value, true, nil
	}
	// Only delete the row we judged stale; a concurrent Put may have
	// replaced it already.
	if _, err := s.db.Exec(`DELETE FROM entries WHERE key = ? AND created = ?`, key, created); err != nil {
		return nil, false, errors.Wrapf(err, "cache: evict %q", key)
	}
	return nil, false, nil
}

// Put upserts value under key.
func (s *SQLite) Put(key string, value []byte, _ time.Duration) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO entries (key, value, created) VALUES (?, ?, ?)`,
		key, value, now().UnixNano())
	return errors.Wrapf(err, "cache: put %q", key)
}

// Len counts stored rows. Errors count as an empty cache.
func (s *SQLite) Len() int {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM entries`).Scan(&n); err != nil {
		return 0
	}
	return n
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

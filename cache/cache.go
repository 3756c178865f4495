// Package cache stores transformed bytes (minified scripts and styles) with a
// time-to-live that the caller supplies on every read.
//
// The TTL is never stored with an entry. An entry is valid when its age is
// below the TTL passed to Get; a stale entry is evicted on that same call.
package cache

import (
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
)

// Engine is implemented by every cache backend.
type Engine interface {
	// Get returns the value stored for key if it is younger than ttl.
	Get(key string, ttl time.Duration) ([]byte, bool, error)
	// Put stores value under key, replacing any previous entry.
	Put(key string, value []byte, ttl time.Duration) error
	// Len reports the number of entries currently held, stale ones included.
	Len() int
	Close() error
}

// Entry is a single cached value.
type Entry struct {
	Key     string
	Value   []byte
	Created time.Time
}

// fresh reports whether e is still valid for ttl at now.
func (e Entry) fresh(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.Created) < ttl
}

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendDisk   = "disk"
	BackendSQLite = "sqlite"
)

// ErrUnknownBackend is returned by Open for an unsupported backend name.
var ErrUnknownBackend = errors.New("cache: unknown backend")

// Open creates the named backend. Disk and SQLite backends keep their data
// below dir, which is created when missing.
func Open(backend, dir string) (Engine, error) {
	switch backend {
	case "", BackendMemory:
		return NewMemory(), nil
	case BackendDisk:
		return NewDisk(filepath.Join(dir, "cache"))
	case BackendSQLite:
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "cache: create %q", dir)
		}
		return NewSQLite(filepath.Join(dir, "cache.db"))
	default:
		return nil, errors.Wrapf(ErrUnknownBackend, "%q", backend)
	}
}

var now = time.Now

package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const indexName = "index.json"

type indexEntry struct {
	Key     string `json:"key"`
	File    string `json:"file"`
	Created int64  `json:"created"`
}

// Disk keeps one payload file per entry in a directory, plus an index file
// mapping keys to payload files and creation times.
type Disk struct {
	mu    sync.Mutex
	dir   string
	index map[string]indexEntry
}

// NewDisk opens (or creates) a disk backend rooted at dir. An unreadable
// index is discarded; the cache is allowed to start cold.
func NewDisk(dir string) (*Disk, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "cache: create %q", dir)
	}
	d := &Disk{dir: dir, index: make(map[string]indexEntry)}
	b, err := os.ReadFile(filepath.Join(dir, indexName))
	if err == nil {
		var entries []indexEntry
		if json.Unmarshal(b, &entries) == nil {
			for _, e := range entries {
				d.index[e.Key] = e
			}
		}
	}
	return d, nil
}

// Get reads the payload for key when it is fresh, evicting it otherwise.
func (d *Disk) Get(key string, ttl time.Duration) ([]byte, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.index[key]
	if !ok {
		return nil, false, nil
	}
	if !(Entry{Created: time.Unix(0, e.Created)}).fresh(now(), ttl) {
		delete(d.index, key)
		_ = os.Remove(filepath.Join(d.dir, e.File))
		return nil, false, d.writeIndex()
	}
	b, err := os.ReadFile(filepath.Join(d.dir, e.File))
	if err != nil {
		delete(d.index, key)
		_ = os.Remove(filepath.Join(d.dir, e.File))
		if ierr := d.writeIndex(); ierr != nil {
			return nil, false, ierr
		}
		return nil, false, errors.Wrapf(err, "cache: read entry %q", key)
	}
	return b, true, nil
}

// Put writes value to a new payload file and replaces the index entry.
func (d *Disk) Put(key string, value []byte, _ time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	name := uuid.NewString()
	if err := os.WriteFile(filepath.Join(d.dir, name), value, 0o644); err != nil {
		return errors.Wrapf(err, "cache: write entry %q", key)
	}
	if old, ok := d.index[key]; ok {
		_ = os.Remove(filepath.Join(d.dir, old.File))
	}
	d.index[key] = indexEntry{Key: key, File: name, Created: now().UnixNano()}
	return d.writeIndex()
}

// Len returns the number of indexed entries.
func (d *Disk) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.index)
}

// Close is a no-op; the directory is working storage cleared at startup.
func (d *Disk) Close() error { return nil }

// writeIndex replaces the index file atomically. Callers hold d.mu.
func (d *Disk) writeIndex() error {
	entries := make([]indexEntry, 0, len(d.index))
	for _, e := range d.index {
		entries = append(entries, e)
	}
	b, err := json.Marshal(entries)
	if err != nil {
		return errors.Wrap(err, "cache: encode index")
	}
	tmp := filepath.Join(d.dir, indexName+".tmp")
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return errors.Wrap(err, "cache: write index")
	}
	return errors.Wrap(os.Rename(tmp, filepath.Join(d.dir, indexName)), "cache: replace index")
}

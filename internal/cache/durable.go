// Package cache is the engine's single authoritative in-memory store for
// orders, positions, and accounts, plus an optional write-through durable
// backing store (each Cache mutation writes its entity synchronously; there
// is no deferred or periodic flush): atomic write .tmp + rename, one file
// per entity,
// generalized from JSON-per-market-position to MessagePack-per-entity
// under a "{cache_prefix}:{entity_kind}:{id}" keyspace.
package cache

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
)

// Durable is a crash-safe key/value backing store: every Put does an
// atomic write-then-rename so a process crash mid-write never corrupts an
// existing entry, generalized to arbitrary keys and msgpack payloads
// instead of one JSON file per market position.
type Durable struct {
	dir    string
	prefix string
	mu     sync.Mutex
}

// OpenDurable creates (if needed) dir and returns a Durable store whose
// keys are namespaced under prefix (spec's "{cache_prefix}").
func OpenDurable(dir, prefix string) (*Durable, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &Durable{dir: dir, prefix: prefix}, nil
}

// key builds the "{cache_prefix}:{entity_kind}:{id}" logical key and maps
// it to a filesystem-safe filename.
func (d *Durable) key(entityKind, id string) string {
	logical := fmt.Sprintf("%s:%s:%s", d.prefix, entityKind, id)
	return hex.EncodeToString([]byte(logical)) + ".mp"
}

// Put msgpack-encodes v and atomically writes it under (entityKind, id).
func (d *Durable) Put(entityKind, id string, v interface{}) error {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s/%s: %w", entityKind, id, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	path := filepath.Join(d.dir, d.key(entityKind, id))
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write %s/%s: %w", entityKind, id, err)
	}
	return os.Rename(tmp, path)
}

// Get decodes the entry for (entityKind, id) into v. Returns (false, nil)
// if no entry exists.
func (d *Durable) Get(entityKind, id string, v interface{}) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	path := filepath.Join(d.dir, d.key(entityKind, id))
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("read %s/%s: %w", entityKind, id, err)
	}
	if err := msgpack.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("unmarshal %s/%s: %w", entityKind, id, err)
	}
	return true, nil
}

// Delete removes the entry for (entityKind, id), if present.
func (d *Durable) Delete(entityKind, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	path := filepath.Join(d.dir, d.key(entityKind, id))
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete %s/%s: %w", entityKind, id, err)
	}
	return nil
}

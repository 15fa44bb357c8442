package filestore

import (
	"os"
	"sync"
)

// CollectionConfig configures a Collection.
type CollectionConfig struct {
	FilePath string      // empty = in-memory only
	Perm     os.FileMode // default 0o600
	Codec    Codec       // default derived from FilePath
}

// Collection is a keyed map persisted as one document. Every mutation
// rewrites the document atomically; a failed write rolls the map back so
// memory never runs ahead of disk.
type Collection[K comparable, V any] struct {
	mu       sync.RWMutex
	items    map[K]V
	filePath string
	perm     os.FileMode
	codec    Codec

	// clone deep-copies a value for rollback snapshots. Nil copies by value.
	clone func(V) V
}

// NewCollection creates a Collection. Call Load to populate it from disk.
func NewCollection[K comparable, V any](cfg CollectionConfig) *Collection[K, V] {
	perm := cfg.Perm
	if perm == 0 {
		perm = 0o600
	}
	codec := cfg.Codec
	if codec == "" {
		codec = CodecForPath(cfg.FilePath)
	}
	return &Collection[K, V]{
		items:    make(map[K]V),
		filePath: cfg.FilePath,
		perm:     perm,
		codec:    codec,
	}
}

// SetClone installs a deep-copy function used for rollback snapshots.
func (c *Collection[K, V]) SetClone(fn func(V) V) {
	c.clone = fn
}

// Path returns the backing file, empty for in-memory collections.
func (c *Collection[K, V]) Path() string {
	return c.filePath
}

// Load reads the backing document. Missing files leave the map empty.
func (c *Collection[K, V]) Load() error {
	if c.filePath == "" {
		return nil
	}
	data, err := ReadFileOrEmpty(c.filePath)
	if err != nil || len(data) == 0 {
		return err
	}

	items := make(map[K]V)
	if err := c.codec.Decode(data, &items); err != nil {
		return err
	}

	c.mu.Lock()
	c.items = items
	c.mu.Unlock()
	return nil
}

// Get returns the value for key.
func (c *Collection[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.items[key]
	return v, ok
}

// Len returns the number of items.
func (c *Collection[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Mutate gives fn exclusive access to the live map and persists afterwards.
// If fn or the write fails the map is restored.
func (c *Collection[K, V]) Mutate(fn func(items map[K]V) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	snapshot := make(map[K]V, len(c.items))
	for k, v := range c.items {
		if c.clone != nil {
			v = c.clone(v)
		}
		snapshot[k] = v
	}

	if err := fn(c.items); err != nil {
		c.items = snapshot
		return err
	}
	if err := c.persistLocked(); err != nil {
		c.items = snapshot
		return err
	}
	return nil
}

// ReadLocked calls fn with the map under a read lock.
func (c *Collection[K, V]) ReadLocked(fn func(items map[K]V)) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	fn(c.items)
}

func (c *Collection[K, V]) persistLocked() error {
	if c.filePath == "" {
		return nil
	}
	data, err := c.codec.Encode(c.items)
	if err != nil {
		return err
	}
	return AtomicWrite(c.filePath, data, c.perm)
}

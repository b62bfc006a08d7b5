// Package cache provides an LRU cache of object file images with disk
// persistence.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/vmihailenco/msgpack/v5"
)

// ErrKeyNotFound is returned when a path is not in the cache.
var ErrKeyNotFound = errors.New("key not found")

// unboundedSize is the entry limit used when Options.MaxSize is 0.
const unboundedSize = 1 << 20

// Entry is one cached file image. Size and ModTime describe the file at the
// time it was read and decide whether the entry is still valid.
type Entry struct {
	Path    string    `msgpack:"path" json:"path"`
	Size    int64     `msgpack:"size" json:"size"`
	ModTime time.Time `msgpack:"mod_time" json:"mod_time"`
	Digest  string    `msgpack:"digest" json:"digest"`
	Data    []byte    `msgpack:"data" json:"-"`
}

func newEntry(path string, info os.FileInfo, data []byte) Entry {
	sum := sha256.Sum256(data)
	return Entry{
		Path:    path,
		Size:    info.Size(),
		ModTime: info.ModTime(),
		Digest:  hex.EncodeToString(sum[:]),
		Data:    data,
	}
}

func (e Entry) fresh(info os.FileInfo) bool {
	return e.Size == info.Size() && e.ModTime.Equal(info.ModTime())
}

// Options configures the file cache.
type Options struct {
	// MaxSize is the maximum number of entries.
	// 0 means unlimited.
	MaxSize int

	// MaxBytes is the maximum total size of cached images.
	// 0 means unlimited.
	MaxBytes int64

	// OnEvict is called when an entry is evicted or removed.
	OnEvict func(path string, size int64)
}

// Stats reports cache usage.
type Stats struct {
	Length       int   `json:"length"`
	CurrentBytes int64 `json:"current_bytes"`
	HitCount     int64 `json:"hit_count"`
	MissCount    int64 `json:"miss_count"`
}

// FileCache caches file contents keyed by absolute path. It is safe for
// concurrent use and satisfies the linker's FileReader.
type FileCache struct {
	mu           sync.Mutex
	entries      *lru.Cache[string, Entry]
	maxBytes     int64
	currentBytes int64
	hitCount     int64
	missCount    int64
	onEvict      func(path string, size int64)
}

// New creates a file cache with the given options.
func New(opts Options) (*FileCache, error) {
	size := opts.MaxSize
	if size <= 0 {
		size = unboundedSize
	}
	c := &FileCache{
		maxBytes: opts.MaxBytes,
		onEvict:  opts.OnEvict,
	}
	entries, err := lru.NewWithEvict[string, Entry](size, c.evicted)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}
	c.entries = entries
	return c, nil
}

// evicted runs inside lru calls, which are always made with c.mu held.
func (c *FileCache) evicted(path string, e Entry) {
	c.currentBytes -= int64(len(e.Data))
	if c.onEvict != nil {
		c.onEvict(path, int64(len(e.Data)))
	}
}

func key(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}

// ReadFile returns the contents of path, from the cache when the file has
// not changed since it was cached. The returned slice is owned by the caller.
func (c *FileCache) ReadFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	k := key(path)

	c.mu.Lock()
	e, ok := c.entries.Get(k)
	if ok && e.fresh(info) {
		c.hitCount++
		data := append([]byte(nil), e.Data...)
		c.mu.Unlock()
		return data, nil
	}
	c.missCount++
	c.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c.Set(newEntry(k, info, append([]byte(nil), data...)))
	return data, nil
}

// Get returns the cached entry for path without checking the file on disk.
func (c *FileCache) Get(path string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Get(key(path))
}

// Set stores an entry, evicting the least recently used entries while the
// cache is over its byte limit. The newest entry is always kept.
func (c *FileCache) Set(e Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.set(e)
}

func (c *FileCache) set(e Entry) {
	e.Path = key(e.Path)
	c.entries.Remove(e.Path)
	c.entries.Add(e.Path, e)
	c.currentBytes += int64(len(e.Data))

	for c.maxBytes > 0 && c.currentBytes > c.maxBytes && c.entries.Len() > 1 {
		c.entries.RemoveOldest()
	}
}

// Delete removes path from the cache.
func (c *FileCache) Delete(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.entries.Remove(key(path)) {
		return fmt.Errorf("%w: %s", ErrKeyNotFound, path)
	}
	return nil
}

// Clear removes all entries.
func (c *FileCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Purge()
	c.currentBytes = 0
}

// Len returns the number of entries in the cache.
func (c *FileCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

// Stats returns the current cache statistics.
func (c *FileCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Length:       c.entries.Len(),
		CurrentBytes: c.currentBytes,
		HitCount:     c.hitCount,
		MissCount:    c.missCount,
	}
}

// Entries returns the cached entries from least to most recently used.
func (c *FileCache) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Values()
}

// Save persists the cache to a writer using msgpack.
func (c *FileCache) Save(w io.Writer) error {
	return msgpack.NewEncoder(w).Encode(c.Entries())
}

// Load restores the cache from a reader using msgpack. Existing entries are
// dropped. Recency order is preserved.
func (c *FileCache) Load(r io.Reader) error {
	var entries []Entry
	if err := msgpack.NewDecoder(r).Decode(&entries); err != nil {
		return fmt.Errorf("failed to decode cache: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Purge()
	c.currentBytes = 0
	for _, e := range entries {
		c.set(e)
	}
	return nil
}

// PersistToFile saves the cache to a file, creating its directory.
func PersistToFile(c *FileCache, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create cache file: %w", err)
	}
	defer f.Close()

	return c.Save(f)
}

// LoadFromFile loads the cache from a file.
func LoadFromFile(c *FileCache, path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // No cache file is not an error
		}
		return fmt.Errorf("failed to open cache file: %w", err)
	}
	defer f.Close()

	return c.Load(f)
}

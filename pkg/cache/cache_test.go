package cache

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func entry(path, content string) Entry {
	return Entry{Path: path, Size: int64(len(content)), ModTime: time.Unix(1700000000, 0), Data: []byte(content)}
}

func TestFileCache_ReadFile(t *testing.T) {
	c, err := New(Options{MaxSize: 10})
	require.NoError(t, err)
	path := writeFile(t, t.TempDir(), "libc.so.6", "\x7fELF image")

	data, err := c.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("\x7fELF image"), data)

	data[0] = 0
	again, err := c.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("\x7fELF image"), again)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.HitCount)
	assert.Equal(t, int64(1), stats.MissCount)
	assert.Equal(t, int64(len("\x7fELF image")), stats.CurrentBytes)

	e, ok := c.Get(path)
	require.True(t, ok)
	assert.Len(t, e.Digest, 64)
}

func TestFileCache_ReadFileInvalidatesChangedFile(t *testing.T) {
	c, err := New(Options{})
	require.NoError(t, err)
	dir := t.TempDir()
	path := writeFile(t, dir, "prog", "first")

	_, err = c.ReadFile(path)
	require.NoError(t, err)

	writeFile(t, dir, "prog", "second version")
	data, err := c.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("second version"), data)
	assert.Equal(t, int64(2), c.Stats().MissCount)
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, int64(len("second version")), c.Stats().CurrentBytes)
}

func TestFileCache_ReadFileMissing(t *testing.T) {
	c, err := New(Options{})
	require.NoError(t, err)

	_, err = c.ReadFile(filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Equal(t, 0, c.Len())
}

func TestFileCache_Eviction(t *testing.T) {
	var evicted []string
	c, err := New(Options{MaxSize: 2, OnEvict: func(path string, _ int64) {
		evicted = append(evicted, filepath.Base(path))
	}})
	require.NoError(t, err)

	c.Set(entry("/lib/a", "aaaa"))
	c.Set(entry("/lib/b", "bbbb"))
	c.Get("/lib/a")
	c.Set(entry("/lib/c", "cccc"))

	assert.Equal(t, []string{"b"}, evicted)
	_, ok := c.Get("/lib/b")
	assert.False(t, ok)
	_, ok = c.Get("/lib/a")
	assert.True(t, ok)
	assert.Equal(t, int64(8), c.Stats().CurrentBytes)
}

func TestFileCache_MaxBytes(t *testing.T) {
	c, err := New(Options{MaxBytes: 10})
	require.NoError(t, err)

	c.Set(entry("/lib/a", "1234"))
	c.Set(entry("/lib/b", "1234"))
	c.Set(entry("/lib/c", "1234"))

	assert.Equal(t, 2, c.Len())
	assert.Equal(t, int64(8), c.Stats().CurrentBytes)
	_, ok := c.Get("/lib/a")
	assert.False(t, ok)

	// A single oversized entry is still kept.
	c.Set(entry("/lib/big", "0123456789abcdef"))
	assert.Equal(t, 1, c.Len())
}

func TestFileCache_Update(t *testing.T) {
	c, err := New(Options{MaxSize: 10})
	require.NoError(t, err)

	c.Set(entry("/lib/a", "v1"))
	c.Set(entry("/lib/a", "version2"))

	e, ok := c.Get("/lib/a")
	require.True(t, ok)
	assert.Equal(t, []byte("version2"), e.Data)
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, int64(8), c.Stats().CurrentBytes)
}

func TestFileCache_DeleteAndClear(t *testing.T) {
	c, err := New(Options{MaxSize: 10})
	require.NoError(t, err)

	c.Set(entry("/lib/a", "a"))
	c.Set(entry("/lib/b", "b"))

	require.NoError(t, c.Delete("/lib/a"))
	assert.ErrorIs(t, c.Delete("/lib/a"), ErrKeyNotFound)
	assert.Equal(t, 1, c.Len())

	c.Clear()
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, int64(0), c.Stats().CurrentBytes)
}

func TestFileCache_SaveLoad(t *testing.T) {
	c, err := New(Options{MaxSize: 10})
	require.NoError(t, err)
	c.Set(entry("/lib/a", "aaa"))
	c.Set(entry("/lib/b", "bb"))
	c.Get("/lib/a")

	var buf bytes.Buffer
	require.NoError(t, c.Save(&buf))

	c2, err := New(Options{MaxSize: 10})
	require.NoError(t, err)
	require.NoError(t, c2.Load(&buf))

	assert.Equal(t, 2, c2.Len())
	assert.Equal(t, int64(5), c2.Stats().CurrentBytes)

	entries := c2.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "/lib/b", entries[0].Path)
	assert.Equal(t, "/lib/a", entries[1].Path)
	assert.True(t, entries[1].ModTime.Equal(time.Unix(1700000000, 0)))
	assert.Equal(t, []byte("aaa"), entries[1].Data)
}

func TestFileCache_PersistToFile(t *testing.T) {
	dir := t.TempDir()
	lib := writeFile(t, dir, "libm.so.6", "math")
	cachePath := filepath.Join(dir, "nested", "images.cache")

	c, err := New(Options{})
	require.NoError(t, err)
	_, err = c.ReadFile(lib)
	require.NoError(t, err)
	require.NoError(t, PersistToFile(c, cachePath))

	restored, err := New(Options{})
	require.NoError(t, err)
	require.NoError(t, LoadFromFile(restored, cachePath))

	data, err := restored.ReadFile(lib)
	require.NoError(t, err)
	assert.Equal(t, []byte("math"), data)
	assert.Equal(t, int64(1), restored.Stats().HitCount)
}

func TestLoadFromFile_Missing(t *testing.T) {
	c, err := New(Options{})
	require.NoError(t, err)
	assert.NoError(t, LoadFromFile(c, filepath.Join(t.TempDir(), "none")))
}

package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func BenchmarkFileCacheReadFile(b *testing.B) {
	c, err := New(Options{MaxSize: 100})
	if err != nil {
		b.Fatal(err)
	}
	path := filepath.Join(b.TempDir(), "libc.so.6")
	if err := os.WriteFile(path, []byte(strings.Repeat("x", 1<<16)), 0644); err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := c.ReadFile(path); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkFileCacheSet(b *testing.B) {
	c, err := New(Options{MaxSize: 10000})
	if err != nil {
		b.Fatal(err)
	}
	data := []byte(strings.Repeat("x", 100))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Set(Entry{Path: fmt.Sprintf("/lib/%d", i), Data: data})
	}
}

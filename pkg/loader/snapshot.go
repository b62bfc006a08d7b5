package loader

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/samber/lo"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/l3aro/binlift/pkg/memory"
)

// snapshotVersion is bumped whenever the encoded layout changes.
const snapshotVersion = 1

// LibraryInfo describes one object loaded by an ElfLinker.
type LibraryInfo struct {
	Name        string `msgpack:"name" json:"name"`
	Path        string `msgpack:"path" json:"path"`
	BaseAddress uint64 `msgpack:"base_address" json:"base_address"`
}

// Snapshot is a self-contained record of a linked image that downstream
// tools can analyze without the original files.
type Snapshot struct {
	Version      int             `msgpack:"version" json:"version"`
	Root         string          `msgpack:"root" json:"root"`
	Architecture Architecture    `msgpack:"architecture" json:"architecture"`
	ProgramEntry uint64          `msgpack:"program_entry" json:"program_entry"`
	Libraries    []LibraryInfo   `msgpack:"libraries" json:"libraries"`
	Functions    []FunctionEntry `msgpack:"functions" json:"functions"`
	Memory       *memory.Memory  `msgpack:"memory" json:"-"`
}

// LibraryInfos lists every loaded object in name order.
func (l *ElfLinker) LibraryInfos() []LibraryInfo {
	return lo.Map(l.Libraries(), func(name string, _ int) LibraryInfo {
		return LibraryInfo{
			Name:        name,
			Path:        l.paths[name],
			BaseAddress: l.loaded[name].BaseAddress(),
		}
	})
}

// NewSnapshot captures the current state of l.
func NewSnapshot(l *ElfLinker) (*Snapshot, error) {
	arch, err := l.Architecture()
	if err != nil {
		return nil, err
	}
	functions, err := l.FunctionEntries()
	if err != nil {
		return nil, err
	}
	mem, err := l.Memory()
	if err != nil {
		return nil, err
	}
	return &Snapshot{
		Version:      snapshotVersion,
		Root:         filepath.Base(l.filename),
		Architecture: arch,
		ProgramEntry: l.ProgramEntry(),
		Libraries:    l.LibraryInfos(),
		Functions:    functions,
		Memory:       mem,
	}, nil
}

// Write encodes the snapshot with msgpack.
func (s *Snapshot) Write(w io.Writer) error {
	if err := msgpack.NewEncoder(w).Encode(s); err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	return nil
}

// ReadSnapshot decodes a snapshot written by Write.
func ReadSnapshot(r io.Reader) (*Snapshot, error) {
	var s Snapshot
	if err := msgpack.NewDecoder(r).Decode(&s); err != nil {
		return nil, fmt.Errorf("%w: decoding snapshot: %w", ErrMalformedInput, err)
	}
	if s.Version != snapshotVersion {
		return nil, fmt.Errorf("%w: snapshot version %d, want %d", ErrMalformedInput, s.Version, snapshotVersion)
	}
	if s.Memory == nil {
		s.Memory = memory.New()
	}
	return &s, nil
}

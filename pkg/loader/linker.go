package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/samber/lo"

	"github.com/l3aro/binlift/internal/log"
	"github.com/l3aro/binlift/pkg/memory"
)

const (
	// DefaultLibBase is the address the first shared library is placed at
	// once bumped by one step.
	DefaultLibBase uint64 = 0x80000000
	// LibBaseStep is the distance between consecutive library base addresses.
	LibBaseStep uint64 = 0x04000000
)

// FileReader supplies file contents to the linker.
type FileReader interface {
	ReadFile(path string) ([]byte, error)
}

type osReader struct{}

func (osReader) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// LinkerOptions configures an ElfLinker. The zero value uses the package
// defaults.
type LinkerOptions struct {
	// LibBase is the starting value of the library address counter.
	LibBase uint64
	// LibBaseStep is added to the counter before each library is placed.
	LibBaseStep uint64
	// SearchPaths are consulted after the root file's directory.
	SearchPaths []string
	// MaxSegmentSize caps each PT_LOAD segment. Zero means
	// DefaultMaxSegmentSize.
	MaxSegmentSize uint64
	// Reader reads object files. Defaults to the filesystem.
	Reader FileReader
	// Logger receives load progress. Defaults to a no-op logger.
	Logger log.Logger
}

// ElfLinker loads a root binary and, transitively, the shared libraries it
// names in DT_NEEDED, each at its own base address.
type ElfLinker struct {
	filename       string
	loaded         map[string]*Elf
	paths          map[string]string
	memory         *memory.Memory
	nextLibAddress uint64
	step           uint64
	maxSegmentSize uint64
	searchPaths    []string
	reader         FileReader
	logger         log.Logger
}

// NewElfLinker loads path at base address 0 together with its dependencies.
// Any failure along the dependency chain fails the whole link.
func NewElfLinker(path string, opts LinkerOptions) (*ElfLinker, error) {
	l := &ElfLinker{
		filename:       path,
		loaded:         make(map[string]*Elf),
		paths:          make(map[string]string),
		memory:         memory.New(),
		nextLibAddress: opts.LibBase,
		step:           opts.LibBaseStep,
		maxSegmentSize: opts.MaxSegmentSize,
		searchPaths:    opts.SearchPaths,
		reader:         opts.Reader,
		logger:         opts.Logger,
	}
	if l.nextLibAddress == 0 {
		l.nextLibAddress = DefaultLibBase
	}
	if l.step == 0 {
		l.step = LibBaseStep
	}
	if l.reader == nil {
		l.reader = osReader{}
	}
	if l.logger == nil {
		l.logger = log.Nop()
	}

	if err := l.LoadElf(path, 0); err != nil {
		return nil, err
	}
	return l, nil
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// resolve prefers a file of the same name next to the root binary, then the
// configured search paths, then path as given.
func (l *ElfLinker) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if candidate := filepath.Join(filepath.Dir(l.filename), path); isFile(candidate) {
		return candidate
	}
	for _, dir := range l.searchPaths {
		if candidate := filepath.Join(dir, path); isFile(candidate) {
			return candidate
		}
	}
	return path
}

// LoadElf loads path at baseAddress, merges its segments and recursively
// loads every dependency not loaded yet.
func (l *ElfLinker) LoadElf(path string, baseAddress uint64) error {
	resolved := l.resolve(path)
	name := filepath.Base(resolved)

	if prev, ok := l.paths[name]; ok {
		return fmt.Errorf("%w: %s from %s, already loaded from %s",
			ErrDuplicateLibrary, name, resolved, prev)
	}

	l.logger.Info("loading elf", "path", resolved, "base_address", fmt.Sprintf("0x%x", baseAddress))

	data, err := l.reader.ReadFile(resolved)
	if err != nil {
		return fmt.Errorf("%w: reading %s: %w", ErrIO, resolved, err)
	}
	e, err := NewElf(data, baseAddress)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", resolved, err)
	}
	e.SetMaxSegmentSize(l.maxSegmentSize)

	if err := l.checkSpan(e, resolved); err != nil {
		return err
	}

	mem, err := e.Memory()
	if err != nil {
		return fmt.Errorf("mapping %s: %w", resolved, err)
	}
	l.memory.Merge(mem)

	l.loaded[name] = e
	l.paths[name] = resolved

	needed, err := e.DtNeeded()
	if err != nil {
		return fmt.Errorf("reading dependencies of %s: %w", resolved, err)
	}

	for _, so := range needed {
		if _, ok := l.loaded[filepath.Base(so)]; ok {
			continue
		}
		l.logger.Debug("adding dependency", "library", so, "needed_by", name)
		l.nextLibAddress += l.step
		if err := l.LoadElf(so, l.nextLibAddress); err != nil {
			return fmt.Errorf("%s needed by %s: %w", so, name, err)
		}
	}

	return nil
}

// checkSpan rejects an object whose segments reach the next base address
// the linker could hand out.
func (l *ElfLinker) checkSpan(e *Elf, path string) error {
	start, end, ok, err := e.Span()
	if err != nil {
		return fmt.Errorf("mapping %s: %w", path, err)
	}
	if !ok {
		return nil
	}
	limit := l.nextLibAddress + l.step
	if end > limit {
		return fmt.Errorf("%w: %s spans [0x%x, 0x%x), past next library base 0x%x",
			ErrInternalInvariant, path, start, end, limit)
	}
	return nil
}

// Libraries returns the base names of every loaded object, sorted.
func (l *ElfLinker) Libraries() []string {
	names := lo.Keys(l.loaded)
	slices.Sort(names)
	return names
}

// Elf returns the loaded object registered under name.
func (l *ElfLinker) Elf(name string) (*Elf, bool) {
	e, ok := l.loaded[name]
	return e, ok
}

// Path returns the file an object was loaded from.
func (l *ElfLinker) Path(name string) (string, bool) {
	p, ok := l.paths[name]
	return p, ok
}

// BaseAddress returns the base address an object was placed at.
func (l *ElfLinker) BaseAddress(name string) (uint64, bool) {
	e, ok := l.loaded[name]
	if !ok {
		return 0, false
	}
	return e.BaseAddress(), true
}

func (l *ElfLinker) root() *Elf {
	return l.loaded[filepath.Base(l.filename)]
}

// Memory returns a copy of the merged memory image.
func (l *ElfLinker) Memory() (*memory.Memory, error) {
	return l.memory.Clone(), nil
}

// FunctionEntries concatenates the function entries of every loaded object
// in library name order.
func (l *ElfLinker) FunctionEntries() ([]FunctionEntry, error) {
	var entries []FunctionEntry
	for _, name := range l.Libraries() {
		fe, err := l.loaded[name].FunctionEntries()
		if err != nil {
			return nil, fmt.Errorf("function entries of %s: %w", name, err)
		}
		entries = append(entries, fe...)
	}
	return entries, nil
}

// ProgramEntry returns the entry point of the root binary.
func (l *ElfLinker) ProgramEntry() uint64 {
	if root := l.root(); root != nil {
		return root.ProgramEntry()
	}
	return 0
}

// Architecture returns the architecture of the root binary.
func (l *ElfLinker) Architecture() (Architecture, error) {
	root := l.root()
	if root == nil {
		return "", fmt.Errorf("%w: root %s not loaded", ErrInternalInvariant, l.filename)
	}
	return root.Architecture()
}

var _ Loader = (*ElfLinker)(nil)

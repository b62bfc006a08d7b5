package loader

import (
	"bytes"
	"debug/elf"
	"errors"
	"fmt"
	"os"

	"github.com/l3aro/binlift/pkg/memory"
)

// DefaultMaxSegmentSize bounds the zero-filled size of a single PT_LOAD
// segment unless SetMaxSegmentSize says otherwise.
const DefaultMaxSegmentSize uint64 = 256 << 20

// Elf is a single ELF image placed at a base address.
//
// The headers are parsed once in NewElf; every accessor then works from the
// parsed view and the raw bytes, so results never change after construction
// apart from user-declared functions.
type Elf struct {
	baseAddress         uint64
	bytes               []byte
	file                *elf.File
	userFunctionEntries []uint64
	maxSegmentSize      uint64
}

// NewElf parses b as an ELF image loaded at baseAddress. The Elf takes
// ownership of b.
func NewElf(b []byte, baseAddress uint64) (*Elf, error) {
	if len(b) < elf.EI_NIDENT || !bytes.HasPrefix(b, []byte(elf.ELFMAG)) {
		return nil, fmt.Errorf("%w: missing ELF magic", ErrInvalidFormat)
	}
	switch elf.Class(b[elf.EI_CLASS]) {
	case elf.ELFCLASS32, elf.ELFCLASS64:
	default:
		return nil, fmt.Errorf("%w: unknown ELF class %d", ErrInvalidFormat, b[elf.EI_CLASS])
	}

	f, err := elf.NewFile(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedInput, err)
	}

	return &Elf{
		baseAddress:    baseAddress,
		bytes:          b,
		file:           f,
		maxSegmentSize: DefaultMaxSegmentSize,
	}, nil
}

// ElfFromFile loads the ELF at path with a base address of 0.
func ElfFromFile(path string) (*Elf, error) {
	return ElfFromFileWithBaseAddress(path, 0)
}

// ElfFromFileWithBaseAddress loads the ELF at path at the given base address.
func ElfFromFileWithBaseAddress(path string, baseAddress uint64) (*Elf, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", ErrIO, path, err)
	}
	e, err := NewElf(data, baseAddress)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return e, nil
}

// BaseAddress returns the address this Elf has been placed at.
func (e *Elf) BaseAddress() uint64 {
	return e.baseAddress
}

// AddUserFunction declares a function start the symbol tables do not know
// about. The address is file-relative; the base address is added later.
func (e *Elf) AddUserFunction(address uint64) {
	e.userFunctionEntries = append(e.userFunctionEntries, address)
}

// SetMaxSegmentSize changes the largest segment Memory will allocate.
// Zero restores DefaultMaxSegmentSize.
func (e *Elf) SetMaxSegmentSize(n uint64) {
	if n == 0 {
		n = DefaultMaxSegmentSize
	}
	e.maxSegmentSize = n
}

// slice returns b[off:off+size] after checking the range against the file.
func (e *Elf) slice(off, size uint64) ([]byte, error) {
	end := off + size
	if end < off || end > uint64(len(e.bytes)) {
		return nil, fmt.Errorf("%w: range [0x%x, 0x%x) outside file of %d bytes",
			ErrMalformedInput, off, end, len(e.bytes))
	}
	return e.bytes[off:end], nil
}

func permissions(flags elf.ProgFlag) memory.Permissions {
	p := memory.None
	if flags&elf.PF_R != 0 {
		p |= memory.Read
	}
	if flags&elf.PF_W != 0 {
		p |= memory.Write
	}
	if flags&elf.PF_X != 0 {
		p |= memory.Execute
	}
	return p
}

// Memory returns one segment per PT_LOAD header, zero-filled up to memsz.
func (e *Elf) Memory() (*memory.Memory, error) {
	m := memory.New()

	for _, ph := range e.file.Progs {
		if ph.Type != elf.PT_LOAD {
			continue
		}

		data, err := e.slice(ph.Off, ph.Filesz)
		if err != nil {
			return nil, fmt.Errorf("PT_LOAD at vaddr 0x%x: %w", ph.Vaddr, err)
		}

		size := max(ph.Filesz, ph.Memsz)
		if size > e.maxSegmentSize {
			return nil, fmt.Errorf("%w: PT_LOAD at vaddr 0x%x has memsz 0x%x, limit 0x%x",
				ErrMalformedInput, ph.Vaddr, ph.Memsz, e.maxSegmentSize)
		}
		b := make([]byte, size)
		copy(b, data)

		m.AddSegment(memory.NewSegment(ph.Vaddr+e.baseAddress, b, permissions(ph.Flags)))
	}

	return m, nil
}

// Span returns the lowest and one-past-highest relocated address covered by
// PT_LOAD segments. ok is false when there are none.
func (e *Elf) Span() (lo, hi uint64, ok bool, err error) {
	for _, ph := range e.file.Progs {
		if ph.Type != elf.PT_LOAD {
			continue
		}
		start := ph.Vaddr + e.baseAddress
		end := start + max(ph.Filesz, ph.Memsz)
		if start < ph.Vaddr || end < start {
			return 0, 0, false, fmt.Errorf("%w: PT_LOAD at vaddr 0x%x wraps the address space",
				ErrMalformedInput, ph.Vaddr)
		}
		if !ok || start < lo {
			lo = start
		}
		if !ok || end > hi {
			hi = end
		}
		ok = true
	}
	return lo, hi, ok, nil
}

// DtNeeded returns the DT_NEEDED library names in file order.
func (e *Elf) DtNeeded() ([]string, error) {
	strtabAddrs, err := e.file.DynValue(elf.DT_STRTAB)
	if err != nil {
		return nil, fmt.Errorf("%w: reading dynamic section: %w", ErrMalformedInput, err)
	}
	if len(strtabAddrs) == 0 {
		return []string{}, nil
	}
	strtabAddr := strtabAddrs[0]

	// When several section headers cover the address, the last one wins.
	var strtabSection *elf.Section
	for _, sh := range e.file.Sections {
		if sh.Addr <= strtabAddr && strtabAddr-sh.Addr < sh.Size {
			strtabSection = sh
		}
	}
	if strtabSection == nil {
		return nil, fmt.Errorf("%w: no section header covers dynamic string table at 0x%x",
			ErrInternalInvariant, strtabAddr)
	}
	delta := strtabAddr - strtabSection.Addr
	strtab, err := e.slice(strtabSection.Offset+delta, strtabSection.Size-delta)
	if err != nil {
		return nil, fmt.Errorf("dynamic string table in %s: %w", strtabSection.Name, err)
	}

	offsets, err := e.file.DynValue(elf.DT_NEEDED)
	if err != nil {
		return nil, fmt.Errorf("%w: reading dynamic section: %w", ErrMalformedInput, err)
	}

	needed := make([]string, 0, len(offsets))
	for _, off := range offsets {
		name, ok := cString(strtab, off)
		if !ok {
			return nil, fmt.Errorf("%w: DT_NEEDED offset 0x%x outside dynamic string table",
				ErrMalformedInput, off)
		}
		needed = append(needed, name)
	}
	return needed, nil
}

// cString reads the NUL-terminated string starting at off.
func cString(tab []byte, off uint64) (string, bool) {
	if off >= uint64(len(tab)) {
		return "", false
	}
	n := bytes.IndexByte(tab[off:], 0)
	if n < 0 {
		return "", false
	}
	return string(tab[off : off+uint64(n)]), true
}

func isFunction(sym elf.Symbol) bool {
	return elf.ST_TYPE(sym.Info) == elf.STT_FUNC
}

// symbols calls read and treats a missing table as empty.
func symbols(read func() ([]elf.Symbol, error)) ([]elf.Symbol, error) {
	syms, err := read()
	if errors.Is(err, elf.ErrNoSymbols) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedInput, err)
	}
	return syms, nil
}

// ExportedFunctions returns every defined function in the dynamic symbol
// table. Addresses are not relocated.
func (e *Elf) ExportedFunctions() ([]ElfSymbol, error) {
	dynsyms, err := symbols(e.file.DynamicSymbols)
	if err != nil {
		return nil, err
	}

	var out []ElfSymbol
	for _, sym := range dynsyms {
		if !isFunction(sym) || sym.Section == elf.SHN_UNDEF {
			continue
		}
		out = append(out, ElfSymbol{Name: sym.Name, Address: sym.Value})
	}
	return out, nil
}

// FunctionEntries returns dynamic and static function symbols, the entry
// point and user-declared functions, each relocated by the base address.
// An address already contributed by an earlier source is skipped for the
// entry point and user functions.
func (e *Elf) FunctionEntries() ([]FunctionEntry, error) {
	dynsyms, err := symbols(e.file.DynamicSymbols)
	if err != nil {
		return nil, err
	}
	syms, err := symbols(e.file.Symbols)
	if err != nil {
		return nil, err
	}

	var entries []FunctionEntry
	covered := make(map[uint64]struct{})

	for _, table := range [][]elf.Symbol{dynsyms, syms} {
		for _, sym := range table {
			if !isFunction(sym) || sym.Value == 0 {
				continue
			}
			entries = append(entries, FunctionEntry{
				Address: sym.Value + e.baseAddress,
				Name:    sym.Name,
			})
			covered[sym.Value] = struct{}{}
		}
	}

	if _, ok := covered[e.file.Entry]; !ok {
		entries = append(entries, FunctionEntry{Address: e.file.Entry + e.baseAddress})
		covered[e.file.Entry] = struct{}{}
	}

	for _, addr := range e.userFunctionEntries {
		if _, ok := covered[addr]; ok {
			continue
		}
		entries = append(entries, FunctionEntry{
			Address: addr + e.baseAddress,
			Name:    fmt.Sprintf("user_function_%x", addr),
		})
		covered[addr] = struct{}{}
	}

	return entries, nil
}

// ProgramEntry returns e_entry from the file header. The base address is
// not added.
func (e *Elf) ProgramEntry() uint64 {
	return e.file.Entry
}

// Architecture maps e_machine to a supported architecture.
func (e *Elf) Architecture() (Architecture, error) {
	switch e.file.Machine {
	case elf.EM_386:
		return ArchitectureX86, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedArchitecture, e.file.Machine)
	}
}

var _ Loader = (*Elf)(nil)

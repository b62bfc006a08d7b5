// Package elftest builds small little-endian ELF32 images for tests.
package elftest

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

// DefaultDynstrAddr is the virtual address given to .dynstr unless overridden.
const DefaultDynstrAddr = 0x2000

// Segment describes one PT_LOAD program header.
type Segment struct {
	Vaddr uint32
	Flags elf.ProgFlag
	Data  []byte
	// Memsz defaults to len(Data) when zero.
	Memsz uint32
}

// Symbol describes one symbol table entry.
type Symbol struct {
	Name  string
	Value uint32
	Type  elf.SymType
	// Undefined leaves the section index at SHN_UNDEF.
	Undefined bool
}

// Section is an extra SHT_PROGBITS section appended after the generated ones.
type Section struct {
	Name string
	Addr uint32
	Data []byte
}

// Builder assembles an ELF32 image. The zero value (plus Machine) produces a
// valid file with no segments, sections other than .shstrtab, or symbols.
type Builder struct {
	Machine  elf.Machine
	Entry    uint32
	Segments []Segment

	DynSymbols []Symbol
	Symbols    []Symbol
	Needed     []string

	// DynstrAddr is the sh_addr of .dynstr. Zero means DefaultDynstrAddr.
	DynstrAddr uint32
	// StrtabAddr overrides the DT_STRTAB value. Zero means DynstrAddr.
	StrtabAddr uint32
	// NoDynamic omits .dynamic even when DynSymbols or Needed are set.
	NoDynamic bool
	// Sections are written after every generated section.
	Sections []Section
}

type section struct {
	name    string
	typ     elf.SectionType
	addr    uint32
	data    []byte
	link    uint32
	entsize uint32
}

type strtab struct {
	buf bytes.Buffer
}

func newStrtab() *strtab {
	s := &strtab{}
	s.buf.WriteByte(0)
	return s
}

func (s *strtab) add(name string) uint32 {
	if name == "" {
		return 0
	}
	off := uint32(s.buf.Len())
	s.buf.WriteString(name)
	s.buf.WriteByte(0)
	return off
}

func encode(v interface{}) []byte {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func symbolTable(syms []Symbol, names *strtab) []byte {
	var buf bytes.Buffer
	buf.Write(encode(elf.Sym32{}))
	for _, s := range syms {
		shndx := uint16(1)
		if s.Undefined {
			shndx = uint16(elf.SHN_UNDEF)
		}
		buf.Write(encode(elf.Sym32{
			Name:  names.add(s.Name),
			Value: s.Value,
			Info:  elf.ST_INFO(elf.STB_GLOBAL, s.Type),
			Shndx: shndx,
		}))
	}
	return buf.Bytes()
}

// Bytes returns the encoded image.
func (b *Builder) Bytes() []byte {
	const (
		ehsize    = 52
		phentsize = 32
		shentsize = 40
	)

	dynstrAddr := b.DynstrAddr
	if dynstrAddr == 0 {
		dynstrAddr = DefaultDynstrAddr
	}
	strtabAddr := b.StrtabAddr
	if strtabAddr == 0 {
		strtabAddr = dynstrAddr
	}

	// Index 0 is the null section, 1 is .shstrtab.
	sections := []section{{}, {name: ".shstrtab", typ: elf.SHT_STRTAB}}

	if len(b.DynSymbols) > 0 || len(b.Needed) > 0 {
		dynstr := newStrtab()
		neededOffsets := make([]uint32, len(b.Needed))
		for i, name := range b.Needed {
			neededOffsets[i] = dynstr.add(name)
		}
		dynsym := symbolTable(b.DynSymbols, dynstr)

		dynstrIndex := uint32(len(sections))
		sections = append(sections, section{
			name: ".dynstr",
			typ:  elf.SHT_STRTAB,
			addr: dynstrAddr,
			data: dynstr.buf.Bytes(),
		})
		sections = append(sections, section{
			name:    ".dynsym",
			typ:     elf.SHT_DYNSYM,
			data:    dynsym,
			link:    dynstrIndex,
			entsize: 16,
		})

		if !b.NoDynamic {
			var dyn bytes.Buffer
			for _, off := range neededOffsets {
				dyn.Write(encode(elf.Dyn32{Tag: int32(elf.DT_NEEDED), Val: off}))
			}
			dyn.Write(encode(elf.Dyn32{Tag: int32(elf.DT_STRTAB), Val: strtabAddr}))
			dyn.Write(encode(elf.Dyn32{Tag: int32(elf.DT_NULL)}))
			sections = append(sections, section{
				name:    ".dynamic",
				typ:     elf.SHT_DYNAMIC,
				data:    dyn.Bytes(),
				link:    dynstrIndex,
				entsize: 8,
			})
		}
	}

	if len(b.Symbols) > 0 {
		str := newStrtab()
		symtab := symbolTable(b.Symbols, str)
		strIndex := uint32(len(sections))
		sections = append(sections, section{
			name: ".strtab",
			typ:  elf.SHT_STRTAB,
			data: str.buf.Bytes(),
		})
		sections = append(sections, section{
			name:    ".symtab",
			typ:     elf.SHT_SYMTAB,
			data:    symtab,
			link:    strIndex,
			entsize: 16,
		})
	}

	for _, extra := range b.Sections {
		sections = append(sections, section{
			name: extra.Name,
			typ:  elf.SHT_PROGBITS,
			addr: extra.Addr,
			data: extra.Data,
		})
	}

	shstrtab := newStrtab()
	nameOffsets := make([]uint32, len(sections))
	for i := range sections {
		nameOffsets[i] = shstrtab.add(sections[i].name)
	}
	sections[1].data = shstrtab.buf.Bytes()

	// Layout: header, program headers, segment data, section data, section headers.
	var body bytes.Buffer
	offset := uint32(ehsize + phentsize*len(b.Segments))

	segOffsets := make([]uint32, len(b.Segments))
	for i, s := range b.Segments {
		segOffsets[i] = offset
		body.Write(s.Data)
		offset += uint32(len(s.Data))
	}

	secOffsets := make([]uint32, len(sections))
	for i, s := range sections {
		secOffsets[i] = offset
		body.Write(s.data)
		offset += uint32(len(s.data))
	}
	for offset%4 != 0 {
		body.WriteByte(0)
		offset++
	}
	shoff := offset

	var ident [elf.EI_NIDENT]byte
	copy(ident[:], elf.ELFMAG)
	ident[elf.EI_CLASS] = byte(elf.ELFCLASS32)
	ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)

	var phoff uint32
	if len(b.Segments) > 0 {
		phoff = ehsize
	}

	var out bytes.Buffer
	out.Write(encode(elf.Header32{
		Ident:     ident,
		Type:      uint16(elf.ET_EXEC),
		Machine:   uint16(b.Machine),
		Version:   uint32(elf.EV_CURRENT),
		Entry:     b.Entry,
		Phoff:     phoff,
		Shoff:     shoff,
		Ehsize:    ehsize,
		Phentsize: phentsize,
		Phnum:     uint16(len(b.Segments)),
		Shentsize: shentsize,
		Shnum:     uint16(len(sections)),
		Shstrndx:  1,
	}))

	for i, s := range b.Segments {
		memsz := s.Memsz
		if memsz == 0 {
			memsz = uint32(len(s.Data))
		}
		out.Write(encode(elf.Prog32{
			Type:   uint32(elf.PT_LOAD),
			Off:    segOffsets[i],
			Vaddr:  s.Vaddr,
			Paddr:  s.Vaddr,
			Filesz: uint32(len(s.Data)),
			Memsz:  memsz,
			Flags:  uint32(s.Flags),
			Align:  0x1000,
		}))
	}

	out.Write(body.Bytes())

	for i, s := range sections {
		if i == 0 {
			out.Write(encode(elf.Section32{}))
			continue
		}
		out.Write(encode(elf.Section32{
			Name:      nameOffsets[i],
			Type:      uint32(s.typ),
			Addr:      s.addr,
			Off:       secOffsets[i],
			Size:      uint32(len(s.data)),
			Link:      s.link,
			Addralign: 1,
			Entsize:   s.entsize,
		}))
	}

	return out.Bytes()
}

// WriteFile writes the image to dir/name and returns the full path.
func (b *Builder) WriteFile(t testing.TB, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("creating %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, b.Bytes(), 0644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
	return path
}

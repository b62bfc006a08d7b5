// Package loader places executable object files into a simulated address
// space and discovers candidate function entry points.
//
// Both a single Elf and a fully linked ElfLinker implement Loader, so the
// rest of the framework does not care whether dependencies were resolved.
package loader

import (
	"errors"
	"fmt"

	"github.com/ianlancetaylor/demangle"

	"github.com/l3aro/binlift/pkg/memory"
)

// Architecture identifies the instruction set of a loaded object.
type Architecture string

const (
	ArchitectureX86 Architecture = "x86" // 32-bit Intel (EM_386)
)

var (
	// ErrInvalidFormat is returned when the ELF identification bytes are wrong.
	ErrInvalidFormat = errors.New("invalid format")
	// ErrMalformedInput is returned when header fields point outside the file.
	ErrMalformedInput = errors.New("malformed input")
	// ErrIO wraps file open/read failures.
	ErrIO = errors.New("i/o error")
	// ErrUnsupportedArchitecture is returned for machine types other than i386.
	ErrUnsupportedArchitecture = errors.New("unsupported architecture")
	// ErrInternalInvariant marks states a well-formed link never reaches.
	ErrInternalInvariant = errors.New("internal invariant violation")
	// ErrDuplicateLibrary is returned when two objects share a base file name.
	ErrDuplicateLibrary = errors.New("duplicate library")
)

// Loader is the capability consumed by lifting and analysis passes.
type Loader interface {
	// Memory returns the memory image of every loaded object.
	Memory() (*memory.Memory, error)
	// FunctionEntries returns known function starts, relocated.
	FunctionEntries() ([]FunctionEntry, error)
	// ProgramEntry returns the entry point of the main executable.
	ProgramEntry() uint64
	// Architecture returns the instruction set of the main executable.
	Architecture() (Architecture, error)
}

// FunctionEntry is an address believed to start a function.
// An empty Name means the entry has no symbol.
type FunctionEntry struct {
	Address uint64 `json:"address" msgpack:"address"`
	Name    string `json:"name,omitempty" msgpack:"name,omitempty"`
}

// HasName reports whether the entry carries a symbol name.
func (f FunctionEntry) HasName() bool {
	return f.Name != ""
}

// DemangledName returns the demangled symbol name, or the raw name when it
// is not a mangled C++/Rust symbol.
func (f FunctionEntry) DemangledName() string {
	if f.Name == "" {
		return ""
	}
	return demangle.Filter(f.Name)
}

func (f FunctionEntry) String() string {
	if f.Name == "" {
		return fmt.Sprintf("0x%x", f.Address)
	}
	return fmt.Sprintf("0x%x %s", f.Address, f.Name)
}

// ElfSymbol is an exported dynamic symbol. Address is not relocated.
type ElfSymbol struct {
	Name    string `json:"name"`
	Address uint64 `json:"address"`
}

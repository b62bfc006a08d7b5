// Package memory models a flat simulated address space built from byte
// segments tagged with read/write/execute permissions.
package memory

import (
	"sort"
	"strings"
)

// Permissions is a bit set of segment access rights.
type Permissions uint8

const (
	None    Permissions = 0
	Read    Permissions = 1 << 0
	Write   Permissions = 1 << 1
	Execute Permissions = 1 << 2
)

// Has reports whether every flag in other is set in p.
func (p Permissions) Has(other Permissions) bool {
	return p&other == other
}

// String renders the permissions as "rwx", using '-' for missing flags.
func (p Permissions) String() string {
	var sb strings.Builder
	sb.WriteByte(flagChar(p, Read, 'r'))
	sb.WriteByte(flagChar(p, Write, 'w'))
	sb.WriteByte(flagChar(p, Execute, 'x'))
	return sb.String()
}

func flagChar(p, flag Permissions, c byte) byte {
	if p&flag != 0 {
		return c
	}
	return '-'
}

// Segment is a contiguous byte range placed at an absolute virtual address.
// Segments are immutable once created.
type Segment struct {
	address     uint64
	bytes       []byte
	permissions Permissions
}

// NewSegment creates a segment. The byte slice is copied.
func NewSegment(address uint64, bytes []byte, permissions Permissions) Segment {
	b := make([]byte, len(bytes))
	copy(b, bytes)
	return Segment{
		address:     address,
		bytes:       b,
		permissions: permissions,
	}
}

// Address returns the virtual address of the first byte.
func (s Segment) Address() uint64 {
	return s.address
}

// Bytes returns the segment contents. Callers must not modify the slice.
func (s Segment) Bytes() []byte {
	return s.bytes
}

// Len returns the number of bytes in the segment.
func (s Segment) Len() uint64 {
	return uint64(len(s.bytes))
}

// End returns the address one past the last byte.
func (s Segment) End() uint64 {
	return s.address + s.Len()
}

// Permissions returns the access rights of the segment.
func (s Segment) Permissions() Permissions {
	return s.permissions
}

// Contains reports whether address falls inside the segment.
func (s Segment) Contains(address uint64) bool {
	return address >= s.address && address-s.address < s.Len()
}

// Memory is an ordered collection of segments. Overlapping segments are
// allowed; resolving overlap is left to the consumer.
type Memory struct {
	segments []Segment
}

// New creates an empty memory image.
func New() *Memory {
	return &Memory{}
}

// AddSegment inserts a segment, keeping segments ordered by address.
// Segments sharing an address keep insertion order.
func (m *Memory) AddSegment(segment Segment) {
	i := sort.Search(len(m.segments), func(i int) bool {
		return m.segments[i].address > segment.address
	})
	m.segments = append(m.segments, Segment{})
	copy(m.segments[i+1:], m.segments[i:])
	m.segments[i] = segment
}

// Merge adds every segment of other to m.
func (m *Memory) Merge(other *Memory) {
	for _, s := range other.segments {
		m.AddSegment(s)
	}
}

// Segments returns the segments in ascending address order.
func (m *Memory) Segments() []Segment {
	out := make([]Segment, len(m.segments))
	copy(out, m.segments)
	return out
}

// Len returns the number of segments.
func (m *Memory) Len() int {
	return len(m.segments)
}

// Containing returns the segment covering address. When several segments
// overlap at address, the one with the highest base address wins and ties go
// to the most recently added segment.
func (m *Memory) Containing(address uint64) (Segment, bool) {
	for i := len(m.segments) - 1; i >= 0; i-- {
		if m.segments[i].Contains(address) {
			return m.segments[i], true
		}
	}
	return Segment{}, false
}

// Clone returns a copy of m sharing the immutable segment contents.
func (m *Memory) Clone() *Memory {
	return &Memory{segments: m.Segments()}
}

package memory

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func TestPermissions_String(t *testing.T) {
	tests := []struct {
		perm Permissions
		want string
	}{
		{None, "---"},
		{Read, "r--"},
		{Read | Execute, "r-x"},
		{Read | Write, "rw-"},
		{Read | Write | Execute, "rwx"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.perm.String())
		})
	}
}

func TestPermissions_Has(t *testing.T) {
	p := Read | Execute
	assert.True(t, p.Has(Read))
	assert.True(t, p.Has(Read|Execute))
	assert.False(t, p.Has(Write))
	assert.False(t, p.Has(Read|Write))
}

func TestNewSegment_CopiesBytes(t *testing.T) {
	src := []byte{1, 2, 3}
	s := NewSegment(0x1000, src, Read)
	src[0] = 0xff

	assert.Equal(t, []byte{1, 2, 3}, s.Bytes())
	assert.Equal(t, uint64(3), s.Len())
	assert.Equal(t, uint64(0x1003), s.End())
	assert.True(t, s.Contains(0x1002))
	assert.False(t, s.Contains(0x1003))
	assert.False(t, s.Contains(0xfff))
}

func TestMemory_AddSegmentKeepsOverlap(t *testing.T) {
	m := New()
	m.AddSegment(NewSegment(0x2000, []byte{1}, Read))
	m.AddSegment(NewSegment(0x1000, []byte{2, 2}, Read|Write))
	m.AddSegment(NewSegment(0x2000, []byte{3}, Execute))

	require.Equal(t, 3, m.Len())
	segs := m.Segments()
	assert.Equal(t, uint64(0x1000), segs[0].Address())
	assert.Equal(t, []byte{1}, segs[1].Bytes())
	assert.Equal(t, []byte{3}, segs[2].Bytes())

	s, ok := m.Containing(0x2000)
	require.True(t, ok)
	assert.Equal(t, Execute, s.Permissions())

	_, ok = m.Containing(0x3000)
	assert.False(t, ok)
}

func TestMemory_Merge(t *testing.T) {
	a := New()
	a.AddSegment(NewSegment(0x1000, []byte{1}, Read))
	b := New()
	b.AddSegment(NewSegment(0x80000000, []byte{2}, Read))

	a.Merge(b)
	assert.Equal(t, 2, a.Len())
	assert.Equal(t, 1, b.Len())
}

func TestMemory_Msgpack(t *testing.T) {
	m := New()
	m.AddSegment(NewSegment(0x1000, []byte{0xde, 0xad}, Read|Execute))
	m.AddSegment(NewSegment(0x4000, make([]byte, 16), Read|Write))

	var buf bytes.Buffer
	require.NoError(t, msgpack.NewEncoder(&buf).Encode(m))

	got := New()
	require.NoError(t, msgpack.NewDecoder(&buf).Decode(got))
	assert.Equal(t, m.Segments(), got.Segments())
}

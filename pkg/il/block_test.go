package il

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func indices(b *Block) []uint64 {
	out := make([]uint64, 0, b.Len())
	for _, ins := range b.Instructions() {
		out = append(out, ins.Index)
	}
	return out
}

func eax() Scalar { return NewScalar("eax", 32) }

func TestBlock_BuildersAssignIndices(t *testing.T) {
	b := NewBlock(3)
	mem := NewArray("mem", 1<<32)

	b.Assign(eax(), ConstExpr(1, 32))
	b.Store(mem, ConstExpr(0x1000, 32), ScalarExpr(eax()))
	b.Load(eax(), ConstExpr(0x1000, 32), mem)
	b.Brc(ConstExpr(0x2000, 32), ConstExpr(1, 1))
	b.Phi(ScalarVar(eax()), phiSources())
	b.Raise(ConstExpr(0, 32))

	assert.Equal(t, []uint64{0, 1, 2, 3, 4, 5}, indices(b))
	kinds := make([]OperationKind, 0, b.Len())
	for _, ins := range b.Instructions() {
		kinds = append(kinds, ins.Operation.Kind)
	}
	assert.Equal(t, []OperationKind{
		OperationAssign, OperationStore, OperationLoad, OperationBrc, OperationPhi, OperationRaise,
	}, kinds)
}

func phiSources(scalars ...Scalar) []MultiVar {
	out := make([]MultiVar, len(scalars))
	for i, s := range scalars {
		out[i] = ScalarVar(s)
	}
	return out
}

func TestBlock_PrependPhi(t *testing.T) {
	b := NewBlock(0)
	b.Assign(eax(), ConstExpr(1, 32))
	b.Assign(eax(), ConstExpr(2, 32))
	b.PrependPhi(ScalarVar(eax()), phiSources(NewScalar("eax.1", 32), NewScalar("eax.2", 32)))

	require.Equal(t, 3, b.Len())
	first := b.Instructions()[0]
	assert.True(t, first.Operation.IsPhi())
	assert.Equal(t, uint64(2), first.Index)
	assert.Equal(t, []uint64{2, 0, 1}, indices(b))
}

func TestBlock_Temp(t *testing.T) {
	b := NewBlock(0x1f)
	assert.Equal(t, NewScalar("temp_31.0", 32), b.Temp(32))
	assert.Equal(t, NewScalar("temp_31.1", 8), b.Temp(8))

	other := NewBlock(2)
	assert.Equal(t, "temp_2.0", other.Temp(1).Name)
}

func TestBlock_Append(t *testing.T) {
	dst := NewBlock(0)
	dst.Assign(eax(), ConstExpr(1, 32))
	dst.Assign(eax(), ConstExpr(2, 32))

	src := NewBlock(1)
	for i := 0; i < 5; i++ {
		src.Assign(eax(), ConstExpr(uint64(10+i), 32))
	}
	require.NoError(t, src.RemoveInstruction(0))
	require.NoError(t, src.RemoveInstruction(3))

	dst.Append(src)

	assert.Equal(t, []uint64{0, 1, 2, 3, 4}, indices(dst))
	var values []uint64
	for _, ins := range dst.Instructions()[2:] {
		values = append(values, ins.Operation.Src.Constant.Value)
	}
	assert.Equal(t, []uint64{11, 12, 14}, values)

	// The source keeps its own indices and contents.
	assert.Equal(t, []uint64{1, 2, 4}, indices(src))

	// Copies are independent of the source.
	dst.Instructions()[2].Operation.Src.Constant.Value = 99
	ins, ok := src.Instruction(1)
	require.True(t, ok)
	assert.Equal(t, uint64(11), ins.Operation.Src.Constant.Value)

	// The counter keeps going after the appended range.
	dst.Raise(ConstExpr(0, 32))
	assert.Equal(t, uint64(5), dst.Instructions()[5].Index)
}

func TestBlock_CloneNewIndex(t *testing.T) {
	b := NewBlock(1)
	b.Assign(eax(), ConstExpr(1, 32))
	b.Temp(32)
	b.PrependPhi(ScalarVar(eax()), phiSources(eax()))

	clone := b.CloneNewIndex(7)
	assert.Equal(t, uint64(7), clone.Index())
	assert.Equal(t, b.Instructions(), clone.Instructions())
	assert.Equal(t, b.nextInstructionIndex, clone.nextInstructionIndex)
	assert.Equal(t, b.nextTempIndex, clone.nextTempIndex)
	assert.Equal(t, "temp_7.1", clone.Temp(32).Name)

	clone.Assign(eax(), ConstExpr(3, 32))
	mut, ok := clone.InstructionMut(0)
	require.True(t, ok)
	mut.Operation.Src.Constant.Value = 42
	mut.Operation.Dst.Name = "ebx"
	clone.Instructions()[0].Operation.PhiSrc[0].Scalar.Name = "ecx"

	assert.Equal(t, 2, b.Len())
	orig, ok := b.Instruction(0)
	require.True(t, ok)
	assert.Equal(t, uint64(1), orig.Operation.Src.Constant.Value)
	assert.Equal(t, "eax", orig.Operation.Dst.Name)
	assert.Equal(t, "eax", b.Instructions()[0].Operation.PhiSrc[0].Scalar.Name)
}

func TestBlock_Clone(t *testing.T) {
	b := NewBlock(4)
	b.Assign(eax(), ConstExpr(1, 32))

	c := b.Clone()
	assert.Equal(t, b, c)
	c.Assign(eax(), ConstExpr(2, 32))
	assert.Equal(t, 1, b.Len())
}

func TestBlock_InstructionLookup(t *testing.T) {
	b := NewBlock(0)
	b.Assign(eax(), ConstExpr(1, 32))

	_, ok := b.Instruction(5)
	assert.False(t, ok)
	mut, ok := b.InstructionMut(5)
	assert.False(t, ok)
	assert.Nil(t, mut)

	mut, ok = b.InstructionMut(0)
	require.True(t, ok)
	mut.SetAddress(0x8048000)
	ins, _ := b.Instruction(0)
	require.NotNil(t, ins.Address)
	assert.Equal(t, uint64(0x8048000), *ins.Address)
}

func TestBlock_RemoveInstruction(t *testing.T) {
	b := NewBlock(0)
	for i := 0; i < 4; i++ {
		b.Assign(eax(), ConstExpr(uint64(i), 32))
	}

	err := b.RemoveInstruction(9)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, []uint64{0, 1, 2, 3}, indices(b))

	require.NoError(t, b.RemoveInstruction(1))
	assert.Equal(t, []uint64{0, 2, 3}, indices(b))

	assert.ErrorIs(t, b.RemoveInstruction(1), ErrNotFound)

	// Removed indices are never handed out again.
	b.Assign(eax(), ConstExpr(9, 32))
	assert.Equal(t, []uint64{0, 2, 3, 4}, indices(b))
}

func TestBlock_String(t *testing.T) {
	b := NewBlock(0x1a)
	b.Assign(eax(), ConstExpr(1, 32))
	b.Raise(ScalarExpr(eax()))

	assert.Equal(t, "[ Block: 0x1A ]\n00 eax:32 = 0x1:32\n01 raise(eax:32)\n", b.String())
}

func TestBlock_Msgpack(t *testing.T) {
	b := NewBlock(2)
	b.Assign(eax(), ConstExpr(1, 32))
	b.Store(NewArray("mem", 1<<32), ConstExpr(0x10, 32), ScalarExpr(eax()))
	b.PrependPhi(ScalarVar(eax()), phiSources(eax(), NewScalar("eax.1", 32)))
	require.NoError(t, b.RemoveInstruction(0))
	b.Temp(8)
	mut, _ := b.InstructionMut(1)
	mut.SetAddress(0x400)

	data, err := msgpack.Marshal(b)
	require.NoError(t, err)

	var got Block
	require.NoError(t, msgpack.Unmarshal(data, &got))
	assert.Equal(t, b.Index(), got.Index())
	assert.Equal(t, b.String(), got.String())
	assert.Equal(t, b.nextInstructionIndex, got.nextInstructionIndex)
	assert.Equal(t, "temp_2.1", got.Temp(8).Name)

	got.Assign(eax(), ConstExpr(0, 32))
	assert.Equal(t, uint64(3), got.Instructions()[got.Len()-1].Index)
}

func TestExpression(t *testing.T) {
	sum, err := Add(ScalarExpr(eax()), ConstExpr(4, 32))
	require.NoError(t, err)
	assert.Equal(t, 32, sum.Bits())
	assert.Equal(t, "(eax:32 + 0x4:32)", sum.String())
	assert.Equal(t, []Scalar{eax()}, sum.Scalars())

	_, err = Add(ScalarExpr(eax()), ConstExpr(4, 8))
	assert.Error(t, err)

	cmp, err := Cmpltu(ScalarExpr(eax()), ConstExpr(4, 32))
	require.NoError(t, err)
	assert.Equal(t, 1, cmp.Bits())

	wide, err := Zext(64, ScalarExpr(eax()))
	require.NoError(t, err)
	assert.Equal(t, 64, wide.Bits())
	_, err = Trun(64, ScalarExpr(eax()))
	assert.Error(t, err)

	assert.Equal(t, uint64(0xff), NewConstant(0x1ff, 8).Value)
}

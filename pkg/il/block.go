package il

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when no instruction or block carries the
// requested index.
var ErrNotFound = errors.New("not found")

// Block is a basic block: a linear sequence of instructions.
//
// Instruction indices are handed out by a per-block counter that only grows,
// so an index identifies an instruction for the block's lifetime and is
// never reused after removal.
type Block struct {
	index                uint64
	nextInstructionIndex uint64
	nextTempIndex        uint64
	instructions         []Instruction
}

// NewBlock returns an empty block. Callers building a graph should use
// Graph.NewBlock, which keeps block indices unique.
func NewBlock(index uint64) *Block {
	return &Block{index: index}
}

func (b *Block) newInstructionIndex() uint64 {
	i := b.nextInstructionIndex
	b.nextInstructionIndex++
	return i
}

func (b *Block) push(op Operation) {
	b.instructions = append(b.instructions, Instruction{Index: b.newInstructionIndex(), Operation: op})
}

// Index returns the block index.
func (b *Block) Index() uint64 {
	return b.index
}

// Instructions returns the instructions in order. The slice is shared with
// the block.
func (b *Block) Instructions() []Instruction {
	return b.instructions
}

// Len returns the number of instructions.
func (b *Block) Len() int {
	return len(b.instructions)
}

// Append copies every instruction of other onto the end of b, assigning
// fresh indices from b's counter.
func (b *Block) Append(other *Block) {
	for _, ins := range other.instructions {
		b.instructions = append(b.instructions, ins.CloneNewIndex(b.newInstructionIndex()))
	}
}

// Clone returns an independent deep copy of b.
func (b *Block) Clone() *Block {
	return b.CloneNewIndex(b.index)
}

// CloneNewIndex deep-copies b, counters included, and gives the copy index.
func (b *Block) CloneNewIndex(index uint64) *Block {
	out := &Block{
		index:                index,
		nextInstructionIndex: b.nextInstructionIndex,
		nextTempIndex:        b.nextTempIndex,
	}
	if b.instructions != nil {
		out.instructions = make([]Instruction, len(b.instructions))
		for i, ins := range b.instructions {
			out.instructions[i] = ins.CloneNewIndex(ins.Index)
		}
	}
	return out
}

func (b *Block) position(index uint64) int {
	for i := range b.instructions {
		if b.instructions[i].Index == index {
			return i
		}
	}
	return -1
}

// Instruction returns a copy of the instruction with the given index.
func (b *Block) Instruction(index uint64) (Instruction, bool) {
	if i := b.position(index); i >= 0 {
		return b.instructions[i], true
	}
	return Instruction{}, false
}

// InstructionMut returns a pointer into the block for in-place edits. The
// pointer is invalidated by the next structural change to the block.
func (b *Block) InstructionMut(index uint64) (*Instruction, bool) {
	if i := b.position(index); i >= 0 {
		return &b.instructions[i], true
	}
	return nil, false
}

// RemoveInstruction deletes the instruction with the given index. Other
// indices are left untouched.
func (b *Block) RemoveInstruction(index uint64) error {
	i := b.position(index)
	if i < 0 {
		return fmt.Errorf("%w: no instruction with index %d in block 0x%X", ErrNotFound, index, b.index)
	}
	b.instructions = append(b.instructions[:i], b.instructions[i+1:]...)
	return nil
}

// Temp returns a scalar named uniquely within this block.
func (b *Block) Temp(bits int) Scalar {
	n := b.nextTempIndex
	b.nextTempIndex++
	return NewScalar(fmt.Sprintf("temp_%d.%d", b.index, n), bits)
}

// Assign appends dst = src.
func (b *Block) Assign(dst Scalar, src Expression) {
	b.push(AssignOp(dst, src))
}

// Store appends a store of src to dst at address.
func (b *Block) Store(dst Array, address, src Expression) {
	b.push(StoreOp(dst, address, src))
}

// Load appends a load of dst from src at address.
func (b *Block) Load(dst Scalar, address Expression, src Array) {
	b.push(LoadOp(dst, address, src))
}

// Brc appends a conditional branch to target.
func (b *Block) Brc(target, condition Expression) {
	b.push(BrcOp(target, condition))
}

// Phi appends a phi node.
func (b *Block) Phi(dst MultiVar, src []MultiVar) {
	b.push(PhiOp(dst, src))
}

// Raise appends a raise.
func (b *Block) Raise(expr Expression) {
	b.push(RaiseOp(expr))
}

// PrependPhi inserts a phi node at the head of the block. It still takes the
// next index, so its index can be larger than those of instructions after it.
func (b *Block) PrependPhi(dst MultiVar, src []MultiVar) {
	ins := Instruction{Index: b.newInstructionIndex(), Operation: PhiOp(dst, src)}
	b.instructions = append([]Instruction{ins}, b.instructions...)
}

func (b *Block) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[ Block: 0x%X ]\n", b.index)
	for _, ins := range b.instructions {
		sb.WriteString(ins.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}

package il

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// diamond builds 0 -> {1, 2} -> 3.
func diamond(t *testing.T) *Graph {
	t.Helper()
	g := NewGraph()
	for i := 0; i < 4; i++ {
		g.NewBlock()
	}
	cond := ConstExpr(1, 1)
	require.NoError(t, g.AddEdge(0, 1, &cond))
	require.NoError(t, g.AddEdge(0, 2, nil))
	require.NoError(t, g.AddEdge(1, 3, nil))
	require.NoError(t, g.AddEdge(2, 3, nil))
	require.NoError(t, g.SetEntry(0))
	return g
}

func TestGraph_NewBlockIndices(t *testing.T) {
	g := NewGraph()
	a := g.NewBlock()
	b := g.NewBlock()
	assert.Equal(t, uint64(0), a.Index())
	assert.Equal(t, uint64(1), b.Index())

	got, ok := g.Block(1)
	require.True(t, ok)
	assert.Same(t, b, got)

	_, ok = g.Entry()
	assert.False(t, ok)
}

func TestGraph_Edges(t *testing.T) {
	g := diamond(t)

	assert.Equal(t, []uint64{1, 2}, g.Successors(0))
	assert.Equal(t, []uint64{1, 2}, g.Predecessors(3))
	assert.Empty(t, g.Predecessors(0))

	assert.ErrorIs(t, g.AddEdge(0, 1, nil), ErrEdgeExists)
	assert.ErrorIs(t, g.AddEdge(0, 9, nil), ErrNotFound)
	assert.ErrorIs(t, g.SetEntry(9), ErrNotFound)
}

func TestGraph_DuplicateBlock(t *testing.T) {
	g := diamond(t)
	b, _ := g.Block(1)
	b.Assign(eax(), ConstExpr(1, 32))

	dup, err := g.DuplicateBlock(1)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), dup.Index())
	assert.Equal(t, b.Instructions(), dup.Instructions())
	assert.Empty(t, g.Successors(4))

	dup.Assign(eax(), ConstExpr(2, 32))
	assert.Equal(t, 1, b.Len())

	_, err = g.DuplicateBlock(42)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGraph_MergeBlocks(t *testing.T) {
	g := NewGraph()
	head, mid, tail := g.NewBlock(), g.NewBlock(), g.NewBlock()
	head.Assign(eax(), ConstExpr(1, 32))
	mid.Assign(eax(), ConstExpr(2, 32))
	mid.Assign(eax(), ConstExpr(3, 32))
	require.NoError(t, g.AddEdge(head.Index(), mid.Index(), nil))
	require.NoError(t, g.AddEdge(mid.Index(), tail.Index(), nil))
	require.NoError(t, g.SetEntry(head.Index()))

	require.NoError(t, g.MergeBlocks(head.Index(), mid.Index()))

	assert.Equal(t, []uint64{0, 1, 2}, indices(head))
	_, ok := g.Block(mid.Index())
	assert.False(t, ok)
	assert.Equal(t, []uint64{tail.Index()}, g.Successors(head.Index()))
	assert.Equal(t, []uint64{head.Index()}, g.Predecessors(tail.Index()))
}

func TestGraph_MergeBlocksRejectsBranches(t *testing.T) {
	g := diamond(t)

	assert.Error(t, g.MergeBlocks(0, 1))
	assert.Error(t, g.MergeBlocks(1, 3))
	assert.ErrorIs(t, g.MergeBlocks(1, 2), ErrNotFound)
	assert.Len(t, g.Blocks(), 4)
}

func TestGraph_RemoveBlock(t *testing.T) {
	g := diamond(t)

	require.NoError(t, g.RemoveBlock(0))
	assert.Len(t, g.Blocks(), 3)
	assert.Len(t, g.Edges(), 2)
	assert.Empty(t, g.Predecessors(1))
	_, ok := g.Entry()
	assert.False(t, ok)

	assert.ErrorIs(t, g.RemoveBlock(0), ErrNotFound)
}

func TestGraph_Info(t *testing.T) {
	g := diamond(t)
	b, _ := g.Block(0)
	b.Brc(ConstExpr(0x10, 32), ConstExpr(1, 1))

	info := g.Info()
	assert.Len(t, info.Blocks, 4)
	assert.Equal(t, 2, info.CyclomaticComplexity)
	require.NotNil(t, info.EntryBlock)
	assert.Equal(t, uint64(0), *info.EntryBlock)
	assert.Equal(t, "0x1:1", info.Edges[0].Condition)
	assert.Equal(t, []string{"00 brc 0x10:32 ? 0x1:1"}, info.Blocks[0].Instructions)

	data, err := json.Marshal(info)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"cyclomatic_complexity":2`)
}

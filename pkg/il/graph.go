package il

import (
	"errors"
	"fmt"
	"slices"

	"github.com/samber/lo"
)

// ErrEdgeExists is returned when an edge between two blocks is added twice.
var ErrEdgeExists = errors.New("edge already exists")

// Edge is a directed control-flow edge between two blocks. A nil Condition
// is an unconditional edge.
type Edge struct {
	Head      uint64      `msgpack:"head" json:"head"`
	Tail      uint64      `msgpack:"tail" json:"tail"`
	Condition *Expression `msgpack:"condition,omitempty" json:"condition,omitempty"`
}

// Graph owns blocks by index and keeps the edges between them apart from
// block contents. Blocks only know their own index.
type Graph struct {
	blocks    map[uint64]*Block
	edges     []Edge
	nextIndex uint64
	entry     *uint64
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{blocks: make(map[uint64]*Block)}
}

// NewBlock creates an empty block under the next unused index.
func (g *Graph) NewBlock() *Block {
	b := NewBlock(g.nextIndex)
	g.blocks[b.index] = b
	g.nextIndex++
	return b
}

// Block returns the block with the given index.
func (g *Graph) Block(index uint64) (*Block, bool) {
	b, ok := g.blocks[index]
	return b, ok
}

// Blocks returns every block ordered by index.
func (g *Graph) Blocks() []*Block {
	keys := lo.Keys(g.blocks)
	slices.Sort(keys)
	return lo.Map(keys, func(k uint64, _ int) *Block { return g.blocks[k] })
}

// Edges returns a copy of the edge list.
func (g *Graph) Edges() []Edge {
	return slices.Clone(g.edges)
}

func (g *Graph) mustHave(indices ...uint64) error {
	for _, i := range indices {
		if _, ok := g.blocks[i]; !ok {
			return fmt.Errorf("%w: block 0x%X", ErrNotFound, i)
		}
	}
	return nil
}

func (g *Graph) edge(head, tail uint64) int {
	return slices.IndexFunc(g.edges, func(e Edge) bool { return e.Head == head && e.Tail == tail })
}

// AddEdge connects head to tail. condition may be nil.
func (g *Graph) AddEdge(head, tail uint64, condition *Expression) error {
	if err := g.mustHave(head, tail); err != nil {
		return err
	}
	if g.edge(head, tail) >= 0 {
		return fmt.Errorf("%w: 0x%X -> 0x%X", ErrEdgeExists, head, tail)
	}
	e := Edge{Head: head, Tail: tail}
	if condition != nil {
		c := condition.Clone()
		e.Condition = &c
	}
	g.edges = append(g.edges, e)
	return nil
}

// Successors returns the tails of edges leaving index, in insertion order.
func (g *Graph) Successors(index uint64) []uint64 {
	return lo.FilterMap(g.edges, func(e Edge, _ int) (uint64, bool) { return e.Tail, e.Head == index })
}

// Predecessors returns the heads of edges entering index, in insertion order.
func (g *Graph) Predecessors(index uint64) []uint64 {
	return lo.FilterMap(g.edges, func(e Edge, _ int) (uint64, bool) { return e.Head, e.Tail == index })
}

// SetEntry marks index as the entry block.
func (g *Graph) SetEntry(index uint64) error {
	if err := g.mustHave(index); err != nil {
		return err
	}
	g.entry = &index
	return nil
}

// Entry returns the entry block index, if one was set.
func (g *Graph) Entry() (uint64, bool) {
	if g.entry == nil {
		return 0, false
	}
	return *g.entry, true
}

// DuplicateBlock copies the block at index under a fresh index. Edges are
// not copied.
func (g *Graph) DuplicateBlock(index uint64) (*Block, error) {
	b, ok := g.blocks[index]
	if !ok {
		return nil, fmt.Errorf("%w: block 0x%X", ErrNotFound, index)
	}
	dup := b.CloneNewIndex(g.nextIndex)
	g.blocks[dup.index] = dup
	g.nextIndex++
	return dup, nil
}

// MergeBlocks appends tail onto head when head -> tail is the only edge out
// of head and the only edge into tail. tail is removed and its outgoing
// edges move to head.
func (g *Graph) MergeBlocks(head, tail uint64) error {
	if err := g.mustHave(head, tail); err != nil {
		return err
	}
	if head == tail {
		return fmt.Errorf("cannot merge block 0x%X into itself", head)
	}
	if g.edge(head, tail) < 0 {
		return fmt.Errorf("%w: edge 0x%X -> 0x%X", ErrNotFound, head, tail)
	}
	if n := len(g.Successors(head)); n != 1 {
		return fmt.Errorf("block 0x%X has %d successors", head, n)
	}
	if n := len(g.Predecessors(tail)); n != 1 {
		return fmt.Errorf("block 0x%X has %d predecessors", tail, n)
	}

	g.blocks[head].Append(g.blocks[tail])

	edges := g.edges[:0]
	for _, e := range g.edges {
		switch {
		case e.Head == head && e.Tail == tail:
			continue
		case e.Head == tail:
			e.Head = head
		}
		edges = append(edges, e)
	}
	g.edges = edges
	delete(g.blocks, tail)
	if g.entry != nil && *g.entry == tail {
		g.entry = &head
	}
	return nil
}

// RemoveBlock deletes a block and every edge touching it.
func (g *Graph) RemoveBlock(index uint64) error {
	if err := g.mustHave(index); err != nil {
		return err
	}
	delete(g.blocks, index)
	g.edges = lo.Reject(g.edges, func(e Edge, _ int) bool { return e.Head == index || e.Tail == index })
	if g.entry != nil && *g.entry == index {
		g.entry = nil
	}
	return nil
}

// BlockInfo is the serializable summary of one block.
type BlockInfo struct {
	Index        uint64   `json:"index"`
	Instructions []string `json:"instructions"`
	Predecessors []uint64 `json:"predecessors"`
}

// EdgeInfo is the serializable form of an Edge.
type EdgeInfo struct {
	Head      uint64 `json:"head"`
	Tail      uint64 `json:"tail"`
	Condition string `json:"condition,omitempty"`
}

// GraphInfo is a JSON view of the whole graph.
type GraphInfo struct {
	Blocks               []BlockInfo `json:"blocks"`
	Edges                []EdgeInfo  `json:"edges"`
	EntryBlock           *uint64     `json:"entry_block,omitempty"`
	CyclomaticComplexity int         `json:"cyclomatic_complexity"`
}

// Info builds a GraphInfo snapshot.
func (g *Graph) Info() GraphInfo {
	info := GraphInfo{
		Blocks: make([]BlockInfo, 0, len(g.blocks)),
		Edges:  make([]EdgeInfo, 0, len(g.edges)),
	}
	for _, b := range g.Blocks() {
		info.Blocks = append(info.Blocks, BlockInfo{
			Index:        b.index,
			Instructions: lo.Map(b.instructions, func(i Instruction, _ int) string { return i.String() }),
			Predecessors: g.Predecessors(b.index),
		})
	}
	for _, e := range g.edges {
		ei := EdgeInfo{Head: e.Head, Tail: e.Tail}
		if e.Condition != nil {
			ei.Condition = e.Condition.String()
		}
		info.Edges = append(info.Edges, ei)
	}
	if g.entry != nil {
		entry := *g.entry
		info.EntryBlock = &entry
	}
	if len(g.blocks) > 0 {
		info.CyclomaticComplexity = len(g.edges) - len(g.blocks) + 2
	}
	return info
}

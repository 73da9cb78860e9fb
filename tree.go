package serialtree

import (
	"fmt"

	"github.com/cockroachdb/swiss"
)

const (
	// maxDepth is the deepest supported refinement level. All traversal
	// stacks are sized from this bound and overflow is fatal.
	maxDepth = 30

	// maxOrder is the highest filter order with tabulated filter banks.
	maxOrder = 13
)

// SerialTree stores an adaptively refined multiwavelet function tree in
// three fixed-capacity arenas: one for node metadata and two for
// coefficient blocks (persistent and generated). Node references are
// ranks, coefficient references are block indices, so the persistent
// state can be snapshotted as a flat byte blob and reattached in another
// process without walking live pointers.
//
// A SerialTree is not safe for concurrent mutation.
type SerialTree struct {
	dim   int32
	order int32
	kp1   int32 // order + 1
	kp1d  int32 // (order+1)^dim, scaling coefficients per node
	tdim  int32 // 2^dim
	block int32 // tdim * kp1d, float64s per coefficient block

	nodes     *nodeArena
	coeffs    *coeffArena // persistent blocks
	genCoeffs *coeffArena // generated (transient) blocks

	nRoots   int32
	lookup   *swiss.Map[NodeIndex, int32] // projected nodes only
	endNodes []int32

	nNodes     int // reachable node count, maintained by traversals
	squareNorm float64
}

// New builds a tree representing the zero function on the root box.
func New(opts Options) (*SerialTree, error) {
	if err := checkOptions(opts); err != nil {
		return nil, err
	}
	kp1 := int32(opts.Order + 1)
	kp1d := int32(1)
	for d := 0; d < opts.Dim; d++ {
		kp1d *= kp1
	}
	tdim := int32(1) << opts.Dim

	t := &SerialTree{
		dim:    int32(opts.Dim),
		order:  int32(opts.Order),
		kp1:    kp1,
		kp1d:   kp1d,
		tdim:   tdim,
		block:  tdim * kp1d,
		nRoots: int32(len(opts.Roots)),
		lookup: swiss.New[NodeIndex, int32](int(len(opts.Roots))),
	}
	t.nodes = newNodeArena(int32(opts.MaxNodes))
	t.coeffs = newCoeffArena(int32(opts.MaxNodesCoeff), t.block, tdim)
	t.genCoeffs = newCoeffArena(int32(opts.MaxGenNodesCoeff), t.block, tdim)

	// Root nodes occupy the stable rank prefix 0..nRoots-1 for the
	// lifetime of the arena.
	for _, idx := range opts.Roots {
		rank := t.nodes.alloc(1)
		n := t.nodes.at(rank)
		n.reset(rank, idx)
		n.coeffIx = t.coeffs.alloc(tdim)
		t.lookup.Put(idx, rank)
		t.endNodes = append(t.endNodes, rank)
	}
	t.nNodes = int(t.nRoots)
	return t, nil
}

// Order returns the polynomial order of the basis.
func (t *SerialTree) Order() int { return int(t.order) }

// Dim returns the grid dimensionality.
func (t *SerialTree) Dim() int { return int(t.dim) }

// NumRoots returns the root box size.
func (t *SerialTree) NumRoots() int { return int(t.nRoots) }

// NumNodes returns the number of reachable nodes.
func (t *SerialTree) NumNodes() int { return t.nNodes }

// SquareNorm returns the aggregate squared norm accumulated by the last
// combine over this tree.
func (t *SerialTree) SquareNorm() float64 { return t.squareNorm }

// Root returns the rank of root i.
func (t *SerialTree) Root(i int) int32 { return int32(i) }

// FindNode resolves a grid cell to its rank. Generated nodes are not
// registered and cannot be found this way.
func (t *SerialTree) FindNode(idx NodeIndex) (int32, bool) {
	return t.lookup.Get(idx)
}

// IndexOf returns the grid cell of the node at rank.
func (t *SerialTree) IndexOf(rank int32) NodeIndex {
	return t.nodes.at(rank).index()
}

// ParentOf returns the parent rank, or -1 for a root.
func (t *SerialTree) ParentOf(rank int32) int32 {
	return t.nodes.at(rank).parent
}

// ChildOf returns the rank of child i, or -1.
func (t *SerialTree) ChildOf(rank int32, i int) int32 {
	return t.nodes.at(rank).children[i]
}

// NumChildren returns the child count of the node at rank.
func (t *SerialTree) NumChildren(rank int32) int {
	return int(t.nodes.at(rank).nChild)
}

// HasWCoefs reports whether the node carries wavelet detail.
func (t *SerialTree) HasWCoefs(rank int32) bool {
	return t.nodes.at(rank).hasWCoefs()
}

// IsGenerated reports whether the node is transient.
func (t *SerialTree) IsGenerated(rank int32) bool {
	return t.nodes.at(rank).isGenerated()
}

// Coefs returns the coefficient block of the node at rank, resolving the
// persistent or generated arena by the node's flavor.
func (t *SerialTree) Coefs(rank int32) []float64 {
	n := t.nodes.at(rank)
	if n.isGenerated() {
		return t.genCoeffs.blockAt(n.coeffIx)
	}
	return t.coeffs.blockAt(n.coeffIx)
}

// EndNodes returns the ranks of the combination leaves in traversal
// order. The slice is owned by the tree.
func (t *SerialTree) EndNodes() []int32 { return t.endNodes }

// Split refines the node at rank into 2^D projected children with
// zeroed persistent coefficient blocks.
func (t *SerialTree) Split(rank int32) {
	t.createChildren(rank, false)
}

// GenChildren refines the node at rank into 2^D generated children whose
// blocks come from the transient arena. Coefficient values are left for
// the caller (normally the transform kernel) to fill.
func (t *SerialTree) GenChildren(rank int32) {
	t.createChildren(rank, true)
}

func (t *SerialTree) createChildren(rank int32, generated bool) {
	parent := t.nodes.at(rank)
	if parent.nChild != 0 {
		panic(fmt.Sprintf("serialtree: node %d already has children", rank))
	}
	arena := t.coeffs
	if generated {
		arena = t.genCoeffs
	}
	first := t.nodes.alloc(t.tdim)
	firstCoeff := int32(nilRank)
	for i := int32(0); i < t.tdim; i++ {
		c := t.nodes.at(first + i)
		c.reset(first+i, parent.index().Child(int(i)))
		c.parent = rank
		cix := arena.alloc(t.tdim)
		if i == 0 {
			firstCoeff = cix
		} else if cix != firstCoeff+i {
			// The transform kernels write sibling blocks at a fixed
			// stride, which requires a contiguous run.
			panic("serialtree: non-contiguous child coefficient blocks")
		}
		c.coeffIx = cix
		if generated {
			c.flags |= flagGenerated
		} else {
			clear(arena.blockAt(cix))
			t.lookup.Put(c.index(), c.rank)
		}
		parent.children[i] = c.rank
	}
	parent.nChild = t.tdim
	t.nNodes += int(t.tdim)
}

// childRun returns the buffer spanning the children's coefficient blocks
// and the stride between siblings. The children must be siblings from
// one allocation.
func (t *SerialTree) childRun(rank int32) ([]float64, int) {
	parent := t.nodes.at(rank)
	if parent.nChild == 0 {
		panic(fmt.Sprintf("serialtree: node %d has no children", rank))
	}
	first := t.nodes.at(parent.children[0])
	arena := t.coeffs
	if first.isGenerated() {
		arena = t.genCoeffs
	}
	for i := int32(1); i < parent.nChild; i++ {
		c := t.nodes.at(parent.children[i])
		if c.coeffIx != first.coeffIx+i || c.isGenerated() != first.isGenerated() {
			panic("serialtree: scattered child coefficient blocks")
		}
	}
	return arena.run(first.coeffIx, parent.nChild), int(t.block)
}

// ClearGenerated releases every generated node and its transient block,
// restoring parents to leaves. Ranks are visited top down so the arena
// tops retreat fully.
func (t *SerialTree) ClearGenerated() {
	for rank := t.nodes.top - 1; rank >= 0; rank-- {
		if !t.nodes.occupied(rank) {
			continue
		}
		n := t.nodes.at(rank)
		if n.isGenerated() {
			t.genCoeffs.free(n.coeffIx)
			t.nodes.free(rank)
			t.nNodes--
			continue
		}
		if n.nChild > 0 && t.nodes.at(n.children[0]).isGenerated() {
			for i := range n.children {
				n.children[i] = nilRank
			}
			n.nChild = 0
		}
	}
}

// calcNorm recomputes the node's squared norm over its full block.
func (t *SerialTree) calcNorm(rank int32) float64 {
	n := t.nodes.at(rank)
	n.norm = squaredNorm(t.Coefs(rank))
	return n.norm
}

// resetEndNodeTable rebuilds the leaf table by an explicit depth-first
// traversal. A node is an end node when it has no children or only
// generated ones.
func (t *SerialTree) resetEndNodeTable() {
	t.endNodes = t.endNodes[:0]
	var stack [maxDepth * 8]int32
	for r := int32(0); r < t.nRoots; r++ {
		slen := 0
		stack[slen] = r
		slen++
		for slen > 0 {
			slen--
			rank := stack[slen]
			n := t.nodes.at(rank)
			if n.nChild == 0 || t.nodes.at(n.children[0]).isGenerated() {
				t.endNodes = append(t.endNodes, rank)
				continue
			}
			for i := n.nChild - 1; i >= 0; i-- {
				if slen == len(stack) {
					panic("serialtree: traversal stack overflow")
				}
				stack[slen] = n.children[i]
				slen++
			}
		}
	}
}

package serialtree

import "unsafe"

const (
	// nilRank marks an empty parent/child reference.
	nilRank int32 = -1

	// nodeStride is the size of one node slot in bytes. The struct below
	// is laid out to hit this exactly (a multiple of 16) so the slot
	// array can be snapshotted as a raw byte range.
	nodeStride = 80
)

const (
	flagHasWCoefs uint32 = 1 << iota
	flagGenerated
)

// mwNode is one fixed-size node slot. Every reference inside a slot is a
// rank or a block index, never a Go pointer, so a snapshot of the slot
// array is position independent by construction.
//
//	+--------+--------+-------------+--------+---------+------+-------+--------+-------+-----+
//	| norm(8)|parent(4)| children(32)|nChild(4)|coeffIx(4)|rank(4)|scale(4)| l(12) |flags(4)|pad(4)|
//	+--------+--------+-------------+--------+---------+------+-------+--------+-------+-----+
type mwNode struct {
	norm     float64
	parent   int32
	children [8]int32
	nChild   int32
	coeffIx  int32
	rank     int32
	scale    int32
	l        [3]int32
	flags    uint32
	_pad     uint32
}

// the wire format depends on the slot size never drifting
var _ [nodeStride]byte = [unsafe.Sizeof(mwNode{})]byte{}

func (n *mwNode) index() NodeIndex {
	return NodeIndex{Scale: n.scale, L: n.l}
}

func (n *mwNode) hasWCoefs() bool { return n.flags&flagHasWCoefs != 0 }

func (n *mwNode) isGenerated() bool { return n.flags&flagGenerated != 0 }

func (n *mwNode) setHasWCoefs() { n.flags |= flagHasWCoefs }

// reset prepares a freshly allocated slot. The rank is assigned by the
// arena and must survive the wipe.
func (n *mwNode) reset(rank int32, idx NodeIndex) {
	*n = mwNode{
		parent:  nilRank,
		coeffIx: nilRank,
		rank:    rank,
		scale:   idx.Scale,
		l:       idx.L,
	}
	for i := range n.children {
		n.children[i] = nilRank
	}
}

package serialtree

// NodeIndex identifies a cell of the 2^D-ary grid: a refinement scale and
// one integer translation per dimension. Unused dimensions hold zero.
type NodeIndex struct {
	Scale int32
	L     [3]int32
}

// Child returns the index of child i, where bit d of i selects the
// upper half along dimension d.
func (n NodeIndex) Child(i int) NodeIndex {
	c := NodeIndex{Scale: n.Scale + 1}
	for d := 0; d < 3; d++ {
		c.L[d] = 2*n.L[d] + int32((i>>d)&1)
	}
	return c
}

// Parent returns the index of the enclosing cell one scale up.
func (n NodeIndex) Parent() NodeIndex {
	p := NodeIndex{Scale: n.Scale - 1}
	for d := 0; d < 3; d++ {
		p.L[d] = n.L[d] >> 1
	}
	return p
}

// ChildPos returns which of the parent's 2^D children this cell is.
func (n NodeIndex) ChildPos() int {
	pos := 0
	for d := 0; d < 3; d++ {
		pos |= int(n.L[d]&1) << d
	}
	return pos
}

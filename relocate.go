package serialtree

import "fmt"

// relocate revalidates an attached arena and rebuilds every derived
// structure. An explicit bounded stack walks the tree from the root
// prefix; each reachable node must be visited exactly once, since a
// revisit means a cycle in the copied bytes. The reachable count
// replaces whatever the wire claimed.
func (t *SerialTree) relocate() error {
	visited := make([]bool, t.nodes.top)
	claimed := make([]bool, t.coeffs.top)
	var stack [maxDepth * 8]int32
	count := 0

	for r := int32(0); r < t.nRoots; r++ {
		slen := 0
		stack[slen] = r
		slen++
		for slen > 0 {
			slen--
			rank := stack[slen]
			if rank < 0 || rank >= t.nodes.top || !t.nodes.occupied(rank) {
				return fmt.Errorf("%w: child rank %d out of range", ErrBadStructure, rank)
			}
			if visited[rank] {
				return fmt.Errorf("%w: node %d visited twice", ErrBadStructure, rank)
			}
			visited[rank] = true
			count++

			n := t.nodes.at(rank)
			if n.rank != rank {
				return fmt.Errorf("%w: slot %d claims rank %d", ErrBadStructure, rank, n.rank)
			}
			if n.isGenerated() {
				return fmt.Errorf("%w: generated node %d in snapshot", ErrBadStructure, rank)
			}
			if n.coeffIx < 0 || n.coeffIx >= t.coeffs.top || t.coeffs.status[n.coeffIx] == 0 {
				return fmt.Errorf("%w: node %d has dead coeff block %d", ErrBadStructure, rank, n.coeffIx)
			}
			// a live block is owned by exactly one node
			if claimed[n.coeffIx] {
				return fmt.Errorf("%w: coeff block %d owned twice", ErrBadStructure, n.coeffIx)
			}
			claimed[n.coeffIx] = true
			if n.nChild != 0 && n.nChild != t.tdim {
				return fmt.Errorf("%w: node %d has %d children", ErrBadStructure, rank, n.nChild)
			}
			t.lookup.Put(n.index(), rank)

			for i := int32(0); i < n.nChild; i++ {
				c := n.children[i]
				if c < 0 || c >= t.nodes.top {
					return fmt.Errorf("%w: child rank %d out of range", ErrBadStructure, c)
				}
				if t.nodes.at(c).parent != rank {
					return fmt.Errorf("%w: node %d disowned by child %d", ErrBadStructure, rank, c)
				}
				if t.nodes.at(c).index() != n.index().Child(int(i)) {
					return fmt.Errorf("%w: child %d of node %d holds the wrong cell", ErrBadStructure, c, rank)
				}
				if slen == len(stack) {
					return fmt.Errorf("%w: refinement deeper than %d levels", ErrBadStructure, maxDepth)
				}
				stack[slen] = c
				slen++
			}
		}
	}

	t.nNodes = count
	t.resetEndNodeTable()
	return nil
}

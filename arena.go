package serialtree

import "fmt"

// nodeArena is a fixed-capacity slab of node slots with stack-style
// allocation. Slots are identified by rank: the position assigned at
// allocation time. Freed slots below the high-water mark stay counted as
// occupied space until the top retreats past them.
type nodeArena struct {
	slots  []mwNode
	status []uint8 // 1 = occupied
	top    int32   // high-water mark: highest occupied rank + 1
	max    int32
}

func newNodeArena(max int32) *nodeArena {
	return &nodeArena{
		slots:  make([]mwNode, max),
		status: make([]uint8, max),
		max:    max,
	}
}

// alloc reserves n contiguous slots at the top and returns the first
// rank. Capacity exceeded is fatal: the arena never resizes.
func (a *nodeArena) alloc(n int32) int32 {
	if a.top+n > a.max {
		panic(fmt.Sprintf("serialtree: node arena full (max %d)", a.max))
	}
	first := a.top
	for i := first; i < first+n; i++ {
		if a.status[i] != 0 {
			panic(fmt.Sprintf("serialtree: node slot %d already occupied", i))
		}
		a.status[i] = 1
		a.slots[i].rank = i
	}
	a.top += n
	return first
}

// free marks the slot available. Only a trailing free run is reclaimed;
// holes below the top wait for the top to retreat past them.
func (a *nodeArena) free(rank int32) {
	a.status[rank] = 0
	if rank == a.top-1 {
		for a.top > 0 && a.status[a.top-1] == 0 {
			a.top--
		}
	}
}

func (a *nodeArena) at(rank int32) *mwNode {
	return &a.slots[rank]
}

func (a *nodeArena) occupied(rank int32) bool {
	return rank >= 0 && rank < a.max && a.status[rank] != 0
}

// inUse counts occupied slots, holes excluded.
func (a *nodeArena) inUse() int {
	n := 0
	for i := int32(0); i < a.top; i++ {
		if a.status[i] != 0 {
			n++
		}
	}
	return n
}

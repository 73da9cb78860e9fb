package serialtree

import (
	"fmt"
	"log/slog"
)

// coeffArena is a fixed-capacity store of equally sized coefficient
// blocks backed by one contiguous float64 buffer. A block holds the full
// coefficient set of one node: 2^D groups of (order+1)^D scaling or
// wavelet coefficients. Allocation follows the same stack discipline as
// the node arena.
type coeffArena struct {
	data   []float64
	status []uint8
	top    int32
	max    int32
	block  int32 // float64s per block
	tdim   int32 // 2^D, the only supported allocation granularity
}

func newCoeffArena(max, block, tdim int32) *coeffArena {
	return &coeffArena{
		data:   make([]float64, int(max)*int(block)),
		status: make([]uint8, max),
		max:    max,
		block:  block,
		tdim:   tdim,
	}
}

// alloc reserves the next block at the top and returns its index. The
// request size must be exactly 2^D children's worth (one block); any
// other granularity is a usage error.
func (a *coeffArena) alloc(n int32) int32 {
	if n != a.tdim {
		panic(fmt.Sprintf("serialtree: coeff alloc of %d, only 2^D supported", n))
	}
	if a.top >= a.max {
		panic(fmt.Sprintf("serialtree: coeff arena full (max %d)", a.max))
	}
	ix := a.top
	if a.status[ix] != 0 {
		panic(fmt.Sprintf("serialtree: coeff block %d already occupied", ix))
	}
	a.status[ix] = 1
	a.top++
	return ix
}

// free marks the block available, retreating the top past a trailing
// free run. Freeing an already-free block is a bookkeeping anomaly:
// reported and skipped, execution continues.
func (a *coeffArena) free(ix int32) {
	if a.status[ix] == 0 {
		slog.Warn("serialtree: freeing unallocated coeff block", "index", ix)
		return
	}
	a.status[ix] = 0
	if ix == a.top-1 {
		for a.top > 0 && a.status[a.top-1] == 0 {
			a.top--
		}
	}
}

// blockAt returns the live block at the given index.
func (a *coeffArena) blockAt(ix int32) []float64 {
	off := int(ix) * int(a.block)
	return a.data[off : off+int(a.block) : off+int(a.block)]
}

// run returns the buffer spanning n consecutive blocks starting at ix.
// Used by the transform kernels, which read and write sibling blocks at
// a fixed stride.
func (a *coeffArena) run(ix, n int32) []float64 {
	off := int(ix) * int(a.block)
	end := off + int(n)*int(a.block)
	return a.data[off:end:end]
}

func (a *coeffArena) inUse() int {
	n := 0
	for i := int32(0); i < a.top; i++ {
		if a.status[i] != 0 {
			n++
		}
	}
	return n
}

package serialtree

import (
	"log/slog"
)

// combineStackCap bounds the matched traversal stacks: one 2^D sibling
// group per refinement level. Exceeding it is fatal, not silent.
const combineStackCap = maxDepth * 8

// Combiner computes linear combinations of two adaptively refined trees
// in place, generating missing refinement on demand through its kernel.
// Both trees must share the combiner's basis.
type Combiner struct {
	kernel *Kernel
}

func NewCombiner(k *Kernel) *Combiner {
	return &Combiner{kernel: k}
}

func (cb *Combiner) check(dst, src *SerialTree) {
	if dst.nRoots != src.nRoots {
		panic("serialtree: number of root nodes must be equal")
	}
	if int(dst.kp1d) != cb.kernel.kp1d || int(src.kp1d) != cb.kernel.kp1d {
		panic("serialtree: kernel does not match tree basis")
	}
	if dst.nRoots > combineStackCap {
		panic("serialtree: root box exceeds combine stack")
	}
}

// genScalingChildren manufactures 2^D generated children for the node,
// synthesizing their scaling coefficients from the parent. When the
// parent carries no wavelet detail the filter taps that would read it
// are skipped, so uninitialized memory is never touched.
func (cb *Combiner) genScalingChildren(t *SerialTree, rank int32) {
	scalingOnly := !t.nodes.at(rank).hasWCoefs()
	t.GenChildren(rank)
	buf, stride := t.childRun(rank)
	cb.kernel.Reconstruct(t.Coefs(rank), buf, stride, scalingOnly)
}

// Add computes dst <- dst + c*src top down. Where one tree is refined
// and the other is not, the missing children are generated on the fly,
// so no prior grid-union step is needed. The destination's square norm
// and end-node table are rebuilt afterwards.
func (cb *Combiner) Add(dst *SerialTree, c float64, src *SerialTree) {
	cb.check(dst, src)
	ng := cb.kernel.kp1d
	nc := cb.kernel.kp1d * cb.kernel.tdim

	var stackA, stackB [combineStackCap]int32
	slen := 0
	for r := int32(0); r < dst.nRoots; r++ {
		stackA[slen], stackB[slen] = r, r
		slen++
	}

	tsum := 0.0
	for slen > 0 {
		slen--
		rA, rB := stackA[slen], stackB[slen]
		nA, nB := dst.nodes.at(rA), src.nodes.at(rB)

		if nA.nChild+nB.nChild > 0 {
			if nA.nChild == 0 {
				cb.genScalingChildren(dst, rA)
			}
			if nB.nChild == 0 {
				cb.genScalingChildren(src, rB)
			}
			for i := int32(0); i < nA.nChild; i++ {
				if slen == combineStackCap {
					panic("serialtree: combine stack overflow")
				}
				stackA[slen] = nA.children[i]
				stackB[slen] = nB.children[i]
				slen++
			}
		}

		cA, cB := dst.Coefs(rA), src.Coefs(rB)
		switch {
		case nA.hasWCoefs() && nB.hasWCoefs():
			axpy(cA[:nc], cB[:nc], c)
		case nA.hasWCoefs():
			axpy(cA[:ng], cB[:ng], c)
		case nB.hasWCoefs():
			axpy(cA[:ng], cB[:ng], c)
			scaleCopy(cA[ng:nc], cB[ng:nc], c)
		default:
			axpy(cA[:ng], cB[:ng], c)
			// Two sides without detail meet only when both were
			// generated; give the result a defined wavelet part.
			clear(cA[ng:nc])
			slog.Debug("serialtree: combined two generated nodes", "rank", rA)
		}
		nA.setHasWCoefs()
		nA.norm = squaredNorm(cA[:nc])
		if nA.nChild == 0 {
			tsum += nA.norm
		}
	}

	dst.squareNorm = tsum
	dst.resetEndNodeTable()
}

// AddBottomUp computes dst <- dst + c*src like Add, but additionally
// re-derives each parent from its children as soon as all 2^D siblings
// are finalized, keeping the compressed representation intact without a
// separate recompression pass. A sibling group is complete when the
// traversal reaches the parent's first child (visited last) or the
// stack is exhausted.
func (cb *Combiner) AddBottomUp(dst *SerialTree, c float64, src *SerialTree) {
	cb.check(dst, src)

	var stackA, stackB [combineStackCap]int32
	slen := 0
	for r := int32(0); r < dst.nRoots; r++ {
		stackA[slen], stackB[slen] = r, r
		slen++
	}

	downwards := true
	tsum := 0.0
	for slen > 0 {
		top := slen - 1
		rA, rB := stackA[top], stackB[top]
		nA, nB := dst.nodes.at(rA), src.nodes.at(rB)

		if nA.nChild+nB.nChild > 0 && downwards {
			if nA.nChild == 0 {
				cb.genScalingChildren(dst, rA)
			}
			if nB.nChild == 0 {
				cb.genScalingChildren(src, rB)
			}
			for i := int32(0); i < nA.nChild; i++ {
				if slen == combineStackCap {
					panic("serialtree: combine stack overflow")
				}
				stackA[slen] = nA.children[i]
				stackB[slen] = nB.children[i]
				slen++
			}
			continue
		}

		youngest := false
		if nA.parent != nilRank {
			youngest = dst.nodes.at(nA.parent).children[0] == rA
		}
		if !youngest && top != 0 {
			slen--
			downwards = true
			continue
		}

		// All siblings of this node are finalized: sum the leaves among
		// them, then rebuild the parent from the completed group.
		var sibA, sibB []int32
		if nA.parent != nilRank {
			sibA = dst.nodes.at(nA.parent).children[:dst.tdim]
			sibB = src.nodes.at(nB.parent).children[:src.tdim]
		} else {
			sibA = rootRanks(dst.nRoots)
			sibB = sibA
		}
		for j := range sibA {
			if dst.nodes.at(sibA[j]).nChild != 0 {
				continue
			}
			cb.combineLeafUp(dst, sibA[j], c, src, sibB[j])
			tsum += dst.calcNorm(sibA[j])
		}
		if top > 0 {
			buf, stride := dst.childRun(nA.parent)
			cb.kernel.Compress(buf, stride, dst.Coefs(nA.parent))
			parent := dst.nodes.at(nA.parent)
			parent.setHasWCoefs()
			dst.calcNorm(nA.parent)
		}
		downwards = false
		slen--
	}

	dst.squareNorm = tsum
	dst.resetEndNodeTable()
}

// combineLeafUp adds one matched leaf pair, keyed on node flavor: a
// generated node carries trustworthy scaling coefficients only.
func (cb *Combiner) combineLeafUp(dst *SerialTree, rA int32, c float64, src *SerialTree, rB int32) {
	ng := cb.kernel.kp1d
	nc := cb.kernel.kp1d * cb.kernel.tdim
	nA, nB := dst.nodes.at(rA), src.nodes.at(rB)
	cA, cB := dst.Coefs(rA), src.Coefs(rB)

	if nA.isGenerated() {
		axpy(cA[:ng], cB[:ng], c)
		if nB.isGenerated() {
			clear(cA[ng:nc])
			slog.Debug("serialtree: combined two generated nodes", "rank", rA)
		} else {
			scaleCopy(cA[ng:nc], cB[ng:nc], c)
		}
		return
	}
	if nB.isGenerated() {
		axpy(cA[:ng], cB[:ng], c)
		return
	}
	axpy(cA[:nc], cB[:nc], c)
}

func rootRanks(n int32) []int32 {
	r := make([]int32, n)
	for i := range r {
		r[i] = int32(i)
	}
	return r
}

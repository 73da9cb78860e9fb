package serialtree

import (
	"github.com/ajroetker/go-highway/hwy/contrib/matmul"
)

// Kernel applies the separable multiwavelet filter bank between a parent
// block and its 2^D children. Implemented for D=3 only: each transform
// is three sequential 1-D passes over the tensor-shaped block, every
// pass contracting one axis with a quadrant sub-filter and rotating the
// axes via a transposed store.
//
// A Kernel owns scratch buffers and must not be shared between
// goroutines.
type Kernel struct {
	bank   *FilterBank
	kp1    int
	kp1dm1 int
	kp1d   int
	tdim   int

	gemm []float64 // one pass worth of A*F
	tmp  []float64 // inter-pass block buffer
}

// NewKernel builds a transform kernel for one filter bank. Dimensions
// other than 3 are an unimplemented path, not a silent approximation.
func NewKernel(bank *FilterBank, dim int) *Kernel {
	if dim != 3 {
		panic("serialtree: transform kernel implemented for D=3 only")
	}
	kp1 := bank.Order() + 1
	kp1dm1 := kp1 * kp1
	kp1d := kp1dm1 * kp1
	tdim := 1 << dim
	return &Kernel{
		bank:   bank,
		kp1:    kp1,
		kp1dm1: kp1dm1,
		kp1d:   kp1d,
		tdim:   tdim,
		gemm:   make([]float64, kp1d),
		tmp:    make([]float64, kp1d*tdim),
	}
}

// BlockSize returns the float64 count of one coefficient block.
func (k *Kernel) BlockSize() int { return k.kp1d * k.tdim }

// applyFilter contracts one tensor axis: out viewed as kp1 groups of
// kp1dm1 gets A*F with A = in reshaped (kp1dm1 x kp1) row-major, stored
// transposed so the contracted axis rotates to the slow position. The
// accumulate flag adds into out instead of overwriting.
func (k *Kernel) applyFilter(out, in []float64, f *Matrix, accumulate bool) {
	matmul.MatMul(in, f.Data, k.gemm, k.kp1dm1, k.kp1, k.kp1)
	if accumulate {
		for j := 0; j < k.kp1; j++ {
			row := out[j*k.kp1dm1:]
			for i := 0; i < k.kp1dm1; i++ {
				row[i] += k.gemm[i*k.kp1+j]
			}
		}
		return
	}
	for j := 0; j < k.kp1; j++ {
		row := out[j*k.kp1dm1:]
		for i := 0; i < k.kp1dm1; i++ {
			row[i] = k.gemm[i*k.kp1+j]
		}
	}
}

// pass runs one 1-D filter application over all 2^D quadrants. dir is
// the axis, ftLim bounds the input quadrants read (restricted in
// scaling-only mode), inStride/outStride give the spacing of input and
// output quadrant groups.
func (k *Kernel) pass(oper Operation, dir, ftLim int, in []float64, inStride int, out []float64, outStride int) {
	mask := 1 << dir
	for gt := 0; gt < k.tdim; gt++ {
		first := true
		for ft := 0; ft < ftLim; ft++ {
			// Operate along dir only when the bits of the other axes
			// agree; the dir bits of gt and ft pick the sub-filter.
			if (gt | mask) != (ft | mask) {
				continue
			}
			fi := 2*((gt>>dir)&1) + ((ft >> dir) & 1)
			k.applyFilter(out[gt*outStride:], in[ft*inStride:], k.bank.SubFilter(fi, oper), !first)
			first = false
		}
	}
}

// Reconstruct synthesizes the scaling coefficients of all 2^D children
// from one parent block. Children are written at childStride spacing
// into out, which must span the children's blocks. In scaling-only mode
// the wavelet taps are skipped entirely, so the wavelet portion of the
// parent is never read; used for generated children whose parents carry
// no detail.
//
// The leading quadrants of out double as inter-pass scratch, matching
// the layout guarantee that childStride >= 2^D * (order+1)^D.
func (k *Kernel) Reconstruct(parent, out []float64, childStride int, scalingOnly bool) {
	ftLim := [3]int{k.tdim, k.tdim, k.tdim}
	if scalingOnly {
		ftLim = [3]int{1, 2, 4}
	}
	k.pass(Reconstruction, 0, ftLim[0], parent, k.kp1d, out, k.kp1d)
	k.pass(Reconstruction, 1, ftLim[1], out, k.kp1d, k.tmp, k.kp1d)
	k.pass(Reconstruction, 2, ftLim[2], k.tmp, k.kp1d, out, childStride)
}

// Compress is the inverse: combines the scaling coefficients of 2^D
// children (read at childStride spacing) into one parent block holding
// both scaling and wavelet coefficients. Run back-to-back after
// Reconstruct on full-detail data it reproduces the parent up to
// floating-point rounding.
func (k *Kernel) Compress(children []float64, childStride int, parent []float64) {
	k.pass(Compression, 0, k.tdim, children, childStride, parent, k.kp1d)
	k.pass(Compression, 1, k.tdim, parent, k.kp1d, k.tmp, k.kp1d)
	k.pass(Compression, 2, k.tdim, k.tmp, k.kp1d, parent, k.kp1d)
}

// TransformUp regenerates every interior node's coefficients from its
// children, bottom up, purifying the compressed representation after
// leaf-level edits. Nodes whose children are generated are treated as
// leaves.
func (k *Kernel) TransformUp(t *SerialTree) {
	if int(t.kp1d) != k.kp1d || int(t.dim) != 3 {
		panic("serialtree: kernel does not match tree basis")
	}
	status := make([]uint8, t.nodes.top)
	var stack [maxDepth * 8]int32
	slen := 0
	for r := int32(0); r < t.nRoots; r++ {
		stack[slen] = r
		slen++
		if t.interior(r) == nil {
			status[r] = 1
		}
	}
	for slen > 0 {
		rank := stack[slen-1]
		n := t.interior(rank)
		if n == nil || status[rank] != 0 {
			slen--
			status[rank] = 1
			continue
		}
		ready := int32(0)
		for i := int32(0); i < n.nChild; i++ {
			c := n.children[i]
			if status[c] > 0 || t.interior(c) == nil {
				ready++
				continue
			}
			if slen == len(stack) {
				panic("serialtree: traversal stack overflow")
			}
			stack[slen] = c
			slen++
		}
		if ready == n.nChild {
			buf, stride := t.childRun(rank)
			k.Compress(buf, stride, t.Coefs(rank))
			n.setHasWCoefs()
			t.calcNorm(rank)
			status[rank] = 1
		}
	}
}

// interior returns the node when it has non-generated children, nil
// otherwise.
func (t *SerialTree) interior(rank int32) *mwNode {
	n := t.nodes.at(rank)
	if n.nChild == 0 || t.nodes.at(n.children[0]).isGenerated() {
		return nil
	}
	return n
}

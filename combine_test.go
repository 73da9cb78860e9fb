package serialtree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cloneTree(tb testing.TB, src *SerialTree) *SerialTree {
	tb.Helper()
	blob, err := src.Snapshot()
	require.NoError(tb, err)
	dst, err := Attach(blob)
	require.NoError(tb, err)
	return dst
}

func TestAddSelfCancellation(t *testing.T) {
	assert := assert.New(t)

	a := newTestTree(t, 2)
	a.Split(0)
	a.Split(a.ChildOf(0, 2))
	fillRandom(a, 7)
	a.resetEndNodeTable()
	b := cloneTree(t, a)

	cb := NewCombiner(NewKernel(randomOrthoBank(t, 2, 7), 3))
	cb.Add(a, -1, b)

	// identical grids, opposite signs: exact zero everywhere
	for r := int32(0); r < a.nodes.top; r++ {
		if !a.nodes.occupied(r) {
			continue
		}
		for _, v := range a.Coefs(r) {
			assert.Zero(v)
		}
	}
	assert.Zero(a.SquareNorm())
	assert.Equal(0, a.genCoeffs.inUse())
	assert.Equal(0, b.genCoeffs.inUse())
}

func TestAddGeneratesMissingChildren(t *testing.T) {
	assert := assert.New(t)

	bank := randomOrthoBank(t, 2, 13)
	k := NewKernel(bank, 3)
	cb := NewCombiner(k)
	block := k.BlockSize()

	a := newTestTree(t, 2)
	a.Split(0)
	fillRandom(a, 21)
	b := newTestTree(t, 2)
	fillRandom(b, 22)

	bRoot := append([]float64(nil), b.Coefs(0)...)
	aBefore := make(map[int32][]float64, 8)
	for i := 0; i < 8; i++ {
		c := a.ChildOf(0, i)
		aBefore[c] = append([]float64(nil), a.Coefs(c)...)
	}

	cb.Add(a, 0.5, b)

	// the unrefined side grew generated children
	assert.Equal(8, b.NumChildren(0))
	gen := make([]float64, 8*block)
	check := NewKernel(bank, 3)
	check.Reconstruct(bRoot, gen, block, false)
	for i := 0; i < 8; i++ {
		c := b.ChildOf(0, i)
		assert.True(b.IsGenerated(c))
		assert.Less(maxAbsDiff(b.Coefs(c)[:k.kp1d], gen[i*block:i*block+k.kp1d]), 1e-12, "child %d", i)
	}

	// destination children picked up the generated scaling parts only
	for i := 0; i < 8; i++ {
		c := a.ChildOf(0, i)
		before := aBefore[c]
		after := a.Coefs(c)
		for p := 0; p < k.kp1d; p++ {
			assert.InDelta(before[p]+0.5*gen[i*block+p], after[p], 1e-12)
		}
		assert.Equal(before[k.kp1d:], after[k.kp1d:], "wavelet part of child %d must not move", i)
	}

	b.ClearGenerated()
	assert.Equal(1, b.NumNodes())
	assert.Equal(0, b.genCoeffs.inUse())
}

func TestAddRebuildsEndNodes(t *testing.T) {
	assert := assert.New(t)

	a := newTestTree(t, 1)
	fillRandom(a, 1)
	b := newTestTree(t, 1)
	b.Split(0)
	fillRandom(b, 2)

	cb := NewCombiner(NewKernel(randomOrthoBank(t, 1, 3), 3))
	cb.Add(a, 1, b)

	// a was refined on the fly with generated children, so the root is
	// still its only end node
	assert.Equal(9, a.NumNodes())
	assert.Equal([]int32{0}, a.EndNodes())
	tsum := 0.0
	for i := 0; i < 8; i++ {
		c := a.ChildOf(0, i)
		assert.True(a.IsGenerated(c))
		assert.True(a.HasWCoefs(c))
		tsum += a.nodes.at(c).norm
	}
	assert.InDelta(tsum, a.SquareNorm(), 1e-9)
}

func TestAddBottomUpMatchesAdd(t *testing.T) {
	assert := assert.New(t)

	bank := randomOrthoBank(t, 2, 29)

	build := func() (*SerialTree, *SerialTree) {
		x := newTestTree(t, 2)
		x.Split(0)
		x.Split(x.ChildOf(0, 5))
		fillRandom(x, 41)
		y := newTestTree(t, 2)
		y.Split(0)
		fillRandom(y, 43)
		return x, y
	}

	a1, b1 := build()
	cb1 := NewCombiner(NewKernel(bank, 3))
	cb1.Add(a1, 0.75, b1)

	a2, b2 := build()
	cb2 := NewCombiner(NewKernel(bank, 3))
	cb2.AddBottomUp(a2, 0.75, b2)

	// leaves agree between the two strategies
	assert.Equal(a1.EndNodes(), a2.EndNodes())
	for _, r := range a1.EndNodes() {
		assert.Less(maxAbsDiff(a1.Coefs(r), a2.Coefs(r)), 1e-12, "leaf %d", r)
	}
	assert.InDelta(a1.SquareNorm(), a2.SquareNorm(), 1e-9)
}

func TestAddBottomUpRecompressesParents(t *testing.T) {
	assert := assert.New(t)

	bank := randomOrthoBank(t, 2, 37)
	k := NewKernel(bank, 3)
	cb := NewCombiner(k)

	a := newTestTree(t, 2)
	a.Split(0)
	fillRandom(a, 51)
	b := cloneTree(t, a)

	cb.AddBottomUp(a, 1, b)

	// leaves doubled, parent re-derived from the combined children
	for i := 0; i < 8; i++ {
		c := a.ChildOf(0, i)
		want := b.Coefs(b.ChildOf(0, i))
		got := a.Coefs(c)
		for p := range got {
			assert.InDelta(2*want[p], got[p], 1e-12)
		}
	}
	check := NewKernel(bank, 3)
	scratch := make([]float64, k.BlockSize())
	buf, stride := a.childRun(0)
	check.Compress(buf, stride, scratch)
	assert.Less(maxAbsDiff(a.Coefs(0), scratch), 1e-12)
	assert.True(a.HasWCoefs(0))
}

func TestCombinerChecks(t *testing.T) {
	assert := assert.New(t)

	cb := NewCombiner(NewKernel(randomOrthoBank(t, 2, 2), 3))

	a := newTestTree(t, 2)
	opts := DefaultOptions
	opts.Order = 2
	opts.Roots = []NodeIndex{{}, {L: [3]int32{1, 0, 0}}}
	b, err := New(opts)
	require.NoError(t, err)
	assert.Panics(func() { cb.Add(a, 1, b) })

	c := newTestTree(t, 3)
	assert.Panics(func() { cb.Add(a, 1, c) })
}

func BenchmarkAdd(b *testing.B) {
	bank := randomOrthoBank(b, 5, 1)

	for i := 0; i < b.N; i++ {
		b.StopTimer()
		x := newTestTree(b, 5)
		x.Split(0)
		fillRandom(x, 3)
		y := newTestTree(b, 5)
		fillRandom(y, 4)
		cb := NewCombiner(NewKernel(bank, 3))
		b.StartTimer()

		cb.Add(x, 0.5, y)
		y.ClearGenerated()
	}
}

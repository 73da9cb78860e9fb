package serialtree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/exp/rand"
)

func TestNodeIndexChild(t *testing.T) {
	assert := assert.New(t)

	root := NodeIndex{}
	for i := 0; i < 8; i++ {
		c := root.Child(i)
		assert.Equal(int32(1), c.Scale)
		for d := 0; d < 3; d++ {
			assert.Equal(int32((i>>d)&1), c.L[d])
		}
		assert.Equal(i, c.ChildPos())
		assert.Equal(root, c.Parent())
	}
}

func TestNodeIndexRoundTrip(t *testing.T) {
	assert := assert.New(t)
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 1000; i++ {
		idx := NodeIndex{
			Scale: rng.Int31n(maxDepth),
			L:     [3]int32{rng.Int31n(1 << 10), rng.Int31n(1 << 10), rng.Int31n(1 << 10)},
		}
		pos := rng.Intn(8)
		c := idx.Child(pos)
		assert.Equal(idx, c.Parent())
		assert.Equal(pos, c.ChildPos())
	}
}

func TestNodeIndexDeepDescent(t *testing.T) {
	assert := assert.New(t)

	idx := NodeIndex{Scale: -1} // root boxes may start above scale zero
	path := []int{0, 7, 3, 5, 1, 6}
	for _, p := range path {
		idx = idx.Child(p)
	}
	assert.Equal(int32(len(path)-1), idx.Scale)
	for i := len(path) - 1; i >= 0; i-- {
		assert.Equal(path[i], idx.ChildPos())
		idx = idx.Parent()
	}
	assert.Equal(NodeIndex{Scale: -1}, idx)
}

package serialtree

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
)

func TestFilterBankQuadrants(t *testing.T) {
	assert := assert.New(t)

	// 2x2 quadrants with recognizable values: [G0 G1; H0 H1]
	m := NewMatrix(4, 4)
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			m.Set(i, j, float64(10*i+j))
		}
	}
	bank, err := NewFilterBankFromMatrix(Legendre, m)
	require.NoError(t, err)
	assert.Equal(1, bank.Order())

	h0 := bank.SubFilter(0, Reconstruction)
	g0 := bank.SubFilter(1, Reconstruction)
	h1 := bank.SubFilter(2, Reconstruction)
	g1 := bank.SubFilter(3, Reconstruction)
	assert.Equal(20.0, h0.At(0, 0))
	assert.Equal(0.0, g0.At(0, 0))
	assert.Equal(22.0, h1.At(0, 0))
	assert.Equal(2.0, g1.At(0, 0))

	// compression side is the transposed set
	assert.Equal(h0.At(0, 1), bank.SubFilter(0, Compression).At(1, 0))
	assert.Equal(h1.At(0, 1), bank.SubFilter(1, Compression).At(1, 0))
	assert.Equal(g0.At(0, 1), bank.SubFilter(2, Compression).At(1, 0))
	assert.Equal(g1.At(0, 1), bank.SubFilter(3, Compression).At(1, 0))

	assert.Panics(func() { bank.SubFilter(4, Reconstruction) })
}

func TestFilterBankFromBadMatrix(t *testing.T) {
	assert := assert.New(t)

	_, err := NewFilterBankFromMatrix(Legendre, NewMatrix(3, 3))
	assert.Error(err)
	_, err = NewFilterBankFromMatrix(Legendre, NewMatrix(4, 6))
	assert.Error(err)
	_, err = NewFilterBankFromMatrix(Legendre, NewMatrix(2, 2)) // order 0
	assert.Error(err)
}

func writeFilterTable(t *testing.T, dir, name string, m *Matrix) {
	t.Helper()
	err := os.WriteFile(filepath.Join(dir, name), floatsToBytes(m.Data), 0o644)
	require.NoError(t, err)
}

func TestFilterProviderLegendre(t *testing.T) {
	assert := assert.New(t)

	const order = 2
	k1 := order + 1
	rng := rand.New(rand.NewSource(7))
	h0 := NewMatrix(k1, k1)
	g0 := NewMatrix(k1, k1)
	for i := range h0.Data {
		h0.Data[i] = rng.NormFloat64()
		g0.Data[i] = rng.NormFloat64()
	}

	dir := t.TempDir()
	writeFilterTable(t, dir, "L_H0_2", h0)
	writeFilterTable(t, dir, "L_G0_2", g0)

	p, err := NewFilterProvider(dir)
	require.NoError(t, err)
	bank, err := p.Get(Legendre, order)
	require.NoError(t, err)

	bh0 := bank.SubFilter(0, Reconstruction)
	bg0 := bank.SubFilter(1, Reconstruction)
	bh1 := bank.SubFilter(2, Reconstruction)
	bg1 := bank.SubFilter(3, Reconstruction)
	for i := 0; i < k1; i++ {
		for j := 0; j < k1; j++ {
			assert.Equal(h0.At(i, j), bh0.At(i, j))
			assert.Equal(g0.At(i, j), bg0.At(i, j))
			// Legendre symmetry completion
			assert.Equal(pow1(i+j)*h0.At(i, j), bh1.At(i, j))
			assert.Equal(pow1(i+j+k1)*g0.At(i, j), bg1.At(i, j))
		}
	}

	// second hit comes out of the cache with the same tables
	cached, err := p.Get(Legendre, order)
	require.NoError(t, err)
	assert.Equal(bank.SubFilter(0, Reconstruction).Data, cached.SubFilter(0, Reconstruction).Data)
	assert.Equal(bank.SubFilter(3, Compression).Data, cached.SubFilter(3, Compression).Data)
}

func TestFilterProviderInterpolating(t *testing.T) {
	assert := assert.New(t)

	const order = 1
	k1 := order + 1
	h0 := NewMatrix(k1, k1)
	g0 := NewMatrix(k1, k1)
	v := 1.0
	for i := range h0.Data {
		h0.Data[i], g0.Data[i] = v, -v
		v++
	}

	dir := t.TempDir()
	writeFilterTable(t, dir, "I_H0_1", h0)
	writeFilterTable(t, dir, "I_G0_1", g0)

	p, err := NewFilterProvider(dir)
	require.NoError(t, err)
	bank, err := p.Get(Interpolating, order)
	require.NoError(t, err)

	bh1 := bank.SubFilter(2, Reconstruction)
	bg1 := bank.SubFilter(3, Reconstruction)
	for i := 0; i < k1; i++ {
		for j := 0; j < k1; j++ {
			assert.Equal(h0.At(k1-i-1, k1-j-1), bh1.At(i, j))
			assert.Equal(pow1(i+k1)*g0.At(i, k1-j-1), bg1.At(i, j))
		}
	}
}

func TestFilterProviderErrors(t *testing.T) {
	assert := assert.New(t)

	_, err := NewFilterProvider("")
	assert.Error(err)

	p, err := NewFilterProvider(t.TempDir())
	require.NoError(t, err)
	_, err = p.Get(Legendre, 0)
	assert.Error(err)
	_, err = p.Get(Legendre, maxOrder+1)
	assert.Error(err)
	_, err = p.Get(Legendre, 3) // no tables on disk
	assert.Error(err)
}

package serialtree

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/allegro/bigcache/v3"
)

// FilterType selects the multiwavelet family.
type FilterType uint8

const (
	Legendre FilterType = iota
	Interpolating
)

func (t FilterType) tag() byte {
	if t == Interpolating {
		return 'I'
	}
	return 'L'
}

// Operation selects the transform direction.
type Operation uint8

const (
	Compression Operation = iota
	Reconstruction
)

// Matrix is a dense row-major matrix.
type Matrix struct {
	Rows, Cols int
	Data       []float64
}

func NewMatrix(rows, cols int) *Matrix {
	return &Matrix{Rows: rows, Cols: cols, Data: make([]float64, rows*cols)}
}

func (m *Matrix) At(i, j int) float64 { return m.Data[i*m.Cols+j] }

func (m *Matrix) Set(i, j int, v float64) { m.Data[i*m.Cols+j] = v }

// T returns a transposed copy.
func (m *Matrix) T() *Matrix {
	t := NewMatrix(m.Cols, m.Rows)
	for i := 0; i < m.Rows; i++ {
		for j := 0; j < m.Cols; j++ {
			t.Set(j, i, m.At(i, j))
		}
	}
	return t
}

func (m *Matrix) sub(row, col, rows, cols int) *Matrix {
	s := NewMatrix(rows, cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			s.Set(i, j, m.At(row+i, col+j))
		}
	}
	return s
}

// FilterBank holds the four (order+1)x(order+1) quadrant sub-filters of
// one multiwavelet filter matrix, plus their transposes for the inverse
// direction. Consumed read-only by the transform kernels.
type FilterBank struct {
	ftype FilterType
	order int

	h0, h1, g0, g1     *Matrix
	h0t, h1t, g0t, g1t *Matrix
}

// Order returns the polynomial order of the bank.
func (f *FilterBank) Order() int { return f.order }

// SubFilter returns the quadrant sub-filter for one 1-D pass. The index
// encodes the parent/child bit pattern along the pass direction.
func (f *FilterBank) SubFilter(i int, oper Operation) *Matrix {
	switch oper {
	case Compression:
		switch i {
		case 0:
			return f.h0t
		case 1:
			return f.h1t
		case 2:
			return f.g0t
		case 3:
			return f.g1t
		}
	case Reconstruction:
		switch i {
		case 0:
			return f.h0
		case 1:
			return f.g0
		case 2:
			return f.h1
		case 3:
			return f.g1
		}
	}
	panic("serialtree: filter index out of bounds")
}

// NewFilterBankFromMatrix builds a bank from a full 2K x 2K filter
// matrix laid out [G0 G1; H0 H1]. The transforms invert each other only
// when this matrix is orthogonal.
func NewFilterBankFromMatrix(t FilterType, data *Matrix) (*FilterBank, error) {
	if data.Rows != data.Cols || data.Rows%2 != 0 {
		return nil, errors.New("serialtree/filter: filter matrix must be square 2K x 2K")
	}
	k1 := data.Rows / 2
	order := k1 - 1
	if order < 1 || order > maxOrder {
		return nil, fmt.Errorf("serialtree/filter: invalid filter order %d", order)
	}
	f := &FilterBank{
		ftype: t,
		order: order,
		g0:    data.sub(0, 0, k1, k1),
		g1:    data.sub(0, k1, k1, k1),
		h0:    data.sub(k1, 0, k1, k1),
		h1:    data.sub(k1, k1, k1, k1),
	}
	f.h0t, f.h1t = f.h0.T(), f.h1.T()
	f.g0t, f.g1t = f.g0.T(), f.g1.T()
	return f, nil
}

// FilterProvider loads filter banks from tabulated binary filter files.
// The directory is an explicit configuration value; loaded tables are
// kept in a byte cache so a provider can be shared across many trees.
type FilterProvider struct {
	dir   string
	cache *bigcache.BigCache
}

// NewFilterProvider returns a provider reading from dir.
func NewFilterProvider(dir string) (*FilterProvider, error) {
	if dir == "" {
		return nil, errors.New("serialtree/filter: no filter directory specified")
	}
	cache, err := bigcache.New(context.Background(), bigcache.DefaultConfig(time.Hour))
	if err != nil {
		return nil, err
	}
	return &FilterProvider{dir: dir, cache: cache}, nil
}

// Get returns the filter bank for one family and order, reading the H0
// and G0 tables from disk on first use and completing H1/G1 from the
// family symmetry.
func (p *FilterProvider) Get(t FilterType, order int) (*FilterBank, error) {
	if order < 1 || order > maxOrder {
		return nil, fmt.Errorf("serialtree/filter: invalid filter order %d", order)
	}
	key := fmt.Sprintf("%c_%d", t.tag(), order)
	if raw, err := p.cache.Get(key); err == nil {
		k2 := 2 * (order + 1)
		m := &Matrix{Rows: k2, Cols: k2, Data: make([]float64, k2*k2)}
		copy(m.Data, bytesToFloats(raw))
		return NewFilterBankFromMatrix(t, m)
	}
	m, err := p.readFilterTables(t, order)
	if err != nil {
		return nil, err
	}
	_ = p.cache.Set(key, floatsToBytes(m.Data))
	return NewFilterBankFromMatrix(t, m)
}

// readFilterTables reads the K x K H0 and G0 tables (row-major float64,
// little endian) from <dir>/<tag>_H0_<order> and <tag>_G0_<order>, and
// fills the full 2K x 2K matrix [G0 G1; H0 H1] by symmetry.
func (p *FilterProvider) readFilterTables(t FilterType, order int) (*Matrix, error) {
	k1 := order + 1
	hPath := filepath.Join(p.dir, fmt.Sprintf("%c_H0_%d", t.tag(), order))
	gPath := filepath.Join(p.dir, fmt.Sprintf("%c_G0_%d", t.tag(), order))

	h0, err := readTable(hPath, k1)
	if err != nil {
		return nil, err
	}
	g0, err := readTable(gPath, k1)
	if err != nil {
		return nil, err
	}

	m := NewMatrix(2*k1, 2*k1)
	for i := 0; i < k1; i++ {
		for j := 0; j < k1; j++ {
			m.Set(i, j, g0.At(i, j))
			m.Set(k1+i, j, h0.At(i, j))
			switch t {
			case Interpolating:
				m.Set(i, k1+j, pow1(i+k1)*g0.At(i, k1-j-1))
				m.Set(k1+i, k1+j, h0.At(k1-i-1, k1-j-1))
			case Legendre:
				m.Set(i, k1+j, pow1(i+j+k1)*g0.At(i, j))
				m.Set(k1+i, k1+j, pow1(i+j)*h0.At(i, j))
			}
		}
	}
	return m, nil
}

func readTable(path string, k1 int) (*Matrix, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("serialtree/filter: could not open filter: %w", err)
	}
	want := k1 * k1 * 8
	if len(raw) < want {
		return nil, fmt.Errorf("serialtree/filter: short filter table %s: %d < %d bytes", path, len(raw), want)
	}
	m := NewMatrix(k1, k1)
	copy(m.Data, bytesToFloats(raw[:want]))
	return m, nil
}

func pow1(n int) float64 {
	return math.Pow(-1, float64(n))
}

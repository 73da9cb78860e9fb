package serialtree

import "errors"

// Options is the configuration of a SerialTree. Capacities are fixed at
// construction; there is no resize path, so size them conservatively.
type Options struct {
	// Dim is the grid dimensionality. The storage layer supports 1..3;
	// the transform kernels require 3.
	Dim int

	// Order is the polynomial order of the multiwavelet basis.
	Order int

	// Roots is the root box: the fixed set of top-level cells covering
	// the domain. Allocated at construction, never freed.
	Roots []NodeIndex

	// Hard capacity ceilings for the node arena and the two coefficient
	// arenas (persistent and generated). Exceeding any of them aborts.
	MaxNodes         int
	MaxNodesCoeff    int
	MaxGenNodesCoeff int
}

// DefaultOptions
var DefaultOptions = Options{
	Dim:              3,
	Order:            5,
	Roots:            []NodeIndex{{}},
	MaxNodes:         1 << 16,
	MaxNodesCoeff:    1 << 16,
	MaxGenNodesCoeff: 1 << 16,
}

func checkOptions(o Options) error {
	if o.Dim < 1 || o.Dim > 3 {
		return errors.New("serialtree/options: dim must be 1..3")
	}
	if o.Order < 1 || o.Order > maxOrder {
		return errors.New("serialtree/options: invalid filter order")
	}
	if len(o.Roots) == 0 {
		return errors.New("serialtree/options: empty root box")
	}
	if o.MaxNodes < len(o.Roots) {
		return errors.New("serialtree/options: max nodes below root box size")
	}
	if o.MaxNodesCoeff < len(o.Roots) || o.MaxGenNodesCoeff < 1 {
		return errors.New("serialtree/options: invalid coeff capacity")
	}
	return nil
}

package serialtree

import "github.com/bytedance/sonic"

// TreeStat is a point-in-time summary of arena occupancy.
type TreeStat struct {
	Nodes         uint64  `json:"nodes"`
	AllocNodes    uint64  `json:"alloc_nodes"`
	AllocCoeff    uint64  `json:"alloc_coeff"`
	AllocGenCoeff uint64  `json:"alloc_gen_coeff"`
	EndNodes      uint64  `json:"end_nodes"`
	SquareNorm    float64 `json:"square_norm"`
}

// Stat
func (t *SerialTree) Stat() TreeStat {
	return TreeStat{
		Nodes:         uint64(t.nNodes),
		AllocNodes:    uint64(t.nodes.inUse()),
		AllocCoeff:    uint64(t.coeffs.inUse()),
		AllocGenCoeff: uint64(t.genCoeffs.inUse()),
		EndNodes:      uint64(len(t.endNodes)),
		SquareNorm:    t.squareNorm,
	}
}

// MarshalJSON
func (t *SerialTree) MarshalJSON() ([]byte, error) {
	return sonic.Marshal(t.Stat())
}

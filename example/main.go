package main

import (
	"fmt"

	"github.com/mwgrid/serialtree"
)

// hadamard4 is a 4x4 orthogonal filter matrix, good enough to exercise
// the order-1 transforms without tabulated filter files.
func hadamard4() *serialtree.Matrix {
	m := serialtree.NewMatrix(4, 4)
	signs := [4][4]float64{
		{1, 1, 1, 1},
		{1, -1, 1, -1},
		{1, 1, -1, -1},
		{1, -1, -1, 1},
	}
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			m.Set(i, j, signs[i][j]/2)
		}
	}
	return m
}

func main() {
	opts := serialtree.DefaultOptions
	opts.Order = 1
	tree, err := serialtree.New(opts)
	if err != nil {
		panic(err)
	}

	tree.Split(0)
	for i := 0; i < 8; i++ {
		buf := tree.Coefs(tree.ChildOf(0, i))
		for j := range buf {
			buf[j] = float64(i+1) / float64(j+1)
		}
	}

	bank, err := serialtree.NewFilterBankFromMatrix(serialtree.Legendre, hadamard4())
	if err != nil {
		panic(err)
	}
	kernel := serialtree.NewKernel(bank, 3)
	kernel.TransformUp(tree)

	blob, err := tree.SnapshotCompressed()
	if err != nil {
		panic(err)
	}
	copied, err := serialtree.AttachCompressed(blob)
	if err != nil {
		panic(err)
	}

	cb := serialtree.NewCombiner(kernel)
	cb.Add(tree, -1, copied)
	copied.ClearGenerated()

	fmt.Printf("snapshot: %d bytes\n", len(blob))
	stat, _ := tree.MarshalJSON()
	fmt.Printf("tree - copy: %s\n", stat)
}

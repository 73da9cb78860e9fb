package main

import (
	"flag"
	"fmt"
	"math"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/cockroachdb/swiss"
	"github.com/sourcegraph/conc/pool"
	"github.com/tidwall/hashmap"

	"github.com/mwgrid/serialtree"
)

var (
	nTrees = flag.Int("trees", 8, "number of trees to build")
	order  = flag.Int("order", 5, "polynomial order of the basis")
	splits = flag.Int("splits", 200, "random leaf splits per tree")
)

func gcPause() time.Duration {
	runtime.GC()
	var stats debug.GCStats
	debug.ReadGCStats(&stats)
	return stats.PauseTotal
}

// buildTree grows one tree by repeated random leaf splits, then fills
// every leaf with fake coefficient data.
func buildTree(seed int64) *serialtree.SerialTree {
	faker := gofakeit.New(seed)
	opts := serialtree.DefaultOptions
	opts.Order = *order
	t, err := serialtree.New(opts)
	if err != nil {
		panic(err)
	}

	for i := 0; i < *splits; i++ {
		rank := t.Root(0)
		for t.NumChildren(rank) > 0 {
			rank = t.ChildOf(rank, faker.Number(0, 7))
		}
		if t.IndexOf(rank).Scale >= 6 {
			continue
		}
		t.Split(rank)
	}

	for _, rank := range walk(t) {
		buf := t.Coefs(rank)
		for i := range buf {
			buf[i] = faker.Float64Range(-1, 1)
		}
	}
	return t
}

// walk returns every reachable rank, roots first.
func walk(t *serialtree.SerialTree) []int32 {
	out := make([]int32, 0, t.NumNodes())
	for i := 0; i < t.NumRoots(); i++ {
		out = append(out, t.Root(i))
	}
	for i := 0; i < len(out); i++ {
		for c := 0; c < t.NumChildren(out[i]); c++ {
			out = append(out, t.ChildOf(out[i], c))
		}
	}
	return out
}

func main() {
	flag.Parse()
	fmt.Printf("trees=%d order=%d splits=%d cpus=%d\n", *nTrees, *order, *splits, runtime.NumCPU())

	start := time.Now()
	trees := make([]*serialtree.SerialTree, *nTrees)
	p := pool.New().WithMaxGoroutines(runtime.NumCPU())
	for i := range trees {
		i := i
		p.Go(func() {
			trees[i] = buildTree(int64(i + 1))
		})
	}
	p.Wait()
	nodes := 0
	for _, t := range trees {
		nodes += t.NumNodes()
	}
	fmt.Printf("build: %d nodes in %v\n", nodes, time.Since(start))

	// combine the trees pairwise down to trees[0]
	bank := randomBank(*order)
	kernel := serialtree.NewKernel(bank, 3)
	cb := serialtree.NewCombiner(kernel)
	start = time.Now()
	for i := 1; i < len(trees); i++ {
		cb.Add(trees[0], 1.0/float64(i), trees[i])
		trees[i].ClearGenerated()
	}
	trees[0].ClearGenerated()
	fmt.Printf("combine: %d trees in %v\n", len(trees), time.Since(start))

	// snapshot sizes, raw and s2
	start = time.Now()
	raw, err := trees[0].Snapshot()
	if err != nil {
		panic(err)
	}
	packed, _ := trees[0].SnapshotCompressed()
	fmt.Printf("snapshot: %d KB raw / %d KB s2 in %v\n", len(raw)/1024, len(packed)/1024, time.Since(start))

	stat, _ := trees[0].MarshalJSON()
	fmt.Printf("stat: %s\n", stat)

	benchLookup(trees[0])
	fmt.Printf("gc pause total: %v\n", gcPause())
}

// benchLookup compares index lookup table candidates on the real key
// distribution of one tree.
func benchLookup(t *serialtree.SerialTree) {
	keys := make([]serialtree.NodeIndex, 0, t.NumNodes())
	for _, rank := range walk(t) {
		keys = append(keys, t.IndexOf(rank))
	}

	start := time.Now()
	std := make(map[serialtree.NodeIndex]int32, len(keys))
	for i, k := range keys {
		std[k] = int32(i)
	}
	for _, k := range keys {
		_ = std[k]
	}
	fmt.Printf("lookup/stdmap: %d keys in %v\n", len(keys), time.Since(start))

	start = time.Now()
	sw := swiss.New[serialtree.NodeIndex, int32](len(keys))
	for i, k := range keys {
		sw.Put(k, int32(i))
	}
	for _, k := range keys {
		sw.Get(k)
	}
	fmt.Printf("lookup/swiss: %d keys in %v\n", len(keys), time.Since(start))

	start = time.Now()
	var hm hashmap.Map[serialtree.NodeIndex, int32]
	for i, k := range keys {
		hm.Set(k, int32(i))
	}
	for _, k := range keys {
		hm.Get(k)
	}
	fmt.Printf("lookup/hashmap: %d keys in %v\n", len(keys), time.Since(start))
}

// randomBank builds an orthogonal filter matrix by Gram-Schmidt over
// random rows. Not a physical basis, but the right shape and cost.
func randomBank(order int) *serialtree.FilterBank {
	faker := gofakeit.New(7)
	n := 2 * (order + 1)
	m := serialtree.NewMatrix(n, n)
	for i := range m.Data {
		m.Data[i] = faker.Float64Range(-1, 1)
	}
	for i := 0; i < n; i++ {
		for j := 0; j < i; j++ {
			dot := 0.0
			for p := 0; p < n; p++ {
				dot += m.At(i, p) * m.At(j, p)
			}
			for p := 0; p < n; p++ {
				m.Set(i, p, m.At(i, p)-dot*m.At(j, p))
			}
		}
		nrm := 0.0
		for p := 0; p < n; p++ {
			nrm += m.At(i, p) * m.At(i, p)
		}
		for p := 0; p < n; p++ {
			m.Set(i, p, m.At(i, p)/math.Sqrt(nrm))
		}
	}
	bank, err := serialtree.NewFilterBankFromMatrix(serialtree.Legendre, m)
	if err != nil {
		panic(err)
	}
	return bank
}

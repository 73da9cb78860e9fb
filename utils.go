package serialtree

import "github.com/ajroetker/go-highway/hwy"

// axpy computes dst[i] += c*src[i].
func axpy(dst, src []float64, c float64) {
	lanes := hwy.Zero[float64]().NumLanes()
	vc := hwy.Set(c)
	i := 0
	for ; i+lanes <= len(dst); i += lanes {
		acc := hwy.MulAdd(vc, hwy.Load(src[i:]), hwy.Load(dst[i:]))
		hwy.Store(acc, dst[i:])
	}
	for ; i < len(dst); i++ {
		dst[i] += c * src[i]
	}
}

// scaleCopy computes dst[i] = c*src[i].
func scaleCopy(dst, src []float64, c float64) {
	lanes := hwy.Zero[float64]().NumLanes()
	vc := hwy.Set(c)
	i := 0
	for ; i+lanes <= len(dst); i += lanes {
		hwy.Store(hwy.Mul(vc, hwy.Load(src[i:])), dst[i:])
	}
	for ; i < len(dst); i++ {
		dst[i] = c * src[i]
	}
}

// squaredNorm returns the sum of squares of v.
func squaredNorm(v []float64) float64 {
	lanes := hwy.Zero[float64]().NumLanes()
	acc := hwy.Zero[float64]()
	i := 0
	for ; i+lanes <= len(v); i += lanes {
		x := hwy.Load(v[i:])
		acc = hwy.MulAdd(x, x, acc)
	}
	sum := hwy.ReduceSum(acc)
	for ; i < len(v); i++ {
		sum += v[i] * v[i]
	}
	return sum
}

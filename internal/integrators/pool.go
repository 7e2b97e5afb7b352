package integrators

import "sync"

// scratchPool recycles fixed-size work vectors so that step functions stay
// safe for concurrent evaluation without allocating per step.
type scratchPool struct {
	pool sync.Pool
	size int
}

func newScratchPool(size int) *scratchPool {
	return &scratchPool{
		size: size,
		pool: sync.Pool{
			New: func() any {
				s := make([]float64, size)
				return &s
			},
		},
	}
}

func (p *scratchPool) Get() *[]float64 {
	return p.pool.Get().(*[]float64)
}

func (p *scratchPool) Put(s *[]float64) {
	if len(*s) == p.size {
		clear(*s)
		p.pool.Put(s)
	}
}

// carve splits a work vector into consecutive pieces of the given lengths.
func carve(w []float64, sizes ...int) [][]float64 {
	out := make([][]float64, len(sizes))
	for i, n := range sizes {
		out[i] = w[:n:n]
		w = w[n:]
	}
	return out
}

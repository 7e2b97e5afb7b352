package integrator

import (
	"math"
	"sync"
)

// Memory is the mutable workspace of one evaluation: the current time and
// step index, the forward and backward state, the discrete unknowns of the
// step functions and, for schemes that replay it, the forward tape.
//
// A Memory must not be shared between concurrent evaluations.
type Memory struct {
	t float64
	k int

	x, z, p, q     []float64
	rx, rz, rp, rq []float64

	// Snapshots taken before each step.
	xPrev, qPrev   []float64
	rxPrev, rqPrev []float64

	// Discrete unknowns of the forward and backward step functions.
	disc, discPrev   []float64
	bdisc, bdiscPrev []float64

	xTape    [][]float64
	discTape [][]float64

	tbuf     []float64
	stepArg  [][]float64
	stepRes  [][]float64
	bstepArg [][]float64
	bstepRes [][]float64

	stats Stats
	arena []float64

	dims   Dims
	layout Layout
}

func newMemory(d Dims, l Layout) *Memory {
	size := 2*d.NX + d.NZ + d.NP + 2*d.NQ +
		2*d.NRX + d.NRZ + d.NRP + 2*d.NRQ +
		2*l.NZ + 2*l.NRZ + 1
	if l.Tape {
		size += (l.NK+1)*d.NX + l.NK*l.NZ
	}
	m := &Memory{arena: make([]float64, size), dims: d, layout: l}
	a := m.arena
	carve := func(n int) []float64 {
		v := a[:n:n]
		a = a[n:]
		return v
	}

	m.x, m.z, m.p, m.q = carve(d.NX), carve(d.NZ), carve(d.NP), carve(d.NQ)
	m.rx, m.rz, m.rp, m.rq = carve(d.NRX), carve(d.NRZ), carve(d.NRP), carve(d.NRQ)
	m.xPrev, m.qPrev = carve(d.NX), carve(d.NQ)
	m.rxPrev, m.rqPrev = carve(d.NRX), carve(d.NRQ)
	m.disc, m.discPrev = carve(l.NZ), carve(l.NZ)
	m.bdisc, m.bdiscPrev = carve(l.NRZ), carve(l.NRZ)
	m.tbuf = carve(1)
	if l.Tape {
		m.xTape = make([][]float64, l.NK+1)
		for k := range m.xTape {
			m.xTape[k] = carve(d.NX)
		}
		m.discTape = make([][]float64, l.NK)
		for k := range m.discTape {
			m.discTape[k] = carve(l.NZ)
		}
	}

	m.stepArg = make([][]float64, NumStepIn)
	m.stepRes = make([][]float64, NumStepOut)
	m.bstepArg = make([][]float64, NumBStepIn)
	m.bstepRes = make([][]float64, NumBStepOut)
	return m
}

// Time returns the current integration time.
func (m *Memory) Time() float64 { return m.t }

// Step returns the current step index.
func (m *Memory) Step() int { return m.k }

// Stats returns the counters of the last evaluation.
func (m *Memory) Stats() Stats { return m.stats }

// Unknowns returns the current forward discrete unknowns. Schemes seeding an
// initial guess write into it.
func (m *Memory) Unknowns() []float64 { return m.disc }

// TapeLen returns the number of recorded states, or zero without a tape.
func (m *Memory) TapeLen() int { return len(m.xTape) }

// Tape returns the state recorded at step k and, for k below the number of
// steps, the discrete unknowns that produced the next state. The slices
// alias the memory.
func (m *Memory) Tape(k int) (x, unknowns []float64) {
	x = m.xTape[k]
	if k < len(m.discTape) {
		unknowns = m.discTape[k]
	}
	return x, unknowns
}

func fillNaN(v []float64) {
	for i := range v {
		v[i] = math.NaN()
	}
}

// copyOrZero copies src into dst, zeroing dst when src is nil.
func copyOrZero(dst, src []float64) {
	if src == nil {
		clear(dst)
		return
	}
	copy(dst, src)
}

func accumulate(dst, src []float64) {
	for i := range dst {
		dst[i] += src[i]
	}
}

// MemoryPool recycles evaluation memory of one integrator.
type MemoryPool struct {
	pool sync.Pool
}

func newMemoryPool(d Dims, l Layout) *MemoryPool {
	return &MemoryPool{
		pool: sync.Pool{
			New: func() any {
				return newMemory(d, l)
			},
		},
	}
}

func (p *MemoryPool) Get() *Memory {
	return p.pool.Get().(*Memory)
}

func (p *MemoryPool) Put(m *Memory) {
	m.stats = Stats{}
	p.pool.Put(m)
}

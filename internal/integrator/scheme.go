package integrator

import "github.com/san-kum/dynsens/internal/function"

// Layout sizes the per-evaluation memory a scheme needs.
type Layout struct {
	// NZ and NRZ are the lengths of the forward and backward discrete
	// unknowns.
	NZ, NRZ int
	// NK is the number of steps.
	NK int
	// Tape requests storage for the forward trajectory.
	Tape bool
}

// Scheme is the stepping engine behind an Integrator.
//
// Reset starts a forward sweep at t. Advance integrates up to t and writes
// the state there into any non-nil output. ResetB and Retreat do the same
// for the backward problem, which runs from the end of the grid towards
// its start. Retreat may only follow a forward sweep over the whole grid.
type Scheme interface {
	Layout() Layout
	Reset(m *Memory, t float64, x, z, p []float64) error
	Advance(m *Memory, t float64, x, z, q []float64) error
	ResetB(m *Memory, t float64, rx, rz, rp []float64) error
	Retreat(m *Memory, t float64, rx, rz, rq []float64) error
}

// Discretization supplies the discrete step functions of a fixed-step
// scheme.
//
// F maps (t, x, Z, p) to (xf, Zf, qf) over one step of length h; Z holds the
// discrete unknowns of the step and its tail is the algebraic state. G maps
// (rx, RZ, rp, x, Z, p, t) to (rxf, RZf, rqf) over one backward step, where
// x and Z are the taped forward values of that step and t its start. G is
// nil when the problem has no backward part.
type Discretization interface {
	Name() string
	Setup(in *Integrator, h float64) (F, G function.Function, err error)
}

// Guesser is implemented by discretizations that can seed the forward
// unknowns from the initial state after a reset.
type Guesser interface {
	Guess(unknowns, x0, z0 []float64)
}

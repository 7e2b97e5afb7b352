package integrators

import (
	"fmt"

	"github.com/san-kum/dynsens/internal/dae"
	"github.com/san-kum/dynsens/internal/integrator"
)

// ErrAlgebraic indicates an explicit scheme given algebraic states.
var ErrAlgebraic = fmt.Errorf("%w: explicit scheme cannot integrate algebraic states", integrator.ErrConfig)

// rhs evaluates the oracle of an integrator at one point.
type rhs struct {
	o  dae.Oracle
	nt int
}

func newRHS(in *integrator.Integrator) rhs {
	o := in.Oracle()
	return rhs{o: o, nt: o.NnzIn(int(dae.T))}
}

func (r rhs) time(t float64) []float64 {
	return []float64{t}[:r.nt]
}

// forward fills ode, alg and quad (nil entries are skipped) at (t, x, z, p).
func (r rhs) forward(t float64, x, z, p, ode, alg, quad []float64) error {
	arg := make([][]float64, dae.NumIn)
	arg[dae.T], arg[dae.X], arg[dae.Z], arg[dae.P] = r.time(t), x, z, p
	res := make([][]float64, dae.NumOut)
	res[dae.ODE], res[dae.ALG], res[dae.QUAD] = ode, alg, quad
	return r.o.Eval(arg, res)
}

// backward fills rode, ralg and rquad at (t, x, z, p, rx, rz, rp).
func (r rhs) backward(t float64, x, z, p, rx, rz, rp, rode, ralg, rquad []float64) error {
	arg := make([][]float64, dae.NumIn)
	arg[dae.T], arg[dae.X], arg[dae.Z], arg[dae.P] = r.time(t), x, z, p
	arg[dae.RX], arg[dae.RZ], arg[dae.RP] = rx, rz, rp
	res := make([][]float64, dae.NumOut)
	res[dae.RODE], res[dae.RALG], res[dae.RQUAD] = rode, ralg, rquad
	return r.o.Eval(arg, res)
}

// stepSizes returns the slot lengths of a forward step function with nZ
// discrete unknowns.
func stepSizes(d integrator.Dims, nZ int) (in, out []int) {
	in = make([]int, integrator.NumStepIn)
	in[integrator.StepT], in[integrator.StepX], in[integrator.StepZ], in[integrator.StepP] = 1, d.NX, nZ, d.NP
	out = make([]int, integrator.NumStepOut)
	out[integrator.StepXF], out[integrator.StepZF], out[integrator.StepQF] = d.NX, nZ, d.NQ
	return in, out
}

// bstepSizes is stepSizes for the backward step function.
func bstepSizes(d integrator.Dims, nZ, nRZ int) (in, out []int) {
	in = make([]int, integrator.NumBStepIn)
	in[integrator.BStepRX], in[integrator.BStepRZ], in[integrator.BStepRP] = d.NRX, nRZ, d.NRP
	in[integrator.BStepX], in[integrator.BStepZ], in[integrator.BStepP], in[integrator.BStepT] = d.NX, nZ, d.NP, 1
	out = make([]int, integrator.NumBStepOut)
	out[integrator.BStepRXF], out[integrator.BStepRZF], out[integrator.BStepRQF] = d.NRX, nRZ, d.NRQ
	return in, out
}

func requireExplicit(name string, d integrator.Dims) error {
	if d.NZ > 0 || d.NRZ > 0 {
		return fmt.Errorf("%w (%s, nz=%d nrz=%d)", ErrAlgebraic, name, d.NZ, d.NRZ)
	}
	return nil
}

func stepTime(a []float64) float64 {
	if len(a) == 0 {
		return 0
	}
	return a[0]
}

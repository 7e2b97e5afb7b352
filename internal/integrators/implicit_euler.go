package integrators

import (
	"github.com/san-kum/dynsens/internal/function"
	"github.com/san-kum/dynsens/internal/integrator"
)

// ImplicitEuler is the backward Euler method for index-1 DAEs. The
// forward unknowns of a step are the state and algebraic state at its end;
// the residual is
//
//	[xn - x - h*ode(t+h, xn, zn, p); alg(t+h, xn, zn, p)]
//
// and the backward residual mirrors it at the taped end-of-step values,
// which makes the backward step the exact adjoint of the forward step.
type ImplicitEuler struct{}

func NewImplicitEuler() *ImplicitEuler {
	return &ImplicitEuler{}
}

func (e *ImplicitEuler) Name() string { return "implicit_euler" }

// Guess starts the first Newton solve from the initial state.
func (e *ImplicitEuler) Guess(unknowns, x0, z0 []float64) {
	copy(unknowns, x0)
	copy(unknowns[len(x0):], z0)
}

func (e *ImplicitEuler) Setup(in *integrator.Integrator, h float64) (F, G function.Function, err error) {
	d := in.Dims()
	f := newRHS(in)
	nx, nz, nq := d.NX, d.NZ, d.NQ
	nZ := nx + nz

	fwork := newScratchPool(nx + nq)
	nin, nout := stepSizes(d, nZ)
	F = function.New(in.Name()+"_implicit_euler_F", nin, nout, func(arg, res [][]float64) error {
		w := fwork.Get()
		defer fwork.Put(w)
		v := carve(*w, nx, nq)
		ode, quad := v[0], v[1]

		t := stepTime(arg[integrator.StepT])
		x := function.Zeros(arg[integrator.StepX], nx)
		Z := function.Zeros(arg[integrator.StepZ], nZ)
		xn, zn := Z[:nx], Z[nx:]

		r := res[integrator.StepZF]
		var alg []float64
		if r != nil {
			alg = r[nx:]
		}
		if err := f.forward(t+h, xn, zn, arg[integrator.StepP], ode, alg, quad); err != nil {
			return err
		}
		if r != nil {
			for i := 0; i < nx; i++ {
				r[i] = xn[i] - x[i] - h*ode[i]
			}
		}
		if xf := res[integrator.StepXF]; xf != nil {
			copy(xf, xn)
		}
		if qf := res[integrator.StepQF]; qf != nil {
			for i := range qf {
				qf[i] = h * quad[i]
			}
		}
		return nil
	})

	if !d.HasBackward() {
		return F, nil, nil
	}
	nrx, nrz, nrq := d.NRX, d.NRZ, d.NRQ
	nRZ := nrx + nrz
	bwork := newScratchPool(nrx + nrq)
	bin, bout := bstepSizes(d, nZ, nRZ)
	G = function.New(in.Name()+"_implicit_euler_G", bin, bout, func(arg, res [][]float64) error {
		w := bwork.Get()
		defer bwork.Put(w)
		v := carve(*w, nrx, nrq)
		rode, rquad := v[0], v[1]

		t := stepTime(arg[integrator.BStepT])
		rx := function.Zeros(arg[integrator.BStepRX], nrx)
		RZ := function.Zeros(arg[integrator.BStepRZ], nRZ)
		rxn, rzn := RZ[:nrx], RZ[nrx:]
		Z := function.Zeros(arg[integrator.BStepZ], nZ)
		xn, zn := Z[:nx], Z[nx:]

		r := res[integrator.BStepRZF]
		var ralg []float64
		if r != nil {
			ralg = r[nrx:]
		}
		err := f.backward(t+h, xn, zn, arg[integrator.BStepP],
			rxn, rzn, arg[integrator.BStepRP], rode, ralg, rquad)
		if err != nil {
			return err
		}
		if r != nil {
			for i := 0; i < nrx; i++ {
				r[i] = rxn[i] - rx[i] - h*rode[i]
			}
		}
		if rxf := res[integrator.BStepRXF]; rxf != nil {
			copy(rxf, rxn)
		}
		if rqf := res[integrator.BStepRQF]; rqf != nil {
			for i := range rqf {
				rqf[i] = h * rquad[i]
			}
		}
		return nil
	})
	return F, G, nil
}

package integrators

import (
	"github.com/san-kum/dynsens/internal/function"
	"github.com/san-kum/dynsens/internal/integrator"
)

// Euler is the explicit Euler method. The backward step evaluates the
// backward right-hand side at the taped start of each step, which makes it
// the exact adjoint of the forward step.
type Euler struct{}

func NewEuler() *Euler {
	return &Euler{}
}

func (e *Euler) Name() string { return "euler" }

func (e *Euler) Setup(in *integrator.Integrator, h float64) (F, G function.Function, err error) {
	d := in.Dims()
	if err := requireExplicit(e.Name(), d); err != nil {
		return nil, nil, err
	}
	r := newRHS(in)

	fwork := newScratchPool(d.NX + d.NQ)
	nin, nout := stepSizes(d, 0)
	F = function.New(in.Name()+"_euler_F", nin, nout, func(arg, res [][]float64) error {
		w := fwork.Get()
		defer fwork.Put(w)
		v := carve(*w, d.NX, d.NQ)
		ode, quad := v[0], v[1]

		t := stepTime(arg[integrator.StepT])
		x := function.Zeros(arg[integrator.StepX], d.NX)
		if err := r.forward(t, x, nil, arg[integrator.StepP], ode, nil, quad); err != nil {
			return err
		}
		if xf := res[integrator.StepXF]; xf != nil {
			for i := range xf {
				xf[i] = x[i] + h*ode[i]
			}
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
	bwork := newScratchPool(d.NRX + d.NRQ)
	bin, bout := bstepSizes(d, 0, 0)
	G = function.New(in.Name()+"_euler_G", bin, bout, func(arg, res [][]float64) error {
		w := bwork.Get()
		defer bwork.Put(w)
		v := carve(*w, d.NRX, d.NRQ)
		rode, rquad := v[0], v[1]

		t := stepTime(arg[integrator.BStepT])
		rx := function.Zeros(arg[integrator.BStepRX], d.NRX)
		err := r.backward(t, arg[integrator.BStepX], nil, arg[integrator.BStepP],
			rx, nil, arg[integrator.BStepRP], rode, nil, rquad)
		if err != nil {
			return err
		}
		if rxf := res[integrator.BStepRXF]; rxf != nil {
			for i := range rxf {
				rxf[i] = rx[i] + h*rode[i]
			}
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

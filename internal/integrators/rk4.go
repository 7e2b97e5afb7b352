package integrators

import (
	"github.com/san-kum/dynsens/internal/function"
	"github.com/san-kum/dynsens/internal/integrator"
)

// RK4 is the classical fourth-order Runge-Kutta method. The discrete
// unknowns of a step are its three interior stage states, so the tape holds
// everything the backward step needs: it runs the stages in reverse order
// at the taped stage states and is the exact adjoint of the forward step.
type RK4 struct{}

func NewRK4() *RK4 {
	return &RK4{}
}

func (r *RK4) Name() string { return "rk" }

func (r *RK4) Setup(in *integrator.Integrator, h float64) (F, G function.Function, err error) {
	d := in.Dims()
	if err := requireExplicit(r.Name(), d); err != nil {
		return nil, nil, err
	}
	f := newRHS(in)
	nx, nq := d.NX, d.NQ
	nZ := 3 * nx

	fwork := newScratchPool(4*nx + 4*nq + nZ)
	nin, nout := stepSizes(d, nZ)
	F = function.New(in.Name()+"_rk_F", nin, nout, func(arg, res [][]float64) error {
		w := fwork.Get()
		defer fwork.Put(w)
		v := carve(*w, nx, nx, nx, nx, nq, nq, nq, nq, nZ)
		k1, k2, k3, k4 := v[0], v[1], v[2], v[3]
		q1, q2, q3, q4 := v[4], v[5], v[6], v[7]
		stages := v[8]
		if zf := res[integrator.StepZF]; zf != nil {
			stages = zf
		}
		x2, x3, x4 := stages[:nx], stages[nx:2*nx], stages[2*nx:]

		t := stepTime(arg[integrator.StepT])
		x := function.Zeros(arg[integrator.StepX], nx)
		p := arg[integrator.StepP]

		if err := f.forward(t, x, nil, p, k1, nil, q1); err != nil {
			return err
		}
		for i := 0; i < nx; i++ {
			x2[i] = x[i] + h*0.5*k1[i]
		}
		if err := f.forward(t+h*0.5, x2, nil, p, k2, nil, q2); err != nil {
			return err
		}
		for i := 0; i < nx; i++ {
			x3[i] = x[i] + h*0.5*k2[i]
		}
		if err := f.forward(t+h*0.5, x3, nil, p, k3, nil, q3); err != nil {
			return err
		}
		for i := 0; i < nx; i++ {
			x4[i] = x[i] + h*k3[i]
		}
		if err := f.forward(t+h, x4, nil, p, k4, nil, q4); err != nil {
			return err
		}

		h6 := h / 6.0
		if xf := res[integrator.StepXF]; xf != nil {
			for i := range xf {
				xf[i] = x[i] + h6*(k1[i]+2*k2[i]+2*k3[i]+k4[i])
			}
		}
		if qf := res[integrator.StepQF]; qf != nil {
			for i := range qf {
				qf[i] = h6 * (q1[i] + 2*q2[i] + 2*q3[i] + q4[i])
			}
		}
		return nil
	})

	if !d.HasBackward() {
		return F, nil, nil
	}
	nrx, nrq := d.NRX, d.NRQ
	bwork := newScratchPool(4*nrx + 4*nrq + nrx)
	bin, bout := bstepSizes(d, nZ, 0)
	G = function.New(in.Name()+"_rk_G", bin, bout, func(arg, res [][]float64) error {
		w := bwork.Get()
		defer bwork.Put(w)
		v := carve(*w, nrx, nrx, nrx, nrx, nrq, nrq, nrq, nrq, nrx)
		l1, l2, l3, l4 := v[0], v[1], v[2], v[3]
		m1, m2, m3, m4 := v[4], v[5], v[6], v[7]
		lam := v[8]

		t := stepTime(arg[integrator.BStepT])
		rx := function.Zeros(arg[integrator.BStepRX], nrx)
		x := function.Zeros(arg[integrator.BStepX], nx)
		stages := function.Zeros(arg[integrator.BStepZ], nZ)
		x2, x3, x4 := stages[:nx], stages[nx:2*nx], stages[2*nx:]
		p, rp := arg[integrator.BStepP], arg[integrator.BStepRP]

		if err := f.backward(t+h, x4, nil, p, rx, nil, rp, l1, nil, m1); err != nil {
			return err
		}
		for i := range lam {
			lam[i] = rx[i] + h*0.5*l1[i]
		}
		if err := f.backward(t+h*0.5, x3, nil, p, lam, nil, rp, l2, nil, m2); err != nil {
			return err
		}
		for i := range lam {
			lam[i] = rx[i] + h*0.5*l2[i]
		}
		if err := f.backward(t+h*0.5, x2, nil, p, lam, nil, rp, l3, nil, m3); err != nil {
			return err
		}
		for i := range lam {
			lam[i] = rx[i] + h*l3[i]
		}
		if err := f.backward(t, x, nil, p, lam, nil, rp, l4, nil, m4); err != nil {
			return err
		}

		h6 := h / 6.0
		if rxf := res[integrator.BStepRXF]; rxf != nil {
			for i := range rxf {
				rxf[i] = rx[i] + h6*(l1[i]+2*l2[i]+2*l3[i]+l4[i])
			}
		}
		if rqf := res[integrator.BStepRQF]; rqf != nil {
			for i := range rqf {
				rqf[i] = h6 * (m1[i] + 2*m2[i] + 2*m3[i] + m4[i])
			}
		}
		return nil
	})
	return F, G, nil
}

// Package integrators registers the fixed-step solvers.
//
//   - "euler": explicit Euler
//   - "rk": classical fourth-order Runge-Kutta
//   - "implicit_euler": backward Euler with a rootfinder, for DAEs
//
// Importing the package for its side effects makes the solvers available
// to integrator.New.
package integrators

import "github.com/san-kum/dynsens/internal/integrator"

func init() {
	integrator.Register(integrator.Plugin{
		Name:    "euler",
		Doc:     "Explicit Euler with number_of_finite_elements equal steps. ODEs only.",
		Creator: explicit(func() integrator.Discretization { return NewEuler() }),
	})
	integrator.Register(integrator.Plugin{
		Name:    "rk",
		Doc:     "Classical fourth-order Runge-Kutta with number_of_finite_elements equal steps. ODEs only.",
		Creator: explicit(func() integrator.Discretization { return NewRK4() }),
	})
	integrator.Register(integrator.Plugin{
		Name: "implicit_euler",
		Doc: "Backward Euler with number_of_finite_elements equal steps, solved by the " +
			"rootfinder strategy named by the rootfinder option. Handles algebraic states.",
		Creator: implicit(func() integrator.Discretization { return NewImplicitEuler() }),
	})
}

func explicit(disc func() integrator.Discretization) integrator.Creator {
	return func(in *integrator.Integrator) (integrator.Scheme, error) {
		s, err := integrator.NewFixedStep(in, disc())
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

func implicit(disc func() integrator.Discretization) integrator.Creator {
	return func(in *integrator.Integrator) (integrator.Scheme, error) {
		s, err := integrator.NewImplicitFixedStep(in, disc())
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

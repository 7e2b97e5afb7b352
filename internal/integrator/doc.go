// Package integrator integrates differential-algebraic problems over a time
// grid and differentiates the result.
//
// An [Integrator] maps (x0, p, z0, rx0, rp, rz0) to (xf, qf, zf, rxf, rqf,
// rzf). The forward problem runs from the first grid point to the last and
// reports the state at every grid point; the optional backward problem runs
// from the last point back to the first and reports a single block.
//
//   - [Scheme]: stepping engine behind an integrator
//   - [FixedStep], [ImplicitFixedStep]: equal-step schemes with a tape
//   - [Discretization]: source of the discrete step functions
//   - [Plugin]: named solver in the registry
//   - [Derivative]: forward or adjoint sensitivity callable
//   - [Ensemble]: concurrent evaluation of independent inputs
//
// # Example
//
//	prob, _ := dae.FromMap(map[string]symbolic.Matrix{"x": x, "p": p, "ode": p})
//	opts, _ := integrator.ParseOptions(map[string]any{"grid": []float64{0, 1, 2}})
//	in, _ := integrator.New("ramp", "euler", prob, opts, nil)
//	res := in.NewOutputs()
//	err := in.Eval([][]float64{{1}, {2}, nil, nil, nil, nil}, res)
//
// # Sensitivities
//
// Forward and Reverse augment the symbolic problem with directional
// derivatives and integrate the larger problem with the same solver. The
// augmented integrators are cached per direction count.
//
// # Thread Safety
//
// Integrators and derivatives are safe for concurrent use. A [Memory] holds
// the state of one evaluation and must not be shared.
package integrator

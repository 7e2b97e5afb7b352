package integrator

import (
	"errors"
	"fmt"
)

// Integrator errors.
var (
	// ErrConfig indicates an invalid construction request. Every other
	// construction error wraps it.
	ErrConfig = errors.New("integrator: invalid configuration")

	// ErrUnknownSolver indicates a plugin name missing from the registry.
	ErrUnknownSolver = fmt.Errorf("%w: unknown solver", ErrConfig)

	// ErrDimensionMismatch indicates buffers that do not match the slot layout.
	ErrDimensionMismatch = errors.New("integrator: dimension mismatch")

	// ErrNotSymbolic indicates a derivative request on an opaque oracle.
	ErrNotSymbolic = fmt.Errorf("%w: oracle has no symbolic problem", ErrConfig)

	// ErrTrajectoryAdjoint indicates an adjoint request the backward sweep
	// cannot seed: several output blocks, or an existing backward problem.
	ErrTrajectoryAdjoint = fmt.Errorf("%w: adjoint needs a single output time and no backward problem", ErrConfig)
)

// EvalError wraps a failure raised while integrating, with the phase and
// the discrete position at which it happened.
type EvalError struct {
	Phase   string
	Step    int
	Time    float64
	Wrapped error
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("integrator %s at step %d (t=%.4f): %v", e.Phase, e.Step, e.Time, e.Wrapped)
}

func (e *EvalError) Unwrap() error {
	return e.Wrapped
}

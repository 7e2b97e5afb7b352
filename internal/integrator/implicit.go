package integrator

import (
	"fmt"

	"github.com/san-kum/dynsens/internal/rootfinder"
)

// ImplicitFixedStep is a FixedStep whose step functions are residuals. The
// forward residual is solved for Z by a rootfinder and, when the backward
// problem has discrete unknowns, the backward residual for RZ by a second
// one.
type ImplicitFixedStep struct {
	*FixedStep
	rf, rfB *rootfinder.Rootfinder
}

// NewImplicitFixedStep builds an implicit fixed-step scheme around disc,
// whose F and G return residuals in their Zf and RZf slots.
func NewImplicitFixedStep(in *Integrator, disc Discretization) (*ImplicitFixedStep, error) {
	fs, err := NewFixedStep(in, disc)
	if err != nil {
		return nil, err
	}
	strategy := in.opts.Rootfinder
	if strategy == "" {
		strategy = DefaultRootfinder
	}
	opts, err := rootfinder.DecodeOptions(rootfinder.Options{}, in.opts.RootfinderOptions)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}

	s := &ImplicitFixedStep{FixedStep: fs}
	opts.ImplicitInput, opts.ImplicitOutput = StepZ, StepZF
	s.rf, err = rootfinder.New(in.name+"_rf", strategy, fs.F, opts, in.logger)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	fs.stepF = s.rf

	if fs.G != nil && fs.nRZ > 0 {
		opts.ImplicitInput, opts.ImplicitOutput = BStepRZ, BStepRZF
		s.rfB, err = rootfinder.New(in.name+"_rfb", strategy, fs.G, opts, in.logger)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrConfig, err)
		}
		fs.stepG = s.rfB
	}
	return s, nil
}

// Rootfinder returns the forward solver.
func (s *ImplicitFixedStep) Rootfinder() *rootfinder.Rootfinder { return s.rf }

// BackwardRootfinder returns the backward solver, or nil when the backward
// step has no unknowns.
func (s *ImplicitFixedStep) BackwardRootfinder() *rootfinder.Rootfinder { return s.rfB }

func (s *ImplicitFixedStep) Reset(m *Memory, t float64, x, z, p []float64) error {
	if err := s.FixedStep.Reset(m, t, x, z, p); err != nil {
		return err
	}
	if g, ok := s.disc.(Guesser); ok {
		g.Guess(m.disc, m.x, m.z)
	}
	return nil
}

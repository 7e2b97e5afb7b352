package integrator

import (
	"errors"
	"fmt"
	"math"

	"github.com/san-kum/dynsens/internal/function"
	"github.com/san-kum/dynsens/internal/rootfinder"
)

// FixedStep integrates with nk equal steps over the grid span. The forward
// sweep tapes every state and every set of discrete unknowns; the backward
// sweep replays the tape in reverse. States between step boundaries are not
// interpolated: a grid point inside a step reports the state at the end of
// that step going forward and at its start going backward.
type FixedStep struct {
	in   *Integrator
	disc Discretization

	nk     int
	t0, tf float64
	h      float64

	F, G         function.Function
	nZ, nRZ      int
	stepF, stepG function.Function
}

// NewFixedStep builds an explicit fixed-step scheme around disc.
func NewFixedStep(in *Integrator, disc Discretization) (*FixedStep, error) {
	nk := in.opts.NumberOfFiniteElements
	if nk <= 0 {
		return nil, fmt.Errorf("%w: number_of_finite_elements must be positive, got %d", ErrConfig, nk)
	}
	s := &FixedStep{
		in:   in,
		disc: disc,
		nk:   nk,
		t0:   in.grid[0],
		tf:   in.grid[len(in.grid)-1],
	}
	s.h = (s.tf - s.t0) / float64(nk)

	F, G, err := disc.Setup(in, s.h)
	if err != nil {
		if !errors.Is(err, ErrConfig) {
			err = fmt.Errorf("%w: %s: %w", ErrConfig, disc.Name(), err)
		}
		return nil, err
	}
	if err := s.checkF(F); err != nil {
		return nil, err
	}
	s.F, s.stepF = F, F
	s.nZ = F.NnzIn(StepZ)

	if in.dims.HasBackward() {
		if G == nil {
			return nil, fmt.Errorf("%w: %s has no backward step", ErrConfig, disc.Name())
		}
		if err := s.checkG(G); err != nil {
			return nil, err
		}
		s.G, s.stepG = G, G
		s.nRZ = G.NnzIn(BStepRZ)
	}
	return s, nil
}

func (s *FixedStep) checkF(F function.Function) error {
	d := s.in.dims
	bad := F.NIn() != NumStepIn || F.NOut() != NumStepOut
	if !bad {
		nZ := F.NnzIn(StepZ)
		bad = F.NnzIn(StepX) != d.NX || F.NnzIn(StepP) != d.NP || F.NnzIn(StepT) != 1 ||
			F.NnzOut(StepXF) != d.NX || F.NnzOut(StepQF) != d.NQ ||
			F.NnzOut(StepZF) != nZ || nZ < d.NZ
	}
	if bad {
		return fmt.Errorf("%w: step function %s does not match %s", ErrConfig, F.Name(), d)
	}
	return nil
}

func (s *FixedStep) checkG(G function.Function) error {
	d := s.in.dims
	bad := G.NIn() != NumBStepIn || G.NOut() != NumBStepOut
	if !bad {
		nRZ := G.NnzIn(BStepRZ)
		bad = G.NnzIn(BStepRX) != d.NRX || G.NnzIn(BStepRP) != d.NRP ||
			G.NnzIn(BStepX) != d.NX || G.NnzIn(BStepZ) != s.F.NnzIn(StepZ) ||
			G.NnzIn(BStepP) != d.NP || G.NnzIn(BStepT) != 1 ||
			G.NnzOut(BStepRXF) != d.NRX || G.NnzOut(BStepRQF) != d.NRQ ||
			G.NnzOut(BStepRZF) != nRZ || nRZ < d.NRZ
	}
	if bad {
		return fmt.Errorf("%w: backward step function %s does not match %s", ErrConfig, G.Name(), d)
	}
	return nil
}

func (s *FixedStep) Layout() Layout {
	return Layout{NZ: s.nZ, NRZ: s.nRZ, NK: s.nk, Tape: s.in.dims.HasBackward()}
}

// NumSteps returns nk.
func (s *FixedStep) NumSteps() int { return s.nk }

// StepSize returns h.
func (s *FixedStep) StepSize() float64 { return s.h }

// Discretization returns the step function source.
func (s *FixedStep) Discretization() Discretization { return s.disc }

func (s *FixedStep) Reset(m *Memory, t float64, x, z, p []float64) error {
	m.t = t
	m.k = 0
	copyOrZero(m.x, x)
	copyOrZero(m.z, z)
	copyOrZero(m.p, p)
	clear(m.q)
	fillNaN(m.disc)
	if m.xTape != nil {
		copy(m.xTape[0], m.x)
	}
	return nil
}

// stepsBefore returns the number of steps needed to reach t going forward.
func (s *FixedStep) stepsBefore(t float64) int {
	if s.h == 0 {
		return s.nk
	}
	return min(int(math.Ceil((t-s.t0)/s.h)), s.nk)
}

// stepsAfter returns the step index at which a backward sweep reaches t.
func (s *FixedStep) stepsAfter(t float64) int {
	if s.h == 0 {
		return 0
	}
	return max(int(math.Floor((t-s.t0)/s.h)), 0)
}

func (s *FixedStep) Advance(m *Memory, t float64, x, z, q []float64) error {
	kOut := s.stepsBefore(t)
	for m.k < kOut {
		copy(m.xPrev, m.x)
		copy(m.discPrev, m.disc)
		copy(m.qPrev, m.q)

		m.tbuf[0] = m.t
		m.stepArg[StepT] = m.tbuf
		m.stepArg[StepX] = m.xPrev
		m.stepArg[StepZ] = m.discPrev
		m.stepArg[StepP] = m.p
		m.stepRes[StepXF] = m.x
		m.stepRes[StepZF] = m.disc
		m.stepRes[StepQF] = m.q
		n, err := evalStep(s.stepF, m.stepArg, m.stepRes)
		m.stats.RootfinderIterations += n
		if err != nil {
			return err
		}
		accumulate(m.q, m.qPrev)

		m.k++
		m.t = s.t0 + float64(m.k)*s.h
		m.stats.Steps++
		if m.xTape != nil {
			copy(m.xTape[m.k], m.x)
			copy(m.discTape[m.k-1], m.disc)
		}
	}
	if x != nil {
		copy(x, m.x)
	}
	if z != nil {
		copy(z, m.disc[s.nZ-len(m.z):])
	}
	if q != nil {
		copy(q, m.q)
	}
	return nil
}

func (s *FixedStep) ResetB(m *Memory, t float64, rx, rz, rp []float64) error {
	m.t = t
	m.k = s.nk
	copyOrZero(m.rx, rx)
	copyOrZero(m.rz, rz)
	copyOrZero(m.rp, rp)
	clear(m.rq)
	fillNaN(m.bdisc)
	return nil
}

func (s *FixedStep) Retreat(m *Memory, t float64, rx, rz, rq []float64) error {
	kOut := s.stepsAfter(t)
	for m.k > kOut {
		m.k--
		m.t = s.t0 + float64(m.k)*s.h

		copy(m.rxPrev, m.rx)
		copy(m.bdiscPrev, m.bdisc)
		copy(m.rqPrev, m.rq)

		m.tbuf[0] = m.t
		m.bstepArg[BStepRX] = m.rxPrev
		m.bstepArg[BStepRZ] = m.bdiscPrev
		m.bstepArg[BStepRP] = m.rp
		m.bstepArg[BStepX] = m.xTape[m.k]
		m.bstepArg[BStepZ] = m.discTape[m.k]
		m.bstepArg[BStepP] = m.p
		m.bstepArg[BStepT] = m.tbuf
		m.bstepRes[BStepRXF] = m.rx
		m.bstepRes[BStepRZF] = m.bdisc
		m.bstepRes[BStepRQF] = m.rq
		n, err := evalStep(s.stepG, m.bstepArg, m.bstepRes)
		m.stats.BackwardRootfinderIts += n
		if err != nil {
			return err
		}
		accumulate(m.rq, m.rqPrev)
		m.stats.BackwardSteps++
	}
	if rx != nil {
		copy(rx, m.rx)
	}
	if rz != nil {
		copy(rz, m.bdisc[s.nRZ-len(m.rz):])
	}
	if rq != nil {
		copy(rq, m.rq)
	}
	return nil
}

// evalStep evaluates a step function, reporting rootfinder iterations when
// the step is implicit.
func evalStep(f function.Function, arg, res [][]float64) (int, error) {
	if rf, ok := f.(*rootfinder.Rootfinder); ok {
		return rf.Solve(arg, res)
	}
	return 0, f.Eval(arg, res)
}

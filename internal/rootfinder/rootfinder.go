// Package rootfinder solves F(u, ...) = 0 for one designated input of a
// function.Function. The solver is itself a function.Function with the same
// slots as F: the implicit input is read as the initial guess and the
// implicit output returns the solution, while every other output is F
// evaluated at the solution.
package rootfinder

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/dynsens/internal/function"
)

var (
	// ErrUnknownStrategy indicates a strategy name missing from the registry.
	ErrUnknownStrategy = errors.New("rootfinder: unknown strategy")

	// ErrNoConvergence indicates the iteration limit was hit.
	ErrNoConvergence = errors.New("rootfinder: no convergence")

	// ErrSingular indicates a singular Jacobian.
	ErrSingular = errors.New("rootfinder: singular jacobian")

	// ErrBadOptions indicates inconsistent solver options.
	ErrBadOptions = errors.New("rootfinder: invalid options")
)

// Rootfinder wraps a residual function.
type Rootfinder struct {
	name     string
	strategy *Strategy
	f        function.Function
	opts     Options
	logger   *slog.Logger

	iterations atomic.Int64
	solves     atomic.Int64
}

// New creates a solver for f using a registered strategy.
func New(name, strategy string, f function.Function, opts Options, logger *slog.Logger) (*Rootfinder, error) {
	s, ok := lookup(strategy)
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %v)", ErrUnknownStrategy, strategy, Strategies())
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxIter <= 0 {
		opts.MaxIter = s.MaxIter
	}
	if opts.AbsTol <= 0 {
		opts.AbsTol = DefaultAbsTol
	}
	if opts.ImplicitInput < 0 || opts.ImplicitInput >= f.NIn() {
		return nil, fmt.Errorf("%w: implicit_input %d out of range for %s", ErrBadOptions, opts.ImplicitInput, f.Name())
	}
	if opts.ImplicitOutput < 0 || opts.ImplicitOutput >= f.NOut() {
		return nil, fmt.Errorf("%w: implicit_output %d out of range for %s", ErrBadOptions, opts.ImplicitOutput, f.Name())
	}
	if n, m := f.NnzIn(opts.ImplicitInput), f.NnzOut(opts.ImplicitOutput); n != m {
		return nil, fmt.Errorf("%w: %s has %d unknowns but %d residuals", ErrBadOptions, f.Name(), n, m)
	}
	return &Rootfinder{name: name, strategy: s, f: f, opts: opts, logger: logger}, nil
}

func (r *Rootfinder) Name() string      { return r.name }
func (r *Rootfinder) NIn() int          { return r.f.NIn() }
func (r *Rootfinder) NOut() int         { return r.f.NOut() }
func (r *Rootfinder) NnzIn(i int) int   { return r.f.NnzIn(i) }
func (r *Rootfinder) NnzOut(i int) int  { return r.f.NnzOut(i) }
func (r *Rootfinder) Strategy() string  { return r.strategy.Name }
func (r *Rootfinder) Options() Options  { return r.opts }
func (r *Rootfinder) Iterations() int64 { return r.iterations.Load() }
func (r *Rootfinder) Solves() int64     { return r.solves.Load() }

func (r *Rootfinder) Eval(arg, res [][]float64) error {
	_, err := r.Solve(arg, res)
	return err
}

// Solve is Eval that also reports the number of Newton iterations taken.
func (r *Rootfinder) Solve(arg, res [][]float64) (int, error) {
	if err := function.Check(r, arg, res); err != nil {
		return 0, err
	}
	iin, iout := r.opts.ImplicitInput, r.opts.ImplicitOutput
	n := r.f.NnzIn(iin)

	u := make([]float64, n)
	if g := arg[iin]; g != nil {
		for i, v := range g {
			if !math.IsNaN(v) && !math.IsInf(v, 0) {
				u[i] = v
			}
		}
	}

	fArg := make([][]float64, len(arg))
	copy(fArg, arg)
	fRes := make([][]float64, r.f.NOut())
	var evalErr error
	residual := func(y, x []float64) {
		fArg[iin] = x
		fRes[iout] = y
		if err := r.f.Eval(fArg, fRes); err != nil {
			evalErr = err
			for i := range y {
				y[i] = math.NaN()
			}
		}
	}

	iter := 0
	if n > 0 {
		var err error
		iter, err = r.newton(u, residual)
		if evalErr != nil {
			err = evalErr
		}
		r.iterations.Add(int64(iter))
		r.solves.Add(1)
		if err != nil {
			r.logger.Debug("rootfinder failed",
				slog.String("name", r.name),
				slog.String("strategy", r.strategy.Name),
				slog.Int("iterations", iter),
				slog.String("error", err.Error()))
			return iter, fmt.Errorf("%s: %w", r.name, err)
		}
	}

	// Remaining outputs at the solution; the implicit output returns u.
	out := make([][]float64, len(res))
	copy(out, res)
	out[iout] = nil
	fArg[iin] = u
	if err := r.f.Eval(fArg, out); err != nil {
		return iter, fmt.Errorf("%s: %w", r.name, err)
	}
	if res[iout] != nil {
		copy(res[iout], u)
	}
	return iter, nil
}

func (r *Rootfinder) newton(u []float64, residual func(y, x []float64)) (int, error) {
	n := len(u)
	y := make([]float64, n)
	jac := mat.NewDense(n, n, nil)
	settings := &fd.JacobianSettings{Formula: fd.Central, Step: r.opts.JacobianStep}
	var lu mat.LU
	step := mat.NewVecDense(n, nil)
	haveJac := false

	for iter := 0; iter < r.opts.MaxIter; iter++ {
		residual(y, u)
		norm := 0.0
		for _, v := range y {
			if math.IsNaN(v) {
				return iter, fmt.Errorf("%w: residual is not a number at iteration %d", ErrNoConvergence, iter)
			}
			norm = math.Max(norm, math.Abs(v))
		}
		if norm <= r.opts.AbsTol {
			return iter, nil
		}
		if !haveJac || !r.strategy.Chord {
			fd.Jacobian(jac, residual, u, settings)
			lu.Factorize(jac)
			if c := lu.Cond(); c > mat.ConditionTolerance || math.IsNaN(c) {
				return iter, fmt.Errorf("%w: condition number %.3g", ErrSingular, c)
			}
			haveJac = true
		}
		if err := lu.SolveVecTo(step, false, mat.NewVecDense(n, y)); err != nil {
			return iter, fmt.Errorf("%w: %v", ErrSingular, err)
		}
		for i := range u {
			u[i] -= step.AtVec(i)
		}
	}
	return r.opts.MaxIter, fmt.Errorf("%w after %d iterations", ErrNoConvergence, r.opts.MaxIter)
}

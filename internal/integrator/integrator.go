package integrator

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/san-kum/dynsens/internal/dae"
	"github.com/san-kum/dynsens/internal/function"
	"github.com/san-kum/dynsens/internal/sparsity"
)

// Integrator integrates a DAE over a time grid with a registered solver.
// It is a function.Function from (x0, p, z0, rx0, rp, rz0) to
// (xf, qf, zf, rxf, rqf, rzf) and is safe for concurrent use.
type Integrator struct {
	name   string
	plugin Plugin
	oracle dae.Oracle
	opts   Options
	logger *slog.Logger
	parent *slog.Logger

	dims  Dims
	grid  []float64
	ntout int

	jacDAE, jacRDAE sparsity.Pattern
	btfDAE, btfRDAE sparsity.BTF

	scheme Scheme
	layout Layout
	pool   *MemoryPool

	derivMu sync.Mutex
	fwd     map[int]*Derivative
	adj     map[int]*Derivative
}

// New compiles prob and builds an integrator using the named solver.
func New(name, solver string, prob *dae.Problem, opts Options, logger *slog.Logger) (*Integrator, error) {
	plugin, err := LoadPlugin(solver)
	if err != nil {
		return nil, err
	}
	oracle, err := dae.Compile(name+"_dae", prob, opts.Expand, logger)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	return build(name, plugin, oracle, opts, logger)
}

// NewFromOracle builds an integrator around an already compiled oracle.
func NewFromOracle(name, solver string, oracle dae.Oracle, opts Options, logger *slog.Logger) (*Integrator, error) {
	plugin, err := LoadPlugin(solver)
	if err != nil {
		return nil, err
	}
	return build(name, plugin, oracle, opts, logger)
}

func build(name string, plugin Plugin, oracle dae.Oracle, opts Options, logger *slog.Logger) (*Integrator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	in := &Integrator{
		name:   name,
		plugin: plugin,
		oracle: oracle,
		opts:   opts.clone(),
		logger: logger.With(slog.String("integrator", name), slog.String("solver", plugin.Name)),
		parent: logger,
		grid:   opts.grid(),
	}
	if oracle.NIn() != int(dae.NumIn) || oracle.NOut() != int(dae.NumOut) {
		return nil, fmt.Errorf("%w: oracle %s has %d inputs and %d outputs", ErrConfig, oracle.Name(), oracle.NIn(), oracle.NOut())
	}
	in.dims = Dims{
		NX:  oracle.NnzIn(int(dae.X)),
		NZ:  oracle.NnzIn(int(dae.Z)),
		NQ:  oracle.NnzOut(int(dae.QUAD)),
		NP:  oracle.NnzIn(int(dae.P)),
		NRX: oracle.NnzIn(int(dae.RX)),
		NRZ: oracle.NnzIn(int(dae.RZ)),
		NRQ: oracle.NnzOut(int(dae.RQUAD)),
		NRP: oracle.NnzIn(int(dae.RP)),
	}
	if err := in.checkOracle(); err != nil {
		return nil, err
	}
	if !oracle.SparsityIn(dae.X).IsDense() {
		in.logger.Warn("sparse states in integrators are experimental")
	}
	if !slices.IsSorted(in.grid) {
		in.logger.Warn("time grid is not increasing", slog.Any("grid", in.grid))
	}
	in.ntout = len(in.grid) - 1
	if in.opts.OutputT0 {
		in.ntout++
	}

	var err error
	in.jacDAE = in.spJacDAE()
	if in.btfDAE, err = in.jacDAE.BTF(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	if in.dims.HasBackward() {
		in.jacRDAE = in.spJacRDAE()
		if in.btfRDAE, err = in.jacRDAE.BTF(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrConfig, err)
		}
	}

	scheme, err := plugin.Creator(in)
	if err != nil {
		return nil, err
	}
	in.scheme = scheme
	in.layout = scheme.Layout()
	in.pool = newMemoryPool(in.dims, in.layout)

	in.logger.Debug("integrator ready",
		slog.String("dims", in.dims.String()),
		slog.Int("grid_points", len(in.grid)),
		slog.Int("dae_blocks", in.btfDAE.NBlocks()))
	return in, nil
}

func (in *Integrator) checkOracle() error {
	o := in.oracle
	pairs := []struct {
		out dae.Output
		in  dae.Input
	}{{dae.ODE, dae.X}, {dae.ALG, dae.Z}, {dae.RODE, dae.RX}, {dae.RALG, dae.RZ}}
	for _, pr := range pairs {
		if n, m := o.NnzOut(int(pr.out)), o.NnzIn(int(pr.in)); n != m {
			return fmt.Errorf("%w: %s has %d entries but %s has %d", ErrConfig, pr.out, n, pr.in, m)
		}
	}
	for i := dae.Input(0); i < dae.NumIn; i++ {
		if sp := o.SparsityIn(i); !sp.IsColumn() {
			return fmt.Errorf("%w: input %s must be a column vector, got %s", ErrConfig, i, sp)
		}
	}
	for i := dae.Output(0); i < dae.NumOut; i++ {
		if sp := o.SparsityOut(i); !sp.IsColumn() {
			return fmt.Errorf("%w: output %s must be a column vector, got %s", ErrConfig, i, sp)
		}
	}
	for _, out := range []dae.Output{dae.ODE, dae.ALG, dae.QUAD} {
		for _, bin := range []dae.Input{dae.RX, dae.RZ, dae.RP} {
			if o.SparsityJac(bin, out).Nnz() > 0 {
				return fmt.Errorf("%w: forward output %s depends on %s", ErrConfig, out, bin)
			}
		}
	}
	if n := o.NnzIn(int(dae.T)); n > 1 {
		return fmt.Errorf("%w: time must be scalar, got %d entries", ErrConfig, n)
	}
	if len(in.grid) == 0 {
		return fmt.Errorf("%w: empty time grid", ErrConfig)
	}
	return nil
}

func (in *Integrator) Name() string { return in.name }

// Solver returns the plugin name the integrator was built with.
func (in *Integrator) Solver() string { return in.plugin.Name }

func (in *Integrator) Oracle() dae.Oracle { return in.oracle }

// Options returns a copy of the construction options.
func (in *Integrator) Options() Options { return in.opts.clone() }

func (in *Integrator) Dims() Dims { return in.dims }

// Grid returns a copy of the time grid.
func (in *Integrator) Grid() []float64 { return slices.Clone(in.grid) }

// NumOutputTimes returns the number of blocks in each trajectory output.
func (in *Integrator) NumOutputTimes() int { return in.ntout }

// Scheme returns the stepping engine built by the solver plugin.
func (in *Integrator) Scheme() Scheme { return in.scheme }

func (in *Integrator) Logger() *slog.Logger { return in.logger }

// NewMemory allocates evaluation memory sized for this integrator only.
func (in *Integrator) NewMemory() *Memory { return newMemory(in.dims, in.layout) }

// MemoryPool returns the pool Eval draws its memory from.
func (in *Integrator) MemoryPool() *MemoryPool { return in.pool }

func (in *Integrator) NIn() int  { return int(NumIn) }
func (in *Integrator) NOut() int { return int(NumOut) }

func (in *Integrator) NnzIn(i int) int { return in.dims.in(InputSlot(i)) }

func (in *Integrator) NnzOut(i int) int {
	n := in.dims.out(OutputSlot(i))
	if OutputSlot(i) <= ZF {
		return n * in.ntout
	}
	return n
}

// NewOutputs allocates a buffer for every output slot.
func (in *Integrator) NewOutputs() [][]float64 {
	res := make([][]float64, NumOut)
	for s := range res {
		res[s] = make([]float64, in.NnzOut(s))
	}
	return res
}

// Eval integrates with pooled memory.
func (in *Integrator) Eval(arg, res [][]float64) error {
	m := in.pool.Get()
	defer in.pool.Put(m)
	return in.EvalMemory(context.Background(), m, arg, res)
}

// EvalMemory integrates with caller-owned memory, which must come from this
// integrator. Forward output slots receive one block per reported grid point.
// ctx is checked between grid points.
func (in *Integrator) EvalMemory(ctx context.Context, m *Memory, arg, res [][]float64) error {
	if err := function.Check(in, arg, res); err != nil {
		return fmt.Errorf("%w: %w", ErrDimensionMismatch, err)
	}
	if m.dims != in.dims || m.layout != in.layout {
		return fmt.Errorf("%w: memory was sized for %s with %d steps", ErrDimensionMismatch, m.dims, m.layout.NK)
	}
	m.stats = Stats{}
	d := in.dims
	x, q, z := res[XF], res[QF], res[ZF]

	if err := in.scheme.Reset(m, in.grid[0], arg[X0], arg[Z0], arg[P]); err != nil {
		return in.evalError("reset", m, err)
	}
	for k, t := range in.grid {
		if k == 0 && !in.opts.OutputT0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return in.evalError("advance", m, err)
		}
		if err := in.scheme.Advance(m, t, head(x, d.NX), head(z, d.NZ), head(q, d.NQ)); err != nil {
			return in.evalError("advance", m, err)
		}
		x, z, q = tail(x, d.NX), tail(z, d.NZ), tail(q, d.NQ)
	}

	if d.HasBackward() {
		if err := in.scheme.ResetB(m, in.grid[len(in.grid)-1], arg[RX0], arg[RZ0], arg[RP]); err != nil {
			return in.evalError("resetB", m, err)
		}
		if err := in.scheme.Retreat(m, in.grid[0], res[RXF], res[RZF], res[RQF]); err != nil {
			return in.evalError("retreat", m, err)
		}
	}

	if in.opts.PrintStats {
		in.logger.Info("integration statistics", slog.Any("stats", m.stats))
	}
	return nil
}

func (in *Integrator) evalError(phase string, m *Memory, err error) error {
	return &EvalError{Phase: phase, Step: m.k, Time: m.t, Wrapped: err}
}

func head(v []float64, n int) []float64 {
	if v == nil {
		return nil
	}
	return v[:n]
}

func tail(v []float64, n int) []float64 {
	if v == nil {
		return nil
	}
	return v[n:]
}

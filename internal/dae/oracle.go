package dae

import (
	"fmt"
	"log/slog"

	"github.com/san-kum/dynsens/internal/function"
	"github.com/san-kum/dynsens/internal/sparsity"
	"github.com/san-kum/dynsens/internal/symbolic"
)

// Oracle is a compiled DAE right-hand side. Beyond numeric evaluation it
// reports the sparsity of its slots and of every input/output Jacobian
// block, and propagates dependency bits forward and in reverse.
type Oracle interface {
	function.Function
	SparsityIn(i Input) sparsity.Pattern
	SparsityOut(o Output) sparsity.Pattern
	// SparsityJac returns the pattern of d(out)/d(in), rows indexed by the
	// nonzeros of out and columns by the nonzeros of in.
	SparsityJac(in Input, out Output) sparsity.Pattern
	// SpFwd sets res bits to the union of the input bits each output
	// nonzero may depend on.
	SpFwd(arg, res [][]sparsity.Bvec)
	// SpRev ORs the res bits into every input nonzero they may depend on
	// and clears res.
	SpRev(arg, res [][]sparsity.Bvec)
}

// Symbolic is implemented by oracles that retain their problem, which is
// what derivative augmentation needs.
type Symbolic interface {
	Problem() *Problem
}

type ref struct {
	in Input
	k  int
}

// SymbolicOracle evaluates a Problem.
type SymbolicOracle struct {
	name string
	prob *Problem
	prog *symbolic.Program
	deps [NumOut][][]ref
	jac  [NumIn][NumOut]sparsity.Pattern
}

// Compile validates p and compiles it. With expand set, evaluation runs on a
// flat instruction list with shared subexpressions.
func Compile(name string, p *Problem, expand bool, logger *slog.Logger) (*SymbolicOracle, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	prog, err := symbolic.Compile(p.In[:], p.Out[:], expand)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProblem, err)
	}
	o := &SymbolicOracle{name: name, prob: p, prog: prog}

	where := make(map[string]ref)
	for i, m := range p.In {
		for k, n := range m.Names() {
			where[n] = ref{in: Input(i), k: k}
		}
	}
	var rows, cols [NumIn][NumOut][]int
	for out, m := range p.Out {
		o.deps[out] = make([][]ref, m.Nnz())
		for e, expr := range m.NZ {
			for _, n := range symbolic.Symbols(expr) {
				r := where[n]
				o.deps[out][e] = append(o.deps[out][e], r)
				rows[r.in][out] = append(rows[r.in][out], e)
				cols[r.in][out] = append(cols[r.in][out], r.k)
			}
		}
	}
	for in := range o.jac {
		for out := range o.jac[in] {
			o.jac[in][out] = sparsity.Triplet(p.Out[out].Nnz(), p.In[in].Nnz(), rows[in][out], cols[in][out])
		}
	}

	logger.Debug("compiled dae oracle",
		slog.String("name", name),
		slog.Bool("expand", expand),
		slog.Int("instructions", prog.Instructions()))
	return o, nil
}

func (o *SymbolicOracle) Name() string      { return o.name }
func (o *SymbolicOracle) NIn() int          { return int(NumIn) }
func (o *SymbolicOracle) NOut() int         { return int(NumOut) }
func (o *SymbolicOracle) NnzIn(i int) int   { return o.prob.In[i].Nnz() }
func (o *SymbolicOracle) NnzOut(i int) int  { return o.prob.Out[i].Nnz() }
func (o *SymbolicOracle) Problem() *Problem { return o.prob }

func (o *SymbolicOracle) SparsityIn(i Input) sparsity.Pattern   { return o.prob.In[i].Sp }
func (o *SymbolicOracle) SparsityOut(i Output) sparsity.Pattern { return o.prob.Out[i].Sp }

func (o *SymbolicOracle) SparsityJac(in Input, out Output) sparsity.Pattern {
	return o.jac[in][out]
}

func (o *SymbolicOracle) Eval(arg, res [][]float64) error {
	if err := function.Check(o, arg, res); err != nil {
		return err
	}
	o.prog.Eval(arg, res)
	return nil
}

func (o *SymbolicOracle) SpFwd(arg, res [][]sparsity.Bvec) {
	for out, rows := range o.deps {
		if res[out] == nil {
			continue
		}
		for e, deps := range rows {
			var b sparsity.Bvec
			for _, r := range deps {
				if a := arg[r.in]; a != nil {
					b |= a[r.k]
				}
			}
			res[out][e] = b
		}
	}
}

func (o *SymbolicOracle) SpRev(arg, res [][]sparsity.Bvec) {
	for out, rows := range o.deps {
		if res[out] == nil {
			continue
		}
		for e, deps := range rows {
			seed := res[out][e]
			for _, r := range deps {
				if a := arg[r.in]; a != nil {
					a[r.k] |= seed
				}
			}
			res[out][e] = 0
		}
	}
}

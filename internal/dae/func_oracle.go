package dae

import (
	"github.com/san-kum/dynsens/internal/function"
	"github.com/san-kum/dynsens/internal/sparsity"
)

// FuncOracle wraps a hand-written evaluation function. Nothing is known about
// its internals, so every output is assumed to depend on every input it is
// allowed to see: forward outputs on t, x, z, p and backward outputs on all
// inputs. It cannot be augmented for derivatives.
type FuncOracle struct {
	name string
	in   [NumIn]int
	out  [NumOut]int
	eval function.EvalFunc
}

// NewFuncOracle declares an opaque oracle with dense column slots of the
// given sizes.
func NewFuncOracle(name string, in [NumIn]int, out [NumOut]int, eval function.EvalFunc) *FuncOracle {
	return &FuncOracle{name: name, in: in, out: out, eval: eval}
}

func (o *FuncOracle) Name() string     { return o.name }
func (o *FuncOracle) NIn() int         { return int(NumIn) }
func (o *FuncOracle) NOut() int        { return int(NumOut) }
func (o *FuncOracle) NnzIn(i int) int  { return o.in[i] }
func (o *FuncOracle) NnzOut(i int) int { return o.out[i] }

func (o *FuncOracle) SparsityIn(i Input) sparsity.Pattern   { return sparsity.Column(o.in[i]) }
func (o *FuncOracle) SparsityOut(i Output) sparsity.Pattern { return sparsity.Column(o.out[i]) }

func (o *FuncOracle) SparsityJac(in Input, out Output) sparsity.Pattern {
	if !sees(in, out) {
		return sparsity.Empty(o.out[out], o.in[in])
	}
	return sparsity.Dense(o.out[out], o.in[in])
}

func (o *FuncOracle) Eval(arg, res [][]float64) error {
	if err := function.Check(o, arg, res); err != nil {
		return err
	}
	return o.eval(arg, res)
}

func sees(in Input, out Output) bool {
	return out >= RODE || in <= P
}

func (o *FuncOracle) SpFwd(arg, res [][]sparsity.Bvec) {
	for out := range res {
		if res[out] == nil {
			continue
		}
		var b sparsity.Bvec
		for in, a := range arg {
			if a == nil || !sees(Input(in), Output(out)) {
				continue
			}
			for _, v := range a {
				b |= v
			}
		}
		for e := range res[out] {
			res[out][e] = b
		}
	}
}

func (o *FuncOracle) SpRev(arg, res [][]sparsity.Bvec) {
	for out := range res {
		if res[out] == nil {
			continue
		}
		var b sparsity.Bvec
		for e, v := range res[out] {
			b |= v
			res[out][e] = 0
		}
		for in, a := range arg {
			if a == nil || !sees(Input(in), Output(out)) {
				continue
			}
			for k := range a {
				a[k] |= b
			}
		}
	}
}

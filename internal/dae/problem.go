// Package dae describes differential-algebraic problems and compiles them
// into numeric oracles.
//
// A problem has seven inputs (time, differential state, algebraic state,
// parameters and the three backward counterparts) and six outputs (ODE
// right-hand side, algebraic residual, quadrature integrand and the backward
// counterparts). The backward problem runs in reversed time.
package dae

import (
	"errors"
	"fmt"
	"slices"

	"github.com/san-kum/dynsens/internal/sparsity"
	"github.com/san-kum/dynsens/internal/symbolic"
)

// ErrInvalidProblem indicates an inconsistent problem definition.
var ErrInvalidProblem = errors.New("dae: invalid problem")

// Input indexes the oracle inputs.
type Input int

const (
	T Input = iota
	X
	Z
	P
	RX
	RZ
	RP
	NumIn
)

// Output indexes the oracle outputs.
type Output int

const (
	ODE Output = iota
	ALG
	QUAD
	RODE
	RALG
	RQUAD
	NumOut
)

var inputNames = [NumIn]string{"t", "x", "z", "p", "rx", "rz", "rp"}
var outputNames = [NumOut]string{"ode", "alg", "quad", "rode", "ralg", "rquad"}

func (i Input) String() string  { return inputNames[i] }
func (o Output) String() string { return outputNames[o] }

// InputNames and OutputNames list the role keys in slot order.
func InputNames() []string  { return inputNames[:] }
func OutputNames() []string { return outputNames[:] }

// Problem is a symbolic DAE. Inputs must be distinct symbols.
type Problem struct {
	In  [NumIn]symbolic.Matrix
	Out [NumOut]symbolic.Matrix
}

// FromMap builds a problem from role names (t x z p rx rz rp ode alg quad
// rode ralg rquad). Missing roles are empty; a missing time becomes the
// scalar symbol "t".
func FromMap(m map[string]symbolic.Matrix) (*Problem, error) {
	p := &Problem{}
	for i := range p.In {
		p.In[i] = symbolic.SymColumn(inputNames[i], 0)
	}
	for i := range p.Out {
		p.Out[i] = symbolic.Matrix{Sp: sparsity.Column(0)}
	}
	p.In[T] = symbolic.Named("t")

	for key, v := range m {
		if i := slices.Index(inputNames[:], key); i >= 0 {
			p.In[i] = v
			continue
		}
		if i := slices.Index(outputNames[:], key); i >= 0 {
			p.Out[i] = v
			continue
		}
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidProblem, key)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// ToMap is the inverse of FromMap.
func (p *Problem) ToMap() map[string]symbolic.Matrix {
	m := make(map[string]symbolic.Matrix, int(NumIn)+int(NumOut))
	for i, v := range p.In {
		m[inputNames[i]] = v
	}
	for i, v := range p.Out {
		m[outputNames[i]] = v
	}
	return m
}

// Validate checks shapes and symbol bindings.
func (p *Problem) Validate() error {
	bound := make(map[string]Input)
	for i, m := range p.In {
		if !m.IsSymbolic() {
			return fmt.Errorf("%w: input %s must consist of distinct symbols", ErrInvalidProblem, Input(i))
		}
		for _, n := range m.Names() {
			if prev, dup := bound[n]; dup {
				return fmt.Errorf("%w: symbol %q used by %s and %s", ErrInvalidProblem, n, prev, Input(i))
			}
			bound[n] = Input(i)
		}
	}
	if p.In[T].Nnz() > 1 {
		return fmt.Errorf("%w: time must be scalar, got %s", ErrInvalidProblem, p.In[T].Sp)
	}

	pairs := []struct {
		out Output
		in  Input
	}{{ODE, X}, {ALG, Z}, {RODE, RX}, {RALG, RZ}}
	for _, pr := range pairs {
		o, i := p.Out[pr.out].Sp, p.In[pr.in].Sp
		if o.Nnz() == 0 && i.Nnz() == 0 {
			continue
		}
		if o.Size1() != i.Size1() || o.Size2() != i.Size2() {
			return fmt.Errorf("%w: %s is %s but %s is %s", ErrInvalidProblem, pr.out, o, pr.in, i)
		}
	}

	backward := map[string]bool{}
	for _, in := range []Input{RX, RZ, RP} {
		for _, n := range p.In[in].Names() {
			backward[n] = true
		}
	}
	for o, m := range p.Out {
		for _, n := range m.Symbols() {
			if _, ok := bound[n]; !ok {
				return fmt.Errorf("%w: %s references unbound symbol %q", ErrInvalidProblem, Output(o), n)
			}
		}
		if Output(o) <= QUAD {
			for _, e := range m.NZ {
				if symbolic.DependsOn(e, backward) {
					return fmt.Errorf("%w: forward output %s depends on backward variables", ErrInvalidProblem, Output(o))
				}
			}
		}
	}
	return nil
}

// Dims returns the nonzero count of every input and output.
func (p *Problem) Dims() (in [NumIn]int, out [NumOut]int) {
	for i, m := range p.In {
		in[i] = m.Nnz()
	}
	for i, m := range p.Out {
		out[i] = m.Nnz()
	}
	return in, out
}

package symbolic

import (
	"fmt"
	"math"
	"sync"
)

type binding struct {
	slot, k int
}

// Program evaluates a list of output matrices given positional input buffers.
// It is safe for concurrent use.
type Program struct {
	nnzIn    []int
	nnzOut   []int
	expanded bool

	// tree mode
	nodes [][]func(arg [][]float64) float64

	// expanded mode
	code  []instr
	outs  [][]int32
	regs  sync.Pool
	nregs int
}

type instr struct {
	op   Op
	a, b int32
	val  float64
	bind binding
}

// Compile binds the symbols of ins to input positions and prepares outs for
// evaluation. Every symbol referenced by outs must be bound. With expand set
// the expressions are flattened into one instruction list in which repeated
// subexpressions are computed once.
func Compile(ins, outs []Matrix, expand bool) (*Program, error) {
	if err := checkInputs(ins); err != nil {
		return nil, err
	}
	binds := make(map[string]binding)
	p := &Program{nnzIn: make([]int, len(ins)), nnzOut: make([]int, len(outs))}
	for i, m := range ins {
		p.nnzIn[i] = m.Nnz()
		for k, n := range m.Names() {
			binds[n] = binding{slot: i, k: k}
		}
	}
	for i, m := range outs {
		p.nnzOut[i] = m.Nnz()
		for _, n := range m.Symbols() {
			if _, ok := binds[n]; !ok {
				return nil, fmt.Errorf("output %d: %w", i, &freeSymbolError{name: n})
			}
		}
	}
	p.expanded = expand
	if expand {
		p.flatten(outs, binds)
	} else {
		p.nodes = make([][]func([][]float64) float64, len(outs))
		for i, m := range outs {
			p.nodes[i] = make([]func([][]float64) float64, len(m.NZ))
			for k, e := range m.NZ {
				p.nodes[i][k] = closure(e, binds)
			}
		}
	}
	return p, nil
}

func (p *Program) NIn() int          { return len(p.nnzIn) }
func (p *Program) NOut() int         { return len(p.nnzOut) }
func (p *Program) NnzIn(i int) int   { return p.nnzIn[i] }
func (p *Program) NnzOut(i int) int  { return p.nnzOut[i] }
func (p *Program) Expanded() bool    { return p.expanded }
func (p *Program) Instructions() int { return len(p.code) }

// Eval writes every requested output. A nil arg[i] reads as zeros and a nil
// res[i] is skipped.
func (p *Program) Eval(arg, res [][]float64) {
	if !p.expanded {
		for i, fs := range p.nodes {
			if res[i] == nil {
				continue
			}
			for k, f := range fs {
				res[i][k] = f(arg)
			}
		}
		return
	}

	regs := p.regs.Get().(*[]float64)
	defer p.regs.Put(regs)
	r := *regs
	for i, in := range p.code {
		switch in.op {
		case OpConst:
			r[i] = in.val
		case OpSym:
			r[i] = read(arg, in.bind)
		case OpNeg, OpSin, OpCos, OpTan, OpExp, OpLog, OpSqrt, OpTanh:
			r[i] = apply(in.op, r[in.a], 0)
		default:
			r[i] = apply(in.op, r[in.a], r[in.b])
		}
	}
	for i, ids := range p.outs {
		if res[i] == nil {
			continue
		}
		for k, id := range ids {
			res[i][k] = r[id]
		}
	}
}

func read(arg [][]float64, b binding) float64 {
	if a := arg[b.slot]; a != nil {
		return a[b.k]
	}
	return 0
}

func closure(e *Expr, binds map[string]binding) func([][]float64) float64 {
	switch e.op {
	case OpConst:
		v := e.val
		return func([][]float64) float64 { return v }
	case OpSym:
		b := binds[e.name]
		return func(arg [][]float64) float64 { return read(arg, b) }
	}
	op := e.op
	fa := closure(e.a, binds)
	if e.b == nil {
		return func(arg [][]float64) float64 { return apply(op, fa(arg), 0) }
	}
	fb := closure(e.b, binds)
	return func(arg [][]float64) float64 { return apply(op, fa(arg), fb(arg)) }
}

type instrKey struct {
	op   Op
	a, b int32
	bits uint64
	name string
}

func (p *Program) flatten(outs []Matrix, binds map[string]binding) {
	index := make(map[instrKey]int32)
	memo := make(map[*Expr]int32)
	var emit func(e *Expr) int32
	emit = func(e *Expr) int32 {
		if id, ok := memo[e]; ok {
			return id
		}
		key := instrKey{op: e.op, a: -1, b: -1}
		in := instr{op: e.op, a: -1, b: -1}
		switch e.op {
		case OpConst:
			key.bits = math.Float64bits(e.val)
			in.val = e.val
		case OpSym:
			key.name = e.name
			in.bind = binds[e.name]
		default:
			key.a = emit(e.a)
			in.a = key.a
			if e.b != nil {
				key.b = emit(e.b)
				in.b = key.b
			}
		}
		id, ok := index[key]
		if !ok {
			id = int32(len(p.code))
			p.code = append(p.code, in)
			index[key] = id
		}
		memo[e] = id
		return id
	}

	p.outs = make([][]int32, len(outs))
	for i, m := range outs {
		p.outs[i] = make([]int32, len(m.NZ))
		for k, e := range m.NZ {
			p.outs[i][k] = emit(e)
		}
	}
	p.nregs = len(p.code)
	n := p.nregs
	p.regs.New = func() any {
		buf := make([]float64, n)
		return &buf
	}
}

package symbolic

import (
	"fmt"
	"slices"
	"strings"

	"github.com/san-kum/dynsens/internal/sparsity"
)

// Matrix is a sparse matrix of expressions. NZ holds one expression per
// structural nonzero of Sp, in column-major storage order.
type Matrix struct {
	Sp sparsity.Pattern
	NZ []*Expr
}

// SymMatrix creates a matrix of fresh symbols named name_0, name_1, ...
// A 1x1 dense matrix gets the bare name.
func SymMatrix(name string, sp sparsity.Pattern) Matrix {
	m := Matrix{Sp: sp, NZ: make([]*Expr, sp.Nnz())}
	if sp.Nnz() == 1 && sp.Numel() == 1 {
		m.NZ[0] = Sym(name)
		return m
	}
	for k := range m.NZ {
		m.NZ[k] = Sym(fmt.Sprintf("%s_%d", name, k))
	}
	return m
}

// SymColumn is SymMatrix with a dense n x 1 pattern.
func SymColumn(name string, n int) Matrix { return SymMatrix(name, sparsity.Column(n)) }

// Named builds a dense column of symbols with the given names.
func Named(names ...string) Matrix {
	m := Matrix{Sp: sparsity.Column(len(names)), NZ: make([]*Expr, len(names))}
	for i, n := range names {
		m.NZ[i] = Sym(n)
	}
	return m
}

// ColumnOf builds a dense column from expressions.
func ColumnOf(es ...*Expr) Matrix {
	return Matrix{Sp: sparsity.Column(len(es)), NZ: append([]*Expr(nil), es...)}
}

// Zeros returns a matrix with pattern sp whose nonzeros are all the constant 0.
func Zeros(sp sparsity.Pattern) Matrix {
	m := Matrix{Sp: sp, NZ: make([]*Expr, sp.Nnz())}
	for k := range m.NZ {
		m.NZ[k] = zero
	}
	return m
}

func (m Matrix) Nnz() int { return len(m.NZ) }

// IsSymbolic reports whether every nonzero is a distinct symbol.
func (m Matrix) IsSymbolic() bool {
	seen := make(map[string]bool, len(m.NZ))
	for _, e := range m.NZ {
		if !e.IsSymbol() || seen[e.name] {
			return false
		}
		seen[e.name] = true
	}
	return true
}

// Names returns the symbol names of a symbolic matrix, in storage order.
func (m Matrix) Names() []string {
	names := make([]string, len(m.NZ))
	for k, e := range m.NZ {
		names[k] = e.name
	}
	return names
}

// Symbols returns the distinct symbols referenced by any nonzero.
func (m Matrix) Symbols() []string {
	seen := make(map[string]struct{})
	for _, e := range m.NZ {
		collect(e, seen)
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

func (m Matrix) String() string {
	parts := make([]string, len(m.NZ))
	for k, e := range m.NZ {
		parts[k] = e.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// Horzcat places matrices side by side.
func Horzcat(ms ...Matrix) Matrix {
	sps := make([]sparsity.Pattern, len(ms))
	var nz []*Expr
	for i, m := range ms {
		sps[i] = m.Sp
		nz = append(nz, m.NZ...)
	}
	return Matrix{Sp: sparsity.Horzcat(sps...), NZ: nz}
}

// Vertcat stacks column vectors. Non-column inputs are rejected.
func Vertcat(ms ...Matrix) Matrix {
	sps := make([]sparsity.Pattern, len(ms))
	var nz []*Expr
	for i, m := range ms {
		if !m.Sp.IsColumn() {
			panic(fmt.Errorf("%w: vertcat of %s", ErrShape, m.Sp))
		}
		sps[i] = m.Sp
		nz = append(nz, m.NZ...)
	}
	if len(ms) == 0 {
		return Matrix{Sp: sparsity.Column(0)}
	}
	return Matrix{Sp: sparsity.Vertcat(sps...), NZ: nz}
}

// Split cuts a column into consecutive pieces at the given entry offsets.
// offsets must start at 0 and end at m.Nnz().
func (m Matrix) Split(offsets []int) []Matrix {
	if !m.Sp.IsDense() || !m.Sp.IsColumn() {
		panic(fmt.Errorf("%w: split of %s", ErrShape, m.Sp))
	}
	out := make([]Matrix, len(offsets)-1)
	for i := range out {
		nz := m.NZ[offsets[i]:offsets[i+1]]
		out[i] = ColumnOf(nz...)
	}
	return out
}

// Project returns m restricted (or zero-extended) to the pattern sp.
func Project(m Matrix, sp sparsity.Pattern) Matrix {
	if m.Sp.Size1() != sp.Size1() || m.Sp.Size2() != sp.Size2() {
		panic(fmt.Errorf("%w: project %s onto %s", ErrShape, m.Sp, sp))
	}
	if m.Sp.Equal(sp) {
		return m
	}
	out := Zeros(sp)
	for c := 0; c < sp.Size2(); c++ {
		for _, r := range sp.Col(c) {
			if k := m.Sp.Find(r, c); k >= 0 {
				out.NZ[sp.Find(r, c)] = m.NZ[k]
			}
		}
	}
	return out
}

// partials caches d(out)/d(symbol) for every nonzero of every output.
type partials struct {
	d [][]map[string]*Expr
}

func newPartials(outs []Matrix) *partials {
	p := &partials{d: make([][]map[string]*Expr, len(outs))}
	for i, m := range outs {
		p.d[i] = make([]map[string]*Expr, len(m.NZ))
		for k, e := range m.NZ {
			row := make(map[string]*Expr)
			for _, name := range Symbols(e) {
				if de := Diff(e, name); !de.IsZero() {
					row[name] = de
				}
			}
			p.d[i][k] = row
		}
	}
	return p
}

func checkInputs(ins []Matrix) error {
	seen := make(map[string]bool)
	for i, m := range ins {
		if !m.IsSymbolic() {
			return fmt.Errorf("%w: input %d is %s", ErrNotSymbolic, i, m)
		}
		for _, n := range m.Names() {
			if seen[n] {
				return fmt.Errorf("%w: symbol %q bound twice", ErrNotSymbolic, n)
			}
			seen[n] = true
		}
	}
	return nil
}

// Forward computes Jacobian-times-seed products. For every direction d,
// result[d][i] = sum_j d(outs[i])/d(ins[j]) * seeds[d][j], with the pattern of
// outs[i]. A seed with the wrong pattern is projected onto its input.
func Forward(outs, ins []Matrix, seeds [][]Matrix) ([][]Matrix, error) {
	if err := checkInputs(ins); err != nil {
		return nil, err
	}
	seedOf := make([]map[string]*Expr, len(seeds))
	for d, dir := range seeds {
		if len(dir) != len(ins) {
			return nil, fmt.Errorf("%w: direction %d has %d seeds for %d inputs", ErrShape, d, len(dir), len(ins))
		}
		seedOf[d] = make(map[string]*Expr)
		for j, in := range ins {
			s := Project(dir[j], in.Sp)
			for k, e := range in.NZ {
				if !s.NZ[k].IsZero() {
					seedOf[d][e.name] = s.NZ[k]
				}
			}
		}
	}

	p := newPartials(outs)
	res := make([][]Matrix, len(seeds))
	for d := range seeds {
		res[d] = make([]Matrix, len(outs))
		for i, out := range outs {
			m := Matrix{Sp: out.Sp, NZ: make([]*Expr, len(out.NZ))}
			for k := range out.NZ {
				acc := zero
				for _, name := range sortedKeys(p.d[i][k]) {
					if s, ok := seedOf[d][name]; ok {
						acc = Add(acc, Mul(p.d[i][k][name], s))
					}
				}
				m.NZ[k] = acc
			}
			res[d][i] = m
		}
	}
	return res, nil
}

// Reverse computes seed-times-Jacobian products. For every direction d,
// result[d][j] = sum_i seeds[d][i]^T * d(outs[i])/d(ins[j]), with the pattern
// of ins[j].
func Reverse(outs, ins []Matrix, seeds [][]Matrix) ([][]Matrix, error) {
	if err := checkInputs(ins); err != nil {
		return nil, err
	}
	p := newPartials(outs)
	res := make([][]Matrix, len(seeds))
	for d, dir := range seeds {
		if len(dir) != len(outs) {
			return nil, fmt.Errorf("%w: direction %d has %d seeds for %d outputs", ErrShape, d, len(dir), len(outs))
		}
		terms := make(map[string][]*Expr)
		for i, out := range outs {
			s := Project(dir[i], out.Sp)
			for k := range out.NZ {
				if s.NZ[k].IsZero() {
					continue
				}
				for _, name := range sortedKeys(p.d[i][k]) {
					terms[name] = append(terms[name], Mul(s.NZ[k], p.d[i][k][name]))
				}
			}
		}
		res[d] = make([]Matrix, len(ins))
		for j, in := range ins {
			m := Matrix{Sp: in.Sp, NZ: make([]*Expr, len(in.NZ))}
			for k, e := range in.NZ {
				m.NZ[k] = Sum(terms[e.name]...)
			}
			res[d][j] = m
		}
	}
	return res, nil
}

func sortedKeys(m map[string]*Expr) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

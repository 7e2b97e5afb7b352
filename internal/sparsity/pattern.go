// Package sparsity holds boolean sparsity patterns, their block triangular
// form, and the bitwise dependency propagation used to analyse implicit
// systems without solving them numerically.
package sparsity

import (
	"errors"
	"fmt"
	"slices"
)

var (
	// ErrShape indicates patterns with incompatible dimensions.
	ErrShape = errors.New("sparsity: dimension mismatch")

	// ErrNotSquare indicates an operation that needs a square pattern.
	ErrNotSquare = errors.New("sparsity: pattern is not square")
)

// Bvec is a word of dependency bits. Bit i set means "may depend on seed i".
type Bvec uint64

// Pattern is a boolean sparsity structure stored in compressed column form.
// The zero value is a 0x0 pattern.
type Pattern struct {
	nrow, ncol int
	colind     []int
	row        []int
}

// Triplet builds a pattern from (row, col) coordinates. Duplicates are merged.
func Triplet(nrow, ncol int, rows, cols []int) Pattern {
	if len(rows) != len(cols) {
		panic(ErrShape)
	}
	buckets := make([][]int, ncol)
	for k := range rows {
		r, c := rows[k], cols[k]
		if r < 0 || r >= nrow || c < 0 || c >= ncol {
			panic(fmt.Sprintf("sparsity: entry (%d,%d) outside %dx%d", r, c, nrow, ncol))
		}
		buckets[c] = append(buckets[c], r)
	}
	p := Pattern{nrow: nrow, ncol: ncol, colind: make([]int, ncol+1)}
	for c, b := range buckets {
		slices.Sort(b)
		b = slices.Compact(b)
		p.row = append(p.row, b...)
		p.colind[c+1] = len(p.row)
	}
	return p
}

// Dense returns a fully populated nrow x ncol pattern.
func Dense(nrow, ncol int) Pattern {
	p := Pattern{nrow: nrow, ncol: ncol, colind: make([]int, ncol+1), row: make([]int, 0, nrow*ncol)}
	for c := 0; c < ncol; c++ {
		for r := 0; r < nrow; r++ {
			p.row = append(p.row, r)
		}
		p.colind[c+1] = len(p.row)
	}
	return p
}

// Column is shorthand for Dense(n, 1).
func Column(n int) Pattern { return Dense(n, 1) }

// Empty returns an nrow x ncol pattern without structural nonzeros.
func Empty(nrow, ncol int) Pattern {
	return Pattern{nrow: nrow, ncol: ncol, colind: make([]int, ncol+1)}
}

// Diag returns the n x n identity pattern.
func Diag(n int) Pattern {
	p := Pattern{nrow: n, ncol: n, colind: make([]int, n+1), row: make([]int, n)}
	for i := 0; i < n; i++ {
		p.row[i] = i
		p.colind[i+1] = i + 1
	}
	return p
}

func (p Pattern) Size1() int { return p.nrow }
func (p Pattern) Size2() int { return p.ncol }
func (p Pattern) Nnz() int   { return len(p.row) }

// Numel is the number of elements, structural zeros included.
func (p Pattern) Numel() int { return p.nrow * p.ncol }

func (p Pattern) IsDense() bool  { return p.Nnz() == p.Numel() }
func (p Pattern) IsColumn() bool { return p.ncol == 1 }
func (p Pattern) IsSquare() bool { return p.nrow == p.ncol }

// IsEmpty reports whether the pattern has no elements at all.
func (p Pattern) IsEmpty() bool { return p.nrow == 0 || p.ncol == 0 }

// Col returns the row indices of the nonzeros in column c. The slice aliases
// the pattern and must not be modified.
func (p Pattern) Col(c int) []int {
	if p.ncol == 0 {
		return nil
	}
	return p.row[p.colind[c]:p.colind[c+1]]
}

// Has reports whether (r, c) is a structural nonzero.
func (p Pattern) Has(r, c int) bool {
	_, ok := slices.BinarySearch(p.Col(c), r)
	return ok
}

// Find returns the nonzero index of (r, c), or -1.
func (p Pattern) Find(r, c int) int {
	i, ok := slices.BinarySearch(p.Col(c), r)
	if !ok {
		return -1
	}
	return p.colind[c] + i
}

func (p Pattern) Equal(q Pattern) bool {
	if p.nrow != q.nrow || p.ncol != q.ncol {
		return false
	}
	return slices.Equal(p.colindOrZero(), q.colindOrZero()) && slices.Equal(p.row, q.row)
}

func (p Pattern) colindOrZero() []int {
	if p.colind == nil {
		return make([]int, p.ncol+1)
	}
	return p.colind
}

// Triplets returns the coordinates of every nonzero in storage order.
func (p Pattern) Triplets() (rows, cols []int) {
	rows = make([]int, 0, p.Nnz())
	cols = make([]int, 0, p.Nnz())
	for c := 0; c < p.ncol; c++ {
		for _, r := range p.Col(c) {
			rows = append(rows, r)
			cols = append(cols, c)
		}
	}
	return rows, cols
}

func (p Pattern) Transpose() Pattern {
	rows, cols := p.Triplets()
	return Triplet(p.ncol, p.nrow, cols, rows)
}

// Add returns the union of two patterns of equal shape.
func (p Pattern) Add(q Pattern) Pattern {
	if p.nrow != q.nrow || p.ncol != q.ncol {
		panic(fmt.Errorf("%w: %s + %s", ErrShape, p, q))
	}
	r1, c1 := p.Triplets()
	r2, c2 := q.Triplets()
	return Triplet(p.nrow, p.ncol, append(r1, r2...), append(c1, c2...))
}

// Horzcat places patterns side by side. All must have the same row count.
func Horzcat(ps ...Pattern) Pattern {
	if len(ps) == 0 {
		return Pattern{}
	}
	out := Pattern{nrow: ps[0].nrow, colind: []int{0}}
	for _, p := range ps {
		if p.nrow != out.nrow {
			panic(fmt.Errorf("%w: horzcat of %d and %d rows", ErrShape, out.nrow, p.nrow))
		}
		for c := 0; c < p.ncol; c++ {
			out.row = append(out.row, p.Col(c)...)
			out.colind = append(out.colind, len(out.row))
		}
		out.ncol += p.ncol
	}
	return out
}

// Vertcat stacks patterns. All must have the same column count.
func Vertcat(ps ...Pattern) Pattern {
	if len(ps) == 0 {
		return Pattern{}
	}
	ncol := ps[0].ncol
	var rows, cols []int
	off := 0
	for _, p := range ps {
		if p.ncol != ncol {
			panic(fmt.Errorf("%w: vertcat of %d and %d columns", ErrShape, ncol, p.ncol))
		}
		r, c := p.Triplets()
		for i := range r {
			rows = append(rows, r[i]+off)
		}
		cols = append(cols, c...)
		off += p.nrow
	}
	return Triplet(off, ncol, rows, cols)
}

// BlockCat assembles [a b; c d].
func BlockCat(a, b, c, d Pattern) Pattern {
	return Vertcat(Horzcat(a, b), Horzcat(c, d))
}

func (p Pattern) String() string {
	return fmt.Sprintf("%dx%d,%dnz", p.nrow, p.ncol, p.Nnz())
}

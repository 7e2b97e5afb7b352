package storage

import (
	"fmt"
	"slices"

	"github.com/san-kum/dynsens/internal/dae"
	"github.com/san-kum/dynsens/internal/integrator"
)

// Result is one integrator evaluation split per reported time.
type Result struct {
	Problem string
	Solver  string
	Dims    integrator.Dims
	Options integrator.Options
	Stats   integrator.Stats

	// Columns names the trajectory entries in x, q, z order.
	Columns []string
	Times   []float64
	// Rows holds one row per reported time, laid out like Columns.
	Rows [][]float64

	RXF, RQF, RZF []float64
}

// NewResult collects the outputs of in.Eval into a Result.
func NewResult(in *integrator.Integrator, res [][]float64, stats integrator.Stats) (*Result, error) {
	d := in.Dims()
	nt := in.NumOutputTimes()
	grid := in.Grid()
	for s := integrator.XF; s < integrator.NumOut; s++ {
		if res[s] != nil && len(res[s]) != in.NnzOut(int(s)) {
			return nil, fmt.Errorf("storage: output %s has length %d, want %d", s, len(res[s]), in.NnzOut(int(s)))
		}
	}

	r := &Result{
		Problem: in.Name(),
		Solver:  in.Solver(),
		Dims:    d,
		Options: in.Options(),
		Stats:   stats,
		Columns: ColumnNames(in.Oracle()),
		Times:   slices.Clone(grid[len(grid)-nt:]),
		Rows:    make([][]float64, nt),
		RXF:     slices.Clone(res[integrator.RXF]),
		RQF:     slices.Clone(res[integrator.RQF]),
		RZF:     slices.Clone(res[integrator.RZF]),
	}
	width := d.NX + d.NQ + d.NZ
	for k := range r.Rows {
		row := make([]float64, 0, width)
		row = appendBlock(row, res[integrator.XF], d.NX, k)
		row = appendBlock(row, res[integrator.QF], d.NQ, k)
		row = appendBlock(row, res[integrator.ZF], d.NZ, k)
		r.Rows[k] = row
	}
	return r, nil
}

// appendBlock appends block k of a trajectory output, or zeros when it was
// not requested.
func appendBlock(row, v []float64, n, k int) []float64 {
	if v == nil {
		return append(row, make([]float64, n)...)
	}
	return append(row, v[k*n:(k+1)*n]...)
}

// ColumnNames returns the symbol names of the states, quadratures and
// algebraic variables, falling back to indexed names for opaque oracles.
func ColumnNames(o dae.Oracle) []string {
	var cols []string
	sym, ok := o.(dae.Symbolic)
	if ok && sym.Problem().In[dae.X].IsSymbolic() && sym.Problem().In[dae.Z].IsSymbolic() {
		p := sym.Problem()
		cols = append(cols, p.In[dae.X].Names()...)
		for i := range p.Out[dae.QUAD].Nnz() {
			cols = append(cols, fmt.Sprintf("q%d", i))
		}
		return append(cols, p.In[dae.Z].Names()...)
	}
	for i := range o.NnzIn(int(dae.X)) {
		cols = append(cols, fmt.Sprintf("x%d", i))
	}
	for i := range o.NnzOut(int(dae.QUAD)) {
		cols = append(cols, fmt.Sprintf("q%d", i))
	}
	for i := range o.NnzIn(int(dae.Z)) {
		cols = append(cols, fmt.Sprintf("z%d", i))
	}
	return cols
}

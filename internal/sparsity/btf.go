package sparsity

import (
	"fmt"
	"slices"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// BTF is a block triangular ordering of a square pattern. Unknowns are
// grouped into strongly connected blocks and the blocks are ordered so that
// every dependency points into the same or an earlier block.
type BTF struct {
	// Perm lists the original indices in block order.
	Perm []int
	// Offset holds the block boundaries in Perm; block k is Perm[Offset[k]:Offset[k+1]].
	Offset []int
	// BlockOf maps an original index to its block.
	BlockOf []int
}

func (b BTF) NBlocks() int { return len(b.Offset) - 1 }

func (b BTF) Block(k int) []int { return b.Perm[b.Offset[k]:b.Offset[k+1]] }

// BTF computes the block triangular form of p, read as "row i depends on
// column j". The diagonal is implied. The result only depends on the pattern:
// blocks are numbered by their smallest member and ties in the topological
// order are broken by that number.
func (p Pattern) BTF() (BTF, error) {
	if !p.IsSquare() {
		return BTF{}, fmt.Errorf("%w: %s", ErrNotSquare, p)
	}
	n := p.nrow
	g := simple.NewDirectedGraph()
	for i := 0; i < n; i++ {
		g.AddNode(simple.Node(i))
	}
	for j := 0; j < n; j++ {
		for _, i := range p.Col(j) {
			if i != j {
				g.SetEdge(g.NewEdge(simple.Node(j), simple.Node(i)))
			}
		}
	}

	sccs := topo.TarjanSCC(g)
	comps := make([][]int, len(sccs))
	for k, scc := range sccs {
		members := make([]int, len(scc))
		for i, node := range scc {
			members[i] = int(node.ID())
		}
		slices.Sort(members)
		comps[k] = members
	}
	slices.SortFunc(comps, func(a, b []int) int { return a[0] - b[0] })

	blockOf := make([]int, n)
	for k, members := range comps {
		for _, i := range members {
			blockOf[i] = k
		}
	}

	cond := simple.NewDirectedGraph()
	for k := range comps {
		cond.AddNode(simple.Node(k))
	}
	for j := 0; j < n; j++ {
		for _, i := range p.Col(j) {
			from, to := blockOf[j], blockOf[i]
			if from != to && !cond.HasEdgeFromTo(int64(from), int64(to)) {
				cond.SetEdge(cond.NewEdge(simple.Node(from), simple.Node(to)))
			}
		}
	}
	order, err := topo.SortStabilized(cond, nil)
	if err != nil {
		return BTF{}, fmt.Errorf("sparsity: condensation not acyclic: %w", err)
	}

	b := BTF{
		Perm:    make([]int, 0, n),
		Offset:  make([]int, 1, len(comps)+1),
		BlockOf: make([]int, n),
	}
	for pos, node := range order {
		members := comps[node.ID()]
		for _, i := range members {
			b.BlockOf[i] = pos
		}
		b.Perm = append(b.Perm, members...)
		b.Offset = append(b.Offset, len(b.Perm))
	}
	return b, nil
}

// SpSolve propagates dependency bits through the implicit system p·x = b
// using its block triangular form. Without transpose, x[i] collects b over
// i's block and every unknown the block depends on, processed in block
// order. With transpose the dual runs in reverse block order. x and b may
// alias.
func SpSolve(p Pattern, btf BTF, x, b []Bvec, transpose bool) {
	if transpose {
		spSolveRev(p, btf, x, b)
		return
	}
	deps := p.Transpose()
	for k := 0; k < btf.NBlocks(); k++ {
		var acc Bvec
		block := btf.Block(k)
		for _, i := range block {
			acc |= b[i]
		}
		for _, i := range block {
			for _, j := range deps.Col(i) {
				if btf.BlockOf[j] < k {
					acc |= x[j]
				}
			}
		}
		for _, i := range block {
			x[i] = acc
		}
	}
}

func spSolveRev(p Pattern, btf BTF, x, b []Bvec) {
	for k := btf.NBlocks() - 1; k >= 0; k-- {
		var acc Bvec
		block := btf.Block(k)
		for _, i := range block {
			acc |= b[i]
		}
		for _, i := range block {
			for _, j := range p.Col(i) {
				if btf.BlockOf[j] > k {
					acc |= x[j]
				}
			}
		}
		for _, i := range block {
			x[i] = acc
		}
	}
}

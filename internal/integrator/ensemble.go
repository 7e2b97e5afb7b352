package integrator

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Ensemble evaluates one integrator on many independent input sets.
type Ensemble struct {
	in      *Integrator
	workers int
}

// EnsembleResult holds the outputs of every run in input order.
type EnsembleResult struct {
	Outputs [][][]float64
	Stats   []Stats
	Total   Stats
}

// NewEnsemble runs at most workers evaluations at a time; workers <= 0
// means no limit.
func NewEnsemble(in *Integrator, workers int) *Ensemble {
	return &Ensemble{in: in, workers: workers}
}

// Run evaluates every input set, each with its own memory. The first
// failure cancels the remaining runs.
func (e *Ensemble) Run(ctx context.Context, args [][][]float64) (*EnsembleResult, error) {
	res := &EnsembleResult{
		Outputs: make([][][]float64, len(args)),
		Stats:   make([]Stats, len(args)),
	}
	g, ctx := errgroup.WithContext(ctx)
	if e.workers > 0 {
		g.SetLimit(e.workers)
	}
	for i, arg := range args {
		g.Go(func() error {
			out := e.in.NewOutputs()
			m := e.in.pool.Get()
			defer e.in.pool.Put(m)
			if err := e.in.EvalMemory(ctx, m, arg, out); err != nil {
				return fmt.Errorf("run %d: %w", i, err)
			}
			res.Outputs[i] = out
			res.Stats[i] = m.Stats()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for _, s := range res.Stats {
		res.Total.add(s)
	}
	return res, nil
}

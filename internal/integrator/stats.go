package integrator

import "log/slog"

// Stats counts the work done by one evaluation.
type Stats struct {
	Steps                 int
	BackwardSteps         int
	RootfinderIterations  int
	BackwardRootfinderIts int
}

func (s Stats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("steps", s.Steps),
		slog.Int("backward_steps", s.BackwardSteps),
		slog.Int("rootfinder_iterations", s.RootfinderIterations),
		slog.Int("backward_rootfinder_iterations", s.BackwardRootfinderIts),
	)
}

func (s *Stats) add(o Stats) {
	s.Steps += o.Steps
	s.BackwardSteps += o.BackwardSteps
	s.RootfinderIterations += o.RootfinderIterations
	s.BackwardRootfinderIts += o.BackwardRootfinderIts
}

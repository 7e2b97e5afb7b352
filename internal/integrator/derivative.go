package integrator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/san-kum/dynsens/internal/function"
)

// Derivative evaluates forward or adjoint sensitivities of an integrator by
// integrating its augmented problem.
//
// Inputs are the nondifferentiated integrator inputs, the nondifferentiated
// outputs (unused, may be nil) and one group of seeds per direction. Outputs
// are one group of sensitivities per direction. Forward seeds and results
// are shaped like the integrator inputs and outputs; adjoint seeds are
// shaped like the outputs and adjoint results like the inputs.
type Derivative struct {
	name    string
	base    *Integrator
	aug     *Integrator
	ndir    int
	reverse bool
	off     AugOffset
}

// Forward returns the callable computing nfwd forward sensitivities. The
// augmented integrator is built on first request and cached.
func (in *Integrator) Forward(nfwd int) (*Derivative, error) {
	return in.derivative(nfwd, false)
}

// Reverse returns the callable computing nadj adjoint sensitivities. Only
// integrators without a backward problem and with a single output time can
// be differentiated in reverse.
func (in *Integrator) Reverse(nadj int) (*Derivative, error) {
	if in.dims.HasBackward() || in.ntout != 1 {
		return nil, fmt.Errorf("%w (%s has %d output times)", ErrTrajectoryAdjoint, in.name, in.ntout)
	}
	return in.derivative(nadj, true)
}

func (in *Integrator) derivative(n int, reverse bool) (*Derivative, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: direction count must be positive, got %d", ErrConfig, n)
	}
	in.derivMu.Lock()
	defer in.derivMu.Unlock()

	cache := &in.fwd
	prefix := "fsens"
	if reverse {
		cache, prefix = &in.adj, "asens"
	}
	if d, ok := (*cache)[n]; ok {
		return d, nil
	}

	augment := in.AugFwd
	if reverse {
		augment = in.AugAdj
	}
	prob, off, err := augment(n)
	if err != nil {
		return nil, err
	}
	opts, err := in.opts.augmented()
	if err != nil {
		return nil, err
	}
	name := fmt.Sprintf("%s%d_%s", prefix, n, in.name)
	augInt, err := New(name, in.plugin.Name, prob, opts, in.parent)
	if err != nil {
		return nil, err
	}
	if augInt.ntout != in.ntout {
		return nil, fmt.Errorf("%w: augmented options change the output grid of %s", ErrConfig, in.name)
	}

	d := &Derivative{name: name, base: in, aug: augInt, ndir: n, reverse: reverse, off: off}
	if *cache == nil {
		*cache = make(map[int]*Derivative)
	}
	(*cache)[n] = d
	in.logger.Debug("built sensitivity integrator",
		slog.String("name", name),
		slog.Bool("reverse", reverse),
		slog.String("dims", augInt.dims.String()))
	return d, nil
}

func (d *Derivative) Name() string { return d.name }

// Augmented returns the integrator of the augmented problem.
func (d *Derivative) Augmented() *Integrator { return d.aug }

// Directions returns the number of sensitivity directions.
func (d *Derivative) Directions() int { return d.ndir }

// nondiff counts the leading nondifferentiated inputs and dummy outputs of a
// derivative callable.
const nondiff = int(NumIn) + int(NumOut)

func (d *Derivative) NIn() int  { return nondiff + d.ndir*int(NumIn) }
func (d *Derivative) NOut() int { return d.ndir * int(NumOut) }

func (d *Derivative) NnzIn(i int) int {
	switch {
	case i < int(NumIn):
		return d.base.NnzIn(i)
	case i < nondiff:
		return d.base.NnzOut(i - int(NumIn))
	case d.reverse:
		return d.base.NnzOut((i - nondiff) % int(NumIn))
	default:
		return d.base.NnzIn((i - nondiff) % int(NumIn))
	}
}

func (d *Derivative) NnzOut(i int) int {
	if d.reverse {
		return d.base.NnzIn(i % int(NumOut))
	}
	return d.base.NnzOut(i % int(NumOut))
}

// adjointPair maps each input slot to the output slot whose seed it carries
// in the augmented adjoint problem, and whose augmented result holds its
// sensitivity.
var adjointPair = [NumIn]OutputSlot{X0: RXF, P: RQF, Z0: RZF, RX0: XF, RP: QF, RZ0: ZF}

func (d *Derivative) Eval(arg, res [][]float64) error {
	return d.EvalContext(context.Background(), arg, res)
}

// EvalContext integrates the augmented problem once for all directions.
func (d *Derivative) EvalContext(ctx context.Context, arg, res [][]float64) error {
	if err := function.Check(d, arg, res); err != nil {
		return fmt.Errorf("%w: %w", ErrDimensionMismatch, err)
	}
	seed := func(dir int, s int) []float64 {
		return arg[nondiff+dir*int(NumIn)+s]
	}

	augArg := make([][]float64, NumIn)
	for s := X0; s < NumIn; s++ {
		off := d.off.in(s)
		buf := make([]float64, d.aug.NnzIn(int(s)))
		if a := arg[s]; a != nil {
			copy(buf, a)
		}
		for dir := 0; dir < d.ndir; dir++ {
			var v []float64
			if d.reverse {
				v = seed(dir, int(adjointPair[s]))
			} else {
				v = seed(dir, int(s))
			}
			if v != nil {
				copy(buf[off[dir+1]:off[dir+2]], v)
			}
		}
		augArg[s] = buf
	}

	augRes := make([][]float64, NumOut)
	for s := XF; s < NumOut; s++ {
		augRes[s] = make([]float64, d.aug.NnzOut(int(s)))
	}
	m := d.aug.pool.Get()
	defer d.aug.pool.Put(m)
	if err := d.aug.EvalMemory(ctx, m, augArg, augRes); err != nil {
		return err
	}

	for dir := 0; dir < d.ndir; dir++ {
		if d.reverse {
			for s := X0; s < NumIn; s++ {
				src := adjointPair[s]
				scatter(res[dir*int(NumOut)+int(s)], augRes[src], d.off.out(src), dir+1)
			}
			continue
		}
		for s := XF; s < NumOut; s++ {
			scatter(res[dir*int(NumOut)+int(s)], augRes[s], d.off.out(s), dir+1)
		}
	}
	return nil
}

// scatter copies block b of every time block of src into dst.
func scatter(dst, src []float64, off []int, b int) {
	if dst == nil {
		return
	}
	width := off[len(off)-1]
	lo, hi := off[b], off[b+1]
	if width == 0 || hi == lo {
		return
	}
	n := hi - lo
	for j := 0; j*width < len(src); j++ {
		copy(dst[j*n:(j+1)*n], src[j*width+lo:j*width+hi])
	}
}

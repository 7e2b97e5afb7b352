package integrator

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/dynsens/internal/dae"
	"github.com/san-kum/dynsens/internal/function"
	"github.com/san-kum/dynsens/internal/symbolic"
)

// forwardEuler is a minimal explicit discretization for ODEs without a
// backward problem.
type forwardEuler struct{}

func (forwardEuler) Name() string { return "test_euler" }

func (forwardEuler) Setup(in *Integrator, h float64) (F, G function.Function, err error) {
	d := in.Dims()
	o := in.Oracle()
	nin := []int{1, d.NX, 0, d.NP}
	nout := []int{d.NX, 0, d.NQ}
	F = function.New("F", nin, nout, func(arg, res [][]float64) error {
		ode := make([]float64, d.NX)
		quad := make([]float64, d.NQ)
		oarg := make([][]float64, dae.NumIn)
		oarg[dae.T], oarg[dae.X], oarg[dae.P] = arg[StepT], arg[StepX], arg[StepP]
		ores := make([][]float64, dae.NumOut)
		ores[dae.ODE], ores[dae.QUAD] = ode, quad
		if err := o.Eval(oarg, ores); err != nil {
			return err
		}
		for i := range res[StepXF] {
			res[StepXF][i] = arg[StepX][i] + h*ode[i]
		}
		for i := range res[StepQF] {
			res[StepQF][i] = h * quad[i]
		}
		return nil
	})
	return F, nil, nil
}

func init() {
	Register(Plugin{
		Name: "test_euler",
		Doc:  "forward Euler for package tests",
		Creator: func(in *Integrator) (Scheme, error) {
			return NewFixedStep(in, forwardEuler{})
		},
	})
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func decayProblem(t *testing.T) *dae.Problem {
	t.Helper()
	prob, err := dae.FromMap(map[string]symbolic.Matrix{
		"x":    symbolic.Named("x"),
		"p":    symbolic.Named("k"),
		"ode":  symbolic.ColumnOf(symbolic.MustParse("-k*x")),
		"quad": symbolic.ColumnOf(symbolic.MustParse("x")),
	})
	require.NoError(t, err)
	return prob
}

func TestParseOptions(t *testing.T) {
	opts, err := ParseOptions(map[string]any{
		"grid":                      []float64{0, 0.5, 1},
		"output_t0":                 true,
		"number_of_finite_elements": 5,
		"augmented_options":         map[string]any{"number_of_finite_elements": 10},
	})
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0.5, 1}, opts.grid())
	assert.True(t, opts.OutputT0)
	assert.Equal(t, 5, opts.NumberOfFiniteElements)
	assert.Equal(t, DefaultRootfinder, opts.Rootfinder)

	aug, err := opts.augmented()
	require.NoError(t, err)
	assert.Equal(t, 10, aug.NumberOfFiniteElements)
	assert.Equal(t, 5, opts.NumberOfFiniteElements)

	def := DefaultOptions()
	assert.Equal(t, []float64{DefaultT0, DefaultTf}, def.grid())

	tests := []struct {
		name string
		dict map[string]any
	}{
		{"unknown key", map[string]any{"abstol": 1e-8}},
		{"wrong type", map[string]any{"grid": "0 1"}},
		{"wrong scalar", map[string]any{"number_of_finite_elements": "many"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseOptions(tt.dict)
			assert.ErrorIs(t, err, ErrConfig)
		})
	}
}

func TestSlotNames(t *testing.T) {
	for s := X0; s < NumIn; s++ {
		got, err := InputIndex(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
	for s := XF; s < NumOut; s++ {
		got, err := OutputIndex(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
	_, err := InputIndex("u")
	assert.ErrorIs(t, err, ErrConfig)
}

func TestAugOffset(t *testing.T) {
	in := &Integrator{dims: Dims{NX: 2, NZ: 1, NQ: 1, NP: 3, NRX: 0, NRZ: 0, NRQ: 0, NRP: 0}}

	fwd := in.AugOffset(2, 0)
	assert.Equal(t, []int{0, 2, 4, 6}, fwd.X)
	assert.Equal(t, []int{0, 1, 2, 3}, fwd.Z)
	assert.Equal(t, []int{0, 3, 6, 9}, fwd.P)
	assert.Equal(t, []int{0, 0, 0, 0}, fwd.RX)

	adj := in.AugOffset(0, 2)
	assert.Equal(t, []int{0, 2, 2, 2}, adj.X)
	assert.Equal(t, []int{0, 0, 2, 4}, adj.RX)
	assert.Equal(t, []int{0, 0, 1, 2}, adj.RZ)
	assert.Equal(t, []int{0, 0, 3, 6}, adj.RQ)
	assert.Equal(t, []int{0, 0, 1, 2}, adj.RP)
	assert.Equal(t, adj.RX, adj.out(RXF))
	assert.Equal(t, adj.P, adj.in(P))
}

func TestScatter(t *testing.T) {
	// Two time blocks of width 5 split as [0,1) [1,3) [3,5).
	src := []float64{0, 1, 2, 3, 4, 10, 11, 12, 13, 14}
	off := []int{0, 1, 3, 5}
	dst := make([]float64, 4)
	scatter(dst, src, off, 1)
	assert.Equal(t, []float64{1, 2, 11, 12}, dst)
	scatter(dst, src, off, 2)
	assert.Equal(t, []float64{3, 4, 13, 14}, dst)
	scatter(nil, src, off, 1)
}

func TestMemoryLayout(t *testing.T) {
	d := Dims{NX: 2, NZ: 1, NQ: 1, NP: 1, NRX: 2, NRQ: 1}
	m := newMemory(d, Layout{NZ: 3, NRZ: 2, NK: 4, Tape: true})
	assert.Len(t, m.x, 2)
	assert.Len(t, m.disc, 3)
	assert.Len(t, m.bdisc, 2)
	assert.Equal(t, 5, m.TapeLen())
	x, z := m.Tape(4)
	assert.Len(t, x, 2)
	assert.Nil(t, z)

	// Views must not overlap.
	m.xTape[4][1] = 7
	assert.Equal(t, 7.0, m.arena[len(m.arena)-3*4-1])
	m.x[0] = 1
	assert.Zero(t, m.z[0])

	noTape := newMemory(d, Layout{NK: 4})
	assert.Zero(t, noTape.TapeLen())
}

func TestRegistry(t *testing.T) {
	assert.True(t, HasPlugin("test_euler"))
	assert.Contains(t, Plugins(), "test_euler")
	doc, err := Doc("test_euler")
	require.NoError(t, err)
	assert.Equal(t, "forward Euler for package tests", doc)

	_, err = LoadPlugin("nope")
	assert.ErrorIs(t, err, ErrUnknownSolver)
	assert.ErrorIs(t, err, ErrConfig)
	assert.Panics(t, func() { Register(Plugin{Name: "nil"}) })
}

func TestEvalProtocol(t *testing.T) {
	opts, err := ParseOptions(map[string]any{"grid": []float64{0, 1, 2}, "output_t0": true})
	require.NoError(t, err)
	in, err := New("decay", "test_euler", decayProblem(t), opts, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, 3, in.NumOutputTimes())
	assert.Equal(t, 3, in.NnzOut(int(XF)))
	assert.Equal(t, 0, in.NnzOut(int(RXF)))

	res := in.NewOutputs()
	require.NoError(t, in.Eval([][]float64{{1}, {0}, nil, nil, nil, nil}, res))
	assert.Equal(t, []float64{1, 1, 1}, res[XF])
	assert.InDeltaSlice(t, []float64{0, 1, 2}, res[QF], 1e-12)

	// Nil outputs are skipped.
	res = make([][]float64, NumOut)
	res[QF] = make([]float64, 3)
	require.NoError(t, in.Eval([][]float64{{1}, {1}, nil, nil, nil, nil}, res))
	// Ten steps of h=0.1 with x shrinking by 0.9 each step.
	assert.InDelta(t, 1-math.Pow(0.9, 10), res[QF][1], 1e-12)

	// Nil inputs read as zeros.
	res = in.NewOutputs()
	require.NoError(t, in.Eval(make([][]float64, NumIn), res))
	assert.Equal(t, []float64{0, 0, 0}, res[XF])

	err = in.Eval(make([][]float64, NumIn), make([][]float64, 2))
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestEvalMemoryFromOtherIntegrator(t *testing.T) {
	coarse, err := ParseOptions(map[string]any{"number_of_finite_elements": 2})
	require.NoError(t, err)
	a, err := New("decay", "test_euler", decayProblem(t), coarse, quietLogger())
	require.NoError(t, err)
	b, err := New("decay", "test_euler", decayProblem(t), DefaultOptions(), quietLogger())
	require.NoError(t, err)

	arg := [][]float64{{1}, {1}, nil, nil, nil, nil}
	err = b.EvalMemory(context.Background(), a.NewMemory(), arg, b.NewOutputs())
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	require.NoError(t, b.EvalMemory(context.Background(), b.NewMemory(), arg, b.NewOutputs()))
}

func TestStepIndexing(t *testing.T) {
	opts, err := ParseOptions(map[string]any{"grid": []float64{0, 0.25, 1}, "number_of_finite_elements": 2})
	require.NoError(t, err)
	in, err := New("decay", "test_euler", decayProblem(t), opts, quietLogger())
	require.NoError(t, err)

	s := in.Scheme().(*FixedStep)
	assert.Equal(t, 0.5, s.StepSize())
	assert.Equal(t, 2, s.NumSteps())
	// A grid point inside a step reports the end of that step going forward
	// and its start going backward.
	assert.Equal(t, 1, s.stepsBefore(0.25))
	assert.Equal(t, 0, s.stepsAfter(0.25))
	assert.Equal(t, 2, s.stepsBefore(5))
	assert.Equal(t, 0, s.stepsAfter(-1))

	m := in.NewMemory()
	res := in.NewOutputs()
	require.NoError(t, in.EvalMemory(context.Background(), m, [][]float64{{1}, {1}, nil, nil, nil, nil}, res))
	assert.Equal(t, []float64{0.5, 0.25}, res[XF])
	assert.Equal(t, 2, m.Stats().Steps)
	assert.Equal(t, 2, m.Step())
	assert.Equal(t, 1.0, m.Time())
}

func TestEvalErrorWrapping(t *testing.T) {
	boom := errors.New("boom")
	o := dae.NewFuncOracle("failing", [dae.NumIn]int{1, 1, 0, 0, 0, 0, 0}, [dae.NumOut]int{1, 0, 0, 0, 0, 0},
		func(arg, res [][]float64) error { return boom })
	in, err := NewFromOracle("failing", "test_euler", o, DefaultOptions(), quietLogger())
	require.NoError(t, err)

	err = in.Eval([][]float64{{1}, nil, nil, nil, nil, nil}, in.NewOutputs())
	require.ErrorIs(t, err, boom)
	var ee *EvalError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "advance", ee.Phase)
	assert.Equal(t, 0, ee.Step)
	assert.Contains(t, ee.Error(), "integrator advance at step 0")
}

func TestConstructionChecks(t *testing.T) {
	bad := dae.NewFuncOracle("bad", [dae.NumIn]int{1, 2, 0, 0, 0, 0, 0}, [dae.NumOut]int{1, 0, 0, 0, 0, 0},
		func(arg, res [][]float64) error { return nil })
	_, err := NewFromOracle("bad", "test_euler", bad, DefaultOptions(), quietLogger())
	assert.ErrorIs(t, err, ErrConfig)

	twoTimes := dae.NewFuncOracle("t2", [dae.NumIn]int{2, 1, 0, 0, 0, 0, 0}, [dae.NumOut]int{1, 0, 0, 0, 0, 0},
		func(arg, res [][]float64) error { return nil })
	_, err = NewFromOracle("t2", "test_euler", twoTimes, DefaultOptions(), quietLogger())
	assert.ErrorIs(t, err, ErrConfig)
}

func TestSparseStateWarning(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	_, err := New("decay", "test_euler", decayProblem(t), DefaultOptions(), logger)
	require.NoError(t, err)
	assert.NotContains(t, buf.String(), "sparse states")
}

func TestStatsLogValue(t *testing.T) {
	s := Stats{Steps: 3, RootfinderIterations: 7}
	s.add(Stats{Steps: 2, BackwardSteps: 1})
	assert.Equal(t, 5, s.Steps)
	assert.Equal(t, 1, s.BackwardSteps)
	v := s.LogValue()
	assert.Equal(t, slog.KindGroup, v.Kind())
	assert.Len(t, v.Group(), 4)
}

func TestImplicitBlockHasDiagonal(t *testing.T) {
	in, err := New("decay", "test_euler", decayProblem(t), DefaultOptions(), quietLogger())
	require.NoError(t, err)
	jac, btf := in.SparsityDAE()
	assert.True(t, jac.Has(0, 0))
	assert.Equal(t, 1, btf.NBlocks())
	jacB, _ := in.SparsityRDAE()
	assert.Zero(t, jacB.Nnz())
}

package integrators_test

import (
	"bytes"
	"context"
	"log/slog"
	"math"
	"slices"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/dynsens/internal/dae"
	"github.com/san-kum/dynsens/internal/function"
	"github.com/san-kum/dynsens/internal/integrator"
	"github.com/san-kum/dynsens/internal/integrators"
	"github.com/san-kum/dynsens/internal/rootfinder"
	"github.com/san-kum/dynsens/internal/sparsity"
	"github.com/san-kum/dynsens/internal/symbolic"
)

// problem builds a DAE from role names: input roles list symbol names and
// output roles list expressions.
func problem(roles map[string][]string) *dae.Problem {
	m := make(map[string]symbolic.Matrix)
	for role, items := range roles {
		if slices.Contains(dae.InputNames(), role) {
			m[role] = symbolic.Named(items...)
			continue
		}
		es := make([]*symbolic.Expr, len(items))
		for i, src := range items {
			es[i] = symbolic.MustParse(src)
		}
		m[role] = symbolic.ColumnOf(es...)
	}
	prob, err := dae.FromMap(m)
	Expect(err).NotTo(HaveOccurred())
	return prob
}

func options(dict map[string]any) integrator.Options {
	opts, err := integrator.ParseOptions(dict)
	Expect(err).NotTo(HaveOccurred())
	return opts
}

func inputs(x0, p, z0, rx0, rp, rz0 []float64) [][]float64 {
	return [][]float64{x0, p, z0, rx0, rp, rz0}
}

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

var solvers = []string{"euler", "rk", "implicit_euler"}

var _ = Describe("Registry", func() {
	It("registers every solver with documentation", func() {
		for _, name := range solvers {
			Expect(integrator.HasPlugin(name)).To(BeTrue(), name)
			doc, err := integrator.Doc(name)
			Expect(err).NotTo(HaveOccurred())
			Expect(doc).NotTo(BeEmpty())
		}
		Expect(integrator.Plugins()).To(ContainElements(solvers))
	})

	It("fails construction for an unknown solver", func() {
		_, err := integrator.New("f", "cvodes", problem(map[string][]string{
			"x": {"x"}, "ode": {"-x"},
		}), integrator.DefaultOptions(), quiet())
		Expect(err).To(MatchError(integrator.ErrUnknownSolver))
		Expect(err).To(MatchError(integrator.ErrConfig))
		Expect(integrator.HasPlugin("cvodes")).To(BeFalse())
	})
})

var _ = Describe("Fixed-step solvers", func() {
	ramp := func() *dae.Problem {
		return problem(map[string][]string{"x": {"x"}, "p": {"p"}, "ode": {"p"}})
	}

	for _, solver := range solvers {
		Context(solver, func() {
			It("reports every grid point including t0", func() {
				in, err := integrator.New("ramp", solver, ramp(),
					options(map[string]any{"grid": []float64{0, 1, 2}, "output_t0": true}), quiet())
				Expect(err).NotTo(HaveOccurred())
				Expect(in.NumOutputTimes()).To(Equal(3))

				res := in.NewOutputs()
				Expect(in.Eval(inputs([]float64{1}, []float64{2}, nil, nil, nil, nil), res)).To(Succeed())
				Expect(res[integrator.XF]).To(HaveLen(3))
				for i, want := range []float64{1, 3, 5} {
					Expect(res[integrator.XF][i]).To(BeNumerically("~", want, 1e-9))
				}
			})

			It("reports only the final state on a two-point grid", func() {
				in, err := integrator.New("ramp", solver, ramp(), integrator.DefaultOptions(), quiet())
				Expect(err).NotTo(HaveOccurred())
				res := in.NewOutputs()
				Expect(res[integrator.XF]).To(HaveLen(1))
				Expect(in.Eval(inputs([]float64{0}, []float64{3}, nil, nil, nil, nil), res)).To(Succeed())
				Expect(res[integrator.XF][0]).To(BeNumerically("~", 3, 1e-9))
			})

			It("rejects a non-positive number of finite elements", func() {
				_, err := integrator.New("ramp", solver, ramp(),
					options(map[string]any{"number_of_finite_elements": 0}), quiet())
				Expect(err).To(MatchError(integrator.ErrConfig))
			})

			It("rejects buffers of the wrong length", func() {
				in, err := integrator.New("ramp", solver, ramp(), integrator.DefaultOptions(), quiet())
				Expect(err).NotTo(HaveOccurred())
				err = in.Eval(inputs([]float64{0, 0}, nil, nil, nil, nil, nil), in.NewOutputs())
				Expect(err).To(MatchError(integrator.ErrDimensionMismatch))
			})
		})
	}

	It("takes a single Euler step with one finite element", func() {
		in, err := integrator.New("ramp", "euler", ramp(),
			options(map[string]any{"number_of_finite_elements": 1}), quiet())
		Expect(err).NotTo(HaveOccurred())
		res := in.NewOutputs()
		Expect(in.Eval(inputs([]float64{0}, []float64{1}, nil, nil, nil, nil), res)).To(Succeed())
		Expect(res[integrator.XF][0]).To(Equal(1.0))
	})

	It("integrates decay and its quadrature with rk", func() {
		prob := problem(map[string][]string{"x": {"x"}, "ode": {"-x"}, "quad": {"x"}})
		in, err := integrator.New("decay", "rk", prob, integrator.DefaultOptions(), quiet())
		Expect(err).NotTo(HaveOccurred())
		res := in.NewOutputs()
		Expect(in.Eval(inputs([]float64{1}, nil, nil, nil, nil, nil), res)).To(Succeed())
		Expect(res[integrator.XF][0]).To(BeNumerically("~", math.Exp(-1), 1e-7))
		Expect(res[integrator.QF][0]).To(BeNumerically("~", 1-math.Exp(-1), 1e-7))
	})

	It("rejects algebraic states in explicit schemes", func() {
		prob := problem(map[string][]string{"x": {"x"}, "z": {"z"}, "ode": {"-z"}, "alg": {"z - x"}})
		_, err := integrator.New("dae", "rk", prob, integrator.DefaultOptions(), quiet())
		Expect(err).To(MatchError(integrators.ErrAlgebraic))
		Expect(err).To(MatchError(integrator.ErrConfig))
	})
})

var _ = Describe("implicit_euler", func() {
	It("keeps the state constant under a zero right-hand side", func() {
		prob := problem(map[string][]string{"x": {"x"}, "z": {"z"}, "ode": {"0"}, "alg": {"z"}})
		grid := []float64{0, 0.5, 1, 1.5}
		in, err := integrator.New("still", "implicit_euler", prob,
			options(map[string]any{"grid": grid, "output_t0": true}), quiet())
		Expect(err).NotTo(HaveOccurred())

		res := in.NewOutputs()
		Expect(in.Eval(inputs([]float64{4.25}, nil, nil, nil, nil, nil), res)).To(Succeed())
		Expect(res[integrator.XF]).To(Equal([]float64{4.25, 4.25, 4.25, 4.25}))
		for _, z := range res[integrator.ZF] {
			Expect(z).To(BeNumerically("~", 0, 1e-12))
		}
	})

	It("solves an index-1 DAE", func() {
		prob := problem(map[string][]string{"x": {"x"}, "z": {"z"}, "ode": {"-z"}, "alg": {"z - x"}})
		in, err := integrator.New("dae", "implicit_euler", prob,
			options(map[string]any{"number_of_finite_elements": 400}), quiet())
		Expect(err).NotTo(HaveOccurred())

		res := in.NewOutputs()
		Expect(in.Eval(inputs([]float64{1}, nil, []float64{1}, nil, nil, nil), res)).To(Succeed())
		Expect(res[integrator.XF][0]).To(BeNumerically("~", math.Exp(-1), 2e-3))
		Expect(res[integrator.ZF][0]).To(BeNumerically("~", res[integrator.XF][0], 1e-10))
	})

	It("counts rootfinder iterations and logs statistics", func() {
		var buf bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&buf, nil))
		prob := problem(map[string][]string{"x": {"x"}, "ode": {"-x*x"}})
		in, err := integrator.New("quadratic", "implicit_euler", prob,
			options(map[string]any{"print_stats": true}), logger)
		Expect(err).NotTo(HaveOccurred())

		m := in.NewMemory()
		Expect(in.EvalMemory(context.Background(), m, inputs([]float64{1}, nil, nil, nil, nil, nil), in.NewOutputs())).To(Succeed())
		Expect(m.Stats().Steps).To(Equal(integrator.DefaultNK))
		Expect(m.Stats().RootfinderIterations).To(BeNumerically(">=", integrator.DefaultNK))
		Expect(buf.String()).To(ContainSubstring("integration statistics"))
	})

	It("fails construction for an unknown rootfinder strategy", func() {
		prob := problem(map[string][]string{"x": {"x"}, "ode": {"-x"}})
		_, err := integrator.New("f", "implicit_euler", prob,
			options(map[string]any{"rootfinder": "bisection"}), quiet())
		Expect(err).To(MatchError(rootfinder.ErrUnknownStrategy))
		Expect(err).To(MatchError(integrator.ErrConfig))
	})

	It("passes rootfinder options through", func() {
		prob := problem(map[string][]string{"x": {"x"}, "ode": {"-x"}})
		in, err := integrator.New("f", "implicit_euler", prob, options(map[string]any{
			"rootfinder":         "fast_newton",
			"rootfinder_options": map[string]any{"max_iter": 7},
		}), quiet())
		Expect(err).NotTo(HaveOccurred())
		s, ok := in.Scheme().(*integrator.ImplicitFixedStep)
		Expect(ok).To(BeTrue())
		Expect(s.Rootfinder().Strategy()).To(Equal("fast_newton"))
		Expect(s.Rootfinder().Options().MaxIter).To(Equal(7))
		Expect(s.BackwardRootfinder()).To(BeNil())
	})
})

// recordingEuler wraps Euler and keeps a copy of every taped state handed
// to the backward step.
type recordingEuler struct {
	*integrators.Euler
	seen *[][]float64
}

func (r recordingEuler) Setup(in *integrator.Integrator, h float64) (F, G function.Function, err error) {
	F, G, err = r.Euler.Setup(in, h)
	if err != nil || G == nil {
		return F, G, err
	}
	nin := make([]int, G.NIn())
	for i := range nin {
		nin[i] = G.NnzIn(i)
	}
	nout := make([]int, G.NOut())
	for i := range nout {
		nout[i] = G.NnzOut(i)
	}
	inner := G
	G = function.New("recording_G", nin, nout, func(arg, res [][]float64) error {
		*r.seen = append(*r.seen, slices.Clone(arg[integrator.BStepX]))
		return inner.Eval(arg, res)
	})
	return F, G, nil
}

var _ = Describe("Backward sweep", func() {
	It("replays the taped states bit for bit", func() {
		var seen [][]float64
		integrator.Register(integrator.Plugin{
			Name: "recording_euler",
			Doc:  "test only",
			Creator: func(in *integrator.Integrator) (integrator.Scheme, error) {
				return integrator.NewFixedStep(in, recordingEuler{Euler: integrators.NewEuler(), seen: &seen})
			},
		})
		prob := problem(map[string][]string{
			"x": {"x0", "x1"}, "ode": {"x1", "-sin(x0)"},
			"rx": {"l0", "l1"}, "rode": {"-cos(x0)*l1", "l0"}, "rquad": {"x0*l0"},
		})
		in, err := integrator.New("pendulum", "recording_euler", prob,
			options(map[string]any{"number_of_finite_elements": 7}), quiet())
		Expect(err).NotTo(HaveOccurred())

		m := in.NewMemory()
		res := in.NewOutputs()
		Expect(in.EvalMemory(context.Background(), m,
			inputs([]float64{0.3, 0}, nil, nil, []float64{1, 0}, nil, nil), res)).To(Succeed())
		Expect(m.TapeLen()).To(Equal(8))
		Expect(seen).To(HaveLen(7))
		for i, x := range seen {
			taped, _ := m.Tape(7 - 1 - i)
			Expect(x).To(Equal(taped))
		}
		Expect(m.Stats().BackwardSteps).To(Equal(7))
		Expect(res[integrator.RQF]).To(HaveLen(1))
	})
})

var _ = Describe("Sensitivities", func() {
	decay := func() *dae.Problem {
		return problem(map[string][]string{
			"x": {"x"}, "p": {"p"}, "ode": {"-p*x"}, "quad": {"x*x"},
		})
	}
	x0, p := 1.0, 0.5

	for _, solver := range solvers {
		Context(solver, func() {
			It("agrees between forward and adjoint mode", func() {
				in, err := integrator.New("decay", solver, decay(),
					options(map[string]any{"number_of_finite_elements": 40}), quiet())
				Expect(err).NotTo(HaveOccurred())

				fwd, err := in.Forward(1)
				Expect(err).NotTo(HaveOccurred())
				arg := make([][]float64, fwd.NIn())
				arg[integrator.X0], arg[integrator.P] = []float64{x0}, []float64{p}
				seeds := int(integrator.NumIn) + int(integrator.NumOut)
				arg[seeds+int(integrator.P)] = []float64{1}
				res := make([][]float64, fwd.NOut())
				res[integrator.XF], res[integrator.QF] = make([]float64, 1), make([]float64, 1)
				Expect(fwd.Eval(arg, res)).To(Succeed())
				dxdp, dqdp := res[integrator.XF][0], res[integrator.QF][0]

				adj, err := in.Reverse(2)
				Expect(err).NotTo(HaveOccurred())
				arg = make([][]float64, adj.NIn())
				arg[integrator.X0], arg[integrator.P] = []float64{x0}, []float64{p}
				arg[seeds+int(integrator.XF)] = []float64{1}
				arg[seeds+int(integrator.NumIn)+int(integrator.QF)] = []float64{1}
				res = make([][]float64, adj.NOut())
				for i := range res {
					res[i] = make([]float64, adj.NnzOut(i))
				}
				Expect(adj.Eval(arg, res)).To(Succeed())

				Expect(res[integrator.P][0]).To(BeNumerically("~", dxdp, 1e-8))
				Expect(res[int(integrator.NumOut)+int(integrator.P)][0]).To(BeNumerically("~", dqdp, 1e-8))
				Expect(dxdp).To(BeNumerically("~", -math.Exp(-p), 5e-2))

				// Finite differences on the plain integrator.
				eval := func(pv float64) float64 {
					out := in.NewOutputs()
					Expect(in.Eval(inputs([]float64{x0}, []float64{pv}, nil, nil, nil, nil), out)).To(Succeed())
					return out[integrator.XF][0]
				}
				const h = 1e-6
				Expect(dxdp).To(BeNumerically("~", (eval(p+h)-eval(p-h))/(2*h), 1e-6))

				again, err := in.Forward(1)
				Expect(err).NotTo(HaveOccurred())
				Expect(again).To(BeIdenticalTo(fwd))
			})
		})
	}

	It("refuses adjoints of trajectories", func() {
		in, err := integrator.New("decay", "rk", decay(),
			options(map[string]any{"grid": []float64{0, 1, 2}}), quiet())
		Expect(err).NotTo(HaveOccurred())
		_, err = in.Reverse(1)
		Expect(err).To(MatchError(integrator.ErrTrajectoryAdjoint))
	})

	It("refuses to augment opaque oracles", func() {
		o := dae.NewFuncOracle("opaque", [dae.NumIn]int{1, 1, 0, 0, 0, 0, 0}, [dae.NumOut]int{1, 0, 0, 0, 0, 0},
			func(arg, res [][]float64) error {
				res[dae.ODE][0] = -function.Zeros(arg[dae.X], 1)[0]
				return nil
			})
		in, err := integrator.NewFromOracle("opaque", "euler", o, integrator.DefaultOptions(), quiet())
		Expect(err).NotTo(HaveOccurred())
		_, err = in.Forward(1)
		Expect(err).To(MatchError(integrator.ErrNotSymbolic))
	})

	It("leaves the problem unchanged with zero forward directions", func() {
		prob := decay()
		in, err := integrator.New("decay", "rk", prob, integrator.DefaultOptions(), quiet())
		Expect(err).NotTo(HaveOccurred())
		aug, off, err := in.AugFwd(0)
		Expect(err).NotTo(HaveOccurred())
		for o := range prob.Out {
			Expect(aug.Out[o].NZ).To(HaveLen(len(prob.Out[o].NZ)))
			for k := range prob.Out[o].NZ {
				Expect(symbolic.Equal(aug.Out[o].NZ[k], prob.Out[o].NZ[k])).To(BeTrue())
			}
		}
		Expect(off.X).To(Equal([]int{0, 1}))
	})
})

var _ = Describe("Sparsity propagation", func() {
	// x0 grows on its own, x1 is driven by p; the quadrature reads x0.
	prob := func() *dae.Problem {
		return problem(map[string][]string{
			"x": {"a", "b"}, "p": {"k"}, "ode": {"a", "k*b"}, "quad": {"a"},
		})
	}

	It("propagates dependencies forward without false negatives", func() {
		in, err := integrator.New("split", "rk", prob(),
			options(map[string]any{"grid": []float64{0, 0.5, 1}}), quiet())
		Expect(err).NotTo(HaveOccurred())

		arg := make([][]sparsity.Bvec, integrator.NumIn)
		arg[integrator.X0] = []sparsity.Bvec{1 << 0, 1 << 1}
		arg[integrator.P] = []sparsity.Bvec{1 << 2}
		res := make([][]sparsity.Bvec, integrator.NumOut)
		res[integrator.XF] = make([]sparsity.Bvec, 4)
		res[integrator.QF] = make([]sparsity.Bvec, 2)
		in.SpFwd(arg, res)
		Expect(res[integrator.XF]).To(Equal([]sparsity.Bvec{1, 6, 1, 6}))
		Expect(res[integrator.QF]).To(Equal([]sparsity.Bvec{1, 1}))

		// Every input that moves an output numerically must carry a bit.
		base := []float64{0.7, -0.2, 1.3}
		eval := func(v []float64) []float64 {
			out := in.NewOutputs()
			Expect(in.Eval(inputs(v[:2], v[2:], nil, nil, nil, nil), out)).To(Succeed())
			return append(out[integrator.XF], out[integrator.QF]...)
		}
		expectSound(append(slices.Clone(res[integrator.XF]), res[integrator.QF]...), base, eval)
	})

	It("propagates dependencies in reverse and clears the seeds", func() {
		in, err := integrator.New("split", "rk", prob(), integrator.DefaultOptions(), quiet())
		Expect(err).NotTo(HaveOccurred())

		arg := make([][]sparsity.Bvec, integrator.NumIn)
		arg[integrator.X0] = make([]sparsity.Bvec, 2)
		arg[integrator.P] = make([]sparsity.Bvec, 1)
		res := make([][]sparsity.Bvec, integrator.NumOut)
		res[integrator.XF] = []sparsity.Bvec{1 << 0, 1 << 1}
		res[integrator.QF] = []sparsity.Bvec{1 << 2}
		in.SpRev(arg, res)
		Expect(arg[integrator.X0]).To(Equal([]sparsity.Bvec{1 | 4, 2}))
		Expect(arg[integrator.P]).To(Equal([]sparsity.Bvec{2}))
		Expect(res[integrator.XF]).To(Equal([]sparsity.Bvec{0, 0}))
		Expect(res[integrator.QF]).To(Equal([]sparsity.Bvec{0}))
	})

	Context("with algebraic states", func() {
		// x and z are coupled through the algebraic equation, which also
		// reads the parameter.
		coupled := func() *integrator.Integrator {
			prob := problem(map[string][]string{
				"x": {"x"}, "z": {"z"}, "p": {"k"},
				"ode": {"-z"}, "alg": {"z - k*x"}, "quad": {"z"},
			})
			in, err := integrator.New("coupled", "implicit_euler", prob, integrator.DefaultOptions(), quiet())
			Expect(err).NotTo(HaveOccurred())
			return in
		}

		It("spreads the dependencies over the whole implicit block", func() {
			in := coupled()
			arg := make([][]sparsity.Bvec, integrator.NumIn)
			arg[integrator.X0] = []sparsity.Bvec{1 << 0}
			arg[integrator.P] = []sparsity.Bvec{1 << 1}
			res := make([][]sparsity.Bvec, integrator.NumOut)
			res[integrator.XF] = make([]sparsity.Bvec, 1)
			res[integrator.ZF] = make([]sparsity.Bvec, 1)
			res[integrator.QF] = make([]sparsity.Bvec, 1)
			in.SpFwd(arg, res)
			Expect(res[integrator.XF]).To(Equal([]sparsity.Bvec{3}))
			Expect(res[integrator.ZF]).To(Equal([]sparsity.Bvec{3}))
			Expect(res[integrator.QF]).To(Equal([]sparsity.Bvec{3}))

			eval := func(v []float64) []float64 {
				out := in.NewOutputs()
				Expect(in.Eval(inputs(v[:1], v[1:], nil, nil, nil, nil), out)).To(Succeed())
				return slices.Concat(out[integrator.XF], out[integrator.ZF], out[integrator.QF])
			}
			expectSound(slices.Concat(res[integrator.XF], res[integrator.ZF], res[integrator.QF]),
				[]float64{0.8, 1.5}, eval)
		})

		It("never marks the algebraic guess in reverse", func() {
			in := coupled()
			arg := make([][]sparsity.Bvec, integrator.NumIn)
			arg[integrator.X0] = make([]sparsity.Bvec, 1)
			arg[integrator.P] = make([]sparsity.Bvec, 1)
			arg[integrator.Z0] = make([]sparsity.Bvec, 1)
			res := make([][]sparsity.Bvec, integrator.NumOut)
			res[integrator.XF] = []sparsity.Bvec{1 << 0}
			res[integrator.ZF] = []sparsity.Bvec{1 << 1}
			res[integrator.QF] = []sparsity.Bvec{1 << 2}
			in.SpRev(arg, res)
			Expect(arg[integrator.X0]).To(Equal([]sparsity.Bvec{7}))
			Expect(arg[integrator.P]).To(Equal([]sparsity.Bvec{7}))
			Expect(arg[integrator.Z0]).To(Equal([]sparsity.Bvec{0}))
			Expect(res[integrator.ZF]).To(Equal([]sparsity.Bvec{0}))
		})
	})

	Context("with a backward problem", func() {
		// The backward state reads the forward state, the parameter and the
		// backward parameter; the backward quadrature reads both states.
		adjoint := func() *integrator.Integrator {
			prob := problem(map[string][]string{
				"x": {"x"}, "p": {"k"}, "rx": {"lam"}, "rp": {"w"},
				"ode": {"-k*x"}, "rode": {"-k*lam + w*x"}, "rquad": {"-x*lam"},
			})
			in, err := integrator.New("backward", "rk", prob, integrator.DefaultOptions(), quiet())
			Expect(err).NotTo(HaveOccurred())
			return in
		}

		It("propagates every input into the backward outputs", func() {
			in := adjoint()
			arg := make([][]sparsity.Bvec, integrator.NumIn)
			arg[integrator.X0] = []sparsity.Bvec{1 << 0}
			arg[integrator.P] = []sparsity.Bvec{1 << 1}
			arg[integrator.RX0] = []sparsity.Bvec{1 << 2}
			arg[integrator.RP] = []sparsity.Bvec{1 << 3}
			res := make([][]sparsity.Bvec, integrator.NumOut)
			res[integrator.XF] = make([]sparsity.Bvec, 1)
			res[integrator.RXF] = make([]sparsity.Bvec, 1)
			res[integrator.RQF] = make([]sparsity.Bvec, 1)
			in.SpFwd(arg, res)
			Expect(res[integrator.XF]).To(Equal([]sparsity.Bvec{3}))
			Expect(res[integrator.RXF]).To(Equal([]sparsity.Bvec{15}))
			Expect(res[integrator.RQF]).To(Equal([]sparsity.Bvec{15}))

			eval := func(v []float64) []float64 {
				out := in.NewOutputs()
				Expect(in.Eval(inputs(v[0:1], v[1:2], nil, v[2:3], v[3:4], nil), out)).To(Succeed())
				return slices.Concat(out[integrator.XF], out[integrator.RXF], out[integrator.RQF])
			}
			expectSound(slices.Concat(res[integrator.XF], res[integrator.RXF], res[integrator.RQF]),
				[]float64{1.2, 0.4, 0.9, -0.3}, eval)
		})

		It("reaches the forward and backward inputs in reverse", func() {
			in := adjoint()
			arg := make([][]sparsity.Bvec, integrator.NumIn)
			arg[integrator.X0] = make([]sparsity.Bvec, 1)
			arg[integrator.P] = make([]sparsity.Bvec, 1)
			arg[integrator.RX0] = make([]sparsity.Bvec, 1)
			arg[integrator.RP] = make([]sparsity.Bvec, 1)
			res := make([][]sparsity.Bvec, integrator.NumOut)
			res[integrator.XF] = []sparsity.Bvec{1 << 0}
			res[integrator.RXF] = []sparsity.Bvec{1 << 1}
			res[integrator.RQF] = []sparsity.Bvec{1 << 2}
			in.SpRev(arg, res)
			Expect(arg[integrator.X0]).To(Equal([]sparsity.Bvec{7}))
			Expect(arg[integrator.P]).To(Equal([]sparsity.Bvec{7}))
			Expect(arg[integrator.RX0]).To(Equal([]sparsity.Bvec{6}))
			Expect(arg[integrator.RP]).To(Equal([]sparsity.Bvec{6}))
			Expect(res[integrator.XF]).To(Equal([]sparsity.Bvec{0}))
			Expect(res[integrator.RXF]).To(Equal([]sparsity.Bvec{0}))
			Expect(res[integrator.RQF]).To(Equal([]sparsity.Bvec{0}))
		})
	})
})

// expectSound perturbs each input of eval in turn and requires a bit j on
// every output that moved when input j did.
func expectSound(bits []sparsity.Bvec, base []float64, eval func([]float64) []float64) {
	ref := eval(base)
	Expect(ref).To(HaveLen(len(bits)))
	for j := range base {
		v := slices.Clone(base)
		v[j] += 1e-3
		for i, y := range eval(v) {
			if y != ref[i] {
				Expect(bits[i]&(1<<j)).NotTo(BeZero(), "output %d depends on input %d", i, j)
			}
		}
	}
}

var _ = Describe("Ensemble", func() {
	It("matches sequential evaluation", func() {
		prob := problem(map[string][]string{"x": {"x"}, "p": {"p"}, "ode": {"-p*x"}})
		in, err := integrator.New("decay", "rk", prob, integrator.DefaultOptions(), quiet())
		Expect(err).NotTo(HaveOccurred())

		var args [][][]float64
		for i := range 8 {
			args = append(args, inputs([]float64{1}, []float64{float64(i) / 4}, nil, nil, nil, nil))
		}
		out, err := integrator.NewEnsemble(in, 3).Run(context.Background(), args)
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Outputs).To(HaveLen(8))
		Expect(out.Total.Steps).To(Equal(8 * integrator.DefaultNK))
		for i, arg := range args {
			res := in.NewOutputs()
			Expect(in.Eval(arg, res)).To(Succeed())
			Expect(out.Outputs[i][integrator.XF]).To(Equal(res[integrator.XF]))
		}
	})

	It("stops on cancellation", func() {
		prob := problem(map[string][]string{"x": {"x"}, "ode": {"-x"}})
		in, err := integrator.New("decay", "euler", prob, integrator.DefaultOptions(), quiet())
		Expect(err).NotTo(HaveOccurred())
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err = integrator.NewEnsemble(in, 0).Run(ctx, [][][]float64{inputs([]float64{1}, nil, nil, nil, nil, nil)})
		Expect(err).To(MatchError(context.Canceled))
	})
})

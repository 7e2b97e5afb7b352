package main

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/san-kum/dynsens/internal/dae"
	"github.com/san-kum/dynsens/internal/integrator"
	"github.com/san-kum/dynsens/internal/sparsity"
	"github.com/san-kum/dynsens/internal/storage"
	"github.com/san-kum/dynsens/internal/viz"
)

func runProblem(cmd *cobra.Command, args []string) error {
	_, in, arg, err := buildProblem(cmd, args)
	if err != nil {
		return err
	}

	m := in.NewMemory()
	res := in.NewOutputs()
	start := time.Now()
	if err := in.EvalMemory(cmd.Context(), m, arg, res); err != nil {
		return err
	}
	elapsed := time.Since(start)

	r, err := storage.NewResult(in, res, m.Stats())
	if err != nil {
		return err
	}
	fmt.Printf("problem: %s\nsolver: %s\n%s\nelapsed: %s\n\n", in.Name(), in.Solver(), in.Dims(), elapsed)
	if err := printTrajectory(r.Columns, r.Times, r.Rows); err != nil {
		return err
	}
	printBackward(r.RXF, r.RQF, r.RZF)

	if noSave {
		return nil
	}
	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}
	runID, err := st.Save(r)
	if err != nil {
		return err
	}
	fmt.Printf("\nsaved: %s\n", runID)
	return nil
}

func printTrajectory(cols []string, times []float64, rows [][]float64) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "t\t"+strings.Join(cols, "\t"))
	for i, row := range rows {
		fmt.Fprintf(w, "%.6g", times[i])
		for _, v := range row {
			fmt.Fprintf(w, "\t%.6g", v)
		}
		fmt.Fprintln(w)
	}
	return w.Flush()
}

func printBackward(rxf, rqf, rzf []float64) {
	for _, out := range []struct {
		name string
		v    []float64
	}{{"rxf", rxf}, {"rqf", rqf}, {"rzf", rzf}} {
		if len(out.v) > 0 {
			fmt.Printf("%s: %v\n", out.name, out.v)
		}
	}
}

// names returns the symbol names of an oracle input, or indexed names.
func names(o dae.Oracle, role dae.Input, prefix string) []string {
	if sym, ok := o.(dae.Symbolic); ok && sym.Problem().In[role].IsSymbolic() {
		return sym.Problem().In[role].Names()
	}
	out := make([]string, o.NnzIn(int(role)))
	for i := range out {
		out[i] = fmt.Sprintf("%s%d", prefix, i)
	}
	return out
}

func quadNames(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("q%d", i)
	}
	return out
}

// lastBlock returns the final time block of a trajectory output.
func lastBlock(v []float64, n int) []float64 {
	return v[len(v)-n:]
}

func runSens(cmd *cobra.Command, args []string) error {
	_, in, arg, err := buildProblem(cmd, args)
	if err != nil {
		return err
	}
	d := in.Dims()
	xNames := names(in.Oracle(), dae.X, "x")
	pNames := names(in.Oracle(), dae.P, "p")
	qNames := quadNames(d.NQ)

	reverse := cmd.Flags().Changed("adj")
	n := nfwd
	if reverse {
		n = nadj
	} else if !cmd.Flags().Changed("fwd") {
		n = d.NX + d.NP
	}

	var deriv *integrator.Derivative
	if reverse {
		deriv, err = in.Reverse(n)
	} else {
		deriv, err = in.Forward(n)
	}
	if err != nil {
		return err
	}

	full := make([][]float64, deriv.NIn())
	copy(full, arg)
	for i := int(integrator.NumIn); i < deriv.NIn(); i++ {
		full[i] = make([]float64, deriv.NnzIn(i))
	}
	seeds := int(integrator.NumIn) + int(integrator.NumOut)
	for dir := range n {
		base := seeds + dir*int(integrator.NumIn)
		if reverse {
			setUnit(dir, full[base+int(integrator.XF)], full[base+int(integrator.QF)], d.NX, in.NumOutputTimes())
		} else {
			setUnit(dir, full[base+int(integrator.X0)], full[base+int(integrator.P)], d.NX, 1)
		}
	}
	res := make([][]float64, deriv.NOut())
	for i := range res {
		res[i] = make([]float64, deriv.NnzOut(i))
	}

	start := time.Now()
	if err := deriv.EvalContext(cmd.Context(), full, res); err != nil {
		return err
	}
	kind := "forward"
	if reverse {
		kind = "adjoint"
	}
	fmt.Printf("%s: %d %s directions in %s\n\n", deriv.Name(), n, kind, time.Since(start))

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	var seedNames []string
	if reverse {
		seedNames = append(prefixed("xf.", xNames), prefixed("qf.", qNames)...)
		fmt.Fprintln(w, "seed\t"+strings.Join(append(prefixed("d/dx0.", xNames), prefixed("d/dp.", pNames)...), "\t"))
	} else {
		seedNames = append(prefixed("d/dx0.", xNames), prefixed("d/dp.", pNames)...)
		fmt.Fprintln(w, "direction\t"+strings.Join(append(prefixed("xf.", xNames), prefixed("qf.", qNames)...), "\t"))
	}
	for dir := range n {
		label := fmt.Sprintf("#%d", dir)
		if dir < len(seedNames) {
			label = seedNames[dir]
		}
		fmt.Fprint(w, label)
		var row []float64
		out := res[dir*int(integrator.NumOut):]
		if reverse {
			row = append(slices.Clone(out[integrator.X0]), out[integrator.P]...)
		} else {
			row = append(slices.Clone(lastBlock(out[integrator.XF], d.NX)), lastBlock(out[integrator.QF], d.NQ)...)
		}
		for _, v := range row {
			fmt.Fprintf(w, "\t%.6g", v)
		}
		fmt.Fprintln(w)
	}
	return w.Flush()
}

// setUnit seeds entry dir of the concatenation [a; b], placing a seed for a
// trajectory output in its final block.
func setUnit(dir int, a, b []float64, na, blocks int) {
	switch {
	case dir < na && len(a) > 0:
		a[len(a)-na+dir] = 1
	case dir >= na && len(b) > 0 && dir-na < len(b)/blocks:
		nb := len(b) / blocks
		b[len(b)-nb+dir-na] = 1
	}
}

func prefixed(prefix string, names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = prefix + n
	}
	return out
}

func showSparsity(cmd *cobra.Command, args []string) error {
	_, in, _, err := buildProblem(cmd, args)
	if err != nil {
		return err
	}
	d := in.Dims()
	styles := viz.NewStyles(viz.Themes[0])
	xz := append(names(in.Oracle(), dae.X, "x"), names(in.Oracle(), dae.Z, "z")...)
	pNames := names(in.Oracle(), dae.P, "p")

	jac, btf := in.SparsityDAE()
	fmt.Println(styles.Box(fmt.Sprintf("implicit DAE jacobian (%d blocks)", btf.NBlocks()), styles.Spy(jac, xz, xz)))

	if d.NX+d.NP > 64 {
		logger.Warn("too many inputs for one bit per entry, skipping dependency pattern", "inputs", d.NX+d.NP)
		return nil
	}
	arg := make([][]sparsity.Bvec, integrator.NumIn)
	arg[integrator.X0] = make([]sparsity.Bvec, d.NX)
	arg[integrator.P] = make([]sparsity.Bvec, d.NP)
	for i := range arg[integrator.X0] {
		arg[integrator.X0][i] = 1 << i
	}
	for i := range arg[integrator.P] {
		arg[integrator.P][i] = 1 << (d.NX + i)
	}
	res := make([][]sparsity.Bvec, integrator.NumOut)
	res[integrator.XF] = make([]sparsity.Bvec, in.NnzOut(int(integrator.XF)))
	res[integrator.QF] = make([]sparsity.Bvec, in.NnzOut(int(integrator.QF)))
	in.SpFwd(arg, res)

	var rows, cols []int
	outs := append(slices.Clone(lastBlockBits(res[integrator.XF], d.NX)), lastBlockBits(res[integrator.QF], d.NQ)...)
	for i, bits := range outs {
		for j := range d.NX + d.NP {
			if bits&(1<<j) != 0 {
				rows = append(rows, i)
				cols = append(cols, j)
			}
		}
	}
	dep := sparsity.Triplet(len(outs), d.NX+d.NP, rows, cols)
	rowNames := append(prefixed("xf.", names(in.Oracle(), dae.X, "x")), prefixed("qf.", quadNames(d.NQ))...)
	colNames := append(names(in.Oracle(), dae.X, "x"), pNames...)
	fmt.Println()
	fmt.Println(styles.Box("final outputs against x0 and p", styles.Spy(dep, rowNames, colNames)))
	return nil
}

func lastBlockBits(v []sparsity.Bvec, n int) []sparsity.Bvec {
	return v[len(v)-n:]
}

func runEnsemble(cmd *cobra.Command, args []string) error {
	_, in, arg, err := buildProblem(cmd, args)
	if err != nil {
		return err
	}
	d := in.Dims()
	if param < 0 || param >= d.NP {
		return fmt.Errorf("parameter index %d out of range (np=%d)", param, d.NP)
	}
	if samples < 1 {
		return fmt.Errorf("need at least one sample, got %d", samples)
	}

	values := make([]float64, samples)
	sets := make([][][]float64, samples)
	for i := range values {
		values[i] = from
		if samples > 1 {
			values[i] = from + (to-from)*float64(i)/float64(samples-1)
		}
		set := make([][]float64, integrator.NumIn)
		for s, v := range arg {
			set[s] = slices.Clone(v)
		}
		if set[integrator.P] == nil {
			set[integrator.P] = make([]float64, d.NP)
		}
		set[integrator.P][param] = values[i]
		sets[i] = set
	}

	start := time.Now()
	out, err := integrator.NewEnsemble(in, workers).Run(cmd.Context(), sets)
	if err != nil {
		return err
	}
	fmt.Printf("%d runs in %s (%d steps)\n\n", samples, time.Since(start), out.Total.Steps)

	pName := names(in.Oracle(), dae.P, "p")[param]
	xNames := names(in.Oracle(), dae.X, "x")
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, pName+"\t"+strings.Join(append(prefixed("xf.", xNames), prefixed("qf.", quadNames(d.NQ))...), "\t"))
	first := make([]float64, samples)
	for i, res := range out.Outputs {
		fmt.Fprintf(w, "%.6g", values[i])
		xf := lastBlock(res[integrator.XF], d.NX)
		for _, v := range append(slices.Clone(xf), lastBlock(res[integrator.QF], d.NQ)...) {
			fmt.Fprintf(w, "\t%.6g", v)
		}
		fmt.Fprintln(w)
		if len(xf) > 0 {
			first[i] = xf[0]
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if samples > 1 && d.NX > 0 {
		fmt.Println()
		fmt.Println(asciigraph.Plot(first,
			asciigraph.Height(10),
			asciigraph.Width(60),
			asciigraph.Caption(fmt.Sprintf("xf.%s against %s", xNames[0], pName)),
		))
	}
	return nil
}

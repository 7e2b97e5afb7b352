package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/dynsens/internal/config"
	"github.com/san-kum/dynsens/internal/integrator"
	"github.com/san-kum/dynsens/internal/rootfinder"
	"github.com/san-kum/dynsens/internal/storage"
	"github.com/san-kum/dynsens/internal/viz"
)

func listSolvers(cmd *cobra.Command, args []string) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SOLVER\tDESCRIPTION")
	for _, name := range integrator.Plugins() {
		doc, _ := integrator.Doc(name)
		fmt.Fprintf(w, "%s\t%s\n", name, firstLine(doc))
	}
	fmt.Fprintln(w, "\nROOTFINDER\tDESCRIPTION")
	for _, name := range rootfinder.Strategies() {
		doc, _ := rootfinder.Doc(name)
		fmt.Fprintf(w, "%s\t%s\n", name, firstLine(doc))
	}
	return w.Flush()
}

func firstLine(s string) string {
	for i, c := range s {
		if c == '\n' {
			return s[:i]
		}
	}
	return s
}

func showDoc(cmd *cobra.Command, args []string) error {
	doc, err := integrator.Doc(args[0])
	if err != nil {
		return err
	}
	fmt.Println(doc)
	return nil
}

func showPresets(cmd *cobra.Command, args []string) error {
	if len(args) == 1 {
		pf, err := config.GetPreset(args[0])
		if err != nil {
			return err
		}
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(pf)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PRESET\tSOLVER\tDESCRIPTION")
	for _, name := range config.ListPresets() {
		pf := config.Presets[name]
		fmt.Fprintf(w, "%s\t%s\t%s\n", name, pf.Solver, pf.Description)
	}
	return w.Flush()
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPROBLEM\tTIME\tSOLVER\tPOINTS\tSTEPS")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\n",
			run.ID,
			run.Problem,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Solver,
			run.Points,
			run.Stats.Steps,
		)
	}
	return w.Flush()
}

func loadRun(runID string) (*storage.RunMetadata, *storage.Trajectory, error) {
	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return nil, nil, err
	}
	tr, err := st.LoadTrajectory(runID)
	if err != nil {
		return nil, nil, err
	}
	return meta, tr, nil
}

func showRun(cmd *cobra.Command, args []string) error {
	meta, tr, err := loadRun(args[0])
	if err != nil {
		return err
	}
	fmt.Printf("run: %s\nproblem: %s\nsolver: %s\n%s\n", meta.ID, meta.Problem, meta.Solver, meta.Dims)
	fmt.Printf("steps: %d forward, %d backward, %d rootfinder iterations\n\n",
		meta.Stats.Steps, meta.Stats.BackwardSteps, meta.Stats.RootfinderIterations+meta.Stats.BackwardRootfinderIts)
	if err := printTrajectory(tr.Columns, tr.Times, tr.Rows); err != nil {
		return err
	}
	printBackward(meta.RXF, meta.RQF, meta.RZF)
	return nil
}

func plotRun(cmd *cobra.Command, args []string) error {
	meta, tr, err := loadRun(args[0])
	if err != nil {
		return err
	}
	if len(tr.Rows) == 0 {
		return fmt.Errorf("no data to plot")
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("problem: %s\n", meta.Problem)
	fmt.Printf("samples: %d\n\n", len(tr.Rows))

	cols := make([]int, 0, len(tr.Columns))
	switch {
	case column >= len(tr.Columns):
		return fmt.Errorf("column %d out of range (%d columns)", column, len(tr.Columns))
	case column >= 0:
		cols = append(cols, column)
	default:
		for j := range min(len(tr.Columns), 6) {
			cols = append(cols, j)
		}
	}

	for _, j := range cols {
		graph := asciigraph.Plot(tr.Column(j),
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption(fmt.Sprintf("%s vs time [%.4g, %.4g]", tr.Columns[j], tr.Times[0], tr.Times[len(tr.Times)-1])),
		)
		fmt.Println(graph)
		fmt.Println()
	}
	return nil
}

func exportRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	if outPath != "" {
		return st.ExportJSONFile(args[0], outPath)
	}
	return st.ExportJSON(args[0], os.Stdout)
}

func browseRun(cmd *cobra.Command, args []string) error {
	meta, tr, err := loadRun(args[0])
	if err != nil {
		return err
	}
	return viz.RunBrowser(meta, tr)
}

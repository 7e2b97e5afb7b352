package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/san-kum/dynsens/internal/config"
	"github.com/san-kum/dynsens/internal/integrator"
	_ "github.com/san-kum/dynsens/internal/integrators"
)

var (
	dataDir     string
	verbose     bool
	problemFile string
	solver      string
	nk          int
	tf          float64
	printStats  bool
	noSave      bool
	nfwd        int
	nadj        int
	column      int
	outPath     string
	param       int
	from        float64
	to          float64
	samples     int
	workers     int

	logger = slog.Default()
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "dynsens",
		Short:         "fixed-step DAE integration with forward and adjoint sensitivities",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
			slog.SetDefault(logger)
		},
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".dynsens", "data directory")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	runCmd := &cobra.Command{
		Use:   "run [preset]",
		Short: "integrate a preset or problem file and store the run",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runProblem,
	}
	problemFlags(runCmd)
	runCmd.Flags().BoolVar(&printStats, "stats", false, "log integrator statistics")
	runCmd.Flags().BoolVar(&noSave, "no-save", false, "do not store the run")

	sensCmd := &cobra.Command{
		Use:   "sens [preset]",
		Short: "forward or adjoint sensitivities of the final state and quadratures",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSens,
	}
	problemFlags(sensCmd)
	sensCmd.Flags().IntVar(&nfwd, "fwd", 0, "forward directions (unit seeds over x0 then p)")
	sensCmd.Flags().IntVar(&nadj, "adj", 0, "adjoint directions (unit seeds over xf then qf)")
	sensCmd.MarkFlagsMutuallyExclusive("fwd", "adj")

	sparsityCmd := &cobra.Command{
		Use:   "sparsity [preset]",
		Short: "show the DAE jacobian and the input-output dependency pattern",
		Args:  cobra.MaximumNArgs(1),
		RunE:  showSparsity,
	}
	problemFlags(sparsityCmd)

	ensembleCmd := &cobra.Command{
		Use:   "ensemble [preset]",
		Short: "sweep one parameter and integrate the samples concurrently",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runEnsemble,
	}
	problemFlags(ensembleCmd)
	ensembleCmd.Flags().IntVar(&param, "param", 0, "index of the swept parameter")
	ensembleCmd.Flags().Float64Var(&from, "from", 0, "first value")
	ensembleCmd.Flags().Float64Var(&to, "to", 1, "last value")
	ensembleCmd.Flags().IntVar(&samples, "n", 10, "number of samples")
	ensembleCmd.Flags().IntVar(&workers, "workers", 0, "concurrent evaluations (0 for no limit)")

	solversCmd := &cobra.Command{
		Use:   "solvers",
		Short: "list integrator plugins and rootfinder strategies",
		RunE:  listSolvers,
	}

	docCmd := &cobra.Command{
		Use:   "doc [solver]",
		Short: "show the documentation of a solver plugin",
		Args:  cobra.ExactArgs(1),
		RunE:  showDoc,
	}

	presetsCmd := &cobra.Command{
		Use:   "presets [name]",
		Short: "list presets, or print one as a problem file",
		Args:  cobra.MaximumNArgs(1),
		RunE:  showPresets,
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list stored runs",
		RunE:  listRuns,
	}

	showCmd := &cobra.Command{
		Use:   "show [run_id]",
		Short: "print a stored run",
		Args:  cobra.ExactArgs(1),
		RunE:  showRun,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot the trajectory of a stored run",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().IntVar(&column, "column", -1, "plot only this column")

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "export a stored run as json",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}
	exportCmd.Flags().StringVarP(&outPath, "out", "o", "", "output file (default stdout)")

	browseCmd := &cobra.Command{
		Use:   "browse [run_id]",
		Short: "browse a stored run interactively",
		Args:  cobra.ExactArgs(1),
		RunE:  browseRun,
	}

	rootCmd.AddCommand(runCmd, sensCmd, sparsityCmd, ensembleCmd, solversCmd, docCmd,
		presetsCmd, listCmd, showCmd, plotCmd, exportCmd, browseCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func problemFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&problemFile, "file", "f", "", "problem file (yaml)")
	cmd.Flags().StringVar(&solver, "solver", "", "override the solver plugin")
	cmd.Flags().IntVar(&nk, "nk", 0, "override number_of_finite_elements")
	cmd.Flags().Float64Var(&tf, "tf", 0, "override the final time")
}

// loadProblem reads the problem file or preset named on the command line
// and applies the flag overrides.
func loadProblem(cmd *cobra.Command, args []string) (*config.ProblemFile, error) {
	var pf *config.ProblemFile
	var err error
	switch {
	case problemFile != "":
		pf, err = config.Load(problemFile)
	case len(args) == 1:
		pf, err = config.GetPreset(args[0])
	default:
		return nil, fmt.Errorf("need a preset name or --file (presets: %v)", config.ListPresets())
	}
	if err != nil {
		return nil, err
	}

	if pf.Options == nil {
		pf.Options = map[string]any{}
	}
	if cmd.Flags().Changed("solver") {
		pf.Solver = solver
	}
	if cmd.Flags().Changed("nk") {
		pf.Options["number_of_finite_elements"] = nk
	}
	if cmd.Flags().Changed("tf") {
		pf.Options["tf"] = tf
		delete(pf.Options, "grid")
	}
	if f := cmd.Flags().Lookup("stats"); f != nil && f.Changed {
		pf.Options["print_stats"] = printStats
	}
	return pf, nil
}

func buildProblem(cmd *cobra.Command, args []string) (*config.ProblemFile, *integrator.Integrator, [][]float64, error) {
	pf, err := loadProblem(cmd, args)
	if err != nil {
		return nil, nil, nil, err
	}
	in, err := pf.Build(logger)
	if err != nil {
		return nil, nil, nil, err
	}
	arg, err := pf.Args()
	if err != nil {
		return nil, nil, nil, err
	}
	return pf, in, arg, nil
}

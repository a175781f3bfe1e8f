package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"path/filepath"
	"text/tabwriter"

	"github.com/banshee-data/hypotrack/internal/config"
	"github.com/banshee-data/hypotrack/internal/fsutil"
	"github.com/banshee-data/hypotrack/internal/hypothesis"
	"github.com/banshee-data/hypotrack/internal/jsonio"
	"github.com/banshee-data/hypotrack/internal/monitoring"
	"github.com/banshee-data/hypotrack/internal/report"
	"github.com/banshee-data/hypotrack/internal/solver"
	"github.com/banshee-data/hypotrack/internal/store"
)

// latestRun selects the newest stored learn run for -run.
const latestRun = "latest"

// commonFlags are shared by every command that reads a model file.
type commonFlags struct {
	model   string
	config  string
	db      string
	verbose bool
}

func newFlagSet(name string, stderr io.Writer, c *commonFlags) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&c.model, "model", "", "Hypothesis graph JSON file (required)")
	fs.StringVar(&c.config, "config", "", "Settings JSON merged over the defaults")
	fs.StringVar(&c.db, "db", "", "SQLite database for run history")
	fs.BoolVar(&c.verbose, "verbose", false, "Log solver progress")
	return fs
}

func parseFlags(fs *flag.FlagSet, args []string, c *commonFlags) error {
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("%w: unexpected arguments %v", errUsage, fs.Args())
	}
	if c.model == "" {
		return fmt.Errorf("%w: -model is required", errUsage)
	}
	monitoring.SetVerbose(c.verbose)
	return nil
}

// loadModel reads the model file and returns a registered Model. Settings
// are layered: built-in defaults, then -config, then the model's own
// "settings" object.
func loadModel(c *commonFlags) (*hypothesis.Model, *config.Settings, error) {
	cfg := config.DefaultSettings()
	if c.config != "" {
		override, err := config.LoadSettings(c.config)
		if err != nil {
			return nil, nil, err
		}
		cfg = cfg.Merge(override)
	}

	doc, err := jsonio.ReadGraph(c.model)
	if err != nil {
		return nil, nil, err
	}
	cfg = cfg.Merge(doc.Settings)

	m := hypothesis.NewModel(hypothesis.SettingsFromConfig(cfg))
	if err := m.Ingest(doc.Graph); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", c.model, err)
	}
	if err := m.Link(); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", c.model, err)
	}
	return m, cfg, nil
}

func newInferer(cfg *config.Settings) (solver.Inferer, error) {
	switch cfg.GetSolver() {
	case config.SolverILP:
		return solver.ILP{Tolerance: cfg.GetILPTolerance(), MaxNodes: cfg.GetILPMaxNodes()}, nil
	case config.SolverBruteForce:
		return solver.BruteForce{MaxVariables: cfg.GetBruteForceMaxVariables()}, nil
	default:
		return nil, fmt.Errorf("unknown solver %q", cfg.GetSolver())
	}
}

func newLearner(cfg *config.Settings, curve *report.LearningCurve) *solver.Learner {
	return &solver.Learner{
		Epochs:         cfg.GetLearningEpochs(),
		LearningRate:   cfg.GetLearningRate(),
		Regularization: cfg.GetRegularization(),
		LossWeight:     cfg.GetLossWeight(),
		Tolerance:      cfg.GetLearningTolerance(),
		OnEpoch:        curve.Record,
	}
}

func openStore(path string) (*store.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: -db is required", errUsage)
	}
	return store.Open(path)
}

func writeResult(path string, stdout io.Writer, res hypothesis.Result) error {
	if path == "" || path == "-" {
		return jsonio.EncodeResult(stdout, res)
	}
	return jsonio.WriteResult(path, res)
}

func handleInfer(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var c commonFlags
	fs := newFlagSet("infer", stderr, &c)
	weightsPath := fs.String("weights", "", "Weights JSON file")
	runID := fs.String("run", "", "Load weights from a stored learn run (uuid or \"latest\"); needs -db")
	out := fs.String("out", "-", "Result JSON file (- for stdout)")
	dotPath := fs.String("dot", "", "Also write the solved graph in dot format")
	if err := parseFlags(fs, args, &c); err != nil {
		return err
	}
	if (*weightsPath == "") == (*runID == "") {
		return fmt.Errorf("%w: exactly one of -weights or -run is required", errUsage)
	}

	m, cfg, err := loadModel(&c)
	if err != nil {
		return err
	}
	inf, err := newInferer(cfg)
	if err != nil {
		return err
	}

	var db *store.DB
	if c.db != "" {
		if db, err = openStore(c.db); err != nil {
			return err
		}
		defer db.Close()
	}

	var weights []float64
	weightsRun := ""
	if *runID != "" {
		if db == nil {
			return fmt.Errorf("%w: -run needs -db", errUsage)
		}
		weightsRun = *runID
		if weightsRun == latestRun {
			r, err := db.LatestRun(ctx, store.KindLearn)
			if err != nil {
				return err
			}
			weightsRun = r.ID
		}
		if weights, err = db.LoadWeights(ctx, weightsRun); err != nil {
			return err
		}
	} else if weights, err = jsonio.ReadWeights(*weightsPath); err != nil {
		return err
	}

	sol, err := m.Infer(ctx, inf, weights)
	if err != nil {
		return err
	}
	if rep := m.VerifySolution(sol); !rep.Valid() {
		return fmt.Errorf("solver returned an inconsistent labeling: %s", rep)
	}
	res, err := m.Export(sol)
	if err != nil {
		return err
	}
	if err := writeResult(*out, stdout, res); err != nil {
		return err
	}
	if *dotPath != "" {
		err := fsutil.WriteAtomic(fsutil.OSFileSystem{}, *dotPath, func(w io.Writer) error {
			return m.ToDot(w, sol)
		})
		if err != nil {
			return fmt.Errorf("failed to write dot file: %w", err)
		}
	}

	if db != nil {
		run, err := db.SaveResult(ctx, modelRef(c.model), weightsRun, len(weights), res)
		if err != nil {
			return err
		}
		monitoring.Logf("infer: stored run %s", run.ID)
	}
	return nil
}

func handleLearn(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var c commonFlags
	fs := newFlagSet("learn", stderr, &c)
	gtPath := fs.String("gt", "", "Ground-truth result JSON file (required)")
	out := fs.String("out", "", "Weights JSON file")
	plotPath := fs.String("plot", "", "Write the learning curve as an image (png, svg, pdf)")
	chartPath := fs.String("chart", "", "Write an HTML bar chart of the learned weights")
	if err := parseFlags(fs, args, &c); err != nil {
		return err
	}
	if *gtPath == "" {
		return fmt.Errorf("%w: -gt is required", errUsage)
	}
	if *out == "" && c.db == "" {
		return fmt.Errorf("%w: -out or -db is required", errUsage)
	}

	m, cfg, err := loadModel(&c)
	if err != nil {
		return err
	}
	gt, err := jsonio.ReadResult(*gtPath)
	if err != nil {
		return err
	}
	inf, err := newInferer(cfg)
	if err != nil {
		return err
	}
	descriptions, err := m.WeightDescriptions()
	if err != nil {
		return err
	}

	curve := &report.LearningCurve{}
	weights, err := m.Learn(ctx, solver.NewEngine(inf, newLearner(cfg, curve)), gt)
	if err != nil {
		return err
	}
	if epoch, objective, ok := curve.Best(); ok {
		monitoring.Logf("learn: best objective %.6g at epoch %d of %d", objective, epoch, curve.Len())
	}

	if *out != "" {
		if err := jsonio.WriteWeights(*out, weights, descriptions); err != nil {
			return err
		}
	}
	if *plotPath != "" {
		if err := report.SaveLearningCurve(*plotPath, curve); err != nil {
			return err
		}
	}
	if *chartPath != "" {
		if err := report.SaveWeightsChart(*chartPath, "Learned weights: "+filepath.Base(c.model), descriptions, weights); err != nil {
			return err
		}
	}

	if c.db != "" {
		db, err := openStore(c.db)
		if err != nil {
			return err
		}
		defer db.Close()
		run, err := db.SaveWeights(ctx, modelRef(c.model), weights, descriptions)
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, run.ID)
	}
	return nil
}

func handleVerify(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var c commonFlags
	fs := newFlagSet("verify", stderr, &c)
	resultPath := fs.String("result", "", "Result JSON file")
	runID := fs.String("run", "", "Load the result of a stored infer run; needs -db")
	if err := parseFlags(fs, args, &c); err != nil {
		return err
	}
	if (*resultPath == "") == (*runID == "") {
		return fmt.Errorf("%w: exactly one of -result or -run is required", errUsage)
	}

	m, _, err := loadModel(&c)
	if err != nil {
		return err
	}
	res, err := readResult(ctx, *resultPath, *runID, c.db)
	if err != nil {
		return err
	}
	if err := m.BuildProblem(); err != nil {
		return err
	}
	sol, err := m.Labeling(res)
	if err != nil {
		return err
	}

	rep := m.VerifySolution(sol)
	if rep.Valid() {
		fmt.Fprintln(stdout, "ok")
		return nil
	}
	fmt.Fprintln(stdout, rep)
	return fmt.Errorf("result violates %d constraint(s)", len(rep.Violations))
}

func readResult(ctx context.Context, path, runID, dbPath string) (hypothesis.Result, error) {
	if runID == "" {
		return jsonio.ReadResult(path)
	}
	db, err := openStore(dbPath)
	if err != nil {
		return hypothesis.Result{}, err
	}
	defer db.Close()
	return db.LoadResult(ctx, runID)
}

func handleDot(args []string, stdout, stderr io.Writer) error {
	var c commonFlags
	fs := newFlagSet("dot", stderr, &c)
	resultPath := fs.String("result", "", "Color the graph by this result JSON file")
	out := fs.String("out", "-", "Dot output file (- for stdout)")
	if err := parseFlags(fs, args, &c); err != nil {
		return err
	}

	m, _, err := loadModel(&c)
	if err != nil {
		return err
	}
	if err := m.BuildProblem(); err != nil {
		return err
	}
	var sol solver.Labeling
	if *resultPath != "" {
		res, err := jsonio.ReadResult(*resultPath)
		if err != nil {
			return err
		}
		if sol, err = m.Labeling(res); err != nil {
			return err
		}
	}

	if *out == "" || *out == "-" {
		return m.ToDot(stdout, sol)
	}
	return fsutil.WriteAtomic(fsutil.OSFileSystem{}, *out, func(w io.Writer) error {
		return m.ToDot(w, sol)
	})
}

func handleWeights(args []string, stdout, stderr io.Writer) error {
	var c commonFlags
	fs := newFlagSet("weights", stderr, &c)
	weightsPath := fs.String("weights", "", "Print these weight values next to their descriptions")
	chartPath := fs.String("chart", "", "Write an HTML bar chart of -weights")
	if err := parseFlags(fs, args, &c); err != nil {
		return err
	}
	if *chartPath != "" && *weightsPath == "" {
		return fmt.Errorf("%w: -chart needs -weights", errUsage)
	}

	m, _, err := loadModel(&c)
	if err != nil {
		return err
	}
	descriptions, err := m.WeightDescriptions()
	if err != nil {
		return err
	}

	var weights []float64
	if *weightsPath != "" {
		if weights, err = jsonio.ReadWeights(*weightsPath); err != nil {
			return err
		}
		if len(weights) != len(descriptions) {
			return fmt.Errorf("%w: %s has %d weights, model needs %d",
				hypothesis.ErrStructure, *weightsPath, len(weights), len(descriptions))
		}
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	for i, d := range descriptions {
		if weights != nil {
			fmt.Fprintf(tw, "%d\t%s\t%g\n", i, d, weights[i])
		} else {
			fmt.Fprintf(tw, "%d\t%s\n", i, d)
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if *chartPath != "" {
		return report.SaveWeightsChart(*chartPath, "Weights: "+filepath.Base(*weightsPath), descriptions, weights)
	}
	return nil
}

func handleRuns(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dbPath := fs.String("db", "", "SQLite database (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	db, err := openStore(*dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	version, err := db.SchemaVersion()
	if err != nil {
		return err
	}
	runs, err := db.Runs(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "# schema version %d, %d run(s)\n", version, len(runs))
	for _, r := range runs {
		fmt.Fprintln(stdout, r)
	}
	return nil
}

// modelRef is the model path recorded with stored runs.
func modelRef(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cwbudde/annealcycle/internal/anneal"
	"github.com/cwbudde/annealcycle/internal/cycle"
	"github.com/cwbudde/annealcycle/internal/graph"
	"github.com/cwbudde/annealcycle/internal/opt"
	"github.com/cwbudde/annealcycle/internal/store"
)

var (
	graphPath   string
	method      string
	iters       int
	temperature float64
	cooling     float64
	popSize     int
	seed        int64
	runTimeout  time.Duration
	traceRun    bool
	traceEvery  int
	saveRun     bool
	dataDir     string
	jsonOutput  bool
	patience    int
	window      int
	threshold   float64
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a single search",
	Long: `Loads a graph file (JSON or TOML), searches for a short Hamiltonian
cycle and prints the best ordering and its cost.

Ctrl-C or --timeout stops the search early; the best ordering found so far
is still reported.`,
	RunE: runSearch,
}

// addSearchFlags registers the flags shared by run and resume.
func addSearchFlags(c *cobra.Command) {
	c.Flags().StringVar(&method, "method", opt.MethodAnneal, "Search method: anneal, mayfly")
	c.Flags().IntVar(&iters, "iters", anneal.DefaultIterations, "Iterations (mayfly: optimizer generations)")
	c.Flags().Float64Var(&temperature, "temp", anneal.DefaultInitialTemperature, "Initial temperature")
	c.Flags().Float64Var(&cooling, "cooling", anneal.DefaultCoolingRate, "Cooling rate")
	c.Flags().IntVar(&popSize, "pop", opt.MinPopSize, "Population size (mayfly)")
	c.Flags().Int64Var(&seed, "seed", 0, "Random seed (0 uses the default seed)")
	c.Flags().DurationVar(&runTimeout, "timeout", 0, "Stop after this long and report the best so far (0 = no limit)")
	c.Flags().BoolVar(&traceRun, "trace", false, "Write a JSONL trace under --data-dir")
	c.Flags().IntVar(&traceEvery, "trace-every", 10, "Trace every N iterations")
	c.Flags().BoolVar(&saveRun, "save", false, "Save a checkpoint to the configured store")
	c.Flags().StringVar(&dataDir, "data-dir", "", "Data directory (default: store.data_dir from config)")
	c.Flags().BoolVar(&jsonOutput, "json", false, "Print the result as JSON")
	c.Flags().IntVar(&patience, "patience", 0, "Stop after N stale samples of the best cost (0 = never)")
	c.Flags().IntVar(&window, "window", 100, "Iterations between convergence samples")
	c.Flags().Float64Var(&threshold, "threshold", 0.001, "Minimum relative improvement per sample")
}

func init() {
	runCmd.Flags().StringVar(&graphPath, "graph", "", "Graph file, .json or .toml (required)")
	addSearchFlags(runCmd)

	runCmd.MarkFlagRequired("graph")
	rootCmd.AddCommand(runCmd)
}

// jobConfigFromFlags merges explicitly set flags over the config file's
// anneal section.
func jobConfigFromFlags(cmd *cobra.Command, g *graph.Graph) store.JobConfig {
	a := cfg.Anneal
	jc := store.JobConfig{
		Graph:              g.Spec(),
		Method:             a.Method,
		Iterations:         a.Iterations,
		InitialTemperature: a.InitialTemperature,
		CoolingRate:        a.CoolingRate,
		Seed:               a.Seed,
		PopSize:            a.PopSize,
	}
	if jc.Method == "" {
		jc.Method = method
	}
	return applySearchFlags(cmd, jc)
}

// applySearchFlags overrides jc with the search flags that were set
// explicitly.
func applySearchFlags(cmd *cobra.Command, jc store.JobConfig) store.JobConfig {
	flags := cmd.Flags()
	if flags.Changed("method") {
		jc.Method = method
	}
	if flags.Changed("iters") {
		jc.Iterations = iters
	}
	if flags.Changed("temp") {
		jc.InitialTemperature = temperature
	}
	if flags.Changed("cooling") {
		jc.CoolingRate = cooling
	}
	if flags.Changed("pop") {
		jc.PopSize = popSize
	}
	if flags.Changed("seed") {
		jc.Seed = seed
	}
	if flags.Changed("patience") {
		jc.Convergence = &opt.ConvergenceConfig{
			Window:    window,
			Patience:  patience,
			Threshold: threshold,
		}
	}
	return jc
}

func resolvedDataDir() string {
	if dataDir != "" {
		return dataDir
	}
	return cfg.Store.DataDir
}

func runSearch(cmd *cobra.Command, args []string) error {
	g, err := graph.Load(graphPath)
	if err != nil {
		return err
	}
	slog.Info("Loaded graph", "path", graphPath, "vertices", g.Len(), "edges", g.NumEdges())

	jc := jobConfigFromFlags(cmd, g)
	jobID := uuid.New().String()

	res, err := execute(cmd.Context(), g, jc, jobID, nil)
	if err != nil {
		return err
	}
	if saveRun {
		if err := saveResult(jobID, jc, res); err != nil {
			return err
		}
	}
	return printResult(cmd.OutOrStdout(), g, jobID, res)
}

// execute runs one search and handles interruption and tracing. Callers
// decide how the result is checkpointed.
func execute(ctx context.Context, g *graph.Graph, jc store.JobConfig, jobID string, initial []int) (anneal.Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()
	if runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, runTimeout)
		defer cancel()
	}

	params := jc.SolverParams()
	params.Initial = initial

	var tw *store.TraceWriter
	if traceRun {
		var err error
		tw, err = store.NewTraceWriter(resolvedDataDir(), jobID, initial != nil)
		if err != nil {
			return anneal.Result{}, err
		}
		defer tw.Close()
		slog.Info("Writing trace", "path", tw.Path())
	}

	lastBest := cycle.Infeasible
	params.Hook = func(st anneal.Step) {
		var order []int
		if st.BestCost < lastBest {
			lastBest = st.BestCost
			slog.Debug("New best", "iteration", st.Iteration, "cost", st.BestCost, "temperature", st.Temperature)
			if tw != nil && st.Best != nil {
				order = st.Best()
			}
		}
		if tw != nil && traceEvery > 0 && st.Iteration%traceEvery == 0 {
			if err := tw.Write(store.TraceEntry{
				Iteration:   st.Iteration,
				Temperature: st.Temperature,
				CurrentCost: st.CurrentCost,
				BestCost:    st.BestCost,
				Timestamp:   time.Now(),
				Order:       order,
			}); err != nil {
				slog.Warn("Failed to write trace entry", "error", err)
			}
		}
	}

	solver, err := opt.New(params)
	if err != nil {
		return anneal.Result{}, err
	}

	slog.Info("Starting search", "job_id", jobID, "method", params.Method, "iterations", params.Iterations, "seed", params.Seed)
	start := time.Now()
	res, err := solver.Solve(ctx, g)
	elapsed := time.Since(start)

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		if res.Order == nil {
			return res, err
		}
		slog.Warn("Search stopped early, reporting best so far", "reason", err, "iterations", res.Iterations)
	} else if err != nil {
		return res, err
	}

	slog.Info("Search complete",
		"elapsed", elapsed,
		"iterations", res.Iterations,
		"initial_cost", res.InitialCost,
		"best_cost", res.Cost,
		"accepted", res.Accepted,
		"improved", res.Improved,
	)

	return res, nil
}

func saveResult(jobID string, jc store.JobConfig, res anneal.Result) error {
	sc := cfg.Store
	sc.DataDir = resolvedDataDir()
	st, closeStore, err := openStore(sc)
	if err != nil {
		return err
	}
	defer closeStore()

	cp := store.NewCheckpoint(jobID, res.Order, res.Cost, res.InitialCost, res.Iterations, jc)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := st.SaveCheckpoint(ctx, jobID, cp); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	slog.Info("Checkpoint saved", "job_id", jobID, "backend", sc.Backend)
	return nil
}

type runOutput struct {
	JobID       string       `json:"jobId"`
	Order       []int        `json:"order"`
	Cost        cycle.Cost   `json:"cost"`
	InitialCost cycle.Cost   `json:"initialCost"`
	Iterations  int          `json:"iterations"`
	Accepted    int          `json:"accepted"`
	Improved    int          `json:"improved"`
	Steps       []cycle.Step `json:"steps"`
}

func printResult(w io.Writer, g *graph.Graph, jobID string, res anneal.Result) error {
	order := cycle.Canonical(res.Order)
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(runOutput{
			JobID:       jobID,
			Order:       order,
			Cost:        res.Cost,
			InitialCost: res.InitialCost,
			Iterations:  res.Iterations,
			Accepted:    res.Accepted,
			Improved:    res.Improved,
			Steps:       cycle.Steps(g, order),
		})
	}

	fmt.Fprintf(w, "Cycle: %s\n", formatCycle(order))
	fmt.Fprintf(w, "Cost:  %s (initial %s)\n", res.Cost, res.InitialCost)
	if !res.Cost.Feasible() {
		for _, s := range cycle.Steps(g, order) {
			if !s.Present {
				fmt.Fprintf(w, "  missing edge %d -> %d\n", s.From, s.To)
			}
		}
	}
	fmt.Fprintf(w, "Job:   %s (%d iterations, %d accepted, %d improved)\n", jobID, res.Iterations, res.Accepted, res.Improved)
	return nil
}

// formatCycle renders an ordering as "1 -> 2 -> 3 -> 1".
func formatCycle(order []int) string {
	if len(order) == 0 {
		return "(empty)"
	}
	parts := make([]string, 0, len(order)+1)
	for _, id := range order {
		parts = append(parts, strconv.Itoa(id))
	}
	parts = append(parts, strconv.Itoa(order[0]))
	return strings.Join(parts, " -> ")
}

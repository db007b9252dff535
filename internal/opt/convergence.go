package opt

import (
	"context"
	"errors"
	"log/slog"

	"github.com/cwbudde/annealcycle/internal/anneal"
	"github.com/cwbudde/annealcycle/internal/cycle"
	"github.com/cwbudde/annealcycle/internal/graph"
)

// ConvergenceConfig stops a search early once its best cost stalls. The
// best cost is sampled every Window steps; after Patience samples in a row
// without a relative improvement of at least Threshold the search ends and
// reports its best result as a normal completion.
type ConvergenceConfig struct {
	Window    int     `json:"window"`
	Patience  int     `json:"patience"`
	Threshold float64 `json:"threshold"` // 0.001 = 0.1%
}

// Enabled reports whether early stopping is active.
func (c ConvergenceConfig) Enabled() bool {
	return c.Window > 0 && c.Patience > 0
}

// ConvergenceTracker counts stale samples of the best cost.
type ConvergenceTracker struct {
	config          ConvergenceConfig
	samples         int
	lastSignificant cycle.Cost
	staleCount      int
}

// NewConvergenceTracker creates a tracker for config.
func NewConvergenceTracker(config ConvergenceConfig) *ConvergenceTracker {
	return &ConvergenceTracker{
		config:          config,
		lastSignificant: cycle.Infeasible,
	}
}

// Update records a best-cost sample and reports whether the search has
// converged. Reaching feasibility always counts as progress; staying
// infeasible never does.
func (c *ConvergenceTracker) Update(best cycle.Cost) bool {
	if !c.config.Enabled() {
		return false
	}
	c.samples++

	if c.samples == 1 {
		c.lastSignificant = best
		return false
	}

	if significant(c.lastSignificant, best, c.config.Threshold) {
		c.lastSignificant = best
		c.staleCount = 0
		return false
	}

	c.staleCount++
	if c.staleCount >= c.config.Patience {
		slog.Info("Convergence detected - stopping early",
			"stale_count", c.staleCount,
			"patience", c.config.Patience,
			"best_cost", best,
		)
		return true
	}
	return false
}

// StaleCount returns the number of samples since the last significant
// improvement.
func (c *ConvergenceTracker) StaleCount() int {
	return c.staleCount
}

func significant(last, best cycle.Cost, threshold float64) bool {
	switch {
	case !best.Feasible():
		return false
	case !last.Feasible():
		return true
	case last == 0:
		return false
	}
	return float64(last-best)/float64(last) >= threshold
}

var errConverged = errors.New("opt: search converged")

// earlyStopping cancels the wrapped solver once its tracker reports
// convergence. The hook is installed by New when the solver is built.
type earlyStopping struct {
	Solver
	config ConvergenceConfig

	tracker *ConvergenceTracker
	cancel  context.CancelCauseFunc
}

// observe is chained into the solver's hook. Solvers call hooks serially.
func (e *earlyStopping) observe(st anneal.Step) {
	if e.tracker == nil || (st.Iteration+1)%e.config.Window != 0 {
		return
	}
	if e.tracker.Update(st.BestCost) {
		e.cancel(errConverged)
	}
}

func (e *earlyStopping) Solve(ctx context.Context, g *graph.Graph) (anneal.Result, error) {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	e.tracker = NewConvergenceTracker(e.config)
	e.cancel = cancel

	res, err := e.Solver.Solve(ctx, g)
	if err != nil && errors.Is(context.Cause(ctx), errConverged) {
		return res, nil
	}
	return res, err
}

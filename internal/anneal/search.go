// Package anneal searches for a short Hamiltonian cycle in a directed graph
// by simulated annealing over vertex orderings.
//
// Each iteration reverses a random segment of the current ordering and keeps
// the result if it is cheaper, or with probability exp(-delta/T) if it is not.
// The temperature decays exponentially from Config.InitialTemperature.
// Results are approximate and depend on the random source; a fixed Seed
// makes a run reproducible.
package anneal

import (
	"context"
	"fmt"
	"math"

	"github.com/cwbudde/annealcycle/internal/cycle"
	"github.com/cwbudde/annealcycle/internal/graph"
)

// Step is reported to Config.Hook after every iteration.
type Step struct {
	Iteration   int
	Temperature float64
	InitialCost cycle.Cost
	CurrentCost cycle.Cost
	BestCost    cycle.Cost
	Accepted    bool

	// Best returns a copy of the best ordering so far, as vertex ids.
	// It is only valid during the hook call and may be nil.
	Best func() []int
}

// Result is the outcome of a search.
type Result struct {
	// Order is the best ordering found, as vertex ids.
	Order []int `json:"order"`
	// Cost is the cost of Order, or cycle.Infeasible if no feasible
	// ordering was ever visited.
	Cost        cycle.Cost `json:"cost"`
	InitialCost cycle.Cost `json:"initial_cost"`

	Iterations int `json:"iterations"`
	Accepted   int `json:"accepted"`
	Improved   int `json:"improved"`
}

// Search runs simulated annealing on g with cfg. g is not modified.
func Search(g *graph.Graph, cfg Config) (Result, error) {
	return SearchContext(context.Background(), g, cfg)
}

// SearchContext is Search with cancellation. ctx is checked once per
// iteration; when it is done the best result so far is returned together
// with ctx.Err().
func SearchContext(ctx context.Context, g *graph.Graph, cfg Config) (Result, error) {
	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}
	n := g.Len()
	if n < 2 {
		return Result{}, fmt.Errorf("%w: got %d", ErrTooFewVertices, n)
	}

	m := g.Matrix()
	rng := cfg.rng()

	var current []int
	if cfg.Initial != nil {
		if err := cycle.Validate(g, cfg.Initial); err != nil {
			return Result{}, fmt.Errorf("%w: initial ordering: %w", ErrInvalidInput, err)
		}
		current, _ = m.ToIndices(cfg.Initial)
	} else {
		current = randomPerm(n, rng)
	}
	currentCost := cycle.Evaluate(m, current)

	best := make([]int, n)
	copy(best, current)
	bestCost := currentCost

	res := Result{InitialCost: currentCost}
	finish := func() Result {
		res.Order = m.ToIDs(best)
		res.Cost = bestCost
		return res
	}

	bestIDs := func() []int { return m.ToIDs(best) }
	candidate := make([]int, n)
	t0 := cfg.InitialTemperature
	temp := t0
	iters := float64(cfg.Iterations)

	for i := 0; i < cfg.Iterations; i++ {
		select {
		case <-ctx.Done():
			return finish(), ctx.Err()
		default:
		}

		copy(candidate, current)
		lo, hi := twoPositions(n, rng)
		reverse(candidate, lo, hi)
		candidateCost := cycle.Evaluate(m, candidate)

		accepted := accept(currentCost, candidateCost, temp, rng.Float64)
		if accepted {
			current, candidate = candidate, current
			currentCost = candidateCost
			res.Accepted++
			if currentCost < bestCost {
				copy(best, current)
				bestCost = currentCost
				res.Improved++
			}
		}
		res.Iterations = i + 1

		if cfg.Hook != nil {
			cfg.Hook(Step{
				Iteration:   i,
				Temperature: temp,
				InitialCost: res.InitialCost,
				CurrentCost: currentCost,
				BestCost:    bestCost,
				Accepted:    accepted,
				Best:        bestIDs,
			})
		}

		temp = t0 * math.Exp(-float64(i)/iters*cfg.CoolingRate)
	}

	return finish(), nil
}

// accept decides whether to move from a current cost to a candidate cost at
// temperature temp. draw is only called when the Metropolis test is needed.
//
// An infeasible candidate is never accepted. A feasible candidate always
// replaces an infeasible current.
func accept(current, candidate cycle.Cost, temp float64, draw func() float64) bool {
	if !candidate.Feasible() {
		return false
	}
	if !current.Feasible() {
		return true
	}
	delta := float64(candidate - current)
	if delta < 0 {
		return true
	}
	if temp <= 0 {
		return false
	}
	return draw() < math.Exp(-delta/temp)
}

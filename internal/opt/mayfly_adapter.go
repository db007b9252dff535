package opt

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"

	"github.com/cwbudde/mayfly"

	"github.com/cwbudde/annealcycle/internal/anneal"
	"github.com/cwbudde/annealcycle/internal/cycle"
	"github.com/cwbudde/annealcycle/internal/graph"
)

// MayflyAdapter searches orderings with the mayfly optimizer using a
// random-key encoding: a position in [0,1]^n decodes to the ordering that
// sorts its coordinates. Missing edges are charged a large finite penalty
// inside the optimizer so it can still compare infeasible orderings.
type MayflyAdapter struct {
	maxIters int
	popSize  int
	seed     int64
	hook     func(anneal.Step)
}

// NewMayfly creates a mayfly-backed Solver. popSize is raised to MinPopSize
// if smaller.
func NewMayfly(maxIters, popSize int, seed int64) *MayflyAdapter {
	if popSize < MinPopSize {
		popSize = MinPopSize
	}
	return &MayflyAdapter{
		maxIters: maxIters,
		popSize:  popSize,
		seed:     seed,
	}
}

// Solve runs the optimizer on g. Result.Iterations counts objective
// evaluations. mayfly cannot be interrupted, so after ctx is done every
// remaining evaluation returns immediately and the run winds down.
func (m *MayflyAdapter) Solve(ctx context.Context, g *graph.Graph) (anneal.Result, error) {
	n := g.Len()
	if n < 2 {
		return anneal.Result{}, fmt.Errorf("%w: got %d", anneal.ErrTooFewVertices, n)
	}
	mat := g.Matrix()
	penalty := missingEdgePenalty(mat)

	var (
		mu       sync.Mutex
		res      anneal.Result
		best     []int
		bestCost = cycle.Infeasible
		started  bool
	)

	eval := func(x []float64) float64 {
		order := decodeKeys(x)
		score, cost := penalized(mat, order, penalty)
		if ctx.Err() != nil {
			return score
		}

		mu.Lock()
		defer mu.Unlock()
		if !started {
			res.InitialCost = cost
			best = order
			bestCost = cost
			started = true
		} else if cost < bestCost {
			best = order
			bestCost = cost
			res.Improved++
		}
		if m.hook != nil {
			m.hook(anneal.Step{
				Iteration:   res.Iterations,
				InitialCost: res.InitialCost,
				CurrentCost: cost,
				BestCost:    bestCost,
				Best:        func() []int { return mat.ToIDs(best) },
			})
		}
		res.Iterations++
		return score
	}

	config := mayfly.NewDefaultConfig()
	config.ObjectiveFunc = eval
	config.ProblemSize = n
	config.MaxIterations = m.maxIters
	config.NPop = m.popSize
	config.LowerBound = 0
	config.UpperBound = 1
	config.Rand = rand.New(rand.NewSource(m.seed))

	out, err := mayfly.Optimize(config)

	mu.Lock()
	defer mu.Unlock()
	if err == nil {
		order := decodeKeys(out.GlobalBest.Position)
		if c := cycle.Evaluate(mat, order); !started || c < bestCost {
			best, bestCost = order, c
			if !started {
				res.InitialCost = c
				started = true
			}
		}
	}
	if !started {
		if err != nil {
			return anneal.Result{}, fmt.Errorf("mayfly: %w", err)
		}
		return anneal.Result{}, ctx.Err()
	}

	res.Order = mat.ToIDs(best)
	res.Cost = bestCost
	if cerr := ctx.Err(); cerr != nil {
		return res, cerr
	}
	if err != nil {
		return res, fmt.Errorf("mayfly: %w", err)
	}
	return res, nil
}

// decodeKeys returns the indices of keys in ascending key order. Ties keep
// index order.
func decodeKeys(keys []float64) []int {
	order := make([]int, len(keys))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return keys[order[a]] < keys[order[b]]
	})
	return order
}

// missingEdgePenalty exceeds the weight of any feasible cycle in m, so one
// missing edge always scores worse than every feasible ordering.
func missingEdgePenalty(m *graph.Matrix) float64 {
	n := m.Len()
	var maxW float64
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if w, ok := m.Weight(i, j); ok && w > maxW {
				maxW = w
			}
		}
	}
	return (maxW + 1) * float64(n)
}

// penalized scores order for the optimizer and also returns its true cost.
func penalized(m *graph.Matrix, order []int, penalty float64) (float64, cycle.Cost) {
	n := len(order)
	var sum float64
	missing := false
	for i := 0; i < n; i++ {
		w, ok := m.Weight(order[i], order[(i+1)%n])
		if !ok {
			sum += penalty
			missing = true
			continue
		}
		sum += w
	}
	if missing {
		return sum, cycle.Infeasible
	}
	return sum, cycle.Cost(sum)
}

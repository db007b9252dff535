// Package cycle evaluates vertex orderings as closed Hamiltonian cycles.
//
// An ordering is read cyclically: the successor of the last vertex is the
// first. A cycle that needs an edge the graph does not have is not an error;
// its cost is the Infeasible sentinel, which orders above every finite cost.
package cycle

import (
	"encoding/json"
	"math"
	"strconv"
)

// Cost is the total weight of a cycle, or Infeasible.
type Cost float64

// Infeasible is the cost of a cycle that uses at least one missing edge.
var Infeasible = Cost(math.Inf(1))

// Feasible reports whether c is a finite cost.
func (c Cost) Feasible() bool {
	return !math.IsInf(float64(c), 1)
}

func (c Cost) String() string {
	if !c.Feasible() {
		return "infeasible"
	}
	return strconv.FormatFloat(float64(c), 'f', -1, 64)
}

// MarshalJSON encodes Infeasible as null; JSON has no infinity.
func (c Cost) MarshalJSON() ([]byte, error) {
	if !c.Feasible() {
		return []byte("null"), nil
	}
	return json.Marshal(float64(c))
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (c *Cost) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*c = Infeasible
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*c = Cost(f)
	return nil
}

// Weigher looks up directed edge weights. *graph.Graph answers by vertex id,
// *graph.Matrix by index; Evaluate works with either.
type Weigher interface {
	Weight(from, to int) (float64, bool)
}

// Evaluate returns the cost of traversing order as a closed cycle.
//
// It stops at the first missing edge and returns Infeasible. order is
// assumed to hold each vertex exactly once; use Validate to check a
// hand-built ordering first.
//
// An empty or single-vertex order has no hops and costs 0. It is not treated
// as the self-loop v->v, which graphs never contain and which would make
// every one-vertex cycle Infeasible. Search rejects such graphs before
// evaluating them.
//
// Complexity: O(len(order)).
func Evaluate(g Weigher, order []int) Cost {
	n := len(order)
	if n < 2 {
		return 0
	}

	var sum float64
	for i := 0; i < n; i++ {
		w, ok := g.Weight(order[i], order[(i+1)%n])
		if !ok {
			return Infeasible
		}
		sum += w
	}
	return Cost(sum)
}

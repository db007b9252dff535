package cycle

// Step is one hop of a closed cycle.
type Step struct {
	From    int     `json:"from"`
	To      int     `json:"to"`
	Weight  float64 `json:"weight"`
	Present bool    `json:"present"`
}

// Steps expands order into its len(order) hops, including the closing hop
// back to the first vertex. Missing edges are reported with Present=false
// rather than cutting the path short, so a caller can show where an
// infeasible cycle breaks.
func Steps(g Weigher, order []int) []Step {
	n := len(order)
	if n < 2 {
		return nil
	}
	out := make([]Step, n)
	for i := 0; i < n; i++ {
		from, to := order[i], order[(i+1)%n]
		w, ok := g.Weight(from, to)
		out[i] = Step{From: from, To: to, Weight: w, Present: ok}
	}
	return out
}

// Canonical returns a copy of order rotated to start at its smallest
// vertex id. Rotation does not change the cost of a cycle.
func Canonical(order []int) []int {
	out := make([]int, len(order))
	if len(order) == 0 {
		return out
	}
	start := 0
	for i, id := range order {
		if id < order[start] {
			start = i
		}
	}
	copy(out, order[start:])
	copy(out[len(order)-start:], order[:start])
	return out
}

package graph

import "math"

// Matrix is an immutable, index-keyed snapshot of a Graph.
// Index i corresponds to the i-th vertex in insertion order; absent edges
// read as +Inf.
type Matrix struct {
	n     int
	ids   []int
	index map[int]int
	w     []float64 // row-major n*n
}

// Matrix builds the dense snapshot of g.
//
// Complexity: O(V² + E) time and O(V²) space.
func (g *Graph) Matrix() *Matrix {
	n := len(g.ids)
	m := &Matrix{
		n:     n,
		ids:   make([]int, n),
		index: make(map[int]int, n),
		w:     make([]float64, n*n),
	}
	copy(m.ids, g.ids)
	for id, i := range g.index {
		m.index[id] = i
	}

	inf := math.Inf(1)
	for i := range m.w {
		m.w[i] = inf
	}
	for a, w := range g.weights {
		m.w[g.index[a.from]*n+g.index[a.to]] = w
	}
	return m
}

// Len returns the number of vertices.
func (m *Matrix) Len() int {
	return m.n
}

// ID returns the vertex id stored at index i.
func (m *Matrix) ID(i int) int {
	return m.ids[i]
}

// Index returns the index of vertex id.
func (m *Matrix) Index(id int) (int, bool) {
	i, ok := m.index[id]
	return i, ok
}

// At returns the weight of i→j by index, +Inf when the edge is absent.
func (m *Matrix) At(i, j int) float64 {
	return m.w[i*m.n+j]
}

// Weight returns the weight of i→j by index and whether the edge exists.
// It lets a Matrix stand in for a Graph wherever only edge lookup is needed.
func (m *Matrix) Weight(i, j int) (float64, bool) {
	w := m.w[i*m.n+j]
	if math.IsInf(w, 1) {
		return 0, false
	}
	return w, true
}

// ToIDs maps an index ordering back to vertex ids.
func (m *Matrix) ToIDs(order []int) []int {
	out := make([]int, len(order))
	for k, i := range order {
		out[k] = m.ids[i]
	}
	return out
}

// ToIndices maps an id ordering to indices. ok is false if any id is unknown.
func (m *Matrix) ToIndices(order []int) (out []int, ok bool) {
	out = make([]int, len(order))
	for k, id := range order {
		i, found := m.index[id]
		if !found {
			return nil, false
		}
		out[k] = i
	}
	return out, true
}

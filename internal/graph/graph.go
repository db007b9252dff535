// Package graph holds the directed, weighted graph the cycle search runs on.
//
// Vertex identifiers are opaque ints (the editor front end hands out positive
// ids in creation order). Identity is kept separate from array position: a
// Graph is edited by id, and Matrix gives the search an immutable, index-keyed
// snapshot with O(1) edge lookup.
package graph

import (
	"fmt"
	"math"
	"sort"
)

// Edge is a directed, weighted edge From→To.
type Edge struct {
	From   int     `json:"from" toml:"from"`
	To     int     `json:"to" toml:"to"`
	Weight float64 `json:"weight" toml:"weight"`
}

type arc struct {
	from, to int
}

// Graph is a directed graph with non-negative real edge weights.
// Self-loops and parallel edges are not modeled; adding an existing edge
// replaces its weight.
//
// Graph is not safe for concurrent mutation. Build it fully, then hand it
// to the search, which never mutates it.
type Graph struct {
	ids     []int       // insertion order
	index   map[int]int // id -> position in ids
	weights map[arc]float64
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		index:   make(map[int]int),
		weights: make(map[arc]float64),
	}
}

// AddVertex registers id. Returns ErrDuplicateVertex if it is already present.
func (g *Graph) AddVertex(id int) error {
	if _, ok := g.index[id]; ok {
		return fmt.Errorf("%w: %d", ErrDuplicateVertex, id)
	}
	g.index[id] = len(g.ids)
	g.ids = append(g.ids, id)
	return nil
}

// AddEdge inserts or replaces the directed edge from→to.
// Both endpoints must already be vertices of the graph.
func (g *Graph) AddEdge(from, to int, weight float64) error {
	if _, ok := g.index[from]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownVertex, from)
	}
	if _, ok := g.index[to]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownVertex, to)
	}
	if from == to {
		return fmt.Errorf("%w: %d", ErrSelfLoop, from)
	}
	if math.IsNaN(weight) || math.IsInf(weight, 0) {
		return fmt.Errorf("%w: %d->%d", ErrInvalidWeight, from, to)
	}
	if weight < 0 {
		return fmt.Errorf("%w: %d->%d weight %g", ErrNegativeWeight, from, to, weight)
	}

	g.weights[arc{from, to}] = weight
	return nil
}

// RemoveEdge deletes from→to and reports whether it existed.
func (g *Graph) RemoveEdge(from, to int) bool {
	key := arc{from, to}
	if _, ok := g.weights[key]; !ok {
		return false
	}
	delete(g.weights, key)
	return true
}

// HasVertex reports whether id is a vertex of g.
func (g *Graph) HasVertex(id int) bool {
	_, ok := g.index[id]
	return ok
}

// Len returns the number of vertices.
func (g *Graph) Len() int {
	return len(g.ids)
}

// NumEdges returns the number of directed edges.
func (g *Graph) NumEdges() int {
	return len(g.weights)
}

// Vertices returns a copy of the vertex ids in insertion order.
func (g *Graph) Vertices() []int {
	out := make([]int, len(g.ids))
	copy(out, g.ids)
	return out
}

// Weight returns the weight of from→to and whether the edge exists.
func (g *Graph) Weight(from, to int) (float64, bool) {
	w, ok := g.weights[arc{from, to}]
	return w, ok
}

// Edges returns all edges ordered by (vertex insertion order of From, then To).
func (g *Graph) Edges() []Edge {
	out := make([]Edge, 0, len(g.weights))
	for a, w := range g.weights {
		out = append(out, Edge{From: a.from, To: a.to, Weight: w})
	}
	sort.Slice(out, func(i, j int) bool {
		fi, fj := g.index[out[i].From], g.index[out[j].From]
		if fi != fj {
			return fi < fj
		}
		return g.index[out[i].To] < g.index[out[j].To]
	})
	return out
}

// Clone returns an independent copy of g.
func (g *Graph) Clone() *Graph {
	c := &Graph{
		ids:     make([]int, len(g.ids)),
		index:   make(map[int]int, len(g.index)),
		weights: make(map[arc]float64, len(g.weights)),
	}
	copy(c.ids, g.ids)
	for id, i := range g.index {
		c.index[id] = i
	}
	for a, w := range g.weights {
		c.weights[a] = w
	}
	return c
}

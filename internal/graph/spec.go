package graph

import (
	"fmt"
	"sort"
)

// Spec is the serializable form of a Graph, used by graph files, job
// configurations and checkpoints.
//
// When Vertices is empty, vertices are taken from the edges in order of
// first appearance.
type Spec struct {
	Vertices []int  `json:"vertices,omitempty" toml:"vertices,omitempty"`
	Edges    []Edge `json:"edges" toml:"edges"`
}

// FromSpec builds a Graph from s, validating every vertex and edge.
func FromSpec(s Spec) (*Graph, error) {
	g := New()

	if len(s.Vertices) > 0 {
		for _, id := range s.Vertices {
			if err := g.AddVertex(id); err != nil {
				return nil, err
			}
		}
	} else {
		for _, e := range s.Edges {
			for _, id := range [2]int{e.From, e.To} {
				if !g.HasVertex(id) {
					// cannot fail: presence checked above
					_ = g.AddVertex(id)
				}
			}
		}
	}

	for i, e := range s.Edges {
		if err := g.AddEdge(e.From, e.To, e.Weight); err != nil {
			return nil, fmt.Errorf("edge %d: %w", i, err)
		}
	}
	return g, nil
}

// Spec returns the serializable form of g with explicit vertices.
func (g *Graph) Spec() Spec {
	return Spec{
		Vertices: g.Vertices(),
		Edges:    g.Edges(),
	}
}

// Equal reports whether s and o describe the same vertex set and weighted
// edge set, ignoring listing order.
func (s Spec) Equal(o Spec) bool {
	a, b := s.normalized(), o.normalized()
	if len(a.Vertices) != len(b.Vertices) || len(a.Edges) != len(b.Edges) {
		return false
	}
	for i := range a.Vertices {
		if a.Vertices[i] != b.Vertices[i] {
			return false
		}
	}
	for i := range a.Edges {
		if a.Edges[i] != b.Edges[i] {
			return false
		}
	}
	return true
}

func (s Spec) normalized() Spec {
	seen := make(map[int]struct{})
	var vs []int
	add := func(id int) {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			vs = append(vs, id)
		}
	}
	for _, id := range s.Vertices {
		add(id)
	}
	for _, e := range s.Edges {
		add(e.From)
		add(e.To)
	}
	sort.Ints(vs)

	// last definition of an edge wins, matching AddEdge replacement
	byArc := make(map[arc]float64, len(s.Edges))
	for _, e := range s.Edges {
		byArc[arc{e.From, e.To}] = e.Weight
	}
	es := make([]Edge, 0, len(byArc))
	for a, w := range byArc {
		es = append(es, Edge{From: a.from, To: a.to, Weight: w})
	}
	sort.Slice(es, func(i, j int) bool {
		if es[i].From != es[j].From {
			return es[i].From < es[j].From
		}
		return es[i].To < es[j].To
	})

	return Spec{Vertices: vs, Edges: es}
}

package graph

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func triangle(t *testing.T) *Graph {
	t.Helper()
	g := New()
	for _, id := range []int{1, 2, 3} {
		require.NoError(t, g.AddVertex(id))
	}
	require.NoError(t, g.AddEdge(1, 2, 10))
	require.NoError(t, g.AddEdge(2, 3, 15))
	require.NoError(t, g.AddEdge(3, 1, 20))
	return g
}

func TestGraph_AddVertexDuplicate(t *testing.T) {
	g := New()
	require.NoError(t, g.AddVertex(7))
	assert.ErrorIs(t, g.AddVertex(7), ErrDuplicateVertex)
	assert.Equal(t, 1, g.Len())
}

func TestGraph_AddEdgeValidation(t *testing.T) {
	g := New()
	require.NoError(t, g.AddVertex(1))
	require.NoError(t, g.AddVertex(2))

	tests := []struct {
		name     string
		from, to int
		weight   float64
		want     error
	}{
		{"unknown source", 9, 2, 1, ErrUnknownVertex},
		{"unknown target", 1, 9, 1, ErrUnknownVertex},
		{"self loop", 1, 1, 1, ErrSelfLoop},
		{"negative", 1, 2, -0.5, ErrNegativeWeight},
		{"nan", 1, 2, math.NaN(), ErrInvalidWeight},
		{"inf", 1, 2, math.Inf(1), ErrInvalidWeight},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, g.AddEdge(tt.from, tt.to, tt.weight), tt.want)
		})
	}
	assert.Equal(t, 0, g.NumEdges())
}

func TestGraph_EdgeReplaceAndRemove(t *testing.T) {
	g := triangle(t)

	require.NoError(t, g.AddEdge(1, 2, 4))
	w, ok := g.Weight(1, 2)
	require.True(t, ok)
	assert.Equal(t, 4.0, w)
	assert.Equal(t, 3, g.NumEdges())

	_, ok = g.Weight(2, 1)
	assert.False(t, ok, "edges are directed")

	assert.True(t, g.RemoveEdge(1, 2))
	assert.False(t, g.RemoveEdge(1, 2))
	assert.Equal(t, 2, g.NumEdges())
}

func TestGraph_VerticesIsCopy(t *testing.T) {
	g := triangle(t)
	vs := g.Vertices()
	vs[0] = 99
	assert.Equal(t, []int{1, 2, 3}, g.Vertices())
}

func TestGraph_Edges_Ordered(t *testing.T) {
	g := triangle(t)
	assert.Equal(t, []Edge{
		{From: 1, To: 2, Weight: 10},
		{From: 2, To: 3, Weight: 15},
		{From: 3, To: 1, Weight: 20},
	}, g.Edges())
}

func TestGraph_Clone(t *testing.T) {
	g := triangle(t)
	c := g.Clone()
	require.NoError(t, c.AddEdge(2, 1, 1))
	_, ok := g.Weight(2, 1)
	assert.False(t, ok)
	assert.Equal(t, g.Vertices(), c.Vertices())
}

func TestMatrix_Snapshot(t *testing.T) {
	g := triangle(t)
	m := g.Matrix()

	require.Equal(t, 3, m.Len())
	i1, ok := m.Index(1)
	require.True(t, ok)
	i2, _ := m.Index(2)
	assert.Equal(t, 10.0, m.At(i1, i2))
	assert.True(t, math.IsInf(m.At(i2, i1), 1))

	_, ok = m.Weight(i2, i1)
	assert.False(t, ok)

	// later edits do not leak into the snapshot
	require.NoError(t, g.AddEdge(2, 1, 3))
	assert.True(t, math.IsInf(m.At(i2, i1), 1))

	idx, ok := m.ToIndices([]int{3, 1, 2})
	require.True(t, ok)
	assert.Equal(t, []int{3, 1, 2}, m.ToIDs(idx))

	_, ok = m.ToIndices([]int{4})
	assert.False(t, ok)
}

func TestFromSpec_ImplicitVertices(t *testing.T) {
	g, err := FromSpec(Spec{Edges: []Edge{{From: 5, To: 6, Weight: 1}, {From: 6, To: 7, Weight: 2}}})
	require.NoError(t, err)
	assert.Equal(t, []int{5, 6, 7}, g.Vertices())
}

func TestFromSpec_RejectsUnknownEndpoint(t *testing.T) {
	_, err := FromSpec(Spec{Vertices: []int{1, 2}, Edges: []Edge{{From: 1, To: 3, Weight: 1}}})
	assert.ErrorIs(t, err, ErrUnknownVertex)
}

func TestSpec_Equal(t *testing.T) {
	a := Spec{Vertices: []int{1, 2, 3}, Edges: []Edge{{1, 2, 10}, {2, 3, 15}}}
	b := Spec{Vertices: []int{3, 2, 1}, Edges: []Edge{{2, 3, 15}, {1, 2, 10}}}
	c := Spec{Vertices: []int{1, 2, 3}, Edges: []Edge{{1, 2, 11}, {2, 3, 15}}}

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.True(t, triangle(t).Spec().Equal(triangle(t).Spec()))
}

func TestLoad_JSONAndTOML(t *testing.T) {
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "g.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{
  "vertices": [1, 2, 3],
  "edges": [
    {"from": 1, "to": 2, "weight": 10},
    {"from": 2, "to": 3, "weight": 15},
    {"from": 3, "to": 1, "weight": 20}
  ]
}`), 0644))

	tomlPath := filepath.Join(dir, "g.toml")
	require.NoError(t, os.WriteFile(tomlPath, []byte(`vertices = [1, 2, 3]

[[edges]]
from = 1
to = 2
weight = 10.0

[[edges]]
from = 2
to = 3
weight = 15.0

[[edges]]
from = 3
to = 1
weight = 20.0
`), 0644))

	gj, err := Load(jsonPath)
	require.NoError(t, err)
	gt, err := Load(tomlPath)
	require.NoError(t, err)

	assert.True(t, gj.Spec().Equal(gt.Spec()))
	assert.True(t, gj.Spec().Equal(triangle(t).Spec()))
}

func TestLoad_UnsupportedExtension(t *testing.T) {
	_, err := Load("graph.xml")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestEncode_RoundTripTOML(t *testing.T) {
	g := triangle(t)
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, g, FormatTOML))

	back, err := Decode(buf.Bytes(), FormatTOML)
	require.NoError(t, err)
	assert.True(t, g.Spec().Equal(back.Spec()))
}

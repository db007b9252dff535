package graph

import "errors"

var (
	// ErrDuplicateVertex indicates AddVertex was called with an id already present.
	ErrDuplicateVertex = errors.New("graph: duplicate vertex")

	// ErrUnknownVertex indicates an edge endpoint that is not a vertex of the graph.
	ErrUnknownVertex = errors.New("graph: unknown vertex")

	// ErrSelfLoop indicates an edge from a vertex to itself.
	ErrSelfLoop = errors.New("graph: self-loop not allowed")

	// ErrNegativeWeight indicates an edge weight below zero.
	ErrNegativeWeight = errors.New("graph: negative edge weight")

	// ErrInvalidWeight indicates a NaN or infinite edge weight.
	ErrInvalidWeight = errors.New("graph: weight must be finite")

	// ErrUnsupportedFormat indicates a graph file extension we cannot decode.
	ErrUnsupportedFormat = errors.New("graph: unsupported file format")
)

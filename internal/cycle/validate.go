package cycle

import (
	"errors"
	"fmt"
)

var (
	// ErrLengthMismatch indicates an ordering that does not cover every vertex.
	ErrLengthMismatch = errors.New("cycle: ordering length does not match vertex count")

	// ErrUnknownVertex indicates an ordering entry that is not a graph vertex.
	ErrUnknownVertex = errors.New("cycle: ordering contains unknown vertex")

	// ErrDuplicateVertex indicates a vertex listed twice in an ordering.
	ErrDuplicateVertex = errors.New("cycle: ordering repeats a vertex")
)

// VertexSet is the part of a graph Validate needs.
type VertexSet interface {
	Len() int
	HasVertex(id int) bool
}

// Validate checks that order is a permutation of the vertices of g.
//
// Complexity: O(n) time and space.
func Validate(g VertexSet, order []int) error {
	if len(order) != g.Len() {
		return fmt.Errorf("%w: got %d, want %d", ErrLengthMismatch, len(order), g.Len())
	}

	seen := make(map[int]struct{}, len(order))
	for _, id := range order {
		if !g.HasVertex(id) {
			return fmt.Errorf("%w: %d", ErrUnknownVertex, id)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: %d", ErrDuplicateVertex, id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

package store

import (
	"fmt"
	"time"

	"github.com/cwbudde/annealcycle/internal/cycle"
	"github.com/cwbudde/annealcycle/internal/graph"
	"github.com/cwbudde/annealcycle/internal/opt"
)

// JobConfig holds the settings of a search job. The graph is embedded so a
// checkpoint can be resumed without the graph file.
type JobConfig struct {
	Graph              graph.Spec `json:"graph"`
	Method             string     `json:"method"` // anneal, mayfly
	Iterations         int        `json:"iterations"`
	InitialTemperature float64    `json:"initialTemperature,omitempty"`
	CoolingRate        float64    `json:"coolingRate,omitempty"`
	Seed               int64      `json:"seed"`
	PopSize            int        `json:"popSize,omitempty"`
	CheckpointInterval int        `json:"checkpointInterval,omitempty"` // Checkpoint every N seconds (0 = disabled)

	// Convergence stops the search early once the best cost stalls.
	Convergence *opt.ConvergenceConfig `json:"convergence,omitempty"`
}

// BuildGraph constructs the embedded graph.
func (c JobConfig) BuildGraph() (*graph.Graph, error) {
	return graph.FromSpec(c.Graph)
}

// SolverParams converts the config to solver parameters. Zero values fall
// back to the solver defaults.
func (c JobConfig) SolverParams() opt.Params {
	p := opt.DefaultParams()
	if c.Method != "" {
		p.Method = c.Method
	}
	p.Iterations = c.Iterations
	if c.InitialTemperature != 0 {
		p.InitialTemperature = c.InitialTemperature
	}
	if c.CoolingRate != 0 {
		p.CoolingRate = c.CoolingRate
	}
	if c.PopSize != 0 {
		p.PopSize = c.PopSize
	}
	p.Seed = c.Seed
	if c.Convergence != nil {
		p.Convergence = *c.Convergence
	}
	return p
}

// Checkpoint is the saved state of a search.
//
// Only the best ordering is kept. Resuming starts a fresh search from that
// ordering with a new temperature schedule, so a resumed run is not an
// exact continuation, but its best cost never gets worse.
type Checkpoint struct {
	JobID string `json:"jobId"`

	// BestOrder is the cheapest vertex ordering found so far, as vertex ids.
	BestOrder []int `json:"bestOrder"`

	// BestCost is null in JSON while no feasible cycle has been found.
	BestCost    cycle.Cost `json:"bestCost"`
	InitialCost cycle.Cost `json:"initialCost"`

	// Iteration is the number of completed iterations
	Iteration int `json:"iteration"`

	Timestamp time.Time `json:"timestamp"`

	// Config is checked against the resuming job by IsCompatible.
	Config JobConfig `json:"config"`
}

// CheckpointInfo is the listing view of a Checkpoint.
type CheckpointInfo struct {
	JobID     string     `json:"jobId"`
	BestCost  cycle.Cost `json:"bestCost"`
	Iteration int        `json:"iteration"`
	Timestamp time.Time  `json:"timestamp"`
	Method    string     `json:"method"`
	Vertices  int        `json:"vertices"`
	Edges     int        `json:"edges"`
}

// NewCheckpoint creates a checkpoint from job state.
func NewCheckpoint(jobID string, bestOrder []int, bestCost, initialCost cycle.Cost, iteration int, config JobConfig) *Checkpoint {
	return &Checkpoint{
		JobID:       jobID,
		BestOrder:   bestOrder,
		BestCost:    bestCost,
		InitialCost: initialCost,
		Iteration:   iteration,
		Timestamp:   time.Now(),
		Config:      config,
	}
}

// ToInfo converts a full Checkpoint to CheckpointInfo (metadata only).
func (c *Checkpoint) ToInfo() CheckpointInfo {
	vertices := len(c.Config.Graph.Vertices)
	if vertices == 0 {
		if g, err := c.Config.BuildGraph(); err == nil {
			vertices = g.Len()
		}
	}
	return CheckpointInfo{
		JobID:     c.JobID,
		BestCost:  c.BestCost,
		Iteration: c.Iteration,
		Timestamp: c.Timestamp,
		Method:    c.Config.Method,
		Vertices:  vertices,
		Edges:     len(c.Config.Graph.Edges),
	}
}

// Validate checks that the checkpoint is complete and that BestOrder is a
// permutation of the embedded graph's vertices.
func (c *Checkpoint) Validate() error {
	if c.JobID == "" {
		return &ValidationError{Field: "JobID", Reason: "cannot be empty"}
	}
	if len(c.BestOrder) == 0 {
		return &ValidationError{Field: "BestOrder", Reason: "cannot be empty"}
	}
	if c.BestCost < 0 {
		return &ValidationError{Field: "BestCost", Reason: "cannot be negative"}
	}
	if c.InitialCost < 0 {
		return &ValidationError{Field: "InitialCost", Reason: "cannot be negative"}
	}
	if c.BestCost > c.InitialCost {
		return &ValidationError{Field: "BestCost", Reason: "cannot exceed InitialCost"}
	}
	if c.Iteration < 0 {
		return &ValidationError{Field: "Iteration", Reason: "cannot be negative"}
	}
	if c.Timestamp.IsZero() {
		return &ValidationError{Field: "Timestamp", Reason: "cannot be zero"}
	}
	if c.Config.Method == "" {
		return &ValidationError{Field: "Config.Method", Reason: "cannot be empty"}
	}
	if c.Config.Iterations < 0 {
		return &ValidationError{Field: "Config.Iterations", Reason: "cannot be negative"}
	}

	g, err := c.Config.BuildGraph()
	if err != nil {
		return &ValidationError{Field: "Config.Graph", Reason: err.Error()}
	}
	if err := cycle.Validate(g, c.BestOrder); err != nil {
		return &ValidationError{Field: "BestOrder", Reason: err.Error()}
	}
	return nil
}

// ValidationError represents a checkpoint validation error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}

// IsCompatible checks if this checkpoint can be resumed with the given config.
// The graphs must be equal as vertex and edge sets and the method must match.
func (c *Checkpoint) IsCompatible(config JobConfig) error {
	if !c.Config.Graph.Equal(config.Graph) {
		return &CompatibilityError{
			Field:    "Graph",
			Expected: describeGraph(c.Config.Graph),
			Actual:   describeGraph(config.Graph),
		}
	}
	if c.Config.Method != config.Method {
		return &CompatibilityError{
			Field:    "Method",
			Expected: c.Config.Method,
			Actual:   config.Method,
		}
	}
	return nil
}

func describeGraph(s graph.Spec) string {
	return fmt.Sprintf("%d vertices/%d edges", len(s.Vertices), len(s.Edges))
}

// CompatibilityError represents a checkpoint compatibility error.
type CompatibilityError struct {
	Field    string
	Expected string
	Actual   string
}

func (e *CompatibilityError) Error() string {
	return "compatibility error: " + e.Field + " mismatch (expected " + e.Expected + ", got " + e.Actual + ")"
}

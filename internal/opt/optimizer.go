// Package opt puts the cycle searches behind one Solver interface so the CLI
// and the job server can pick an algorithm by name.
package opt

import (
	"context"
	"errors"
	"fmt"

	"github.com/cwbudde/annealcycle/internal/anneal"
	"github.com/cwbudde/annealcycle/internal/graph"
)

// Method names accepted by New.
const (
	MethodAnneal = "anneal"
	MethodMayfly = "mayfly"
)

// MinPopSize is the smallest population the mayfly optimizer accepts.
const MinPopSize = 20

// ErrUnknownMethod is returned by New for an unrecognized method name.
var ErrUnknownMethod = errors.New("opt: unknown method")

// Solver searches a graph for a short Hamiltonian cycle.
type Solver interface {
	// Solve runs until its iteration budget is spent or ctx is done. On
	// cancellation it returns the best result so far along with ctx.Err().
	Solve(ctx context.Context, g *graph.Graph) (anneal.Result, error)
}

// Params selects and configures a Solver.
type Params struct {
	Method             string
	Iterations         int
	InitialTemperature float64
	CoolingRate        float64
	Seed               int64
	PopSize            int

	// Initial seeds the annealer (used when resuming). Ignored by mayfly.
	Initial []int
	Hook    func(anneal.Step)

	// Convergence enables early stopping when set.
	Convergence ConvergenceConfig
}

// DefaultParams returns annealing with its default schedule.
func DefaultParams() Params {
	d := anneal.DefaultConfig()
	return Params{
		Method:             MethodAnneal,
		Iterations:         d.Iterations,
		InitialTemperature: d.InitialTemperature,
		CoolingRate:        d.CoolingRate,
		PopSize:            MinPopSize,
	}
}

// New builds the Solver named by p.Method. An empty method means anneal.
func New(p Params) (Solver, error) {
	if !p.Convergence.Enabled() {
		return newSolver(p)
	}
	if p.Convergence.Threshold < 0 {
		return nil, fmt.Errorf("%w: convergence threshold must be >= 0", anneal.ErrInvalidConfig)
	}

	e := &earlyStopping{config: p.Convergence}
	hook := p.Hook
	p.Hook = func(st anneal.Step) {
		if hook != nil {
			hook(st)
		}
		e.observe(st)
	}
	inner, err := newSolver(p)
	if err != nil {
		return nil, err
	}
	e.Solver = inner
	return e, nil
}

func newSolver(p Params) (Solver, error) {
	switch p.Method {
	case "", MethodAnneal:
		cfg := anneal.Config{
			InitialTemperature: p.InitialTemperature,
			CoolingRate:        p.CoolingRate,
			Iterations:         p.Iterations,
			Seed:               p.Seed,
			Initial:            p.Initial,
			Hook:               p.Hook,
		}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return &Annealer{Config: cfg}, nil
	case MethodMayfly:
		if p.Iterations < 0 {
			return nil, fmt.Errorf("%w: iterations must be >= 0, got %d", anneal.ErrInvalidConfig, p.Iterations)
		}
		m := NewMayfly(p.Iterations, p.PopSize, p.Seed)
		m.hook = p.Hook
		return m, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, p.Method)
	}
}

// Annealer runs anneal.SearchContext with a fixed Config.
type Annealer struct {
	Config anneal.Config
}

func (a *Annealer) Solve(ctx context.Context, g *graph.Graph) (anneal.Result, error) {
	return anneal.SearchContext(ctx, g, a.Config)
}

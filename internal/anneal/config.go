package anneal

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
)

var (
	// ErrInvalidInput is the family of errors for arguments Search cannot use.
	ErrInvalidInput = errors.New("anneal: invalid input")

	// ErrTooFewVertices is returned for graphs with fewer than two vertices,
	// which have no two distinct positions to perturb.
	ErrTooFewVertices = fmt.Errorf("%w: graph needs at least 2 vertices", ErrInvalidInput)

	// ErrInvalidConfig is returned when Config.Validate fails.
	ErrInvalidConfig = fmt.Errorf("%w: bad config", ErrInvalidInput)
)

// Defaults used by DefaultConfig.
const (
	DefaultInitialTemperature = 1000.0
	DefaultCoolingRate        = 0.95
	DefaultIterations         = 2000
)

// defaultSeed replaces a zero Seed so an unset seed is still reproducible.
const defaultSeed int64 = 1

// Config controls one annealing run.
type Config struct {
	InitialTemperature float64
	CoolingRate        float64
	Iterations         int

	// Seed builds the random source when Rand is nil. Zero means defaultSeed.
	Seed int64
	// Rand overrides Seed. It must not be shared with other goroutines.
	Rand *rand.Rand

	// Initial, if set, replaces the random starting ordering. It must be a
	// permutation of the graph's vertex ids.
	Initial []int

	// Hook observes progress. It runs on the search goroutine.
	Hook func(Step)
}

// DefaultConfig returns T0=1000, cooling 0.95 and 2000 iterations.
func DefaultConfig() Config {
	return Config{
		InitialTemperature: DefaultInitialTemperature,
		CoolingRate:        DefaultCoolingRate,
		Iterations:         DefaultIterations,
	}
}

// Validate checks the numeric parameters.
func (c Config) Validate() error {
	if c.Iterations < 0 {
		return fmt.Errorf("%w: iterations must be >= 0, got %d", ErrInvalidConfig, c.Iterations)
	}
	if !(c.InitialTemperature > 0) || math.IsInf(c.InitialTemperature, 0) {
		return fmt.Errorf("%w: initial temperature must be positive and finite, got %v", ErrInvalidConfig, c.InitialTemperature)
	}
	if !(c.CoolingRate >= 0) || math.IsInf(c.CoolingRate, 0) {
		return fmt.Errorf("%w: cooling rate must be non-negative and finite, got %v", ErrInvalidConfig, c.CoolingRate)
	}
	return nil
}

func (c Config) rng() *rand.Rand {
	if c.Rand != nil {
		return c.Rand
	}
	seed := c.Seed
	if seed == 0 {
		seed = defaultSeed
	}
	return rand.New(rand.NewSource(seed))
}

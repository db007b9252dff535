// Package store persists search checkpoints and cost traces so a job can be
// inspected after it ends and resumed from its best ordering.
package store

import "context"

// Store defines the interface for checkpoint persistence operations.
// Implementations must be safe for concurrent use.
//
// Error handling conventions:
//   - Return nil error on success
//   - Return ErrNotFound if checkpoint doesn't exist (for Load/Delete)
//   - Wrap underlying errors with context using fmt.Errorf("context: %w", err)
type Store interface {
	// SaveCheckpoint saves a checkpoint for the given job, replacing any
	// existing one. A reader never observes a partially written checkpoint.
	SaveCheckpoint(ctx context.Context, jobID string, checkpoint *Checkpoint) error

	// LoadCheckpoint retrieves the checkpoint for the given job.
	// Returns ErrNotFound if no checkpoint exists for this jobID.
	LoadCheckpoint(ctx context.Context, jobID string) (*Checkpoint, error)

	// ListCheckpoints returns metadata for all available checkpoints.
	// Unreadable checkpoints are skipped.
	ListCheckpoints(ctx context.Context) ([]CheckpointInfo, error)

	// DeleteCheckpoint removes the checkpoint. FSStore also removes the
	// job's trace, which lives in the same directory.
	// Returns ErrNotFound if no checkpoint exists for this jobID.
	DeleteCheckpoint(ctx context.Context, jobID string) error
}

// ErrNotFound is returned when a requested checkpoint does not exist.
// Use errors.Is(err, ErrNotFound) to check for this error.
var ErrNotFound = &NotFoundError{}

// NotFoundError represents a missing checkpoint error.
type NotFoundError struct {
	JobID string
}

func (e *NotFoundError) Error() string {
	if e.JobID != "" {
		return "checkpoint not found: " + e.JobID
	}
	return "checkpoint not found"
}

func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}

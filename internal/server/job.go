package server

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cwbudde/annealcycle/internal/cycle"
	"github.com/cwbudde/annealcycle/internal/store"
)

// JobState represents the current state of a job
type JobState string

const (
	StatePending   JobState = "pending"
	StateRunning   JobState = "running"
	StateCompleted JobState = "completed"
	StateFailed    JobState = "failed"
	StateCancelled JobState = "cancelled"
)

// Finished reports whether the job has reached a terminal state.
func (s JobState) Finished() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

var (
	ErrJobNotFound = errors.New("job not found")
	ErrJobFinished = errors.New("job already finished")
)

// JobConfig is an alias to avoid duplication with store.JobConfig
type JobConfig = store.JobConfig

// Job is one search run. The JobManager owns Job values; callers get copies.
type Job struct {
	ID          string     `json:"id"`
	State       JobState   `json:"state"`
	Config      JobConfig  `json:"config"`
	BestOrder   []int      `json:"bestOrder,omitempty"`
	BestCost    cycle.Cost `json:"bestCost"`
	InitialCost cycle.Cost `json:"initialCost"`
	CurrentCost cycle.Cost `json:"currentCost"`
	Temperature float64    `json:"temperature"`
	Iterations  int        `json:"iterations"`
	Accepted    int        `json:"accepted"`
	Improved    int        `json:"improved"`
	StartTime   time.Time  `json:"startTime"`
	EndTime     *time.Time `json:"endTime,omitempty"`
	Error       string     `json:"error,omitempty"`

	// initial seeds the search when the job resumes a checkpoint.
	initial []int
	cancel  context.CancelFunc
}

// Elapsed is the run time so far, or the total once finished.
func (j *Job) Elapsed() time.Duration {
	if j.EndTime != nil {
		return j.EndTime.Sub(j.StartTime)
	}
	return time.Since(j.StartTime)
}

func (j *Job) clone() Job {
	c := *j
	c.BestOrder = append([]int(nil), j.BestOrder...)
	c.initial = append([]int(nil), j.initial...)
	c.cancel = nil
	return c
}

// JobManager manages the lifecycle of jobs
type JobManager struct {
	mu          sync.RWMutex
	jobs        map[string]*Job
	broadcaster *EventBroadcaster
}

// NewJobManager creates a new JobManager
func NewJobManager() *JobManager {
	return &JobManager{
		jobs:        make(map[string]*Job),
		broadcaster: NewEventBroadcaster(),
	}
}

// CreateJob registers a pending job. initial, if non-nil, is the ordering
// the search starts from.
func (jm *JobManager) CreateJob(config JobConfig, initial []int) Job {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job := &Job{
		ID:          uuid.New().String(),
		State:       StatePending,
		Config:      config,
		BestCost:    cycle.Infeasible,
		InitialCost: cycle.Infeasible,
		CurrentCost: cycle.Infeasible,
		StartTime:   time.Now(),
		initial:     append([]int(nil), initial...),
	}

	jm.jobs[job.ID] = job
	return job.clone()
}

// GetJob returns a snapshot of the job.
func (jm *JobManager) GetJob(id string) (Job, bool) {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	job, exists := jm.jobs[id]
	if !exists {
		return Job{}, false
	}
	return job.clone(), true
}

// ListJobs returns snapshots of all jobs, oldest first.
func (jm *JobManager) ListJobs() []Job {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	jobs := make([]Job, 0, len(jm.jobs))
	for _, job := range jm.jobs {
		jobs = append(jobs, job.clone())
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].StartTime.Before(jobs[j].StartTime)
	})
	return jobs
}

// UpdateJob atomically updates a job using the provided function
func (jm *JobManager) UpdateJob(id string, updateFn func(*Job)) error {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job, exists := jm.jobs[id]
	if !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}

	updateFn(job)
	return nil
}

// GetRunningJobs returns all jobs currently in the running state
func (jm *JobManager) GetRunningJobs() []Job {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	running := make([]Job, 0)
	for _, job := range jm.jobs {
		if job.State == StateRunning {
			running = append(running, job.clone())
		}
	}
	return running
}

// setCancel attaches the function that stops the job's search.
func (jm *JobManager) setCancel(id string, cancel context.CancelFunc) {
	jm.UpdateJob(id, func(j *Job) { j.cancel = cancel })
}

// CancelJob asks a pending or running job to stop. The worker records the
// cancelled state once the search returns.
func (jm *JobManager) CancelJob(id string) error {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job, exists := jm.jobs[id]
	if !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if job.State.Finished() {
		return fmt.Errorf("%w: %s is %s", ErrJobFinished, id, job.State)
	}
	if job.cancel != nil {
		job.cancel()
	}
	return nil
}

// CancelAll stops every unfinished job.
func (jm *JobManager) CancelAll() {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	for _, job := range jm.jobs {
		if !job.State.Finished() && job.cancel != nil {
			job.cancel()
		}
	}
}

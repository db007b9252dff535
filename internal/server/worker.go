package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cwbudde/annealcycle/internal/anneal"
	"github.com/cwbudde/annealcycle/internal/cycle"
	"github.com/cwbudde/annealcycle/internal/opt"
	"github.com/cwbudde/annealcycle/internal/store"
)

// publishEvery throttles hook updates to the job manager. Improvements are
// always published.
const publishEvery = 64

// runJob executes a search job. It is started in its own goroutine by the
// create handler; ctx is cancelled by CancelJob or server shutdown.
func (s *Server) runJob(ctx context.Context, jobID string) error {
	jm := s.jobManager
	job, exists := jm.GetJob(jobID)
	if !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}

	g, err := job.Config.BuildGraph()
	if err != nil {
		s.markJobFailed(jobID, fmt.Errorf("build graph: %w", err))
		return err
	}

	trace := s.openTrace(jobID)
	if trace != nil {
		defer trace.Close()
	}

	params := job.Config.SolverParams()
	params.Initial = job.initial
	lastBest := cycle.Infeasible
	params.Hook = func(st anneal.Step) {
		// order is only materialized when the best cost drops.
		var order []int
		improved := st.BestCost < lastBest
		if improved && st.Best != nil {
			order = st.Best()
			lastBest = st.BestCost
		}
		if improved || st.Iteration%publishEvery == 0 {
			jm.UpdateJob(jobID, func(j *Job) {
				j.Iterations = st.Iteration + 1
				j.Temperature = st.Temperature
				j.CurrentCost = st.CurrentCost
				j.BestCost = st.BestCost
				j.InitialCost = st.InitialCost
				if order != nil {
					j.BestOrder = order
				}
			})
		}
		if trace != nil && st.Iteration%s.traceEvery == 0 {
			entry := store.TraceEntry{
				Iteration:   st.Iteration,
				Temperature: st.Temperature,
				CurrentCost: st.CurrentCost,
				BestCost:    st.BestCost,
				Timestamp:   time.Now(),
				Order:       order,
			}
			if err := trace.Write(entry); err != nil {
				slog.Warn("Failed to write trace entry", "job_id", jobID, "error", err)
			}
		}
	}

	solver, err := opt.New(params)
	if err != nil {
		s.markJobFailed(jobID, err)
		return err
	}

	start := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateRunning
		j.StartTime = start
	})
	if s.metrics != nil {
		s.metrics.JobStarted(g.Len())
	}
	slog.Info("Starting job", "job_id", jobID, "method", params.Method, "vertices", g.Len(), "edges", g.NumEdges())

	progressDone := make(chan struct{})
	go s.monitorProgress(ctx, jobID, progressDone)

	checkpointDone := make(chan struct{})
	if s.store != nil && job.Config.CheckpointInterval > 0 {
		go s.monitorCheckpoints(ctx, jobID, time.Duration(job.Config.CheckpointInterval)*time.Second, checkpointDone)
	}

	res, err := solver.Solve(ctx, g)
	close(progressDone)
	close(checkpointDone)
	elapsed := time.Since(start)

	state := StateCompleted
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		state = StateCancelled
	case err != nil:
		state = StateFailed
	}

	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = state
		j.EndTime = &endTime
		if state == StateFailed {
			j.Error = err.Error()
		}
		if res.Order != nil {
			j.BestOrder = res.Order
			j.BestCost = res.Cost
			j.InitialCost = res.InitialCost
			j.Iterations = res.Iterations
			j.Accepted = res.Accepted
			j.Improved = res.Improved
		}
	})

	if s.store != nil {
		cerr := s.saveCheckpoint(jobID)
		if cerr != nil {
			slog.Error("Failed to save final checkpoint", "job_id", jobID, "error", cerr)
		}
	}

	final, _ := jm.GetJob(jobID)
	if s.metrics != nil {
		s.metrics.JobFinished(params.Method, string(state), final.Iterations, final.BestCost, elapsed)
	}
	jm.broadcaster.Broadcast(eventFromJob(final))

	switch state {
	case StateFailed:
		slog.Error("Job failed", "job_id", jobID, "error", err)
		return err
	case StateCancelled:
		slog.Info("Job cancelled", "job_id", jobID, "iterations", res.Iterations, "best_cost", res.Cost)
		return err
	}

	slog.Info("Job completed",
		"job_id", jobID,
		"elapsed", elapsed,
		"iterations", res.Iterations,
		"initial_cost", res.InitialCost,
		"best_cost", res.Cost,
		"accepted", res.Accepted,
		"improved", res.Improved,
	)
	return nil
}

// openTrace returns nil when tracing is disabled or the file cannot be
// created. A broken trace never fails the job.
func (s *Server) openTrace(jobID string) *store.TraceWriter {
	if s.traceEvery <= 0 || s.dataDir == "" {
		return nil
	}
	tw, err := store.NewTraceWriter(s.dataDir, jobID, true)
	if err != nil {
		slog.Warn("Failed to open trace", "job_id", jobID, "error", err)
		return nil
	}
	return tw
}

// monitorProgress periodically broadcasts progress events during the search.
func (s *Server) monitorProgress(ctx context.Context, jobID string, done chan struct{}) {
	ticker := time.NewTicker(s.progressInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			job, exists := s.jobManager.GetJob(jobID)
			if !exists {
				return
			}
			s.jobManager.broadcaster.Broadcast(eventFromJob(job))
		}
	}
}

// monitorCheckpoints periodically saves checkpoints during the search.
func (s *Server) monitorCheckpoints(ctx context.Context, jobID string, interval time.Duration, done chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.saveCheckpoint(jobID); err != nil {
				slog.Error("Failed to save checkpoint", "job_id", jobID, "error", err)
			}
		}
	}
}

// saveCheckpoint stores the job's current best ordering. Jobs that have not
// produced an ordering yet are skipped.
func (s *Server) saveCheckpoint(jobID string) error {
	job, exists := s.jobManager.GetJob(jobID)
	if !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}

	if len(job.BestOrder) == 0 {
		slog.Debug("Skipping checkpoint, no ordering yet", "job_id", jobID)
		return nil
	}

	checkpoint := store.NewCheckpoint(
		jobID,
		job.BestOrder,
		job.BestCost,
		job.InitialCost,
		job.Iterations,
		job.Config,
	)

	// The job context may already be cancelled; the final checkpoint still
	// has to be written.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := s.store.SaveCheckpoint(ctx, jobID, checkpoint)
	if s.metrics != nil {
		s.metrics.CheckpointSaved(err)
	}
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}

	slog.Info("Checkpoint saved",
		"job_id", jobID,
		"iteration", job.Iterations,
		"best_cost", job.BestCost,
	)
	return nil
}

// markJobFailed marks a job as failed with an error message
func (s *Server) markJobFailed(jobID string, err error) {
	endTime := time.Now()
	s.jobManager.UpdateJob(jobID, func(j *Job) {
		j.State = StateFailed
		j.Error = err.Error()
		j.EndTime = &endTime
	})
	job, _ := s.jobManager.GetJob(jobID)
	s.jobManager.broadcaster.Broadcast(eventFromJob(job))
	slog.Error("Job failed", "job_id", jobID, "error", err)
}

package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/annealcycle/internal/store"
)

var resumeCmd = &cobra.Command{
	Use:   "resume [job-id]",
	Short: "Resume a search from its checkpoint",
	Long: `Loads the checkpoint of a job, starts a new search from its best
ordering and writes the improved checkpoint back. The temperature schedule
starts over, so the best cost can only stay the same or drop.`,
	Args: cobra.ExactArgs(1),
	RunE: runResume,
}

func init() {
	addSearchFlags(resumeCmd)
	rootCmd.AddCommand(resumeCmd)
}

func runResume(cmd *cobra.Command, args []string) error {
	jobID := args[0]

	sc := cfg.Store
	sc.DataDir = resolvedDataDir()
	st, closeStore, err := openStore(sc)
	if err != nil {
		return err
	}
	defer closeStore()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	cp, err := st.LoadCheckpoint(ctx, jobID)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to load checkpoint: %w", err)
	}
	if err := cp.Validate(); err != nil {
		return fmt.Errorf("checkpoint %s is invalid: %w", jobID, err)
	}

	g, err := cp.Config.BuildGraph()
	if err != nil {
		return err
	}

	jc := applySearchFlags(cmd, cp.Config)
	if err := cp.IsCompatible(jc); err != nil {
		return err
	}

	slog.Info("Resuming from checkpoint",
		"job_id", jobID,
		"iteration", cp.Iteration,
		"best_cost", cp.BestCost,
	)

	res, err := execute(cmd.Context(), g, jc, jobID, cp.BestOrder)
	if err != nil {
		return err
	}

	if res.Cost > cp.BestCost {
		// mayfly does not start from the checkpoint and may end worse
		res.Order, res.Cost = cp.BestOrder, cp.BestCost
	}
	next := store.NewCheckpoint(jobID, res.Order, res.Cost, cp.InitialCost, cp.Iteration+res.Iterations, jc)
	ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := st.SaveCheckpoint(ctx, jobID, next); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}

	return printResult(cmd.OutOrStdout(), g, jobID, res)
}

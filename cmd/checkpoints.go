package main

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/annealcycle/internal/cycle"
	"github.com/cwbudde/annealcycle/internal/store"
)

const timestampLayout = "2006-01-02 15:04:05"

var (
	checkpointDataDir string
	listSort          string
	keepLast          int
	olderThanDays     int
	forceClean        bool
)

var checkpointsCmd = &cobra.Command{
	Use:   "checkpoints",
	Short: "Inspect and prune saved searches",
	Long: `Checkpoints hold the best ordering of a finished or interrupted search,
together with the graph it was found on. "resume" continues from them.`,
}

var listCheckpointsCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved checkpoints",
	RunE:  runListCheckpoints,
}

var showCheckpointCmd = &cobra.Command{
	Use:   "show <job-id>",
	Short: "Print the cycle stored in a checkpoint",
	Args:  cobra.ExactArgs(1),
	RunE:  runShowCheckpoint,
}

var cleanCheckpointsCmd = &cobra.Command{
	Use:   "clean",
	Short: "Delete checkpoints by age or count",
	Long: `Deletes checkpoints older than --older-than days, and all but the
newest --keep-last. At least one of the two is required.`,
	RunE: runCleanCheckpoints,
}

func init() {
	rootCmd.AddCommand(checkpointsCmd)
	checkpointsCmd.AddCommand(listCheckpointsCmd, showCheckpointCmd, cleanCheckpointsCmd)

	checkpointsCmd.PersistentFlags().StringVar(&checkpointDataDir, "data-dir", "", "Checkpoint directory for the fs backend (default: store.data_dir from config)")

	listCheckpointsCmd.Flags().StringVar(&listSort, "sort", "time", "Order by: time (newest first), cost (cheapest first)")

	cleanCheckpointsCmd.Flags().IntVar(&keepLast, "keep-last", 0, "Keep only the newest N checkpoints (0 = keep all)")
	cleanCheckpointsCmd.Flags().IntVar(&olderThanDays, "older-than", 0, "Delete checkpoints older than N days (0 = no age limit)")
	cleanCheckpointsCmd.Flags().BoolVarP(&forceClean, "force", "f", false, "Skip confirmation prompt")
}

// openCheckpointStore opens the configured store; --data-dir overrides the
// directory of the fs backend.
func openCheckpointStore() (store.Store, func() error, error) {
	sc := cfg.Store
	if checkpointDataDir != "" {
		sc.DataDir = checkpointDataDir
	}
	return openStore(sc)
}

func runListCheckpoints(cmd *cobra.Command, args []string) error {
	st, closeStore, err := openCheckpointStore()
	if err != nil {
		return err
	}
	defer closeStore()

	infos, err := st.ListCheckpoints(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list checkpoints: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(infos) == 0 {
		fmt.Fprintln(out, "No checkpoints found.")
		return nil
	}
	if err := sortCheckpoints(infos, listSort); err != nil {
		return err
	}

	fs, _ := st.(*store.FSStore)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "JOB ID\tSAVED\tMETHOD\tGRAPH\tITERATION\tBEST COST\tSIZE")
	for _, info := range infos {
		fmt.Fprintf(w, "%s\t%s\t%s\t%dV/%dE\t%d\t%s\t%s\n",
			shortID(info.JobID),
			info.Timestamp.Format(timestampLayout),
			info.Method,
			info.Vertices,
			info.Edges,
			info.Iteration,
			info.BestCost,
			checkpointSize(fs, info.JobID),
		)
	}
	w.Flush()

	fmt.Fprintf(out, "\n%d checkpoint(s)\n", len(infos))
	return nil
}

// sortCheckpoints orders infos in place. Infeasible costs sort last.
func sortCheckpoints(infos []store.CheckpointInfo, by string) error {
	switch by {
	case "", "time":
		sort.SliceStable(infos, func(i, j int) bool {
			return infos[i].Timestamp.After(infos[j].Timestamp)
		})
	case "cost":
		sort.SliceStable(infos, func(i, j int) bool {
			return infos[i].BestCost < infos[j].BestCost
		})
	default:
		return fmt.Errorf("unknown sort order %q (want time or cost)", by)
	}
	return nil
}

// checkpointSize is "-" for backends without a directory per job.
func checkpointSize(fs *store.FSStore, jobID string) string {
	if fs == nil {
		return "-"
	}
	size, err := dirSize(filepath.Join(fs.BaseDir(), "jobs", jobID))
	if err != nil {
		return "unknown"
	}
	return formatBytes(size)
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12] + "..."
	}
	return id
}

func runShowCheckpoint(cmd *cobra.Command, args []string) error {
	st, closeStore, err := openCheckpointStore()
	if err != nil {
		return err
	}
	defer closeStore()

	cp, err := st.LoadCheckpoint(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	g, err := cp.Config.BuildGraph()
	if err != nil {
		return fmt.Errorf("checkpoint graph: %w", err)
	}

	order := cycle.Canonical(cp.BestOrder)
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Job:       %s\n", cp.JobID)
	fmt.Fprintf(out, "Saved:     %s\n", cp.Timestamp.Format(timestampLayout))
	fmt.Fprintf(out, "Method:    %s (%d iterations)\n", cp.Config.Method, cp.Iteration)
	fmt.Fprintf(out, "Graph:     %d vertices, %d edges\n", g.Len(), g.NumEdges())
	fmt.Fprintf(out, "Cycle:     %s\n", formatCycle(order))
	fmt.Fprintf(out, "Cost:      %s (initial %s)\n", cp.BestCost, cp.InitialCost)
	for _, s := range cycle.Steps(g, order) {
		if !s.Present {
			fmt.Fprintf(out, "  missing edge %d -> %d\n", s.From, s.To)
		}
	}
	return nil
}

func runCleanCheckpoints(cmd *cobra.Command, args []string) error {
	if keepLast == 0 && olderThanDays == 0 {
		return fmt.Errorf("must specify either --keep-last or --older-than")
	}

	st, closeStore, err := openCheckpointStore()
	if err != nil {
		return err
	}
	defer closeStore()

	ctx := cmd.Context()
	infos, err := st.ListCheckpoints(ctx)
	if err != nil {
		return fmt.Errorf("failed to list checkpoints: %w", err)
	}

	out := cmd.OutOrStdout()
	toDelete := selectCheckpointsForDeletion(infos, keepLast, olderThanDays)
	if len(toDelete) == 0 {
		fmt.Fprintln(out, "Nothing to delete.")
		return nil
	}

	fmt.Fprintf(out, "%d checkpoint(s) will be deleted:\n", len(toDelete))
	for _, info := range toDelete {
		fmt.Fprintf(out, "  %s  iteration %d  cost %s  saved %s\n",
			shortID(info.JobID), info.Iteration, info.BestCost, info.Timestamp.Format(timestampLayout))
	}

	if !forceClean && !confirm(cmd.InOrStdin(), out, "Proceed with deletion?") {
		fmt.Fprintln(out, "Aborted.")
		return nil
	}

	var failed int
	for _, info := range toDelete {
		if err := st.DeleteCheckpoint(ctx, info.JobID); err != nil {
			slog.Error("Failed to delete checkpoint", "job_id", info.JobID, "error", err)
			failed++
			continue
		}
		slog.Debug("Deleted checkpoint", "job_id", info.JobID)
	}

	fmt.Fprintf(out, "Deleted %d checkpoint(s), %d failed.\n", len(toDelete)-failed, failed)
	if failed > 0 {
		return fmt.Errorf("%d checkpoint(s) could not be deleted", failed)
	}
	return nil
}

// confirm asks a yes/no question; anything but y or yes is a no.
func confirm(in io.Reader, out io.Writer, question string) bool {
	fmt.Fprintf(out, "%s [y/N]: ", question)
	line, _ := bufio.NewReader(in).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

// selectCheckpointsForDeletion returns every checkpoint older than
// olderThanDays plus all but the newest keepLast, each at most once, oldest
// first. Zero disables either rule.
func selectCheckpointsForDeletion(infos []store.CheckpointInfo, keepLast int, olderThanDays int) []store.CheckpointInfo {
	byAge := make([]store.CheckpointInfo, len(infos))
	copy(byAge, infos)
	sort.SliceStable(byAge, func(i, j int) bool {
		return byAge[i].Timestamp.Before(byAge[j].Timestamp)
	})

	var cutoff time.Time
	if olderThanDays > 0 {
		cutoff = time.Now().AddDate(0, 0, -olderThanDays)
	}
	surplus := 0
	if keepLast > 0 && len(byAge) > keepLast {
		surplus = len(byAge) - keepLast
	}

	var toDelete []store.CheckpointInfo
	for i, info := range byAge {
		if i < surplus || info.Timestamp.Before(cutoff) {
			toDelete = append(toDelete, info)
		}
	}
	return toDelete
}

func dirSize(path string) (int64, error) {
	var size int64
	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size, err
}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/annealcycle/internal/cycle"
)

var (
	serverURL string
)

var statusCmd = &cobra.Command{
	Use:   "status [job-id]",
	Short: "Query server status or specific job",
	Long: `Queries the server for job status information.
If no job-id is provided, lists all jobs.
If job-id is provided, shows detailed status for that job.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")
	rootCmd.AddCommand(statusCmd)
}

// jobSummary mirrors the fields of the server's job and status responses
// that the CLI prints.
type jobSummary struct {
	ID          string     `json:"id"`
	State       string     `json:"state"`
	Method      string     `json:"method"`
	Vertices    int        `json:"vertices"`
	BestCost    cycle.Cost `json:"bestCost"`
	InitialCost cycle.Cost `json:"initialCost"`
	Iterations  int        `json:"iterations"`
	Budget      int        `json:"budget"`
	Elapsed     float64    `json:"elapsed"`
	IPS         float64    `json:"ips"`
	Error       string     `json:"error"`
	Config      struct {
		Method     string `json:"method"`
		Iterations int    `json:"iterations"`
	} `json:"config"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	w := cmd.OutOrStdout()
	if len(args) == 0 {
		return listJobs(w, fmt.Sprintf("%s/api/v1/jobs", serverURL))
	}
	jobID := args[0]
	return getJobStatus(w, fmt.Sprintf("%s/api/v1/jobs/%s/status", serverURL, jobID), jobID)
}

func getJSON(url string, v any) (int, error) {
	resp, err := http.Get(url)
	if err != nil {
		return 0, fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, fmt.Errorf("server returned error: %s", string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
	}
	return resp.StatusCode, nil
}

func listJobs(w io.Writer, url string) error {
	var jobs []jobSummary
	if _, err := getJSON(url, &jobs); err != nil {
		return err
	}

	if len(jobs) == 0 {
		fmt.Fprintln(w, "No jobs found")
		return nil
	}

	fmt.Fprintf(w, "Found %d job(s):\n\n", len(jobs))
	for _, job := range jobs {
		fmt.Fprintf(w, "Job ID: %s\n", job.ID)
		fmt.Fprintf(w, "  State: %s\n", job.State)
		fmt.Fprintf(w, "  Method: %s\n", job.Config.Method)
		fmt.Fprintf(w, "  Progress: %d/%d iterations\n", job.Iterations, job.Config.Iterations)
		fmt.Fprintf(w, "  Cost: %s -> %s\n", job.InitialCost, job.BestCost)
		fmt.Fprintln(w)
	}

	return nil
}

func getJobStatus(w io.Writer, url, jobID string) error {
	var status jobSummary
	code, err := getJSON(url, &status)
	if code == http.StatusNotFound {
		return fmt.Errorf("job not found: %s", jobID)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Job: %s\n", status.ID)
	fmt.Fprintf(w, "State: %s\n", status.State)
	fmt.Fprintf(w, "Method: %s\n", status.Method)
	fmt.Fprintf(w, "Vertices: %d\n", status.Vertices)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Progress:")
	fmt.Fprintf(w, "  Iterations: %d/%d\n", status.Iterations, status.Budget)
	fmt.Fprintf(w, "  Initial Cost: %s\n", status.InitialCost)
	fmt.Fprintf(w, "  Best Cost: %s\n", status.BestCost)
	if status.InitialCost.Feasible() && status.BestCost.Feasible() && status.InitialCost > 0 {
		improvement := float64(status.InitialCost - status.BestCost)
		fmt.Fprintf(w, "  Improvement: %.2f (%.1f%%)\n", improvement, improvement/float64(status.InitialCost)*100)
	}

	elapsed := time.Duration(status.Elapsed * float64(time.Second))
	fmt.Fprintf(w, "  Elapsed: %s\n", elapsed.Round(time.Millisecond))
	if status.IPS > 0 {
		fmt.Fprintf(w, "  Throughput: %.0f iterations/sec\n", status.IPS)
	}

	if status.Error != "" {
		fmt.Fprintf(w, "\nError: %s\n", status.Error)
	}

	return nil
}

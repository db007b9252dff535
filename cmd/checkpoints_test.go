package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/annealcycle/internal/config"
	"github.com/cwbudde/annealcycle/internal/cycle"
	"github.com/cwbudde/annealcycle/internal/graph"
	"github.com/cwbudde/annealcycle/internal/store"
)

// useDataDir points the CLI config at dir for the duration of the test.
func useDataDir(t *testing.T, dir string) {
	t.Helper()
	original := cfg
	c := &config.Config{}
	c.Store.Backend = "fs"
	c.Store.DataDir = dir
	cfg = c
	t.Cleanup(func() { cfg = original })
}

func testJobConfig() store.JobConfig {
	return store.JobConfig{
		Graph: graph.Spec{
			Vertices: []int{1, 2, 3},
			Edges: []graph.Edge{
				{From: 1, To: 2, Weight: 10},
				{From: 2, To: 3, Weight: 15},
				{From: 3, To: 1, Weight: 20},
			},
		},
		Method:     "anneal",
		Iterations: 100,
	}
}

// checkpointCommand returns a command with a context, captured output and
// stdin preset to input.
func checkpointCommand(input string) (*cobra.Command, *bytes.Buffer) {
	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetIn(strings.NewReader(input))
	return cmd, &out
}

// saveTestCheckpoint stores a triangle checkpoint for jobID saved age ago.
func saveTestCheckpoint(t *testing.T, dir, jobID string, age time.Duration) *store.FSStore {
	t.Helper()
	fs, err := store.NewFSStore(dir)
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}
	cp := store.NewCheckpoint(jobID, []int{2, 3, 1}, 45, 45, 10, testJobConfig())
	cp.Timestamp = time.Now().Add(-age)
	if err := fs.SaveCheckpoint(context.Background(), jobID, cp); err != nil {
		t.Fatalf("SaveCheckpoint: %v", err)
	}
	return fs
}

func ids(infos []store.CheckpointInfo) string {
	parts := make([]string, len(infos))
	for i, info := range infos {
		parts[i] = info.JobID
	}
	return strings.Join(parts, ",")
}

func TestSelectCheckpointsForDeletion(t *testing.T) {
	now := time.Now()
	infos := []store.CheckpointInfo{
		{JobID: "d10", Timestamp: now.AddDate(0, 0, -10)},
		{JobID: "d5", Timestamp: now.AddDate(0, 0, -5)},
		{JobID: "d1", Timestamp: now.AddDate(0, 0, -1)},
		{JobID: "d30", Timestamp: now.AddDate(0, 0, -30)},
		{JobID: "d2", Timestamp: now.AddDate(0, 0, -2)},
	}

	tests := []struct {
		name      string
		keepLast  int
		olderThan int
		want      string
	}{
		{"by age", 0, 7, "d30,d10"},
		{"by count", 2, 0, "d30,d10,d5"},
		{"age and count overlap", 3, 7, "d30,d10"},
		{"count beyond age", 1, 7, "d30,d10,d5,d2"},
		{"keep more than exist", 10, 0, ""},
		{"nothing old enough", 0, 60, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ids(selectCheckpointsForDeletion(infos, tt.keepLast, tt.olderThan))
			if got != tt.want {
				t.Errorf("selected %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSortCheckpoints(t *testing.T) {
	now := time.Now()
	infos := []store.CheckpointInfo{
		{JobID: "old-cheap", BestCost: 5, Timestamp: now.Add(-time.Hour)},
		{JobID: "new-none", BestCost: cycle.Infeasible, Timestamp: now},
		{JobID: "mid-dear", BestCost: 50, Timestamp: now.Add(-time.Minute)},
	}

	if err := sortCheckpoints(infos, "time"); err != nil {
		t.Fatal(err)
	}
	if got := ids(infos); got != "new-none,mid-dear,old-cheap" {
		t.Errorf("time order = %s", got)
	}

	if err := sortCheckpoints(infos, "cost"); err != nil {
		t.Fatal(err)
	}
	if got := ids(infos); got != "old-cheap,mid-dear,new-none" {
		t.Errorf("cost order = %s", got)
	}

	if err := sortCheckpoints(infos, "size"); err == nil {
		t.Error("expected error for unknown sort order")
	}
}

func TestDirSize(t *testing.T) {
	dir := t.TempDir()
	content := []byte("1 -> 2 -> 3 -> 1")
	if err := os.WriteFile(filepath.Join(dir, "a.json"), content, 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "sub"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "sub", "b.json"), content, 0644); err != nil {
		t.Fatal(err)
	}

	size, err := dirSize(dir)
	if err != nil {
		t.Fatalf("dirSize: %v", err)
	}
	if size != int64(2*len(content)) {
		t.Errorf("size = %d, want %d", size, 2*len(content))
	}

	if _, err := dirSize(filepath.Join(dir, "missing")); err == nil {
		t.Error("expected error for missing directory")
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		bytes    int64
		expected string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{1048576, "1.0 MB"},
		{1073741824, "1.0 GB"},
	}
	for _, tt := range tests {
		if got := formatBytes(tt.bytes); got != tt.expected {
			t.Errorf("formatBytes(%d) = %s, want %s", tt.bytes, got, tt.expected)
		}
	}
}

func TestConfirm(t *testing.T) {
	for input, want := range map[string]bool{
		"y\n":   true,
		"YES\n": true,
		" y ":   true,
		"n\n":   false,
		"\n":    false,
		"":      false,
	} {
		var out bytes.Buffer
		if got := confirm(strings.NewReader(input), &out, "Go?"); got != want {
			t.Errorf("confirm(%q) = %v, want %v", input, got, want)
		}
		if !strings.Contains(out.String(), "Go? [y/N]") {
			t.Errorf("prompt missing: %q", out.String())
		}
	}
}

func TestListCheckpoints_Empty(t *testing.T) {
	useDataDir(t, t.TempDir())
	listSort = "time"

	cmd, out := checkpointCommand("")
	if err := runListCheckpoints(cmd, nil); err != nil {
		t.Fatalf("runListCheckpoints: %v", err)
	}
	if !strings.Contains(out.String(), "No checkpoints found.") {
		t.Errorf("unexpected output:\n%s", out.String())
	}
}

func TestListCheckpoints(t *testing.T) {
	dir := t.TempDir()
	saveTestCheckpoint(t, dir, "job-aaaaaaaaaaaaaaaa", time.Hour)
	saveTestCheckpoint(t, dir, "job-b", time.Minute)
	useDataDir(t, dir)
	listSort = "time"

	cmd, out := checkpointCommand("")
	if err := runListCheckpoints(cmd, nil); err != nil {
		t.Fatalf("runListCheckpoints: %v", err)
	}

	got := out.String()
	for _, want := range []string{"JOB ID", "job-aaaaaaaa...", "3V/3E", "anneal", "2 checkpoint(s)"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	if strings.Index(got, "job-b") > strings.Index(got, "job-aaaaaaaa") {
		t.Errorf("newest checkpoint should be listed first:\n%s", got)
	}
}

func TestShowCheckpoint(t *testing.T) {
	dir := t.TempDir()
	saveTestCheckpoint(t, dir, "job-show", time.Minute)
	useDataDir(t, dir)

	cmd, out := checkpointCommand("")
	if err := runShowCheckpoint(cmd, []string{"job-show"}); err != nil {
		t.Fatalf("runShowCheckpoint: %v", err)
	}

	got := out.String()
	for _, want := range []string{
		"Job:       job-show",
		"Graph:     3 vertices, 3 edges",
		"Cycle:     1 -> 2 -> 3 -> 1",
		"Cost:      45 (initial 45)",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}

	if err := runShowCheckpoint(cmd, []string{"no-such-job"}); err == nil {
		t.Error("expected error for unknown job")
	}
}

func TestCleanCheckpoints_RequiresRule(t *testing.T) {
	useDataDir(t, t.TempDir())
	keepLast, olderThanDays = 0, 0

	cmd, _ := checkpointCommand("")
	if err := runCleanCheckpoints(cmd, nil); err == nil {
		t.Error("expected error when no retention rule is given")
	}
}

func TestCleanCheckpoints(t *testing.T) {
	tests := []struct {
		name    string
		force   bool
		input   string
		deleted bool
	}{
		{"force", true, "", true},
		{"confirmed", false, "y\n", true},
		{"declined", false, "n\n", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			fs := saveTestCheckpoint(t, dir, "old-job", 30*24*time.Hour)
			saveTestCheckpoint(t, dir, "new-job", time.Minute)
			useDataDir(t, dir)
			keepLast, olderThanDays, forceClean = 0, 7, tt.force

			cmd, out := checkpointCommand(tt.input)
			if err := runCleanCheckpoints(cmd, nil); err != nil {
				t.Fatalf("runCleanCheckpoints: %v", err)
			}

			ctx := context.Background()
			_, err := fs.LoadCheckpoint(ctx, "old-job")
			if deleted := err != nil; deleted != tt.deleted {
				t.Errorf("old-job deleted = %v, want %v\n%s", deleted, tt.deleted, out.String())
			}
			if _, err := fs.LoadCheckpoint(ctx, "new-job"); err != nil {
				t.Errorf("new-job should survive: %v", err)
			}
		})
	}
}

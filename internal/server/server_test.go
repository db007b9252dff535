package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwbudde/annealcycle/internal/cycle"
	"github.com/cwbudde/annealcycle/internal/graph"
	"github.com/cwbudde/annealcycle/internal/metrics"
)

func doRequest(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

// waitFinished polls until the job reaches a terminal state.
func waitFinished(t *testing.T, s *Server, id string) Job {
	t.Helper()
	var job Job
	require.Eventually(t, func() bool {
		job, _ = s.jobManager.GetJob(id)
		return job.State.Finished()
	}, 5*time.Second, 10*time.Millisecond)
	return job
}

func TestServer_CreateJob(t *testing.T) {
	s := NewServer("", Options{})
	h := s.Router()

	w := doRequest(t, h, http.MethodPost, "/api/v1/jobs", JobConfig{
		Graph:      triangleSpec(),
		Iterations: 200,
		Seed:       42,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var job Job
	require.NoError(t, json.NewDecoder(w.Body).Decode(&job))
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, StatePending, job.State)
	assert.Equal(t, "anneal", job.Config.Method)

	final := waitFinished(t, s, job.ID)
	assert.Equal(t, StateCompleted, final.State)
	assert.Equal(t, cycle.Cost(45), final.BestCost)
}

func TestServer_CreateJob_AppliesDefaults(t *testing.T) {
	s := NewServer("", Options{Defaults: JobConfig{Method: "anneal", Iterations: 30, CoolingRate: 0.5}})

	w := doRequest(t, s.Router(), http.MethodPost, "/api/v1/jobs", JobConfig{Graph: triangleSpec()})
	require.Equal(t, http.StatusCreated, w.Code)

	var job Job
	require.NoError(t, json.NewDecoder(w.Body).Decode(&job))
	assert.Equal(t, 30, job.Config.Iterations)
	assert.Equal(t, 0.5, job.Config.CoolingRate)
	waitFinished(t, s, job.ID)
}

func TestServer_CreateJob_Rejects(t *testing.T) {
	tests := []struct {
		name string
		body any
	}{
		{"bad json", "not an object"},
		{"self loop", JobConfig{Graph: graph.Spec{Edges: []graph.Edge{{From: 1, To: 1, Weight: 1}}}}},
		{"negative weight", JobConfig{Graph: graph.Spec{Edges: []graph.Edge{{From: 1, To: 2, Weight: -1}}}}},
		{"one vertex", JobConfig{Graph: graph.Spec{Vertices: []int{1}}}},
		{"too many vertices", JobConfig{Graph: ringSpec(5)}},
		{"unknown method", JobConfig{Graph: triangleSpec(), Method: "genetic"}},
		{"bad cooling", JobConfig{Graph: triangleSpec(), CoolingRate: -1}},
		{"bad initial", createJobRequest{JobConfig: JobConfig{Graph: triangleSpec()}, Initial: []int{1, 1, 2}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewServer("", Options{MaxVertices: 4})
			w := doRequest(t, s.Router(), http.MethodPost, "/api/v1/jobs", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), "error")
			assert.Empty(t, s.jobManager.ListJobs())
		})
	}
}

// sparseSpec has n vertices and a single edge.
func sparseSpec(n int) graph.Spec {
	vertices := make([]int, n)
	for i := range vertices {
		vertices[i] = i + 1
	}
	return graph.Spec{Vertices: vertices, Edges: []graph.Edge{{From: 1, To: 2, Weight: 1}}}
}

func TestServer_DefaultVertexLimit(t *testing.T) {
	s := NewServer("", Options{})
	h := s.Router()
	big := sparseSpec(DefaultMaxVertices + 1)

	w := doRequest(t, h, http.MethodPost, "/api/v1/jobs", JobConfig{Graph: big})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "limit is 5000")
	assert.Empty(t, s.jobManager.ListJobs())

	order := make([]int, len(big.Vertices))
	copy(order, big.Vertices)
	w = doRequest(t, h, http.MethodPost, "/api/v1/cost", costRequest{Graph: big, Order: order})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServer_BodyLimit(t *testing.T) {
	s := NewServer("", Options{MaxBodyBytes: 64})
	h := s.Router()

	w := doRequest(t, h, http.MethodPost, "/api/v1/jobs", JobConfig{Graph: triangleSpec()})
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Empty(t, s.jobManager.ListJobs())

	w = doRequest(t, h, http.MethodPost, "/api/v1/cost", costRequest{Graph: triangleSpec(), Order: []int{1, 2, 3}})
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestServer_CreateJob_WithInitial(t *testing.T) {
	s := NewServer("", Options{})

	w := doRequest(t, s.Router(), http.MethodPost, "/api/v1/jobs", createJobRequest{
		JobConfig: JobConfig{Graph: triangleSpec(), Iterations: 10},
		Initial:   []int{2, 3, 1},
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var job Job
	require.NoError(t, json.NewDecoder(w.Body).Decode(&job))
	final := waitFinished(t, s, job.ID)
	assert.Equal(t, cycle.Cost(45), final.InitialCost)
	assert.Equal(t, cycle.Cost(45), final.BestCost)
}

func TestServer_ListJobs(t *testing.T) {
	s := NewServer("", Options{})
	s.jobManager.CreateJob(JobConfig{Graph: triangleSpec()}, nil)
	s.jobManager.CreateJob(JobConfig{Graph: ringSpec(4)}, nil)

	w := doRequest(t, s.Router(), http.MethodGet, "/api/v1/jobs", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var jobs []Job
	require.NoError(t, json.NewDecoder(w.Body).Decode(&jobs))
	assert.Len(t, jobs, 2)
}

func TestServer_GetJob(t *testing.T) {
	s := NewServer("", Options{})
	job := s.jobManager.CreateJob(JobConfig{Graph: triangleSpec()}, nil)

	w := doRequest(t, s.Router(), http.MethodGet, "/api/v1/jobs/"+job.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var got Job
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, cycle.Infeasible, got.BestCost)
	assert.True(t, got.Config.Graph.Equal(triangleSpec()))

	w = doRequest(t, s.Router(), http.MethodGet, "/api/v1/jobs/nonexistent", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_GetJobStatus(t *testing.T) {
	s := NewServer("", Options{})
	job := s.jobManager.CreateJob(JobConfig{Graph: triangleSpec(), Method: "anneal", Iterations: 500}, nil)

	w := doRequest(t, s.Router(), http.MethodGet, "/api/v1/jobs/"+job.ID+"/status", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var status map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
	assert.Equal(t, job.ID, status["id"])
	assert.Equal(t, string(StatePending), status["state"])
	assert.Equal(t, "anneal", status["method"])
	assert.EqualValues(t, 3, status["vertices"])
	assert.EqualValues(t, 500, status["budget"])
	assert.Nil(t, status["bestCost"])
	assert.Contains(t, status, "elapsed")
	assert.Contains(t, status, "ips")
}

func TestServer_GetJobStatus_NotFound(t *testing.T) {
	s := NewServer("", Options{})
	w := doRequest(t, s.Router(), http.MethodGet, "/api/v1/jobs/nonexistent/status", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_GetCycle(t *testing.T) {
	s := NewServer("", Options{})
	job := s.jobManager.CreateJob(JobConfig{Graph: triangleSpec()}, nil)

	w := doRequest(t, s.Router(), http.MethodGet, "/api/v1/jobs/"+job.ID+"/cycle", nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "no ordering yet")

	require.NoError(t, s.jobManager.UpdateJob(job.ID, func(j *Job) {
		j.BestOrder = []int{3, 1, 2}
		j.BestCost = 45
	}))

	w = doRequest(t, s.Router(), http.MethodGet, "/api/v1/jobs/"+job.ID+"/cycle", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp cycleResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, []int{1, 2, 3}, resp.Order)
	assert.Equal(t, cycle.Cost(45), resp.Cost)
	assert.True(t, resp.Feasible)
	require.Len(t, resp.Steps, 3)
	assert.Equal(t, cycle.Step{From: 1, To: 2, Weight: 10, Present: true}, resp.Steps[0])
}

func TestServer_CancelJob(t *testing.T) {
	s := NewServer("", Options{})
	h := s.Router()

	w := doRequest(t, h, http.MethodPost, "/api/v1/jobs", JobConfig{
		Graph:      ringSpec(8),
		Iterations: 50_000_000,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var job Job
	require.NoError(t, json.NewDecoder(w.Body).Decode(&job))

	w = doRequest(t, h, http.MethodDelete, "/api/v1/jobs/"+job.ID, nil)
	assert.Equal(t, http.StatusAccepted, w.Code)

	final := waitFinished(t, s, job.ID)
	assert.Equal(t, StateCancelled, final.State)
	assert.Len(t, final.BestOrder, 8)

	w = doRequest(t, h, http.MethodDelete, "/api/v1/jobs/"+job.ID, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doRequest(t, h, http.MethodDelete, "/api/v1/jobs/nonexistent", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_Cost(t *testing.T) {
	m := metrics.New("test")
	s := NewServer("", Options{Metrics: m})
	h := s.Router()

	tests := []struct {
		name     string
		order    []int
		code     int
		cost     cycle.Cost
		feasible bool
	}{
		{"forward", []int{1, 2, 3}, http.StatusOK, 45, true},
		{"rotated", []int{2, 3, 1}, http.StatusOK, 45, true},
		{"reversed", []int{3, 2, 1}, http.StatusOK, cycle.Infeasible, false},
		{"duplicate", []int{1, 1, 2}, http.StatusBadRequest, 0, false},
		{"short", []int{1, 2}, http.StatusBadRequest, 0, false},
		{"unknown", []int{1, 2, 9}, http.StatusBadRequest, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(t, h, http.MethodPost, "/api/v1/cost", costRequest{Graph: triangleSpec(), Order: tt.order})
			require.Equal(t, tt.code, w.Code)
			if tt.code != http.StatusOK {
				return
			}
			var resp cycleResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
			assert.Equal(t, tt.cost, resp.Cost)
			assert.Equal(t, tt.feasible, resp.Feasible)
			assert.Equal(t, tt.order, resp.Order)
		})
	}

	w := doRequest(t, h, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `test_cost_requests_total{result="ok"} 3`)
	assert.Contains(t, w.Body.String(), `test_cost_requests_total{result="error"} 3`)
}

func TestServer_Health(t *testing.T) {
	s := NewServer("", Options{})
	w := doRequest(t, s.Router(), http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)

	w = doRequest(t, s.Router(), http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "metrics disabled")
}

func TestServer_CORS(t *testing.T) {
	s := NewServer("", Options{})
	w := doRequest(t, s.Router(), http.MethodOptions, "/api/v1/jobs", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestServer_JobStream_SSE(t *testing.T) {
	s := NewServer("", Options{ProgressInterval: 5 * time.Millisecond})
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	job := s.jobManager.CreateJob(s.withDefaults(JobConfig{
		Graph:      ringSpec(6),
		Iterations: 20000,
	}), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/jobs/"+job.ID+"/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	go s.runJob(ctx, job.ID)

	// The stream ends once a terminal event has been sent.
	var events []ProgressEvent
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev ProgressEvent
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
		events = append(events, ev)
	}

	require.NotEmpty(t, events)
	assert.Equal(t, job.ID, events[0].JobID)
	last := events[len(events)-1]
	assert.Equal(t, StateCompleted, last.State)
	assert.Equal(t, 20000, last.Iterations)
	assert.Equal(t, cycle.Cost(6), last.BestCost)
}

func TestServer_JobStream_Finished(t *testing.T) {
	s := NewServer("", Options{})
	job := s.jobManager.CreateJob(JobConfig{Graph: triangleSpec()}, nil)
	require.NoError(t, s.jobManager.UpdateJob(job.ID, func(j *Job) { j.State = StateCompleted }))

	w := doRequest(t, s.Router(), http.MethodGet, "/api/v1/jobs/"+job.ID+"/stream", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Body.String(), "data: {"))
	assert.Contains(t, w.Body.String(), `"state":"completed"`)
}

func TestServer_JobStream_NotFound(t *testing.T) {
	s := NewServer("", Options{})
	w := doRequest(t, s.Router(), http.MethodGet, "/api/v1/jobs/nonexistent/stream", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEventBroadcaster(t *testing.T) {
	eb := NewEventBroadcaster()

	ch := eb.Subscribe("job1")
	eb.Broadcast(ProgressEvent{JobID: "job1", State: StateRunning, Iterations: 10, BestCost: 100.5})
	eb.Broadcast(ProgressEvent{JobID: "job2", State: StateRunning, Iterations: 99})

	select {
	case received := <-ch:
		assert.Equal(t, "job1", received.JobID)
		assert.Equal(t, 10, received.Iterations)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	// Late subscribers get the last event first.
	late := eb.Subscribe("job1")
	select {
	case received := <-late:
		assert.Equal(t, 10, received.Iterations)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for replayed event")
	}

	eb.Unsubscribe("job1", ch)
	_, open := <-ch
	assert.False(t, open)

	eb.CleanupJob("job1")
	_, open = <-late
	assert.False(t, open)

	// Unsubscribing after cleanup is a no-op.
	eb.Unsubscribe("job1", late)
}

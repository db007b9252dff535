package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/cwbudde/annealcycle/internal/cycle"
	"github.com/cwbudde/annealcycle/internal/graph"
	"github.com/cwbudde/annealcycle/internal/metrics"
	"github.com/cwbudde/annealcycle/internal/opt"
	"github.com/cwbudde/annealcycle/internal/store"
)

// Options configures a Server. The zero value serves jobs without
// checkpoints, traces or metrics.
type Options struct {
	// Store receives periodic and final checkpoints. Optional.
	Store store.Store
	// DataDir holds job traces. Empty disables tracing.
	DataDir string
	// TraceEvery writes a trace entry every N iterations. 0 disables tracing.
	TraceEvery int
	Metrics    *metrics.Metrics
	// Defaults fills fields a job submission leaves unset.
	Defaults JobConfig
	// MaxVertices rejects larger graphs. 0 means DefaultMaxVertices.
	MaxVertices int
	// MaxBodyBytes caps request bodies. 0 means DefaultMaxBodyBytes.
	MaxBodyBytes int64

	ReadTimeout      time.Duration
	ProgressInterval time.Duration
	PingInterval     time.Duration
}

// Limits applied when Options leaves them unset. Workers keep a dense
// n*n weight matrix, so the vertex limit bounds job memory.
const (
	DefaultMaxVertices  = 5000
	DefaultMaxBodyBytes = 8 << 20
)

// Server represents the HTTP server
type Server struct {
	jobManager *JobManager
	addr       string
	server     *http.Server

	store            store.Store
	dataDir          string
	traceEvery       int
	metrics          *metrics.Metrics
	defaults         JobConfig
	maxVertices      int
	maxBodyBytes     int64
	readTimeout      time.Duration
	progressInterval time.Duration
	pingInterval     time.Duration
}

// NewServer creates a new HTTP server
func NewServer(addr string, opts Options) *Server {
	s := &Server{
		jobManager:       NewJobManager(),
		addr:             addr,
		store:            opts.Store,
		dataDir:          opts.DataDir,
		traceEvery:       opts.TraceEvery,
		metrics:          opts.Metrics,
		defaults:         opts.Defaults,
		maxVertices:      opts.MaxVertices,
		maxBodyBytes:     opts.MaxBodyBytes,
		readTimeout:      opts.ReadTimeout,
		progressInterval: opts.ProgressInterval,
		pingInterval:     opts.PingInterval,
	}
	if s.progressInterval <= 0 {
		s.progressInterval = 500 * time.Millisecond // Throttle to 2 updates per second
	}
	if s.maxVertices <= 0 {
		s.maxVertices = DefaultMaxVertices
	}
	if s.maxBodyBytes <= 0 {
		s.maxBodyBytes = DefaultMaxBodyBytes
	}
	if s.pingInterval <= 0 {
		s.pingInterval = 15 * time.Second
	}
	return s
}

// Router builds the HTTP handler with all routes and middleware.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.loggingMiddleware)
	r.Use(s.corsMiddleware)

	r.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/cost", s.handleCost)

		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", s.handleCreateJob)
			r.Get("/", s.handleListJobs)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetJob)
				r.Delete("/", s.handleCancelJob)
				r.Get("/status", s.handleGetJobStatus)
				r.Get("/cycle", s.handleGetCycle)
				r.Get("/stream", s.handleJobStream)
			})
		})
	})
	return r
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: s.readTimeout,
	}

	slog.Info("Starting HTTP server", "addr", s.addr)
	return s.server.ListenAndServe()
}

// Shutdown cancels running jobs and gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down HTTP server")
	s.jobManager.CancelAll()
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// createJobRequest is a JobConfig with an optional starting ordering.
type createJobRequest struct {
	JobConfig
	Initial []int `json:"initial,omitempty"`
}

// withDefaults fills unset fields from the server defaults. The graph is
// never defaulted.
func (s *Server) withDefaults(c JobConfig) JobConfig {
	d := s.defaults
	if c.Method == "" {
		c.Method = d.Method
	}
	if c.Method == "" {
		c.Method = opt.MethodAnneal
	}
	if c.Iterations <= 0 {
		c.Iterations = d.Iterations
	}
	if c.Iterations <= 0 {
		c.Iterations = opt.DefaultParams().Iterations
	}
	if c.InitialTemperature == 0 {
		c.InitialTemperature = d.InitialTemperature
	}
	if c.CoolingRate == 0 {
		c.CoolingRate = d.CoolingRate
	}
	if c.PopSize == 0 {
		c.PopSize = d.PopSize
	}
	if c.Seed == 0 {
		c.Seed = d.Seed
	}
	if c.CheckpointInterval == 0 {
		c.CheckpointInterval = d.CheckpointInterval
	}
	return c
}

// handleCreateJob handles POST /api/v1/jobs
func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := s.decodeBody(w, r, &req); err != nil {
		writeError(w, decodeStatus(err), err.Error())
		return
	}

	config := s.withDefaults(req.JobConfig)

	g, err := config.BuildGraph()
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid graph: %v", err))
		return
	}
	if g.Len() < 2 {
		writeError(w, http.StatusBadRequest, "graph needs at least 2 vertices")
		return
	}
	if err := s.checkSize(g); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Initial != nil {
		if err := cycle.Validate(g, req.Initial); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid initial ordering: %v", err))
			return
		}
	}

	// Reject bad methods and schedules before a job exists.
	if _, err := opt.New(config.SolverParams()); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	job := s.jobManager.CreateJob(config, req.Initial)

	// The cancel func is registered before the worker starts so a DELETE
	// right after creation is never lost.
	ctx, cancel := context.WithCancel(context.Background())
	s.jobManager.setCancel(job.ID, cancel)
	go func() {
		defer cancel()
		s.runJob(ctx, job.ID)
	}()

	writeJSON(w, http.StatusCreated, job)
}

// handleListJobs handles GET /api/v1/jobs
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.jobManager.ListJobs())
}

// handleGetJob handles GET /api/v1/jobs/{id}
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, exists := s.jobManager.GetJob(chi.URLParam(r, "id"))
	if !exists {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// jobStatus is the compact progress view of a job.
type jobStatus struct {
	ID          string     `json:"id"`
	State       JobState   `json:"state"`
	Method      string     `json:"method"`
	Vertices    int        `json:"vertices"`
	BestCost    cycle.Cost `json:"bestCost"`
	InitialCost cycle.Cost `json:"initialCost"`
	Iterations  int        `json:"iterations"`
	Budget      int        `json:"budget"`
	Elapsed     float64    `json:"elapsed"` // seconds
	IPS         float64    `json:"ips"`
	StartTime   time.Time  `json:"startTime"`
	EndTime     *time.Time `json:"endTime,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// handleGetJobStatus handles GET /api/v1/jobs/{id}/status
func (s *Server) handleGetJobStatus(w http.ResponseWriter, r *http.Request) {
	job, exists := s.jobManager.GetJob(chi.URLParam(r, "id"))
	if !exists {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}

	elapsed := job.Elapsed()
	var ips float64
	if elapsed.Seconds() > 0 {
		ips = float64(job.Iterations) / elapsed.Seconds()
	}

	vertices := len(job.Config.Graph.Vertices)
	if vertices == 0 {
		if g, err := job.Config.BuildGraph(); err == nil {
			vertices = g.Len()
		}
	}

	writeJSON(w, http.StatusOK, jobStatus{
		ID:          job.ID,
		State:       job.State,
		Method:      job.Config.Method,
		Vertices:    vertices,
		BestCost:    job.BestCost,
		InitialCost: job.InitialCost,
		Iterations:  job.Iterations,
		Budget:      job.Config.Iterations,
		Elapsed:     elapsed.Seconds(),
		IPS:         ips,
		StartTime:   job.StartTime,
		EndTime:     job.EndTime,
		Error:       job.Error,
	})
}

// cycleResponse describes an ordering hop by hop.
type cycleResponse struct {
	Order    []int        `json:"order"`
	Cost     cycle.Cost   `json:"cost"`
	Feasible bool         `json:"feasible"`
	Steps    []cycle.Step `json:"steps"`
}

func describeCycle(g *graph.Graph, order []int) cycleResponse {
	c := cycle.Evaluate(g, order)
	return cycleResponse{
		Order:    order,
		Cost:     c,
		Feasible: c.Feasible(),
		Steps:    cycle.Steps(g, order),
	}
}

// handleGetCycle handles GET /api/v1/jobs/{id}/cycle
func (s *Server) handleGetCycle(w http.ResponseWriter, r *http.Request) {
	job, exists := s.jobManager.GetJob(chi.URLParam(r, "id"))
	if !exists {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if len(job.BestOrder) == 0 {
		writeError(w, http.StatusNotFound, "no ordering yet")
		return
	}

	g, err := job.Config.BuildGraph()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, describeCycle(g, cycle.Canonical(job.BestOrder)))
}

// handleCancelJob handles DELETE /api/v1/jobs/{id}
func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	err := s.jobManager.CancelJob(chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, ErrJobNotFound):
		writeError(w, http.StatusNotFound, "job not found")
	case errors.Is(err, ErrJobFinished):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		w.WriteHeader(http.StatusAccepted)
	}
}

type costRequest struct {
	Graph graph.Spec `json:"graph"`
	Order []int      `json:"order"`
}

// handleCost handles POST /api/v1/cost
func (s *Server) handleCost(w http.ResponseWriter, r *http.Request) {
	resp, err := s.cost(w, r)
	if s.metrics != nil {
		s.metrics.CostServed(err)
	}
	if err != nil {
		writeError(w, decodeStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) cost(w http.ResponseWriter, r *http.Request) (cycleResponse, error) {
	var req costRequest
	if err := s.decodeBody(w, r, &req); err != nil {
		return cycleResponse{}, err
	}
	g, err := graph.FromSpec(req.Graph)
	if err != nil {
		return cycleResponse{}, fmt.Errorf("invalid graph: %w", err)
	}
	if err := s.checkSize(g); err != nil {
		return cycleResponse{}, err
	}
	if err := cycle.Validate(g, req.Order); err != nil {
		return cycleResponse{}, fmt.Errorf("invalid ordering: %w", err)
	}
	return describeCycle(g, req.Order), nil
}

// decodeBody decodes a JSON request body of at most maxBodyBytes.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

// decodeStatus maps a request error to 413 for oversized bodies and 400
// otherwise.
func decodeStatus(err error) int {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

func (s *Server) checkSize(g *graph.Graph) error {
	if g.Len() > s.maxVertices {
		return fmt.Errorf("graph has %d vertices, limit is %d", g.Len(), s.maxVertices)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"running": len(s.jobManager.GetRunningJobs()),
	})
}

// corsMiddleware adds CORS headers
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"request_id", middleware.GetReqID(r.Context()),
			"duration", time.Since(start),
		)
	})
}

package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"cvrpsolver/internal/metrics"
	"cvrpsolver/internal/model"
	"cvrpsolver/internal/opt"
	"cvrpsolver/internal/store"
)

const maxSolveBody = 32 << 20

// solveJob is a validated request ready to run.
type solveJob struct {
	run            store.Run
	inst           *opt.Instance
	params         opt.Params
	callbackURL    string
	callbackSecret string
}

// SolveHandler handles POST /v1/solve. The run executes in the background
// unless the query carries wait=true.
func (s *Server) SolveHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.limiter != nil && !s.limiter.Allow() {
		w.Header().Set("Retry-After", "1")
		writeProblem(w, http.StatusTooManyRequests, "Too Many Requests", "solve rate limit exceeded", r.URL.Path)
		return
	}
	var req model.SolveRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSolveBody))
	if err := dec.Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	job, err := s.prepare(req)
	if err != nil {
		writeError(w, r, "Invalid solve request", err)
		return
	}
	job.run, err = s.Store.CreateRun(r.Context(), job.run)
	if err != nil {
		writeError(w, r, "Create run failed", err)
		return
	}
	log.Printf("[API] run %s queued for %s (n=%d)", job.run.ID, req.Name, req.Dimension)

	if r.URL.Query().Get("wait") == "true" {
		run := s.execute(r.Context(), job)
		writeJSON(w, http.StatusOK, run)
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.execute(context.Background(), job)
	}()
	writeJSON(w, http.StatusAccepted, model.SolveAccepted{RunID: job.run.ID, Status: string(store.StatusQueued)})
}

// prepare validates req and builds the engine inputs so that every input
// error surfaces before a run is recorded.
func (s *Server) prepare(req model.SolveRequest) (solveJob, error) {
	if err := validateSolveRequest(&req); err != nil {
		return solveJob{}, err
	}
	inst, err := opt.NewInstance(req.Name, req.Dimension, req.Capacity, req.Demand, req.EdgeWeight, req.NodeCoord)
	if err != nil {
		return solveJob{}, err
	}
	cfg, err := s.Config.Merge(req.Config)
	if err != nil {
		return solveJob{}, err
	}
	if req.Seed != nil {
		cfg.General.RandomSeed = *req.Seed
	}
	if req.TimeLimitSeconds != nil {
		cfg.General.TimeLimitSeconds = *req.TimeLimitSeconds
	}
	params, err := cfg.Params()
	if err != nil {
		return solveJob{}, err
	}
	return solveJob{
		run: store.Run{
			InstanceName: req.Name,
			Status:       store.StatusQueued,
			Seed:         params.Seed,
			OptimalCost:  req.OptimalCost,
		},
		inst:           inst,
		params:         params,
		callbackURL:    req.CallbackURL,
		callbackSecret: req.CallbackSecret,
	}, nil
}

// execute runs the solver for job once a worker slot is free and records the
// outcome. ctx only bounds the wait for a slot. It never returns an error;
// failures end up on the run.
func (s *Server) execute(ctx context.Context, job solveJob) store.Run {
	select {
	case s.slots <- struct{}{}:
	case <-ctx.Done():
		return s.finishFailed(context.Background(), job, ctx.Err())
	}
	defer func() { <-s.slots }()
	// the caller may go away mid-solve; the outcome must still be stored
	ctx = context.WithoutCancel(ctx)
	metrics.ActiveSolves.Inc()
	defer metrics.ActiveSolves.Dec()

	run := job.run
	run.Status = store.StatusRunning
	if err := s.Store.UpdateRun(ctx, run); err != nil {
		log.Printf("[API] run %s: mark running: %v", run.ID, err)
	}
	s.Broker.Publish(run.ID, SSEEvent{Type: model.EventRunStarted, Data: map[string]any{
		"runId": run.ID, "name": run.InstanceName, "seed": run.Seed,
	}})

	obs := opt.ObserverFunc(func(iteration int, cost float64) {
		s.Broker.Publish(run.ID, SSEEvent{Type: model.EventRunImproved, Data: map[string]any{
			"runId": run.ID, "iteration": iteration, "cost": cost,
		}})
	})
	res, err := opt.Solve(job.inst, job.params, obs)
	if err != nil {
		return s.finishFailed(ctx, job, err)
	}
	opt.RecordMetrics(run.InstanceName, "sa_vnd", res)

	finished := time.Now().UTC()
	run.Status = store.StatusSucceeded
	run.Cost = res.Best.Cost
	run.InitialCost = res.Initial.Cost
	run.Routes = res.Best.Routes
	run.BestTrace = res.BestTrace
	run.IterTrace = res.IterTrace
	run.StopReason = string(res.Stop)
	run.FinishedAt = &finished
	if b, err := json.Marshal(res.Metrics); err == nil {
		run.Metrics = b
	}
	if run.OptimalCost != nil {
		if gap, ok := opt.GapPercent(res.Best.Cost, *run.OptimalCost); ok {
			run.GapPercent = &gap
			metrics.SolveGap.Observe(gap)
		}
	}
	if err := s.Store.UpdateRun(ctx, run); err != nil {
		log.Printf("[API] run %s: save result: %v", run.ID, err)
	}
	metrics.SolveRuns.WithLabelValues(string(run.Status), run.StopReason).Inc()
	metrics.SolveDuration.Observe(res.Elapsed.Seconds())
	metrics.SolveIterations.Add(float64(res.Metrics.Iterations))

	done := model.RunCompleted{
		RunID:      run.ID,
		Cost:       run.Cost,
		Routes:     len(run.Routes),
		GapPercent: run.GapPercent,
		StopReason: run.StopReason,
		ElapsedMs:  res.Elapsed.Milliseconds(),
	}
	s.Broker.Publish(run.ID, SSEEvent{Type: model.EventRunCompleted, Data: toMap(done)})
	s.emit(ctx, job, model.EventRunCompleted, done)
	log.Printf("[API] run %s: cost %.2f with %d routes (%s) in %v", run.ID, run.Cost, len(run.Routes), run.StopReason, res.Elapsed)
	return run
}

func (s *Server) finishFailed(ctx context.Context, job solveJob, cause error) store.Run {
	run := job.run
	finished := time.Now().UTC()
	run.Status = store.StatusFailed
	run.Error = cause.Error()
	run.FinishedAt = &finished
	if err := s.Store.UpdateRun(ctx, run); err != nil {
		log.Printf("[API] run %s: save failure: %v", run.ID, err)
	}
	metrics.SolveRuns.WithLabelValues(string(run.Status), "").Inc()

	failed := model.RunFailed{RunID: run.ID, Error: run.Error}
	s.Broker.Publish(run.ID, SSEEvent{Type: model.EventRunFailed, Data: toMap(failed)})
	s.emit(ctx, job, model.EventRunFailed, failed)
	log.Printf("[API] run %s failed: %v", run.ID, cause)
	return run
}

func (s *Server) emit(ctx context.Context, job solveJob, eventType string, data any) {
	if _, err := s.Pub.Emit(ctx, job.run.ID, job.callbackURL, job.callbackSecret, eventType, data); err != nil {
		log.Printf("[API] run %s: queue %s callback: %v", job.run.ID, eventType, err)
	}
}

// toMap flattens an event DTO into the broker's map form.
func toMap(v any) map[string]any {
	b, err := json.Marshal(v)
	if err != nil {
		return map[string]any{"error": fmt.Sprint(err)}
	}
	var m map[string]any
	_ = json.Unmarshal(b, &m)
	return m
}

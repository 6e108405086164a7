package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"cvrpsolver/internal/model"
	"cvrpsolver/internal/opt"
	"cvrpsolver/internal/store"
	"cvrpsolver/internal/vrplib"
)

// RunsHandler handles GET /v1/runs
func (s *Server) RunsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	cursor := r.URL.Query().Get("cursor")
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeProblem(w, http.StatusBadRequest, "Invalid limit", v, r.URL.Path)
			return
		}
		limit = n
	}
	items, next, err := s.Store.ListRuns(r.Context(), cursor, limit)
	if err != nil {
		writeError(w, r, "List runs failed", err)
		return
	}
	if items == nil {
		items = []store.Run{}
	}
	writeJSON(w, http.StatusOK, model.RunList[store.Run]{Items: items, NextCursor: next})
}

// RunByIDHandler handles GET /v1/runs/{id} and its /solution, /webhooks and
// /events/stream sub-resources.
func (s *Server) RunByIDHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/runs/"), "/")
	parts := strings.Split(rest, "/")
	id := parts[0]
	if id == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	sub := strings.Join(parts[1:], "/")
	if sub == "events/stream" {
		s.streamRunEvents(w, r, id)
		return
	}

	run, err := s.Store.GetRun(r.Context(), id)
	if err != nil {
		writeError(w, r, "Run not found", err)
		return
	}
	switch sub {
	case "":
		writeJSON(w, http.StatusOK, run)
	case "solution":
		if run.Status != store.StatusSucceeded {
			writeProblem(w, http.StatusConflict, "Run has no solution", "status is "+string(run.Status), r.URL.Path)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", run.InstanceName+"_computed.sol"))
		_ = vrplib.WriteSolution(w, run.Routes, run.Cost)
	case "webhooks":
		items, err := s.Store.ListWebhookDeliveries(r.Context(), id)
		if err != nil {
			writeError(w, r, "List deliveries failed", err)
			return
		}
		if items == nil {
			items = []store.WebhookDelivery{}
		}
		writeJSON(w, http.StatusOK, model.RunList[store.WebhookDelivery]{Items: items})
	default:
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
	}
}

// streamRunEvents serves run events as Server-Sent Events until the client
// goes away or the run finishes.
func (s *Server) streamRunEvents(w http.ResponseWriter, r *http.Request, id string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, http.StatusInternalServerError, "Streaming unsupported", "", r.URL.Path)
		return
	}
	// subscribe before reading the run so a completion in between is not lost
	ch := s.Broker.Subscribe(id)
	defer s.Broker.Unsubscribe(id, ch)

	run, err := s.Store.GetRun(r.Context(), id)
	if err != nil {
		writeError(w, r, "Run not found", err)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	heartbeat := func(status store.Status) {
		fmt.Fprintf(w, "event: heartbeat\n")
		fmt.Fprintf(w, "data: {\"runId\":\"%s\",\"status\":\"%s\",\"ts\":\"%s\"}\n\n", id, status, time.Now().UTC().Format(time.RFC3339))
		flusher.Flush()
	}
	heartbeat(run.Status)
	if run.Status.Done() {
		return
	}

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			b, _ := json.Marshal(evt.Data)
			fmt.Fprintf(w, "event: %s\n", evt.Type)
			fmt.Fprintf(w, "data: %s\n\n", b)
			flusher.Flush()
			if evt.Type == model.EventRunCompleted || evt.Type == model.EventRunFailed {
				return
			}
		case <-ticker.C:
			if cur, err := s.Store.GetRun(r.Context(), id); err == nil {
				run = cur
			}
			heartbeat(run.Status)
		}
	}
}

// OptimizerConfigHandler returns the server's default solver configuration.
func (s *Server) OptimizerConfigHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"defaults": s.Config})
}

// SolveMetricsHandler returns the latest run summary per instance and
// algorithm, optionally filtered by ?instance=.
func (s *Server) SolveMetricsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": opt.GetMetrics(r.URL.Query().Get("instance"))})
}

// Health
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
	defer cancel()
	if err := s.Store.Ping(ctx); err != nil {
		writeProblem(w, http.StatusServiceUnavailable, "Not Ready", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

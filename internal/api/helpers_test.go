package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/time/rate"

	"cvrpsolver/internal/config"
	"cvrpsolver/internal/store"
)

func newTestServer(t *testing.T, limiter *rate.Limiter) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.SimulatedAnnealing.IterationsPerTemperature = 20
	cfg.LocalSearch.MaxIterations = 200
	s := New(store.NewMemory(), NewBroker(), cfg, 2, limiter)
	t.Cleanup(s.Wait)
	return s
}

// toyRequest is the five node instance from the vrplib testdata.
func toyRequest() map[string]any {
	return map[string]any{
		"name":      "toy-n5-k2",
		"dimension": 5,
		"capacity":  10,
		"demand":    []int{0, 4, 5, 6, 3},
		"nodeCoord": [][2]float64{{0, 0}, {3, 4}, {0, 4}, {-3, -4}, {0, -4}},
		"seed":      7,
	}
}

func postSolve(t *testing.T, s *Server, query string, body any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/solve"+query, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	s.SolveHandler(rr, req)
	return rr
}

func get(t *testing.T, h http.HandlerFunc, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

package api

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"cvrpsolver/internal/model"
	"cvrpsolver/internal/store"
)

func TestHealthReady(t *testing.T) {
	s := newTestServer(t, nil)
	if rr := get(t, s.HealthHandler, "/healthz"); rr.Code != 200 {
		t.Fatalf("health: got %d", rr.Code)
	}
	if rr := get(t, s.ReadyHandler, "/readyz"); rr.Code != 200 {
		t.Fatalf("ready: got %d", rr.Code)
	}
}

func TestSolveWait(t *testing.T) {
	s := newTestServer(t, nil)
	body := toyRequest()
	body["optimalCost"] = 24.0
	rr := postSolve(t, s, "?wait=true", body)
	if rr.Code != http.StatusOK {
		t.Fatalf("solve: got %d %s", rr.Code, rr.Body.String())
	}
	run := decode[store.Run](t, rr)
	if run.Status != store.StatusSucceeded {
		t.Fatalf("status %s: %s", run.Status, run.Error)
	}
	var seen []int
	for _, r := range run.Routes {
		seen = append(seen, r...)
	}
	sort.Ints(seen)
	if len(seen) != 4 || seen[0] != 1 || seen[3] != 4 {
		t.Fatalf("routes do not partition the customers: %v", run.Routes)
	}
	if run.Cost > run.InitialCost {
		t.Fatalf("final cost %.2f worse than initial %.2f", run.Cost, run.InitialCost)
	}
	if run.GapPercent == nil {
		t.Fatal("gap missing although optimalCost was given")
	}
	if run.StopReason == "" || run.FinishedAt == nil || len(run.Metrics) == 0 {
		t.Fatalf("incomplete run: %+v", run)
	}

	rr = get(t, s.RunByIDHandler, "/v1/runs/"+run.ID)
	if rr.Code != 200 {
		t.Fatalf("get run: %d", rr.Code)
	}
	rr = get(t, s.RunByIDHandler, "/v1/runs/"+run.ID+"/solution")
	if rr.Code != 200 {
		t.Fatalf("solution: %d", rr.Code)
	}
	text := rr.Body.String()
	if !strings.HasPrefix(text, "Route #1: ") || !strings.Contains(text, "\nCost ") {
		t.Fatalf("unexpected solution text %q", text)
	}
}

func TestSolveAsync(t *testing.T) {
	s := newTestServer(t, nil)
	rr := postSolve(t, s, "", toyRequest())
	if rr.Code != http.StatusAccepted {
		t.Fatalf("solve: got %d %s", rr.Code, rr.Body.String())
	}
	acc := decode[model.SolveAccepted](t, rr)
	if acc.RunID == "" {
		t.Fatal("missing run id")
	}
	s.Wait()
	run := decode[store.Run](t, get(t, s.RunByIDHandler, "/v1/runs/"+acc.RunID))
	if run.Status != store.StatusSucceeded {
		t.Fatalf("status %s", run.Status)
	}
}

func TestSolveDeterministicForSeed(t *testing.T) {
	s := newTestServer(t, nil)
	a := decode[store.Run](t, postSolve(t, s, "?wait=true", toyRequest()))
	b := decode[store.Run](t, postSolve(t, s, "?wait=true", toyRequest()))
	if a.Cost != b.Cost || len(a.BestTrace) != len(b.BestTrace) {
		t.Fatalf("same seed gave %v and %v", a.Cost, b.Cost)
	}
}

func TestSolveValidation(t *testing.T) {
	cases := map[string]func(m map[string]any){
		"missing name":      func(m map[string]any) { delete(m, "name") },
		"no distances":      func(m map[string]any) { delete(m, "nodeCoord") },
		"demand length":     func(m map[string]any) { m["demand"] = []int{0, 1} },
		"negative demand":   func(m map[string]any) { m["demand"] = []int{0, -1, 1, 1, 1} },
		"oversized demand":  func(m map[string]any) { m["demand"] = []int{0, 4, 50, 6, 3} },
		"coordinate count":  func(m map[string]any) { m["nodeCoord"] = [][2]float64{{0, 0}} },
		"bad alpha":         func(m map[string]any) { m["config"] = map[string]any{"simulated_annealing": map[string]any{"alpha": 2}} },
		"unknown operator":  func(m map[string]any) { m["config"] = map[string]any{"vnd": map[string]any{"neighborhoods": []string{"or_opt"}}} },
		"negative time":     func(m map[string]any) { m["timeLimitSeconds"] = -1 },
		"bad callback url":  func(m map[string]any) { m["callbackUrl"] = "not a url" },
		"ragged edgeWeight": func(m map[string]any) { delete(m, "nodeCoord"); m["edgeWeight"] = [][]float64{{0, 1}, {1}} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			s := newTestServer(t, nil)
			body := toyRequest()
			mutate(body)
			rr := postSolve(t, s, "?wait=true", body)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("got %d %s", rr.Code, rr.Body.String())
			}
			p := decode[Problem](t, rr)
			if p.Status != http.StatusBadRequest || p.Detail == "" {
				t.Fatalf("bad problem body %+v", p)
			}
			items, _, _ := s.Store.ListRuns(context.Background(), "", 10)
			if len(items) != 0 {
				t.Fatalf("invalid request must not create a run, got %d", len(items))
			}
		})
	}
}

func TestSolveInvalidJSON(t *testing.T) {
	s := newTestServer(t, nil)
	rr := httptest.NewRecorder()
	s.SolveHandler(rr, httptest.NewRequest(http.MethodPost, "/v1/solve", strings.NewReader("{")))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("got %d", rr.Code)
	}
}

func TestSolveRateLimited(t *testing.T) {
	s := newTestServer(t, rate.NewLimiter(0, 1))
	if rr := postSolve(t, s, "?wait=true", toyRequest()); rr.Code != http.StatusOK {
		t.Fatalf("first: got %d", rr.Code)
	}
	rr := postSolve(t, s, "?wait=true", toyRequest())
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("second: got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Fatal("missing Retry-After")
	}
}

func TestRunsListPagination(t *testing.T) {
	s := newTestServer(t, nil)
	for i := 0; i < 3; i++ {
		if rr := postSolve(t, s, "?wait=true", toyRequest()); rr.Code != 200 {
			t.Fatalf("solve %d: %d", i, rr.Code)
		}
	}
	page := decode[model.RunList[store.Run]](t, get(t, s.RunsHandler, "/v1/runs?limit=2"))
	if len(page.Items) != 2 || page.NextCursor == "" {
		t.Fatalf("first page: %d items, cursor %q", len(page.Items), page.NextCursor)
	}
	page = decode[model.RunList[store.Run]](t, get(t, s.RunsHandler, "/v1/runs?limit=2&cursor="+page.NextCursor))
	if len(page.Items) != 1 || page.NextCursor != "" {
		t.Fatalf("second page: %d items, cursor %q", len(page.Items), page.NextCursor)
	}
	if rr := get(t, s.RunsHandler, "/v1/runs?limit=x"); rr.Code != http.StatusBadRequest {
		t.Fatalf("bad limit: %d", rr.Code)
	}
}

func TestRunNotFound(t *testing.T) {
	s := newTestServer(t, nil)
	for _, p := range []string{"/v1/runs/nope", "/v1/runs/nope/solution", "/v1/runs/nope/events/stream"} {
		if rr := get(t, s.RunByIDHandler, p); rr.Code != http.StatusNotFound {
			t.Fatalf("%s: got %d", p, rr.Code)
		}
	}
}

func TestSolutionConflictWhileQueued(t *testing.T) {
	s := newTestServer(t, nil)
	run, err := s.Store.CreateRun(context.Background(), store.Run{InstanceName: "x", Status: store.StatusQueued})
	if err != nil {
		t.Fatal(err)
	}
	if rr := get(t, s.RunByIDHandler, "/v1/runs/"+run.ID+"/solution"); rr.Code != http.StatusConflict {
		t.Fatalf("got %d", rr.Code)
	}
}

func TestSolveQueuesCallback(t *testing.T) {
	s := newTestServer(t, nil)
	body := toyRequest()
	body["callbackUrl"] = "http://example.invalid/hook"
	body["callbackSecret"] = "s3cret"
	run := decode[store.Run](t, postSolve(t, s, "?wait=true", body))

	page := decode[model.RunList[store.WebhookDelivery]](t, get(t, s.RunByIDHandler, "/v1/runs/"+run.ID+"/webhooks"))
	if len(page.Items) != 1 {
		t.Fatalf("want 1 delivery, got %d", len(page.Items))
	}
	d := page.Items[0]
	if d.EventType != model.EventRunCompleted || d.Status != store.DeliveryPending {
		t.Fatalf("unexpected delivery %+v", d)
	}
}

func TestSSEFinishedRun(t *testing.T) {
	s := newTestServer(t, nil)
	run := decode[store.Run](t, postSolve(t, s, "?wait=true", toyRequest()))
	rr := get(t, s.RunByIDHandler, "/v1/runs/"+run.ID+"/events/stream")
	if ct := rr.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type %q", ct)
	}
	if !strings.Contains(rr.Body.String(), `"status":"succeeded"`) {
		t.Fatalf("missing status in %q", rr.Body.String())
	}
}

func TestSSELiveRun(t *testing.T) {
	s := newTestServer(t, nil)
	srv := httptest.NewServer(s.Routes())
	defer srv.Close()

	job, err := s.prepare(model.SolveRequest{
		Name: "toy", Dimension: 5, Capacity: 10,
		Demand:    []int{0, 4, 5, 6, 3},
		NodeCoord: [][2]float64{{0, 0}, {3, 4}, {0, 4}, {-3, -4}, {0, -4}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if job.run, err = s.Store.CreateRun(context.Background(), job.run); err != nil {
		t.Fatal(err)
	}

	type result struct {
		body string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := http.Get(srv.URL + "/v1/runs/" + job.run.ID + "/events/stream")
		if err != nil {
			done <- result{err: err}
			return
		}
		defer resp.Body.Close()
		var sb strings.Builder
		buf := make([]byte, 4096)
		for {
			n, err := resp.Body.Read(buf)
			sb.Write(buf[:n])
			if err != nil {
				break
			}
		}
		done <- result{body: sb.String()}
	}()

	broker := s.Broker.(*Broker)
	deadline := time.Now().Add(2 * time.Second)
	for broker.Subscribers(job.run.ID) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("stream never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}
	s.execute(context.Background(), job)

	select {
	case res := <-done:
		if res.err != nil {
			t.Fatal(res.err)
		}
		for _, want := range []string{"event: heartbeat", "event: run.started", "event: run.completed"} {
			if !strings.Contains(res.body, want) {
				t.Fatalf("missing %q in %q", want, res.body)
			}
		}
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not end after completion")
	}
}

func TestSSEHeartbeatReportsCurrentStatus(t *testing.T) {
	s := newTestServer(t, nil)
	s.heartbeat = 10 * time.Millisecond
	srv := httptest.NewServer(s.Routes())
	defer srv.Close()

	run, err := s.Store.CreateRun(context.Background(), store.Run{InstanceName: "x", Status: store.StatusQueued})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/runs/"+run.ID+"/events/stream", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	broker := s.Broker.(*Broker)
	deadline := time.Now().Add(2 * time.Second)
	for broker.Subscribers(run.ID) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("stream never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}
	run.Status = store.StatusRunning
	if err := s.Store.UpdateRun(context.Background(), run); err != nil {
		t.Fatal(err)
	}

	found := make(chan bool, 1)
	go func() {
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			if strings.Contains(sc.Text(), `"status":"running"`) {
				found <- true
				return
			}
		}
		found <- false
	}()
	select {
	case ok := <-found:
		if !ok {
			t.Fatal("stream ended without a running heartbeat")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no heartbeat with the updated status")
	}
}

func TestOptimizerConfigAndSolveMetrics(t *testing.T) {
	s := newTestServer(t, nil)
	cfg := decode[map[string]map[string]any](t, get(t, s.OptimizerConfigHandler, "/v1/optimizer/config"))
	if _, ok := cfg["defaults"]["simulated_annealing"]; !ok {
		t.Fatalf("defaults missing annealing section: %v", cfg)
	}

	body := toyRequest()
	body["name"] = "metrics-api-test"
	postSolve(t, s, "?wait=true", body)
	m := decode[map[string]map[string]any](t, get(t, s.SolveMetricsHandler, "/v1/admin/solve-metrics?instance=metrics-api-test"))
	if _, ok := m["items"]["sa_vnd"]; !ok {
		t.Fatalf("no summary recorded: %v", m)
	}
}

func TestRoutesServeMetricsAndDocs(t *testing.T) {
	s := newTestServer(t, nil)
	srv := httptest.NewServer(s.Routes())
	defer srv.Close()

	for _, p := range []string{"/healthz", "/debug", "/openapi.yaml", "/docs"} {
		resp, err := http.Get(srv.URL + p)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != 200 {
			t.Fatalf("%s: got %d", p, resp.StatusCode)
		}
	}
	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var sb strings.Builder
	buf := make([]byte, 1<<16)
	for {
		n, err := resp.Body.Read(buf)
		sb.Write(buf[:n])
		if err != nil {
			break
		}
	}
	if !strings.Contains(sb.String(), `http_requests_total{method="GET",path="/healthz",status="200"}`) {
		t.Fatal("request counter missing from /metrics")
	}
}

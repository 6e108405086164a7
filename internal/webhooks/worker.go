package webhooks

import (
	"bytes"
	"context"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"cvrpsolver/internal/metrics"
	"cvrpsolver/internal/store"
)

// Worker polls the store for due callbacks and delivers them.
type Worker struct {
	Store       store.Store
	HTTP        *http.Client
	Stop        chan struct{}
	MaxAttempts int
	Interval    time.Duration
}

// NewWorker reads WEBHOOK_MAX_ATTEMPTS (default 10).
func NewWorker(s store.Store) *Worker {
	max := 10
	if v := os.Getenv("WEBHOOK_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			max = n
		}
	}
	return &Worker{
		Store:       s,
		HTTP:        &http.Client{Timeout: 5 * time.Second},
		Stop:        make(chan struct{}),
		MaxAttempts: max,
		Interval:    time.Second,
	}
}

func (w *Worker) Start() {
	go func() {
		ticker := time.NewTicker(w.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-w.Stop:
				return
			case <-ticker.C:
				w.processOnce()
			}
		}
	}()
}

func (w *Worker) processOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	items, err := w.Store.FetchDueWebhookDeliveries(ctx, 50)
	if err != nil {
		log.Printf("[WEBHOOK] fetch due deliveries: %v", err)
		return
	}
	for _, it := range items {
		w.deliver(ctx, it)
	}
}

func (w *Worker) deliver(ctx context.Context, it store.WebhookDelivery) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, it.URL, bytes.NewReader(it.Payload))
	if err != nil {
		// a malformed URL never becomes deliverable
		w.fail(ctx, it, err.Error(), 0)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Type", it.EventType)
	if it.Secret != "" {
		req.Header.Set("X-Signature", SignHMAC(it.Secret, it.Payload))
	}

	start := time.Now()
	resp, err := w.HTTP.Do(req)
	latency := float64(time.Since(start).Milliseconds())
	code := 0
	success := false
	lastErr := ""
	if err != nil {
		lastErr = err.Error()
	} else {
		code = resp.StatusCode
		_ = resp.Body.Close()
		success = code >= 200 && code < 300
		if !success {
			lastErr = "unexpected status " + strconv.Itoa(code)
		}
	}

	status := "delivered"
	if !success {
		status = "error"
	}
	metrics.WebhookDeliveries.WithLabelValues(it.EventType, status).Inc()
	metrics.WebhookLatency.WithLabelValues(it.EventType, status).Observe(latency)

	if !success && it.Attempts+1 >= w.MaxAttempts {
		w.fail(ctx, it, lastErr, code)
		return
	}
	next := time.Now().Add(nextBackoff(it.Attempts))
	if err := w.Store.MarkWebhookDelivery(ctx, it.ID, success, &next, lastErr, code); err != nil {
		log.Printf("[WEBHOOK] mark %s: %v", it.ID, err)
	}
}

func (w *Worker) fail(ctx context.Context, it store.WebhookDelivery, lastErr string, code int) {
	log.Printf("[WEBHOOK] giving up on %s for run %s after %d attempts: %s", it.EventType, it.RunID, it.Attempts+1, lastErr)
	metrics.WebhookDeliveries.WithLabelValues(it.EventType, "failed").Inc()
	if err := w.Store.FailWebhookDelivery(ctx, it.ID, lastErr, code); err != nil {
		log.Printf("[WEBHOOK] fail %s: %v", it.ID, err)
	}
}

func nextBackoff(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts > 12 {
		attempts = 12
	}
	base := time.Second * time.Duration(1<<attempts)
	if base > time.Hour {
		base = time.Hour
	}
	return base
}

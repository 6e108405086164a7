package store

import (
	"context"
	"slices"
	"sync"
	"time"
)

// Memory is a simple in-memory store used when no database is configured.
type Memory struct {
	mu         sync.Mutex
	runs       map[string]Run
	deliveries map[string]*WebhookDelivery
	order      []string // delivery ids in enqueue order
}

func NewMemory() *Memory {
	return &Memory{
		runs:       map[string]Run{},
		deliveries: map[string]*WebhookDelivery{},
	}
}

func (m *Memory) CreateRun(ctx context.Context, r Run) (Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == "" {
		r.ID = newID()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	if r.Status == "" {
		r.Status = StatusQueued
	}
	m.runs[r.ID] = r
	return r, nil
}

func (m *Memory) UpdateRun(ctx context.Context, r Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[r.ID]; !ok {
		return ErrNotFound
	}
	m.runs[r.ID] = r
	return nil
}

func (m *Memory) GetRun(ctx context.Context, id string) (Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return Run{}, ErrNotFound
	}
	return r, nil
}

func (m *Memory) ListRuns(ctx context.Context, cursor string, limit int) ([]Run, string, error) {
	limit = clampLimit(limit)
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.runs))
	for id := range m.runs {
		if id > cursor {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	out := []Run{}
	for _, id := range ids {
		if len(out) == limit {
			break
		}
		out = append(out, m.runs[id])
	}
	next := ""
	if len(out) == limit && len(ids) > limit {
		next = out[len(out)-1].ID
	}
	return out, next, nil
}

func (m *Memory) EnqueueWebhook(ctx context.Context, runID, eventType, url, secret string, payload []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := newID()
	m.deliveries[id] = &WebhookDelivery{
		ID: id, RunID: runID, EventType: eventType, URL: url, Secret: secret,
		Payload: payload, Status: DeliveryPending, NextAttemptAt: time.Now().UTC(),
	}
	m.order = append(m.order, id)
	return id, nil
}

func (m *Memory) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	out := []WebhookDelivery{}
	for _, id := range m.order {
		d := m.deliveries[id]
		if (d.Status == DeliveryPending || d.Status == DeliveryRetry) && !d.NextAttemptAt.After(now) {
			out = append(out, *d)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil {
		return ErrNotFound
	}
	d.Attempts++
	d.ResponseCode = responseCode
	if success {
		d.Status = DeliveryDelivered
		return nil
	}
	d.Status = DeliveryRetry
	d.LastError = lastError
	if nextAttemptAt != nil {
		d.NextAttemptAt = nextAttemptAt.UTC()
	} else {
		d.NextAttemptAt = time.Now().UTC().Add(time.Minute)
	}
	return nil
}

func (m *Memory) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil {
		return ErrNotFound
	}
	d.Attempts++
	d.Status = DeliveryFailed
	d.LastError = lastError
	d.ResponseCode = responseCode
	return nil
}

func (m *Memory) ListWebhookDeliveries(ctx context.Context, runID string) ([]WebhookDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []WebhookDelivery{}
	for _, id := range m.order {
		if d := m.deliveries[id]; d.RunID == runID {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (m *Memory) Ping(ctx context.Context) error { return nil }
func (m *Memory) Close() error                   { return nil }

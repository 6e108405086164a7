package webhooks

import (
	"context"
	"encoding/json"
	"time"

	"cvrpsolver/internal/store"
)

// Event is the JSON body posted to a callback URL.
type Event struct {
	ID    string    `json:"id"`
	Type  string    `json:"type"`
	RunID string    `json:"runId"`
	TS    time.Time `json:"ts"`
	Data  any       `json:"data"`
}

// Publisher queues completion callbacks for the worker.
type Publisher struct {
	Store store.Store
}

func NewPublisher(s store.Store) *Publisher {
	return &Publisher{Store: s}
}

// Emit queues eventType for runID to url. It is a no-op without a URL.
func (p *Publisher) Emit(ctx context.Context, runID, url, secret, eventType string, data any) (string, error) {
	if url == "" {
		return "", nil
	}
	body, err := json.Marshal(Event{
		ID:    runID + ":" + eventType,
		Type:  eventType,
		RunID: runID,
		TS:    time.Now().UTC(),
		Data:  data,
	})
	if err != nil {
		return "", err
	}
	return p.Store.EnqueueWebhook(ctx, runID, eventType, url, secret, body)
}

package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a solve run.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Done reports whether the run reached a terminal state.
func (s Status) Done() bool { return s == StatusSucceeded || s == StatusFailed }

// Run is one solve request and, once finished, its outcome.
type Run struct {
	ID           string          `json:"id"`
	InstanceName string          `json:"instanceName"`
	Status       Status          `json:"status"`
	Seed         int64           `json:"seed"`
	Cost         float64         `json:"cost"`
	InitialCost  float64         `json:"initialCost"`
	Routes       [][]int         `json:"routes,omitempty"`
	BestTrace    []float64       `json:"bestTrace,omitempty"`
	IterTrace    []float64       `json:"iterTrace,omitempty"`
	Metrics      json.RawMessage `json:"metrics,omitempty"`
	OptimalCost  *float64        `json:"optimalCost,omitempty"`
	GapPercent   *float64        `json:"gapPercent,omitempty"`
	StopReason   string          `json:"stopReason,omitempty"`
	Error        string          `json:"error,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	FinishedAt   *time.Time      `json:"finishedAt,omitempty"`
}

// WebhookDelivery is a queued completion callback.
type WebhookDelivery struct {
	ID            string    `json:"id"`
	RunID         string    `json:"runId"`
	EventType     string    `json:"eventType"`
	URL           string    `json:"url"`
	Secret        string    `json:"-"`
	Payload       []byte    `json:"-"`
	Status        string    `json:"status"`
	Attempts      int       `json:"attempts"`
	NextAttemptAt time.Time `json:"nextAttemptAt"`
	LastError     string    `json:"lastError,omitempty"`
	ResponseCode  int       `json:"responseCode,omitempty"`
}

// Delivery states.
const (
	DeliveryPending   = "pending"
	DeliveryRetry     = "retry"
	DeliveryDelivered = "delivered"
	DeliveryFailed    = "failed"
)

// Store is the persistence interface used by the API server and the CLI.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, r Run) (Run, error)
	UpdateRun(ctx context.Context, r Run) error
	GetRun(ctx context.Context, id string) (Run, error)
	ListRuns(ctx context.Context, cursor string, limit int) ([]Run, string, error)

	// Webhook deliveries
	EnqueueWebhook(ctx context.Context, runID, eventType, url, secret string, payload []byte) (string, error)
	FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
	MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int) error
	FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int) error
	ListWebhookDeliveries(ctx context.Context, runID string) ([]WebhookDelivery, error)

	Ping(ctx context.Context) error
	Close() error
}

var ErrNotFound = errors.New("not found")

// newID returns a time-ordered id so that listing by id follows creation order.
func newID() string {
	return uuid.Must(uuid.NewV7()).String()
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return 100
	}
	return limit
}

// Package model holds the JSON request and response types of the HTTP API.
package model

import "encoding/json"

// SolveRequest submits a CVRP instance. Either EdgeWeight or NodeCoord must
// be given; an explicit matrix wins when both are.
type SolveRequest struct {
	Name             string          `json:"name" validate:"required,max=200"`
	Dimension        int             `json:"dimension" validate:"required,min=1,max=5000"`
	Capacity         int             `json:"capacity" validate:"required,gt=0"`
	Demand           []int           `json:"demand" validate:"required,dive,gte=0"`
	EdgeWeight       [][]float64     `json:"edgeWeight,omitempty" validate:"required_without=NodeCoord"`
	NodeCoord        [][2]float64    `json:"nodeCoord,omitempty" validate:"required_without=EdgeWeight"`
	Config           json.RawMessage `json:"config,omitempty"`
	Seed             *int64          `json:"seed,omitempty"`
	TimeLimitSeconds *float64        `json:"timeLimitSeconds,omitempty" validate:"omitempty,gte=0"`
	OptimalCost      *float64        `json:"optimalCost,omitempty" validate:"omitempty,gt=0"`
	CallbackURL      string          `json:"callbackUrl,omitempty" validate:"omitempty,url"`
	CallbackSecret   string          `json:"callbackSecret,omitempty"`
}

// SolveAccepted is returned for asynchronous solves.
type SolveAccepted struct {
	RunID  string `json:"runId"`
	Status string `json:"status"`
}

// RunList is a page of runs.
type RunList[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"nextCursor,omitempty"`
}

// Run event types published on the broker and sent as callbacks.
const (
	EventRunStarted   = "run.started"
	EventRunImproved  = "run.improved"
	EventRunCompleted = "run.completed"
	EventRunFailed    = "run.failed"
)

// RunCompleted is the data of a run.completed event.
type RunCompleted struct {
	RunID      string   `json:"runId"`
	Cost       float64  `json:"cost"`
	Routes     int      `json:"routes"`
	GapPercent *float64 `json:"gapPercent,omitempty"`
	StopReason string   `json:"stopReason"`
	ElapsedMs  int64    `json:"elapsedMs"`
}

// RunFailed is the data of a run.failed event.
type RunFailed struct {
	RunID string `json:"runId"`
	Error string `json:"error"`
}

package opt

import "sync"

// RunSummary is the latest recorded outcome for an instance.
type RunSummary struct {
	Instance string     `json:"instance"`
	Cost     float64    `json:"cost"`
	Routes   int        `json:"routes"`
	Stop     StopReason `json:"stop"`
	Metrics  Metrics    `json:"metrics"`
}

type key struct {
	Instance string
	Algo     string
}

var (
	mu    sync.Mutex
	store = map[key]RunSummary{}
)

// RecordMetrics keeps the latest summary per instance and algorithm.
func RecordMetrics(instance, algo string, r Result) {
	mu.Lock()
	store[key{Instance: instance, Algo: algo}] = RunSummary{
		Instance: instance,
		Cost:     r.Best.Cost,
		Routes:   len(r.Best.Routes),
		Stop:     r.Stop,
		Metrics:  r.Metrics,
	}
	mu.Unlock()
}

// GetMetrics returns the summaries recorded for instance, keyed by algorithm.
// An empty instance returns everything keyed by "instance/algo".
func GetMetrics(instance string) map[string]RunSummary {
	mu.Lock()
	defer mu.Unlock()
	out := map[string]RunSummary{}
	for k, v := range store {
		switch {
		case instance == "":
			out[k.Instance+"/"+k.Algo] = v
		case k.Instance == instance:
			out[k.Algo] = v
		}
	}
	return out
}

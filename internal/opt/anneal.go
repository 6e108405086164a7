package opt

import (
	"log"
	"math"
	"math/rand"
	"time"
)

// reintensifyEvery is the period, in total iterations, of VND restarts.
const reintensifyEvery = 50

// AnnealParams configures the simulated annealing controller.
type AnnealParams struct {
	InitialTemp       float64
	FinalTemp         float64
	Alpha             float64
	IterationsPerTemp int
	MaxIterations     int
	MaxNoImprove      int
	TimeLimit         time.Duration // zero means no deadline
	Verbose           bool
}

// TabuParams configures the tabu memory used inside annealing.
type TabuParams struct {
	Tenure     int
	Variation  int
	Aspiration bool
}

// State is the controller state.
type State int

const (
	StateInitialized State = iota
	StateCooling
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateInitialized:
		return "initialized"
	case StateCooling:
		return "cooling"
	case StateTerminated:
		return "terminated"
	}
	return "unknown"
}

// StopReason tells which condition ended the cooling loop. All of them are
// normal terminations.
type StopReason string

const (
	StopTemperatureFloor StopReason = "temperature_floor"
	StopIterationCap     StopReason = "iteration_cap"
	StopNoImproveCap     StopReason = "no_improve_cap"
	StopTimeLimit        StopReason = "time_limit"
)

// Observer receives progress notifications. It must not retain or modify
// the solutions it is given.
type Observer interface {
	OnImprove(iteration int, cost float64)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(iteration int, cost float64)

func (f ObserverFunc) OnImprove(iteration int, cost float64) { f(iteration, cost) }

// Metrics summarises an annealing run.
type Metrics struct {
	Iterations        int            `json:"iterations"`
	TemperatureSteps  int            `json:"temperatureSteps"`
	Improvements      int            `json:"improvements"`
	Accepted          int            `json:"accepted"`
	AcceptedWorse     int            `json:"acceptedWorse"`
	Rejected          int            `json:"rejected"`
	TabuBlocked       int            `json:"tabuBlocked"`
	Aspirations       int            `json:"aspirations"`
	Reintensify       int            `json:"reintensify"`
	OperatorSelects   map[string]int `json:"operatorSelects"`
	EmptyNeighborhood int            `json:"emptyNeighborhood"`
	FinalTemp         float64        `json:"finalTemp"`
	BestCost          float64        `json:"bestCost"`
	FinalCost         float64        `json:"finalCost"`
	ElapsedMs         int64          `json:"elapsedMs"`
}

// AnnealResult is the output of Anneal.
type AnnealResult struct {
	Best      Solution
	BestTrace []float64 // best-so-far cost at each improvement, non-increasing
	IterTrace []float64 // current cost after each accepted move
	Stop      StopReason
	Metrics   Metrics
}

// Annealer runs simulated annealing with tabu filtering and periodic VND
// re-intensification. It is single-use and not safe for concurrent use.
type Annealer struct {
	params AnnealParams
	tabu   TabuParams
	vnd    VNDParams
	rng    *rand.Rand
	obs    Observer
	state  State
	now    func() time.Time
}

// NewAnnealer wires the controller. obs may be nil.
func NewAnnealer(p AnnealParams, tp TabuParams, vp VNDParams, rng *rand.Rand, obs Observer) *Annealer {
	return &Annealer{params: p, tabu: tp, vnd: vp, rng: rng, obs: obs, state: StateInitialized, now: time.Now}
}

// State returns the controller state.
func (a *Annealer) State() State { return a.state }

// Run anneals from initial and returns the best solution seen.
func (a *Annealer) Run(initial Solution) AnnealResult {
	p := a.params
	start := a.now()
	var deadline time.Time
	if p.TimeLimit > 0 {
		deadline = start.Add(p.TimeLimit)
	}

	cur := initial
	best := initial.Clone()
	tabu := NewTabuList(a.tabu.Tenure, a.rng)
	res := AnnealResult{
		BestTrace: []float64{best.Cost},
		IterTrace: []float64{cur.Cost},
	}
	m := Metrics{OperatorSelects: map[string]int{}}
	temp := p.InitialTemp
	noImprove, total := 0, 0

	improved := func(c Solution) {
		best = c.Clone()
		res.BestTrace = append(res.BestTrace, best.Cost)
		noImprove = 0
		m.Improvements++
		if p.Verbose {
			log.Printf("[SOLVE] new best %.2f at iteration %d", best.Cost, total)
		}
		if a.obs != nil {
			a.obs.OnImprove(total, best.Cost)
		}
	}

	a.state = StateCooling
	for {
		if stop, ok := a.stopReason(temp, total, noImprove, deadline); ok {
			res.Stop = stop
			break
		}
		for step := 0; step < p.IterationsPerTemp; step++ {
			if total%reintensifyEvery == 0 {
				m.Reintensify++
				next := VND(cur, a.vnd)
				if next.Cost < cur.Cost {
					cur = next
					res.IterTrace = append(res.IterTrace, cur.Cost)
					if cur.Cost < best.Cost {
						improved(cur)
					}
				}
			} else {
				op := Operators[a.rng.Intn(len(Operators))]
				m.OperatorSelects[op.String()]++
				cand, ok := Apply(op, cur)
				switch {
				case !ok:
					m.EmptyNeighborhood++
				case a.accept(op, cand, cur.Cost, best.Cost, temp, tabu, &m):
					cur = cand
					res.IterTrace = append(res.IterTrace, cur.Cost)
					if cur.Cost < best.Cost {
						improved(cur)
					} else {
						noImprove++
					}
				}
			}
			tabu.Advance()
			total++
		}
		temp *= p.Alpha
		m.TemperatureSteps++
	}
	a.state = StateTerminated

	m.Iterations = total
	m.FinalTemp = temp
	m.BestCost = best.Cost
	m.FinalCost = cur.Cost
	m.ElapsedMs = a.now().Sub(start).Milliseconds()
	res.Best = best
	res.Metrics = m
	return res
}

// accept applies the tabu filter and the Metropolis rule to a candidate and
// registers the move when it is adopted.
func (a *Annealer) accept(op Operator, cand Solution, curCost, bestCost, temp float64, tabu *TabuList, m *Metrics) bool {
	mv := MoveOf(op, cand)
	isTabu := tabu.IsTabu(mv)
	aspiration := a.tabu.Aspiration && cand.Cost < bestCost
	if isTabu && !aspiration {
		m.TabuBlocked++
		return false
	}
	if isTabu {
		m.Aspirations++
	}
	if a.rng.Float64() >= AcceptanceProbability(curCost, cand.Cost, temp) {
		m.Rejected++
		return false
	}
	m.Accepted++
	if cand.Cost >= curCost {
		m.AcceptedWorse++
	}
	tabu.Add(mv, a.tabu.Variation)
	return true
}

func (a *Annealer) stopReason(temp float64, total, noImprove int, deadline time.Time) (StopReason, bool) {
	p := a.params
	switch {
	case temp <= p.FinalTemp:
		return StopTemperatureFloor, true
	case total >= p.MaxIterations:
		return StopIterationCap, true
	case noImprove >= p.MaxNoImprove:
		return StopNoImproveCap, true
	case !deadline.IsZero() && !a.now().Before(deadline):
		return StopTimeLimit, true
	}
	return "", false
}

// AcceptanceProbability is the Metropolis criterion: 1 when the candidate is
// cheaper, exp((current-candidate)/temperature) otherwise, and 0 for a
// worsening candidate at a non-positive temperature.
func AcceptanceProbability(currentCost, candidateCost, temperature float64) float64 {
	if candidateCost < currentCost {
		return 1
	}
	if temperature <= 0 {
		if candidateCost == currentCost {
			return 1
		}
		return 0
	}
	return math.Exp((currentCost - candidateCost) / temperature)
}

package opt

import (
	"log"
	"math/rand"
	"time"
)

// Params is the complete engine configuration. It is passed by value into
// every stage; there is no package-level state.
type Params struct {
	Seed       int64
	Randomness float64
	VND        VNDParams
	Anneal     AnnealParams
	Tabu       TabuParams
}

// Result is the output of the full pipeline.
type Result struct {
	Initial   Solution
	AfterVND  Solution
	Best      Solution
	BestTrace []float64
	IterTrace []float64
	Stop      StopReason
	Metrics   Metrics
	Elapsed   time.Duration
}

// Solve runs construction, VND and annealing in sequence. Input errors are
// returned before any optimization work starts. obs may be nil.
//
// The run is fully determined by inst, p and p.Seed unless the time limit
// fires.
func Solve(inst *Instance, p Params, obs Observer) (Result, error) {
	start := time.Now()
	rng := rand.New(rand.NewSource(p.Seed))

	initial, err := NearestNeighbor(inst, p.Randomness, rng)
	if err != nil {
		return Result{}, err
	}
	if p.Anneal.Verbose {
		log.Printf("[SOLVE] %s: initial cost %.2f with %d routes", inst.Name, initial.Cost, len(initial.Routes))
	}

	improved := VND(initial, p.VND)
	if p.Anneal.Verbose {
		log.Printf("[SOLVE] %s: cost after VND %.2f", inst.Name, improved.Cost)
	}

	ar := NewAnnealer(p.Anneal, p.Tabu, p.VND, rng, obs).Run(improved)
	res := Result{
		Initial:   initial,
		AfterVND:  improved,
		Best:      ar.Best,
		BestTrace: ar.BestTrace,
		IterTrace: ar.IterTrace,
		Stop:      ar.Stop,
		Metrics:   ar.Metrics,
		Elapsed:   time.Since(start),
	}
	if p.Anneal.Verbose {
		log.Printf("[SOLVE] %s: final cost %.2f with %d routes after %d iterations (%s) in %v",
			inst.Name, res.Best.Cost, len(res.Best.Routes), res.Metrics.Iterations, res.Stop, res.Elapsed)
	}
	return res, nil
}

// GapPercent is (final-optimal)/optimal*100. It reports false when optimal
// is not a usable reference.
func GapPercent(final, optimal float64) (float64, bool) {
	if optimal <= 0 {
		return 0, false
	}
	return (final - optimal) / optimal * 100, true
}

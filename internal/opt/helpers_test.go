package opt

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

// randomInstance places n customers uniformly in a 100x100 square around a
// central depot with demands in [1,maxDemand].
func randomInstance(t *testing.T, seed int64, n, capacity, maxDemand int) *Instance {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	coords := make([][2]float64, n+1)
	coords[0] = [2]float64{50, 50}
	demand := make([]int, n+1)
	for i := 1; i <= n; i++ {
		coords[i] = [2]float64{rng.Float64() * 100, rng.Float64() * 100}
		demand[i] = 1 + rng.Intn(maxDemand)
	}
	inst, err := NewInstance("rand", n+1, capacity, demand, nil, coords)
	require.NoError(t, err)
	return inst
}

func testParams(seed int64) Params {
	return Params{
		Seed:       seed,
		Randomness: 0.1,
		VND: VNDParams{
			Neighborhoods: []Operator{Swap, Relocate, TwoOpt, CrossExchange},
			MaxNoImprove:  10,
		},
		Anneal: AnnealParams{
			InitialTemp:       100,
			FinalTemp:         0.1,
			Alpha:             0.9,
			IterationsPerTemp: 20,
			MaxIterations:     400,
			MaxNoImprove:      200,
		},
		Tabu: TabuParams{Tenure: 7, Variation: 2, Aspiration: true},
	}
}

func requireValid(t *testing.T, s Solution) {
	t.Helper()
	require.NoError(t, s.Validate())
	require.True(t, s.IsFeasible())
	require.Equal(t, s.RecomputeCost(), s.Cost)
}

package opt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// naiveBest enumerates a move family by cloning and recomputing every
// candidate, which is the reference the delta evaluation must agree with.
func naiveBest(s Solution, op Operator) (float64, bool) {
	best := s.Cost
	found := false
	try := func(routes [][]int) {
		cand := NewSolution(s.inst, routes)
		if !cand.IsFeasible() {
			return
		}
		if cand.Cost < best-improveEps {
			best = cand.Cost
			found = true
		}
	}
	clone := func() [][]int { return s.Clone().Routes }
	n := len(s.Routes)
	switch op {
	case Swap:
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				for pi := range s.Routes[i] {
					for pj := range s.Routes[j] {
						r := clone()
						r[i][pi], r[j][pj] = r[j][pj], r[i][pi]
						try(r)
					}
				}
			}
		}
	case Relocate:
		for i := 0; i < n; i++ {
			for pi := range s.Routes[i] {
				for j := 0; j < n; j++ {
					if i == j {
						continue
					}
					for pj := 0; pj <= len(s.Routes[j]); pj++ {
						r := clone()
						c := r[i][pi]
						r[i] = append(r[i][:pi], r[i][pi+1:]...)
						r[j] = append(r[j][:pj], append([]int{c}, r[j][pj:]...)...)
						try(r)
					}
				}
			}
		}
	case TwoOpt:
		for ri := 0; ri < n; ri++ {
			for i := 0; i < len(s.Routes[ri])-1; i++ {
				for j := i + 1; j < len(s.Routes[ri]); j++ {
					r := clone()
					for a, b := i, j; a < b; a, b = a+1, b-1 {
						r[ri][a], r[ri][b] = r[ri][b], r[ri][a]
					}
					try(r)
				}
			}
		}
	case CrossExchange:
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				for l := 1; l <= 2; l++ {
					for pi := 0; pi+l <= len(s.Routes[i]); pi++ {
						for pj := 0; pj+l <= len(s.Routes[j]); pj++ {
							r := clone()
							seg := append([]int(nil), r[i][pi:pi+l]...)
							copy(r[i][pi:], r[j][pj:pj+l])
							copy(r[j][pj:], seg)
							try(r)
						}
					}
				}
			}
		}
	}
	return best, found
}

func TestOperatorsMatchReferenceEnumeration(t *testing.T) {
	for seed := int64(1); seed <= 5; seed++ {
		// Capacity 54 keeps the start feasible while still binding some moves.
		inst := randomInstance(t, seed, 18, 54, 9)
		start := NewSolution(inst, [][]int{{1, 2, 3, 4, 5}, {6, 7, 8}, {9, 10, 11, 12}, {13, 14, 15, 16, 17, 18}})
		require.True(t, start.IsFeasible())
		for _, op := range Operators {
			wantCost, wantOK := naiveBest(start, op)
			got, ok := Apply(op, start)
			require.Equal(t, wantOK, ok, "seed %d op %s", seed, op)
			if !ok {
				continue
			}
			requireValid(t, got)
			assert.InDelta(t, wantCost, got.Cost, 1e-7, "seed %d op %s", seed, op)
			assert.Less(t, got.Cost, start.Cost)
		}
	}
}

func TestApplyLeavesInputUntouched(t *testing.T) {
	inst := randomInstance(t, 3, 12, 25, 8)
	start := NewSolution(inst, [][]int{{1, 2, 3, 4}, {5, 6, 7, 8}, {9, 10, 11, 12}})
	before := start.Clone()
	for _, op := range Operators {
		_, _ = Apply(op, start)
		assert.Equal(t, before.Routes, start.Routes, op.String())
		assert.Equal(t, before.Cost, start.Cost, op.String())
	}
}

func TestSwapRejectsInfeasibleExchange(t *testing.T) {
	coords := [][2]float64{{0, 0}, {10, 0}, {10, 1}, {-10, 0}, {-10, 1}}
	inst, err := NewInstance("swap", 5, 7, []int{0, 5, 6, 1, 1}, nil, coords)
	require.NoError(t, err)
	// Exchanging 3 and 2 would pair the close customers but overload a route.
	start := NewSolution(inst, [][]int{{1, 3}, {2, 4}})
	require.True(t, start.IsFeasible())

	_, ok := Apply(Swap, start)
	assert.False(t, ok)
}

func TestRelocateDropsEmptiedRoute(t *testing.T) {
	coords := [][2]float64{{0, 0}, {10, 0}, {11, 0}}
	inst, err := NewInstance("reloc", 3, 10, []int{0, 1, 1}, nil, coords)
	require.NoError(t, err)
	start := NewSolution(inst, [][]int{{1}, {2}})

	got, ok := Apply(Relocate, start)
	require.True(t, ok)
	requireValid(t, got)
	assert.Len(t, got.Routes, 1)
	assert.InDelta(t, 22.0, got.Cost, 1e-9)
}

func TestTwoOptOnAsymmetricMatrix(t *testing.T) {
	// Going 1->2 is cheap, 2->1 is expensive; only the reversal fixes it.
	m := [][]float64{
		{0, 1, 1},
		{1, 0, 1},
		{1, 50, 0},
	}
	inst, err := NewInstance("asym", 3, 10, []int{0, 1, 1}, m, nil)
	require.NoError(t, err)
	start := NewSolution(inst, [][]int{{2, 1}})
	require.Equal(t, 52.0, start.Cost)

	got, ok := Apply(TwoOpt, start)
	require.True(t, ok)
	assert.Equal(t, [][]int{{1, 2}}, got.Routes)
	assert.Equal(t, 3.0, got.Cost)
}

func TestParseOperator(t *testing.T) {
	for _, op := range Operators {
		got, err := ParseOperator(op.String())
		require.NoError(t, err)
		assert.Equal(t, op, got)
	}
	_, err := ParseOperator("or_opt")
	assert.Error(t, err)
}

func TestFingerprintTracksStructureNotCost(t *testing.T) {
	inst := randomInstance(t, 11, 6, 100, 3)
	a := NewSolution(inst, [][]int{{1, 2, 3}, {4, 5, 6}})
	b := NewSolution(inst, [][]int{{1, 2, 3}, {4, 5, 6}})
	c := NewSolution(inst, [][]int{{4, 5, 6}, {1, 2, 3}})
	d := NewSolution(inst, [][]int{{1, 2}, {3, 4, 5, 6}})
	b.Cost = -1
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
	assert.NotEqual(t, a.Fingerprint(), d.Fingerprint())
}

package opt

import (
	"fmt"
	"math"
	"math/rand"
)

// NearestNeighbor builds an initial feasible solution. Each route starts at
// the depot and repeatedly extends to the unrouted customer that fits the
// remaining capacity and minimises dist*(1+randomness*U[0,1)). The noise is
// drawn per evaluation. A route is closed when nothing else fits.
func NearestNeighbor(inst *Instance, randomness float64, rng *rand.Rand) (Solution, error) {
	for c := 1; c < inst.Dimension; c++ {
		if inst.Demand[c] > inst.Capacity {
			return Solution{}, fmt.Errorf("%w: customer %d has demand %d, capacity is %d",
				ErrUnplaceableCustomer, c, inst.Demand[c], inst.Capacity)
		}
	}
	// Ascending order keeps the rng draw sequence stable for a given seed.
	unrouted := inst.Customers()
	routes := [][]int{}
	for len(unrouted) > 0 {
		route := []int{}
		load := 0
		cur := 0
		for {
			bestPos := -1
			bestDist := math.Inf(1)
			for pos, c := range unrouted {
				if load+inst.Demand[c] > inst.Capacity {
					continue
				}
				d := inst.Dist(cur, c) * (1 + randomness*rng.Float64())
				if d < bestDist {
					bestDist = d
					bestPos = pos
				}
			}
			if bestPos < 0 {
				break
			}
			c := unrouted[bestPos]
			route = append(route, c)
			load += inst.Demand[c]
			cur = c
			unrouted = append(unrouted[:bestPos], unrouted[bestPos+1:]...)
		}
		routes = append(routes, route)
	}
	return newSolution(inst, routes), nil
}

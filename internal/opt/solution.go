package opt

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"math"
)

// Solution is a set of routes over an Instance. The depot is implicit at
// both ends of every route and never stored.
//
// Routes is exposed for reading; code that changes it must go through
// newSolution so the cached cost and loads stay consistent.
type Solution struct {
	Routes [][]int
	Cost   float64

	inst      *Instance
	routeCost []float64
	load      []int
}

// NewSolution builds a Solution from explicit routes. Empty routes are
// dropped. The input slices are copied.
func NewSolution(inst *Instance, routes [][]int) Solution {
	cp := make([][]int, 0, len(routes))
	for _, r := range routes {
		if len(r) == 0 {
			continue
		}
		cp = append(cp, append([]int(nil), r...))
	}
	return newSolution(inst, cp)
}

// newSolution takes ownership of routes and fills every cache from scratch.
func newSolution(inst *Instance, routes [][]int) Solution {
	s := Solution{
		Routes:    routes,
		inst:      inst,
		routeCost: make([]float64, len(routes)),
		load:      make([]int, len(routes)),
	}
	for i, r := range routes {
		s.routeCost[i] = routeCost(inst, r)
		s.load[i] = routeLoad(inst, r)
	}
	s.Cost = sumCosts(s.routeCost)
	return s
}

// Instance returns the instance the solution belongs to.
func (s Solution) Instance() *Instance { return s.inst }

// RecomputeCost sums every route from scratch, ignoring cached values.
func (s Solution) RecomputeCost() float64 {
	total := 0.0
	for _, r := range s.Routes {
		total += routeCost(s.inst, r)
	}
	return total
}

// IsFeasible reports whether every route respects the vehicle capacity.
func (s Solution) IsFeasible() bool {
	for _, r := range s.Routes {
		if routeLoad(s.inst, r) > s.inst.Capacity {
			return false
		}
	}
	return true
}

// Loads returns the summed demand of each route.
func (s Solution) Loads() []int { return append([]int(nil), s.load...) }

// Clone returns a deep copy. The instance (and its distance matrix) is shared.
func (s Solution) Clone() Solution {
	routes := make([][]int, len(s.Routes))
	for i, r := range s.Routes {
		routes[i] = append([]int(nil), r...)
	}
	return Solution{
		Routes:    routes,
		Cost:      s.Cost,
		inst:      s.inst,
		routeCost: append([]float64(nil), s.routeCost...),
		load:      append([]int(nil), s.load...),
	}
}

// Fingerprint folds the ordered (route index, customer) pairs into a 64-bit
// FNV-1a hash. It depends only on route contents, not on cost.
func (s Solution) Fingerprint() uint64 {
	h := fnv.New64a()
	var buf [8]byte
	for ri, r := range s.Routes {
		for _, c := range r {
			binary.LittleEndian.PutUint32(buf[:4], uint32(ri))
			binary.LittleEndian.PutUint32(buf[4:], uint32(c))
			_, _ = h.Write(buf[:])
		}
	}
	return h.Sum64()
}

// Validate checks the partition, capacity and cost-consistency invariants.
func (s Solution) Validate() error {
	seen := make([]bool, s.inst.Dimension)
	count := 0
	for ri, r := range s.Routes {
		for _, c := range r {
			if c <= 0 || c >= s.inst.Dimension {
				return fmt.Errorf("route %d: node %d is not a customer", ri, c)
			}
			if seen[c] {
				return fmt.Errorf("route %d: customer %d visited twice", ri, c)
			}
			seen[c] = true
			count++
		}
	}
	if count != s.inst.NumCustomers() {
		return fmt.Errorf("solution covers %d of %d customers", count, s.inst.NumCustomers())
	}
	for ri, r := range s.Routes {
		if l := routeLoad(s.inst, r); l > s.inst.Capacity {
			return fmt.Errorf("route %d: load %d exceeds capacity %d", ri, l, s.inst.Capacity)
		}
	}
	if fresh := s.RecomputeCost(); !costEqual(fresh, s.Cost) {
		return fmt.Errorf("cached cost %.9f differs from recomputed %.9f", s.Cost, fresh)
	}
	return nil
}

func routeCost(inst *Instance, r []int) float64 {
	if len(r) == 0 {
		return 0
	}
	c := inst.Dist(0, r[0])
	for i := 0; i < len(r)-1; i++ {
		c += inst.Dist(r[i], r[i+1])
	}
	return c + inst.Dist(r[len(r)-1], 0)
}

func routeLoad(inst *Instance, r []int) int {
	l := 0
	for _, c := range r {
		l += inst.Demand[c]
	}
	return l
}

func sumCosts(cs []float64) float64 {
	total := 0.0
	for _, c := range cs {
		total += c
	}
	return total
}

func costEqual(a, b float64) bool {
	return math.Abs(a-b) <= 1e-6*math.Max(1, math.Abs(a))
}

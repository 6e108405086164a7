package opt

import "fmt"

// Operator is one of the four neighborhood move families.
type Operator int

const (
	Swap Operator = iota
	Relocate
	TwoOpt
	CrossExchange
)

// Operators lists every operator in canonical order.
var Operators = [...]Operator{Swap, Relocate, TwoOpt, CrossExchange}

// improveEps is the minimum cost decrease accepted as an improvement.
const improveEps = 1e-9

func (o Operator) String() string {
	switch o {
	case Swap:
		return "swap"
	case Relocate:
		return "relocate"
	case TwoOpt:
		return "two_opt"
	case CrossExchange:
		return "cross_exchange"
	}
	return fmt.Sprintf("operator(%d)", int(o))
}

// ParseOperator maps a configuration name to its Operator.
func ParseOperator(name string) (Operator, error) {
	for _, o := range Operators {
		if o.String() == name {
			return o, nil
		}
	}
	return 0, fmt.Errorf("unknown neighborhood %q", name)
}

// Apply runs one exhaustive best-improvement scan of op over s. It returns
// the best strictly improving feasible neighbor, or false if none exists.
// s is never modified.
func Apply(op Operator, s Solution) (Solution, bool) {
	var mv move
	switch op {
	case Swap:
		mv = bestSwap(s)
	case Relocate:
		mv = bestRelocate(s)
	case TwoOpt:
		mv = bestTwoOpt(s)
	case CrossExchange:
		mv = bestCrossExchange(s)
	default:
		return Solution{}, false
	}
	if !mv.ok {
		return Solution{}, false
	}
	return mv.apply(s), true
}

// move records the winning candidate of a scan so that only it gets
// materialised.
type move struct {
	ok     bool
	op     Operator
	ri, rj int // routes
	pi, pj int // positions
	length int // segment length for cross-exchange
	delta  float64
}

func (m move) apply(s Solution) Solution {
	routes := make([][]int, len(s.Routes))
	for i, r := range s.Routes {
		routes[i] = append([]int(nil), r...)
	}
	switch m.op {
	case Swap:
		routes[m.ri][m.pi], routes[m.rj][m.pj] = routes[m.rj][m.pj], routes[m.ri][m.pi]
	case Relocate:
		c := routes[m.ri][m.pi]
		routes[m.ri] = append(routes[m.ri][:m.pi], routes[m.ri][m.pi+1:]...)
		dst := routes[m.rj]
		dst = append(dst, 0)
		copy(dst[m.pj+1:], dst[m.pj:])
		dst[m.pj] = c
		routes[m.rj] = dst
	case TwoOpt:
		r := routes[m.ri]
		for a, b := m.pi, m.pj; a < b; a, b = a+1, b-1 {
			r[a], r[b] = r[b], r[a]
		}
	case CrossExchange:
		segA := append([]int(nil), routes[m.ri][m.pi:m.pi+m.length]...)
		copy(routes[m.ri][m.pi:], routes[m.rj][m.pj:m.pj+m.length])
		copy(routes[m.rj][m.pj:], segA)
	}
	kept := routes[:0]
	for _, r := range routes {
		if len(r) > 0 {
			kept = append(kept, r)
		}
	}
	return newSolution(s.inst, kept)
}

func pred(r []int, pos int) int {
	if pos == 0 {
		return 0
	}
	return r[pos-1]
}

func succ(r []int, pos int) int {
	if pos == len(r)-1 {
		return 0
	}
	return r[pos+1]
}

// replaceDelta is the cost change of putting node b where node a sits at pos.
func replaceDelta(in *Instance, r []int, pos, b int) float64 {
	a := r[pos]
	p, n := pred(r, pos), succ(r, pos)
	return in.Dist(p, b) + in.Dist(b, n) - in.Dist(p, a) - in.Dist(a, n)
}

// bestSwap exchanges one customer between two distinct routes.
func bestSwap(s Solution) move {
	in := s.inst
	best := move{op: Swap}
	for i := 0; i < len(s.Routes); i++ {
		for j := i + 1; j < len(s.Routes); j++ {
			ri, rj := s.Routes[i], s.Routes[j]
			for pi, a := range ri {
				for pj, b := range rj {
					if s.load[i]-in.Demand[a]+in.Demand[b] > in.Capacity ||
						s.load[j]-in.Demand[b]+in.Demand[a] > in.Capacity {
						continue
					}
					d := replaceDelta(in, ri, pi, b) + replaceDelta(in, rj, pj, a)
					if d < best.delta-improveEps {
						best = move{ok: true, op: Swap, ri: i, rj: j, pi: pi, pj: pj, delta: d}
					}
				}
			}
		}
	}
	return best
}

// bestRelocate moves one customer to any position of another route.
func bestRelocate(s Solution) move {
	in := s.inst
	best := move{op: Relocate}
	for i, ri := range s.Routes {
		for pi, c := range ri {
			var removal float64
			if len(ri) == 1 {
				removal = -s.routeCost[i]
			} else {
				p, n := pred(ri, pi), succ(ri, pi)
				removal = in.Dist(p, n) - in.Dist(p, c) - in.Dist(c, n)
			}
			for j, rj := range s.Routes {
				if i == j || s.load[j]+in.Demand[c] > in.Capacity {
					continue
				}
				for pj := 0; pj <= len(rj); pj++ {
					d := removal + insertDelta(in, rj, pj, c)
					if d < best.delta-improveEps {
						best = move{ok: true, op: Relocate, ri: i, rj: j, pi: pi, pj: pj, delta: d}
					}
				}
			}
		}
	}
	return best
}

func insertDelta(in *Instance, r []int, pos, c int) float64 {
	if len(r) == 0 {
		return in.Dist(0, c) + in.Dist(c, 0)
	}
	p, n := 0, 0
	if pos > 0 {
		p = r[pos-1]
	}
	if pos < len(r) {
		n = r[pos]
	}
	return in.Dist(p, c) + in.Dist(c, n) - in.Dist(p, n)
}

// bestTwoOpt reverses a contiguous segment inside one route. Demand is
// unchanged so no capacity check is needed. Internal arcs are accumulated in
// both directions so asymmetric matrices are handled exactly.
func bestTwoOpt(s Solution) move {
	in := s.inst
	best := move{op: TwoOpt}
	for ri, r := range s.Routes {
		if len(r) < 2 {
			continue
		}
		for i := 0; i < len(r)-1; i++ {
			p := pred(r, i)
			fwd, rev := 0.0, 0.0
			for j := i + 1; j < len(r); j++ {
				fwd += in.Dist(r[j-1], r[j])
				rev += in.Dist(r[j], r[j-1])
				n := succ(r, j)
				oldCost := in.Dist(p, r[i]) + fwd + in.Dist(r[j], n)
				newCost := in.Dist(p, r[j]) + rev + in.Dist(r[i], n)
				d := newCost - oldCost
				if d < best.delta-improveEps {
					best = move{ok: true, op: TwoOpt, ri: ri, pi: i, pj: j, delta: d}
				}
			}
		}
	}
	return best
}

// bestCrossExchange swaps equal-length segments (1 or 2 customers) between
// two distinct routes. Segment order is preserved so only the four boundary
// arcs change.
func bestCrossExchange(s Solution) move {
	in := s.inst
	best := move{op: CrossExchange}
	for i := 0; i < len(s.Routes); i++ {
		for j := i + 1; j < len(s.Routes); j++ {
			ri, rj := s.Routes[i], s.Routes[j]
			for length := 1; length <= 2; length++ {
				if len(ri) < length || len(rj) < length {
					continue
				}
				for pi := 0; pi+length <= len(ri); pi++ {
					segA := ri[pi : pi+length]
					demA := segmentDemand(in, segA)
					for pj := 0; pj+length <= len(rj); pj++ {
						segB := rj[pj : pj+length]
						demB := segmentDemand(in, segB)
						if s.load[i]-demA+demB > in.Capacity || s.load[j]-demB+demA > in.Capacity {
							continue
						}
						d := segmentDelta(in, ri, pi, length, segB) + segmentDelta(in, rj, pj, length, segA)
						if d < best.delta-improveEps {
							best = move{ok: true, op: CrossExchange, ri: i, rj: j, pi: pi, pj: pj, length: length, delta: d}
						}
					}
				}
			}
		}
	}
	return best
}

func segmentDemand(in *Instance, seg []int) int {
	d := 0
	for _, c := range seg {
		d += in.Demand[c]
	}
	return d
}

// segmentDelta is the boundary cost change of replacing r[pos:pos+length]
// with seg. Internal arcs of both segments travel with them and cancel out.
func segmentDelta(in *Instance, r []int, pos, length int, seg []int) float64 {
	p, n := pred(r, pos), succ(r, pos+length-1)
	first, last := r[pos], r[pos+length-1]
	return in.Dist(p, seg[0]) + in.Dist(seg[len(seg)-1], n) - in.Dist(p, first) - in.Dist(last, n)
}

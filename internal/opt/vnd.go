package opt

// VNDParams configures variable neighborhood descent.
type VNDParams struct {
	Neighborhoods []Operator
	MaxNoImprove  int
}

// VND applies the neighborhoods in order. When one yields an improvement the
// result is adopted and the scan restarts from the first neighborhood;
// otherwise it moves on to the next. It stops when the list is exhausted or
// MaxNoImprove consecutive neighborhoods failed. The output never costs more
// than the input.
func VND(s Solution, p VNDParams) Solution {
	cur := s
	k, noImprove := 0, 0
	for k < len(p.Neighborhoods) && noImprove < p.MaxNoImprove {
		cand, ok := Apply(p.Neighborhoods[k], cur)
		if ok && cand.Cost < cur.Cost {
			cur = cand
			k, noImprove = 0, 0
			continue
		}
		k++
		noImprove++
	}
	return cur
}

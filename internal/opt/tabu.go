package opt

import "math/rand"

// Move identifies an applied move for tabu purposes: the operator that
// produced it and the fingerprint of the resulting route structure.
type Move struct {
	Op          Operator
	Fingerprint uint64
}

// MoveOf builds the tabu key for a candidate produced by op.
func MoveOf(op Operator, s Solution) Move {
	return Move{Op: op, Fingerprint: s.Fingerprint()}
}

// TabuList is short-term memory of recently applied moves.
//
// A move added at iteration i with tenure T is tabu for iterations i..i+T
// and expires at i+T+1; entries whose expiration is <= the current
// iteration are purged on Advance.
type TabuList struct {
	tenure  int
	rng     *rand.Rand
	expires map[Move]int
	iter    int
}

// NewTabuList creates an empty list with the given base tenure. rng drives
// the tenure variation.
func NewTabuList(tenure int, rng *rand.Rand) *TabuList {
	return &TabuList{tenure: tenure, rng: rng, expires: map[Move]int{}}
}

// Add registers m with tenure base+U{-variation..variation}, clamped at 0.
func (t *TabuList) Add(m Move, variation int) {
	tenure := t.tenure
	if variation > 0 {
		tenure += t.rng.Intn(2*variation+1) - variation
	}
	if tenure < 0 {
		tenure = 0
	}
	t.expires[m] = t.iter + tenure + 1
}

// IsTabu reports whether m is present and not yet expired.
func (t *TabuList) IsTabu(m Move) bool {
	exp, ok := t.expires[m]
	return ok && exp > t.iter
}

// Advance moves to the next iteration and purges expired entries.
func (t *TabuList) Advance() {
	t.iter++
	for m, exp := range t.expires {
		if exp <= t.iter {
			delete(t.expires, m)
		}
	}
}

// Iteration is the current iteration counter.
func (t *TabuList) Iteration() int { return t.iter }

// Len is the number of live entries.
func (t *TabuList) Len() int { return len(t.expires) }

package opt

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrNoDistances is returned when an instance carries neither an explicit
	// edge weight matrix nor node coordinates.
	ErrNoDistances = errors.New("instance must have either edge_weight or node_coord")
	// ErrInvalidInstance covers shape and range problems in instance data.
	ErrInvalidInstance = errors.New("invalid instance")
	// ErrUnplaceableCustomer is returned when a customer demand exceeds the
	// vehicle capacity, so no route can ever serve it.
	ErrUnplaceableCustomer = errors.New("customer demand exceeds vehicle capacity")
)

// Instance is a CVRP instance. Node 0 is the depot, nodes 1..Dimension-1 are
// customers. It is never modified after NewInstance returns.
type Instance struct {
	Name      string
	Dimension int
	Capacity  int
	Demand    []int
	Coords    [][2]float64 // optional, only set when built from node coordinates
	dist      [][]float64
}

// NewInstance validates the raw instance data and builds its distance matrix.
// An explicit edgeWeight matrix takes precedence over nodeCoord.
func NewInstance(name string, dimension, capacity int, demand []int, edgeWeight [][]float64, nodeCoord [][2]float64) (*Instance, error) {
	if dimension < 1 {
		return nil, fmt.Errorf("%w: dimension must be >= 1, got %d", ErrInvalidInstance, dimension)
	}
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: capacity must be > 0, got %d", ErrInvalidInstance, capacity)
	}
	if len(demand) != dimension {
		return nil, fmt.Errorf("%w: demand has %d entries, want %d", ErrInvalidInstance, len(demand), dimension)
	}
	for i, d := range demand {
		if d < 0 {
			return nil, fmt.Errorf("%w: negative demand %d at node %d", ErrInvalidInstance, d, i)
		}
	}
	inst := &Instance{
		Name:      name,
		Dimension: dimension,
		Capacity:  capacity,
		Demand:    append([]int(nil), demand...),
	}
	switch {
	case len(edgeWeight) > 0:
		dist, err := copyMatrix(edgeWeight, dimension)
		if err != nil {
			return nil, err
		}
		inst.dist = dist
	case len(nodeCoord) > 0:
		if len(nodeCoord) != dimension {
			return nil, fmt.Errorf("%w: node_coord has %d points, want %d", ErrInvalidInstance, len(nodeCoord), dimension)
		}
		inst.Coords = append([][2]float64(nil), nodeCoord...)
		inst.dist = euclideanMatrix(inst.Coords)
	default:
		return nil, ErrNoDistances
	}
	return inst, nil
}

// Dist returns the travel cost from node i to node j.
func (in *Instance) Dist(i, j int) float64 { return in.dist[i][j] }

// NumCustomers is the number of non-depot nodes.
func (in *Instance) NumCustomers() int { return in.Dimension - 1 }

// Customers returns the customer indices 1..Dimension-1 in ascending order.
func (in *Instance) Customers() []int {
	out := make([]int, 0, in.NumCustomers())
	for c := 1; c < in.Dimension; c++ {
		out = append(out, c)
	}
	return out
}

func copyMatrix(m [][]float64, n int) ([][]float64, error) {
	if len(m) != n {
		return nil, fmt.Errorf("%w: edge_weight has %d rows, want %d", ErrInvalidInstance, len(m), n)
	}
	out := make([][]float64, n)
	for i, row := range m {
		if len(row) != n {
			return nil, fmt.Errorf("%w: edge_weight row %d has %d columns, want %d", ErrInvalidInstance, i, len(row), n)
		}
		for j, w := range row {
			if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
				return nil, fmt.Errorf("%w: edge_weight[%d][%d]=%v must be finite and non-negative", ErrInvalidInstance, i, j, w)
			}
		}
		out[i] = append([]float64(nil), row...)
	}
	return out, nil
}

func euclideanMatrix(pts [][2]float64) [][]float64 {
	n := len(pts)
	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			out[i][j] = math.Hypot(pts[i][0]-pts[j][0], pts[i][1]-pts[j][1])
		}
	}
	return out
}

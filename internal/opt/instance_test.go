package opt

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewInstanceEuclidean(t *testing.T) {
	inst, err := NewInstance("tri", 3, 10, []int{0, 1, 1}, nil, [][2]float64{{0, 0}, {3, 4}, {0, 4}})
	require.NoError(t, err)
	assert.Equal(t, 5.0, inst.Dist(0, 1))
	assert.Equal(t, 3.0, inst.Dist(1, 2))
	assert.Equal(t, 0.0, inst.Dist(2, 2))
	assert.Equal(t, []int{1, 2}, inst.Customers())
}

func TestNewInstanceExplicitMatrixWins(t *testing.T) {
	m := [][]float64{{0, 1, 2}, {7, 0, 3}, {2, 3, 0}}
	inst, err := NewInstance("asym", 3, 10, []int{0, 1, 1}, m, [][2]float64{{0, 0}, {100, 0}, {0, 100}})
	require.NoError(t, err)
	assert.Equal(t, 1.0, inst.Dist(0, 1))
	assert.Equal(t, 7.0, inst.Dist(1, 0))

	m[0][1] = 99
	assert.Equal(t, 1.0, inst.Dist(0, 1), "instance must own its matrix")
}

func TestNewInstanceErrors(t *testing.T) {
	_, err := NewInstance("none", 2, 10, []int{0, 1}, nil, nil)
	assert.ErrorIs(t, err, ErrNoDistances)

	_, err = NewInstance("dim", 0, 10, nil, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidInstance)

	_, err = NewInstance("cap", 2, 0, []int{0, 1}, nil, [][2]float64{{0, 0}, {1, 1}})
	assert.ErrorIs(t, err, ErrInvalidInstance)

	_, err = NewInstance("demand", 2, 10, []int{0}, nil, [][2]float64{{0, 0}, {1, 1}})
	assert.ErrorIs(t, err, ErrInvalidInstance)

	_, err = NewInstance("neg", 2, 10, []int{0, -1}, nil, [][2]float64{{0, 0}, {1, 1}})
	assert.ErrorIs(t, err, ErrInvalidInstance)

	_, err = NewInstance("ragged", 2, 10, []int{0, 1}, [][]float64{{0, 1}, {1}}, nil)
	assert.ErrorIs(t, err, ErrInvalidInstance)

	_, err = NewInstance("nan", 2, 10, []int{0, 1}, [][]float64{{0, math.NaN()}, {1, 0}}, nil)
	assert.ErrorIs(t, err, ErrInvalidInstance)

	_, err = NewInstance("coords", 3, 10, []int{0, 1, 1}, nil, [][2]float64{{0, 0}})
	assert.ErrorIs(t, err, ErrInvalidInstance)
}

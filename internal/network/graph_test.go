package network

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// completeMatrix returns an n x n adjacency matrix with weight w between all
// distinct nodes
func completeMatrix(n int, w float64) *mat.SymDense {
	m := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			m.SetSym(i, j, w)
		}
	}
	return m
}

func seqIDs(n int) []int64 {
	ids := make([]int64, n)
	for i := range ids {
		ids[i] = int64(100 + i)
	}
	return ids
}

func TestNewGraphMalformed(t *testing.T) {
	asym := mat.NewDense(3, 3, []float64{
		0, 0.5, 0,
		0.4, 0, 0,
		0, 0, 0,
	})
	negative := mat.NewSymDense(2, []float64{0, -0.1, -0.1, 0})
	tooLarge := mat.NewSymDense(2, []float64{0, 1.5, 1.5, 0})
	nan := mat.NewSymDense(2, []float64{0, math.NaN(), math.NaN(), 0})

	tests := []struct {
		name string
		m    mat.Matrix
		ids  []int64
	}{
		{"not square", mat.NewDense(2, 3, nil), seqIDs(2)},
		{"id count", completeMatrix(3, 0.5), seqIDs(2)},
		{"duplicate ids", completeMatrix(2, 0.5), []int64{7, 7}},
		{"asymmetric", asym, seqIDs(3)},
		{"negative weight", negative, seqIDs(2)},
		{"weight above one", tooLarge, seqIDs(2)},
		{"NaN weight", nan, seqIDs(2)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			g, err := NewGraph(tc.m, tc.ids, DefaultExponent)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedInput), "got %v", err)
			assert.Nil(t, g)
		})
	}

	_, err := NewGraph(completeMatrix(2, 0.5), seqIDs(2), 0)
	assert.ErrorIs(t, err, ErrMalformedInput)
}

func TestNewGraphEdges(t *testing.T) {
	m := mat.NewSymDense(4, nil)
	m.SetSym(0, 1, 0.8)
	m.SetSym(1, 2, 1.0)
	m.SetSym(2, 2, 0.7) // diagonal is ignored
	g, err := NewGraph(m, seqIDs(4), DefaultExponent)
	require.NoError(t, err)

	assert.Equal(t, 4, g.NumNodes())
	assert.Equal(t, 2, g.NumEdges())
	assert.Equal(t, int64(102), g.ID(2))
	assert.ElementsMatch(t, []int{1}, g.neighbours[0])
	assert.ElementsMatch(t, []int{0, 2}, g.neighbours[1])
	assert.Empty(t, g.neighbours[3])

	w, ok := g.Weight(1, 0)
	require.True(t, ok)
	assert.InDelta(t, 0.8, w, 1e-15)
	k, ok := g.lookup(0, 1)
	require.True(t, ok)
	assert.InDelta(t, math.Log10(0.64), g.logIn[k], 1e-12)
	assert.InDelta(t, math.Log10(0.36), g.logOut[k], 1e-12)

	// A weight of exactly one is clamped so that log10(1-w^e) stays finite
	w, ok = g.Weight(2, 1)
	require.True(t, ok)
	assert.Less(t, w, 1.0)
	k, _ = g.lookup(1, 2)
	assert.False(t, math.IsInf(g.logOut[k], 0))
	assert.False(t, math.IsNaN(g.logOut[k]))

	_, ok = g.Weight(0, 3)
	assert.False(t, ok)
}

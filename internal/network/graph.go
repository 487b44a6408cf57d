package network

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// DefaultExponent is the power applied to edge weights before taking logs
const DefaultExponent = 2.0

// Weights of exactly 1 would make log10(1-w^e) infinite
const maxWeight = 1.0 - 1e-11

// Entries that differ more than this are considered asymmetric
const symmetryTol = 1e-12

// edge is an unordered node pair, stored with a < b
type edge struct {
	a, b int32
}

func newEdge(i, j int) edge {
	if i > j {
		i, j = j, i
	}
	return edge{a: int32(i), b: int32(j)}
}

// Graph is an undirected weighted graph over features. Nodes are addressed by
// their index 0..n-1, the feature ID of each index is kept in ids.
type Graph struct {
	ids      []int64
	exponent float64

	neighbours [][]int      // neighbour indices per node
	edgeIdx    map[edge]int // index into the per-edge slices below
	edges      []edge
	weight     []float64
	logIn      []float64 // log10(w^e), edge inside a clique
	logOut     []float64 // log10(1-w^e), edge between cliques
}

// NewGraph builds a graph from a symmetric adjacency matrix. Entry (i,j) is
// the similarity between features ids[i] and ids[j], 0 means no edge.
// Only the upper triangle is used once symmetry has been verified.
func NewGraph(adjacency mat.Matrix, ids []int64, exponent float64) (*Graph, error) {
	r, c := adjacency.Dims()
	if r != c {
		return nil, fmt.Errorf("%w: adjacency matrix is %dx%d, not square", ErrMalformedInput, r, c)
	}
	if len(ids) != r {
		return nil, fmt.Errorf("%w: %d node IDs for a %dx%d matrix", ErrMalformedInput, len(ids), r, c)
	}
	if !(exponent > 0) || math.IsInf(exponent, 0) {
		return nil, fmt.Errorf("%w: invalid weight exponent %v", ErrMalformedInput, exponent)
	}
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: duplicate node ID %d", ErrMalformedInput, id)
		}
		seen[id] = struct{}{}
	}

	g := &Graph{
		ids:        append([]int64(nil), ids...),
		exponent:   exponent,
		neighbours: make([][]int, r),
		edgeIdx:    make(map[edge]int),
	}
	for i := 0; i < r; i++ {
		for j := i; j < r; j++ {
			w := adjacency.At(i, j)
			if math.Abs(w-adjacency.At(j, i)) > symmetryTol {
				return nil, fmt.Errorf("%w: matrix not symmetric at (%d,%d)", ErrMalformedInput, i, j)
			}
			if math.IsNaN(w) || w < 0 || w > 1 {
				return nil, fmt.Errorf("%w: weight %v at (%d,%d) outside [0,1]", ErrMalformedInput, w, i, j)
			}
			// The diagonal carries no information about clique membership
			if j == i || w == 0 {
				continue
			}
			g.addEdge(i, j, w)
		}
	}
	return g, nil
}

func (g *Graph) addEdge(i, j int, w float64) {
	if w >= 1 {
		w = maxWeight
	}
	e := newEdge(i, j)
	g.edgeIdx[e] = len(g.edges)
	g.edges = append(g.edges, e)
	g.weight = append(g.weight, w)
	p := math.Pow(w, g.exponent)
	g.logIn = append(g.logIn, math.Log10(p))
	g.logOut = append(g.logOut, math.Log10(1.0-p))
	g.neighbours[i] = append(g.neighbours[i], j)
	g.neighbours[j] = append(g.neighbours[j], i)
}

// NumNodes returns the number of nodes, including nodes without edges
func (g *Graph) NumNodes() int {
	return len(g.ids)
}

// NumEdges returns the number of (non-zero) edges
func (g *Graph) NumEdges() int {
	return len(g.edges)
}

// ID returns the feature ID of node index i
func (g *Graph) ID(i int) int64 {
	return g.ids[i]
}

// Weight returns the (clamped) weight between node indices i and j
func (g *Graph) Weight(i, j int) (float64, bool) {
	k, ok := g.edgeIdx[newEdge(i, j)]
	if !ok {
		return 0, false
	}
	return g.weight[k], true
}

func (g *Graph) lookup(i, j int) (int, bool) {
	k, ok := g.edgeIdx[newEdge(i, j)]
	return k, ok
}

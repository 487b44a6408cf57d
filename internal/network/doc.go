// Package network partitions a weighted similarity graph of features into
// cliques.
//
// The graph is built from a symmetric adjacency matrix. Every edge of weight w
// contributes log10(w^e) to the log-likelihood when both end points share a
// clique, and log10(1-w^e) otherwise. A Partitioner searches for the
// assignment of nodes to cliques that maximises the total log-likelihood using
// node moves, clique merges and a final Kernighan-Lin style refinement. The
// search is a local heuristic; it does not guarantee a global optimum.
package network

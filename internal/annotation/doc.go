// Package annotation assigns adducts to the features of a clique.
//
// For every feature and adduct the implied neutral mass is computed. Masses
// that explain at least two features become candidates. Features sharing
// candidates form annotation groups, and each group is annotated by a
// greedy search that starts once from every candidate mass. The best
// annotations of every group are collected per clique in an Output.
package annotation

// This file contains code to help debugging, and is
// separated in from the rest in order not to litter
// the main code with debugging stuff

package main

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/524D/mzclique/internal/annotation"
	"github.com/524D/mzclique/internal/network"
	"github.com/524D/mzclique/internal/pipeline"
)

// Cliques are annotated in parallel, keep the dump of one clique together
var debugMux sync.Mutex

var debugOut io.Writer = os.Stdout

// newCliqueDumper returns a pipeline.DebugFunc that prints the candidate
// masses and the best annotation of every clique in the debug range. With
// MZCLIQUE_DEBUG=1 and no range, all cliques are printed.
func newCliqueDumper(par params) pipeline.DebugFunc {
	return func(i int, c network.Clique, idx *annotation.Index, out *annotation.Output) {
		if par.debugCliques != `` && (i < par.minDebugClique || i > par.maxDebugClique) {
			return
		}
		debugMux.Lock()
		defer debugMux.Unlock()
		debugLogClique(debugOut, i, c, idx, out)
	}
}

func debugLogClique(w io.Writer, i int, c network.Clique, idx *annotation.Index,
	out *annotation.Output) {

	cat := idx.Catalog()
	fmt.Fprintf(w, "Clique:%d id:%d features:%d candidates:%d groups:%d\n",
		i, c.ID, len(c.Nodes), idx.NumCandidates(), len(idx.Groups()))
	for _, g := range idx.Groups() {
		fmt.Fprintf(w, " group %d features:%v\n", g.ID, g.Features)
		for _, m := range g.Masses() {
			cand, ok := idx.Candidate(m)
			if !ok {
				continue
			}
			fmt.Fprintf(w, "  mass:%.3f [", m)
			for _, p := range cand.Support {
				fmt.Fprintf(w, " %d:%s;", p.Feature, cat[p.Adduct].Name)
			}
			fmt.Fprintf(w, "]\n")
		}
	}
	for _, f := range out.Features {
		e, _ := out.Entry(0, f)
		fmt.Fprintf(w, " %d masses:%v best:%s mass:%.3f score:%.4f\n",
			f, idx.FeatureMasses(f), e.Adduct, e.Mass, e.Score)
	}
	for j, s := range out.Status {
		fmt.Fprintf(w, " component %d: %s\n", j, s)
	}
}

package network

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
)

// Returned by the delta computations when a move would create a clique with
// a missing edge. Moves are only accepted for positive deltas.
const incomplete = -1.0

// Options control the clique search
type Options struct {
	Tol       float64 // convergence tolerance on the relative log-likelihood change
	Step      int     // every Step-th node is moved individually during aggregation
	MaxSweeps int     // sweep budget for each of the two phases
	Seed      int64   // seed for the node order shuffles
	// AbsoluteConvergence stops a phase when |logl - previous| < Tol instead
	// of using the relative change 1 - |logl/previous|
	AbsoluteConvergence bool
	Progress            *Progress
	Logger              *zap.Logger
}

// DefaultOptions returns the options used when nothing else is specified
func DefaultOptions() Options {
	return Options{
		Tol:       1e-5,
		Step:      10,
		MaxSweeps: 10000,
		Seed:      1,
	}
}

// Partitioner assigns every node of a graph to exactly one clique. A
// Partitioner is not safe for concurrent use.
type Partitioner struct {
	g   *Graph
	opt Options
	log *zap.Logger
	rng *rand.Rand

	clique  []int   // node index -> clique slot
	members [][]int // clique slot -> node indices, empty when dissolved

	// Scratch space to visit each candidate clique only once per move
	seen  []int
	stamp int

	logl         float64
	history      []float64
	sweeps       int
	refineSweeps int
}

// NewPartitioner creates a partitioner in which every node starts as its own
// clique. The clique slot of a node is its own index.
func NewPartitioner(g *Graph, opt Options) *Partitioner {
	def := DefaultOptions()
	if opt.Step <= 0 {
		opt.Step = def.Step
	}
	if opt.MaxSweeps <= 0 {
		opt.MaxSweeps = def.MaxSweeps
	}
	if opt.Tol < 0 || math.IsNaN(opt.Tol) {
		opt.Tol = def.Tol
	}
	log := opt.Logger
	if log == nil {
		log = zap.NewNop()
	}
	n := g.NumNodes()
	p := &Partitioner{
		g:       g,
		opt:     opt,
		log:     log,
		rng:     rand.New(rand.NewSource(opt.Seed)),
		clique:  make([]int, n),
		members: make([][]int, n),
		seen:    make([]int, n),
	}
	for i := 0; i < n; i++ {
		p.clique[i] = i
		p.members[i] = []int{i}
	}
	return p
}

// Run optimises the partition. On success the returned error is nil. If the
// search stops early (cancellation, exhausted sweep budget, internal failure)
// the result is nil and the error is a *PartitionError holding the partition
// reached so far.
func (p *Partitioner) Run(ctx context.Context) (res *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("clique search aborted", zap.Any("panic", r))
			res = nil
			err = &PartitionError{
				Err:     fmt.Errorf("%w: %v", ErrInternal, r),
				Partial: p.result(false),
			}
		}
	}()

	p.logl = p.totalLogL()
	p.history = append(p.history[:0], p.logl)
	p.opt.Progress.Add(p.g.NumNodes())
	p.log.Debug("start clique search",
		zap.Int("nodes", p.g.NumNodes()),
		zap.Int("edges", p.g.NumEdges()),
		zap.Float64("logl", p.logl))

	aggErr := p.aggregate(ctx)
	if aggErr != nil && ctx.Err() != nil {
		return nil, &PartitionError{Err: aggErr, Partial: p.result(false)}
	}
	refErr := p.refine(ctx)
	if refErr != nil && ctx.Err() != nil {
		return nil, &PartitionError{Err: refErr, Partial: p.result(false)}
	}
	if aggErr != nil || refErr != nil {
		p.log.Warn("clique search did not converge",
			zap.Int("sweeps", p.sweeps),
			zap.Int("refineSweeps", p.refineSweeps),
			zap.Float64("logl", p.logl))
		return nil, &PartitionError{Err: ErrNonConvergence, Partial: p.result(false)}
	}
	res = p.result(true)
	p.log.Debug("clique search done",
		zap.Int("sweeps", p.sweeps),
		zap.Int("refineSweeps", p.refineSweeps),
		zap.Int("cliques", res.NumCliques()),
		zap.Float64("logl", p.logl))
	return res, nil
}

// aggregate runs sweeps of clique merges, with every Step-th node moved
// individually, until the log-likelihood settles
func (p *Partitioner) aggregate(ctx context.Context) error {
	order := p.nodeOrder()
	visited := make([]bool, len(p.members))
	count := 1
	last := p.logl
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if p.sweeps >= p.opt.MaxSweeps {
			return ErrNonConvergence
		}
		p.shuffle(order)
		for i := range visited {
			visited[i] = false
		}
		for _, v := range order {
			if count == p.opt.Step {
				p.reassignNode(v)
				count = 1
			} else {
				c := p.clique[v]
				// Each clique is merged at most once per sweep
				if !visited[c] {
					visited[c] = true
					p.reassignClique(c)
					count++
				}
			}
			if p.sweeps == 0 {
				p.opt.Progress.Step()
			}
		}
		p.sweeps++
		p.log.Debug("aggregation sweep", zap.Int("sweep", p.sweeps), zap.Float64("logl", p.logl))
		if p.converged(last, p.logl) {
			return nil
		}
		last = p.logl
	}
}

// refine moves single nodes until the log-likelihood settles
// (Kernighan-Lin phase)
func (p *Partitioner) refine(ctx context.Context) error {
	order := p.nodeOrder()
	last := p.logl
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if p.refineSweeps >= p.opt.MaxSweeps {
			return ErrNonConvergence
		}
		p.shuffle(order)
		for _, v := range order {
			p.reassignNode(v)
		}
		p.refineSweeps++
		p.log.Debug("refinement sweep", zap.Int("sweep", p.refineSweeps), zap.Float64("logl", p.logl))
		if p.converged(last, p.logl) {
			return nil
		}
		last = p.logl
	}
}

func (p *Partitioner) converged(last, now float64) bool {
	if p.opt.AbsoluteConvergence {
		return math.Abs(now-last) < p.opt.Tol
	}
	// A graph without edges has logl 0 and nothing to optimise
	if last == 0 {
		return true
	}
	diff := 1.0 - math.Abs(now/last)
	return !(diff > p.opt.Tol)
}

func (p *Partitioner) nodeOrder() []int {
	order := make([]int, p.g.NumNodes())
	for i := range order {
		order[i] = i
	}
	return order
}

func (p *Partitioner) shuffle(order []int) {
	p.rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
}

// nextStamp starts a new round of candidate clique de-duplication
func (p *Partitioner) nextStamp() int {
	p.stamp++
	return p.stamp
}

// bestNodeMove returns the clique that node v should move to and the gain in
// log-likelihood. target is -1 when no neighbouring clique is completable.
func (p *Partitioner) bestNodeMove(v int) (target int, delta float64) {
	own := p.clique[v]
	target = -1
	delta = incomplete
	stamp := p.nextStamp()
	for _, n := range p.g.neighbours[v] {
		c := p.clique[n]
		if c == own || p.seen[c] == stamp {
			continue
		}
		p.seen[c] = stamp
		if d := p.nodeDelta(v, c); d > delta {
			target, delta = c, d
		}
	}
	return target, delta
}

// reassignNode moves node v to the neighbouring clique with the largest
// positive gain, if any. It returns the gain, 0 if v was not moved.
func (p *Partitioner) reassignNode(v int) float64 {
	target, delta := p.bestNodeMove(v)
	if target < 0 || !(delta > 0) {
		return 0
	}
	p.moveNode(v, target)
	p.accept(delta)
	return delta
}

// nodeDelta is the change in log-likelihood when v joins clique target.
// Every member of target must share an edge with v.
func (p *Partitioner) nodeDelta(v, target int) float64 {
	var after, before float64
	for _, u := range p.members[target] {
		k, ok := p.g.lookup(u, v)
		if !ok {
			return incomplete
		}
		// these edges become inside edges
		after += p.g.logIn[k]
		before += p.g.logOut[k]
	}
	for _, u := range p.members[p.clique[v]] {
		if u == v {
			continue
		}
		k, ok := p.g.lookup(u, v)
		if !ok {
			return incomplete
		}
		// edges to the old clique mates end up outside
		after += p.g.logOut[k]
		before += p.g.logIn[k]
	}
	return after - before
}

func (p *Partitioner) moveNode(v, target int) {
	own := p.clique[v]
	m := p.members[own]
	for i, u := range m {
		if u == v {
			p.members[own] = append(m[:i], m[i+1:]...)
			break
		}
	}
	p.members[target] = append(p.members[target], v)
	p.clique[v] = target
}

// meanClique returns the mean of w^e over all node pairs between cliques c1
// and c2, or -1 if a pair has no edge
func (p *Partitioner) meanClique(c1, c2 int) float64 {
	var sum float64
	n := 0
	for _, v1 := range p.members[c1] {
		for _, v2 := range p.members[c2] {
			k, ok := p.g.lookup(v1, v2)
			if !ok {
				return incomplete
			}
			sum += math.Pow(p.g.weight[k], p.g.exponent)
			n++
		}
	}
	if n == 0 {
		return incomplete
	}
	return sum / float64(n)
}

// cliqueDelta is the change in log-likelihood when cliques c1 and c2 merge
func (p *Partitioner) cliqueDelta(c1, c2 int) float64 {
	var delta float64
	for _, v1 := range p.members[c1] {
		for _, v2 := range p.members[c2] {
			k, ok := p.g.lookup(v1, v2)
			if !ok {
				return incomplete
			}
			delta += p.g.logIn[k] - p.g.logOut[k]
		}
	}
	return delta
}

// bestMerge picks the neighbouring clique of c with the highest mean
// similarity, as seen from the first member of c. target is -1 if there is
// no complete candidate.
func (p *Partitioner) bestMerge(c int) (target int, delta float64) {
	target = -1
	if len(p.members[c]) == 0 {
		return target, incomplete
	}
	rep := p.members[c][0]
	maxMean := 0.0
	stamp := p.nextStamp()
	for _, n := range p.g.neighbours[rep] {
		d := p.clique[n]
		if d == c || p.seen[d] == stamp {
			continue
		}
		p.seen[d] = stamp
		if m := p.meanClique(c, d); m > maxMean {
			target, maxMean = d, m
		}
	}
	if target < 0 {
		return target, incomplete
	}
	return target, p.cliqueDelta(c, target)
}

// reassignClique merges clique c into its most similar neighbouring clique if
// that increases the log-likelihood. It returns the gain.
func (p *Partitioner) reassignClique(c int) float64 {
	target, delta := p.bestMerge(c)
	if target < 0 || !(delta > 0) {
		return 0
	}
	for _, v := range p.members[c] {
		p.clique[v] = target
	}
	p.members[target] = append(p.members[target], p.members[c]...)
	p.members[c] = nil
	p.accept(delta)
	return delta
}

func (p *Partitioner) accept(delta float64) {
	p.logl += delta
	p.history = append(p.history, p.logl)
}

// totalLogL computes the log-likelihood of the current partition from scratch
func (p *Partitioner) totalLogL() float64 {
	terms := make([]float64, len(p.g.edges))
	for k, e := range p.g.edges {
		if p.clique[e.a] == p.clique[e.b] {
			terms[k] = p.g.logIn[k]
		} else {
			terms[k] = p.g.logOut[k]
		}
	}
	return floats.Sum(terms)
}

func (p *Partitioner) result(converged bool) *Result {
	res := &Result{
		Assignments:   make([]Assignment, p.g.NumNodes()),
		LogLikelihood: p.logl,
		History:       append([]float64(nil), p.history...),
		Sweeps:        p.sweeps,
		RefineSweeps:  p.refineSweeps,
		Converged:     converged,
	}
	for v := range p.clique {
		res.Assignments[v] = Assignment{Node: p.g.ID(v), Clique: p.g.ID(p.clique[v])}
	}
	sort.Slice(res.Assignments, func(i, j int) bool {
		return res.Assignments[i].Node < res.Assignments[j].Node
	})
	return res
}

// Assignment places one node in a clique. Cliques are identified by the
// feature ID of the node that founded them.
type Assignment struct {
	Node   int64
	Clique int64
}

// Clique is a set of node IDs that share a clique
type Clique struct {
	ID    int64
	Nodes []int64
}

// Result of a clique search
type Result struct {
	Assignments   []Assignment // sorted by node ID
	LogLikelihood float64
	History       []float64 // log-likelihood at the start and after every accepted move
	Sweeps        int       // aggregation sweeps
	RefineSweeps  int       // node refinement sweeps
	Converged     bool
}

// Cliques groups the assignments by clique, ordered by clique ID. The nodes
// of each clique are sorted.
func (r *Result) Cliques() []Clique {
	byID := make(map[int64][]int64)
	for _, a := range r.Assignments {
		byID[a.Clique] = append(byID[a.Clique], a.Node)
	}
	cliques := make([]Clique, 0, len(byID))
	for id, nodes := range byID {
		sort.Slice(nodes, func(i, j int) bool { return nodes[i] < nodes[j] })
		cliques = append(cliques, Clique{ID: id, Nodes: nodes})
	}
	sort.Slice(cliques, func(i, j int) bool { return cliques[i].ID < cliques[j].ID })
	return cliques
}

// NumCliques returns the number of distinct cliques
func (r *Result) NumCliques() int {
	ids := make(map[int64]struct{})
	for _, a := range r.Assignments {
		ids[a.Clique] = struct{}{}
	}
	return len(ids)
}

// Partition runs a new Partitioner on g
func Partition(ctx context.Context, g *Graph, opt Options) (*Result, error) {
	return NewPartitioner(g, opt).Run(ctx)
}

package annotation

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

const (
	// Score charged for every mass added after the first one
	newMassPenalty = -10.0
	// The minimum normalisation score assumes one mass per this many features
	featuresPerMass = 8
)

// Options for the annotation search
type Options struct {
	TopMassPerFeature      int
	TopMassPerGroup        int
	ComponentSizeThreshold int
	EmptyPenalty           float64 // score of a feature without adduct, negative
	NormalizeScore         bool
	TopK                   int
	MaxRounds              int // greedy rounds per annotation, 0 is unlimited
	Logger                 *zap.Logger
}

// DefaultOptions returns the commonly used annotation settings
func DefaultOptions() Options {
	return Options{
		TopMassPerFeature:      1,
		TopMassPerGroup:        10,
		ComponentSizeThreshold: 20,
		EmptyPenalty:           -6,
		NormalizeScore:         true,
		TopK:                   5,
	}
}

// Validate checks the option values
func (o Options) Validate() error {
	switch {
	case o.TopK < 1:
		return fmt.Errorf("%w: top K %d", ErrInvalidOptions, o.TopK)
	case o.TopMassPerFeature < 0 || o.TopMassPerGroup < 0:
		return fmt.Errorf("%w: negative top mass count", ErrInvalidOptions)
	case o.ComponentSizeThreshold < 1:
		return fmt.Errorf("%w: component size threshold %d", ErrInvalidOptions, o.ComponentSizeThreshold)
	case o.EmptyPenalty > 0:
		return fmt.Errorf("%w: empty penalty %v must not be positive", ErrInvalidOptions, o.EmptyPenalty)
	case o.MaxRounds < 0:
		return fmt.Errorf("%w: max rounds %d", ErrInvalidOptions, o.MaxRounds)
	}
	return nil
}

// Status tells how much of a component an annotation explains
type Status int

const (
	Empty Status = iota
	PartiallyAnnotated
	Annotated
)

func (s Status) String() string {
	switch s {
	case Empty:
		return "empty"
	case PartiallyAnnotated:
		return "partial"
	case Annotated:
		return "annotated"
	}
	return "Status(" + strconv.Itoa(int(s)) + ")"
}

// Label is the adduct assigned to one feature. Features without an adduct
// have Annotated false and zero Mass.
type Label struct {
	Adduct    string
	Mass      float64
	Annotated bool
}

// Annotation is one complete hypothesis for the features of a component
type Annotation struct {
	Score  float64
	Labels map[int64]Label
	Status Status
}

// Annotator runs the adduct search on the groups of an Index
type Annotator struct {
	idx   *Index
	opt   Options
	log   *zap.Logger
	freqs []float64 // adduct frequencies, ascending
}

// NewAnnotator returns an annotator for idx
func NewAnnotator(idx *Index, opt Options) (*Annotator, error) {
	if err := opt.Validate(); err != nil {
		return nil, err
	}
	log := opt.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Annotator{idx: idx, opt: opt, log: log, freqs: idx.Catalog().SortedFreqs()}, nil
}

func (a *Annotator) freq(p Pair) float64 {
	return a.idx.opt.Catalog[p.Adduct].Log10Freq
}

// Annotate annotates all groups of the index and collects the result per
// clique feature
func (a *Annotator) Annotate(ctx context.Context) (*Output, error) {
	out := NewOutput(a.idx.CliqueFeatures(), a.opt.TopK)
	for _, g := range a.idx.Groups() {
		comps, err := a.AnnotateGroup(ctx, g)
		if err != nil {
			return nil, err
		}
		for _, anns := range comps {
			out.Add(anns)
		}
	}
	return out, nil
}

// AnnotateGroup returns the best annotations of every component of g, at
// most TopK per component, best first
func (a *Annotator) AnnotateGroup(ctx context.Context, g *Group) ([][]*Annotation, error) {
	masses := a.topScoringMasses(g)
	var comps []component
	if len(g.Features) > a.opt.ComponentSizeThreshold {
		comps = a.separateComponents(g, masses)
		a.log.Debug("split annotation group",
			zap.Int("group", g.ID),
			zap.Int("features", len(g.Features)),
			zap.Int("components", len(comps)))
	} else {
		comps = []component{{features: g.Features, masses: masses}}
	}

	res := make([][]*Annotation, 0, len(comps))
	for _, c := range comps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		anns := a.annotateLoop(c)
		// every retained annotation is rescaled, not just the best
		if a.opt.NormalizeScore {
			for _, an := range anns {
				a.normalize(an)
			}
		}
		res = append(res, anns)
	}
	return res, nil
}

type scoredMass struct {
	key   massKey
	score float64
}

// massScores scores every mass of g by the frequencies of its support plus
// the empty penalty for the group features it leaves unexplained. The
// result is sorted best first, lower mass first on ties.
func (a *Annotator) massScores(g *Group) []scoredMass {
	scores := make([]scoredMass, 0, len(g.masses))
	for _, k := range g.masses {
		sup := a.idx.support(k)
		s := a.opt.EmptyPenalty * float64(len(g.Features)-len(sup))
		for _, p := range sup {
			s += a.freq(p)
		}
		scores = append(scores, scoredMass{key: k, score: s})
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })
	return scores
}

// topScoringMasses returns the TopMassPerGroup best masses of the group
// together with the TopMassPerFeature best masses of every feature, sorted
// by mass
func (a *Annotator) topScoringMasses(g *Group) []massKey {
	scores := a.massScores(g)
	set := make(map[massKey]struct{})
	for i := 0; i < len(scores) && i < a.opt.TopMassPerGroup; i++ {
		set[scores[i].key] = struct{}{}
	}
	if a.opt.TopMassPerFeature > 0 {
		for _, f := range g.Features {
			own := make(map[massKey]struct{})
			for _, k := range a.idx.featMasses[f] {
				own[k] = struct{}{}
			}
			n := 0
			for _, s := range scores {
				if n == a.opt.TopMassPerFeature {
					break
				}
				if _, ok := own[s.key]; ok {
					set[s.key] = struct{}{}
					n++
				}
			}
		}
	}
	ks := make([]massKey, 0, len(set))
	for k := range set {
		ks = append(ks, k)
	}
	sort.Slice(ks, func(i, j int) bool { return ks[i] < ks[j] })
	return ks
}

type component struct {
	features []int64
	masses   []massKey
}

// separateComponents splits a large group into the connected components of
// its features, where only masses in the reduced set link features.
// Components are ordered by their smallest feature ID.
func (a *Annotator) separateComponents(g *Group, masses []massKey) []component {
	gr := simple.NewUndirectedGraph()
	for _, f := range g.Features {
		gr.AddNode(simple.Node(f))
	}
	for _, k := range masses {
		sup := a.idx.support(k)
		for i := 1; i < len(sup); i++ {
			gr.SetEdge(simple.Edge{F: simple.Node(sup[i-1].Feature), T: simple.Node(sup[i].Feature)})
		}
	}

	var comps []component
	for _, nodes := range topo.ConnectedComponents(gr) {
		c := component{features: nodeIDs(nodes)}
		in := make(map[int64]struct{}, len(c.features))
		for _, f := range c.features {
			in[f] = struct{}{}
		}
		for _, k := range masses {
			if _, ok := in[a.idx.support(k)[0].Feature]; ok {
				c.masses = append(c.masses, k)
			}
		}
		comps = append(comps, c)
	}
	sort.Slice(comps, func(i, j int) bool { return comps[i].features[0] < comps[j].features[0] })
	return comps
}

// annotateLoop builds one annotation per starting mass of c, removes
// duplicates and returns the TopK best. A component without masses gets a
// single empty annotation.
func (a *Annotator) annotateLoop(c component) []*Annotation {
	if len(c.masses) == 0 {
		an := &Annotation{Labels: make(map[int64]Label, len(c.features)), Status: Empty}
		a.extend(an, c.features, nil)
		return []*Annotation{an}
	}
	anns := make([]*Annotation, 0, len(c.masses))
	for i, seed := range c.masses {
		an := &Annotation{Labels: make(map[int64]Label, len(c.features))}
		free := a.assign(an, seed, c.features)
		rest := make([]massKey, 0, len(c.masses)-1)
		rest = append(rest, c.masses[:i]...)
		rest = append(rest, c.masses[i+1:]...)
		a.extend(an, free, rest)
		an.Status = status(an)
		anns = append(anns, an)
	}
	anns = dropRepeated(anns)
	sort.SliceStable(anns, func(i, j int) bool { return anns[i].Score > anns[j].Score })
	if len(anns) > a.opt.TopK {
		anns = anns[:a.opt.TopK]
	}
	return anns
}

// assign labels the features of fs explained by mass k, adds their
// frequencies to the score and returns the features left unexplained
func (a *Annotator) assign(an *Annotation, k massKey, fs []int64) []int64 {
	sup := a.idx.support(k)
	byFeature := make(map[int64]Pair, len(sup))
	for _, p := range sup {
		byFeature[p.Feature] = p
	}
	var free []int64
	for _, f := range fs {
		p, ok := byFeature[f]
		if !ok {
			free = append(free, f)
			continue
		}
		an.Labels[f] = Label{Adduct: a.idx.opt.Catalog[p.Adduct].Name, Mass: k.Mass(), Annotated: true}
		an.Score += a.freq(p)
	}
	return free
}

// extend greedily adds the best remaining mass that explains at least two
// free features until fewer than two features are free or no mass
// qualifies
func (a *Annotator) extend(an *Annotation, free []int64, masses []massKey) {
	for rounds := 0; len(free) > 1; rounds++ {
		if a.opt.MaxRounds > 0 && rounds == a.opt.MaxRounds {
			a.log.Debug("annotation round budget exhausted", zap.Int("free", len(free)))
			break
		}
		best, pos, ok := a.bestMass(free, masses)
		if !ok {
			break
		}
		an.Score += newMassPenalty
		free = a.assign(an, best, free)
		masses = append(masses[:pos:pos], masses[pos+1:]...)
	}
	for _, f := range free {
		an.Labels[f] = Label{Adduct: NotAnnotated}
		an.Score += a.opt.EmptyPenalty
	}
}

// bestMass returns the mass with the highest frequency score over the free
// features, among masses that explain at least two of them
func (a *Annotator) bestMass(free []int64, masses []massKey) (massKey, int, bool) {
	in := make(map[int64]struct{}, len(free))
	for _, f := range free {
		in[f] = struct{}{}
	}
	var (
		best      massKey
		pos       int
		bestScore float64
		found     bool
	)
	for i, k := range masses {
		n := 0
		s := 0.0
		for _, p := range a.idx.support(k) {
			if _, ok := in[p.Feature]; ok {
				s += a.freq(p)
				n++
			}
		}
		if n < 2 {
			continue
		}
		if !found || s > bestScore {
			best, pos, bestScore, found = k, i, s, true
		}
	}
	return best, pos, found
}

func status(an *Annotation) Status {
	n := 0
	for _, l := range an.Labels {
		if l.Annotated {
			n++
		}
	}
	switch n {
	case 0:
		return Empty
	case len(an.Labels):
		return Annotated
	}
	return PartiallyAnnotated
}

// signature is a canonical text form of the label assignment
func (an *Annotation) signature() string {
	ids := make([]int64, 0, len(an.Labels))
	for f := range an.Labels {
		ids = append(ids, f)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	var b strings.Builder
	for _, f := range ids {
		l := an.Labels[f]
		fmt.Fprintf(&b, "%d:%s:%.3f;", f, l.Adduct, l.Mass)
	}
	return b.String()
}

// dropRepeated keeps the first of every set of annotations with identical
// labels
func dropRepeated(anns []*Annotation) []*Annotation {
	seen := make(map[string]struct{}, len(anns))
	out := anns[:0]
	for _, an := range anns {
		s := an.signature()
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, an)
	}
	return out
}

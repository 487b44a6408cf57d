package annotation

import (
	"fmt"
	"math"
	"sort"

	"github.com/tidwall/btree"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/524D/mzclique/internal/adduct"
)

// Slack added to both ends of the adduct mass offset window
const windowSlack = 0.10

// Feature is an LC-MS feature as seen by the annotator. Charge is the charge
// found by isotope detection, 0 if unknown. The sign of the charge is
// ignored.
type Feature struct {
	ID     int64
	Mz     float64
	Charge int
}

// massKey is a neutral mass rounded to 3 decimals, in units of 1e-3 Da
type massKey int64

func keyOf(mass float64) massKey {
	return massKey(math.Round(mass * 1000))
}

// Mass returns the rounded neutral mass
func (k massKey) Mass() float64 {
	return float64(k) / 1000
}

// Pair links a feature to the adduct (index into the catalog) that explains
// it for a given neutral mass
type Pair struct {
	Feature int64
	Adduct  int
}

// Candidate is a neutral mass that explains at least two features
type Candidate struct {
	key     massKey
	Mass    float64
	Support []Pair // sorted by feature ID, one pair per feature
}

// Group is a connected set of features that share candidate masses
type Group struct {
	ID       int
	Features []int64   // sorted
	masses   []massKey // sorted, after near duplicate pruning
}

// NumMasses returns the number of candidate masses of the group
func (g *Group) NumMasses() int {
	return len(g.masses)
}

// Masses returns the candidate masses of the group in ascending order
func (g *Group) Masses() []float64 {
	m := make([]float64, len(g.masses))
	for i, k := range g.masses {
		m[i] = k.Mass()
	}
	return m
}

// IndexOptions configure the candidate mass search
type IndexOptions struct {
	Catalog   adduct.Catalog
	Tolerance adduct.MzTolerance
	// Relative difference below which two candidate masses are compared
	// for redundancy (scaled by sqrt(2))
	Filter float64
}

// Index holds the candidate neutral masses of the features of one clique and
// the annotation groups derived from them. An Index is not safe for
// concurrent use.
type Index struct {
	opt    IndexOptions
	clique []int64 // sorted
	inCliq map[int64]struct{}

	features   map[int64]Feature
	byMz       *btree.BTreeG[Feature]
	candidates *btree.Map[massKey, *Candidate]
	featMasses map[int64][]massKey
	groups     []*Group
}

func lessMz(a, b Feature) bool {
	if a.Mz != b.Mz {
		return a.Mz < b.Mz
	}
	return a.ID < b.ID
}

// BuildIndex computes the candidate masses for the features of a clique.
// Features that support a candidate mass are searched in searchList, which
// normally is the complete feature table. The clique features are always
// part of the search.
func BuildIndex(clique []Feature, searchList []Feature, opt IndexOptions) (*Index, error) {
	if err := opt.Catalog.Validate(); err != nil {
		return nil, err
	}
	idx := &Index{
		opt:        opt,
		inCliq:     make(map[int64]struct{}, len(clique)),
		features:   make(map[int64]Feature, len(searchList)+len(clique)),
		byMz:       btree.NewBTreeG[Feature](lessMz),
		candidates: btree.NewMap[massKey, *Candidate](32),
		featMasses: make(map[int64][]massKey),
	}
	add := func(f Feature) error {
		// only the number of charges is compared with an adduct
		if f.Charge < 0 {
			f.Charge = -f.Charge
		}
		if math.IsNaN(f.Mz) || f.Mz <= 0 {
			return fmt.Errorf("%w: feature %d (m/z %v, charge %d)", ErrInvalidFeature, f.ID, f.Mz, f.Charge)
		}
		if old, ok := idx.features[f.ID]; ok {
			if old != f {
				return fmt.Errorf("%w: feature %d defined twice", ErrInvalidFeature, f.ID)
			}
			return nil
		}
		idx.features[f.ID] = f
		idx.byMz.Set(f)
		return nil
	}
	for _, f := range clique {
		if err := add(f); err != nil {
			return nil, err
		}
		if _, dup := idx.inCliq[f.ID]; !dup {
			idx.inCliq[f.ID] = struct{}{}
			idx.clique = append(idx.clique, f.ID)
		}
	}
	sort.Slice(idx.clique, func(i, j int) bool { return idx.clique[i] < idx.clique[j] })
	for _, f := range searchList {
		if err := add(f); err != nil {
			return nil, err
		}
	}

	idx.findCandidates()
	idx.buildGroups()
	for _, g := range idx.groups {
		idx.pruneGroup(g)
	}
	return idx, nil
}

// chargeMatches reports whether feature charge c (0 = unknown) is compatible
// with adduct a
func chargeMatches(c int, a adduct.Adduct) bool {
	return c == 0 || a.AbsCharge() == c
}

// findCandidates computes the neutral mass of every clique feature under
// every adduct and keeps the masses that are supported by two or more
// features
func (idx *Index) findCandidates() {
	tried := make(map[massKey]struct{})
	for _, id := range idx.clique {
		f := idx.features[id]
		for _, a := range idx.opt.Catalog {
			if !chargeMatches(f.Charge, a) {
				continue
			}
			mass := a.NeutralMass(f.Mz)
			if !(mass > 0) {
				continue
			}
			k := keyOf(mass)
			if _, ok := tried[k]; ok {
				continue
			}
			tried[k] = struct{}{}
			support := idx.findAdducts(k.Mass())
			if len(support) < 2 {
				continue
			}
			idx.candidates.Set(k, &Candidate{key: k, Mass: k.Mass(), Support: support})
			for _, p := range support {
				idx.featMasses[p.Feature] = append(idx.featMasses[p.Feature], k)
			}
		}
	}
	for f, ks := range idx.featMasses {
		sort.Slice(ks, func(i, j int) bool { return ks[i] < ks[j] })
		idx.featMasses[f] = ks
	}
}

// findAdducts returns the features that can be explained as an adduct of
// the given neutral mass. Two independent m/z errors add up, so the
// tolerance is widened by sqrt(2).
func (idx *Index) findAdducts(mass float64) []Pair {
	tol := idx.opt.Tolerance.Scale(math.Sqrt2)
	minOff, maxOff := math.Inf(1), math.Inf(-1)
	for _, a := range idx.opt.Catalog {
		off := a.MassOffset(mass)
		minOff = math.Min(minOff, off)
		maxOff = math.Max(maxOff, off)
	}
	w := tol.Width(mass)
	lo := mass + minOff - math.Abs(minOff)*windowSlack - w
	hi := mass + maxOff + math.Abs(maxOff)*windowSlack + w

	var support []Pair
	idx.byMz.Ascend(Feature{ID: math.MinInt64, Mz: lo}, func(f Feature) bool {
		if f.Mz > hi {
			return false
		}
		best := -1
		bestErr := math.Inf(1)
		for i, a := range idx.opt.Catalog {
			if !chargeMatches(f.Charge, a) {
				continue
			}
			implied := f.Mz - a.MassOffset(mass)
			if !tol.Contains(mass, implied) {
				continue
			}
			// closest adduct wins, catalog order breaks ties
			if e := math.Abs(implied - mass); e < bestErr {
				best, bestErr = i, e
			}
		}
		if best >= 0 {
			support = append(support, Pair{Feature: f.ID, Adduct: best})
		}
		return true
	})
	sort.Slice(support, func(i, j int) bool { return support[i].Feature < support[j].Feature })
	return support
}

// buildGroups splits the features into annotation groups: connected
// components of the "share a candidate mass" relation. Only groups that
// contain a clique feature are kept. Groups are numbered by their smallest
// feature ID.
func (idx *Index) buildGroups() {
	g := simple.NewUndirectedGraph()
	addNode := func(id int64) {
		if g.Node(id) == nil {
			g.AddNode(simple.Node(id))
		}
	}
	for _, id := range idx.clique {
		addNode(id)
	}
	idx.candidates.Scan(func(_ massKey, c *Candidate) bool {
		for i, p := range c.Support {
			addNode(p.Feature)
			if i > 0 {
				g.SetEdge(simple.Edge{F: simple.Node(c.Support[i-1].Feature), T: simple.Node(p.Feature)})
			}
		}
		return true
	})

	var groups []*Group
	for _, comp := range topo.ConnectedComponents(g) {
		grp := &Group{Features: nodeIDs(comp)}
		hasClique := false
		for _, f := range grp.Features {
			if _, ok := idx.inCliq[f]; ok {
				hasClique = true
				break
			}
		}
		if hasClique {
			groups = append(groups, grp)
		}
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Features[0] < groups[j].Features[0] })
	for i, grp := range groups {
		grp.ID = i
		grp.masses = idx.unionMasses(grp.Features)
	}
	idx.groups = groups
}

func nodeIDs(nodes []graph.Node) []int64 {
	ids := make([]int64, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID()
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (idx *Index) unionMasses(features []int64) []massKey {
	set := make(map[massKey]struct{})
	for _, f := range features {
		for _, k := range idx.featMasses[f] {
			set[k] = struct{}{}
		}
	}
	ks := make([]massKey, 0, len(set))
	for k := range set {
		ks = append(ks, k)
	}
	sort.Slice(ks, func(i, j int) bool { return ks[i] < ks[j] })
	return ks
}

// redundantMasses finds the candidate masses of a group that are within the
// filter of another mass and explain a subset of its features. Of two
// masses with equal support the lower one is dropped.
func (idx *Index) redundantMasses(g *Group) map[massKey]struct{} {
	limit := idx.opt.Filter * math.Sqrt2
	bad := make(map[massKey]struct{})
	for i, k1 := range g.masses {
		m1 := k1.Mass()
		for _, k2 := range g.masses[i+1:] {
			m2 := k2.Mass()
			if math.Abs(m2-m1)/m1 >= limit {
				// masses are sorted, the difference only grows
				break
			}
			s1 := idx.support(k1)
			s2 := idx.support(k2)
			switch {
			case len(s1) > len(s2):
				if isSubset(s2, s1) {
					bad[k2] = struct{}{}
				}
			default:
				if isSubset(s1, s2) {
					bad[k1] = struct{}{}
				}
			}
		}
	}
	return bad
}

// isSubset reports whether every pair of a is also in b
func isSubset(a, b []Pair) bool {
	in := make(map[Pair]struct{}, len(b))
	for _, p := range b {
		in[p] = struct{}{}
	}
	for _, p := range a {
		if _, ok := in[p]; !ok {
			return false
		}
	}
	return true
}

// pruneGroup removes redundant masses from the group, the candidate index
// and the mass lists of the group's features
func (idx *Index) pruneGroup(g *Group) {
	bad := idx.redundantMasses(g)
	if len(bad) == 0 {
		return
	}
	keep := func(ks []massKey) []massKey {
		out := ks[:0]
		for _, k := range ks {
			if _, drop := bad[k]; !drop {
				out = append(out, k)
			}
		}
		return out
	}
	g.masses = keep(g.masses)
	for k := range bad {
		idx.candidates.Delete(k)
	}
	for _, f := range g.Features {
		idx.featMasses[f] = keep(idx.featMasses[f])
	}
}

func (idx *Index) support(k massKey) []Pair {
	c, ok := idx.candidates.Get(k)
	if !ok {
		return nil
	}
	return c.Support
}

// Groups returns the annotation groups, ordered by ID
func (idx *Index) Groups() []*Group {
	return idx.groups
}

// CliqueFeatures returns the sorted IDs of the clique's features
func (idx *Index) CliqueFeatures() []int64 {
	return idx.clique
}

// NumCandidates returns the number of candidate masses left after pruning
func (idx *Index) NumCandidates() int {
	return idx.candidates.Len()
}

// Candidate returns the candidate closest to mass, if it lies within 0.5 mDa
func (idx *Index) Candidate(mass float64) (*Candidate, bool) {
	return idx.candidates.Get(keyOf(mass))
}

// FeatureMasses returns the candidate masses of a feature in ascending order
func (idx *Index) FeatureMasses(feature int64) []float64 {
	ks := idx.featMasses[feature]
	m := make([]float64, len(ks))
	for i, k := range ks {
		m[i] = k.Mass()
	}
	return m
}

// Catalog returns the adducts used by the index
func (idx *Index) Catalog() adduct.Catalog {
	return idx.opt.Catalog
}

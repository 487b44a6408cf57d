package annotation

// NotAnnotated is the adduct name reported for a feature without adduct
const NotAnnotated = "NA"

// Entry is the result for one feature at one rank
type Entry struct {
	Adduct string  `json:"adduct"`
	Mass   float64 `json:"mass"`
	Score  float64 `json:"score"`
}

// Output holds the K best annotations of the features of a clique. Rank r
// of a feature is the r-th best annotation of the component the feature
// belongs to.
type Output struct {
	Features []int64
	Ranks    [][]Entry // [rank][position in Features]

	// Status of the best annotation of every component that has one
	Status []Status
	pos    map[int64]int
}

// NewOutput returns an output for the given features with k ranks, every
// entry set to NA
func NewOutput(features []int64, k int) *Output {
	o := &Output{
		Features: append([]int64(nil), features...),
		Ranks:    make([][]Entry, k),
		pos:      make(map[int64]int, len(features)),
	}
	for i, f := range o.Features {
		o.pos[f] = i
	}
	for r := range o.Ranks {
		row := make([]Entry, len(features))
		for i := range row {
			row[i] = Entry{Adduct: NotAnnotated}
		}
		o.Ranks[r] = row
	}
	return o
}

// Add stores the annotations of one component, best first. Labels of
// features that are not part of the output are ignored.
func (o *Output) Add(anns []*Annotation) {
	if len(anns) > 0 {
		o.Status = append(o.Status, anns[0].Status)
	}
	for r, an := range anns {
		if r == len(o.Ranks) {
			break
		}
		for f, l := range an.Labels {
			i, ok := o.pos[f]
			if !ok {
				continue
			}
			o.Ranks[r][i] = Entry{Adduct: l.Adduct, Mass: l.Mass, Score: an.Score}
		}
	}
}

// Entry returns the result of feature f at the given rank
func (o *Output) Entry(rank int, f int64) (Entry, bool) {
	i, ok := o.pos[f]
	if !ok || rank < 0 || rank >= len(o.Ranks) {
		return Entry{}, false
	}
	return o.Ranks[rank][i], true
}

// Best returns the rank 0 entry of every feature, keyed by feature ID
func (o *Output) Best() map[int64]Entry {
	m := make(map[int64]Entry, len(o.Features))
	if len(o.Ranks) == 0 {
		return m
	}
	for i, f := range o.Features {
		m[f] = o.Ranks[0][i]
	}
	return m
}

package annotation

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// maxScore is the best score n features can reach: the catalog is used
// completely as often as possible, each round adding one mass, and the
// remaining features get the most frequent adducts
func (a *Annotator) maxScore(n int) float64 {
	k := len(a.freqs)
	rounds := n / k
	rest := n % k
	return float64(rounds)*floats.Sum(a.freqs) +
		floats.Sum(a.freqs[k-rest:]) +
		float64(rounds)*newMassPenalty
}

// minScore is the score of n unexplained features, compensated with one
// mass per featuresPerMass features
func (a *Annotator) minScore(n int) float64 {
	return float64(n)*a.opt.EmptyPenalty + newMassPenalty*(float64(n)/featuresPerMass)
}

// normalize rescales the score of an into [0, 100], rounded to 4 decimals
func (a *Annotator) normalize(an *Annotation) {
	n := len(an.Labels)
	hi := a.maxScore(n)
	lo := a.minScore(n)
	if hi <= lo {
		an.Score = 0
		return
	}
	s := 100 * (an.Score - lo) / (hi - lo)
	if s < 0 {
		s = 0
	}
	an.Score = math.Round(s*10000) / 10000
}

package network

import "sync/atomic"

// Progress is a coarse progress counter. It only advances during the first
// sweep of the partitioner. It may be shared between goroutines.
type Progress struct {
	done  atomic.Int64
	total atomic.Int64
}

// Add registers n more units of work
func (p *Progress) Add(n int) {
	if p != nil {
		p.total.Add(int64(n))
	}
}

// Step marks one unit of work as finished
func (p *Progress) Step() {
	if p != nil {
		p.done.Add(1)
	}
}

// Fraction returns the finished part of the registered work, in [0,1]
func (p *Progress) Fraction() float64 {
	if p == nil {
		return 0
	}
	t := p.total.Load()
	if t == 0 {
		return 0
	}
	d := p.done.Load()
	if d > t {
		d = t
	}
	return float64(d) / float64(t)
}

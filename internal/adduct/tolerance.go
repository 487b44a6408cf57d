package adduct

import "math"

// MzTolerance is an m/z window given as an absolute value and a relative
// value in ppm. The wider of the two applies.
type MzTolerance struct {
	Absolute float64 `yaml:"absolute" json:"absolute"`
	PPM      float64 `yaml:"ppm" json:"ppm"`
}

// Width returns the half width of the tolerance window around mz
func (t MzTolerance) Width(mz float64) float64 {
	return math.Max(t.Absolute, math.Abs(mz)*t.PPM*1e-6)
}

// Scale returns a tolerance with both components multiplied by f
func (t MzTolerance) Scale(f float64) MzTolerance {
	return MzTolerance{Absolute: t.Absolute * f, PPM: t.PPM * f}
}

// Contains reports whether value lies within the tolerance window around mz
func (t MzTolerance) Contains(mz, value float64) bool {
	w := t.Width(mz)
	return value >= mz-w && value <= mz+w
}

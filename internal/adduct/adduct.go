// Package adduct describes ionisation forms (adducts) and the m/z tolerance
// used to match them.
package adduct

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

const massProton = 1.007276466879

// Adduct is one ionisation hypothesis. A neutral molecule of mass M is seen
// at m/z (NumMol*M + AddedMass) / |Charge|.
type Adduct struct {
	Name      string  `yaml:"name"`
	AddedMass float64 `yaml:"addedMass"`
	NumMol    int     `yaml:"numMol"`
	Charge    int     `yaml:"charge"`
	Log10Freq float64 `yaml:"log10Freq"` // prior, log10 of the relative frequency
}

// NeutralMass returns the mass of the molecule that would be observed at mz
// as this adduct
func (a Adduct) NeutralMass(mz float64) float64 {
	return (mz*math.Abs(float64(a.Charge)) - a.AddedMass) / float64(a.NumMol)
}

// Mz returns the m/z of a molecule of the given neutral mass ionised as
// this adduct
func (a Adduct) Mz(mass float64) float64 {
	return (mass*float64(a.NumMol) + a.AddedMass) / math.Abs(float64(a.Charge))
}

// MassOffset is the difference between the observed m/z and the neutral mass
func (a Adduct) MassOffset(mass float64) float64 {
	return a.Mz(mass) - mass
}

// AbsCharge returns the number of charges carried by the adduct
func (a Adduct) AbsCharge() int {
	if a.Charge < 0 {
		return -a.Charge
	}
	return a.Charge
}

// Catalog is an ordered list of adducts. The order is only used to break
// ties.
type Catalog []Adduct

var (
	ErrEmptyCatalog   = errors.New("adduct: empty catalog")
	ErrInvalidAdduct  = errors.New("adduct: invalid adduct definition")
	ErrDuplicateName  = errors.New("adduct: duplicate adduct name")
	ErrUnknownCatalog = errors.New("adduct: unknown catalog")
)

// Validate checks that every adduct can be used to compute masses
func (c Catalog) Validate() error {
	if len(c) == 0 {
		return ErrEmptyCatalog
	}
	names := make(map[string]struct{}, len(c))
	for _, a := range c {
		if a.Name == "" || a.NumMol < 1 || a.Charge == 0 ||
			math.IsNaN(a.AddedMass) || math.IsNaN(a.Log10Freq) || a.Log10Freq > 0 {
			return fmt.Errorf("%w: %+v", ErrInvalidAdduct, a)
		}
		if _, dup := names[a.Name]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateName, a.Name)
		}
		names[a.Name] = struct{}{}
	}
	return nil
}

// Index returns the position of the adduct with the given name, or -1
func (c Catalog) Index(name string) int {
	for i, a := range c {
		if a.Name == name {
			return i
		}
	}
	return -1
}

// SortedFreqs returns the log10 frequencies in ascending order
func (c Catalog) SortedFreqs() []float64 {
	f := make([]float64, len(c))
	for i, a := range c {
		f[i] = a.Log10Freq
	}
	sort.Float64s(f)
	return f
}

// DefaultPositive is a catalog of common adducts in positive ion mode
var DefaultPositive = Catalog{
	{Name: "[M+H]+", AddedMass: massProton, NumMol: 1, Charge: 1, Log10Freq: -0.25},
	{Name: "[M+Na]+", AddedMass: 22.989218, NumMol: 1, Charge: 1, Log10Freq: -0.8},
	{Name: "[M+NH4]+", AddedMass: 18.033823, NumMol: 1, Charge: 1, Log10Freq: -1.1},
	{Name: "[M+H-H2O]+", AddedMass: -17.003288, NumMol: 1, Charge: 1, Log10Freq: -1.2},
	{Name: "[M+K]+", AddedMass: 38.963158, NumMol: 1, Charge: 1, Log10Freq: -1.4},
	{Name: "[2M+H]+", AddedMass: massProton, NumMol: 2, Charge: 1, Log10Freq: -1.5},
	{Name: "[M+2H]2+", AddedMass: 2 * massProton, NumMol: 1, Charge: 2, Log10Freq: -1.6},
	{Name: "[2M+Na]+", AddedMass: 22.989218, NumMol: 2, Charge: 1, Log10Freq: -1.9},
	{Name: "[M+ACN+H]+", AddedMass: 42.033823, NumMol: 1, Charge: 1, Log10Freq: -2.0},
	{Name: "[M+H+Na]2+", AddedMass: 23.996494, NumMol: 1, Charge: 2, Log10Freq: -2.1},
}

// DefaultNegative is a catalog of common adducts in negative ion mode
var DefaultNegative = Catalog{
	{Name: "[M-H]-", AddedMass: -massProton, NumMol: 1, Charge: -1, Log10Freq: -0.2},
	{Name: "[M+Cl]-", AddedMass: 34.969402, NumMol: 1, Charge: -1, Log10Freq: -1.0},
	{Name: "[M+FA-H]-", AddedMass: 44.998201, NumMol: 1, Charge: -1, Log10Freq: -1.1},
	{Name: "[M-H2O-H]-", AddedMass: -19.01839, NumMol: 1, Charge: -1, Log10Freq: -1.3},
	{Name: "[2M-H]-", AddedMass: -massProton, NumMol: 2, Charge: -1, Log10Freq: -1.5},
	{Name: "[M+Na-2H]-", AddedMass: 20.974666, NumMol: 1, Charge: -1, Log10Freq: -1.8},
	{Name: "[M-2H]2-", AddedMass: -2 * massProton, NumMol: 1, Charge: -2, Log10Freq: -1.9},
}

// ByPolarity returns the build-in catalog for "positive" or "negative" mode
func ByPolarity(polarity string) (Catalog, error) {
	switch polarity {
	case "positive", "pos", "+":
		return DefaultPositive, nil
	case "negative", "neg", "-":
		return DefaultNegative, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownCatalog, polarity)
}

// ReadCatalog decodes a YAML list of adducts
func ReadCatalog(r io.Reader) (Catalog, error) {
	var c Catalog
	d := yaml.NewDecoder(r)
	d.KnownFields(true)
	if err := d.Decode(&c); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyCatalog
		}
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadCatalog reads a YAML adduct catalog from a file
func LoadCatalog(filename string) (Catalog, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadCatalog(f)
}

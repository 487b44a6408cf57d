// Package config holds the run parameters of mzclique. Parameters start from
// Default, may be overridden by a YAML file and finally by command line
// flags.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/524D/mzclique/internal/adduct"
)

// Search scopes for adduct partners
const (
	ScopeFull   = "full"
	ScopeClique = "clique"
)

var ErrInvalidParam = errors.New("config: invalid parameter")

// Params are all tunables of a run
type Params struct {
	// Partitioning
	Exponent            float64 `yaml:"exponent"`
	Tol                 float64 `yaml:"tol"`
	Step                int     `yaml:"step"`
	MaxSweeps           int     `yaml:"maxSweeps"`
	Seed                int64   `yaml:"seed"`
	AbsoluteConvergence bool    `yaml:"absoluteConvergence"`

	// Annotation
	Polarity               string             `yaml:"polarity"`   // selects the build-in adduct catalog
	AdductFile             string             `yaml:"adductFile"` // YAML catalog, overrides Polarity
	Tolerance              adduct.MzTolerance `yaml:"tolerance"`
	Filter                 float64            `yaml:"filter"`
	TopMassPerFeature      int                `yaml:"topMassPerFeature"`
	TopMassPerGroup        int                `yaml:"topMassPerGroup"`
	ComponentSizeThreshold int                `yaml:"componentSizeThreshold"`
	EmptyPenalty           float64            `yaml:"emptyPenalty"`
	NormalizeScore         bool               `yaml:"normalizeScore"`
	TopK                   int                `yaml:"topK"`
	MaxAnnotationRounds    int                `yaml:"maxAnnotationRounds"`
	SearchScope            string             `yaml:"searchScope"`

	Workers     int    `yaml:"workers"` // cliques annotated in parallel
	MetricsFile string `yaml:"metricsFile"`
}

// Default returns the standard parameters
func Default() Params {
	return Params{
		Exponent:               2.0,
		Tol:                    1e-5,
		Step:                   10,
		MaxSweeps:              10000,
		Seed:                   1,
		Polarity:               "positive",
		Tolerance:              adduct.MzTolerance{PPM: 10},
		Filter:                 1e-4,
		TopMassPerFeature:      1,
		TopMassPerGroup:        10,
		ComponentSizeThreshold: 20,
		EmptyPenalty:           -6,
		NormalizeScore:         true,
		TopK:                   5,
		SearchScope:            ScopeFull,
		Workers:                4,
	}
}

// Read decodes YAML parameters on top of the defaults. Unknown keys are an
// error.
func Read(r io.Reader) (Params, error) {
	p := Default()
	d := yaml.NewDecoder(r)
	d.KnownFields(true)
	if err := d.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		return p, fmt.Errorf("config: %w", err)
	}
	return p, p.Validate()
}

// Load reads a YAML parameter file
func Load(filename string) (Params, error) {
	f, err := os.Open(filename)
	if err != nil {
		return Default(), err
	}
	defer f.Close()
	return Read(f)
}

// Validate checks the parameter values
func (p Params) Validate() error {
	bad := func(name string, v any) error {
		return fmt.Errorf("%w: %s = %v", ErrInvalidParam, name, v)
	}
	switch {
	case !(p.Exponent > 0):
		return bad("exponent", p.Exponent)
	case p.Tol < 0:
		return bad("tol", p.Tol)
	case p.Step < 1:
		return bad("step", p.Step)
	case p.MaxSweeps < 1:
		return bad("maxSweeps", p.MaxSweeps)
	case p.Tolerance.Absolute < 0 || p.Tolerance.PPM < 0:
		return bad("tolerance", p.Tolerance)
	case p.Tolerance.Absolute == 0 && p.Tolerance.PPM == 0:
		return bad("tolerance", p.Tolerance)
	case p.Filter < 0:
		return bad("filter", p.Filter)
	case p.TopMassPerFeature < 0:
		return bad("topMassPerFeature", p.TopMassPerFeature)
	case p.TopMassPerGroup < 0:
		return bad("topMassPerGroup", p.TopMassPerGroup)
	case p.ComponentSizeThreshold < 1:
		return bad("componentSizeThreshold", p.ComponentSizeThreshold)
	case p.EmptyPenalty > 0:
		return bad("emptyPenalty", p.EmptyPenalty)
	case p.TopK < 1:
		return bad("topK", p.TopK)
	case p.MaxAnnotationRounds < 0:
		return bad("maxAnnotationRounds", p.MaxAnnotationRounds)
	case p.SearchScope != ScopeFull && p.SearchScope != ScopeClique:
		return bad("searchScope", p.SearchScope)
	case p.Workers < 1:
		return bad("workers", p.Workers)
	}
	if p.AdductFile == "" {
		if _, err := adduct.ByPolarity(p.Polarity); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidParam, err)
		}
	}
	return nil
}

// Catalog returns the adduct catalog selected by the parameters
func (p Params) Catalog() (adduct.Catalog, error) {
	if p.AdductFile != "" {
		return adduct.LoadCatalog(p.AdductFile)
	}
	return adduct.ByPolarity(p.Polarity)
}

package adduct

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNeutralMassRoundTrip(t *testing.T) {
	const mass = 180.06339 // glucose
	for _, c := range []Catalog{DefaultPositive, DefaultNegative} {
		require.NoError(t, c.Validate())
		for _, a := range c {
			mz := a.Mz(mass)
			assert.InDelta(t, mass, a.NeutralMass(mz), 1e-9, a.Name)
			assert.InDelta(t, mz-mass, a.MassOffset(mass), 1e-9, a.Name)
		}
	}
	h := DefaultPositive[DefaultPositive.Index("[M+H]+")]
	assert.InDelta(t, 181.070666, h.Mz(mass), 1e-6)
	h2 := DefaultPositive[DefaultPositive.Index("[M+2H]2+")]
	assert.Equal(t, 2, h2.AbsCharge())
	assert.InDelta(t, (mass+2*massProton)/2, h2.Mz(mass), 1e-9)
	assert.Equal(t, 1, DefaultNegative[0].AbsCharge())
	assert.Equal(t, -1, DefaultPositive.Index("[M+Xe]+"))
}

func TestSortedFreqs(t *testing.T) {
	c := Catalog{
		{Name: "a", NumMol: 1, Charge: 1, Log10Freq: -0.5},
		{Name: "b", NumMol: 1, Charge: 1, Log10Freq: -2},
		{Name: "c", NumMol: 1, Charge: 1, Log10Freq: -1},
	}
	assert.Equal(t, []float64{-2, -1, -0.5}, c.SortedFreqs())
}

func TestValidate(t *testing.T) {
	assert.ErrorIs(t, Catalog{}.Validate(), ErrEmptyCatalog)
	assert.ErrorIs(t, Catalog{{Name: "x", NumMol: 0, Charge: 1}}.Validate(), ErrInvalidAdduct)
	assert.ErrorIs(t, Catalog{{Name: "x", NumMol: 1, Charge: 0}}.Validate(), ErrInvalidAdduct)
	assert.ErrorIs(t, Catalog{{Name: "x", NumMol: 1, Charge: 1, Log10Freq: 0.3}}.Validate(), ErrInvalidAdduct)
	assert.ErrorIs(t, Catalog{
		{Name: "x", NumMol: 1, Charge: 1},
		{Name: "x", NumMol: 2, Charge: 1},
	}.Validate(), ErrDuplicateName)
}

func TestReadCatalog(t *testing.T) {
	in := `
- name: "[M+H]+"
  addedMass: 1.007276
  numMol: 1
  charge: 1
  log10Freq: -0.3
- name: "[M+Na]+"
  addedMass: 22.989218
  numMol: 1
  charge: 1
  log10Freq: -0.9
`
	c, err := ReadCatalog(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, c, 2)
	assert.Equal(t, "[M+Na]+", c[1].Name)
	assert.Equal(t, -0.9, c[1].Log10Freq)

	_, err = ReadCatalog(strings.NewReader(""))
	assert.ErrorIs(t, err, ErrEmptyCatalog)
	_, err = ReadCatalog(strings.NewReader("- name: x\n  bogus: 1\n"))
	assert.Error(t, err)
}

func TestByPolarity(t *testing.T) {
	c, err := ByPolarity("negative")
	require.NoError(t, err)
	assert.Equal(t, "[M-H]-", c[0].Name)
	_, err = ByPolarity("sideways")
	assert.ErrorIs(t, err, ErrUnknownCatalog)
}

func TestTolerance(t *testing.T) {
	tol := MzTolerance{Absolute: 0.001, PPM: 10}
	// ppm dominates at high m/z, absolute at low m/z
	assert.InDelta(t, 0.01, tol.Width(1000), 1e-12)
	assert.InDelta(t, 0.001, tol.Width(50), 1e-12)
	assert.True(t, tol.Contains(1000, 1000.0099))
	assert.False(t, tol.Contains(1000, 1000.0101))
	s := tol.Scale(2)
	assert.Equal(t, MzTolerance{Absolute: 0.002, PPM: 20}, s)
}

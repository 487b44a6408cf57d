package featurexml

import (
	"encoding/xml"
	"fmt"
	"io"

	"golang.org/x/net/html/charset"
)

// Read reads featureXML content from io.reader
func Read(reader io.Reader) (FeatureXML, error) {
	var f FeatureXML
	d := xml.NewDecoder(reader)
	d.CharsetReader = charset.NewReaderLabel
	err := d.Decode(&f.content)
	return f, err
}

// NumFeatures returns the number of features in the file
func (f *FeatureXML) NumFeatures() int {
	return len(f.content.Feature)
}

// Feature returns feature i, which runs from 0 to NumFeatures()-1
func (f *FeatureXML) Feature(i int) (Feature, error) {
	if i < 0 || i >= len(f.content.Feature) {
		return Feature{}, ErrInvalidFeatureIndex
	}
	x := f.content.Feature[i]
	feat := Feature{
		Index:     i,
		ID:        x.ID,
		Intensity: x.Intensity,
		Charge:    x.Charge,
	}
	if feat.Charge < 0 {
		feat.Charge = -feat.Charge
	}
	hasMz := false
	for _, p := range x.Position {
		switch p.Dim {
		case dimRT:
			feat.RT = p.Value
		case dimMz:
			feat.Mz = p.Value
			hasMz = true
		}
	}
	if !hasMz {
		return feat, fmt.Errorf("%w: %s", ErrMissingPosition, x.ID)
	}
	return feat, nil
}

// Features returns all features in file order
func (f *FeatureXML) Features() ([]Feature, error) {
	out := make([]Feature, 0, f.NumFeatures())
	for i := 0; i < f.NumFeatures(); i++ {
		feat, err := f.Feature(i)
		if err != nil {
			return nil, err
		}
		out = append(out, feat)
	}
	return out, nil
}

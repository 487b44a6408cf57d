package featurexml

import (
	"encoding/xml"
	"errors"
)

// Types for parsing OpenMS featureXML

// FeatureXML holds the part of a featureXML file that describes the
// features
type FeatureXML struct {
	content featureXMLContent
}

// Feature is one LC-MS feature. Charge is 0 when the feature finder could
// not determine it.
type Feature struct {
	Index     int    // position in the file, used as numeric feature ID
	ID        string // id attribute as written by OpenMS
	RT        float64
	Mz        float64
	Intensity float64
	Charge    int
}

type featureXMLContent struct {
	XMLName xml.Name     `xml:"featureMap"`
	Feature []xmlFeature `xml:"featureList>feature"`
}

type xmlFeature struct {
	ID        string        `xml:"id,attr"`
	Position  []xmlPosition `xml:"position"`
	Intensity float64       `xml:"intensity"`
	Charge    int           `xml:"charge"`
}

type xmlPosition struct {
	Dim   int     `xml:"dim,attr"`
	Value float64 `xml:",chardata"`
}

// Position dimensions
const (
	dimRT = 0
	dimMz = 1
)

var (
	ErrInvalidFeatureIndex = errors.New("featureXML: invalid feature index")
	ErrMissingPosition     = errors.New("featureXML: feature without m/z position")
)

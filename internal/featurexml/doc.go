// Package featurexml reads the feature table of OpenMS featureXML files.
// Only position, intensity and charge of the top level features are used.
package featurexml

package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"gonum.org/v1/gonum/mat"

	"github.com/524D/mzclique/internal/featurexml"
	"github.com/524D/mzclique/internal/network"
)

var ErrMissingFeature = errors.New("pipeline: node without feature")

// Feature as read from the input
type Feature struct {
	ID     int64   `json:"id"`
	Mz     float64 `json:"mz"`
	Charge int     `json:"charge,omitempty"`
}

// Input holds the similarity network and the feature table. Adjacency is
// indexed like NodeIDs.
type Input struct {
	NodeIDs   []int64     `json:"nodeIds"`
	Adjacency [][]float64 `json:"adjacency"`
	Features  []Feature   `json:"features"`
}

// ReadInput decodes a JSON input document
func ReadInput(r io.Reader) (*Input, error) {
	var in Input
	d := json.NewDecoder(r)
	d.DisallowUnknownFields()
	if err := d.Decode(&in); err != nil {
		return nil, fmt.Errorf("%w: %w", network.ErrMalformedInput, err)
	}
	return &in, nil
}

// LoadInput reads a JSON input file
func LoadInput(filename string) (*Input, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadInput(f)
}

// Matrix returns the adjacency as a dense matrix. Rows must all have the
// length of NodeIDs.
func (in *Input) Matrix() (*mat.Dense, error) {
	n := len(in.NodeIDs)
	if n == 0 {
		return nil, fmt.Errorf("%w: no nodes", network.ErrMalformedInput)
	}
	if len(in.Adjacency) != n {
		return nil, fmt.Errorf("%w: %d adjacency rows for %d nodes",
			network.ErrMalformedInput, len(in.Adjacency), n)
	}
	data := make([]float64, 0, n*n)
	for i, row := range in.Adjacency {
		if len(row) != n {
			return nil, fmt.Errorf("%w: adjacency row %d has %d values, expected %d",
				network.ErrMalformedInput, i, len(row), n)
		}
		data = append(data, row...)
	}
	return mat.NewDense(n, n, data), nil
}

// LoadFeatureXML reads the feature table from an OpenMS featureXML file.
// Feature IDs are the positions of the features in the file.
func LoadFeatureXML(filename string) ([]Feature, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	fx, err := featurexml.Read(f)
	if err != nil {
		return nil, err
	}
	xf, err := fx.Features()
	if err != nil {
		return nil, err
	}
	features := make([]Feature, len(xf))
	for i, x := range xf {
		features[i] = Feature{ID: int64(x.Index), Mz: x.Mz, Charge: x.Charge}
	}
	return features, nil
}

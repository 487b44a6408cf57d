package pipeline

import (
	"encoding/json"
	"io"

	"github.com/524D/mzclique/internal/annotation"
)

// Format of the report, bumped when the layout changes
const ReportFormatVersion = "1.0"

// Report is the JSON result of a run
type Report struct {
	FormatVersion string          `json:"formatVersion"`
	Version       string          `json:"version"`
	RunID         string          `json:"runId"`
	Partition     PartitionReport `json:"partition"`
	Cliques       []CliqueReport  `json:"cliques"`
}

// PartitionReport describes the clique partition
type PartitionReport struct {
	LogLikelihood float64      `json:"logLikelihood"`
	Converged     bool         `json:"converged"`
	Sweeps        int          `json:"sweeps"`
	RefineSweeps  int          `json:"refineSweeps"`
	Assignments   []Assignment `json:"assignments"`
}

// Assignment of a node to a clique
type Assignment struct {
	Node   int64 `json:"node"`
	Clique int64 `json:"clique"`
}

// CliqueReport holds the annotation of one clique
type CliqueReport struct {
	ID         int64               `json:"id"`
	Candidates int                 `json:"candidateMasses"`
	Groups     int                 `json:"annotationGroups"`
	Features   []FeatureAnnotation `json:"features"`
}

// FeatureAnnotation lists the K best annotations of a feature
type FeatureAnnotation struct {
	ID    int64              `json:"id"`
	Ranks []annotation.Entry `json:"ranks"`
}

func cliqueReport(id int64, idx *annotation.Index, out *annotation.Output) CliqueReport {
	cr := CliqueReport{
		ID:         id,
		Candidates: idx.NumCandidates(),
		Groups:     len(idx.Groups()),
		Features:   make([]FeatureAnnotation, len(out.Features)),
	}
	for i, f := range out.Features {
		fa := FeatureAnnotation{ID: f, Ranks: make([]annotation.Entry, len(out.Ranks))}
		for r := range out.Ranks {
			fa.Ranks[r] = out.Ranks[r][i]
		}
		cr.Features[i] = fa
	}
	return cr
}

// WriteReport writes rep as indented JSON
func WriteReport(w io.Writer, rep *Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}

// ReadReport decodes a report written by WriteReport
func ReadReport(r io.Reader) (*Report, error) {
	var rep Report
	if err := json.NewDecoder(r).Decode(&rep); err != nil {
		return nil, err
	}
	return &rep, nil
}

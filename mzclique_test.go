package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/524D/mzclique/internal/adduct"
	"github.com/524D/mzclique/internal/config"
	"github.com/524D/mzclique/internal/network"
	"github.com/524D/mzclique/internal/pipeline"
)

const testInput = "testdata/two-compounds.json"

func TestParseIntRange(t *testing.T) {
	// Test case 1: Valid input range
	min, max, err := parseIntRange("3:6", 0, 10)
	if err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
	if min != 3 || max != 6 {
		t.Errorf("Expected 3:6, got: %d:%d", min, max)
	}

	// Test case 2: Empty input range
	min, max, err = parseIntRange("", 0, 10)
	if err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
	if min != 0 || max != 10 {
		t.Errorf("Expected 0:10, got: %d:%d", min, max)
	}

	// Test case 3: Invalid input range
	min, max, err = parseIntRange("7:2", 0, 10)
	if !errors.Is(err, ErrRangeSpec) {
		t.Errorf("Expected error: %v, got: %v", ErrRangeSpec, err)
	}
	if min != 2 || max != 2 {
		t.Errorf("Expected 2:2, got: %d:%d", min, max)
	}

	// Test case 4: Only max specified
	min, max, err = parseIntRange(":4", 0, 10)
	if err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
	if min != 0 || max != 4 {
		t.Errorf("Expected 0:4, got: %d:%d", min, max)
	}

	// Test case 5: Only min specified
	min, max, err = parseIntRange("5:", 0, 10)
	if err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
	if min != 5 || max != 10 {
		t.Errorf("Expected 5:10, got: %d:%d", min, max)
	}

	// Test case 6: Out of range
	min, max, err = parseIntRange("-5:50", 0, 10)
	if err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
	if min != 0 || max != 10 {
		t.Errorf("Expected 0:10, got: %d:%d", min, max)
	}
}

func TestParseTolerance(t *testing.T) {
	tests := []struct {
		in      string
		want    adduct.MzTolerance
		wantErr bool
	}{
		{in: "10ppm", want: adduct.MzTolerance{PPM: 10}},
		{in: "5 PPM", want: adduct.MzTolerance{PPM: 5}},
		{in: "0.002", want: adduct.MzTolerance{Absolute: 0.002}},
		{in: "10ppm,0.002", want: adduct.MzTolerance{PPM: 10, Absolute: 0.002}},
		{in: "0ppm", wantErr: true},
		{in: "-3ppm", wantErr: true},
		{in: "ppm", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		got, err := parseTolerance(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrToleranceSpec, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestDefaultReportName(t *testing.T) {
	assert.Equal(t, "data/run1-cliques.json", defaultReportName("data/run1.json"))
	assert.Equal(t, "net-cliques.json", defaultReportName("net"))
}

func JSONCompare(t testing.TB, expected, actual io.Reader, extra ...cmp.Option) {
	alwaysEqual := cmp.Comparer(func(_, _ interface{}) bool { return true })

	opts := cmp.Options{
		// This option declares that a float64 comparison is equal only if
		// both inputs are NaN.
		cmp.FilterValues(func(x, y float64) bool {
			return math.IsNaN(x) && math.IsNaN(y)
		}, alwaysEqual),

		// This option declares approximate equality on float64s only if
		// both inputs are not NaN.
		cmp.FilterValues(func(x, y float64) bool {
			return !math.IsNaN(x) && !math.IsNaN(y)
		}, cmp.Comparer(func(x, y float64) bool {
			if x == y {
				return true
			}
			delta := math.Abs(x - y)
			mean := math.Abs(x+y) / 2.0
			return delta/mean < 0.00001
		})),
	}
	opts = append(opts, extra...)

	var in1 map[string]any
	var in2 map[string]any

	dec := json.NewDecoder(expected)
	err := dec.Decode(&in1)
	if err != nil {
		t.Fatalf("Error decoding expected JSON: %v", err)
	}
	dec = json.NewDecoder(actual)
	err = dec.Decode(&in2)
	if err != nil {
		t.Fatalf("Error decoding actual JSON: %v", err)
	}

	if diff := cmp.Diff(in1, in2, opts); diff != "" {
		t.Errorf("JSON mismatch (-want +got):\n%s", diff)
	}
}

// JSONCompareFile compares the contents of two JSON files
func JSONCompareFile(t testing.TB, expectedFile, actualFile string, extra ...cmp.Option) {
	expected, err := os.Open(expectedFile)
	if err != nil {
		t.Fatalf("Error opening expected file: %v", err)
	}
	defer expected.Close()
	actual, err := os.Open(actualFile)
	if err != nil {
		t.Fatalf("Error opening actual file: %v", err)
	}
	defer actual.Close()
	JSONCompare(t, expected, actual, extra...)
}

func execute(t *testing.T, args ...string) error {
	t.Helper()
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	return cmd.Execute()
}

func TestRunCommand(t *testing.T) {
	dir := t.TempDir()
	out1 := filepath.Join(dir, "w1.json")
	out4 := filepath.Join(dir, "w4.json")
	prom := filepath.Join(dir, "run.prom")

	require.NoError(t, execute(t, "--quiet", "--workers", "1", "-o", out1, testInput))
	require.NoError(t, execute(t, "--quiet", "--workers", "4", "--metrics", prom, "-o", out4, testInput))

	// Only the run ID differs between runs with the same seed
	JSONCompareFile(t, out1, out4, cmpopts.IgnoreMapEntries(func(k string, _ any) bool {
		return k == "runId"
	}))

	f, err := os.Open(out1)
	require.NoError(t, err)
	defer f.Close()
	rep, err := pipeline.ReadReport(f)
	require.NoError(t, err)
	assert.Equal(t, pipeline.ReportFormatVersion, rep.FormatVersion)
	assert.True(t, rep.Partition.Converged)
	require.Len(t, rep.Cliques, 2)
	for _, c := range rep.Cliques {
		require.Len(t, c.Features, 2)
		assert.Equal(t, "[M+H]+", c.Features[0].Ranks[0].Adduct)
		assert.Equal(t, "[M+Na]+", c.Features[1].Ranks[0].Adduct)
	}

	m, err := os.ReadFile(prom)
	require.NoError(t, err)
	assert.Contains(t, string(m), "mzclique_cliques 2")
}

func TestDefaultOutputName(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "sample.json")
	data, err := os.ReadFile(testInput)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(in, data, 0o644))

	require.NoError(t, execute(t, "--quiet", in))
	_, err = os.Stat(filepath.Join(dir, "sample-cliques.json"))
	assert.NoError(t, err)
}

func TestCommandErrors(t *testing.T) {
	dir := t.TempDir()
	assert.Error(t, execute(t))
	assert.Error(t, execute(t, filepath.Join(dir, "missing.json")))
	assert.ErrorIs(t, execute(t, "--ppm", "fast", "-o", filepath.Join(dir, "o.json"), testInput),
		ErrToleranceSpec)
	assert.ErrorIs(t, execute(t, "--debug", "9:2", "-o", filepath.Join(dir, "o.json"), testInput),
		ErrRangeSpec)
	assert.Error(t, execute(t, "--polarity", "neutral", "-o", filepath.Join(dir, "o.json"), testInput))
	assert.NoError(t, execute(t, "--version"))
}

func TestParamsOverride(t *testing.T) {
	c := newCLI()
	require.NoError(t, c.cmd.ParseFlags([]string{
		"--config", "testdata/params.yaml", "--top", "2", "--ppm", "3ppm"}))
	c.par.inputFilename = "x.json"
	require.NoError(t, sanatizeParams(c.cmd, &c.par, c.flagCfg))

	// from the parameter file
	assert.Equal(t, int64(7), c.par.cfg.Seed)
	assert.Equal(t, 2, c.par.cfg.Workers)
	// flags win
	assert.Equal(t, 2, c.par.cfg.TopK)
	assert.Equal(t, adduct.MzTolerance{PPM: 3}, c.par.cfg.Tolerance)
	// untouched
	assert.Equal(t, config.Default().EmptyPenalty, c.par.cfg.EmptyPenalty)
	assert.Equal(t, "x-cliques.json", c.par.reportFilename)
}

func TestDebugDump(t *testing.T) {
	var buf bytes.Buffer
	debugOut = &buf
	defer func() { debugOut = os.Stdout }()

	out := filepath.Join(t.TempDir(), "o.json")
	require.NoError(t, execute(t, "--quiet", "--debug", "1:1", "-o", out, testInput))
	s := buf.String()
	assert.Equal(t, 1, strings.Count(s, "Clique:"), s)
	assert.Contains(t, s, "Clique:1 ")
	assert.Contains(t, s, "[M+Na]+")
}

func TestReportProgress(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	var prog network.Progress
	prog.Add(4)
	prog.Step()
	prog.Step()

	stop := reportProgress(zap.New(core), &prog, time.Millisecond)
	assert.Eventually(t, func() bool { return logs.Len() > 0 }, time.Second, time.Millisecond)
	stop()

	e := logs.All()[0]
	assert.Equal(t, "partitioning", e.Message)
	assert.Equal(t, 0.5, e.ContextMap()["progress"])
	n := logs.Len()
	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, n, logs.Len(), "logging continued after stop")
}

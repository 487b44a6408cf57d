// Copyright 2018 Rob Marissen.
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/524D/mzclique/internal/adduct"
	"github.com/524D/mzclique/internal/config"
	"github.com/524D/mzclique/internal/metrics"
	"github.com/524D/mzclique/internal/network"
	"github.com/524D/mzclique/internal/pipeline"
)

// Program name and version, written to the report
const progName = "mzClique"

var progVersion = `Unknown`

const (
	infoDefault = iota
	infoSilent
	infoVerbose
)

var ErrRangeSpec = errors.New("invalid range specified")
var ErrToleranceSpec = errors.New("invalid m/z tolerance")

// Command line parameters
type params struct {
	inputFilename   string
	reportFilename  string // Filename where the JSON report will be written
	configFilename  string // YAML parameter file
	featureFilename string // featureXML file that replaces the features of the input
	tolerance       string // m/z tolerance as given by the user
	verbosity       int    // Verbosity of progress messages (infoDefault...)
	debug           bool   // Enable debug info (environment variable MZCLIQUE_DEBUG=1)
	debugCliques    string // Range of cliques to dump
	minDebugClique  int
	maxDebugClique  int
	cfg             config.Params
}

// Parse string like "-12:6" into 2 values, -12 and 6
// Parameters min and max are the "default" min/max values,
// when a value is not specified (e.g. "-12:"), the default is assigned
func parseIntRange(r string, min int, max int) (int, int, error) {
	re := regexp.MustCompile(`\s*(\-?\d*):(\-?\d*)`)
	m := re.FindStringSubmatch(r)
	minOut := min
	maxOut := max
	if len(m) >= 2 && m[1] != "" {
		minOut, _ = strconv.Atoi(m[1])
		if minOut < min {
			minOut = min
		}
	}
	if len(m) >= 3 && m[2] != "" {
		maxOut, _ = strconv.Atoi(m[2])
		if maxOut > max {
			maxOut = max
		}
	}
	var err error
	if minOut > maxOut {
		err = ErrRangeSpec
		minOut = maxOut
	}
	return minOut, maxOut, err
}

// Parse an m/z tolerance like "10ppm", "0.002" or "10ppm,0.002". A number
// without unit is an absolute tolerance in Th.
func parseTolerance(s string) (adduct.MzTolerance, error) {
	var tol adduct.MzTolerance
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		ppm := strings.HasSuffix(strings.ToLower(part), "ppm")
		if ppm {
			part = strings.TrimSpace(part[:len(part)-3])
		}
		v, err := strconv.ParseFloat(part, 64)
		if err != nil || v < 0 || math.IsInf(v, 0) {
			return tol, fmt.Errorf("%w: %q", ErrToleranceSpec, s)
		}
		if ppm {
			tol.PPM = v
		} else {
			tol.Absolute = v
		}
	}
	if tol.PPM == 0 && tol.Absolute == 0 {
		return tol, fmt.Errorf("%w: %q", ErrToleranceSpec, s)
	}
	return tol, nil
}

// defaultReportName derives the report filename from the input filename
func defaultReportName(input string) string {
	ext := filepath.Ext(input)
	return input[0:len(input)-len(ext)] + "-cliques.json"
}

func newLogger(verbosity int) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.DisableStacktrace = true
	switch verbosity {
	case infoVerbose:
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case infoSilent:
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}
	return cfg.Build()
}

// sanatizeParams combines defaults, the parameter file and the flags that
// were set on the command line
func sanatizeParams(cmd *cobra.Command, par *params, flagCfg config.Params) error {
	var err error
	par.cfg = config.Default()
	if par.configFilename != "" {
		par.cfg, err = config.Load(par.configFilename)
		if err != nil {
			return fmt.Errorf("parameter file %s: %w", par.configFilename, err)
		}
	}
	overrides := map[string]func(){
		"exponent":     func() { par.cfg.Exponent = flagCfg.Exponent },
		"tol":          func() { par.cfg.Tol = flagCfg.Tol },
		"maxsweeps":    func() { par.cfg.MaxSweeps = flagCfg.MaxSweeps },
		"seed":         func() { par.cfg.Seed = flagCfg.Seed },
		"abs-converge": func() { par.cfg.AbsoluteConvergence = flagCfg.AbsoluteConvergence },
		"polarity":     func() { par.cfg.Polarity = flagCfg.Polarity },
		"adducts":      func() { par.cfg.AdductFile = flagCfg.AdductFile },
		"filter":       func() { par.cfg.Filter = flagCfg.Filter },
		"topmassf":     func() { par.cfg.TopMassPerFeature = flagCfg.TopMassPerFeature },
		"topmasstotal": func() { par.cfg.TopMassPerGroup = flagCfg.TopMassPerGroup },
		"sizeang":      func() { par.cfg.ComponentSizeThreshold = flagCfg.ComponentSizeThreshold },
		"emptyscore":   func() { par.cfg.EmptyPenalty = flagCfg.EmptyPenalty },
		"normalize":    func() { par.cfg.NormalizeScore = flagCfg.NormalizeScore },
		"top":          func() { par.cfg.TopK = flagCfg.TopK },
		"maxrounds":    func() { par.cfg.MaxAnnotationRounds = flagCfg.MaxAnnotationRounds },
		"scope":        func() { par.cfg.SearchScope = flagCfg.SearchScope },
		"workers":      func() { par.cfg.Workers = flagCfg.Workers },
		"metrics":      func() { par.cfg.MetricsFile = flagCfg.MetricsFile },
	}
	for name, set := range overrides {
		if cmd.Flags().Changed(name) {
			set()
		}
	}
	if cmd.Flags().Changed("ppm") {
		par.cfg.Tolerance, err = parseTolerance(par.tolerance)
		if err != nil {
			return err
		}
	}
	if err = par.cfg.Validate(); err != nil {
		return err
	}
	if par.reportFilename == "" {
		par.reportFilename = defaultReportName(par.inputFilename)
	}
	par.minDebugClique, par.maxDebugClique, err = parseIntRange(par.debugCliques, 0, math.MaxInt32)
	if err != nil {
		return fmt.Errorf("invalid value for parameter 'debug': %w", err)
	}
	return nil
}

// reportProgress logs the partitioning progress every interval until stop
// is called
func reportProgress(log *zap.Logger, prog *network.Progress, interval time.Duration) (stop func()) {
	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		tick := time.NewTicker(interval)
		defer tick.Stop()
		for {
			select {
			case <-done:
				return
			case <-tick.C:
				log.Debug("partitioning", zap.Float64("progress", prog.Fraction()))
			}
		}
	}()
	return func() {
		close(done)
		<-finished
	}
}

func run(ctx context.Context, par params) error {
	log, err := newLogger(par.verbosity)
	if err != nil {
		return err
	}
	defer log.Sync()

	t := time.Now()
	in, err := pipeline.LoadInput(par.inputFilename)
	if err != nil {
		return err
	}
	if par.featureFilename != "" {
		in.Features, err = pipeline.LoadFeatureXML(par.featureFilename)
		if err != nil {
			return fmt.Errorf("featureXML %s: %w", par.featureFilename, err)
		}
	}
	log.Info("input read",
		zap.String("file", par.inputFilename),
		zap.Int("nodes", len(in.NodeIDs)),
		zap.Int("features", len(in.Features)),
		zap.Duration("elapsed", time.Since(t)))

	var mr *metrics.Run
	if par.cfg.MetricsFile != "" {
		mr = metrics.New()
	}
	var prog network.Progress
	if par.verbosity == infoVerbose {
		stop := reportProgress(log, &prog, time.Second)
		defer stop()
	}
	opt := pipeline.Options{
		Params:   par.cfg,
		Version:  progVersion,
		Logger:   log,
		Metrics:  mr,
		Progress: &prog,
	}
	if par.debug || par.debugCliques != "" {
		opt.Debug = newCliqueDumper(par)
	}
	rep, err := pipeline.Run(ctx, in, opt)
	if err != nil {
		return err
	}

	f, err := os.Create(par.reportFilename)
	if err != nil {
		return err
	}
	if err = pipeline.WriteReport(f, rep); err != nil {
		f.Close()
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	log.Info("report written", zap.String("file", par.reportFilename))

	if mr != nil {
		if err = mr.WriteTextfile(par.cfg.MetricsFile); err != nil {
			return err
		}
	}
	return nil
}

// cli binds the command line flags of the root command
type cli struct {
	cmd     *cobra.Command
	par     params
	flagCfg config.Params
	version bool
	verbose bool
	quiet   bool
}

func newRootCmd() *cobra.Command {
	return newCLI().cmd
}

func newCLI() *cli {
	c := &cli{flagCfg: config.Default()}
	par := &c.par
	flagCfg := &c.flagCfg

	c.cmd = &cobra.Command{
		Use:   "mzclique [options] <input.json>",
		Short: "Group co-eluting LC-MS features into compounds and annotate their adducts",
		Long: `This program partitions a feature similarity network into cliques of
features that originate from the same compound, and annotates each feature of
a clique with its most likely adduct.

The input is a JSON file with fields "nodeIds", "adjacency" (a symmetric
similarity matrix with values in [0,1]) and "features" (id, mz and optionally
charge). The result is written as JSON to <input>-cliques.json unless -o is
given.

ENVIRONMENT VARIABLES:
    When environment variable MZCLIQUE_DEBUG=1, the candidate masses and
    annotations of every clique are printed to standard output.`,
		Example: `  mzclique sample.json
  mzclique --ppm 5ppm,0.001 --polarity negative -o out.json sample.json
  mzclique --features sample.featureXML --config params.yaml sample.json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args: func(cmd *cobra.Command, args []string) error {
			if c.version {
				return nil
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.version {
				if progVersion == `Unknown` {
					progVersion = `Unknown
Build with -ldflags "-X main.progVersion=$(git describe --tags)" to show the git version here.`
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "%s version %s\n", progName, progVersion)
				return nil
			}
			if c.verbose {
				par.verbosity = infoVerbose
			}
			if c.quiet {
				par.verbosity = infoSilent
			}
			par.inputFilename = args[0]
			// Check if debug output should be enabled
			par.debug = os.Getenv("MZCLIQUE_DEBUG") == `1`
			if err := sanatizeParams(cmd, par, c.flagCfg); err != nil {
				return err
			}
			return run(cmd.Context(), *par)
		},
	}

	fl := c.cmd.Flags()
	fl.StringVarP(&par.reportFilename, "output", "o", "", "`filename` of the JSON report")
	fl.StringVar(&par.configFilename, "config", "", "YAML parameter `file`; flags override its values")
	fl.StringVar(&par.featureFilename, "features", "", "read features from this featureXML `file`")
	fl.Float64Var(&flagCfg.Exponent, "exponent", flagCfg.Exponent, "exponent applied to similarities")
	fl.Float64Var(&flagCfg.Tol, "tol", flagCfg.Tol, "convergence tolerance of the clique search")
	fl.IntVar(&flagCfg.MaxSweeps, "maxsweeps", flagCfg.MaxSweeps, "sweep budget of each clique search phase")
	fl.Int64Var(&flagCfg.Seed, "seed", flagCfg.Seed, "seed of the node order shuffle")
	fl.BoolVar(&flagCfg.AbsoluteConvergence, "abs-converge", false,
		"stop on an absolute instead of a relative log-likelihood change")
	fl.StringVar(&flagCfg.Polarity, "polarity", flagCfg.Polarity, "build-in adduct list, positive or negative")
	fl.StringVar(&flagCfg.AdductFile, "adducts", "", "YAML adduct list `file`, replaces the build-in list")
	fl.StringVar(&par.tolerance, "ppm", "10ppm", "m/z `tolerance`, e.g. 10ppm, 0.002 or 10ppm,0.002")
	fl.Float64Var(&flagCfg.Filter, "filter", flagCfg.Filter, "relative difference below which candidate masses are merged")
	fl.IntVar(&flagCfg.TopMassPerFeature, "topmassf", flagCfg.TopMassPerFeature, "best candidate masses kept per feature")
	fl.IntVar(&flagCfg.TopMassPerGroup, "topmasstotal", flagCfg.TopMassPerGroup, "best candidate masses kept per annotation group")
	fl.IntVar(&flagCfg.ComponentSizeThreshold, "sizeang", flagCfg.ComponentSizeThreshold,
		"annotation groups with more features are split into components")
	fl.Float64Var(&flagCfg.EmptyPenalty, "emptyscore", flagCfg.EmptyPenalty, "score of a feature without adduct")
	fl.BoolVar(&flagCfg.NormalizeScore, "normalize", flagCfg.NormalizeScore, "scale annotation scores to 0-100")
	fl.IntVar(&flagCfg.TopK, "top", flagCfg.TopK, "number of annotations reported per feature")
	fl.IntVar(&flagCfg.MaxAnnotationRounds, "maxrounds", 0, "greedy rounds per annotation, 0 is unlimited")
	fl.StringVar(&flagCfg.SearchScope, "scope", flagCfg.SearchScope,
		"features searched for adduct partners: full (all features) or clique")
	fl.IntVar(&flagCfg.Workers, "workers", flagCfg.Workers, "cliques annotated in parallel")
	fl.StringVar(&flagCfg.MetricsFile, "metrics", "", "write run metrics in Prometheus text format to `file`")
	fl.StringVar(&par.debugCliques, "debug", "", "print debug output for given clique `range` e.g. 3:6")
	fl.BoolVar(&c.version, "version", false, "Show software version")
	fl.BoolVar(&c.verbose, "verbose", false, "Print more verbose progress information")
	fl.BoolVar(&c.quiet, "quiet", false, "Don't print any output except for errors")
	return c
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", progName, err)
		os.Exit(1)
	}
}

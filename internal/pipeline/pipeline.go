// Package pipeline runs the complete analysis: the similarity network is
// partitioned into cliques and the features of every clique are annotated
// with adducts.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/524D/mzclique/internal/adduct"
	"github.com/524D/mzclique/internal/annotation"
	"github.com/524D/mzclique/internal/config"
	"github.com/524D/mzclique/internal/metrics"
	"github.com/524D/mzclique/internal/network"
)

// DebugFunc receives the intermediate state of every clique. It is called
// from several goroutines at once.
type DebugFunc func(clique int, c network.Clique, idx *annotation.Index, out *annotation.Output)

// Options of a run besides the parameters
type Options struct {
	Params   config.Params
	Catalog  adduct.Catalog // nil selects the catalog of Params
	Version  string
	Logger   *zap.Logger
	Metrics  *metrics.Run
	Progress *network.Progress
	Debug    DebugFunc
}

func partitionOptions(p config.Params, log *zap.Logger, prog *network.Progress) network.Options {
	return network.Options{
		Tol:                 p.Tol,
		Step:                p.Step,
		MaxSweeps:           p.MaxSweeps,
		Seed:                p.Seed,
		AbsoluteConvergence: p.AbsoluteConvergence,
		Progress:            prog,
		Logger:              log,
	}
}

func annotationOptions(p config.Params, log *zap.Logger) annotation.Options {
	return annotation.Options{
		TopMassPerFeature:      p.TopMassPerFeature,
		TopMassPerGroup:        p.TopMassPerGroup,
		ComponentSizeThreshold: p.ComponentSizeThreshold,
		EmptyPenalty:           p.EmptyPenalty,
		NormalizeScore:         p.NormalizeScore,
		TopK:                   p.TopK,
		MaxRounds:              p.MaxAnnotationRounds,
		Logger:                 log,
	}
}

// Run partitions the network of in and annotates every clique. A partition
// that ran out of sweeps is used as is; the report marks it as not
// converged.
func Run(ctx context.Context, in *Input, opt Options) (*Report, error) {
	par := opt.Params
	if err := par.Validate(); err != nil {
		return nil, err
	}
	cat := opt.Catalog
	if cat == nil {
		var err error
		if cat, err = par.Catalog(); err != nil {
			return nil, err
		}
	}
	log := opt.Logger
	if log == nil {
		log = zap.NewNop()
	}
	rep := &Report{
		FormatVersion: ReportFormatVersion,
		Version:       opt.Version,
		RunID:         uuid.NewString(),
	}
	log = log.With(zap.String("run", rep.RunID))

	m, err := in.Matrix()
	if err != nil {
		return nil, err
	}
	g, err := network.NewGraph(m, in.NodeIDs, par.Exponent)
	if err != nil {
		return nil, err
	}
	features := make(map[int64]annotation.Feature, len(in.Features))
	all := make([]annotation.Feature, 0, len(in.Features))
	for _, f := range in.Features {
		af := annotation.Feature{ID: f.ID, Mz: f.Mz, Charge: f.Charge}
		features[f.ID] = af
		all = append(all, af)
	}
	for _, id := range in.NodeIDs {
		if _, ok := features[id]; !ok {
			return nil, fmt.Errorf("%w: %d", ErrMissingFeature, id)
		}
	}

	t := time.Now()
	res, err := network.Partition(ctx, g, partitionOptions(par, log.Named("partition"), opt.Progress))
	if err != nil {
		var perr *network.PartitionError
		if !errors.As(err, &perr) || !perr.Recoverable() {
			return nil, err
		}
		log.Warn("using partition that did not converge", zap.Error(err))
		res = perr.Partial
	}
	cliques := res.Cliques()
	log.Info("partition done",
		zap.Int("nodes", g.NumNodes()),
		zap.Int("edges", g.NumEdges()),
		zap.Int("cliques", len(cliques)),
		zap.Float64("logl", res.LogLikelihood),
		zap.Bool("converged", res.Converged),
		zap.Duration("elapsed", time.Since(t)))

	sizes := make([]int, len(cliques))
	for i, c := range cliques {
		sizes[i] = len(c.Nodes)
	}
	opt.Metrics.Partition(res.Sweeps, res.RefineSweeps, res.LogLikelihood, res.Converged, sizes)
	rep.Partition = PartitionReport{
		LogLikelihood: res.LogLikelihood,
		Converged:     res.Converged,
		Sweeps:        res.Sweeps,
		RefineSweeps:  res.RefineSweeps,
		Assignments:   make([]Assignment, len(res.Assignments)),
	}
	for i, a := range res.Assignments {
		rep.Partition.Assignments[i] = Assignment{Node: a.Node, Clique: a.Clique}
	}

	var search []annotation.Feature
	if par.SearchScope == config.ScopeFull {
		search = all
	}
	idxOpt := annotation.IndexOptions{Catalog: cat, Tolerance: par.Tolerance, Filter: par.Filter}
	anOpt := annotationOptions(par, log.Named("annotation"))

	t = time.Now()
	rep.Cliques = make([]CliqueReport, len(cliques))
	eg, ectx := errgroup.WithContext(ctx)
	eg.SetLimit(par.Workers)
	for i, c := range cliques {
		i, c := i, c
		eg.Go(func() error {
			start := time.Now()
			members := make([]annotation.Feature, len(c.Nodes))
			for j, id := range c.Nodes {
				members[j] = features[id]
			}
			idx, err := annotation.BuildIndex(members, search, idxOpt)
			if err != nil {
				return fmt.Errorf("clique %d: %w", c.ID, err)
			}
			an, err := annotation.NewAnnotator(idx, anOpt)
			if err != nil {
				return err
			}
			out, err := an.Annotate(ectx)
			if err != nil {
				return fmt.Errorf("clique %d: %w", c.ID, err)
			}
			rep.Cliques[i] = cliqueReport(c.ID, idx, out)

			status := make([]string, len(out.Status))
			for j, s := range out.Status {
				status[j] = s.String()
			}
			opt.Metrics.Clique(idx.NumCandidates(), len(idx.Groups()), status, time.Since(start))
			if opt.Debug != nil {
				opt.Debug(i, c, idx, out)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	log.Info("annotation done",
		zap.Int("cliques", len(cliques)),
		zap.Duration("elapsed", time.Since(t)))
	return rep, nil
}

// Package metrics collects statistics of a run in a private Prometheus
// registry. The result can be written in the text exposition format, e.g.
// for the node exporter textfile collector.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "mzclique"

// Run holds the collectors of one run. A nil *Run discards all
// observations.
type Run struct {
	reg *prometheus.Registry

	sweeps        *prometheus.CounterVec
	logLikelihood prometheus.Gauge
	converged     prometheus.Gauge
	cliques       prometheus.Gauge
	cliqueSize    prometheus.Histogram
	candidates    prometheus.Histogram
	groups        prometheus.Counter
	annotations   *prometheus.CounterVec
	annotateTime  prometheus.Histogram
}

// New registers the collectors of a run
func New() *Run {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Run{
		reg: reg,
		sweeps: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "partition_sweeps_total",
			Help:      "Partitioning sweeps by phase",
		}, []string{"phase"}),
		logLikelihood: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "partition_log_likelihood",
			Help:      "Log-likelihood of the final partition",
		}),
		converged: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "partition_converged",
			Help:      "1 if partitioning converged within the sweep budget",
		}),
		cliques: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cliques",
			Help:      "Number of cliques",
		}),
		cliqueSize: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "clique_size",
			Help:      "Features per clique",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 8),
		}),
		candidates: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "clique_candidate_masses",
			Help:      "Candidate neutral masses per clique after pruning",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
		groups: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "annotation_groups_total",
			Help:      "Annotation groups",
		}),
		annotations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "annotations_total",
			Help:      "Best annotations per component by status",
		}, []string{"status"}),
		annotateTime: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "clique_annotation_seconds",
			Help:      "Time to annotate one clique",
			Buckets:   prometheus.ExponentialBuckets(1e-4, 4, 10),
		}),
	}
}

// Partition records the outcome of the partitioning
func (r *Run) Partition(sweeps, refineSweeps int, logl float64, converged bool, cliqueSizes []int) {
	if r == nil {
		return
	}
	r.sweeps.WithLabelValues("merge").Add(float64(sweeps))
	r.sweeps.WithLabelValues("refine").Add(float64(refineSweeps))
	r.logLikelihood.Set(logl)
	if converged {
		r.converged.Set(1)
	} else {
		r.converged.Set(0)
	}
	r.cliques.Set(float64(len(cliqueSizes)))
	for _, n := range cliqueSizes {
		r.cliqueSize.Observe(float64(n))
	}
}

// Clique records the annotation of one clique. status holds the status of
// the best annotation of every component.
func (r *Run) Clique(candidates, groups int, status []string, d time.Duration) {
	if r == nil {
		return
	}
	r.candidates.Observe(float64(candidates))
	r.groups.Add(float64(groups))
	for _, s := range status {
		r.annotations.WithLabelValues(s).Inc()
	}
	r.annotateTime.Observe(d.Seconds())
}

// Gatherer exposes the registry
func (r *Run) Gatherer() prometheus.Gatherer {
	return r.reg
}

// WriteTextfile writes all metrics to filename in the text format
func (r *Run) WriteTextfile(filename string) error {
	return prometheus.WriteToTextfile(filename, r.reg)
}

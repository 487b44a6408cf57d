package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun(t *testing.T) {
	r := New()
	r.Partition(3, 2, -12.5, true, []int{1, 4, 2})
	r.Clique(7, 2, []string{"annotated", "partial"}, time.Millisecond)
	r.Clique(0, 1, []string{"annotated"}, time.Millisecond)

	assert.Equal(t, 3.0, testutil.ToFloat64(r.sweeps.WithLabelValues("merge")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.sweeps.WithLabelValues("refine")))
	assert.Equal(t, -12.5, testutil.ToFloat64(r.logLikelihood))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.converged))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.cliques))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.groups))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.annotations.WithLabelValues("annotated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.annotations.WithLabelValues("partial")))

	n, err := testutil.GatherAndCount(r.Gatherer(), "mzclique_clique_size")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestWriteTextfile(t *testing.T) {
	r := New()
	r.Partition(1, 1, -1, false, []int{2})
	fn := filepath.Join(t.TempDir(), "run.prom")
	require.NoError(t, r.WriteTextfile(fn))
	b, err := os.ReadFile(fn)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(b), "mzclique_partition_converged 0"))
}

func TestNilRun(t *testing.T) {
	var r *Run
	r.Partition(1, 1, 0, true, nil)
	r.Clique(1, 1, nil, 0)
}

package network

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedInput is returned before any computation when the
	// adjacency matrix or the node list cannot describe a graph
	ErrMalformedInput = errors.New("network: malformed input")
	// ErrNonConvergence indicates that the sweep budget ran out before the
	// log-likelihood settled. The partial result is still usable.
	ErrNonConvergence = errors.New("network: sweep budget exhausted before convergence")
	// ErrInternal wraps a panic recovered during optimisation
	ErrInternal = errors.New("network: internal error")
)

// PartitionError is returned by Partitioner.Run when the optimisation stopped
// early. Partial holds the partition reached at that point.
type PartitionError struct {
	Err     error
	Partial *Result
}

func (e *PartitionError) Error() string {
	if e.Partial == nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("%v (partial result after %d sweeps, logl %g)",
		e.Err, e.Partial.Sweeps+e.Partial.RefineSweeps, e.Partial.LogLikelihood)
}

func (e *PartitionError) Unwrap() error {
	return e.Err
}

// Recoverable reports whether the partial result may be used in place of a
// converged one
func (e *PartitionError) Recoverable() bool {
	return e.Partial != nil && errors.Is(e.Err, ErrNonConvergence)
}

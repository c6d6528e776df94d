package engine

import "fmt"

// UpdateTransitionMatrices computes probability matrices (and optional
// first/second derivative matrices) from one eigendecomposition at a batch
// of branch lengths. probIndices[i] receives P(lengths[i]); d1Indices and
// d2Indices, when non-nil, receive the matching derivative matrices and must
// be the same length as probIndices. Branch lengths are taken as given, with
// no clamping of tiny or negative values.
//
// On asynchronous instances the numerical work is enqueued and this returns
// after validation only.
func (e *Engine) UpdateTransitionMatrices(id, eigenIndex int, probIndices, d1Indices, d2Indices []int, lengths []float64) error {
	in, err := e.get(id)
	if err != nil {
		return err
	}
	if len(lengths) != len(probIndices) {
		return fmt.Errorf("%w: %d lengths for %d matrices", ErrBadArguments, len(lengths), len(probIndices))
	}
	if d1Indices != nil && len(d1Indices) != len(probIndices) {
		return fmt.Errorf("%w: %d first-derivative indices for %d matrices", ErrBadArguments, len(d1Indices), len(probIndices))
	}
	if d2Indices != nil && len(d2Indices) != len(probIndices) {
		return fmt.Errorf("%w: %d second-derivative indices for %d matrices", ErrBadArguments, len(d2Indices), len(probIndices))
	}

	eig, err := in.store.Eigen(eigenIndex)
	if err != nil {
		return err
	}
	for i := range probIndices {
		if err := in.store.CheckMatrixIndex(probIndices[i]); err != nil {
			return err
		}
		if d1Indices != nil {
			if err := in.store.CheckMatrixIndex(d1Indices[i]); err != nil {
				return err
			}
		}
		if d2Indices != nil {
			if err := in.store.CheckMatrixIndex(d2Indices[i]); err != nil {
				return err
			}
		}
	}

	// The caller may reuse its argument slices once this returns, so the
	// enqueued work runs on copies.
	probBatch := make([]int, len(probIndices))
	copy(probBatch, probIndices)
	lengthBatch := make([]float64, len(lengths))
	copy(lengthBatch, lengths)
	var d1Batch, d2Batch []int
	if d1Indices != nil {
		d1Batch = make([]int, len(d1Indices))
		copy(d1Batch, d1Indices)
	}
	if d2Indices != nil {
		d2Batch = make([]int, len(d2Indices))
		copy(d2Batch, d2Indices)
	}

	states := in.store.Dims().States
	in.deferred(func() {
		for i, pi := range probBatch {
			prob := in.store.Matrix(pi)
			var d1, d2 []float64
			if d1Batch != nil {
				d1 = in.store.Matrix(d1Batch[i])
			}
			if d2Batch != nil {
				d2 = in.store.Matrix(d2Batch[i])
			}
			in.kern.TransitionMatrices(eig, in.rates, lengthBatch[i], prob, d1, d2, states)
			in.store.Narrow(prob)
			if d1 != nil {
				in.store.Narrow(d1)
			}
			if d2 != nil {
				in.store.Narrow(d2)
			}
		}
	})
	return nil
}

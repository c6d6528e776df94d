package engine

import (
	"fmt"
	"math"
)

// RootRequest describes one root log-likelihood aggregation: per buffer a
// mixture weight, plus either one shared state-frequency vector or one per
// buffer.
type RootRequest struct {
	Buffers     []int
	Weights     []float64
	Frequencies [][]float64
}

// EdgeRequest describes an edge log-likelihood aggregation driven by parent
// and child buffers joined by a transition matrix, with optional derivative
// matrix indices for branch length derivatives.
type EdgeRequest struct {
	Parents     []int
	Children    []int
	Matrices    []int
	D1Matrices  []int // nil: skip first derivatives
	D2Matrices  []int // nil: skip second derivatives
	Weights     []float64
	Frequencies [][]float64
}

// RootLogLikelihoods aggregates finished root partials into per-site log
// likelihoods written to out (length = pattern count). Scale records
// accumulated during rescaled peeling are folded back in, so the result is
// invariant to whether rescaling was on.
//
// Sites whose combined likelihood is non-positive are reported through a
// *SiteError; every other site still receives its value. This call is a
// synchronization point on asynchronous instances.
func (e *Engine) RootLogLikelihoods(id int, req RootRequest, out []float64) error {
	in, err := e.get(id)
	if err != nil {
		return err
	}
	d := in.store.Dims()
	if err := validateTriples(len(req.Buffers), len(req.Weights), req.Frequencies, d.States); err != nil {
		return err
	}
	if len(out) != d.Patterns {
		return fmt.Errorf("%w: %d outputs for %d patterns", ErrBadArguments, len(out), d.Patterns)
	}
	for _, b := range req.Buffers {
		if err := in.store.CheckPartialsIndex(b); err != nil {
			return err
		}
	}

	return in.run(func() error {
		sites := make([][]float64, len(req.Buffers))
		scales := make([][]float64, len(req.Buffers))
		for i, b := range req.Buffers {
			sites[i] = make([]float64, d.Patterns)
			in.kern.RootSites(in.store.PartialsExpanded(b), frequenciesFor(req.Frequencies, i), in.weights,
				d.Patterns, d.States, d.Categories, sites[i])
			scales[i] = in.store.Scale(b)
		}
		return combineLog(sites, nil, nil, scales, req.Weights, out, nil, nil)
	})
}

// EdgeLogLikelihoods aggregates across a single edge without peeling to a
// root, and computes analytic first/second derivatives of the log likelihood
// with respect to the edge length when the corresponding matrix index slices
// and output slices are supplied. Second derivatives require the first
// derivative inputs as well. This call is a synchronization point on
// asynchronous instances.
func (e *Engine) EdgeLogLikelihoods(id int, req EdgeRequest, outLog, outD1, outD2 []float64) error {
	in, err := e.get(id)
	if err != nil {
		return err
	}
	d := in.store.Dims()
	if err := validateTriples(len(req.Parents), len(req.Weights), req.Frequencies, d.States); err != nil {
		return err
	}
	if len(req.Children) != len(req.Parents) || len(req.Matrices) != len(req.Parents) {
		return fmt.Errorf("%w: parents/children/matrices %d/%d/%d",
			ErrBadArguments, len(req.Parents), len(req.Children), len(req.Matrices))
	}
	if len(outLog) != d.Patterns {
		return fmt.Errorf("%w: %d outputs for %d patterns", ErrBadArguments, len(outLog), d.Patterns)
	}
	wantD1 := req.D1Matrices != nil && outD1 != nil
	wantD2 := req.D2Matrices != nil && outD2 != nil
	// The second log derivative is D2/L - (D1/L)^2, so it cannot be
	// computed without the first derivative numerators.
	if wantD2 && !wantD1 {
		return fmt.Errorf("%w: second derivatives require first derivative matrices and outputs", ErrBadArguments)
	}
	if wantD1 && (len(req.D1Matrices) != len(req.Parents) || len(outD1) != d.Patterns) {
		return fmt.Errorf("%w: first derivative arrays", ErrBadArguments)
	}
	if wantD2 && (len(req.D2Matrices) != len(req.Parents) || len(outD2) != d.Patterns) {
		return fmt.Errorf("%w: second derivative arrays", ErrBadArguments)
	}
	for i := range req.Parents {
		if err := in.store.CheckPartialsIndex(req.Parents[i]); err != nil {
			return err
		}
		if err := in.store.CheckPartialsIndex(req.Children[i]); err != nil {
			return err
		}
		if err := in.store.CheckMatrixIndex(req.Matrices[i]); err != nil {
			return err
		}
		if wantD1 {
			if err := in.store.CheckMatrixIndex(req.D1Matrices[i]); err != nil {
				return err
			}
		}
		if wantD2 {
			if err := in.store.CheckMatrixIndex(req.D2Matrices[i]); err != nil {
				return err
			}
		}
	}

	return in.run(func() error {
		n := len(req.Parents)
		sites := make([][]float64, n)
		d1s := make([][]float64, n)
		d2s := make([][]float64, n)
		scales := make([][]float64, n)
		for i := range req.Parents {
			sites[i] = make([]float64, d.Patterns)
			var d1m, d2m, outD1i, outD2i []float64
			if wantD1 {
				d1m = in.store.Matrix(req.D1Matrices[i])
				d1s[i] = make([]float64, d.Patterns)
				outD1i = d1s[i]
			}
			if wantD2 {
				d2m = in.store.Matrix(req.D2Matrices[i])
				d2s[i] = make([]float64, d.Patterns)
				outD2i = d2s[i]
			}
			in.kern.EdgeSites(
				in.store.PartialsExpanded(req.Parents[i]),
				in.store.PartialsExpanded(req.Children[i]),
				in.store.Matrix(req.Matrices[i]), d1m, d2m,
				frequenciesFor(req.Frequencies, i), in.weights,
				d.Patterns, d.States, d.Categories,
				sites[i], outD1i, outD2i)
			scales[i] = combinedScale(in.store.Scale(req.Parents[i]), in.store.Scale(req.Children[i]), d.Patterns)
		}
		if !wantD1 {
			d1s = nil
		}
		if !wantD2 {
			d2s = nil
		}
		return combineLog(sites, d1s, d2s, scales, req.Weights, outLog, outD1, outD2)
	})
}

func validateTriples(buffers, weights int, freqs [][]float64, states int) error {
	if buffers == 0 {
		return fmt.Errorf("%w: empty buffer list", ErrBadArguments)
	}
	if weights != buffers {
		return fmt.Errorf("%w: %d weights for %d buffers", ErrBadArguments, weights, buffers)
	}
	if len(freqs) != 1 && len(freqs) != buffers {
		return fmt.Errorf("%w: %d frequency vectors for %d buffers", ErrBadArguments, len(freqs), buffers)
	}
	for _, f := range freqs {
		if len(f) != states {
			return fmt.Errorf("%w: frequency vector of %d for %d states", ErrBadArguments, len(f), states)
		}
	}
	return nil
}

// frequenciesFor implements the broadcast convention: a single vector is
// shared by every buffer.
func frequenciesFor(freqs [][]float64, i int) []float64 {
	if len(freqs) == 1 {
		return freqs[0]
	}
	return freqs[i]
}

// combinedScale sums the parent and child scale records per site, nil when
// neither buffer was ever rescaled.
func combinedScale(a, b []float64, patterns int) []float64 {
	if a == nil && b == nil {
		return nil
	}
	out := make([]float64, patterns)
	for i := range out {
		if a != nil {
			out[i] += a[i]
		}
		if b != nil {
			out[i] += b[i]
		}
	}
	return out
}

// combineLog folds weighted per-buffer site likelihoods, their scale
// records, and optional derivative numerators into per-site log likelihoods
// and derivatives.
//
// Buffers may carry different accumulated scales, so the sum is taken in a
// common frame: each buffer's contribution is multiplied by
// exp(scale - maxScale) for that site and maxScale is added back after the
// log. With equal (or absent) scales this reduces to log(sum) + scale.
//
// The derivative outputs follow the chain rule: d log L / dt = D1 / L and
// d^2 log L / dt^2 = D2/L - (D1/L)^2, with D1 and D2 combined across buffers
// in the same scale frame as L.
func combineLog(sites, d1s, d2s, scales [][]float64, weights, outLog, outD1, outD2 []float64) error {
	patterns := len(outLog)
	bad := make(map[int]bool)
	for p := 0; p < patterns; p++ {
		// A buffer with no record sits at scale zero.
		maxScale := math.Inf(-1)
		for b := range sites {
			s := 0.0
			if scales[b] != nil {
				s = scales[b][p]
			}
			if s > maxScale {
				maxScale = s
			}
		}

		var l, d1, d2 float64
		for b := range sites {
			s := 0.0
			if scales[b] != nil {
				s = scales[b][p]
			}
			adj := 1.0
			if s != maxScale {
				adj = math.Exp(s - maxScale)
			}
			l += weights[b] * sites[b][p] * adj
			if d1s != nil {
				d1 += weights[b] * d1s[b][p] * adj
			}
			if d2s != nil {
				d2 += weights[b] * d2s[b][p] * adj
			}
		}

		if l <= 0 || math.IsNaN(l) {
			bad[p] = true
			outLog[p] = math.Log(l) // -Inf or NaN, surfaced alongside the error
			if d1s != nil && outD1 != nil {
				outD1[p] = math.NaN()
			}
			if d2s != nil && outD2 != nil {
				outD2[p] = math.NaN()
			}
			continue
		}
		outLog[p] = math.Log(l) + maxScale
		if d1s != nil && outD1 != nil {
			r1 := d1 / l
			outD1[p] = r1
			if d2s != nil && outD2 != nil {
				outD2[p] = d2/l - r1*r1
			}
		}
	}
	return newSiteError(bad)
}

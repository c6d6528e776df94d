// Package cpu implements the scalar reference kernels. Every other backend
// is checked against these loops, so they favor clarity over speed.
package cpu

import (
	"math"

	"github.com/omsai/beagle-lib/internal/store"
)

// RescaleThreshold is the smallest per-site maximum worth rescaling by.
// Sites at or below it keep their raw values so a genuinely underflowed
// likelihood stays visible at aggregation instead of being divided away.
const RescaleThreshold = 1e-150

// Kernels is the scalar CPU implementation.
type Kernels struct{}

func New() *Kernels { return &Kernels{} }

func (*Kernels) Name() string { return "cpu" }

// Close releases nothing; the scalar kernels hold no resources.
func (*Kernels) Close() {}

// TransitionMatrices computes P(t) = V diag(exp(lambda * t * rate)) V^-1 per
// category, with the lambda and lambda^2 weighted variants for the first and
// second derivative blocks when requested. Branch lengths are used as given,
// negative or tiny values included.
func (*Kernels) TransitionMatrices(eig *store.Eigen, rates []float64, length float64, prob, d1, d2 []float64, states int) {
	n := states
	exps := make([]float64, n)
	scaled := make([]float64, n)
	for c := range rates {
		t := length * rates[c]
		for k := 0; k < n; k++ {
			exps[k] = math.Exp(eig.Values[k] * t)
			scaled[k] = eig.Values[k] * rates[c]
		}
		base := c * n * n
		fillSpectral(prob[base:base+n*n], eig, exps, nil, n)
		if d1 != nil {
			fillSpectral(d1[base:base+n*n], eig, exps, scaled, n)
		}
		if d2 != nil {
			sq := make([]float64, n)
			for k := 0; k < n; k++ {
				sq[k] = scaled[k] * scaled[k]
			}
			fillSpectral(d2[base:base+n*n], eig, exps, sq, n)
		}
	}
}

// fillSpectral writes V diag(weight_k * exps_k) V^-1 into out. A nil weight
// vector means all ones.
func fillSpectral(out []float64, eig *store.Eigen, exps, weight []float64, n int) {
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			var sum float64
			for k := 0; k < n; k++ {
				w := exps[k]
				if weight != nil {
					w *= weight[k]
				}
				sum += eig.Vectors[i*n+k] * w * eig.Inverse[k*n+j]
			}
			out[i*n+j] = sum
		}
	}
}

func (*Kernels) PartialsPartials(dst, p1, m1, p2, m2 []float64, patterns, states, cats int) {
	for p := 0; p < patterns; p++ {
		for c := 0; c < cats; c++ {
			mbase := c * states * states
			for s := 0; s < states; s++ {
				var sum1, sum2 float64
				row := mbase + s*states
				for j := 0; j < states; j++ {
					sum1 += m1[row+j] * p1[(p*states+j)*cats+c]
					sum2 += m2[row+j] * p2[(p*states+j)*cats+c]
				}
				dst[(p*states+s)*cats+c] = sum1 * sum2
			}
		}
	}
}

func (*Kernels) StatesPartials(dst []float64, s1 []int32, m1, p2, m2 []float64, patterns, states, cats int) {
	for p := 0; p < patterns; p++ {
		v1 := int(s1[p])
		for c := 0; c < cats; c++ {
			mbase := c * states * states
			for s := 0; s < states; s++ {
				row := mbase + s*states
				var sum2 float64
				for j := 0; j < states; j++ {
					sum2 += m2[row+j] * p2[(p*states+j)*cats+c]
				}
				dst[(p*states+s)*cats+c] = statesFactor(m1, row, v1, states) * sum2
			}
		}
	}
}

func (*Kernels) StatesStates(dst []float64, s1, s2 []int32, m1, m2 []float64, patterns, states, cats int) {
	for p := 0; p < patterns; p++ {
		v1 := int(s1[p])
		v2 := int(s2[p])
		for c := 0; c < cats; c++ {
			mbase := c * states * states
			for s := 0; s < states; s++ {
				row := mbase + s*states
				dst[(p*states+s)*cats+c] = statesFactor(m1, row, v1, states) * statesFactor(m2, row, v2, states)
			}
		}
	}
}

// statesFactor is the matrix column picked by an observed state; the
// ambiguous sentinel (state == states) sums the whole row, which is the
// one-hot-of-all-ones contraction.
func statesFactor(m []float64, row, state, states int) float64 {
	if state < states {
		return m[row+state]
	}
	var sum float64
	for j := 0; j < states; j++ {
		sum += m[row+j]
	}
	return sum
}

func (*Kernels) Rescale(dst, scale []float64, patterns, states, cats int) {
	for p := 0; p < patterns; p++ {
		base := p * states * cats
		maxv := dst[base]
		for i := 1; i < states*cats; i++ {
			if dst[base+i] > maxv {
				maxv = dst[base+i]
			}
		}
		if maxv <= RescaleThreshold {
			continue
		}
		inv := 1 / maxv
		for i := 0; i < states*cats; i++ {
			dst[base+i] *= inv
		}
		scale[p] += math.Log(maxv)
	}
}

func (*Kernels) RootSites(partials, freqs, catWeights []float64, patterns, states, cats int, out []float64) {
	for p := 0; p < patterns; p++ {
		var site float64
		for c := 0; c < cats; c++ {
			var sum float64
			for s := 0; s < states; s++ {
				sum += freqs[s] * partials[(p*states+s)*cats+c]
			}
			site += catWeights[c] * sum
		}
		out[p] = site
	}
}

func (k *Kernels) EdgeSites(parent, child, prob, d1m, d2m, freqs, catWeights []float64, patterns, states, cats int, outL, outD1, outD2 []float64) {
	edgeContract(parent, child, prob, freqs, catWeights, patterns, states, cats, outL)
	if d1m != nil && outD1 != nil {
		edgeContract(parent, child, d1m, freqs, catWeights, patterns, states, cats, outD1)
	}
	if d2m != nil && outD2 != nil {
		edgeContract(parent, child, d2m, freqs, catWeights, patterns, states, cats, outD2)
	}
}

// edgeContract computes, per site, the category-weighted sum over parent
// states of freq * parent * (M child).
func edgeContract(parent, child, m, freqs, catWeights []float64, patterns, states, cats int, out []float64) {
	for p := 0; p < patterns; p++ {
		var site float64
		for c := 0; c < cats; c++ {
			mbase := c * states * states
			var sum float64
			for i := 0; i < states; i++ {
				var inner float64
				row := mbase + i*states
				for j := 0; j < states; j++ {
					inner += m[row+j] * child[(p*states+j)*cats+c]
				}
				sum += freqs[i] * parent[(p*states+i)*cats+c] * inner
			}
			site += catWeights[c] * sum
		}
		out[p] = site
	}
}

package cpu

import (
	"math"
	"testing"

	"github.com/omsai/beagle-lib/internal/store"
)

// Jukes-Cantor eigendecomposition for four states, normalized to one
// expected substitution per site.
func jc69() *store.Eigen {
	return &store.Eigen{
		Vectors: []float64{
			1, 2, 0, 0.5,
			1, -2, 0.5, 0,
			1, 2, 0, -0.5,
			1, -2, -0.5, 0,
		},
		Inverse: []float64{
			0.25, 0.25, 0.25, 0.25,
			0.125, -0.125, 0.125, -0.125,
			0, 1, 0, -1,
			1, 0, -1, 0,
		},
		Values: []float64{0, -4.0 / 3, -4.0 / 3, -4.0 / 3},
	}
}

func TestTransitionMatrixZeroLengthIsIdentity(t *testing.T) {
	t.Parallel()

	k := New()
	prob := make([]float64, 16)
	k.TransitionMatrices(jc69(), []float64{1}, 0, prob, nil, nil, 4)

	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			want := 0.0
			if i == j {
				want = 1.0
			}
			if math.Abs(prob[i*4+j]-want) > 1e-12 {
				t.Fatalf("P(0)[%d][%d] = %v, want %v", i, j, prob[i*4+j], want)
			}
		}
	}
}

func TestTransitionMatrixRowsSumToOne(t *testing.T) {
	t.Parallel()

	k := New()
	for _, length := range []float64{0.01, 0.1, 0.5, 1.0, 10.0} {
		prob := make([]float64, 16)
		k.TransitionMatrices(jc69(), []float64{1}, length, prob, nil, nil, 4)
		for i := 0; i < 4; i++ {
			var sum float64
			for j := 0; j < 4; j++ {
				sum += prob[i*4+j]
			}
			if math.Abs(sum-1.0) > 1e-10 {
				t.Fatalf("t=%v: row %d sums to %v", length, i, sum)
			}
		}
	}
}

func TestTransitionMatrixMatchesClosedForm(t *testing.T) {
	t.Parallel()

	k := New()
	const length = 0.1
	prob := make([]float64, 16)
	k.TransitionMatrices(jc69(), []float64{1}, length, prob, nil, nil, 4)

	e := math.Exp(-4.0 / 3 * length)
	same := 0.25 + 0.75*e
	diff := 0.25 - 0.25*e
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			want := diff
			if i == j {
				want = same
			}
			if math.Abs(prob[i*4+j]-want) > 1e-12 {
				t.Fatalf("P[%d][%d] = %v, want %v", i, j, prob[i*4+j], want)
			}
		}
	}
}

func TestTransitionMatrixDerivatives(t *testing.T) {
	t.Parallel()

	k := New()
	const length, h = 0.1, 1e-6
	prob := make([]float64, 16)
	d1 := make([]float64, 16)
	d2 := make([]float64, 16)
	k.TransitionMatrices(jc69(), []float64{1}, length, prob, d1, d2, 4)

	plus := make([]float64, 16)
	minus := make([]float64, 16)
	k.TransitionMatrices(jc69(), []float64{1}, length+h, plus, nil, nil, 4)
	k.TransitionMatrices(jc69(), []float64{1}, length-h, minus, nil, nil, 4)

	for i := range prob {
		fd1 := (plus[i] - minus[i]) / (2 * h)
		if math.Abs(d1[i]-fd1) > 1e-6 {
			t.Fatalf("dP[%d]: analytic %v, finite difference %v", i, d1[i], fd1)
		}
		fd2 := (plus[i] - 2*prob[i] + minus[i]) / (h * h)
		if math.Abs(d2[i]-fd2) > 1e-3 {
			t.Fatalf("d2P[%d]: analytic %v, finite difference %v", i, d2[i], fd2)
		}
	}
}

func TestTransitionMatrixCategoryRates(t *testing.T) {
	t.Parallel()

	k := New()
	const length = 0.2
	rates := []float64{0.5, 2.0}
	prob := make([]float64, 32)
	k.TransitionMatrices(jc69(), rates, length, prob, nil, nil, 4)

	for c, rate := range rates {
		single := make([]float64, 16)
		k.TransitionMatrices(jc69(), []float64{1}, length*rate, single, nil, nil, 4)
		for i := 0; i < 16; i++ {
			if math.Abs(prob[c*16+i]-single[i]) > 1e-12 {
				t.Fatalf("category %d entry %d: %v != %v", c, i, prob[c*16+i], single[i])
			}
		}
	}
}

func TestStatesKernelsMatchPartialsKernels(t *testing.T) {
	t.Parallel()

	k := New()
	const patterns, states, cats = 3, 4, 2
	eig := jc69()
	m1 := make([]float64, cats*states*states)
	m2 := make([]float64, cats*states*states)
	k.TransitionMatrices(eig, []float64{0.7, 1.3}, 0.15, m1, nil, nil, states)
	k.TransitionMatrices(eig, []float64{0.7, 1.3}, 0.35, m2, nil, nil, states)

	// Tip observations, pattern 2 missing.
	s1 := []int32{0, 3, 4}
	s2 := []int32{1, 1, 2}
	p1 := expand(s1, patterns, states, cats)
	p2 := expand(s2, patterns, states, cats)

	fromStates := make([]float64, patterns*states*cats)
	fromPartials := make([]float64, patterns*states*cats)
	k.StatesStates(fromStates, s1, s2, m1, m2, patterns, states, cats)
	k.PartialsPartials(fromPartials, p1, m1, p2, m2, patterns, states, cats)
	for i := range fromStates {
		if math.Abs(fromStates[i]-fromPartials[i]) > 1e-14 {
			t.Fatalf("states/states vs partials mismatch at %d: %v vs %v", i, fromStates[i], fromPartials[i])
		}
	}

	mixed := make([]float64, patterns*states*cats)
	k.StatesPartials(mixed, s1, m1, p2, m2, patterns, states, cats)
	for i := range mixed {
		if math.Abs(mixed[i]-fromPartials[i]) > 1e-14 {
			t.Fatalf("states/partials vs partials mismatch at %d: %v vs %v", i, mixed[i], fromPartials[i])
		}
	}
}

// expand turns compact states into one-hot partials, ones for the sentinel.
func expand(states []int32, patterns, n, cats int) []float64 {
	buf := make([]float64, patterns*n*cats)
	for p, v := range states {
		for s := 0; s < n; s++ {
			for c := 0; c < cats; c++ {
				if int(v) == n || int(v) == s {
					buf[(p*n+s)*cats+c] = 1
				}
			}
		}
	}
	return buf
}

func TestRescaleDividesByMaxAndRecordsLog(t *testing.T) {
	t.Parallel()

	k := New()
	const patterns, states, cats = 2, 2, 2
	dst := []float64{
		0.5, 0.25, 2.0, 1.0, // pattern 0, max 2.0
		1e-200, 1e-210, 1e-205, 1e-220, // pattern 1, below threshold
	}
	scale := []float64{0.5, 0.5}

	k.Rescale(dst, scale, patterns, states, cats)

	want := []float64{0.25, 0.125, 1.0, 0.5}
	for i := range want {
		if math.Abs(dst[i]-want[i]) > 1e-15 {
			t.Fatalf("pattern 0 entry %d: got %v, want %v", i, dst[i], want[i])
		}
	}
	if math.Abs(scale[0]-(0.5+math.Log(2.0))) > 1e-15 {
		t.Fatalf("scale[0] = %v, want %v", scale[0], 0.5+math.Log(2.0))
	}

	// Underflowed site: untouched values, untouched scale.
	if dst[4] != 1e-200 || scale[1] != 0.5 {
		t.Fatalf("underflowed site must be left as-is: dst[4]=%v scale[1]=%v", dst[4], scale[1])
	}
}

func TestRootSites(t *testing.T) {
	t.Parallel()

	k := New()
	const patterns, states, cats = 1, 2, 2
	partials := []float64{0.2, 0.4, 0.6, 0.8} // (s0,c0) (s0,c1) (s1,c0) (s1,c1)
	freqs := []float64{0.5, 0.5}
	catWeights := []float64{0.25, 0.75}
	out := make([]float64, patterns)
	k.RootSites(partials, freqs, catWeights, patterns, states, cats, out)

	want := 0.25*(0.5*0.2+0.5*0.6) + 0.75*(0.5*0.4+0.5*0.8)
	if math.Abs(out[0]-want) > 1e-15 {
		t.Fatalf("RootSites = %v, want %v", out[0], want)
	}
}

func TestEdgeSitesMatchesRootOfPeel(t *testing.T) {
	t.Parallel()

	// Integrating parent x P x child over an edge must equal peeling the
	// child through P with an identity sibling and aggregating at the root.
	k := New()
	const patterns, states, cats = 2, 4, 1
	eig := jc69()
	m := make([]float64, states*states)
	k.TransitionMatrices(eig, []float64{1}, 0.3, m, nil, nil, states)

	parent := []float64{0.1, 0.2, 0.3, 0.4, 0.4, 0.3, 0.2, 0.1}
	child := []float64{0.25, 0.5, 0.125, 0.125, 1, 0, 0, 1}
	freqs := []float64{0.25, 0.25, 0.25, 0.25}
	cw := []float64{1}

	edge := make([]float64, patterns)
	k.EdgeSites(parent, child, m, nil, nil, freqs, cw, patterns, states, cats, edge, nil, nil)

	ident := make([]float64, states*states)
	for i := 0; i < states; i++ {
		ident[i*states+i] = 1
	}
	peeled := make([]float64, patterns*states*cats)
	k.PartialsPartials(peeled, parent, ident, child, m, patterns, states, cats)
	root := make([]float64, patterns)
	k.RootSites(peeled, freqs, cw, patterns, states, cats, root)

	for p := 0; p < patterns; p++ {
		if math.Abs(edge[p]-root[p]) > 1e-14 {
			t.Fatalf("pattern %d: edge %v, root-of-peel %v", p, edge[p], root[p])
		}
	}
}
